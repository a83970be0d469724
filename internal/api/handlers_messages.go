package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/message"
	"github.com/agentmem/agentmem/internal/models"
)

// SendMessage posts an inter-agent message.
// POST /api/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	var ttl time.Duration
	switch {
	case req.TTLMillis > 0:
		ttl = time.Duration(req.TTLMillis) * time.Millisecond
	case req.TTLSeconds > 0:
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	msg, err := h.messages.Send(c.Request.Context(), message.SendInput{
		FromAgent: req.FromAgent,
		ToAgent:   req.ToAgent,
		Topic:     req.Topic,
		Kind:      models.MessageKind(req.Kind),
		Payload:   req.Payload,
		Priority:  req.Priority,
		TTL:       ttl,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns unexpired messages matching the query.
// GET /api/messages?recipient&kind&topic&unread&limit&offset
func (h *Handler) ListMessages(c *gin.Context) {
	in := message.ListInput{
		Recipient: c.Query("recipient"),
		Kind:      models.MessageKind(c.Query("kind")),
		Topic:     c.Query("topic"),
	}
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, h.logger, apperrors.Validation("unread must be a boolean"))
			return
		}
		in.Unread = &v
	}
	in.Limit, in.Offset = pagination(c, 50, 500)

	msgs, err := h.messages.List(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PendingMessages returns an agent's undelivered messages.
// GET /api/messages/pending/:agentId?limit
func (h *Handler) PendingMessages(c *gin.Context) {
	agentID := c.Param("agentId")
	limit := queryInt(c, "limit", 100)

	msgs, err := h.messages.Pending(c.Request.Context(), agentID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkMessageRead records that the agent has seen the message (idempotent).
// POST /api/messages/:messageId/read
func (h *Handler) MarkMessageRead(c *gin.Context) {
	id := c.Param("messageId")
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	msg, err := h.messages.MarkRead(c.Request.Context(), id, req.AgentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Subscribe binds an agent to a topic. Idempotent: re-subscribing returns
// 200 with the existing subscription.
// POST /api/subscriptions
func (h *Handler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	sub, created, err := h.messages.Subscribe(c.Request.Context(), req.AgentID, req.Topic)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, sub)
}

// Unsubscribe removes a subscription.
// DELETE /api/subscriptions/:subscriptionId
func (h *Handler) Unsubscribe(c *gin.Context) {
	id := c.Param("subscriptionId")
	if err := h.messages.Unsubscribe(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSubscriptions returns an agent's topic bindings.
// GET /api/subscriptions?agent_id
func (h *Handler) ListSubscriptions(c *gin.Context) {
	agentID := c.Query("agent_id")
	subs, err := h.messages.Subscriptions(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
