package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/routing"
	"github.com/agentmem/agentmem/internal/tracking"
)

// TrackAction ingests one tool invocation from a host hook. Fire-and-forget:
// the response only says whether the record was accepted onto the telemetry
// queue, never whether it was persisted.
// POST /api/actions
func (h *Handler) TrackAction(c *gin.Context) {
	var req TrackActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	toolType := models.ToolType(req.ToolType)
	if req.ToolType == "" {
		toolType = models.ToolTypeBuiltin
	}
	if !toolType.Valid() {
		respondError(c, h.logger, apperrors.Validation("unknown tool type"))
		return
	}

	description := req.Description
	if description == "" {
		description = req.ToolName + " " + req.Input
	}

	accepted := h.tracker.Track(tracking.Record{
		SessionID:    req.SessionID,
		ProjectPath:  req.Cwd,
		SubtaskID:    req.SubtaskID,
		AgentID:      req.AgentID,
		ToolName:     req.ToolName,
		ToolType:     toolType,
		Input:        req.Input,
		Description:  description,
		ExitCode:     req.ExitCode,
		DurationMs:   req.DurationMs,
		FilePaths:    req.FilePaths,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
	})

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// ListActions returns recent actions, newest first.
// GET /api/actions?session_id&limit
func (h *Handler) ListActions(c *gin.Context) {
	sessionID := c.Query("session_id")
	limit := queryInt(c, "limit", 100)

	actions, err := h.db.ListActions(c.Request.Context(), sessionID, limit)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list actions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// RoutingFeedback records one tool outcome against keywords.
// POST /api/routing/feedback
func (h *Handler) RoutingFeedback(c *gin.Context) {
	var req RoutingFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	err := h.routes.Feedback(c.Request.Context(), req.Keywords, req.ToolName,
		models.ToolType(req.ToolType), req.Success)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RoutingSuggest ranks tools for a free-text query.
// GET /api/routing/suggest?q&limit
func (h *Handler) RoutingSuggest(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		respondError(c, h.logger, apperrors.Validation("q query parameter is required"))
		return
	}
	limit := queryInt(c, "limit", 5)

	keywords := tracking.ExtractKeywords(q)
	if len(keywords) == 0 {
		c.JSON(http.StatusOK, gin.H{"suggestions": []routing.Suggestion{}})
		return
	}

	suggestions, err := h.routes.Suggest(c.Request.Context(), keywords, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions, "keywords": keywords})
}

// TrackTokens appends a token consumption record and recomputes the agent's
// capacity aggregate.
// POST /api/tokens/track
func (h *Handler) TrackTokens(c *gin.Context) {
	var req TrackTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 {
		respondError(c, h.logger, apperrors.Validation("token counts must be non-negative"))
		return
	}

	record := &models.TokenConsumption{
		AgentID:      req.AgentID,
		SessionID:    req.SessionID,
		ToolName:     req.ToolName,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
	}
	if err := h.db.AppendTokenConsumption(c.Request.Context(), record); err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to record token consumption", err))
		return
	}

	agg, err := h.capacity.Recompute(c.Request.Context(), req.AgentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// GetCapacity returns an agent's capacity aggregate.
// GET /api/capacity/:agentId
func (h *Handler) GetCapacity(c *gin.Context) {
	agentID := c.Param("agentId")
	agg, err := h.capacity.Status(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// CapacityZones returns the zone distribution across agents.
// GET /api/capacity
func (h *Handler) CapacityZones(c *gin.Context) {
	counts, err := h.capacity.ZoneCounts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": counts})
}
