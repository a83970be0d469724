package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/contextgen"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/snapshot"
)

// CompactSave captures the session's active state before a compaction.
// POST /api/compact/save
func (h *Handler) CompactSave(c *gin.Context) {
	var req CompactSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	in := snapshot.SaveInput{
		SessionID:     req.SessionID,
		CompactID:     req.CompactID,
		ModifiedFiles: req.ModifiedFiles,
		Decisions:     req.Decisions,
		Summary:       req.Summary,
	}
	for _, ac := range req.AgentContexts {
		in.AgentContexts = append(in.AgentContexts, &models.AgentContext{
			AgentID:   ac.AgentID,
			Progress:  ac.Progress,
			ToolsUsed: ac.ToolsUsed,
			RoleNotes: ac.RoleNotes,
		})
	}

	snap, err := h.snapshots.Save(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         snap.ID,
		"session_id": snap.SessionID,
		"compact_id": snap.CompactID,
		"size_bytes": snap.SizeBytes,
		"created_at": snap.CreatedAt,
	})
}

// CompactRestore rebuilds session state after a compaction. When an agent id
// is supplied the response additionally carries that agent's resume brief.
// POST /api/compact/restore
func (h *Handler) CompactRestore(c *gin.Context) {
	var req CompactRestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	restored, err := h.snapshots.Restore(c.Request.Context(), req.SessionID, req.CompactID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := gin.H{
		"payload":           restored.Payload,
		"agent_contexts":    restored.AgentContexts,
		"from_snapshot":     restored.FromSnapshot,
		"session_compacted": restored.SessionCompacted,
	}

	if req.AgentID != "" {
		brief, err := h.contexts.Generate(c.Request.Context(), contextgen.Input{
			AgentID:   req.AgentID,
			AgentType: req.AgentType,
			SessionID: req.SessionID,
			MaxTokens: req.MaxTokens,
			Snapshot:  restored.Payload,
		})
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		resp["brief"] = brief
	}

	c.JSON(http.StatusOK, resp)
}

// ListSnapshots returns a session's snapshot metadata, newest first.
// GET /api/compact/snapshots?session_id&limit
func (h *Handler) ListSnapshots(c *gin.Context) {
	sessionID := c.Query("session_id")
	limit := queryInt(c, "limit", 20)

	snaps, err := h.snapshots.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

// ContextBrief generates a resume brief for an agent.
// POST /api/context/brief
func (h *Handler) ContextBrief(c *gin.Context) {
	var req ContextBriefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	brief, err := h.contexts.Generate(c.Request.Context(), contextgen.Input{
		AgentID:   req.AgentID,
		AgentType: req.AgentType,
		SessionID: req.SessionID,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brief":       brief.Markdown,
		"category":    brief.Category,
		"token_count": brief.TokenCount,
		"truncated":   brief.Truncated,
		"sources":     brief.Sources,
	})
}
