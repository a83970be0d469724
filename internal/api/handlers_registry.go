package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// ListRegistry returns agent-type configurations.
// GET /api/registry?category
func (h *Handler) ListRegistry(c *gin.Context) {
	entries, err := h.db.ListRegistryEntries(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list registry entries", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetRegistry fetches one agent type's configuration.
// GET /api/registry/:agentType
func (h *Handler) GetRegistry(c *gin.Context) {
	agentType := c.Param("agentType")
	entry, err := h.db.GetRegistryEntry(c.Request.Context(), agentType)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("registry entry", agentType))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch registry entry", err))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// UpsertRegistry configures an agent type, replacing any seeded default.
// PUT /api/registry/:agentType
func (h *Handler) UpsertRegistry(c *gin.Context) {
	agentType := c.Param("agentType")
	var req UpsertRegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	entry := &models.RegistryEntry{
		AgentType:        agentType,
		Category:         req.Category,
		AllowedTools:     req.AllowedTools,
		ForbiddenActions: req.ForbiddenActions,
		MaxFiles:         req.MaxFiles,
		Waves:            req.Waves,
		Model:            req.Model,
		DefaultScope:     req.DefaultScope,
	}
	if err := h.db.UpsertRegistryEntry(c.Request.Context(), entry); err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to upsert registry entry", err))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DashboardKPIs returns the headline counts.
// GET /api/dashboard/kpis
func (h *Handler) DashboardKPIs(c *gin.Context) {
	kpis, err := h.db.DashboardKPIs(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to collect dashboard kpis", err))
		return
	}

	zones, err := h.capacity.ZoneCounts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kpis":              kpis,
		"capacity_zones":    zones,
		"telemetry_dropped": h.tracker.Dropped(),
	})
}

// Hierarchy returns the project work tree.
// GET /api/hierarchy/:projectId
func (h *Handler) Hierarchy(c *gin.Context) {
	id := c.Param("projectId")
	tree, err := h.db.Hierarchy(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("project", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to build hierarchy", err))
		return
	}
	c.JSON(http.StatusOK, tree)
}
