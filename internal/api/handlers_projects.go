package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/store"
)

// CreateProject registers a project root. Idempotent on path: re-posting an
// existing path returns 200 with the existing entity instead of 201.
// POST /api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	project, created, err := h.db.CreateProject(c.Request.Context(), req.Path, req.Name)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to create project", err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, project)
}

// ListProjects returns projects, newest first.
// GET /api/projects?limit&offset
func (h *Handler) ListProjects(c *gin.Context) {
	limit, offset := pagination(c, 50, 200)
	projects, err := h.db.ListProjects(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list projects", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject fetches one project.
// GET /api/projects/:projectId
func (h *Handler) GetProject(c *gin.Context) {
	id := c.Param("projectId")
	project, err := h.db.GetProject(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("project", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch project", err))
		return
	}
	c.JSON(http.StatusOK, project)
}

// DeleteProject removes a project and cascades its requests, tasks,
// subtasks, and actions.
// DELETE /api/projects/:projectId
func (h *Handler) DeleteProject(c *gin.Context) {
	id := c.Param("projectId")
	if err := h.db.DeleteProject(c.Request.Context(), id); err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("project", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to delete project", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// UpsertSession creates or touches a session from a host hook. When a
// project path is supplied the project is resolved (created if missing) and
// linked.
// POST /api/sessions
func (h *Handler) UpsertSession(c *gin.Context) {
	var req UpsertSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	var projectID *string
	if req.ProjectPath != "" {
		project, _, err := h.db.CreateProject(c.Request.Context(), req.ProjectPath, "")
		if err != nil {
			respondError(c, h.logger, apperrors.Internal("failed to resolve project", err))
			return
		}
		projectID = &project.ID
	}

	session, err := h.db.UpsertSession(c.Request.Context(), req.SessionID, projectID)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to upsert session", err))
		return
	}
	c.JSON(http.StatusOK, session)
}

// ListSessions returns sessions by recency.
// GET /api/sessions?limit&offset
func (h *Handler) ListSessions(c *gin.Context) {
	limit, offset := pagination(c, 50, 200)
	sessions, err := h.db.ListSessions(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list sessions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession fetches one session.
// GET /api/sessions/:sessionId
func (h *Handler) GetSession(c *gin.Context) {
	id := c.Param("sessionId")
	session, err := h.db.GetSession(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("session", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch session", err))
		return
	}
	c.JSON(http.StatusOK, session)
}

// EndSession closes a session.
// POST /api/sessions/:sessionId/end
func (h *Handler) EndSession(c *gin.Context) {
	id := c.Param("sessionId")
	if err := h.db.EndSession(c.Request.Context(), id); err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("session", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to end session", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateRequest records a user turn.
// POST /api/requests
func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	var projectID *string
	if req.ProjectID != "" {
		projectID = &req.ProjectID
	}
	request, err := h.db.CreateRequest(c.Request.Context(), req.SessionID, projectID, req.Prompt, req.PromptType)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to create request", err))
		return
	}
	c.JSON(http.StatusCreated, request)
}

// ListRequests returns a session's requests, newest first.
// GET /api/requests?session_id&limit&offset
func (h *Handler) ListRequests(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		respondError(c, h.logger, apperrors.Validation("session_id query parameter is required"))
		return
	}
	limit, offset := pagination(c, 50, 200)
	requests, err := h.db.ListRequests(c.Request.Context(), sessionID, limit, offset)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list requests", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
