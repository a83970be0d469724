package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// CreateTask opens a task wave within a request.
// POST /api/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}
	if req.Wave < 0 {
		respondError(c, h.logger, apperrors.Validation("wave must be >= 0"))
		return
	}

	task, err := h.db.CreateTask(c.Request.Context(), req.RequestID, req.Wave)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to create task", err))
		return
	}

	h.publish(c, events.TaskCreated, map[string]any{
		"id":         task.ID,
		"request_id": task.RequestID,
		"wave":       task.Wave,
	})
	c.JSON(http.StatusCreated, task)
}

// GetTask fetches one task.
// GET /api/tasks/:taskId
func (h *Handler) GetTask(c *gin.Context) {
	id := c.Param("taskId")
	task, err := h.db.GetTask(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("task", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch task", err))
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasks returns a request's task waves in wave order.
// GET /api/tasks?request_id&limit&offset
func (h *Handler) ListTasks(c *gin.Context) {
	requestID := c.Query("request_id")
	if requestID == "" {
		respondError(c, h.logger, apperrors.Validation("request_id query parameter is required"))
		return
	}
	limit, offset := pagination(c, 50, 200)
	tasks, err := h.db.ListTasks(c.Request.Context(), requestID, limit, offset)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list tasks", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// CreateSubtask registers one agent invocation.
// POST /api/subtasks
func (h *Handler) CreateSubtask(c *gin.Context) {
	var req CreateSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	subtask := &models.Subtask{
		TaskID:        req.TaskID,
		SessionID:     req.SessionID,
		AgentType:     req.AgentType,
		AgentID:       req.AgentID,
		Description:   req.Description,
		Priority:      req.Priority,
		ParentAgentID: req.ParentAgentID,
		BatchID:       req.BatchID,
		BlockedBy:     req.BlockedBy,
	}
	if err := h.db.CreateSubtask(c.Request.Context(), subtask); err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to create subtask", err))
		return
	}

	h.publish(c, events.SubtaskCreated, map[string]any{
		"id":         subtask.ID,
		"task_id":    subtask.TaskID,
		"session_id": subtask.SessionID,
		"agent_type": subtask.AgentType,
		"agent_id":   subtask.AgentID,
		"status":     string(subtask.Status),
	})
	c.JSON(http.StatusCreated, subtask)
}

// GetSubtask fetches one subtask.
// GET /api/subtasks/:subtaskId
func (h *Handler) GetSubtask(c *gin.Context) {
	id := c.Param("subtaskId")
	subtask, err := h.db.GetSubtask(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("subtask", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch subtask", err))
		return
	}
	c.JSON(http.StatusOK, subtask)
}

// ListSubtasks returns subtasks matching the query filters.
// GET /api/subtasks?task_id&session_id&agent_id&status&limit&offset
func (h *Handler) ListSubtasks(c *gin.Context) {
	filter := store.SubtaskFilter{
		TaskID:    c.Query("task_id"),
		SessionID: c.Query("session_id"),
		AgentID:   c.Query("agent_id"),
	}
	if status := c.Query("status"); status != "" {
		s := models.SubtaskStatus(status)
		if !s.Valid() {
			respondError(c, h.logger, apperrors.Validation("unknown subtask status"))
			return
		}
		filter.Statuses = []models.SubtaskStatus{s}
	}
	filter.Limit, filter.Offset = pagination(c, 100, 500)

	subtasks, err := h.db.ListSubtasks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to list subtasks", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})
}

// UpdateSubtask applies a partial update. A status change additionally emits
// subtask.status_changed.
// PATCH /api/subtasks/:subtaskId
func (h *Handler) UpdateSubtask(c *gin.Context) {
	id := c.Param("subtaskId")
	var req UpdateSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	update := store.SubtaskUpdate{
		Description: req.Description,
		Priority:    req.Priority,
		RetryCount:  req.RetryCount,
		BlockedBy:   req.BlockedBy,
		AgentID:     req.AgentID,
	}
	var newStatus *models.SubtaskStatus
	if req.Status != nil {
		s := models.SubtaskStatus(*req.Status)
		if !s.Valid() {
			respondError(c, h.logger, apperrors.Validation("unknown subtask status"))
			return
		}
		newStatus = &s
		update.Status = &s
	}

	before, err := h.db.GetSubtask(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("subtask", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch subtask", err))
		return
	}

	subtask, err := h.db.UpdateSubtask(c.Request.Context(), id, update)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("subtask", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to update subtask", err))
		return
	}

	h.publish(c, events.SubtaskUpdated, map[string]any{
		"id":         subtask.ID,
		"session_id": subtask.SessionID,
		"agent_id":   subtask.AgentID,
		"status":     string(subtask.Status),
	})
	if newStatus != nil && before.Status != *newStatus {
		h.publish(c, events.SubtaskStatusChanged, map[string]any{
			"id":         subtask.ID,
			"session_id": subtask.SessionID,
			"agent_id":   subtask.AgentID,
			"from":       string(before.Status),
			"to":         string(subtask.Status),
		})
	}
	c.JSON(http.StatusOK, subtask)
}

// DeleteSubtask removes a subtask.
// DELETE /api/subtasks/:subtaskId
func (h *Handler) DeleteSubtask(c *gin.Context) {
	id := c.Param("subtaskId")
	if err := h.db.DeleteSubtask(c.Request.Context(), id); err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("subtask", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to delete subtask", err))
		return
	}
	h.publish(c, events.SubtaskDeleted, map[string]any{"id": id})
	c.Status(http.StatusNoContent)
}

// CreateBatch opens a wave batch.
// POST /api/batches
func (h *Handler) CreateBatch(c *gin.Context) {
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}
	if req.Total <= 0 {
		respondError(c, h.logger, apperrors.Validation("total must be positive"))
		return
	}

	batch, err := h.db.CreateBatch(c.Request.Context(), req.SessionID, req.Total)
	if err != nil {
		respondError(c, h.logger, apperrors.Internal("failed to create batch", err))
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// GetBatch fetches one batch.
// GET /api/batches/:batchId
func (h *Handler) GetBatch(c *gin.Context) {
	id := c.Param("batchId")
	batch, err := h.db.GetBatch(c.Request.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("batch", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to fetch batch", err))
		return
	}
	c.JSON(http.StatusOK, batch)
}

// AdvanceBatch records one finished subtask in a batch.
// POST /api/batches/:batchId/advance
func (h *Handler) AdvanceBatch(c *gin.Context) {
	id := c.Param("batchId")
	var req AdvanceBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperrors.Validation(err.Error()))
		return
	}

	batch, err := h.db.AdvanceBatch(c.Request.Context(), id, req.Failed)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(c, h.logger, apperrors.NotFound("batch", id))
			return
		}
		respondError(c, h.logger, apperrors.Internal("failed to advance batch", err))
		return
	}
	c.JSON(http.StatusOK, batch)
}

// publish emits an event through the store; failures are logged, never
// surfaced, because the state change has already committed.
func (h *Handler) publish(c *gin.Context, event string, data map[string]any) {
	if err := h.db.Publish(c.Request.Context(), events.PgChannel, event, data); err != nil {
		h.logger.WithError(err).Warn("failed to publish event")
	}
}
