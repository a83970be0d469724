package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/common/logger"
)

// rateLimitByMethod sends reads and writes through their own limiters.
func rateLimitByMethod(read, write *RateLimiter) gin.HandlerFunc {
	readMW := read.Middleware()
	writeMW := write.Middleware()
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			readMW(c)
		default:
			writeMW(c)
		}
	}
}

// SetupRoutes configures the memory API routes.
func SetupRoutes(router *gin.Engine, h *Handler, log *logger.Logger) {
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(CORS())

	// Health sits outside the rate-limited groups so probes never 429.
	router.GET("/health", h.Health)

	readLimiter := NewRateLimiter(LimitRead)
	writeLimiter := NewRateLimiter(LimitWrite)

	api := router.Group("/api")
	api.Use(rateLimitByMethod(readLimiter, writeLimiter))

	projects := api.Group("/projects")
	{
		projects.POST("", h.CreateProject)
		projects.GET("", h.ListProjects)
		projects.GET("/:projectId", h.GetProject)
		projects.DELETE("/:projectId", h.DeleteProject)
	}

	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.UpsertSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:sessionId", h.GetSession)
		sessions.POST("/:sessionId/end", h.EndSession)
	}

	requests := api.Group("/requests")
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
	}

	tasks := api.Group("/tasks")
	{
		tasks.POST("", h.CreateTask)
		tasks.GET("", h.ListTasks)
		tasks.GET("/:taskId", h.GetTask)
	}

	subtasks := api.Group("/subtasks")
	{
		subtasks.POST("", h.CreateSubtask)
		subtasks.GET("", h.ListSubtasks)
		subtasks.GET("/:subtaskId", h.GetSubtask)
		subtasks.PATCH("/:subtaskId", h.UpdateSubtask)
		subtasks.DELETE("/:subtaskId", h.DeleteSubtask)
	}

	batches := api.Group("/batches")
	{
		batches.POST("", h.CreateBatch)
		batches.GET("/:batchId", h.GetBatch)
		batches.POST("/:batchId/advance", h.AdvanceBatch)
	}

	actions := api.Group("/actions")
	{
		actions.POST("", h.TrackAction)
		actions.GET("", h.ListActions)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", h.SendMessage)
		messages.GET("", h.ListMessages)
		messages.GET("/pending/:agentId", h.PendingMessages)
		messages.POST("/:messageId/read", h.MarkMessageRead)
	}

	subscriptions := api.Group("/subscriptions")
	{
		subscriptions.POST("", h.Subscribe)
		subscriptions.GET("", h.ListSubscriptions)
		subscriptions.DELETE("/:subscriptionId", h.Unsubscribe)
	}

	compact := api.Group("/compact")
	{
		compact.POST("/save", h.CompactSave)
		compact.POST("/restore", h.CompactRestore)
		compact.GET("/snapshots", h.ListSnapshots)
	}

	api.POST("/context/brief", h.ContextBrief)

	routingGroup := api.Group("/routing")
	{
		routingGroup.POST("/feedback", h.RoutingFeedback)
		routingGroup.GET("/suggest", h.RoutingSuggest)
	}

	api.POST("/tokens/track", h.TrackTokens)
	api.GET("/capacity", h.CapacityZones)
	api.GET("/capacity/:agentId", h.GetCapacity)

	registry := api.Group("/registry")
	{
		registry.GET("", h.ListRegistry)
		registry.GET("/:agentType", h.GetRegistry)
		registry.PUT("/:agentType", h.UpsertRegistry)
	}

	api.GET("/dashboard/kpis", h.DashboardKPIs)
	api.GET("/hierarchy/:projectId", h.Hierarchy)
}
