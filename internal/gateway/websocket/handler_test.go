package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/common/logger"
)

func TestServeRejectsBadHandshake(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := NewAuthenticator("secret", 5*time.Minute, true)
	h := NewHandler(NewHub(logger.Default()), auth, logger.Default())

	router := gin.New()
	router.GET("/ws", h.Serve)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws?agent_id=agent-1&ts=123&token=bad", nil)
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	// The handshake failure speaks the same error taxonomy as the HTTP API.
	if !strings.Contains(w.Body.String(), `"error":"auth"`) {
		t.Errorf("body = %s, want the auth error code", w.Body.String())
	}
}
