package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/adaptest-backend/internal/assessment/store"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
)

type HealthHandler struct {
	sessions *store.Store
	registry *launch.Registry
}

func NewHealthHandler(sessions *store.Store, registry *launch.Registry) *HealthHandler {
	return &HealthHandler{sessions: sessions, registry: registry}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"active_sessions": h.sessions.Len(),
		"platforms":       h.registry.Len(),
	})
}
