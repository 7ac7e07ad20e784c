package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/groundquery/groundquery/pkg/database"
	"github.com/groundquery/groundquery/pkg/version"
)

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"version": version.Version,
	}
	if s.db == nil {
		body["database"] = "not configured"
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db.DB().DB)
	body["database"] = dbHealth
	if err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
