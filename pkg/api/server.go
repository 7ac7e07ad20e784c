// Package api is the HTTP edge: it accepts ask requests, translates the
// pipeline's event stream into SSE, and serves health and metrics.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundquery/groundquery/pkg/database"
	"github.com/groundquery/groundquery/pkg/pipeline"
)

// Server holds the edge's dependencies.
type Server struct {
	coordinator *pipeline.Coordinator
	db          *database.Client // nil when running without persistence
	logger      *slog.Logger
}

// NewServer creates the API server. db may be nil.
func NewServer(coordinator *pipeline.Coordinator, db *database.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{coordinator: coordinator, db: db, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/api/v1/ask", s.Ask)
	router.GET("/healthz", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
