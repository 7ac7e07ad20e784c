package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/groundquery/groundquery/pkg/events"
	"github.com/groundquery/groundquery/pkg/models"
	"github.com/groundquery/groundquery/pkg/schema"
)

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	WorkspaceID    string   `json:"workspace_id" binding:"required"`
	ThreadID       string   `json:"thread_id"`
	UserMessage    string   `json:"user_message" binding:"required"`
	AllowedSources []string `json:"allowed_sources"`
}

// Ask handles POST /api/v1/ask. The response is an SSE stream; every run
// ends with a done event, and client disconnect cancels the run.
func (s *Server) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.UserMessage) > schema.MaxUserMessageLen {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("user_message exceeds %d characters", schema.MaxUserMessageLen),
		})
		return
	}

	rc := models.RunContext{
		WorkspaceID:    req.WorkspaceID,
		ThreadID:       req.ThreadID,
		MessageID:      uuid.NewString(),
		UserMessage:    req.UserMessage,
		AllowedSources: req.AllowedSources,
	}
	if rc.ThreadID == "" {
		rc.ThreadID = uuid.NewString()
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// The request context cancels the run on client disconnect. The stream
	// is drained fully either way so the producer can always finish.
	clientGone := false
	for event := range s.coordinator.Process(c.Request.Context(), rc) {
		if clientGone {
			continue
		}
		if err := writeSSE(c, event); err != nil {
			s.logger.Debug("SSE write failed, draining remaining events",
				"thread_id", rc.ThreadID, "error", err)
			clientGone = true
			continue
		}
		c.Writer.Flush()
	}
}

func writeSSE(c *gin.Context, event events.StreamEvent) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event.Type, err)
	}
	_, err = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
