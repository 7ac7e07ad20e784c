package models

// RunContext identifies one inbound request. It is created at the request
// boundary and read-only for the rest of the run.
type RunContext struct {
	WorkspaceID    string   `json:"workspace_id"`
	ThreadID       string   `json:"thread_id"`
	MessageID      string   `json:"message_id"`
	UserMessage    string   `json:"user_message"`
	AllowedSources []string `json:"allowed_sources,omitempty"`
}

// CreateMessageRequest contains fields for persisting the final answer as a
// thread message in the evidence store.
type CreateMessageRequest struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	WorkspaceID string   `json:"workspace_id"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	CitationIDs []string `json:"citation_ids,omitempty"`
}
