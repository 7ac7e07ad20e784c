// Package connector defines the external data-source contracts the tool
// runtime dispatches to, plus stub implementations used in tests. Live
// implementations are in the postgres and weaviaterag subpackages.
package connector

import (
	"context"
	"fmt"
)

// QueryRequest is one bounded, read-only SQL query. The SQL has already
// passed the safety gate; connectors still apply MaxRows on their side.
type QueryRequest struct {
	SQL         string
	SourceID    string
	WorkspaceID string
	MaxRows     int64
}

// QueryResult is the structured output of a SQL query.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int64            `json:"row_count"`
	Checksum  string           `json:"checksum"`
	Truncated bool             `json:"truncated"`
}

// SQLQuerier executes gated SQL against one or more relational sources.
type SQLQuerier interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)

	// TestConnection reports reachability of the underlying source.
	TestConnection(ctx context.Context) error

	// Disconnect releases pooled connections.
	Disconnect()
}

// SearchRequest is one semantic search over the document corpus.
type SearchRequest struct {
	Query       string
	WorkspaceID string
	SourceIDs   []string
	TopK        int
}

// Chunk is one retrieved document fragment. ChunkID is citable evidence.
type Chunk struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResult is the structured output of a RAG search.
type SearchResult struct {
	Chunks []Chunk `json:"chunks"`
}

// RAGSearcher retrieves document chunks relevant to a query.
type RAGSearcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// StubSQL returns canned query results for tests.
type StubSQL struct {
	Result *QueryResult
	Err    error
	Calls  []QueryRequest
}

// Query implements SQLQuerier.
func (s *StubSQL) Query(_ context.Context, req QueryRequest) (*QueryResult, error) {
	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return &QueryResult{Columns: []string{}, Rows: []map[string]any{}}, nil
}

// TestConnection implements SQLQuerier.
func (s *StubSQL) TestConnection(context.Context) error { return s.Err }

// Disconnect implements SQLQuerier.
func (s *StubSQL) Disconnect() {}

// StubRAG returns canned search results for tests.
type StubRAG struct {
	Result *SearchResult
	Err    error
	Calls  []SearchRequest
}

// Search implements RAGSearcher.
func (s *StubRAG) Search(_ context.Context, req SearchRequest) (*SearchResult, error) {
	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return &SearchResult{Chunks: []Chunk{}}, nil
}

// NotConfiguredError marks a connector that exists in the dispatch table
// but has no live backend wired.
type NotConfiguredError struct {
	Kind string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("no %s connector configured", e.Kind)
}
