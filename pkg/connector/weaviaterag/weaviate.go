// Package weaviaterag implements the RAG connector against a Weaviate
// instance. Chunks live in a single class partitioned by workspace_id;
// retrieval is nearText semantic search scoped to the caller's workspace.
package weaviaterag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wmodels "github.com/weaviate/weaviate/entities/models"

	"github.com/groundquery/groundquery/pkg/connector"
)

// ChunkClassName is the Weaviate class holding ingested document chunks.
const ChunkClassName = "DocumentChunk"

// DefaultTopK bounds retrieval when the caller does not specify a limit.
const DefaultTopK = 8

// Config configures the Weaviate connector.
type Config struct {
	Scheme string
	Host   string
	APIKey string
}

// Searcher is a workspace-scoped semantic searcher.
type Searcher struct {
	client *weaviate.Client
	logger *slog.Logger
}

// New creates a searcher against the configured Weaviate instance.
func New(cfg Config, logger *slog.Logger) (*Searcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	wcfg := weaviate.Config{Scheme: cfg.Scheme, Host: cfg.Host}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Searcher{client: client, logger: logger}, nil
}

// Search implements connector.RAGSearcher. Results are always filtered to
// the requesting workspace; source filtering is additive on top of that.
func (s *Searcher) Search(ctx context.Context, req connector.SearchRequest) (*connector.SearchResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"workspaceId"}).
			WithOperator(filters.Equal).
			WithValueString(req.WorkspaceID),
	}
	if len(req.SourceIDs) > 0 {
		sourceOps := make([]*filters.WhereBuilder, 0, len(req.SourceIDs))
		for _, id := range req.SourceIDs {
			sourceOps = append(sourceOps, filters.Where().
				WithPath([]string{"sourceId"}).
				WithOperator(filters.Equal).
				WithValueString(id))
		}
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands(sourceOps))
	}
	whereFilter := filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)

	nearText := s.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{req.Query})

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "sourceId"},
		{Name: "content"},
		{Name: "title"},
		{Name: "_additional { certainty distance }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(ChunkClassName).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	chunks := parseChunks(result)
	s.logger.Debug("RAG search completed",
		"workspace_id", req.WorkspaceID, "top_k", topK, "chunks", len(chunks))
	return &connector.SearchResult{Chunks: chunks}, nil
}

func parseChunks(result *wmodels.GraphQLResponse) []connector.Chunk {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []connector.Chunk{}
	}
	objects, ok := data[ChunkClassName].([]interface{})
	if !ok {
		return []connector.Chunk{}
	}

	chunks := make([]connector.Chunk, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := connector.Chunk{
			ChunkID:    getString(m, "chunkId"),
			DocumentID: getString(m, "documentId"),
			Content:    getString(m, "content"),
		}
		meta := map[string]any{}
		if v := getString(m, "sourceId"); v != "" {
			meta["source_id"] = v
		}
		if v := getString(m, "title"); v != "" {
			meta["title"] = v
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.Score = certainty
			}
		}
		if len(meta) > 0 {
			chunk.Metadata = meta
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
