package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/audit"
	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var tracer = otel.Tracer("knowledged.rag")

// Result is a read-only projection of one retrieved chunk.
type Result struct {
	ChunkID           string           `json:"chunkId"`
	Score             float32          `json:"score"`
	Text              string           `json:"text"`
	DocumentID        string           `json:"documentId"`
	DocumentVersionID string           `json:"documentVersionId"`
	DocumentName      string           `json:"documentName"`
	Position          int              `json:"position"`
	Degraded          bool             `json:"degraded,omitempty"`
	Scope             auth.AccessScope `json:"accessScope"`
}

// Engine executes scoped retrieval queries. It embeds the query text,
// translates filters to the index's native filter expression and
// preserves the index's ranking order. It performs no policy
// evaluation itself; callers gate access before searching.
type Engine struct {
	provider embeddings.Provider
	index    vectorstore.Index
	audit    audit.Sink
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(provider embeddings.Provider, index vectorstore.Index, auditSink audit.Sink, logger *zap.Logger) *Engine {
	if auditSink == nil {
		auditSink = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		provider: provider,
		index:    index,
		audit:    auditSink,
		logger:   logger.Named("rag"),
	}
}

// Search runs one similarity search against the tenant's partition.
// Results arrive in the index's descending-similarity order; the
// engine never re-sorts. An empty result set is valid, not an error,
// and the threshold is never lowered automatically.
func (e *Engine) Search(ctx context.Context, tenantID, userID string, query Query) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("limit", query.Limit),
	)

	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID required", ErrInvalidQuery)
	}
	if err := query.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	vector, err := e.provider.EmbedQuery(ctx, query.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	hits, err := e.index.Search(ctx, tenantID, vector, vectorstore.SearchParams{
		Limit:          query.Limit,
		ScoreThreshold: query.MinScore,
		Filter:         translateFilters(query.Filters),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{
			ChunkID:           hit.ID,
			Score:             hit.Score,
			Text:              hit.Content,
			DocumentID:        hit.Metadata.DocumentID,
			DocumentVersionID: hit.Metadata.DocumentVersionID,
			DocumentName:      hit.Metadata.DocumentName,
			Position:          hit.Metadata.Position,
			Degraded:          hit.Metadata.Degraded,
			Scope:             hit.Scope,
		}
	}

	event := audit.NewEvent(tenantID, userID, audit.ActionRagSearch)
	event.Detail = map[string]any{
		"limit":        query.Limit,
		"min_score":    query.MinScore,
		"result_count": len(results),
	}
	e.audit.Log(ctx, event)

	e.logger.Debug("retrieval complete",
		zap.String("tenant_id", tenantID),
		zap.Int("result_count", len(results)))

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// FilterAllowed keeps only the results a message's inherited scope may
// access, preserving order. This is the ACL gate applied after
// retrieval when results feed back into a conversation.
func FilterAllowed(messageScope auth.AccessScope, results []Result) []Result {
	allowed := make([]Result, 0, len(results))
	for _, r := range results {
		if messageScope.Allows(r.Scope) {
			allowed = append(allowed, r)
		}
	}
	return allowed
}

func translateFilters(f Filters) vectorstore.Filter {
	return vectorstore.Filter{
		Departments:        f.Departments,
		Subdepartments:     f.Subdepartments,
		Tags:               f.Tags,
		DocumentIDs:        f.DocumentIDs,
		DocumentVersionIDs: f.DocumentVersionIDs,
	}
}
