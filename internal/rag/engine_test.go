package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/audit"
	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

type fakeProvider struct {
	vector []float32
	err    error
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeProvider) Dimension() int { return len(f.vector) }
func (f *fakeProvider) Close() error   { return nil }

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Log(_ context.Context, event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func seedIndex(t *testing.T, tenantID string, points ...vectorstore.Point) *vectorstore.Memory {
	t.Helper()
	index := vectorstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, index.EnsurePartition(ctx, tenantID))
	require.NoError(t, index.Upsert(ctx, tenantID, points))
	return index
}

func TestSearchPreservesIndexOrder(t *testing.T) {
	index := seedIndex(t, "acme",
		vectorstore.Point{ID: "far", Vector: []float32{0.5, 0.5}, Content: "far"},
		vectorstore.Point{ID: "exact", Vector: []float32{1, 0}, Content: "exact"},
		vectorstore.Point{ID: "near", Vector: []float32{0.9, 0.1}, Content: "near"},
	)
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, index, nil, nil)

	results, err := engine.Search(context.Background(), "acme", "u1", Query{Text: "q", Limit: 10, MinScore: 0})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ChunkID)
	assert.Equal(t, "near", results[1].ChunkID)
	assert.Equal(t, "far", results[2].ChunkID)
}

func TestSearchAppliesScopeFilter(t *testing.T) {
	index := seedIndex(t, "acme",
		vectorstore.Point{ID: "eng", Vector: []float32{1, 0}, Scope: auth.AccessScope{Department: "engineering"}},
		vectorstore.Point{ID: "sales", Vector: []float32{1, 0}, Scope: auth.AccessScope{Department: "sales"}},
	)
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, index, nil, nil)

	q := FromAuthContext("q", auth.Context{TenantID: "acme", UserID: "u1", Department: "engineering"}, nil)
	q.MinScore = 0

	results, err := engine.Search(context.Background(), "acme", "u1", q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "eng", results[0].ChunkID)
}

func TestSearchEmptyResultIsValid(t *testing.T) {
	index := seedIndex(t, "acme",
		vectorstore.Point{ID: "orthogonal", Vector: []float32{0, 1}},
	)
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, index, nil, nil)

	results, err := engine.Search(context.Background(), "acme", "u1", Query{Text: "q", Limit: 10, MinScore: 0.9})
	require.NoError(t, err)
	assert.Empty(t, results, "threshold is never lowered automatically")
}

func TestSearchProjectsMetadata(t *testing.T) {
	index := seedIndex(t, "acme", vectorstore.Point{
		ID:      "c1",
		Vector:  []float32{1, 0},
		Content: "chunk text",
		Scope:   auth.AccessScope{Department: "engineering"},
		Metadata: vectorstore.PointMetadata{
			DocumentID:        "doc-1",
			DocumentVersionID: "ver-1",
			DocumentName:      "handbook",
			Position:          3,
			Degraded:          true,
		},
	})
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, index, nil, nil)

	results, err := engine.Search(context.Background(), "acme", "u1", Query{Text: "q", Limit: 1, MinScore: 0})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "chunk text", r.Text)
	assert.Equal(t, "doc-1", r.DocumentID)
	assert.Equal(t, "ver-1", r.DocumentVersionID)
	assert.Equal(t, "handbook", r.DocumentName)
	assert.Equal(t, 3, r.Position)
	assert.True(t, r.Degraded)
	assert.Equal(t, "engineering", r.Scope.Department)
}

func TestSearchEmbeddingFailure(t *testing.T) {
	engine := NewEngine(&fakeProvider{err: errors.New("provider down")}, vectorstore.NewMemory(), nil, nil)

	_, err := engine.Search(context.Background(), "acme", "u1", Query{Text: "q", Limit: 10, MinScore: 0.7})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, vectorstore.NewMemory(), nil, nil)

	_, err := engine.Search(context.Background(), "acme", "u1", Query{Limit: 10, MinScore: 0.7})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = engine.Search(context.Background(), "", "u1", Query{Text: "q", Limit: 10, MinScore: 0.7})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSearchRecordsAuditEvent(t *testing.T) {
	index := seedIndex(t, "acme", vectorstore.Point{ID: "c1", Vector: []float32{1, 0}})
	sink := &captureSink{}
	engine := NewEngine(&fakeProvider{vector: []float32{1, 0}}, index, sink, nil)

	_, err := engine.Search(context.Background(), "acme", "u1", Query{Text: "q", Limit: 10, MinScore: 0})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, audit.ActionRagSearch, event.Action)
	assert.Equal(t, "acme", event.TenantID)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, 1, event.Detail["result_count"])
}

func TestFilterAllowed(t *testing.T) {
	messageScope := auth.AccessScope{
		Department: "engineering",
		Tags:       []string{"project-x"},
	}
	results := []Result{
		{ChunkID: "open", Scope: auth.AccessScope{}},
		{ChunkID: "same-dept", Scope: auth.AccessScope{Department: "engineering"}},
		{ChunkID: "other-dept", Scope: auth.AccessScope{Department: "sales"}},
		{ChunkID: "tag-gated", Scope: auth.AccessScope{Tags: []string{"project-x"}}},
	}

	allowed := FilterAllowed(messageScope, results)

	ids := make([]string, len(allowed))
	for i, r := range allowed {
		ids[i] = r.ChunkID
	}
	assert.Equal(t, []string{"open", "same-dept", "tag-gated"}, ids, "order preserved, denied dropped")
}
