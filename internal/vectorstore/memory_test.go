package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

func memoryWithPoints(t *testing.T, tenantID string, points ...Point) *Memory {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.EnsurePartition(ctx, tenantID))
	require.NoError(t, m.Upsert(ctx, tenantID, points))
	return m
}

func TestMemoryEnsurePartitionIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.EnsurePartition(ctx, "acme"))
	require.NoError(t, m.Upsert(ctx, "acme", []Point{{ID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, m.EnsurePartition(ctx, "acme"))

	assert.Equal(t, 1, m.Count("acme"), "re-ensuring must not drop existing points")
}

func TestMemoryUpsertRequiresPartition(t *testing.T) {
	m := NewMemory()
	err := m.Upsert(context.Background(), "acme", []Point{{ID: "a"}})
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestMemoryUpsertReplacesByID(t *testing.T) {
	m := memoryWithPoints(t, "acme", Point{ID: "a", Vector: []float32{1, 0}, Content: "old"})
	require.NoError(t, m.Upsert(context.Background(), "acme", []Point{{ID: "a", Vector: []float32{1, 0}, Content: "new"}}))

	hits, err := m.Search(context.Background(), "acme", []float32{1, 0}, SearchParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Content)
}

func TestMemorySearchRanksByCosine(t *testing.T) {
	m := memoryWithPoints(t, "acme",
		Point{ID: "exact", Vector: []float32{1, 0}},
		Point{ID: "near", Vector: []float32{0.9, 0.1}},
		Point{ID: "far", Vector: []float32{0, 1}},
	)

	hits, err := m.Search(context.Background(), "acme", []float32{1, 0}, SearchParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
	assert.Equal(t, "near", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemorySearchScoreThreshold(t *testing.T) {
	m := memoryWithPoints(t, "acme",
		Point{ID: "exact", Vector: []float32{1, 0}},
		Point{ID: "orthogonal", Vector: []float32{0, 1}},
	)

	hits, err := m.Search(context.Background(), "acme", []float32{1, 0}, SearchParams{Limit: 10, ScoreThreshold: 0.7})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "exact", hits[0].ID)
}

func TestMemorySearchAppliesFilter(t *testing.T) {
	m := memoryWithPoints(t, "acme",
		Point{ID: "eng", Vector: []float32{1, 0}, Scope: auth.AccessScope{Department: "engineering"}},
		Point{ID: "sales", Vector: []float32{1, 0}, Scope: auth.AccessScope{Department: "sales"}},
	)

	hits, err := m.Search(context.Background(), "acme", []float32{1, 0}, SearchParams{
		Limit:  10,
		Filter: Filter{Departments: []string{"engineering"}},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "eng", hits[0].ID)
}

func TestMemorySearchUnknownTenantEmpty(t *testing.T) {
	m := NewMemory()
	hits, err := m.Search(context.Background(), "ghost", []float32{1, 0}, SearchParams{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryTenantIsolation(t *testing.T) {
	m := memoryWithPoints(t, "acme", Point{ID: "a", Vector: []float32{1, 0}})
	ctx := context.Background()
	require.NoError(t, m.EnsurePartition(ctx, "umbrella"))

	hits, err := m.Search(ctx, "umbrella", []float32{1, 0}, SearchParams{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits, "one tenant's points must never surface in another's search")
}

func TestMemoryDeleteWhere(t *testing.T) {
	m := memoryWithPoints(t, "acme",
		Point{ID: "v1", Vector: []float32{1, 0}, Metadata: PointMetadata{DocumentVersionID: "ver-1"}},
		Point{ID: "v2", Vector: []float32{1, 0}, Metadata: PointMetadata{DocumentVersionID: "ver-2"}},
	)

	err := m.DeleteWhere(context.Background(), "acme", Filter{DocumentVersionIDs: []string{"ver-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count("acme"))
}

func TestMemoryDeleteWhereEmptyFilterRefused(t *testing.T) {
	m := memoryWithPoints(t, "acme", Point{ID: "a", Vector: []float32{1, 0}})
	err := m.DeleteWhere(context.Background(), "acme", Filter{})
	assert.Error(t, err)
	assert.Equal(t, 1, m.Count("acme"))
}

func TestMemoryDeletePartition(t *testing.T) {
	m := memoryWithPoints(t, "acme", Point{ID: "a", Vector: []float32{1, 0}})
	require.NoError(t, m.DeletePartition(context.Background(), "acme"))
	assert.Equal(t, 0, m.Count("acme"))
}

func TestQdrantConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  QdrantConfig
		wantErr bool
	}{
		{name: "valid", config: QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 768}},
		{name: "missing host", config: QdrantConfig{Port: 6334, VectorSize: 768}, wantErr: true},
		{name: "bad port", config: QdrantConfig{Host: "localhost", Port: -1, VectorSize: 768}, wantErr: true},
		{name: "missing vector size", config: QdrantConfig{Host: "localhost", Port: 6334}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
