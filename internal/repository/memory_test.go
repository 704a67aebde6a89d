package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/document"
)

func TestMemoryDocumentStoreRoundTrip(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	doc := &document.Document{ID: "d1", TenantID: "acme", Name: "handbook"}
	require.NoError(t, store.CreateDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "acme", "d1")
	require.NoError(t, err)
	assert.Equal(t, "handbook", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryDocumentStoreTenantIsolation(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	require.NoError(t, store.CreateDocument(ctx, &document.Document{ID: "d1", TenantID: "acme"}))

	_, err := store.GetDocument(ctx, "umbrella", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDocumentStoreVersionStatus(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	ver := &document.Version{ID: "v1", DocumentID: "d1", TenantID: "acme", Version: 1, Status: document.StatusProcessing}
	require.NoError(t, store.CreateVersion(ctx, ver))
	require.NoError(t, store.UpdateVersionStatus(ctx, "acme", "v1", document.StatusCompleted))

	got, err := store.GetVersion(ctx, "acme", "v1")
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)

	err = store.UpdateVersionStatus(ctx, "acme", "missing", document.StatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDocumentStoreListVersionsNewestFirst(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.CreateVersion(ctx, &document.Version{
			ID: string(rune('a' + i)), DocumentID: "d1", TenantID: "acme", Version: i,
		}))
	}

	versions, err := store.ListVersions(ctx, "acme", "d1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Version)
	assert.Equal(t, 1, versions[2].Version)
}

func TestMemoryChunkStoreOrderedByPosition(t *testing.T) {
	store := NewMemoryChunkStore()
	ctx := context.Background()

	require.NoError(t, store.InsertChunks(ctx, "acme", []document.Chunk{
		{ID: "c2", VersionID: "v1", Position: 2},
		{ID: "c0", VersionID: "v1", Position: 0},
		{ID: "c1", VersionID: "v1", Position: 1},
	}))

	chunks, err := store.ListByVersion(ctx, "acme", "v1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Position)
	}
}

func TestMemoryChunkStoreDeleteByVersion(t *testing.T) {
	store := NewMemoryChunkStore()
	ctx := context.Background()

	require.NoError(t, store.InsertChunks(ctx, "acme", []document.Chunk{{ID: "c0", VersionID: "v1"}}))
	require.NoError(t, store.DeleteByVersion(ctx, "acme", "v1"))

	chunks, err := store.ListByVersion(ctx, "acme", "v1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMemoryPolicyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPolicyStore(
		auth.Policy{ID: "p1", TenantID: "acme", Type: auth.PolicyModel, Rules: auth.ModelRules{}, Priority: 5, Enabled: true},
		auth.Policy{ID: "p2", TenantID: "acme", Type: auth.PolicyModel, Rules: auth.ModelRules{}, Priority: 10, Enabled: false},
	)

	byTenant, err := store.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, byTenant, 2)
	assert.Equal(t, "p2", byTenant[0].ID, "sorted by priority descending")

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "p1", enabled[0].ID)

	require.NoError(t, store.SetEnabled(ctx, "acme", "p2", true))
	enabled, err = store.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	err = store.Create(ctx, &auth.Policy{ID: "bad", TenantID: "acme", Type: auth.PolicyChat, Rules: auth.ModelRules{}})
	assert.ErrorIs(t, err, auth.ErrInvalidPolicy, "mismatched rules rejected at write time")
}
