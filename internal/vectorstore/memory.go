package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Index used in tests and single-node setups.
// It ranks by cosine similarity, matching the Qdrant configuration.
type Memory struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Point
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{partitions: make(map[string]map[string]Point)}
}

func (m *Memory) EnsurePartition(_ context.Context, tenantID string) error {
	name, err := PartitionName(tenantID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.partitions[name]; !ok {
		m.partitions[name] = make(map[string]Point)
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, tenantID string, points []Point) error {
	name, err := PartitionName(tenantID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.partitions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPartitionNotFound, name)
	}
	for _, p := range points {
		partition[p.ID] = p
	}
	return nil
}

func (m *Memory) Search(_ context.Context, tenantID string, vector []float32, params SearchParams) ([]Hit, error) {
	name, err := PartitionName(tenantID)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", params.Limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	partition, ok := m.partitions[name]
	if !ok {
		// Mirrors the Qdrant behavior: a tenant with no partition has
		// no documents, so the search finds nothing.
		return nil, nil
	}

	hits := make([]Hit, 0, len(partition))
	for _, p := range partition {
		if !params.Filter.Matches(p) {
			continue
		}
		score := cosineSimilarity(vector, p.Vector)
		if params.ScoreThreshold > 0 && score < params.ScoreThreshold {
			continue
		}
		hits = append(hits, Hit{
			ID:       p.ID,
			Score:    score,
			Content:  p.Content,
			Scope:    p.Scope,
			Metadata: p.Metadata,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > params.Limit {
		hits = hits[:params.Limit]
	}
	return hits, nil
}

func (m *Memory) DeleteWhere(_ context.Context, tenantID string, filter Filter) error {
	name, err := PartitionName(tenantID)
	if err != nil {
		return err
	}
	if filter.IsEmpty() {
		return fmt.Errorf("refusing to delete with empty filter, use DeletePartition")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.partitions[name]
	if !ok {
		return nil
	}
	for id, p := range partition {
		if filter.Matches(p) {
			delete(partition, id)
		}
	}
	return nil
}

func (m *Memory) DeletePartition(_ context.Context, tenantID string) error {
	name, err := PartitionName(tenantID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, name)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Count returns the number of points in a tenant's partition. Test
// helper.
func (m *Memory) Count(tenantID string) int {
	name, err := PartitionName(tenantID)
	if err != nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions[name])
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure Memory implements Index.
var _ Index = (*Memory)(nil)
