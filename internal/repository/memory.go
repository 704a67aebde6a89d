package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/document"
)

func key(tenantID, id string) string { return tenantID + "/" + id }

// MemoryDocumentStore is an in-process DocumentRepository for tests
// and single-node setups.
type MemoryDocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]document.Document
	versions map[string]document.Version
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:     make(map[string]document.Document),
		versions: make(map[string]document.Version),
	}
}

func (s *MemoryDocumentStore) CreateDocument(_ context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = time.Now().UTC()
	s.docs[key(doc.TenantID, doc.ID)] = *doc
	return nil
}

func (s *MemoryDocumentStore) GetDocument(_ context.Context, tenantID, documentID string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key(tenantID, documentID)]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return &doc, nil
}

func (s *MemoryDocumentStore) ListDocuments(_ context.Context, tenantID string, limit, offset int) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	docs := make([]document.Document, 0)
	for _, doc := range s.docs {
		if doc.TenantID == tenantID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if offset >= len(docs) {
		return []document.Document{}, nil
	}
	docs = docs[offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryDocumentStore) DeleteDocument(_ context.Context, tenantID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, documentID)
	if _, ok := s.docs[k]; !ok {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	delete(s.docs, k)
	for vk, ver := range s.versions {
		if ver.TenantID == tenantID && ver.DocumentID == documentID {
			delete(s.versions, vk)
		}
	}
	return nil
}

func (s *MemoryDocumentStore) CreateVersion(_ context.Context, version *document.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	s.versions[key(version.TenantID, version.ID)] = *version
	return nil
}

func (s *MemoryDocumentStore) GetVersion(_ context.Context, tenantID, versionID string) (*document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ver, ok := s.versions[key(tenantID, versionID)]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	return &ver, nil
}

func (s *MemoryDocumentStore) ListVersions(_ context.Context, tenantID, documentID string) ([]document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := make([]document.Version, 0)
	for _, ver := range s.versions {
		if ver.TenantID == tenantID && ver.DocumentID == documentID {
			versions = append(versions, ver)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

func (s *MemoryDocumentStore) DeleteVersion(_ context.Context, tenantID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, versionID)
	if _, ok := s.versions[k]; !ok {
		return fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	delete(s.versions, k)
	return nil
}

func (s *MemoryDocumentStore) UpdateVersionStatus(_ context.Context, tenantID, versionID string, status document.VersionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, versionID)
	ver, ok := s.versions[k]
	if !ok {
		return fmt.Errorf("%w: version %s", ErrNotFound, versionID)
	}
	ver.Status = status
	s.versions[k] = ver
	return nil
}

// MemoryChunkStore is an in-process ChunkRepository.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]document.Chunk
}

// NewMemoryChunkStore creates an empty store.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string][]document.Chunk)}
}

func (s *MemoryChunkStore) InsertChunks(_ context.Context, tenantID string, chunks []document.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		k := key(tenantID, chunk.VersionID)
		s.chunks[k] = append(s.chunks[k], chunk)
	}
	return nil
}

func (s *MemoryChunkStore) ListByVersion(_ context.Context, tenantID, versionID string) ([]document.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := append([]document.Chunk(nil), s.chunks[key(tenantID, versionID)]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks, nil
}

func (s *MemoryChunkStore) DeleteByVersion(_ context.Context, tenantID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, key(tenantID, versionID))
	return nil
}

// MemoryPolicyStore is an in-process PolicyRepository.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]auth.Policy
}

// NewMemoryPolicyStore creates a store seeded with the given policies.
func NewMemoryPolicyStore(policies ...auth.Policy) *MemoryPolicyStore {
	s := &MemoryPolicyStore{policies: make(map[string]auth.Policy)}
	for _, p := range policies {
		s.policies[key(p.TenantID, p.ID)] = p
	}
	return s
}

func (s *MemoryPolicyStore) ListByTenant(_ context.Context, tenantID string) ([]auth.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := make([]auth.Policy, 0)
	for _, p := range s.policies {
		if p.TenantID == tenantID {
			policies = append(policies, p)
		}
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Priority > policies[j].Priority })
	return policies, nil
}

func (s *MemoryPolicyStore) ListEnabled(_ context.Context) ([]auth.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := make([]auth.Policy, 0)
	for _, p := range s.policies {
		if p.Enabled {
			policies = append(policies, p)
		}
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].TenantID != policies[j].TenantID {
			return policies[i].TenantID < policies[j].TenantID
		}
		return policies[i].Priority > policies[j].Priority
	})
	return policies, nil
}

func (s *MemoryPolicyStore) Create(_ context.Context, policy *auth.Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[key(policy.TenantID, policy.ID)] = *policy
	return nil
}

func (s *MemoryPolicyStore) SetEnabled(_ context.Context, tenantID, policyID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, policyID)
	p, ok := s.policies[k]
	if !ok {
		return fmt.Errorf("%w: policy %s", ErrNotFound, policyID)
	}
	p.Enabled = enabled
	s.policies[k] = p
	return nil
}

func (s *MemoryPolicyStore) Delete(_ context.Context, tenantID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, policyID)
	if _, ok := s.policies[k]; !ok {
		return fmt.Errorf("%w: policy %s", ErrNotFound, policyID)
	}
	delete(s.policies, k)
	return nil
}

var (
	_ DocumentRepository = (*MemoryDocumentStore)(nil)
	_ ChunkRepository    = (*MemoryChunkStore)(nil)
	_ PolicyRepository   = (*MemoryPolicyStore)(nil)
)
