// Package vectorstore provides the tenant-partitioned vector index port
// and its Qdrant gRPC and in-memory implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// Sentinel errors for vector index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidPartition indicates an unusable tenant partition name.
	ErrInvalidPartition = errors.New("invalid partition name")

	// ErrPartitionNotFound indicates the tenant partition does not exist.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrConnectionFailed indicates the index backend is unreachable.
	ErrConnectionFailed = errors.New("connection failed")
)

// partitionPattern validates derived partition names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var partitionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// sanitizePattern matches characters replaced during tenant ID
// sanitization.
var sanitizePattern = regexp.MustCompile(`[^a-z0-9_]`)

// PartitionName derives the index partition name for a tenant.
// Tenant IDs are lowercased and non [a-z0-9_] runes become underscores,
// so UUID tenant IDs map to stable, valid collection names.
func PartitionName(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenant ID cannot be empty", ErrInvalidPartition)
	}
	name := "tenant_" + sanitizePattern.ReplaceAllString(strings.ToLower(tenantID), "_")
	if !partitionPattern.MatchString(name) {
		return "", fmt.Errorf("%w: derived name %q must match ^[a-z0-9_]{1,64}$", ErrInvalidPartition, name)
	}
	return name, nil
}

// PointMetadata is the provenance metadata stored alongside each point.
type PointMetadata struct {
	DocumentID        string
	DocumentVersionID string
	DocumentName      string
	Position          int
	Format            string
	Degraded          bool
}

// Point is a chunk vector with its payload, addressed by a UUID.
type Point struct {
	ID       string
	Vector   []float32
	Content  string
	Scope    auth.AccessScope
	Metadata PointMetadata
}

// Hit is a single search result. Order and score come from the index.
type Hit struct {
	ID       string
	Score    float32
	Content  string
	Scope    auth.AccessScope
	Metadata PointMetadata
}

// Filter restricts a search or delete to points whose payload matches.
// Each non-empty field is an "any of" match; empty fields do not
// constrain. Fields combine with AND.
type Filter struct {
	Departments        []string
	Subdepartments     []string
	Tags               []string
	DocumentIDs        []string
	DocumentVersionIDs []string
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return len(f.Departments) == 0 &&
		len(f.Subdepartments) == 0 &&
		len(f.Tags) == 0 &&
		len(f.DocumentIDs) == 0 &&
		len(f.DocumentVersionIDs) == 0
}

// Matches reports whether a point satisfies the filter. This is the
// reference semantics the Qdrant translation mirrors.
func (f Filter) Matches(p Point) bool {
	if len(f.Departments) > 0 && !containsString(f.Departments, p.Scope.Department) {
		return false
	}
	if len(f.Subdepartments) > 0 && !containsString(f.Subdepartments, p.Scope.Subdepartment) {
		return false
	}
	if len(f.Tags) > 0 && !anyOverlap(f.Tags, p.Scope.Tags) {
		return false
	}
	if len(f.DocumentIDs) > 0 && !containsString(f.DocumentIDs, p.Metadata.DocumentID) {
		return false
	}
	if len(f.DocumentVersionIDs) > 0 && !containsString(f.DocumentVersionIDs, p.Metadata.DocumentVersionID) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}

// SearchParams bound a similarity search.
type SearchParams struct {
	// Limit is the maximum number of hits to return. Must be positive.
	Limit int

	// ScoreThreshold drops hits scoring below it. Zero disables the
	// threshold.
	ScoreThreshold float32

	// Filter restricts candidate points by payload.
	Filter Filter
}

// Index is the tenant-partitioned vector index port. Every operation
// addresses a single tenant partition; cross-tenant access is
// impossible through this interface.
type Index interface {
	// EnsurePartition creates the tenant's partition if it does not
	// exist. Idempotent.
	EnsurePartition(ctx context.Context, tenantID string) error

	// Upsert inserts or replaces points in the tenant's partition.
	Upsert(ctx context.Context, tenantID string, points []Point) error

	// Search returns the closest points to the vector, best first,
	// restricted by params. An empty result is not an error.
	Search(ctx context.Context, tenantID string, vector []float32, params SearchParams) ([]Hit, error)

	// DeleteWhere removes all points matching the filter from the
	// tenant's partition.
	DeleteWhere(ctx context.Context, tenantID string, filter Filter) error

	// DeletePartition removes the tenant's partition and every point
	// in it.
	DeletePartition(ctx context.Context, tenantID string) error

	// Close releases backend connections.
	Close() error
}
