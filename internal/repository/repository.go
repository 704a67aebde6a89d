// Package repository defines the relational persistence ports for
// documents, versions, chunks and policies. Every method is scoped to
// a tenant; implementations never trust the caller to filter.
package repository

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/document"
)

// ErrNotFound indicates the requested record does not exist for the
// tenant.
var ErrNotFound = errors.New("record not found")

// DocumentRepository persists documents and their ingested versions.
type DocumentRepository interface {
	// CreateDocument inserts a new document.
	CreateDocument(ctx context.Context, doc *document.Document) error

	// GetDocument returns a tenant's document by ID.
	GetDocument(ctx context.Context, tenantID, documentID string) (*document.Document, error)

	// ListDocuments returns a tenant's documents, newest first.
	ListDocuments(ctx context.Context, tenantID string, limit, offset int) ([]document.Document, error)

	// DeleteDocument removes a document and, via cascade, its versions
	// and chunks.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// CreateVersion inserts a new version in processing state. The
	// (document_id, version) pair is unique, serializing concurrent
	// ingestions of the same revision.
	CreateVersion(ctx context.Context, version *document.Version) error

	// GetVersion returns a tenant's version by ID.
	GetVersion(ctx context.Context, tenantID, versionID string) (*document.Version, error)

	// ListVersions returns a document's versions, newest first.
	ListVersions(ctx context.Context, tenantID, documentID string) ([]document.Version, error)

	// DeleteVersion removes a version record and, via cascade, its
	// chunks.
	DeleteVersion(ctx context.Context, tenantID, versionID string) error

	// UpdateVersionStatus transitions a version's lifecycle status.
	UpdateVersionStatus(ctx context.Context, tenantID, versionID string, status document.VersionStatus) error
}

// ChunkRepository persists the ACL-tagged chunk records backing the
// vector index.
type ChunkRepository interface {
	// InsertChunks inserts a version's chunks in position order.
	InsertChunks(ctx context.Context, tenantID string, chunks []document.Chunk) error

	// ListByVersion returns a version's chunks ordered by position.
	ListByVersion(ctx context.Context, tenantID, versionID string) ([]document.Chunk, error)

	// DeleteByVersion removes all chunks of a version.
	DeleteByVersion(ctx context.Context, tenantID, versionID string) error
}

// PolicyRepository loads and manages the policies the evaluation
// engine snapshots.
type PolicyRepository interface {
	// ListByTenant returns all of a tenant's policies, including
	// disabled ones.
	ListByTenant(ctx context.Context, tenantID string) ([]auth.Policy, error)

	// ListEnabled returns every enabled policy across tenants, the
	// engine's reload source.
	ListEnabled(ctx context.Context) ([]auth.Policy, error)

	// Create inserts a policy.
	Create(ctx context.Context, policy *auth.Policy) error

	// SetEnabled flips a policy's enabled flag.
	SetEnabled(ctx context.Context, tenantID, policyID string, enabled bool) error

	// Delete removes a policy.
	Delete(ctx context.Context, tenantID, policyID string) error
}
