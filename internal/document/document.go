// Package document defines the tenant-scoped document model and the
// fixed-window chunker the ingestion pipeline runs on.
package document

import (
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
)

// VersionStatus tracks an ingested revision's lifecycle. A version is
// retrievable only once it reaches a completed status; anything else
// means ingestion is in flight or gave up.
type VersionStatus string

const (
	// StatusProcessing is the initial state while the pipeline runs.
	StatusProcessing VersionStatus = "processing"
	// StatusCompleted means every chunk was embedded and indexed.
	StatusCompleted VersionStatus = "completed"
	// StatusCompletedDegraded means the version is indexed but one or
	// more chunks carry fallback embeddings after provider failures.
	// Retrievable, but retrieval quality may be reduced.
	StatusCompletedDegraded VersionStatus = "completed_degraded"
	// StatusFailed means ingestion aborted; the version is not
	// retrievable.
	StatusFailed VersionStatus = "failed"
)

// Retrievable reports whether chunks of this status may serve queries.
func (s VersionStatus) Retrievable() bool {
	return s == StatusCompleted || s == StatusCompletedDegraded
}

// Document is a named, tagged artifact owned by one tenant.
type Document struct {
	ID            string
	TenantID      string
	Name          string
	Description   string
	Tags          []string
	Department    string
	Subdepartment string
	AccessRoles   []string
	AccessScope   auth.AccessScope
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Version records one immutable ingested revision of a document.
// Chunk count and text are fixed once the version completes.
type Version struct {
	ID             string
	DocumentID     string
	TenantID       string
	Version        int
	StorageKey     string
	StorageType    string
	Format         string
	Size           int64
	Checksum       string
	ChunkingConfig ChunkingConfig
	Status         VersionStatus
	CreatedAt      time.Time
}

// Chunk is one ACL-tagged slice of a version's text. Position is the
// stable zero-based index within the version.
type Chunk struct {
	ID          string
	VersionID   string
	ChunkID     string
	Text        string
	Position    int
	Metadata    map[string]any
	AccessScope auth.AccessScope
	// Degraded marks chunks whose embedding fell back to the
	// deterministic placeholder after a provider failure.
	Degraded  bool
	CreatedAt time.Time
}
