package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/repository"
)

// DocumentStore implements repository.DocumentRepository.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a DocumentStore on an existing pool.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, doc *document.Document) error {
	const query = `
		INSERT INTO documents (id, tenant_id, name, description, tags, department, subdepartment, access_roles, access_scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	scope, err := json.Marshal(doc.AccessScope)
	if err != nil {
		return fmt.Errorf("encode access scope: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = s.pool.Exec(ctx, query,
		doc.ID, doc.TenantID, doc.Name, doc.Description, doc.Tags,
		doc.Department, doc.Subdepartment, doc.AccessRoles, scope,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetDocument(ctx context.Context, tenantID, documentID string) (*document.Document, error) {
	const query = `
		SELECT id, tenant_id, name, description, tags, department, subdepartment, access_roles, access_scope, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND id = $2`

	doc, err := scanDocument(s.pool.QueryRow(ctx, query, tenantID, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", repository.ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) ListDocuments(ctx context.Context, tenantID string, limit, offset int) ([]document.Document, error) {
	const query = `
		SELECT id, tenant_id, name, description, tags, department, subdepartment, access_roles, access_scope, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	const query = `DELETE FROM documents WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", repository.ErrNotFound, documentID)
	}
	return nil
}

func (s *DocumentStore) CreateVersion(ctx context.Context, version *document.Version) error {
	const query = `
		INSERT INTO document_versions (id, document_id, tenant_id, version, storage_key, storage_type, format, size, checksum, chunking_strategy, chunk_size, chunk_overlap, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		version.ID, version.DocumentID, version.TenantID, version.Version,
		version.StorageKey, version.StorageType, version.Format, version.Size, version.Checksum,
		version.ChunkingConfig.Strategy, version.ChunkingConfig.ChunkSize, version.ChunkingConfig.Overlap,
		version.Status, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *DocumentStore) GetVersion(ctx context.Context, tenantID, versionID string) (*document.Version, error) {
	const query = `
		SELECT id, document_id, tenant_id, version, storage_key, storage_type, format, size, checksum, chunking_strategy, chunk_size, chunk_overlap, status, created_at
		FROM document_versions
		WHERE tenant_id = $1 AND id = $2`

	ver, err := scanVersion(s.pool.QueryRow(ctx, query, tenantID, versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: version %s", repository.ErrNotFound, versionID)
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return ver, nil
}

func (s *DocumentStore) ListVersions(ctx context.Context, tenantID, documentID string) ([]document.Version, error) {
	const query = `
		SELECT id, document_id, tenant_id, version, storage_key, storage_type, format, size, checksum, chunking_strategy, chunk_size, chunk_overlap, status, created_at
		FROM document_versions
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY version DESC`

	rows, err := s.pool.Query(ctx, query, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]document.Version, 0)
	for rows.Next() {
		ver, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *ver)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func (s *DocumentStore) DeleteVersion(ctx context.Context, tenantID, versionID string) error {
	const query = `DELETE FROM document_versions WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, tenantID, versionID)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: version %s", repository.ErrNotFound, versionID)
	}
	return nil
}

func (s *DocumentStore) UpdateVersionStatus(ctx context.Context, tenantID, versionID string, status document.VersionStatus) error {
	const query = `
		UPDATE document_versions
		SET status = $3
		WHERE tenant_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, tenantID, versionID, status)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: version %s", repository.ErrNotFound, versionID)
	}
	return nil
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		doc   document.Document
		scope []byte
	)
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.Name, &doc.Description, &doc.Tags,
		&doc.Department, &doc.Subdepartment, &doc.AccessRoles, &scope,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &doc.AccessScope); err != nil {
			return nil, fmt.Errorf("decode access scope: %w", err)
		}
	} else {
		doc.AccessScope = auth.AccessScope{}
	}
	return &doc, nil
}

func scanVersion(row pgx.Row) (*document.Version, error) {
	var ver document.Version
	if err := row.Scan(&ver.ID, &ver.DocumentID, &ver.TenantID, &ver.Version,
		&ver.StorageKey, &ver.StorageType, &ver.Format, &ver.Size, &ver.Checksum,
		&ver.ChunkingConfig.Strategy, &ver.ChunkingConfig.ChunkSize, &ver.ChunkingConfig.Overlap,
		&ver.Status, &ver.CreatedAt); err != nil {
		return nil, err
	}
	return &ver, nil
}

var _ repository.DocumentRepository = (*DocumentStore)(nil)
