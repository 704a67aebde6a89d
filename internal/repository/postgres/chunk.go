package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/repository"
)

// ChunkStore implements repository.ChunkRepository.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore creates a ChunkStore on an existing pool.
func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

func (s *ChunkStore) InsertChunks(ctx context.Context, tenantID string, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	const query = `
		INSERT INTO document_chunks (id, version_id, tenant_id, chunk_id, text, position, metadata, access_scope, degraded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encode chunk metadata: %w", err)
		}
		scope, err := json.Marshal(chunk.AccessScope)
		if err != nil {
			return fmt.Errorf("encode chunk access scope: %w", err)
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		batch.Queue(query,
			chunk.ID, chunk.VersionID, tenantID, chunk.ChunkID,
			chunk.Text, chunk.Position, metadata, scope, chunk.Degraded, createdAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return nil
}

func (s *ChunkStore) ListByVersion(ctx context.Context, tenantID, versionID string) ([]document.Chunk, error) {
	const query = `
		SELECT id, version_id, chunk_id, text, position, metadata, access_scope, degraded, created_at
		FROM document_chunks
		WHERE tenant_id = $1 AND version_id = $2
		ORDER BY position ASC`

	rows, err := s.pool.Query(ctx, query, tenantID, versionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]document.Chunk, 0)
	for rows.Next() {
		var (
			chunk    document.Chunk
			metadata []byte
			scope    []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.VersionID, &chunk.ChunkID,
			&chunk.Text, &chunk.Position, &metadata, &scope, &chunk.Degraded, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		if len(scope) > 0 {
			if err := json.Unmarshal(scope, &chunk.AccessScope); err != nil {
				return nil, fmt.Errorf("decode chunk access scope: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func (s *ChunkStore) DeleteByVersion(ctx context.Context, tenantID, versionID string) error {
	const query = `DELETE FROM document_chunks WHERE tenant_id = $1 AND version_id = $2`

	if _, err := s.pool.Exec(ctx, query, tenantID, versionID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

var _ repository.ChunkRepository = (*ChunkStore)(nil)
