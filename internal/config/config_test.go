package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KNOWLEDGED_DATABASE_URL", "postgres://localhost:5432/knowledged")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, 768, cfg.Qdrant.VectorSize)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, 15, cfg.Ingest.BatchSize)
	assert.Equal(t, 3, cfg.Ingest.ParallelBatches)
	assert.Equal(t, "log", cfg.Audit.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Policy.DefaultDeny, "no-match requests allow unless tenants opt in to deny")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
database:
  url: postgres://localhost:5432/knowledged
ingest:
  batch_size: 5
  parallel_batches: 2
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ingest.BatchSize)
	assert.Equal(t, 2, cfg.Ingest.ParallelBatches)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9001
database:
  url: postgres://localhost:5432/knowledged
`), 0600))

	t.Setenv("KNOWLEDGED_SERVER_PORT", "9002")
	t.Setenv("KNOWLEDGED_INGEST_BATCH_SIZE", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Ingest.BatchSize)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	_, err := Load("")
	assert.ErrorContains(t, err, "database url")
}

func TestLoadDimensionMismatch(t *testing.T) {
	t.Setenv("KNOWLEDGED_DATABASE_URL", "postgres://localhost:5432/knowledged")
	t.Setenv("KNOWLEDGED_QDRANT_VECTOR_SIZE", "384")

	_, err := Load("")
	assert.ErrorContains(t, err, "does not match embeddings dimension")
}

func TestLoadUnknownAuditBackend(t *testing.T) {
	t.Setenv("KNOWLEDGED_DATABASE_URL", "postgres://localhost:5432/knowledged")
	t.Setenv("KNOWLEDGED_AUDIT_BACKEND", "kafka")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown audit backend")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
