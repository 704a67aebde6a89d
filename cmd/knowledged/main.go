// Knowledged is a multi-tenant knowledge platform daemon: policy-gated
// retrieval over tenant-partitioned vector indexes, with a document
// ingestion pipeline that chunks, embeds and indexes content under
// access-scope ACLs.
//
// Configuration is loaded from an optional YAML file and KNOWLEDGED_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with environment configuration
//	KNOWLEDGED_DATABASE_URL=postgres://localhost/knowledged knowledged
//
//	# Start with a config file
//	knowledged -config /etc/knowledged/config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/audit"
	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/filestore"
	"github.com/fyrsmithlabs/knowledged/internal/ingest"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/rag"
	"github.com/fyrsmithlabs/knowledged/internal/repository/postgres"
	"github.com/fyrsmithlabs/knowledged/internal/server"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "knowledged: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	docs := postgres.NewDocumentStore(pool)
	chunks := postgres.NewChunkStore(pool)
	policies := postgres.NewPolicyStore(pool)

	var (
		auditSink audit.Sink
		history   server.AuditHistory
	)
	switch cfg.Audit.Backend {
	case "postgres":
		pgSink := audit.NewPostgresSink(pool, logger)
		auditSink = pgSink
		history = pgSink
	default:
		auditSink = audit.NewZapSink(logger)
	}

	index, err := vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		UseTLS:     cfg.Qdrant.UseTLS,
		VectorSize: uint64(cfg.Qdrant.VectorSize),
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}
	defer index.Close() //nolint:errcheck

	provider, err := embeddings.NewTEI(embeddings.TEIConfig{
		BaseURL:        cfg.Embeddings.BaseURL,
		Model:          cfg.Embeddings.Model,
		Dimension:      cfg.Embeddings.Dimension,
		RequestTimeout: cfg.Embeddings.RequestTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer provider.Close() //nolint:errcheck

	files, err := filestore.NewLocal(cfg.FileStore.Dir)
	if err != nil {
		return fmt.Errorf("opening file store: %w", err)
	}

	enabled, err := policies.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}
	engine, err := auth.NewEngine(enabled, auth.EngineConfig{DefaultAllow: !cfg.Policy.DefaultDeny}, logger)
	if err != nil {
		return fmt.Errorf("building policy engine: %w", err)
	}
	logger.Info("policy engine ready", zap.Int("policies", len(enabled)))

	retrieve := rag.NewEngine(provider, index, auditSink, logger)
	pipeline := ingest.NewPipeline(ingest.Config{
		BatchSize:       cfg.Ingest.BatchSize,
		ParallelBatches: cfg.Ingest.ParallelBatches,
		EmbedTimeout:    cfg.Ingest.EmbedTimeout,
	}, files, docs, chunks, provider, index, auditSink, logger)

	srv, err := server.NewServer(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, engine, retrieve, pipeline, docs, policies, auditSink, history, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
