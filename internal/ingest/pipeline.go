// Package ingest runs the document ingestion pipeline: persist the
// raw file, record the document and version, chunk, embed in bounded
// parallel batches, index and finalize the version status.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/knowledged/internal/audit"
	"github.com/fyrsmithlabs/knowledged/internal/auth"
	"github.com/fyrsmithlabs/knowledged/internal/document"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/filestore"
	"github.com/fyrsmithlabs/knowledged/internal/repository"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var tracer = otel.Tracer("knowledged.ingest")

// Sentinel errors for ingestion.
var (
	// ErrInvalidInput indicates unusable ingestion input.
	ErrInvalidInput = errors.New("invalid ingestion input")
)

// Config bounds the pipeline's embedding fan-out. Batches within a
// group run concurrently; groups run strictly in sequence, so peak
// concurrent embedding requests are ParallelBatches batches of
// BatchSize chunks.
type Config struct {
	// BatchSize is the number of chunks per embedding request.
	// Default 15.
	BatchSize int

	// ParallelBatches is the number of batches embedded concurrently
	// within one group. Default 3.
	ParallelBatches int

	// EmbedTimeout bounds one batch embedding call. A timed-out batch
	// falls back to placeholder vectors instead of aborting the
	// pipeline. Default 30s.
	EmbedTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 15
	}
	if c.ParallelBatches <= 0 {
		c.ParallelBatches = 3
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
}

// Input describes one document revision to ingest.
type Input struct {
	// DocumentID targets an existing document for a new version.
	// Empty creates a new document.
	DocumentID string

	// Name names a newly created document.
	Name string

	// Description describes a newly created document.
	Description string

	// Content is the text to chunk and embed.
	Content string

	// Raw is the original file body persisted to the file store.
	// Defaults to Content's bytes.
	Raw []byte

	// Format is the file extension, e.g. "md" or "txt".
	Format string

	// Tags label a newly created document.
	Tags []string

	// Scope overrides the access scope derived from the caller.
	Scope *auth.AccessScope

	// AccessRoles overrides the roles allowed to read the document.
	// Defaults to the caller's roles.
	AccessRoles []string

	// Chunking overrides the default chunking configuration.
	Chunking *document.ChunkingConfig
}

// Receipt reports a completed ingestion.
type Receipt struct {
	DocumentID string                 `json:"documentId"`
	VersionID  string                 `json:"versionId"`
	ChunkCount int                    `json:"chunksCount"`
	Status     document.VersionStatus `json:"status"`
}

// Pipeline wires the ingestion ports together.
type Pipeline struct {
	config   Config
	files    filestore.Store
	docs     repository.DocumentRepository
	chunks   repository.ChunkRepository
	provider embeddings.Provider
	index    vectorstore.Index
	audit    audit.Sink
	metrics  *embeddings.Metrics
	logger   *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	config Config,
	files filestore.Store,
	docs repository.DocumentRepository,
	chunks repository.ChunkRepository,
	provider embeddings.Provider,
	index vectorstore.Index,
	auditSink audit.Sink,
	logger *zap.Logger,
) *Pipeline {
	config.ApplyDefaults()
	if auditSink == nil {
		auditSink = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:   config,
		files:    files,
		docs:     docs,
		chunks:   chunks,
		provider: provider,
		index:    index,
		audit:    auditSink,
		metrics:  embeddings.NewMetrics(logger),
		logger:   logger.Named("ingest"),
	}
}

// Ingest runs the full pipeline for one document revision. The file
// store write happens first so a failure there leaves no database
// state; once the version record exists, any later failure marks it
// failed rather than leaving it processing forever.
func (p *Pipeline) Ingest(ctx context.Context, actx auth.Context, input Input) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Ingest")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", actx.TenantID))

	if err := validateInput(actx, input); err != nil {
		span.RecordError(err)
		return nil, err
	}

	chunking := document.DefaultChunkingConfig()
	if input.Chunking != nil {
		chunking = *input.Chunking
	}
	if err := chunking.Validate(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	raw := input.Raw
	if raw == nil {
		raw = []byte(input.Content)
	}

	versionID := uuid.New().String()
	storageKey := fmt.Sprintf("%s/documents/%s.%s", actx.TenantID, versionID, input.Format)

	if _, err := p.files.Save(ctx, storageKey, raw, map[string]string{
		"tenantId": actx.TenantID,
		"format":   input.Format,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file store save failed")
		return nil, fmt.Errorf("saving file: %w", err)
	}

	doc, err := p.resolveDocument(ctx, actx, input)
	if err != nil {
		_ = p.files.Delete(ctx, storageKey)
		span.RecordError(err)
		return nil, err
	}

	versionNumber, err := p.nextVersionNumber(ctx, actx.TenantID, doc.ID)
	if err != nil {
		_ = p.files.Delete(ctx, storageKey)
		span.RecordError(err)
		return nil, err
	}

	sum := sha256.Sum256(raw)
	version := &document.Version{
		ID:             versionID,
		DocumentID:     doc.ID,
		TenantID:       actx.TenantID,
		Version:        versionNumber,
		StorageKey:     storageKey,
		StorageType:    "local",
		Format:         input.Format,
		Size:           int64(len(raw)),
		Checksum:       hex.EncodeToString(sum[:]),
		ChunkingConfig: chunking,
		Status:         document.StatusProcessing,
	}
	if err := p.docs.CreateVersion(ctx, version); err != nil {
		_ = p.files.Delete(ctx, storageKey)
		span.RecordError(err)
		return nil, fmt.Errorf("creating version: %w", err)
	}

	receipt, err := p.process(ctx, actx, doc, version, input.Content)
	if err != nil {
		if statusErr := p.docs.UpdateVersionStatus(ctx, actx.TenantID, versionID, document.StatusFailed); statusErr != nil {
			p.logger.Error("failed to mark version failed",
				zap.String("version_id", versionID),
				zap.Error(statusErr))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	event := audit.NewEvent(actx.TenantID, actx.UserID, audit.ActionIngest)
	event.Resource = "document:" + doc.ID
	event.Detail = map[string]any{
		"version_id":  versionID,
		"chunk_count": receipt.ChunkCount,
		"status":      string(receipt.Status),
	}
	p.audit.Log(ctx, event)

	span.SetAttributes(
		attribute.Int("chunk_count", receipt.ChunkCount),
		attribute.String("status", string(receipt.Status)),
	)
	span.SetStatus(codes.Ok, "success")
	return receipt, nil
}

func validateInput(actx auth.Context, input Input) error {
	if actx.TenantID == "" {
		return fmt.Errorf("%w: tenant ID required", ErrInvalidInput)
	}
	if input.Content == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}
	if input.DocumentID == "" && input.Name == "" {
		return fmt.Errorf("%w: name required for a new document", ErrInvalidInput)
	}
	if input.Format == "" {
		return fmt.Errorf("%w: format required", ErrInvalidInput)
	}
	return nil
}

// resolveDocument loads the target document or creates a new one with
// scope and roles defaulted from the caller.
func (p *Pipeline) resolveDocument(ctx context.Context, actx auth.Context, input Input) (*document.Document, error) {
	if input.DocumentID != "" {
		doc, err := p.docs.GetDocument(ctx, actx.TenantID, input.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("loading document: %w", err)
		}
		return doc, nil
	}

	scope := auth.ScopeFromContext(actx)
	if input.Scope != nil {
		scope = *input.Scope
	}
	roles := input.AccessRoles
	if roles == nil {
		roles = actx.Roles
	}

	doc := &document.Document{
		ID:            uuid.New().String(),
		TenantID:      actx.TenantID,
		Name:          input.Name,
		Description:   input.Description,
		Tags:          input.Tags,
		Department:    scope.Department,
		Subdepartment: scope.Subdepartment,
		AccessRoles:   roles,
		AccessScope:   scope,
	}
	if err := p.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return doc, nil
}

func (p *Pipeline) nextVersionNumber(ctx context.Context, tenantID, documentID string) (int, error) {
	versions, err := p.docs.ListVersions(ctx, tenantID, documentID)
	if err != nil {
		return 0, fmt.Errorf("listing versions: %w", err)
	}
	highest := 0
	for _, v := range versions {
		if v.Version > highest {
			highest = v.Version
		}
	}
	return highest + 1, nil
}

// process chunks, embeds, indexes and persists one version's content.
func (p *Pipeline) process(ctx context.Context, actx auth.Context, doc *document.Document, version *document.Version, content string) (*Receipt, error) {
	texts, err := version.ChunkingConfig.Split(content)
	if err != nil {
		return nil, fmt.Errorf("chunking content: %w", err)
	}

	vectors, degraded := p.embedAll(ctx, texts)

	anyDegraded := false
	points := make([]vectorstore.Point, len(texts))
	chunks := make([]document.Chunk, len(texts))
	for i, text := range texts {
		chunkID := uuid.New().String()
		if degraded[i] {
			anyDegraded = true
		}
		points[i] = vectorstore.Point{
			ID:      chunkID,
			Vector:  vectors[i],
			Content: text,
			Scope:   doc.AccessScope,
			Metadata: vectorstore.PointMetadata{
				DocumentID:        doc.ID,
				DocumentVersionID: version.ID,
				DocumentName:      doc.Name,
				Position:          i,
				Format:            version.Format,
				Degraded:          degraded[i],
			},
		}
		chunks[i] = document.Chunk{
			ID:        chunkID,
			VersionID: version.ID,
			ChunkID:   chunkID,
			Text:      text,
			Position:  i,
			Metadata: map[string]any{
				"documentId":        doc.ID,
				"documentVersionId": version.ID,
			},
			AccessScope: doc.AccessScope,
			Degraded:    degraded[i],
		}
	}

	if err := p.index.EnsurePartition(ctx, actx.TenantID); err != nil {
		return nil, fmt.Errorf("ensuring partition: %w", err)
	}
	if err := p.index.Upsert(ctx, actx.TenantID, points); err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}
	if err := p.chunks.InsertChunks(ctx, actx.TenantID, chunks); err != nil {
		return nil, fmt.Errorf("persisting chunks: %w", err)
	}

	status := document.StatusCompleted
	if anyDegraded {
		status = document.StatusCompletedDegraded
		p.logger.Warn("version completed with degraded chunks",
			zap.String("version_id", version.ID),
			zap.Int("chunk_count", len(chunks)))
	}
	if err := p.docs.UpdateVersionStatus(ctx, actx.TenantID, version.ID, status); err != nil {
		return nil, fmt.Errorf("finalizing version: %w", err)
	}

	return &Receipt{
		DocumentID: doc.ID,
		VersionID:  version.ID,
		ChunkCount: len(chunks),
		Status:     status,
	}, nil
}

// DeleteVersion removes one ingested revision: its vectors, its chunk
// records, its stored file and finally the version record itself. The
// vector and chunk deletes come first so a partial failure leaves the
// version visible but never leaves orphaned retrievable chunks.
func (p *Pipeline) DeleteVersion(ctx context.Context, actx auth.Context, documentID, versionID string) error {
	ctx, span := tracer.Start(ctx, "Pipeline.DeleteVersion")
	defer span.End()

	version, err := p.docs.GetVersion(ctx, actx.TenantID, versionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if version.DocumentID != documentID {
		return fmt.Errorf("%w: version %s", repository.ErrNotFound, versionID)
	}

	if err := p.index.DeleteWhere(ctx, actx.TenantID, vectorstore.Filter{
		DocumentVersionIDs: []string{versionID},
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting vectors: %w", err)
	}
	if err := p.chunks.DeleteByVersion(ctx, actx.TenantID, versionID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := p.files.Delete(ctx, version.StorageKey); err != nil {
		// An orphaned file is harmless; the record delete still runs.
		p.logger.Warn("failed to delete stored file",
			zap.String("storage_key", version.StorageKey),
			zap.Error(err))
	}
	if err := p.docs.DeleteVersion(ctx, actx.TenantID, versionID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting version record: %w", err)
	}

	event := audit.NewEvent(actx.TenantID, actx.UserID, audit.ActionDeleteVersion)
	event.Resource = "document:" + documentID
	event.Detail = map[string]any{"version_id": versionID}
	p.audit.Log(ctx, event)
	return nil
}

// DeleteDocument removes a document and every ingested revision under
// it, including vectors, chunks and stored files.
func (p *Pipeline) DeleteDocument(ctx context.Context, actx auth.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "Pipeline.DeleteDocument")
	defer span.End()

	if _, err := p.docs.GetDocument(ctx, actx.TenantID, documentID); err != nil {
		span.RecordError(err)
		return err
	}
	versions, err := p.docs.ListVersions(ctx, actx.TenantID, documentID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("listing versions: %w", err)
	}

	if err := p.index.DeleteWhere(ctx, actx.TenantID, vectorstore.Filter{
		DocumentIDs: []string{documentID},
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting vectors: %w", err)
	}
	for _, v := range versions {
		if err := p.chunks.DeleteByVersion(ctx, actx.TenantID, v.ID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deleting chunks of version %s: %w", v.ID, err)
		}
		if err := p.files.Delete(ctx, v.StorageKey); err != nil {
			p.logger.Warn("failed to delete stored file",
				zap.String("storage_key", v.StorageKey),
				zap.Error(err))
		}
	}
	if err := p.docs.DeleteDocument(ctx, actx.TenantID, documentID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting document record: %w", err)
	}

	event := audit.NewEvent(actx.TenantID, actx.UserID, audit.ActionDeleteDocument)
	event.Resource = "document:" + documentID
	event.Detail = map[string]any{"version_count": len(versions)}
	p.audit.Log(ctx, event)
	return nil
}

// embedAll embeds every chunk text, preserving positions. Chunks are
// cut into batches of BatchSize; batches run in groups of
// ParallelBatches, groups strictly in sequence. A failed or timed-out
// batch falls back to deterministic placeholder vectors and flags its
// chunks degraded instead of failing the pipeline.
func (p *Pipeline) embedAll(ctx context.Context, texts []string) ([][]float32, []bool) {
	vectors := make([][]float32, len(texts))
	degraded := make([]bool, len(texts))
	if len(texts) == 0 {
		return vectors, degraded
	}

	type batch struct {
		start int
		texts []string
	}
	batches := make([]batch, 0, (len(texts)+p.config.BatchSize-1)/p.config.BatchSize)
	for start := 0; start < len(texts); start += p.config.BatchSize {
		end := start + p.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	dimension := p.provider.Dimension()

	for groupStart := 0; groupStart < len(batches); groupStart += p.config.ParallelBatches {
		groupEnd := groupStart + p.config.ParallelBatches
		if groupEnd > len(batches) {
			groupEnd = len(batches)
		}

		// Batches write disjoint position ranges, so no locking is
		// needed; the group barrier below keeps groups sequential.
		g, groupCtx := errgroup.WithContext(ctx)
		for _, b := range batches[groupStart:groupEnd] {
			b := b
			g.Go(func() error {
				batchCtx, cancel := context.WithTimeout(groupCtx, p.config.EmbedTimeout)
				defer cancel()

				embedded, err := p.provider.EmbedDocuments(batchCtx, b.texts)
				if err != nil {
					p.logger.Warn("batch embedding failed, using fallback vectors",
						zap.Int("batch_start", b.start),
						zap.Int("batch_size", len(b.texts)),
						zap.Error(err))
					for i, text := range b.texts {
						vectors[b.start+i] = embeddings.FallbackVector(text, dimension)
						degraded[b.start+i] = true
						p.metrics.RecordFallback(ctx, "unknown")
					}
					return nil
				}
				for i := range b.texts {
					vectors[b.start+i] = embedded[i]
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	return vectors, degraded
}
