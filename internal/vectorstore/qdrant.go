package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("knowledged.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// VectorSize is the dimensionality of stored embeddings. MUST
	// match the embedding provider's output dimensions.
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration, doubled per retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB, to handle large ingestion batches.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// IsTransientError checks if an error is transient and worth retrying.
// Returns true for network timeouts and temporary unavailability,
// false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client. Each
// tenant gets its own collection named tenant_<id>, so a search can
// never read another tenant's points regardless of filters.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// partitions caches known-existing collection names.
	partitions sync.Map
}

// NewQdrantIndex creates a QdrantIndex and verifies connectivity with a
// health check.
func NewQdrantIndex(config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, enable TLS for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client: client,
		config: config,
		logger: logger.Named("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return idx, nil
}

// Close closes the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient gRPC failures.
func (q *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := q.config.RetryBackoff

	for attempt := 0; attempt <= q.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		if attempt == q.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, q.config.MaxRetries, err)
		}

		q.logger.Debug("retrying after transient failure",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// EnsurePartition creates the tenant's collection if it does not
// already exist. Idempotent and safe to call on every ingestion.
func (q *QdrantIndex) EnsurePartition(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsurePartition")
	defer span.End()

	name, err := PartitionName(tenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("partition", name))

	if _, ok := q.partitions.Load(name); ok {
		return nil
	}

	var exists bool
	err = q.retryOperation(ctx, "collection_exists", func() error {
		ok, err := q.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking partition %s: %w", name, err)
	}

	if !exists {
		err = q.retryOperation(ctx, "create_collection", func() error {
			return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     q.config.VectorSize,
					Distance: q.config.Distance,
				}),
			})
		})
		if err != nil {
			// A concurrent EnsurePartition may have won the race.
			if alreadyExists(err) {
				q.partitions.Store(name, true)
				span.SetStatus(codes.Ok, "exists")
				return nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating partition %s: %w", name, err)
		}
		q.logger.Info("created tenant partition", zap.String("partition", name))
	}

	q.partitions.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

func alreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}

// Upsert inserts or replaces points in the tenant's collection, waiting
// for the write to be applied so a following search sees it.
func (q *QdrantIndex) Upsert(ctx context.Context, tenantID string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()

	name, err := PartitionName(tenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("partition", name),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: pointPayload(p),
		}
	}

	err = q.retryOperation(ctx, "upsert", func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         qdrantPoints,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into partition %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns the closest points to the vector within the tenant's
// collection. Hit order is the index's own score order.
func (q *QdrantIndex) Search(ctx context.Context, tenantID string, vector []float32, params SearchParams) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Search")
	defer span.End()

	name, err := PartitionName(tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("partition", name),
		attribute.Int("limit", params.Limit),
	)

	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", params.Limit)
	}
	if len(vector) != int(q.config.VectorSize) {
		return nil, fmt.Errorf("vector has %d dimensions, index expects %d", len(vector), q.config.VectorSize)
	}

	query := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(params.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         translateFilter(params.Filter),
	}
	if params.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(params.ScoreThreshold)
	}

	var scored []*qdrant.ScoredPoint
	err = q.retryOperation(ctx, "search", func() error {
		res, err := q.client.Query(ctx, query)
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
				// No partition means no documents were ever ingested
				// for this tenant. An empty result, not a failure.
				scored = nil
				return nil
			}
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching partition %s: %w", name, err)
	}

	hits := make([]Hit, len(scored))
	for i, point := range scored {
		hits[i] = hitFromScored(point)
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// DeleteWhere removes all points matching the filter from the tenant's
// collection.
func (q *QdrantIndex) DeleteWhere(ctx context.Context, tenantID string, filter Filter) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeleteWhere")
	defer span.End()

	name, err := PartitionName(tenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("partition", name))

	if filter.IsEmpty() {
		return fmt.Errorf("refusing to delete with empty filter, use DeletePartition")
	}

	err = q.retryOperation(ctx, "delete_where", func() error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: translateFilter(filter),
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from partition %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeletePartition removes the tenant's collection entirely. Used when a
// tenant is offboarded.
func (q *QdrantIndex) DeletePartition(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeletePartition")
	defer span.End()

	name, err := PartitionName(tenantID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("partition", name))

	err = q.retryOperation(ctx, "delete_collection", func() error {
		return q.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting partition %s: %w", name, err)
	}

	q.partitions.Delete(name)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
