// Package qdrant mirrors persisted paper embeddings into a Qdrant collection
// and serves similarity queries from it.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// Payload keys stored with every point.
const (
	PayloadDomain = "domain"
	PayloadDOI    = "doi"
	PayloadTitle  = "title"
	PayloadYear   = "year"
)

// DefaultUpsertBatch bounds the number of points sent per upsert call.
const DefaultUpsertBatch = 64

// Config holds the configuration for connecting to a Qdrant instance.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	// VectorSize must equal the embedding dimension.
	VectorSize uint64
}

// Validate checks that all required Config fields are set.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("qdrant config: host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("qdrant config: invalid port %d", c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("qdrant config: collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("qdrant config: vector size must be > 0")
	}
	return nil
}

// PaperPoint is one paper's embedding plus the payload used for filtering.
type PaperPoint struct {
	PaperID   uuid.UUID
	Embedding []float32
	Domain    string
	DOI       string
	Title     string
	Year      int
}

// PointFromPaper builds the point for an embedded paper.
func PointFromPaper(p *domain.CanonicalPaper) PaperPoint {
	return PaperPoint{
		PaperID:   p.ID,
		Embedding: p.Embedding,
		Domain:    p.Domain,
		DOI:       domain.NormalizeDOI(p.DOI),
		Title:     p.Title,
		Year:      p.Year,
	}
}

func (p PaperPoint) payload() map[string]*pb.Value {
	payload := map[string]any{
		PayloadDomain: p.Domain,
		PayloadTitle:  p.Title,
	}
	if p.DOI != "" {
		payload[PayloadDOI] = p.DOI
	}
	if p.Year != 0 {
		payload[PayloadYear] = int64(p.Year)
	}
	return pb.NewValueMap(payload)
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	PaperID uuid.UUID
	// Score is the cosine similarity; higher is more similar.
	Score float32
}

// VectorStore is the subset of Qdrant operations the curator uses.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []PaperPoint) error
	// Search returns the limit nearest points, restricted to domainName
	// unless it is empty.
	Search(ctx context.Context, vector []float32, domainName string, limit uint64) ([]SearchResult, error)
	Close() error
}

var _ VectorStore = (*Client)(nil)

// Client implements VectorStore over Qdrant's gRPC API.
type Client struct {
	client         *pb.Client
	collectionName string
	vectorSize     uint64
}

// NewClient creates a client. The connection is established lazily.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	qdrantClient, err := pb.NewClient(&pb.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &Client{
		client:         qdrantClient,
		collectionName: cfg.CollectionName,
		vectorSize:     cfg.VectorSize,
	}, nil
}

// EnsureCollection creates the collection with cosine distance and a keyword
// index on the domain payload when it does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     c.vectorSize,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", c.collectionName, err)
	}

	wait := true
	_, err = c.client.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: c.collectionName,
		Wait:           &wait,
		FieldName:      PayloadDomain,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s payload: %w", PayloadDomain, err)
	}
	return nil
}

// Upsert writes points in batches. The paper id is the point id, so
// repeating an upsert replaces the point.
func (c *Client) Upsert(ctx context.Context, points []PaperPoint) error {
	wait := true
	for start := 0; start < len(points); start += DefaultUpsertBatch {
		end := min(start+DefaultUpsertBatch, len(points))

		structs := make([]*pb.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			if uint64(len(p.Embedding)) != c.vectorSize {
				return fmt.Errorf("qdrant: point %s has dimension %d, want %d", p.PaperID, len(p.Embedding), c.vectorSize)
			}
			structs = append(structs, &pb.PointStruct{
				Id:      pb.NewIDUUID(p.PaperID.String()),
				Vectors: pb.NewVectors(p.Embedding...),
				Payload: p.payload(),
			})
		}

		if _, err := c.client.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: c.collectionName,
			Wait:           &wait,
			Points:         structs,
		}); err != nil {
			return fmt.Errorf("qdrant: failed to upsert %d points: %w", len(structs), err)
		}
	}
	return nil
}

// Search performs a filtered nearest-neighbour query.
func (c *Client) Search(ctx context.Context, vector []float32, domainName string, limit uint64) ([]SearchResult, error) {
	query := &pb.QueryPoints{
		CollectionName: c.collectionName,
		Query:          pb.NewQueryDense(vector),
		Limit:          &limit,
	}
	if domainName != "" {
		query.Filter = &pb.Filter{
			Must: []*pb.Condition{pb.NewMatch(PayloadDomain, domainName)},
		}
	}

	scored, err := c.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	return toResults(scored)
}

func toResults(scored []*pb.ScoredPoint) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(scored))
	for _, sp := range scored {
		uuidStr := sp.GetId().GetUuid()
		if uuidStr == "" {
			continue
		}
		paperID, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid UUID in search result %q: %w", uuidStr, err)
		}
		results = append(results, SearchResult{PaperID: paperID, Score: sp.GetScore()})
	}
	return results, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Mirror copies embedded papers into a VectorStore after they are committed.
// Mirror failures are logged and reported but never undo the commit.
type Mirror struct {
	store  VectorStore
	logger zerolog.Logger
}

// NewMirror wraps store.
func NewMirror(store VectorStore, logger zerolog.Logger) *Mirror {
	return &Mirror{store: store, logger: logger.With().Str("component", "qdrant_mirror").Logger()}
}

// MirrorPapers upserts every paper that carries an embedding and returns the
// number of points written.
func (m *Mirror) MirrorPapers(ctx context.Context, papers []*domain.CanonicalPaper) (int, error) {
	points := make([]PaperPoint, 0, len(papers))
	for _, p := range papers {
		if len(p.Embedding) == 0 || p.Lifecycle != domain.LifecyclePersisted {
			continue
		}
		points = append(points, PointFromPaper(p))
	}
	if len(points) == 0 {
		return 0, nil
	}
	if err := m.store.Upsert(ctx, points); err != nil {
		m.logger.Warn().Err(err).Int("points", len(points)).Msg("vector mirror upsert failed")
		return 0, err
	}
	m.logger.Debug().Int("points", len(points)).Msg("mirrored embeddings")
	return len(points), nil
}
