package vector

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/capgate/core"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex is the pluggable production backend for Index: a
// vector-similarity predicate backed by a real Qdrant collection instead of
// the in-process linear scan. It satisfies the same Index contract so
// callers (the registry's capability lookup, the ranker's candidate
// shortlist) don't know which backend is active.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        uint64
	logger     core.Logger
}

// QdrantConfig configures the connection to a Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  uint64
}

// NewQdrantIndex connects to Qdrant and ensures the configured collection
// exists with cosine distance, creating it if absent.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger core.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, core.NewFrameworkError("vector.NewQdrantIndex", core.KindToolUnavailable, err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dim:        cfg.Dimension,
		logger:     logger,
	}

	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return nil, core.NewFrameworkError("vector.NewQdrantIndex", core.KindToolUnavailable, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     cfg.Dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, core.NewFrameworkError("vector.NewQdrantIndex", core.KindToolUnavailable, err)
		}
		logger.Info("created qdrant collection", map[string]interface{}{
			"collection": cfg.Collection,
			"dimension":  cfg.Dimension,
		})
	}

	return idx, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, id string, v Vector) error {
	values := make([]float32, len(v))
	copy(values, v)

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(values...),
			},
		},
	})
	if err != nil {
		return core.NewFrameworkError("vector.Upsert", core.KindToolUnavailable, err).WithID(id)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewIDUUID(id)}),
	})
	if err != nil {
		return core.NewFrameworkError("vector.Delete", core.KindToolUnavailable, err).WithID(id)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, v Vector, topK int) ([]ScoredID, error) {
	if topK <= 0 {
		topK = 10
	}
	values := make([]float32, len(v))
	copy(values, v)
	limit := uint64(topK)

	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(values...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, core.NewFrameworkError("vector.Query", core.KindToolUnavailable, err)
	}

	hits := make([]ScoredID, 0, len(resp))
	for _, point := range resp {
		hits = append(hits, ScoredID{
			ID:    pointIDString(point.Id),
			Score: float64(point.Score),
		})
	}
	return hits, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}
