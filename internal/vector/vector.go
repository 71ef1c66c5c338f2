// Package vector implements the Embedding Provider contract: an opaque
// encode(text) -> vector function plus a cosine-similarity index. The
// gateway feeds Provider embeddings to the ranker; nothing in the gateway
// queries the index.
package vector

import (
	"context"
	"fmt"
	"math"

	"github.com/antigravity-dev/capgate/core"
	"gonum.org/v1/gonum/floats"
)

// Vector is a fixed-dimension ordered sequence of single-precision floats.
type Vector []float32

// Provider turns text into a Vector. The embedding model itself is an
// out-of-scope collaborator; this is its contract.
type Provider interface {
	Encode(ctx context.Context, text string) (Vector, error)
	Dimension() int
}

// StaticProvider is a deterministic, dependency-free Provider used when no
// real embedding model is configured (development mode, unit tests). It
// hashes each character, offset by its position, into a fixed-width vector
// and L2-normalizes the result, so
// cosine similarity behaves sanely without a trained model backing it.
type StaticProvider struct {
	dim int
}

// NewStaticProvider returns a Provider that produces normalized vectors of
// the given dimension from a simple per-character, position-offset hash.
func NewStaticProvider(dim int) *StaticProvider {
	if dim <= 0 {
		dim = 64
	}
	return &StaticProvider{dim: dim}
}

func (p *StaticProvider) Dimension() int { return p.dim }

func (p *StaticProvider) Encode(_ context.Context, text string) (Vector, error) {
	v := make([]float64, p.dim)
	for i, r := range text {
		idx := (int(r) + i) % p.dim
		v[idx] += 1.0
	}
	norm := floats.Norm(v, 2)
	out := make(Vector, p.dim)
	if norm == 0 {
		return out, nil
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out, nil
}

// Cosine returns the cosine similarity of two already-normalized vectors.
// Vectors of mismatched length (or empty ones) score 0 rather than
// panicking, since a capability's embedding dimension can drift if the
// provider is swapped mid-lifetime.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	af := make([]float64, len(a))
	bf := make([]float64, len(b))
	for i := range a {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	dot := floats.Dot(af, bf)
	na := floats.Norm(af, 2)
	nb := floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (na * nb)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// ScoredID is a single index hit.
type ScoredID struct {
	ID    string
	Score float64
}

// Index stores vectors keyed by an opaque id (a tool id or capability id)
// and answers nearest-neighbour queries by cosine similarity.
type Index interface {
	Upsert(ctx context.Context, id string, v Vector) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, v Vector, topK int) ([]ScoredID, error)
}

// InProcessIndex is a linear-scan cosine index. It is the default backend;
// it is correct at any scale but O(n) per query, which is acceptable for a
// single-node capability registry whose capability count is bounded by the
// process lifetime.
type InProcessIndex struct {
	vectors map[string]Vector
	logger  core.Logger
}

// NewInProcessIndex constructs an empty index.
func NewInProcessIndex(logger core.Logger) *InProcessIndex {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &InProcessIndex{
		vectors: make(map[string]Vector),
		logger:  logger,
	}
}

func (idx *InProcessIndex) Upsert(_ context.Context, id string, v Vector) error {
	idx.vectors[id] = v
	return nil
}

func (idx *InProcessIndex) Delete(_ context.Context, id string) error {
	delete(idx.vectors, id)
	return nil
}

func (idx *InProcessIndex) Query(_ context.Context, v Vector, topK int) ([]ScoredID, error) {
	if topK <= 0 {
		topK = 10
	}
	hits := make([]ScoredID, 0, len(idx.vectors))
	for id, stored := range idx.vectors {
		hits = append(hits, ScoredID{ID: id, Score: Cosine(v, stored)})
	}
	sortScoredDescending(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func sortScoredDescending(hits []ScoredID) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// ErrDimensionMismatch names a vector length that differs from an expected
// dimension. Nothing in this package returns it: Cosine scores mismatched
// lengths as 0 and InProcessIndex does not check dimensions.
var ErrDimensionMismatch = fmt.Errorf("vector: dimension mismatch")
