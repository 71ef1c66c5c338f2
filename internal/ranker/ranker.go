package ranker

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/telemetry"
)

// Ranker is SHGAT's public surface: Rank is called by many concurrent
// readers (the gateway's suggestion mode scoring stored capabilities); Train is
// called by exactly one background trainer consuming sampled traces. A
// single RWMutex enforces that discipline: Rank takes RLock, Train takes
// Lock.
type Ranker struct {
	mu           sync.RWMutex
	model        *model
	logger       core.Logger
	learningRate float64
}

// Config controls the attention model's shape.
type Config struct {
	Heads        int
	Dim          int
	HeadDim      int
	Seed         int64
	LearningRate float64
}

func DefaultConfig(dim int) Config {
	return Config{Heads: 4, Dim: dim, HeadDim: 16, Seed: 1, LearningRate: 0.05}
}

// New constructs a Ranker with freshly initialized (untrained) weights.
func New(cfg Config, logger core.Logger) *Ranker {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/ranker")
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.05
	}
	return &Ranker{
		model:        newModel(cfg.Heads, cfg.Dim, cfg.HeadDim, newSeededRand(cfg.Seed)),
		logger:       logger,
		learningRate: lr,
	}
}

// Rank scores every candidate against the intent embedding and returns
// them sorted by fused score descending. Ties are broken by successRate
// descending, then fqdn ascending, for deterministic output.
func (r *Ranker) Rank(ctx context.Context, intentEmbedding []float32, candidates []Candidate) []Scored {
	r.mu.RLock()
	defer r.mu.RUnlock()

	embeddings := make([][]float32, len(candidates))
	for i, c := range candidates {
		embeddings[i] = c.Embedding
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		attn := r.model.attentionScore(intentEmbedding, embeddings, i)
		out[i] = Scored{
			Candidate:      c,
			AttentionScore: attn,
			FusedScore:     r.model.fuse(attn, c.SuccessRate),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].FQDN < out[j].FQDN
	})

	telemetry.Counter("ranker.rank", "candidates", strconv.Itoa(len(candidates)))
	return out
}

// Train applies one PER-weighted update per example. Callers are expected
// to be a single background trainer; concurrent Train calls are safe but
// serialize through the write lock.
func (r *Ranker) Train(ctx context.Context, examples []TrainingExample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ex := range examples {
		r.model.trainOn(ex, r.learningRate)
	}
	telemetry.Counter("ranker.train", "examples", strconv.Itoa(len(examples)))
	if r.logger != nil {
		r.logger.Debug("ranker training step applied", map[string]interface{}{"examples": len(examples)})
	}
}

// Export returns a deep-copyable snapshot of the current weights for
// checkpointing.
func (r *Ranker) Export() Parameters {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model.export()
}

// Import replaces the current weights with a previously exported
// snapshot, taking the write lock so no reader observes a half-applied
// import.
func (r *Ranker) Import(p Parameters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model.importFrom(p)
}

