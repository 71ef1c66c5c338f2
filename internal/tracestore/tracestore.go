package tracestore

import (
	"context"
	"math/rand"
	"sync"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/telemetry"
)

// TraceStore is an append-only store of execution traces plus priorities
// for PER sampling. One mutex serializes appends and priority updates
// together.
type TraceStore struct {
	store Store
	rng   *rand.Rand
	mu    sync.Mutex // serializes appends and priority updates
}

// New constructs a TraceStore. seed makes SampleByPriority reproducible;
// every seed, 0 included, is used as given.
func New(store Store, seed int64) *TraceStore {
	return &TraceStore{
		store: store,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Append records a new trace. Priority must be non-negative.
func (t *TraceStore) Append(ctx context.Context, trace *Trace) error {
	if trace.Priority < 0 {
		return core.NewFrameworkError("tracestore.Append", core.KindInvalidArgument, core.ErrInvalidArgument).WithID(trace.ID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.store.Put(ctx, trace)
	if err != nil {
		telemetry.Counter("tracestore.append", "result", "error")
		return err
	}
	telemetry.Counter("tracestore.append", "result", "ok")
	telemetry.Histogram("tracestore.sample.priority", trace.Priority)
	return nil
}

// UpdatePriority adjusts a trace's PER weight after a training step's
// loss is computed for it.
func (t *TraceStore) UpdatePriority(ctx context.Context, id string, priority float64) error {
	if priority < 0 {
		return core.NewFrameworkError("tracestore.UpdatePriority", core.KindInvalidArgument, core.ErrInvalidArgument).WithID(id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.SetPriority(ctx, id, priority)
}

// Get retrieves a single trace by id.
func (t *TraceStore) Get(ctx context.Context, id string) (*Trace, error) {
	return t.store.Get(ctx, id)
}

// SampleByPriority draws up to n traces without replacement with
// probability proportional to trace priority, implementing the PER batch
// sampling distribution used by SHGAT's trainOnExample loop.
func (t *TraceStore) SampleByPriority(ctx context.Context, n int) ([]*Trace, error) {
	if n <= 0 {
		return nil, nil
	}

	// Pull a generous candidate pool (bounded, so this stays cheap even
	// with a large trace history) and do weighted sampling in-process;
	// the store only needs to hand back an already priority-sorted pool.
	poolSize := n * 8
	if poolSize < 64 {
		poolSize = 64
	}
	ids, err := t.store.TopByPriority(ctx, poolSize)
	if err != nil {
		return nil, err
	}

	candidates := make([]*Trace, 0, len(ids))
	for _, id := range ids {
		trace, err := t.store.Get(ctx, id)
		if err != nil || trace == nil {
			continue
		}
		candidates = append(candidates, trace)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	return weightedSampleWithoutReplacement(t.rng, candidates, n), nil
}

// weightedSampleWithoutReplacement implements roulette-wheel selection:
// repeatedly pick an index with probability proportional to its weight,
// remove it, and renormalize. O(n*k) which is fine for PER batch sizes
// (spec default N=16).
func weightedSampleWithoutReplacement(rng *rand.Rand, candidates []*Trace, n int) []*Trace {
	pool := make([]*Trace, len(candidates))
	copy(pool, candidates)

	if n > len(pool) {
		n = len(pool)
	}
	out := make([]*Trace, 0, n)

	for len(out) < n && len(pool) > 0 {
		total := 0.0
		for _, c := range pool {
			total += weightOf(c)
		}
		if total <= 0 {
			// all remaining weights are zero: fall back to uniform pick
			idx := rng.Intn(len(pool))
			out = append(out, pool[idx])
			pool = append(pool[:idx], pool[idx+1:]...)
			continue
		}
		r := rng.Float64() * total
		cum := 0.0
		for i, c := range pool {
			cum += weightOf(c)
			if r <= cum {
				out = append(out, c)
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}
	return out
}

func weightOf(t *Trace) float64 {
	if t.Priority <= 0 {
		return 1e-6
	}
	return t.Priority
}
