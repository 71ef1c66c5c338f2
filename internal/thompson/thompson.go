// Package thompson implements the Thompson Threshold Manager (C7): a
// per-tool Beta(alpha, beta) posterior over success probability, sampled
// to decide whether a tool is trusted enough to run without human
// approval.
package thompson

import (
	"context"
	"math/rand"
	"sync"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/telemetry"
	"gonum.org/v1/gonum/stat/distuv"
)

// Posterior is one tool's current Beta distribution parameters.
type Posterior struct {
	Alpha float64
	Beta  float64
}

// SuccessRate is the posterior mean, used for display/reporting only —
// decisions are made by sampling, not by this point estimate.
func (p Posterior) SuccessRate() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

// Manager tracks one posterior per tool id, guarded by a single mutex: a
// tool's posterior is small enough that per-tool locks would add
// bookkeeping overhead without a measurable concurrency benefit.
type Manager struct {
	mu          sync.Mutex
	posteriors  map[string]*Posterior
	rng         *rand.Rand
	priorAlpha  float64
	priorBeta   float64
	logger      core.Logger
}

// Config seeds the manager's prior and its random source.
type Config struct {
	PriorAlpha float64
	PriorBeta  float64
	Seed       int64
}

func DefaultConfig() Config {
	return Config{PriorAlpha: 1, PriorBeta: 1, Seed: 1}
}

func New(cfg Config, logger core.Logger) *Manager {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/thompson")
	}
	pa, pb := cfg.PriorAlpha, cfg.PriorBeta
	if pa <= 0 {
		pa = 1
	}
	if pb <= 0 {
		pb = 1
	}
	return &Manager{
		posteriors: make(map[string]*Posterior),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		priorAlpha: pa,
		priorBeta:  pb,
		logger:     logger,
	}
}

func (m *Manager) posteriorFor(toolID string) *Posterior {
	p, ok := m.posteriors[toolID]
	if !ok {
		p = &Posterior{Alpha: m.priorAlpha, Beta: m.priorBeta}
		m.posteriors[toolID] = p
	}
	return p
}

// Record updates toolID's posterior with one observed outcome.
func (m *Manager) Record(ctx context.Context, toolID string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.posteriorFor(toolID)
	if success {
		p.Alpha++
	} else {
		p.Beta++
	}
	telemetry.Counter("thompson.record", "tool", toolID, "success", boolLabel(success))
	telemetry.Gauge("thompson.success_rate", p.SuccessRate(), "tool", toolID)
}

// Sample draws one value from toolID's current Beta posterior. This is
// the primitive the approval gate uses: compare a sample against a
// threshold rather than comparing the posterior mean directly, so a tool
// with little evidence (wide posterior) is sampled pessimistically about
// as often as it is sampled optimistically.
func (m *Manager) Sample(ctx context.Context, toolID string) float64 {
	m.mu.Lock()
	p := *m.posteriorFor(toolID)
	m.mu.Unlock()

	beta := distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: m.rng}
	return beta.Rand()
}

// ShouldAutoApprove samples toolID's posterior and compares it against
// threshold: a higher sample means the manager currently believes the
// tool is more likely to succeed than threshold requires.
func (m *Manager) ShouldAutoApprove(ctx context.Context, toolID string, threshold float64) bool {
	sample := m.Sample(ctx, toolID)
	approved := sample >= threshold
	telemetry.Counter("thompson.gate", "tool", toolID, "approved", boolLabel(approved))
	return approved
}

// GetPosterior returns a copy of toolID's current posterior parameters.
func (m *Manager) GetPosterior(toolID string) Posterior {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.posteriorFor(toolID)
}

// Export snapshots every tracked tool's posterior for checkpointing.
func (m *Manager) Export() map[string]Posterior {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Posterior, len(m.posteriors))
	for id, p := range m.posteriors {
		out[id] = *p
	}
	return out
}

// Import replaces the tracked posteriors with a previously exported
// snapshot.
func (m *Manager) Import(snapshot map[string]Posterior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posteriors = make(map[string]*Posterior, len(snapshot))
	for id, p := range snapshot {
		cp := p
		m.posteriors[id] = &cp
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
