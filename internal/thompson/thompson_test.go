package thompson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordUpdatesPosterior(t *testing.T) {
	m := New(DefaultConfig(), nil)
	ctx := context.Background()

	m.Record(ctx, "fs:read_file", true)
	m.Record(ctx, "fs:read_file", true)
	m.Record(ctx, "fs:read_file", false)

	p := m.GetPosterior("fs:read_file")
	assert.Equal(t, 3.0, p.Alpha) // prior 1 + two successes
	assert.Equal(t, 2.0, p.Beta)  // prior 1 + one failure
}

func TestSuccessRateIsPosteriorMean(t *testing.T) {
	p := Posterior{Alpha: 3, Beta: 1}
	assert.InDelta(t, 0.75, p.SuccessRate(), 1e-9)
}

func TestShouldAutoApproveFavorsProvenTools(t *testing.T) {
	m := New(Config{PriorAlpha: 1, PriorBeta: 1, Seed: 42}, nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		m.Record(ctx, "proven", true)
		m.Record(ctx, "unproven", false)
	}

	provenApprovals := 0
	unprovenApprovals := 0
	for i := 0; i < 200; i++ {
		if m.ShouldAutoApprove(ctx, "proven", 0.5) {
			provenApprovals++
		}
		if m.ShouldAutoApprove(ctx, "unproven", 0.5) {
			unprovenApprovals++
		}
	}

	assert.Greater(t, provenApprovals, unprovenApprovals)
}

func TestExportImportRoundTrip(t *testing.T) {
	m := New(DefaultConfig(), nil)
	ctx := context.Background()
	m.Record(ctx, "fs:read_file", true)
	m.Record(ctx, "fs:write_file", false)

	snapshot := m.Export()

	m2 := New(DefaultConfig(), nil)
	m2.Import(snapshot)

	assert.Equal(t, m.GetPosterior("fs:read_file"), m2.GetPosterior("fs:read_file"))
	assert.Equal(t, m.GetPosterior("fs:write_file"), m2.GetPosterior("fs:write_file"))
}

func TestUntrackedToolUsesPrior(t *testing.T) {
	m := New(Config{PriorAlpha: 2, PriorBeta: 5, Seed: 1}, nil)
	p := m.GetPosterior("never_seen")
	assert.Equal(t, 2.0, p.Alpha)
	assert.Equal(t, 5.0, p.Beta)
}
