package ranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates() []Candidate {
	return []Candidate{
		{FQDN: "org.proj.fs.read.aa11", Embedding: []float32{1, 0, 0, 0}, SuccessRate: 0.9},
		{FQDN: "org.proj.fs.write.bb22", Embedding: []float32{0, 1, 0, 0}, SuccessRate: 0.2},
	}
}

func TestRankReturnsAllCandidatesSortedDescending(t *testing.T) {
	r := New(DefaultConfig(4), nil)
	out := r.Rank(context.Background(), []float32{1, 0, 0, 0}, candidates())
	require.Len(t, out, 2)
	assert.GreaterOrEqual(t, out[0].FusedScore, out[1].FusedScore)
}

func TestRankTieBreaksBySuccessRateThenFQDN(t *testing.T) {
	r := New(DefaultConfig(4), nil)
	tied := []Candidate{
		{FQDN: "z.z.z.z.zzzz", Embedding: []float32{1, 0, 0, 0}, SuccessRate: 0.5},
		{FQDN: "a.a.a.a.aaaa", Embedding: []float32{1, 0, 0, 0}, SuccessRate: 0.5},
	}
	out := r.Rank(context.Background(), []float32{1, 0, 0, 0}, tied)
	require.Len(t, out, 2)
	assert.Equal(t, "a.a.a.a.aaaa", out[0].FQDN)
}

func TestTrainShiftsScoreTowardSuccessfulCandidate(t *testing.T) {
	r := New(DefaultConfig(4), nil)
	intent := []float32{1, 0, 0, 0}
	cands := candidates()

	before := r.Rank(context.Background(), intent, cands)
	beforeScore := scoreFor(before, "org.proj.fs.read.aa11")

	for i := 0; i < 50; i++ {
		r.Train(context.Background(), []TrainingExample{
			{IntentEmbedding: intent, Candidates: cands, ChosenIndex: 0, Success: true, Priority: 1},
		})
	}

	after := r.Rank(context.Background(), intent, cands)
	afterScore := scoreFor(after, "org.proj.fs.read.aa11")

	assert.GreaterOrEqual(t, afterScore, beforeScore)
}

func TestExportImportRoundTripsWeights(t *testing.T) {
	r := New(DefaultConfig(4), nil)
	params := r.Export()

	r2 := New(DefaultConfig(4), nil)
	r2.Import(params)

	intent := []float32{1, 0, 0, 0}
	cands := candidates()
	out1 := r.Rank(context.Background(), intent, cands)
	out2 := r2.Rank(context.Background(), intent, cands)

	require.Len(t, out1, len(out2))
	for i := range out1 {
		assert.InDelta(t, out1[i].FusedScore, out2[i].FusedScore, 1e-9)
	}
}

func scoreFor(scored []Scored, fqdn string) float64 {
	for _, s := range scored {
		if s.FQDN == fqdn {
			return s.FusedScore
		}
	}
	return 0
}
