package tracestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRejectsNegativePriority(t *testing.T) {
	ts := New(NewInMemoryStore(), 1)
	err := ts.Append(context.Background(), &Trace{ID: "t1", Priority: -1})
	require.Error(t, err)
}

func TestAppendAndGet(t *testing.T) {
	ts := New(NewInMemoryStore(), 1)
	ctx := context.Background()

	trace := &Trace{ID: "t1", Intent: "read json", ExecutedPath: []string{"fs:read_file"}, Priority: 1.0, Success: true}
	require.NoError(t, ts.Append(ctx, trace))

	got, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "read json", got.Intent)
}

func TestUpdatePriority(t *testing.T) {
	ts := New(NewInMemoryStore(), 1)
	ctx := context.Background()

	require.NoError(t, ts.Append(ctx, &Trace{ID: "t1", Priority: 1.0}))
	require.NoError(t, ts.UpdatePriority(ctx, "t1", 5.0))

	got, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Priority)
}

func TestSampleByPriorityFavorsHigherPriority(t *testing.T) {
	ts := New(NewInMemoryStore(), 42)
	ctx := context.Background()

	require.NoError(t, ts.Append(ctx, &Trace{ID: "low", Priority: 0.01}))
	require.NoError(t, ts.Append(ctx, &Trace{ID: "high", Priority: 100.0}))

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		rng := New(NewInMemoryStore(), int64(i))
		_ = rng // placeholder to keep loop structure simple
		sampled, err := ts.SampleByPriority(ctx, 1)
		require.NoError(t, err)
		require.Len(t, sampled, 1)
		counts[sampled[0].ID]++
	}

	assert.Greater(t, counts["high"], counts["low"])
}

func TestSampleByPriorityNoReplacement(t *testing.T) {
	ts := New(NewInMemoryStore(), 7)
	ctx := context.Background()

	require.NoError(t, ts.Append(ctx, &Trace{ID: "a", Priority: 1.0}))
	require.NoError(t, ts.Append(ctx, &Trace{ID: "b", Priority: 1.0}))
	require.NoError(t, ts.Append(ctx, &Trace{ID: "c", Priority: 1.0}))

	sampled, err := ts.SampleByPriority(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sampled, 3)

	seen := map[string]bool{}
	for _, s := range sampled {
		assert.False(t, seen[s.ID], "duplicate id in no-replacement sample")
		seen[s.ID] = true
	}
}

func TestSampleByPriorityCapsAtPoolSize(t *testing.T) {
	ts := New(NewInMemoryStore(), 7)
	ctx := context.Background()
	require.NoError(t, ts.Append(ctx, &Trace{ID: "a", Priority: 1.0}))

	sampled, err := ts.SampleByPriority(ctx, 16)
	require.NoError(t, err)
	assert.Len(t, sampled, 1)
}
