package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/graph"
)

func newTestSaver(t *testing.T) *Saver {
	t.Helper()
	saver, err := NewSaver(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { saver.Close() })
	return saver
}

func TestPutGetRoundTrip(t *testing.T) {
	saver := newTestSaver(t)
	ctx := context.Background()

	put, err := saver.Put(ctx, graph.PutRequest{
		LineageID: "t",
		State:     graph.State{"topic": "databases", "progress": float64(20)},
		NextNode:  "research",
		Step:      1,
		Source:    graph.CheckpointSourceLoop,
	})
	require.NoError(t, err)

	got, err := saver.Get(ctx, "t", put.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "databases", got.State["topic"])
	assert.Equal(t, float64(20), got.State["progress"])
	assert.Equal(t, "research", got.NextNode)
	assert.Equal(t, 1, got.Step)
}

func TestLatestPrefersForkTip(t *testing.T) {
	saver := newTestSaver(t)
	ctx := context.Background()

	a, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", State: graph.State{"n": "a"}})
	require.NoError(t, err)
	b, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: a.ID, State: graph.State{"n": "b"}})
	require.NoError(t, err)
	c, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: b.ID, State: graph.State{"n": "c"}})
	require.NoError(t, err)

	d, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: b.ID, State: graph.State{"n": "d"}})
	require.NoError(t, err)

	latest, err := saver.Latest(ctx, "t")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, d.ID, latest.ID)

	unchanged, err := saver.Get(ctx, "t", c.ID)
	require.NoError(t, err)
	require.NotNil(t, unchanged)
	assert.Equal(t, "c", unchanged.State["n"])
}

func TestInterruptSurvivesRoundTrip(t *testing.T) {
	saver := newTestSaver(t)
	ctx := context.Background()

	put, err := saver.Put(ctx, graph.PutRequest{
		LineageID: "t",
		State:     graph.State{},
		NextNode:  "approve",
		Source:    graph.CheckpointSourceInterrupt,
		Interrupt: &graph.InterruptState{NodeName: "approve", Key: "plan_approval"},
	})
	require.NoError(t, err)

	got, err := saver.Get(ctx, "t", put.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Interrupt)
	assert.Equal(t, "approve", got.Interrupt.NodeName)
	assert.Equal(t, "plan_approval", got.Interrupt.Key)
}

func TestLineagesAreIsolated(t *testing.T) {
	saver := newTestSaver(t)
	ctx := context.Background()

	_, err := saver.Put(ctx, graph.PutRequest{LineageID: "t1", State: graph.State{"n": "x"}})
	require.NoError(t, err)
	_, err = saver.Put(ctx, graph.PutRequest{LineageID: "t2", State: graph.State{"n": "y"}})
	require.NoError(t, err)

	require.NoError(t, saver.DeleteLineage(ctx, "t1"))

	gone, err := saver.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := saver.Latest(ctx, "t2")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "y", kept.State["n"])
}
