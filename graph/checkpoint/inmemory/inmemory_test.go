package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/graph"
)

func TestForkLatestReturnsForkTip(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()

	a, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", State: graph.State{"n": "a"}, Step: 0})
	require.NoError(t, err)
	b, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: a.ID, State: graph.State{"n": "b"}, Step: 1})
	require.NoError(t, err)
	c, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: b.ID, State: graph.State{"n": "c"}, Step: 2})
	require.NoError(t, err)

	// Fork from B: the new checkpoint becomes the lineage's latest.
	d, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", ParentID: b.ID, State: graph.State{"n": "d"}, Step: 2})
	require.NoError(t, err)

	latest, err := saver.Latest(ctx, "t")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, d.ID, latest.ID)
	assert.Equal(t, b.ID, latest.ParentID)

	// The original branch is untouched.
	got, err := saver.Get(ctx, "t", c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c", got.State["n"])
	assert.Equal(t, b.ID, got.ParentID)
}

func TestListMostRecentFirst(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", State: graph.State{"n": name}})
		require.NoError(t, err)
	}

	ckpts, err := saver.List(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, ckpts, 2)
	assert.Equal(t, "c", ckpts[0].State["n"])
	assert.Equal(t, "b", ckpts[1].State["n"])
}

func TestDeleteLineage(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	_, err := saver.Put(ctx, graph.PutRequest{LineageID: "t", State: graph.State{}})
	require.NoError(t, err)

	require.NoError(t, saver.DeleteLineage(ctx, "t"))
	latest, err := saver.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGetUnknownCheckpointReturnsNil(t *testing.T) {
	saver := NewSaver()
	got, err := saver.Get(context.Background(), "t", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
