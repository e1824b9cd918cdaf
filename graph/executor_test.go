package graph_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/graph"
	"github.com/winhok/QAchatBot-sub001/graph/checkpoint/inmemory"
)

func appendStep(name string) graph.NodeFunc {
	return func(_ context.Context, _ graph.State) (any, error) {
		return graph.State{"steps": []string{name}}, nil
	}
}

func stepsSchema() *graph.StateSchema {
	schema := graph.NewStateSchema()
	schema.AddField("steps", graph.StateField{
		Type:    reflect.TypeOf([]string{}),
		Reducer: graph.StringSliceReducer,
		Default: func() any { return []string{} },
	})
	return schema
}

func TestExecutorRunsLinearGraph(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("a", appendStep("a")).
		AddNode("b", appendStep("b")).
		AddNode("c", appendStep("c")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetFinishPoint("c").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)

	final, err := executor.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, final["steps"])
}

func TestExecutorConditionalRouting(t *testing.T) {
	build := func(target string) (*graph.Graph, error) {
		return graph.NewStateGraph(stepsSchema()).
			AddNode("router", appendStep("router")).
			AddNode("left", appendStep("left")).
			AddNode("right", appendStep("right")).
			SetEntryPoint("router").
			AddConditionalEdges("router",
				func(_ context.Context, _ graph.State) (string, error) { return target, nil },
				map[string]string{"left": "left", "right": "right"}).
			SetFinishPoint("left").
			SetFinishPoint("right").
			Compile()
	}

	g, err := build("right")
	require.NoError(t, err)
	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)
	final, err := executor.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"router", "right"}, final["steps"])
}

func TestExecutorUndeclaredRouterTargetFails(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("router", appendStep("router")).
		AddNode("left", appendStep("left")).
		SetEntryPoint("router").
		AddConditionalEdges("router",
			func(_ context.Context, _ graph.State) (string, error) { return "nowhere", nil },
			map[string]string{"left": "left"}).
		SetFinishPoint("left").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)
	_, err = executor.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared target")
}

func TestCompileRejectsUnknownPathMapTarget(t *testing.T) {
	_, err := graph.NewStateGraph(stepsSchema()).
		AddNode("router", appendStep("router")).
		SetEntryPoint("router").
		AddConditionalEdges("router",
			func(_ context.Context, _ graph.State) (string, error) { return "x", nil },
			map[string]string{"x": "missing_node"}).
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestExecutorCommandOverridesEdges(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("start", func(_ context.Context, _ graph.State) (any, error) {
			return &graph.Command{
				Update: graph.State{"steps": []string{"start"}},
				GoTo:   "skip_to",
			}, nil
		}).
		AddNode("never", appendStep("never")).
		AddNode("skip_to", appendStep("skip_to")).
		SetEntryPoint("start").
		AddEdge("start", "never").
		SetFinishPoint("never").
		SetFinishPoint("skip_to").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)
	final, err := executor.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "skip_to"}, final["steps"])
}

func TestExecutorStepCeiling(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("loop", func(_ context.Context, _ graph.State) (any, error) {
			return &graph.Command{GoTo: "loop"}, nil
		}).
		SetEntryPoint("loop").
		SetFinishPoint("loop").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g, graph.WithMaxSteps(5))
	require.NoError(t, err)
	_, err = executor.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum step count exceeded")
}

func TestExecutorInterruptAndResume(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("ask", func(ctx context.Context, state graph.State) (any, error) {
			answer, err := graph.Interrupt(ctx, state, "question", "continue?")
			if err != nil {
				return nil, err
			}
			return graph.State{"steps": []string{"ask"}, "answer": answer}, nil
		}).
		AddNode("finish", appendStep("finish")).
		SetEntryPoint("ask").
		AddEdge("ask", "finish").
		SetFinishPoint("finish").
		Compile()
	require.NoError(t, err)

	saver := inmemory.NewSaver()
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("thread-1"))
	require.Error(t, err)
	ie, ok := graph.IsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "question", ie.Key)
	assert.Equal(t, "continue?", ie.Prompt)

	snapshot, err := executor.GetState(ctx, "thread-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.NotNil(t, snapshot.Interrupt)
	assert.Equal(t, "ask", snapshot.Interrupt.NodeName)

	final, err := executor.Invoke(ctx, nil,
		graph.WithLineageID("thread-1"), graph.WithResume("yes"))
	require.NoError(t, err)
	assert.Equal(t, "yes", final["answer"])
	assert.Equal(t, []string{"ask", "finish"}, final["steps"])
}

func TestExecutorSecondResumeFails(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("ask", func(ctx context.Context, state graph.State) (any, error) {
			if _, err := graph.Interrupt(ctx, state, "question", nil); err != nil {
				return nil, err
			}
			return graph.State{"steps": []string{"ask"}}, nil
		}).
		SetEntryPoint("ask").
		SetFinishPoint("ask").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(inmemory.NewSaver()))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("thread-2"))
	_, ok := graph.IsInterruptError(err)
	require.True(t, ok)

	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("thread-2"), graph.WithResume("go"))
	require.NoError(t, err)

	// The thread advanced past the interrupt; a second resume has nothing
	// to apply to.
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("thread-2"), graph.WithResume("again"))
	require.ErrorIs(t, err, graph.ErrNoPendingInterrupt)
}

func TestExecutorNodeErrorWritesNoCheckpoint(t *testing.T) {
	boom := errors.New("boom")
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("ok", appendStep("ok")).
		AddNode("fail", func(_ context.Context, _ graph.State) (any, error) {
			return nil, boom
		}).
		SetEntryPoint("ok").
		AddEdge("ok", "fail").
		SetFinishPoint("fail").
		Compile()
	require.NoError(t, err)

	saver := inmemory.NewSaver()
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("thread-3"))
	require.ErrorIs(t, err, boom)

	// Last committed checkpoint is the one written after "ok"; the failed
	// step left nothing behind.
	snapshot, err := executor.GetState(ctx, "thread-3")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, []string{"ok"}, toStringSlice(snapshot.State["steps"]))
	assert.Equal(t, "fail", snapshot.NextNode)
}

func TestExecutorStreamEmitsEvents(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("a", appendStep("a")).
		AddNode("b", appendStep("b")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b").
		Compile()
	require.NoError(t, err)

	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)

	events, err := executor.Stream(context.Background(), nil)
	require.NoError(t, err)

	var types []string
	for event := range events {
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{
		graph.EventNodeStart, graph.EventNodeComplete,
		graph.EventNodeStart, graph.EventNodeComplete,
		graph.EventComplete,
	}, types)
}

func TestExecutorCancelledNodeLeavesLastCheckpointIntact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("a", appendStep("a")).
		AddNode("b", func(ctx context.Context, _ graph.State) (any, error) {
			cancel()
			return nil, ctx.Err()
		}).
		SetEntryPoint("a").
		AddEdge("a", "b").
		SetFinishPoint("b").
		Compile()
	require.NoError(t, err)

	saver := inmemory.NewSaver()
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("cancel-1"))
	require.ErrorIs(t, err, context.Canceled)

	// The aborted step left no checkpoint: only the input checkpoint and the
	// one committed after "a" exist, still pointing at "b".
	ckpts, err := saver.List(context.Background(), "cancel-1", 0)
	require.NoError(t, err)
	require.Len(t, ckpts, 2)
	assert.Equal(t, "b", ckpts[0].NextNode)
	assert.Equal(t, []string{"a"}, toStringSlice(ckpts[0].State["steps"]))
}

func TestExecutorCancelIgnoredByNodeCommitsCompletedStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("a", appendStep("a")).
		AddNode("b", func(_ context.Context, _ graph.State) (any, error) {
			cancel()
			return graph.State{"steps": []string{"b"}}, nil
		}).
		AddNode("c", appendStep("c")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetFinishPoint("c").
		Compile()
	require.NoError(t, err)

	saver := inmemory.NewSaver()
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	// A node that does not observe the cancellation completes normally and
	// its step commits; the loop stops before the next node runs.
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("cancel-2"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "execution cancelled")

	background := context.Background()
	snapshot, err := executor.GetState(background, "cancel-2")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, []string{"a", "b"}, toStringSlice(snapshot.State["steps"]))
	assert.Equal(t, "c", snapshot.NextNode)
}

func TestExecutorSequentialInvokesFormSingleTree(t *testing.T) {
	g, err := graph.NewStateGraph(stepsSchema()).
		AddNode("a", appendStep("a")).
		SetEntryPoint("a").
		SetFinishPoint("a").
		Compile()
	require.NoError(t, err)

	saver := inmemory.NewSaver()
	executor, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("tree-1"))
	require.NoError(t, err)
	firstTip, err := saver.Latest(ctx, "tree-1")
	require.NoError(t, err)
	require.NotNil(t, firstTip)

	_, err = executor.Invoke(ctx, nil, graph.WithLineageID("tree-1"))
	require.NoError(t, err)

	// The second run's input checkpoint parents on the first run's tip, so
	// the lineage has exactly one root.
	ckpts, err := saver.List(ctx, "tree-1", 0)
	require.NoError(t, err)
	require.Len(t, ckpts, 4)
	roots := 0
	for _, ckpt := range ckpts {
		if ckpt.ParentID == "" {
			roots++
		}
		if ckpt.Source == graph.CheckpointSourceInput && ckpt.ParentID != "" {
			assert.Equal(t, firstTip.ID, ckpt.ParentID)
		}
	}
	assert.Equal(t, 1, roots)
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
