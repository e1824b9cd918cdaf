package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/graph"
	"github.com/winhok/QAchatBot-sub001/graph/checkpoint/inmemory"
	"github.com/winhok/QAchatBot-sub001/model"
	"github.com/winhok/QAchatBot-sub001/workflow"
)

func TestRouteTable(t *testing.T) {
	tests := []struct {
		stage  string
		intent string
		want   string
	}{
		{StageTestPoints, IntentContinue, NodeGenTestCases},
		{StageTestPoints, IntentRevise, NodeGenTestPoints},
		{StageCompleted, IntentRevise, NodeHandleRevise},

		// Everything outside the enumerated table falls through.
		{StageCompleted, IntentContinue, NodeHandleOther},
		{"", IntentContinue, NodeHandleOther},
		{"", IntentRevise, NodeHandleOther},
		{"unknown_stage", "unknown_intent", NodeHandleOther},
		{StageTestPoints, "", NodeHandleOther},
	}
	for _, tt := range tests {
		t.Run(tt.stage+"/"+tt.intent, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.stage, tt.intent))
		})
	}
}

func TestContainsReviseKeyword(t *testing.T) {
	assert.True(t, containsReviseKeyword("please revise the second case"))
	assert.True(t, containsReviseKeyword("Change the expected result"))
	assert.False(t, containsReviseKeyword("looks good, continue"))
}

// scriptedModel replays a fixed sequence of responses, repeating the last
// one when the script runs out.
type scriptedModel struct {
	contents []string
	calls    int
}

func (s *scriptedModel) GenerateContent(_ context.Context, _ *model.Request) (<-chan *model.Response, error) {
	index := s.calls
	if index >= len(s.contents) {
		index = len(s.contents) - 1
	}
	s.calls++
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{
		Choices: []model.Choice{{Message: model.NewAssistantMessage(s.contents[index])}},
		Done:    true,
	}
	close(ch)
	return ch, nil
}

func (s *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func TestGraphRoutesContinueToTestCases(t *testing.T) {
	m := &scriptedModel{contents: []string{
		`{"intent": "continue"}`, // classifier
		"case 1: login succeeds", // gen_test_cases worker
	}}
	g, err := Build(m, nil)
	require.NoError(t, err)
	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)

	final, err := executor.Invoke(context.Background(), graph.State{
		graph.StateKeyUserInput: "looks good, go on",
		StateKeyStage:           StageTestPoints,
		StateKeyTestPoints:      "point 1: login",
	})
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, final[StateKeyStage])
	assert.Equal(t, "case 1: login succeeds", final[StateKeyTestCases])
	assert.Equal(t, graph.StatusCompleted, final[graph.StateKeyStatus])
}

func TestGraphRoutesReviseBackToTestPoints(t *testing.T) {
	m := &scriptedModel{contents: []string{
		`{"intent": "revise"}`,     // classifier
		"point 1: login, revised", // gen_test_points worker
	}}
	g, err := Build(m, nil)
	require.NoError(t, err)
	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)

	final, err := executor.Invoke(context.Background(), graph.State{
		graph.StateKeyUserInput: "revise the first point",
		StateKeyStage:           StageTestPoints,
		StateKeyTestPoints:      "point 1: login",
	})
	require.NoError(t, err)
	assert.Equal(t, StageTestPoints, final[StateKeyStage])
	assert.Equal(t, "point 1: login, revised", final[StateKeyTestPoints])
}

func TestGraphFreshSessionBootstrapsTestPoints(t *testing.T) {
	m := &scriptedModel{contents: []string{
		`{"intent": "continue"}`, // classifier
		"point 1: signup flow",  // bootstrap via handle_other
	}}
	g, err := Build(m, nil)
	require.NoError(t, err)
	executor, err := graph.NewExecutor(g)
	require.NoError(t, err)

	final, err := executor.Invoke(context.Background(), graph.State{
		graph.StateKeyUserInput: "test the signup flow",
	})
	require.NoError(t, err)
	assert.Equal(t, StageTestPoints, final[StateKeyStage])
	assert.Equal(t, "point 1: signup flow", final[StateKeyTestPoints])
}

func TestNewReusesCachedGraph(t *testing.T) {
	m := &scriptedModel{contents: []string{"unused"}}
	cache := workflow.NewCache(4)

	_, err := New(m, inmemory.NewSaver(), nil, WithCache(cache))
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())
	cached, ok := cache.Get("qa/scripted")
	require.True(t, ok)

	// A second construction against the same cache reuses the compiled
	// graph instead of rebuilding it.
	_, err = New(m, inmemory.NewSaver(), nil, WithCache(cache))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
	again, ok := cache.Get("qa/scripted")
	require.True(t, ok)
	assert.Same(t, cached, again)
}
