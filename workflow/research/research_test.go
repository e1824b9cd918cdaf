package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/graph"
	"github.com/winhok/QAchatBot-sub001/graph/checkpoint/inmemory"
	"github.com/winhok/QAchatBot-sub001/model"
)

// countingModel returns a canned response and counts invocations.
type countingModel struct {
	calls int
}

func (m *countingModel) GenerateContent(_ context.Context, _ *model.Request) (<-chan *model.Response, error) {
	m.calls++
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{
		Choices: []model.Choice{{Message: model.NewAssistantMessage("generated text")}},
		Done:    true,
	}
	close(ch)
	return ch, nil
}

func (m *countingModel) Info() model.Info { return model.Info{Name: "counting"} }

func newTestWorkflow(t *testing.T) (*Workflow, *countingModel) {
	t.Helper()
	m := &countingModel{}
	w, err := New(m, inmemory.NewSaver(), nil)
	require.NoError(t, err)
	return w, m
}

func TestRunPausesForPlanApproval(t *testing.T) {
	w, _ := newTestWorkflow(t)
	ctx := context.Background()

	state, err := w.Run(ctx, "thread-1", "history of databases")
	require.Error(t, err)
	ie, ok := graph.IsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "plan_approval", ie.Key)
	assert.Equal(t, "generated text", state[StateKeyPlan])

	snapshot, err := w.GetState(ctx, "thread-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.NotNil(t, snapshot.Interrupt)
	assert.Equal(t, NodeHumanFeedback, snapshot.Interrupt.NodeName)
}

func TestResumeEmptyFeedbackProceedsToResearch(t *testing.T) {
	w, m := newTestWorkflow(t)
	ctx := context.Background()

	_, err := w.Run(ctx, "thread-2", "topic")
	_, ok := graph.IsInterruptError(err)
	require.True(t, ok)
	callsAtInterrupt := m.calls

	final, err := w.Resume(ctx, "thread-2", "")
	require.NoError(t, err)

	// Approval runs coordinate_research, research_team, and reporter.
	assert.Equal(t, graph.StatusCompleted, final[graph.StateKeyStatus])
	assert.Equal(t, "generated text", final[StateKeyFinalReport])
	assert.Equal(t, float64(100), final[StateKeyProgress])
	assert.Greater(t, m.calls, callsAtInterrupt)
}

func TestResumeWithFeedbackRegeneratesPlan(t *testing.T) {
	w, _ := newTestWorkflow(t)
	ctx := context.Background()

	_, err := w.Run(ctx, "thread-3", "topic")
	_, ok := graph.IsInterruptError(err)
	require.True(t, ok)

	// Non-empty feedback routes back to generate_plan, which pauses again
	// at the approval node with a fresh plan.
	state, err := w.Resume(ctx, "thread-3", "make it shorter")
	require.Error(t, err)
	ie, ok := graph.IsInterruptError(err)
	require.True(t, ok)
	assert.Equal(t, "plan_approval", ie.Key)
	assert.Equal(t, "generated text", state[StateKeyPlan])

	snapshot, err := w.GetState(ctx, "thread-3")
	require.NoError(t, err)
	require.NotNil(t, snapshot.Interrupt)
}

func TestProgressAccumulatesAcrossNodes(t *testing.T) {
	w, _ := newTestWorkflow(t)
	ctx := context.Background()

	_, err := w.Run(ctx, "thread-4", "topic")
	_, ok := graph.IsInterruptError(err)
	require.True(t, ok)

	// generate_plan contributed one -20 increment before the pause.
	snapshot, err := w.GetState(ctx, "thread-4")
	require.NoError(t, err)
	assert.Equal(t, float64(20), snapshot.State[StateKeyProgress])
}

func TestErrorStateTerminatesWorkflow(t *testing.T) {
	failing := &failingModel{}
	w, err := New(failing, inmemory.NewSaver(), nil)
	require.NoError(t, err)

	final, err := w.Run(context.Background(), "thread-5", "topic")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusError, final[graph.StateKeyStatus])
	assert.NotEmpty(t, final[graph.StateKeyError])
}

type failingModel struct{}

func (m *failingModel) GenerateContent(_ context.Context, _ *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response, 1)
	ch <- &model.Response{
		Error: &model.ResponseError{Message: "provider down", Type: model.ErrorTypeAPIError},
		Done:  true,
	}
	close(ch)
	return ch, nil
}

func (m *failingModel) Info() model.Info { return model.Info{Name: "failing"} }
