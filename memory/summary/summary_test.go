package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/memory/archival"
	"github.com/winhok/QAchatBot-sub001/model"
)

type fakeModel struct {
	content string
	fail    bool
}

func (f *fakeModel) GenerateContent(_ context.Context, _ *model.Request) (<-chan *model.Response, error) {
	ch := make(chan *model.Response, 1)
	if f.fail {
		ch <- &model.Response{
			Error: &model.ResponseError{Message: "model unavailable", Type: model.ErrorTypeAPIError},
			Done:  true,
		}
	} else {
		ch <- &model.Response{
			Choices: []model.Choice{{Message: model.NewAssistantMessage(f.content)}},
			Done:    true,
		}
	}
	close(ch)
	return ch, nil
}

func (f *fakeModel) Info() model.Info { return model.Info{Name: "fake"} }

func conversation(turns int) []model.Message {
	msgs := []model.Message{model.NewSystemMessage("you are helpful")}
	for i := 0; i < turns; i++ {
		msgs = append(msgs, model.NewUserMessage(fmt.Sprintf("question %d", i)))
		msgs = append(msgs, model.NewAssistantMessage(fmt.Sprintf("answer %d", i)))
	}
	return msgs
}

func newTestEngine(t *testing.T, m model.Model, store *archival.InMemoryStore) *Engine {
	t.Helper()
	service := archival.NewService(store, archival.NewHashEmbedder(64))
	engine, err := NewEngine(m, service)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestStaticBufferBelowThresholdUnchanged(t *testing.T) {
	engine := newTestEngine(t, &fakeModel{content: "notes"}, archival.NewInMemoryStore())
	msgs := conversation(3) // 7 messages
	retained := engine.StaticBuffer("u", msgs, 10, 4)
	assert.Equal(t, msgs, retained)
}

func TestStaticBufferEvictsAndArchives(t *testing.T) {
	store := archival.NewInMemoryStore()
	engine := newTestEngine(t, &fakeModel{content: "durable facts"}, store)

	msgs := conversation(5) // system + 10 turns = 11 messages
	retained := engine.StaticBuffer("u", msgs, 8, 4)

	// System message survives, and the retained tail starts with a user turn.
	require.Greater(t, len(msgs), len(retained))
	assert.Equal(t, model.RoleSystem, retained[0].Role)
	assert.Equal(t, model.RoleUser, retained[1].Role)

	// No summary is injected into the live history.
	for _, msg := range retained {
		assert.NotContains(t, msg.Content, "durable facts")
	}

	// The evicted span lands in archival memory in the background.
	assert.Eventually(t, func() bool {
		entries, err := store.ListByUser(context.Background(), "u")
		return err == nil && len(entries) == 1
	}, 3*time.Second, 10*time.Millisecond)

	entries, err := store.ListByUser(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "durable facts", entries[0].Content)
}

func TestStaticBufferSummaryFailureIsSwallowed(t *testing.T) {
	store := archival.NewInMemoryStore()
	engine := newTestEngine(t, &fakeModel{fail: true}, store)

	msgs := conversation(5)
	retained := engine.StaticBuffer("u", msgs, 8, 4)

	// Eviction still happens; the failed summary is only logged.
	assert.Less(t, len(retained), len(msgs))
	time.Sleep(50 * time.Millisecond)
	entries, err := store.ListByUser(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPartialEvictInjectsSingleSummaryMessage(t *testing.T) {
	engine := newTestEngine(t, &fakeModel{content: "compact context"}, archival.NewInMemoryStore())

	msgs := conversation(3) // system, u0, a0, u1, a1, u2, a2
	result, err := engine.PartialEvict(context.Background(), msgs, 0.5)
	require.NoError(t, err)

	require.Less(t, len(result), len(msgs))
	assert.Equal(t, model.RoleSystem, result[0].Role)

	// Exactly one synthetic user message, directly after the system message.
	assert.Equal(t, model.RoleUser, result[1].Role)
	assert.Contains(t, result[1].Content, "compact context")
	summaryCount := 0
	for _, msg := range result {
		if strings.Contains(msg.Content, "compact context") {
			summaryCount++
		}
	}
	assert.Equal(t, 1, summaryCount)

	// The retained tail starts with an assistant message.
	assert.Equal(t, model.RoleAssistant, result[2].Role)
}

func TestPartialEvictNoAssistantAfterBoundaryEvictsNothing(t *testing.T) {
	engine := newTestEngine(t, &fakeModel{content: "unused"}, archival.NewInMemoryStore())

	msgs := []model.Message{
		model.NewSystemMessage("sys"),
		model.NewUserMessage("q1"),
		model.NewUserMessage("q2"),
		model.NewUserMessage("q3"),
		model.NewUserMessage("q4"),
	}
	result, err := engine.PartialEvict(context.Background(), msgs, 0.5)
	require.NoError(t, err)
	assert.Equal(t, msgs, result)
}

func TestPartialEvictWithoutSystemMessage(t *testing.T) {
	engine := newTestEngine(t, &fakeModel{content: "compact context"}, archival.NewInMemoryStore())

	msgs := []model.Message{
		model.NewUserMessage("q0"),
		model.NewAssistantMessage("a0"),
		model.NewUserMessage("q1"),
		model.NewAssistantMessage("a1"),
		model.NewUserMessage("q2"),
		model.NewAssistantMessage("a2"),
	}
	result, err := engine.PartialEvict(context.Background(), msgs, 0.5)
	require.NoError(t, err)

	// Summary leads, and the retained tail starts with an assistant turn.
	require.NotEmpty(t, result)
	assert.Equal(t, model.RoleUser, result[0].Role)
	assert.Contains(t, result[0].Content, "compact context")
	assert.Equal(t, model.RoleAssistant, result[1].Role)
}

func TestPartialEvictModelFailurePropagates(t *testing.T) {
	engine := newTestEngine(t, &fakeModel{fail: true}, archival.NewInMemoryStore())

	msgs := conversation(3)
	_, err := engine.PartialEvict(context.Background(), msgs, 0.5)
	require.Error(t, err)
}
