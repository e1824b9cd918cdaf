// Package summary shrinks unbounded message histories into bounded working
// sets, summarizing the evicted span so the information survives either in
// archival memory (static buffer) or in the live prompt (partial evict).
package summary

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/winhok/QAchatBot-sub001/log"
	"github.com/winhok/QAchatBot-sub001/memory/archival"
	"github.com/winhok/QAchatBot-sub001/model"
)

const (
	defaultPoolSize       = 4
	defaultArchiveTimeout = 2 * time.Minute

	conversationPlaceholder = "{conversation_text}"
)

// staticSummaryPrompt produces durable notes for the long-term store.
const staticSummaryPrompt = `You are archiving the older part of a conversation.
Extract the durable facts worth remembering long-term: decisions made, user
preferences, names, dates, commitments, and conclusions. Write them as short
standalone statements, one per line. Do not write a narrative recap.

Conversation:
` + conversationPlaceholder

// partialSummaryPrompt produces a compact note that re-enters the live
// prompt on every future call, so brevity matters more than completeness.
const partialSummaryPrompt = `Summarize the following conversation span into a
compact context note. Keep only what the assistant still needs to continue
the conversation correctly: open tasks, established facts, and the user's
stated intent. A few sentences at most.

Conversation:
` + conversationPlaceholder

// Engine summarizes and evicts message history.
type Engine struct {
	model    model.Model
	archival *archival.Service
	pool     *ants.Pool
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	poolSize int
}

// WithPoolSize sets the background worker pool size.
func WithPoolSize(size int) Option {
	return func(o *engineOptions) {
		if size > 0 {
			o.poolSize = size
		}
	}
}

// NewEngine creates a summarizer engine. The archival service receives the
// background summaries written by the static-buffer policy.
func NewEngine(m model.Model, archivalService *archival.Service, opts ...Option) (*Engine, error) {
	options := &engineOptions{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(options)
	}
	pool, err := ants.NewPool(options.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create summary worker pool: %w", err)
	}
	return &Engine{model: m, archival: archivalService, pool: pool}, nil
}

// Close releases the background worker pool.
func (e *Engine) Close() {
	e.pool.Release()
}

// StaticBuffer applies the static-buffer eviction policy: when the history
// exceeds bufferLimit, keep the leading system message plus the most recent
// bufferMin messages, pushing the cut forward until the retained tail starts
// with a user message. The evicted span is summarized in the background and
// written to archival memory; the returned history carries no summary.
func (e *Engine) StaticBuffer(userID string, messages []model.Message, bufferLimit, bufferMin int) []model.Message {
	if len(messages) <= bufferLimit || len(messages) < 2 {
		return messages
	}
	cut := len(messages) - bufferMin
	if cut < 1 {
		cut = 1
	}
	for cut < len(messages) && messages[cut].Role != model.RoleUser {
		cut++
	}
	if cut >= len(messages) || cut <= 1 {
		return messages
	}

	evicted := append([]model.Message(nil), messages[1:cut]...)
	retained := make([]model.Message, 0, 1+len(messages)-cut)
	retained = append(retained, messages[0])
	retained = append(retained, messages[cut:]...)

	// Fire and forget. The caller's context may be gone by the time the
	// summary lands, so the task runs with its own deadline.
	if err := e.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultArchiveTimeout)
		defer cancel()
		summaryText, err := e.summarize(ctx, staticSummaryPrompt, evicted)
		if err != nil {
			log.Errorf("background summarization failed for user %s: %v", userID, err)
			return
		}
		if _, err := e.archival.Insert(ctx, userID, summaryText,
			"summary of evicted conversation history", []string{"conversation_summary"}, 0); err != nil {
			log.Errorf("archiving conversation summary failed for user %s: %v", userID, err)
		}
	}); err != nil {
		log.Errorf("submit summarization task failed for user %s: %v", userID, err)
	}
	return retained
}

// PartialEvict applies the forced partial-eviction policy: retain
// round((1-evictFraction)*total) messages, advancing the boundary to the
// next assistant message, and replace the evicted span with one synthetic
// user message holding a synchronous summary. When no assistant message
// exists at or after the boundary nothing is evicted.
func (e *Engine) PartialEvict(ctx context.Context, messages []model.Message, evictFraction float64) ([]model.Message, error) {
	total := len(messages)
	if total < 2 {
		return messages, nil
	}
	if evictFraction <= 0 {
		return messages, nil
	}
	if evictFraction > 1 {
		evictFraction = 1
	}
	retain := int(math.Round((1 - evictFraction) * float64(total)))
	boundary := total - retain
	head := 0
	if messages[0].Role == model.RoleSystem {
		head = 1
	}
	if boundary < head+1 {
		boundary = head + 1
	}
	for boundary < total && messages[boundary].Role != model.RoleAssistant {
		boundary++
	}
	if boundary >= total {
		// No assistant turn after the target point. Evicting here would
		// split a pending exchange, so keep everything.
		return messages, nil
	}

	evicted := messages[head:boundary]
	if len(evicted) == 0 {
		return messages, nil
	}
	summaryText, err := e.summarize(ctx, partialSummaryPrompt, evicted)
	if err != nil {
		return nil, fmt.Errorf("summarize evicted span: %w", err)
	}

	result := make([]model.Message, 0, head+1+total-boundary)
	result = append(result, messages[:head]...)
	result = append(result, model.NewUserMessage("Context from earlier in this conversation: "+summaryText))
	result = append(result, messages[boundary:]...)
	return result, nil
}

// summarize runs one non-streaming model call over the span.
func (e *Engine) summarize(ctx context.Context, promptTemplate string, span []model.Message) (string, error) {
	prompt := strings.Replace(promptTemplate, conversationPlaceholder, conversationText(span), 1)
	responseChan, err := e.model.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	var content strings.Builder
	for response := range responseChan {
		if response.Error != nil {
			return "", fmt.Errorf("summary model error: %s", response.Error.Message)
		}
		if len(response.Choices) > 0 {
			content.WriteString(response.Choices[0].Message.Content)
		}
		if response.Done {
			break
		}
	}
	summaryText := strings.TrimSpace(content.String())
	if summaryText == "" {
		return "", fmt.Errorf("summary model returned empty content")
	}
	return summaryText, nil
}

func conversationText(span []model.Message) string {
	var sb strings.Builder
	for _, msg := range span {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			content = "[tool call]"
		}
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, content)
	}
	return sb.String()
}
