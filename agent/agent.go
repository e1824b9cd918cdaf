// Package agent runs the bounded model and tool conversation loop used
// inside workflow nodes.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/winhok/QAchatBot-sub001/log"
	"github.com/winhok/QAchatBot-sub001/model"
	"github.com/winhok/QAchatBot-sub001/tool"
)

// defaultMaxIterations bounds the number of model calls per Run so a
// tool-calling cycle cannot spin forever.
const defaultMaxIterations = 10

// ToolLoop drives a model bound to a fixed tool set until the model stops
// requesting tools or the iteration ceiling is reached.
type ToolLoop struct {
	model         model.Model
	tools         map[string]tool.CallableTool
	maxIterations int
}

// Option configures a ToolLoop.
type Option func(*ToolLoop)

// WithMaxIterations overrides the iteration ceiling.
func WithMaxIterations(maxIterations int) Option {
	return func(l *ToolLoop) {
		if maxIterations > 0 {
			l.maxIterations = maxIterations
		}
	}
}

// New creates a tool loop over the given model and tools.
func New(m model.Model, tools []tool.CallableTool, opts ...Option) *ToolLoop {
	toolMap := make(map[string]tool.CallableTool, len(tools))
	for _, t := range tools {
		toolMap[t.Declaration().Name] = t
	}
	loop := &ToolLoop{
		model:         m,
		tools:         toolMap,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop
}

// Result is the outcome of a loop run.
type Result struct {
	// Content is the final assistant content. On a ceiling breach it is the
	// best available content rather than a completed answer.
	Content string
	// Messages is the full transcript including tool calls and results.
	Messages []model.Message
	// Truncated reports that the iteration ceiling was hit.
	Truncated bool
}

// Run executes the loop. Per-tool failures are fed back to the model as
// error-bearing tool results; only whole-call failures (transport, context)
// are returned as errors.
func (l *ToolLoop) Run(ctx context.Context, messages []model.Message) (*Result, error) {
	transcript := append([]model.Message(nil), messages...)
	declared := make(map[string]tool.Tool, len(l.tools))
	for name, t := range l.tools {
		declared[name] = t
	}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		assistant, err := l.invoke(ctx, transcript, declared)
		if err != nil {
			return nil, err
		}
		transcript = append(transcript, *assistant)
		if len(assistant.ToolCalls) == 0 {
			return &Result{Content: assistant.Content, Messages: transcript}, nil
		}
		for _, call := range assistant.ToolCalls {
			transcript = append(transcript, l.executeCall(ctx, call))
		}
	}

	log.Warnf("tool loop hit iteration ceiling (%d), returning best available content", l.maxIterations)
	return &Result{Content: lastAssistantContent(transcript), Messages: transcript, Truncated: true}, nil
}

// invoke runs one non-streaming model call and returns the assistant
// message, tool calls included.
func (l *ToolLoop) invoke(ctx context.Context, messages []model.Message, declared map[string]tool.Tool) (*model.Message, error) {
	responseChan, err := l.model.GenerateContent(ctx, &model.Request{
		Messages: messages,
		Tools:    declared,
	})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	var final *model.Response
	for response := range responseChan {
		if response.Error != nil {
			return nil, fmt.Errorf("model error: %s", response.Error.Message)
		}
		if response.Done {
			final = response
			break
		}
		final = response
	}
	if final == nil || len(final.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}
	message := final.Choices[0].Message
	return &message, nil
}

// executeCall runs one tool call, converting any failure into an
// error-bearing tool message.
func (l *ToolLoop) executeCall(ctx context.Context, call model.ToolCall) model.Message {
	name := call.Function.Name
	t, ok := l.tools[name]
	if !ok {
		return model.NewToolMessage(call.ID, name, errorPayload(fmt.Sprintf("unknown tool: %s", name)))
	}
	result, err := t.Call(ctx, call.Function.Arguments)
	if err != nil {
		log.Warnf("tool %s failed: %v", name, err)
		return model.NewToolMessage(call.ID, name, errorPayload(err.Error()))
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return model.NewToolMessage(call.ID, name, errorPayload(fmt.Sprintf("marshal tool result: %v", err)))
	}
	return model.NewToolMessage(call.ID, name, string(payload))
}

func errorPayload(message string) string {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return string(payload)
}

func lastAssistantContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
