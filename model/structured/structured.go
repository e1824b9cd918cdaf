// Package structured parses model output into typed values.
//
// Models frequently wrap JSON in markdown fences or emit slightly malformed
// JSON; Parse strips fences and repairs syntax errors before unmarshalling,
// so callers only deal with a typed value or a validation error.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/winhok/QAchatBot-sub001/model"
)

// Result carries a parsed value together with the raw model output it was
// parsed from.
type Result[T any] struct {
	Parsed T
	Raw    string
}

// Parse decodes raw model output into T. Markdown code fences are stripped
// and malformed JSON is repaired before unmarshalling.
func Parse[T any](raw string) (*Result[T], error) {
	text := stripFences(raw)
	var parsed T
	if err := unmarshalRepaired([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse structured output: %w", err)
	}
	return &Result[T]{Parsed: parsed, Raw: raw}, nil
}

// Invoke runs a non-streaming model call and parses the response into T.
func Invoke[T any](ctx context.Context, m model.Model, messages []model.Message) (*Result[T], error) {
	responseChan, err := m.GenerateContent(ctx, &model.Request{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	var content strings.Builder
	for response := range responseChan {
		if response.Error != nil {
			return nil, fmt.Errorf("model error: %s", response.Error.Message)
		}
		if len(response.Choices) > 0 {
			content.WriteString(response.Choices[0].Message.Content)
		}
		if response.Done {
			break
		}
	}
	return Parse[T](content.String())
}

// unmarshalRepaired unmarshals JSON, attempting a jsonrepair pass when the
// initial unmarshal fails with a syntax error.
func unmarshalRepaired(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return repairErr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
