package graph

import (
	"context"
	"errors"
	"fmt"
)

// InterruptError is returned by a node to pause execution and hand control
// back to the caller. The executor checkpoints the current state so the
// invocation can be resumed later with a value for the interrupt.
type InterruptError struct {
	// Key identifies the interrupt point within the node.
	Key string
	// Prompt is the payload surfaced to the caller.
	Prompt any
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("graph interrupted at %q", e.Key)
}

// IsInterruptError reports whether err is (or wraps) an interrupt, returning
// the interrupt details when it is.
func IsInterruptError(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// ErrNoPendingInterrupt is returned when a resume is requested but the
// lineage's latest checkpoint is not an interrupt.
var ErrNoPendingInterrupt = errors.New("no pending interrupt to resume")

// Interrupt pauses execution at the given key unless a resume value is
// already available in state. On first execution it returns a nil value and
// an *InterruptError; on re-execution after a resume it returns the resume
// value and no error, so node code reads naturally:
//
//	feedback, err := graph.Interrupt(ctx, state, "approval", prompt)
//	if err != nil {
//	    return nil, err
//	}
func Interrupt(ctx context.Context, state State, key string, prompt any) (any, error) {
	// A value consumed earlier in this invocation is replayed so that a node
	// re-executed by routing sees a consistent answer.
	if used, ok := state[StateKeyUsedInterrupts].(map[string]any); ok {
		if v, found := used[key]; found {
			return v, nil
		}
	}
	if resumeMap, ok := state[StateKeyResumeMap].(map[string]any); ok {
		if v, found := resumeMap[key]; found {
			markInterruptUsed(state, key, v)
			return v, nil
		}
	}
	if v, ok := state[ResumeChannel]; ok {
		delete(state, ResumeChannel)
		markInterruptUsed(state, key, v)
		return v, nil
	}
	return nil, &InterruptError{Key: key, Prompt: prompt}
}

func markInterruptUsed(state State, key string, value any) {
	used, ok := state[StateKeyUsedInterrupts].(map[string]any)
	if !ok {
		used = make(map[string]any)
		state[StateKeyUsedInterrupts] = used
	}
	used[key] = value
}
