package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/winhok/QAchatBot-sub001/log"
)

// defaultMaxSteps bounds the number of node executions per invocation so a
// routing cycle cannot spin forever.
const defaultMaxSteps = 200

// defaultEventChannelSize is the buffer size of the Stream event channel.
const defaultEventChannelSize = 64

// Executor runs a compiled graph.
type Executor struct {
	graph    *Graph
	saver    CheckpointSaver
	maxSteps int

	mu           sync.Mutex
	lineageLocks map[string]*sync.Mutex
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCheckpointSaver enables checkpointing with the given saver. Without a
// saver the executor runs ephemerally and cannot be interrupted or resumed.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(e *Executor) {
		e.saver = saver
	}
}

// WithMaxSteps overrides the per-invocation step ceiling.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(e *Executor) {
		if maxSteps > 0 {
			e.maxSteps = maxSteps
		}
	}
}

// NewExecutor creates an executor for the given compiled graph.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	e := &Executor{
		graph:        graph,
		maxSteps:     defaultMaxSteps,
		lineageLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	lineageID    string
	checkpointID string
	resume       any
	hasResume    bool
	resumeMap    map[string]any
}

// WithLineageID sets the execution thread the invocation belongs to.
// Checkpoints are grouped by lineage, and invocations on the same lineage
// are serialized.
func WithLineageID(lineageID string) InvokeOption {
	return func(o *invokeOptions) {
		o.lineageID = lineageID
	}
}

// WithCheckpointID starts execution from a specific checkpoint instead of
// the lineage's latest, forking the history at that point.
func WithCheckpointID(checkpointID string) InvokeOption {
	return func(o *invokeOptions) {
		o.checkpointID = checkpointID
	}
}

// WithResume supplies the value for the pending interrupt of the lineage.
func WithResume(value any) InvokeOption {
	return func(o *invokeOptions) {
		o.resume = value
		o.hasResume = true
	}
}

// WithResumeMap supplies resume values keyed by interrupt key.
func WithResumeMap(values map[string]any) InvokeOption {
	return func(o *invokeOptions) {
		o.resumeMap = values
	}
}

// Invoke runs the graph to completion (or to an interrupt) and returns the
// final state. When execution pauses at an interrupt, the returned error is
// an *InterruptError and the returned state is the checkpointed state.
func (e *Executor) Invoke(ctx context.Context, input State, opts ...InvokeOption) (State, error) {
	return e.run(ctx, input, buildInvokeOptions(opts), nil)
}

// Stream runs the graph and emits an event per step. The channel is closed
// when execution finishes, pauses at an interrupt, or fails.
func (e *Executor) Stream(ctx context.Context, input State, opts ...InvokeOption) (<-chan *Event, error) {
	events := make(chan *Event, defaultEventChannelSize)
	options := buildInvokeOptions(opts)
	go func() {
		defer close(events)
		emit := func(ev *Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		if _, err := e.run(ctx, input, options, emit); err != nil {
			if _, ok := IsInterruptError(err); !ok {
				emit(&Event{Type: EventError, Err: err})
			}
		}
	}()
	return events, nil
}

// StateSnapshot describes the latest checkpointed state of a lineage.
type StateSnapshot struct {
	LineageID    string
	CheckpointID string
	ParentID     string
	State        State
	NextNode     string
	Step         int
	Interrupt    *InterruptState
	CreatedAt    int64
}

// GetState returns the latest checkpointed state of the lineage, or nil if
// the lineage has no checkpoints.
func (e *Executor) GetState(ctx context.Context, lineageID string) (*StateSnapshot, error) {
	if e.saver == nil {
		return nil, fmt.Errorf("executor has no checkpoint saver")
	}
	ckpt, err := e.saver.Latest(ctx, lineageID)
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	if ckpt == nil {
		return nil, nil
	}
	return &StateSnapshot{
		LineageID:    ckpt.LineageID,
		CheckpointID: ckpt.ID,
		ParentID:     ckpt.ParentID,
		State:        ckpt.State,
		NextNode:     ckpt.NextNode,
		Step:         ckpt.Step,
		Interrupt:    ckpt.Interrupt,
		CreatedAt:    ckpt.CreatedAtNanos,
	}, nil
}

func buildInvokeOptions(opts []InvokeOption) *invokeOptions {
	options := &invokeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (e *Executor) lineageLock(lineageID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.lineageLocks[lineageID]
	if !ok {
		lock = &sync.Mutex{}
		e.lineageLocks[lineageID] = lock
	}
	return lock
}

func (e *Executor) run(ctx context.Context, input State, options *invokeOptions, emit func(*Event)) (State, error) {
	isResume := options.hasResume || options.resumeMap != nil
	if e.saver == nil && (isResume || options.checkpointID != "") {
		return nil, fmt.Errorf("executor has no checkpoint saver")
	}

	lineageID := options.lineageID
	if e.saver != nil {
		if lineageID == "" {
			lineageID = uuid.NewString()
		}
		lock := e.lineageLock(lineageID)
		lock.Lock()
		defer lock.Unlock()
	}

	state, current, step, parentID, err := e.prepare(ctx, input, lineageID, options)
	if err != nil {
		return nil, err
	}
	if current == End || current == "" {
		return sanitizeForCheckpoint(state), nil
	}

	for current != End {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}
		if step >= e.maxSteps {
			return nil, fmt.Errorf("maximum step count exceeded (%d)", e.maxSteps)
		}
		node := e.graph.Node(current)
		if node == nil {
			return nil, fmt.Errorf("unknown node: %s", current)
		}

		if emit != nil {
			emit(&Event{Type: EventNodeStart, NodeName: current, Step: step})
		}
		result, err := node.Function(ctx, state)
		if err != nil {
			if ie, ok := IsInterruptError(err); ok {
				parentID, err = e.saveCheckpoint(ctx, lineageID, parentID, state, current, step, CheckpointSourceInterrupt, &InterruptState{
					NodeName: current,
					Key:      ie.Key,
					Prompt:   ie.Prompt,
				})
				if err != nil {
					return nil, err
				}
				if emit != nil {
					emit(&Event{
						Type:      EventInterrupt,
						NodeName:  current,
						Step:      step,
						State:     sanitizeForCheckpoint(state),
						Interrupt: &InterruptState{NodeName: current, Key: ie.Key, Prompt: ie.Prompt},
					})
				}
				return sanitizeForCheckpoint(state), ie
			}
			// Node failure leaves no checkpoint; the lineage stays at its
			// last successful step.
			return nil, fmt.Errorf("node %s failed: %w", current, err)
		}

		var next string
		switch r := result.(type) {
		case nil:
		case *Command:
			if r.Update != nil {
				state = e.graph.Schema().ApplyUpdate(state, r.Update)
			}
			next = r.GoTo
			if next != End && e.graph.Node(next) == nil {
				return nil, fmt.Errorf("node %s routed to unknown node: %s", current, next)
			}
		case State:
			state = e.graph.Schema().ApplyUpdate(state, r)
		case map[string]any:
			state = e.graph.Schema().ApplyUpdate(state, State(r))
		default:
			return nil, fmt.Errorf("node %s returned unsupported result type %T", current, result)
		}

		// Resume values only apply to the node that was interrupted. Once it
		// completed, a later visit to the same node interrupts afresh.
		delete(state, ResumeChannel)
		delete(state, StateKeyResumeMap)
		delete(state, StateKeyUsedInterrupts)

		step++
		if next == "" {
			next, err = e.graph.nextNode(ctx, current, state)
			if err != nil {
				return nil, err
			}
		}

		parentID, err = e.saveCheckpoint(ctx, lineageID, parentID, state, nextForCheckpoint(next), step, CheckpointSourceLoop, nil)
		if err != nil {
			return nil, err
		}
		if emit != nil {
			emit(&Event{Type: EventNodeComplete, NodeName: current, Step: step, State: sanitizeForCheckpoint(state)})
		}
		current = next
	}

	final := sanitizeForCheckpoint(state)
	if emit != nil {
		emit(&Event{Type: EventComplete, Step: step, State: final})
	}
	return final, nil
}

// prepare resolves the starting state, node, step count, and parent
// checkpoint for the invocation.
func (e *Executor) prepare(ctx context.Context, input State, lineageID string, options *invokeOptions) (State, string, int, string, error) {
	isResume := options.hasResume || options.resumeMap != nil

	if isResume {
		ckpt, err := e.loadCheckpoint(ctx, lineageID, options.checkpointID)
		if err != nil {
			return nil, "", 0, "", err
		}
		if ckpt == nil || ckpt.Interrupt == nil {
			return nil, "", 0, "", ErrNoPendingInterrupt
		}
		state := ckpt.State.Clone()
		if input != nil {
			state = e.graph.Schema().ApplyUpdate(state, input)
		}
		if options.hasResume {
			state[ResumeChannel] = options.resume
		}
		if options.resumeMap != nil {
			state[StateKeyResumeMap] = options.resumeMap
		}
		log.Debugf("resuming lineage %s at node %s", lineageID, ckpt.Interrupt.NodeName)
		return state, ckpt.Interrupt.NodeName, ckpt.Step, ckpt.ID, nil
	}

	if options.checkpointID != "" {
		// Fork: continue from an older checkpoint. The new checkpoints
		// reference it as parent, leaving the original branch intact.
		ckpt, err := e.loadCheckpoint(ctx, lineageID, options.checkpointID)
		if err != nil {
			return nil, "", 0, "", err
		}
		if ckpt == nil {
			return nil, "", 0, "", fmt.Errorf("checkpoint not found: %s", options.checkpointID)
		}
		state := ckpt.State.Clone()
		if input != nil {
			state = e.graph.Schema().ApplyUpdate(state, input)
		}
		return state, ckpt.NextNode, ckpt.Step, ckpt.ID, nil
	}

	// Fresh start: seed defaults, apply the input, checkpoint it. On a
	// lineage with history the input checkpoint parents on the latest
	// checkpoint, keeping the lineage a single tree.
	var inputParent string
	if e.saver != nil {
		latest, err := e.saver.Latest(ctx, lineageID)
		if err != nil {
			return nil, "", 0, "", fmt.Errorf("load latest checkpoint: %w", err)
		}
		if latest != nil {
			inputParent = latest.ID
		}
	}
	state := make(State)
	for name, field := range e.graph.Schema().Fields {
		if field.Default != nil {
			state[name] = field.Default()
		}
	}
	if input != nil {
		state = e.graph.Schema().ApplyUpdate(state, input)
	}
	parentID, err := e.saveCheckpoint(ctx, lineageID, inputParent, state, e.graph.EntryPoint(), 0, CheckpointSourceInput, nil)
	if err != nil {
		return nil, "", 0, "", err
	}
	return state, e.graph.EntryPoint(), 0, parentID, nil
}

func (e *Executor) loadCheckpoint(ctx context.Context, lineageID, checkpointID string) (*Checkpoint, error) {
	if checkpointID != "" {
		ckpt, err := e.saver.Get(ctx, lineageID, checkpointID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
		}
		return ckpt, nil
	}
	ckpt, err := e.saver.Latest(ctx, lineageID)
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return ckpt, nil
}

// saveCheckpoint persists a checkpoint and returns its ID for use as the
// next checkpoint's parent. Without a saver it is a no-op.
func (e *Executor) saveCheckpoint(ctx context.Context, lineageID, parentID string, state State,
	nextNode string, step int, source string, interrupt *InterruptState) (string, error) {
	if e.saver == nil {
		return "", nil
	}
	ckpt, err := e.saver.Put(ctx, PutRequest{
		LineageID: lineageID,
		ParentID:  parentID,
		State:     sanitizeForCheckpoint(state),
		NextNode:  nextNode,
		Step:      step,
		Source:    source,
		Interrupt: interrupt,
	})
	if err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return ckpt.ID, nil
}

func nextForCheckpoint(next string) string {
	if next == End {
		return ""
	}
	return next
}
