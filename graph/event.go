package graph

// Event types emitted by Executor.Stream.
const (
	// EventNodeStart is emitted before a node executes.
	EventNodeStart = "node_start"
	// EventNodeComplete is emitted after a node executed successfully.
	EventNodeComplete = "node_complete"
	// EventInterrupt is emitted when execution pauses at an interrupt.
	EventInterrupt = "interrupt"
	// EventComplete is emitted when the graph reaches End.
	EventComplete = "complete"
	// EventError is emitted when execution fails.
	EventError = "error"
)

// Event describes one step of a streamed graph execution.
type Event struct {
	// Type is one of the Event* constants.
	Type string
	// NodeName is the node this event relates to, when applicable.
	NodeName string
	// Step is the number of node executions completed so far.
	Step int
	// State is a snapshot of the state after the event, with internal keys
	// removed. Nil for EventNodeStart.
	State State
	// Interrupt is set on EventInterrupt.
	Interrupt *InterruptState
	// Err is set on EventError.
	Err error
}
