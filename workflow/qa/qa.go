// Package qa implements the stage-routed QA workflow that walks a tester
// from requirements to test points to test cases, with revision support.
package qa

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/winhok/QAchatBot-sub001/agent"
	"github.com/winhok/QAchatBot-sub001/graph"
	"github.com/winhok/QAchatBot-sub001/log"
	"github.com/winhok/QAchatBot-sub001/model"
	"github.com/winhok/QAchatBot-sub001/model/structured"
	"github.com/winhok/QAchatBot-sub001/tool"
	"github.com/winhok/QAchatBot-sub001/workflow"
)

// Node names.
const (
	NodeClassifyIntent = "classify_intent"
	NodeGenTestPoints  = "gen_test_points"
	NodeGenTestCases   = "gen_test_cases"
	NodeHandleRevise   = "handle_revise"
	NodeHandleOther    = "handle_other"
)

// Stages of a QA session.
const (
	StageTestPoints = "test_points"
	StageCompleted  = "completed"
)

// Intents recognized by the classifier.
const (
	IntentContinue = "continue"
	IntentRevise   = "revise"
)

// State keys specific to the QA workflow.
const (
	StateKeyStage      = "stage"
	StateKeyIntent     = "intent"
	StateKeyTestPoints = "test_points_doc"
	StateKeyTestCases  = "test_cases_doc"
)

// Route resolves the node that handles the current (stage, intent) pair.
// Pairs outside the enumerated table fall through to handle_other.
func Route(stage, intent string) string {
	switch {
	case stage == StageTestPoints && intent == IntentContinue:
		return NodeGenTestCases
	case stage == StageTestPoints && intent == IntentRevise:
		return NodeGenTestPoints
	case stage == StageCompleted && intent == IntentRevise:
		return NodeHandleRevise
	default:
		return NodeHandleOther
	}
}

// Schema returns the QA workflow's state schema.
func Schema() *graph.StateSchema {
	schema := graph.MessagesStateSchema()
	schema.AddField(StateKeyStage, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyIntent, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyTestPoints, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyTestCases, graph.StateField{Type: reflect.TypeOf("")})
	return schema
}

// Workflow is the compiled QA workflow bound to a model and tool set.
type Workflow struct {
	executor *graph.Executor
}

// Option configures a Workflow.
type Option func(*options)

type options struct {
	maxSteps int
	cache    *workflow.Cache
}

// WithMaxSteps overrides the executor step ceiling.
func WithMaxSteps(maxSteps int) Option {
	return func(o *options) {
		o.maxSteps = maxSteps
	}
}

// WithCache reuses the compiled graph across constructions, keyed by the
// bound model's name. Constructions sharing a cache must bind the same tool
// set; the key carries only the model name.
func WithCache(cache *workflow.Cache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// New builds and compiles the QA workflow.
func New(m model.Model, saver graph.CheckpointSaver, tools []tool.CallableTool, opts ...Option) (*Workflow, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	build := func() (*graph.Graph, error) { return Build(m, tools) }
	var (
		g   *graph.Graph
		err error
	)
	if o.cache != nil {
		g, err = o.cache.GetOrCompile("qa/"+m.Info().Name, build)
	} else {
		g, err = build()
	}
	if err != nil {
		return nil, err
	}
	execOpts := []graph.ExecutorOption{graph.WithCheckpointSaver(saver)}
	if o.maxSteps > 0 {
		execOpts = append(execOpts, graph.WithMaxSteps(o.maxSteps))
	}
	executor, err := graph.NewExecutor(g, execOpts...)
	if err != nil {
		return nil, err
	}
	return &Workflow{executor: executor}, nil
}

// Run handles one user turn on the given session lineage, carrying the
// stage forward from the previous checkpoint.
func (w *Workflow) Run(ctx context.Context, lineageID, userInput string) (graph.State, error) {
	input := graph.State{graph.StateKeyUserInput: userInput}
	if snapshot, err := w.executor.GetState(ctx, lineageID); err == nil && snapshot != nil {
		if stage, ok := snapshot.State[StateKeyStage].(string); ok {
			input[StateKeyStage] = stage
		}
		if points, ok := snapshot.State[StateKeyTestPoints].(string); ok {
			input[StateKeyTestPoints] = points
		}
		if cases, ok := snapshot.State[StateKeyTestCases].(string); ok {
			input[StateKeyTestCases] = cases
		}
	}
	return w.executor.Invoke(ctx, input, graph.WithLineageID(lineageID))
}

// Build assembles and compiles the QA graph.
func Build(m model.Model, tools []tool.CallableTool) (*graph.Graph, error) {
	nodes := &nodeSet{model: m, tools: tools}
	return graph.NewStateGraph(Schema()).
		AddNode(NodeClassifyIntent, nodes.classifyIntent).
		AddNode(NodeGenTestPoints, nodes.genTestPoints).
		AddNode(NodeGenTestCases, nodes.genTestCases).
		AddNode(NodeHandleRevise, nodes.handleRevise).
		AddNode(NodeHandleOther, nodes.handleOther).
		SetEntryPoint(NodeClassifyIntent).
		AddConditionalEdges(NodeClassifyIntent, nodes.route, map[string]string{
			NodeGenTestPoints: NodeGenTestPoints,
			NodeGenTestCases:  NodeGenTestCases,
			NodeHandleRevise:  NodeHandleRevise,
			NodeHandleOther:   NodeHandleOther,
		}).
		SetFinishPoint(NodeGenTestPoints).
		SetFinishPoint(NodeGenTestCases).
		SetFinishPoint(NodeHandleRevise).
		SetFinishPoint(NodeHandleOther).
		Compile()
}

type nodeSet struct {
	model model.Model
	tools []tool.CallableTool
}

type intentReply struct {
	Intent string `json:"intent" description:"One of: continue, revise."`
}

// classifyIntent determines whether the user wants to move forward or
// revise the previous output. Classifier failure degrades to a keyword
// heuristic rather than failing the turn.
func (n *nodeSet) classifyIntent(ctx context.Context, state graph.State) (any, error) {
	userInput, _ := state[graph.StateKeyUserInput].(string)
	result, err := structured.Invoke[intentReply](ctx, n.model, []model.Message{
		model.NewSystemMessage(`Classify the user's intent as "continue" (proceed with the ` +
			`current work) or "revise" (change something already produced). ` +
			`Answer with JSON: {"intent": "..."}`),
		model.NewUserMessage(userInput),
	})
	intent := IntentContinue
	if err != nil {
		log.Warnf("intent classification failed, falling back to keywords: %v", err)
		if containsReviseKeyword(userInput) {
			intent = IntentRevise
		}
	} else if result.Parsed.Intent == IntentRevise {
		intent = IntentRevise
	}
	return graph.State{StateKeyIntent: intent}, nil
}

func (n *nodeSet) route(_ context.Context, state graph.State) (string, error) {
	stage, _ := state[StateKeyStage].(string)
	intent, _ := state[StateKeyIntent].(string)
	return Route(stage, intent), nil
}

// genTestPoints produces (or regenerates) the test point document and moves
// the session to the test_points stage.
func (n *nodeSet) genTestPoints(ctx context.Context, state graph.State) (any, error) {
	userInput, _ := state[graph.StateKeyUserInput].(string)
	previous, _ := state[StateKeyTestPoints].(string)
	prompt := fmt.Sprintf("Derive test points from this requirement. List each test point "+
		"with a short rationale.\n\nRequirement: %s", userInput)
	if previous != "" {
		prompt += fmt.Sprintf("\n\nRevise the previous test points accordingly:\n%s", previous)
	}
	return n.runWorker(ctx, state, prompt, func(content string) graph.State {
		return graph.State{
			StateKeyTestPoints: content,
			StateKeyStage:      StageTestPoints,
		}
	})
}

// genTestCases expands the approved test points into test cases and
// completes the session.
func (n *nodeSet) genTestCases(ctx context.Context, state graph.State) (any, error) {
	points, _ := state[StateKeyTestPoints].(string)
	prompt := fmt.Sprintf("Write concrete test cases for these test points. For each case "+
		"give steps, input data, and the expected result.\n\nTest points:\n%s", points)
	return n.runWorker(ctx, state, prompt, func(content string) graph.State {
		return graph.State{
			StateKeyTestCases: content,
			StateKeyStage:     StageCompleted,
		}
	})
}

// handleRevise reworks the completed test cases per the user's feedback.
func (n *nodeSet) handleRevise(ctx context.Context, state graph.State) (any, error) {
	userInput, _ := state[graph.StateKeyUserInput].(string)
	cases, _ := state[StateKeyTestCases].(string)
	prompt := fmt.Sprintf("Revise these test cases according to the feedback.\n\n"+
		"Feedback: %s\n\nTest cases:\n%s", userInput, cases)
	return n.runWorker(ctx, state, prompt, func(content string) graph.State {
		return graph.State{
			StateKeyTestCases: content,
			StateKeyStage:     StageCompleted,
		}
	})
}

// handleOther answers anything outside the staged pipeline. On a fresh
// session it bootstraps the pipeline by producing the initial test points.
func (n *nodeSet) handleOther(ctx context.Context, state graph.State) (any, error) {
	stage, _ := state[StateKeyStage].(string)
	if stage == "" {
		return n.genTestPoints(ctx, state)
	}
	userInput, _ := state[graph.StateKeyUserInput].(string)
	prompt := fmt.Sprintf("Answer the tester's question using the conversation context and "+
		"your memory tools.\n\nQuestion: %s", userInput)
	return n.runWorker(ctx, state, prompt, func(string) graph.State {
		return graph.State{}
	})
}

// runWorker executes one tool-loop turn and folds the result into state.
// External failures become terminal error state instead of failing the
// invocation.
func (n *nodeSet) runWorker(ctx context.Context, state graph.State, prompt string,
	updates func(content string) graph.State) (any, error) {
	loop := agent.New(n.model, n.tools)
	result, err := loop.Run(ctx, []model.Message{
		model.NewSystemMessage("You are a QA assistant helping design software tests. " +
			"Use your memory tools to record important decisions."),
		model.NewUserMessage(prompt),
	})
	if err != nil {
		return &graph.Command{
			Update: graph.State{
				graph.StateKeyStatus: graph.StatusError,
				graph.StateKeyError:  err.Error(),
			},
			GoTo: graph.End,
		}, nil
	}
	update := updates(result.Content)
	update[graph.StateKeyLastResponse] = result.Content
	update[graph.StateKeyStatus] = graph.StatusCompleted
	update[graph.StateKeyMessages] = []model.Message{
		model.NewUserMessage(prompt),
		model.NewAssistantMessage(result.Content),
	}
	return update, nil
}

func containsReviseKeyword(input string) bool {
	lowered := strings.ToLower(input)
	for _, kw := range []string{"revise", "change", "rework", "modify", "redo"} {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
