// Package research implements the deep-research pipeline: plan generation,
// human plan approval via interrupt, coordinated research with tools, and a
// final report.
package research

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/winhok/QAchatBot-sub001/agent"
	"github.com/winhok/QAchatBot-sub001/graph"
	"github.com/winhok/QAchatBot-sub001/model"
	"github.com/winhok/QAchatBot-sub001/tool"
	"github.com/winhok/QAchatBot-sub001/workflow"
)

// Node names.
const (
	NodeGeneratePlan       = "generate_plan"
	NodeHumanFeedback      = "human_feedback"
	NodeCoordinateResearch = "coordinate_research"
	NodeResearchTeam       = "research_team"
	NodeReporter           = "reporter"
)

// State keys specific to the research workflow.
const (
	StateKeyTopic        = "research_topic"
	StateKeyPlan         = "plan"
	StateKeyUserFeedback = "user_feedback"
	StateKeyProgress     = "progress"
	StateKeyFindings     = "findings"
	StateKeyFinalReport  = "final_report"
)

// interruptKeyPlanApproval identifies the human approval interrupt.
const interruptKeyPlanApproval = "plan_approval"

// Workflow is the compiled deep-research pipeline bound to a model, a tool
// set, and a checkpoint saver.
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

// New builds and compiles the research workflow.
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
		g, err = o.cache.GetOrCompile("research/"+m.Info().Name, build)
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

// Run starts a new research thread for the topic. When the workflow pauses
// for plan approval the returned error is an *graph.InterruptError and the
// state holds the proposed plan.
func (w *Workflow) Run(ctx context.Context, lineageID, topic string) (graph.State, error) {
	return w.executor.Invoke(ctx, graph.State{
		StateKeyTopic:        topic,
		graph.StateKeyStatus: graph.StatusRunning,
	}, graph.WithLineageID(lineageID))
}

// Resume continues an interrupted thread with the reviewer's feedback.
// Empty feedback approves the plan; non-empty feedback sends the workflow
// back to plan generation.
func (w *Workflow) Resume(ctx context.Context, lineageID, feedback string) (graph.State, error) {
	return w.executor.Invoke(ctx, nil,
		graph.WithLineageID(lineageID),
		graph.WithResume(map[string]any{"userFeedback": feedback}))
}

// GetState returns the thread's latest checkpointed state.
func (w *Workflow) GetState(ctx context.Context, lineageID string) (*graph.StateSnapshot, error) {
	return w.executor.GetState(ctx, lineageID)
}

// Schema returns the research workflow's state schema.
func Schema() *graph.StateSchema {
	schema := graph.MessagesStateSchema()
	schema.AddField(StateKeyTopic, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyPlan, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyUserFeedback, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyFindings, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyFinalReport, graph.StateField{Type: reflect.TypeOf("")})
	schema.AddField(StateKeyProgress, graph.StateField{
		Type:    reflect.TypeOf(float64(0)),
		Reducer: graph.ProgressReducer,
		Default: func() any { return float64(0) },
	})
	return schema
}

// Build assembles and compiles the research graph.
func Build(m model.Model, tools []tool.CallableTool) (*graph.Graph, error) {
	nodes := &nodeSet{model: m, tools: tools}
	return graph.NewStateGraph(Schema()).
		AddNode(NodeGeneratePlan, nodes.generatePlan).
		AddNode(NodeHumanFeedback, nodes.humanFeedback).
		AddNode(NodeCoordinateResearch, nodes.coordinateResearch).
		AddNode(NodeResearchTeam, nodes.researchTeam).
		AddNode(NodeReporter, nodes.reporter).
		SetEntryPoint(NodeGeneratePlan).
		AddEdge(NodeGeneratePlan, NodeHumanFeedback).
		AddEdge(NodeHumanFeedback, NodeCoordinateResearch).
		AddEdge(NodeCoordinateResearch, NodeResearchTeam).
		AddEdge(NodeResearchTeam, NodeReporter).
		SetFinishPoint(NodeReporter).
		Compile()
}

type nodeSet struct {
	model model.Model
	tools []tool.CallableTool
}

// generatePlan drafts a research plan, folding in reviewer feedback from a
// previous round when present.
func (n *nodeSet) generatePlan(ctx context.Context, state graph.State) (any, error) {
	topic, _ := state[StateKeyTopic].(string)
	feedback, _ := state[StateKeyUserFeedback].(string)

	prompt := fmt.Sprintf("Draft a numbered research plan for the topic below. "+
		"Keep it to at most five concrete steps.\n\nTopic: %s", topic)
	if feedback != "" {
		previousPlan, _ := state[StateKeyPlan].(string)
		prompt += fmt.Sprintf("\n\nA reviewer rejected the previous plan.\nPrevious plan:\n%s\nReviewer feedback: %s",
			previousPlan, feedback)
	}
	plan, err := generateText(ctx, n.model, prompt)
	if err != nil {
		return errorState(err), nil
	}
	return graph.State{
		StateKeyPlan:         plan,
		StateKeyUserFeedback: "",
		StateKeyProgress:     float64(-20),
	}, nil
}

// humanFeedback pauses for plan approval and routes on the answer: empty
// feedback with a plan in hand approves, anything else regenerates.
func (n *nodeSet) humanFeedback(ctx context.Context, state graph.State) (any, error) {
	plan, _ := state[StateKeyPlan].(string)
	value, err := graph.Interrupt(ctx, state, interruptKeyPlanApproval, map[string]any{
		"plan":     plan,
		"question": "Approve this plan? Reply with empty feedback to approve, or describe the changes you want.",
	})
	if err != nil {
		return nil, err
	}
	feedback := feedbackFromResume(value)
	if feedback == "" && plan != "" {
		return &graph.Command{
			Update: graph.State{StateKeyUserFeedback: ""},
			GoTo:   NodeCoordinateResearch,
		}, nil
	}
	return &graph.Command{
		Update: graph.State{StateKeyUserFeedback: feedback},
		GoTo:   NodeGeneratePlan,
	}, nil
}

// coordinateResearch turns the approved plan into concrete research tasks.
func (n *nodeSet) coordinateResearch(ctx context.Context, state graph.State) (any, error) {
	plan, _ := state[StateKeyPlan].(string)
	tasks, err := generateText(ctx, n.model, fmt.Sprintf(
		"Turn this research plan into a short list of concrete research questions "+
			"to investigate, one per line.\n\nPlan:\n%s", plan))
	if err != nil {
		return errorState(err), nil
	}
	return graph.State{
		StateKeyFindings: tasks,
		StateKeyProgress: float64(-20),
	}, nil
}

// researchTeam investigates the questions with the bound tool set.
func (n *nodeSet) researchTeam(ctx context.Context, state graph.State) (any, error) {
	topic, _ := state[StateKeyTopic].(string)
	questions, _ := state[StateKeyFindings].(string)
	loop := agent.New(n.model, n.tools)
	result, err := loop.Run(ctx, []model.Message{
		model.NewSystemMessage("You are a research agent. Use the available tools to gather " +
			"and record information, then report your findings."),
		model.NewUserMessage(fmt.Sprintf("Topic: %s\n\nInvestigate these questions:\n%s", topic, questions)),
	})
	if err != nil {
		return errorState(err), nil
	}
	return graph.State{
		StateKeyFindings: result.Content,
		StateKeyProgress: float64(-20),
	}, nil
}

// reporter writes the final report and completes the workflow.
func (n *nodeSet) reporter(ctx context.Context, state graph.State) (any, error) {
	topic, _ := state[StateKeyTopic].(string)
	findings, _ := state[StateKeyFindings].(string)
	report, err := generateText(ctx, n.model, fmt.Sprintf(
		"Write a concise research report on %q based on these findings:\n\n%s", topic, findings))
	if err != nil {
		return errorState(err), nil
	}
	return graph.State{
		StateKeyFinalReport:        report,
		graph.StateKeyLastResponse: report,
		graph.StateKeyStatus:       graph.StatusCompleted,
		StateKeyProgress:           float64(100),
	}, nil
}

// feedbackFromResume extracts the reviewer feedback from a resume value,
// accepting either a bare string or a {userFeedback} map.
func feedbackFromResume(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if s, ok := v["userFeedback"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// errorState converts an external failure into terminal error state. The
// workflow ends in a well-defined state instead of failing the invocation.
func errorState(err error) *graph.Command {
	return &graph.Command{
		Update: graph.State{
			graph.StateKeyStatus: graph.StatusError,
			graph.StateKeyError:  err.Error(),
		},
		GoTo: graph.End,
	}
}

// generateText runs one non-streaming model call and returns the content.
func generateText(ctx context.Context, m model.Model, prompt string) (string, error) {
	responseChan, err := m.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	var content strings.Builder
	for response := range responseChan {
		if response.Error != nil {
			return "", fmt.Errorf("model error: %s", response.Error.Message)
		}
		if len(response.Choices) > 0 {
			content.WriteString(response.Choices[0].Message.Content)
		}
		if response.Done {
			break
		}
	}
	return strings.TrimSpace(content.String()), nil
}
