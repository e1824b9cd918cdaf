package graph

import "fmt"

// StateGraph is a fluent builder for Graph.
type StateGraph struct {
	graph *Graph
	errs  []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		graph: &Graph{
			schema:           schema,
			nodes:            make(map[string]*Node),
			edges:            make(map[string][]*Edge),
			conditionalEdges: make(map[string]*ConditionalEdge),
		},
	}
}

// AddNode adds a node to the graph. Adding a node with a duplicate name is a
// build error reported by Compile.
func (sg *StateGraph) AddNode(name string, fn NodeFunc, opts ...NodeOption) *StateGraph {
	if name == "" || name == Start || name == End {
		sg.errs = append(sg.errs, fmt.Errorf("invalid node name: %q", name))
		return sg
	}
	if fn == nil {
		sg.errs = append(sg.errs, fmt.Errorf("node %s has a nil function", name))
		return sg
	}
	if _, exists := sg.graph.nodes[name]; exists {
		sg.errs = append(sg.errs, fmt.Errorf("duplicate node name: %s", name))
		return sg
	}
	node := &Node{Name: name, Function: fn}
	for _, opt := range opts {
		opt(node)
	}
	sg.graph.nodes[name] = node
	return sg
}

// NodeOption configures a node.
type NodeOption func(*Node)

// WithNodeDescription sets a human-readable description on the node.
func WithNodeDescription(description string) NodeOption {
	return func(n *Node) {
		n.Description = description
	}
}

// AddEdge adds a static edge between two nodes.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.graph.edges[from] = append(sg.graph.edges[from], &Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges adds a conditional routing decision after the given
// node. pathMap declares every permitted target; a condition result outside
// the map fails the invocation at runtime.
func (sg *StateGraph) AddConditionalEdges(from string, condition ConditionalFunc, pathMap map[string]string) *StateGraph {
	if _, exists := sg.graph.conditionalEdges[from]; exists {
		sg.errs = append(sg.errs, fmt.Errorf("duplicate conditional edge from node: %s", from))
		return sg
	}
	sg.graph.conditionalEdges[from] = &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}
	return sg
}

// SetEntryPoint marks the node executed first.
func (sg *StateGraph) SetEntryPoint(name string) *StateGraph {
	sg.graph.entryPoint = name
	return sg
}

// SetFinishPoint adds an edge from the node to End.
func (sg *StateGraph) SetFinishPoint(name string) *StateGraph {
	return sg.AddEdge(name, End)
}

// Compile validates the graph and returns it. The builder must not be
// reused after a successful compile.
func (sg *StateGraph) Compile() (*Graph, error) {
	if len(sg.errs) > 0 {
		return nil, fmt.Errorf("graph build error: %w", sg.errs[0])
	}
	if err := sg.graph.validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return sg.graph, nil
}
