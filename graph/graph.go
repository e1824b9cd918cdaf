package graph

import (
	"context"
	"fmt"
)

// Special node names.
const (
	// Start is the virtual entry point of a graph.
	Start = "__start__"
	// End is the virtual exit point of a graph.
	End = "__end__"
)

// NodeFunc is the function executed by a node. It receives the current state
// and returns a state update, or a *Command to combine an update with an
// explicit routing decision.
type NodeFunc func(ctx context.Context, state State) (any, error)

// ConditionalFunc decides the next node after a conditional edge's source
// node has executed.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// Command is a node result that updates state and routes to a specific node,
// overriding the static edges of the graph.
type Command struct {
	// Update is the state update to apply before routing.
	Update State
	// GoTo is the name of the node to execute next.
	GoTo string
}

// Node represents a single step in the graph.
type Node struct {
	Name        string
	Description string
	Function    NodeFunc
}

// Edge is a static transition between two nodes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node to one of several declared targets
// based on the state after the node executed.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	// PathMap declares the permitted targets. The condition's return value
	// is looked up here; an undeclared value is a routing error.
	PathMap map[string]string
}

// Graph is an immutable, validated workflow produced by StateGraph.Compile.
type Graph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
}

// Schema returns the graph's state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// Node returns the named node, or nil if it does not exist.
func (g *Graph) Node(name string) *Node {
	return g.nodes[name]
}

// EntryPoint returns the name of the first node to execute.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// nextNode resolves the node that follows current, consulting conditional
// edges first, then static edges.
func (g *Graph) nextNode(ctx context.Context, current string, state State) (string, error) {
	if condEdge, ok := g.conditionalEdges[current]; ok {
		target, err := condEdge.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("conditional edge from %s: %w", current, err)
		}
		resolved, declared := condEdge.PathMap[target]
		if !declared {
			return "", fmt.Errorf("conditional edge from %s returned undeclared target %q", current, target)
		}
		return resolved, nil
	}
	if edges, ok := g.edges[current]; ok && len(edges) > 0 {
		return edges[0].To, nil
	}
	return "", fmt.Errorf("node %s has no outgoing edge", current)
}

// validate checks graph structure before it can be executed.
func (g *Graph) validate() error {
	if g.entryPoint == "" {
		return fmt.Errorf("graph has no entry point")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return fmt.Errorf("entry point references unknown node: %s", g.entryPoint)
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok && from != Start {
			return fmt.Errorf("edge references unknown source node: %s", from)
		}
		for _, edge := range edges {
			if _, ok := g.nodes[edge.To]; !ok && edge.To != End {
				return fmt.Errorf("edge from %s references unknown target node: %s", from, edge.To)
			}
		}
	}
	for from, condEdge := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("conditional edge references unknown source node: %s", from)
		}
		if condEdge.Condition == nil {
			return fmt.Errorf("conditional edge from %s has no condition", from)
		}
		if len(condEdge.PathMap) == 0 {
			return fmt.Errorf("conditional edge from %s has an empty path map", from)
		}
		for key, target := range condEdge.PathMap {
			if _, ok := g.nodes[target]; !ok && target != End {
				return fmt.Errorf("conditional edge from %s maps %q to unknown node: %s", from, key, target)
			}
		}
	}
	// Every node except the ones routing to End must be reachable onward.
	for name := range g.nodes {
		if _, hasCond := g.conditionalEdges[name]; hasCond {
			continue
		}
		if edges, hasEdge := g.edges[name]; hasEdge && len(edges) > 0 {
			continue
		}
		return fmt.Errorf("node %s has no outgoing edge or conditional edge", name)
	}
	return nil
}
