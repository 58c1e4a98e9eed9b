// Package graph provides a directed state-graph execution engine with
// conditional routing, interrupt points and durable checkpoints.
//
// The graph is generic over its state type S. A node is a function
// (S) -> S; a conditional edge reads a Route value out of the state and
// maps it to a destination node. Execution is strictly sequential: one
// node at a time, no fan-out within a turn.
package graph

import (
	"context"
	"fmt"
	"sort"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// Error types for graph execution.
const (
	ErrorTypeGraphExecution  = "graph_execution_error"
	ErrorTypeInvalidNode     = "invalid_node_error"
	ErrorTypeInvalidEdge     = "invalid_edge_error"
	ErrorTypeConditionalEdge = "conditional_edge_error"
	ErrorTypeNodeExecution   = "node_execution_error"
)

// Route is the symbolic outcome of a node that selects its outgoing
// conditional edge. Route values form a closed set per source node: a
// value without a path-map entry is a configuration error.
type Route string

// NodeFunc is the unit of work executed by a node: (state) -> state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// ConditionalFunc selects the route value for a conditional edge,
// typically by reading a route field off the state.
type ConditionalFunc[S any] func(ctx context.Context, state S) (Route, error)

// Node represents a node in the graph. Nodes are functions with
// metadata; they carry no state of their own.
type Node[S any] struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc[S]
}

// Edge represents an unconditional edge between two nodes.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
type ConditionalEdge[S any] struct {
	From      string
	Condition ConditionalFunc[S]
	PathMap   map[Route]string
}

// Graph is the compiled, immutable runtime structure created by
// StateGraph.Compile. It is safe for concurrent executions.
type Graph[S any] struct {
	nodes            map[string]*Node[S]
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge[S]
	entryPoint       string
	interruptBefore  map[string]bool
	interruptAfter   map[string]bool
}

func newGraph[S any]() *Graph[S] {
	return &Graph[S]{
		nodes:            make(map[string]*Node[S]),
		edges:            make(map[string][]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge[S]),
		interruptBefore:  make(map[string]bool),
		interruptAfter:   make(map[string]bool),
	}
}

// Node returns a node by ID.
func (g *Graph[S]) Node(id string) (*Node[S], bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// NodeIDs returns the IDs of all nodes in the graph, sorted.
func (g *Graph[S]) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns all outgoing unconditional edges from a node.
func (g *Graph[S]) Edges(nodeID string) []*Edge {
	return g.edges[nodeID]
}

// ConditionalEdge returns the conditional edge from a node.
func (g *Graph[S]) ConditionalEdge(nodeID string) (*ConditionalEdge[S], bool) {
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoint returns the entry point node ID.
func (g *Graph[S]) EntryPoint() string {
	return g.entryPoint
}

// InterruptsBefore reports whether execution must suspend before
// running the given node.
func (g *Graph[S]) InterruptsBefore(nodeID string) bool {
	return g.interruptBefore[nodeID]
}

// InterruptsAfter reports whether execution must suspend after running
// the given node.
func (g *Graph[S]) InterruptsAfter(nodeID string) bool {
	return g.interruptAfter[nodeID]
}

// validate validates the graph structure.
func (g *Graph[S]) validate() error {
	if g.entryPoint == "" {
		return fmt.Errorf("graph must have an entry point")
	}
	if _, exists := g.nodes[g.entryPoint]; !exists {
		return fmt.Errorf("entry point node %s does not exist", g.entryPoint)
	}
	for id := range g.interruptBefore {
		if _, exists := g.nodes[id]; !exists {
			return fmt.Errorf("interrupt-before node %s does not exist", id)
		}
	}
	for id := range g.interruptAfter {
		if _, exists := g.nodes[id]; !exists {
			return fmt.Errorf("interrupt-after node %s does not exist", id)
		}
	}
	return nil
}

// addNode adds a node to the graph.
func (g *Graph[S]) addNode(node *Node[S]) error {
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists", node.ID)
	}
	g.nodes[node.ID] = node
	return nil
}

// addEdge adds an unconditional edge to the graph.
func (g *Graph[S]) addEdge(edge *Edge) error {
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
	}
	// Start and End are allowed as virtual endpoints.
	if edge.From != Start {
		if _, exists := g.nodes[edge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", edge.From)
		}
	}
	if edge.To != End {
		if _, exists := g.nodes[edge.To]; !exists {
			return fmt.Errorf("target node %s does not exist", edge.To)
		}
	}
	g.edges[edge.From] = append(g.edges[edge.From], edge)
	return nil
}

// addConditionalEdge adds a conditional edge to the graph.
func (g *Graph[S]) addConditionalEdge(condEdge *ConditionalEdge[S]) error {
	if condEdge.From == "" {
		return fmt.Errorf("conditional edge from cannot be empty")
	}
	if condEdge.Condition == nil {
		return fmt.Errorf("conditional edge from %s has no condition", condEdge.From)
	}
	if condEdge.From != Start {
		if _, exists := g.nodes[condEdge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", condEdge.From)
		}
	}
	if len(condEdge.PathMap) == 0 {
		return fmt.Errorf("conditional edge from %s has an empty path map", condEdge.From)
	}
	// Every declared destination must exist.
	for route, to := range condEdge.PathMap {
		if to != End {
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("target node %s for route %s does not exist", to, route)
			}
		}
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}

// setEntryPoint sets the entry point of the graph.
func (g *Graph[S]) setEntryPoint(nodeID string) error {
	if nodeID != "" {
		if _, exists := g.nodes[nodeID]; !exists {
			return fmt.Errorf("entry point node %s does not exist", nodeID)
		}
	}
	g.entryPoint = nodeID
	return nil
}
