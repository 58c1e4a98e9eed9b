package graph

import (
	"fmt"
)

// StateGraph provides a fluent interface for building graphs.
// This is the primary public API for creating executable graphs.
//
// Example usage:
//
//	g, err := NewStateGraph[MyState]().
//	  AddNode("classify", classifyFunc).
//	  AddNode("answer", answerFunc).
//	  AddConditionalEdges("classify", routeSelector, map[Route]string{
//	    "QA": "answer",
//	  }).
//	  SetEntryPoint("classify").
//	  SetInterruptAfter("answer").
//	  Compile()
//
// The compiled Graph can then be executed with NewExecutor(g).
type StateGraph[S any] struct {
	graph *Graph[S]
	// First build error wins; Compile reports it.
	err error
}

// NewStateGraph creates a new graph builder.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{graph: newGraph[S]()}
}

// Option is a function that configures a Node.
type Option[S any] func(*Node[S])

// WithName sets the name of the node.
func WithName[S any](name string) Option[S] {
	return func(node *Node[S]) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription[S any](description string) Option[S] {
	return func(node *Node[S]) {
		node.Description = description
	}
}

func (sg *StateGraph[S]) record(err error) {
	if sg.err == nil && err != nil {
		sg.err = err
	}
}

// AddNode adds a node with the given ID and function.
func (sg *StateGraph[S]) AddNode(id string, function NodeFunc[S], opts ...Option[S]) *StateGraph[S] {
	node := &Node[S]{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.record(sg.graph.addNode(node))
	return sg
}

// AddEdge adds an unconditional edge between two nodes.
func (sg *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	sg.record(sg.graph.addEdge(&Edge{From: from, To: to}))
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The
// condition reads a Route off the state; the path map declares the
// closed set of admissible route values for this source node.
func (sg *StateGraph[S]) AddConditionalEdges(
	from string,
	condition ConditionalFunc[S],
	pathMap map[Route]string,
) *StateGraph[S] {
	sg.record(sg.graph.addConditionalEdge(&ConditionalEdge[S]{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}))
	return sg
}

// SetEntryPoint sets the entry point of the graph.
// This is equivalent to AddEdge(Start, nodeID).
func (sg *StateGraph[S]) SetEntryPoint(nodeID string) *StateGraph[S] {
	sg.record(sg.graph.setEntryPoint(nodeID))
	sg.AddEdge(Start, nodeID)
	return sg
}

// SetFinishPoint adds an edge from the node to End.
func (sg *StateGraph[S]) SetFinishPoint(nodeID string) *StateGraph[S] {
	sg.AddEdge(nodeID, End)
	return sg
}

// SetInterruptBefore marks nodes where execution suspends before the
// node runs, letting an external decision gate entry.
func (sg *StateGraph[S]) SetInterruptBefore(nodeIDs ...string) *StateGraph[S] {
	for _, id := range nodeIDs {
		sg.graph.interruptBefore[id] = true
	}
	return sg
}

// SetInterruptAfter marks nodes where execution suspends after the node
// runs, awaiting the next external message before continuing.
func (sg *StateGraph[S]) SetInterruptAfter(nodeIDs ...string) *StateGraph[S] {
	for _, id := range nodeIDs {
		sg.graph.interruptAfter[id] = true
	}
	return sg
}

// Compile compiles the graph and returns it for execution.
func (sg *StateGraph[S]) Compile() (*Graph[S], error) {
	if sg.err != nil {
		return nil, fmt.Errorf("invalid graph: %w", sg.err)
	}
	if err := sg.graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph[S]) MustCompile() *Graph[S] {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}
