package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wnakano/luma-appointments-qa/log"
	"github.com/wnakano/luma-appointments-qa/telemetry/trace"
)

// Result describes how an execution halted.
type Result struct {
	// Interrupted is true when execution suspended at an interrupt
	// point and expects to be resumed with the next external input.
	Interrupted bool
	// InterruptedAt is the node that ran last before an
	// interrupt-after suspension; empty for interrupt-before.
	InterruptedAt string
	// NextNodes are the nodes to resume from. For this engine the
	// slice holds a single element; it is a slice because checkpoints
	// persist it and future topologies may fan out.
	NextNodes []string
	// Terminal is true when the virtual End node was reached.
	Terminal bool
}

// Executor executes a compiled graph with a given state.
// A single Executor is safe for concurrent use across sessions; turns
// for the same session must be serialized by the caller.
type Executor[S any] struct {
	graph    *Graph[S]
	maxSteps int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	maxSteps int
}

// WithMaxSteps sets the maximum number of node executions per turn.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *executorOptions) {
		opts.maxSteps = maxSteps
	}
}

// defaultMaxSteps bounds a single turn; a well-formed dialogue turn
// visits far fewer nodes before hitting an interrupt point.
const defaultMaxSteps = 50

// NewExecutor creates a new graph executor.
func NewExecutor[S any](graph *Graph[S], opts ...ExecutorOption) (*Executor[S], error) {
	if graph == nil {
		return nil, errors.New("graph is nil")
	}
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := executorOptions{maxSteps: defaultMaxSteps}
	for _, opt := range opts {
		opt(&options)
	}
	return &Executor[S]{
		graph:    graph,
		maxSteps: options.maxSteps,
	}, nil
}

// Execute walks the graph from startNode (or the entry point when
// startNode is empty), applying nodes and conditional routing until an
// interrupt point or the End node is reached. It returns the final
// state together with a Result describing the halt.
//
// The start node always runs, even when it is marked interrupt-before:
// a resume lands exactly on the node the previous turn suspended at.
func (e *Executor[S]) Execute(ctx context.Context, state S, startNode string) (S, *Result, error) {
	ctx, span := trace.Tracer.Start(ctx, "execute_graph")
	defer span.End()

	current := startNode
	if current == "" {
		current = e.graph.EntryPoint()
	}
	if current == "" {
		return state, nil, errors.New("no entry point found")
	}

	var stepCount int
	for {
		select {
		case <-ctx.Done():
			return state, nil, ctx.Err()
		default:
		}
		stepCount++
		if stepCount > e.maxSteps {
			return state, nil, fmt.Errorf("maximum execution steps (%d) exceeded", e.maxSteps)
		}

		newState, err := e.executeNode(ctx, state, current)
		if err != nil {
			span.SetAttributes(attribute.String("assistant.error", err.Error()))
			return state, nil, fmt.Errorf("error executing node %s: %w", current, err)
		}
		state = newState

		next, err := e.selectNextNode(ctx, state, current)
		if err != nil {
			span.SetAttributes(attribute.String("assistant.error", err.Error()))
			return state, nil, err
		}

		if next == End {
			return state, &Result{Terminal: true}, nil
		}
		if e.graph.InterruptsAfter(current) {
			log.Debugf("graph interrupted after node %s, next: %s", current, next)
			return state, &Result{
				Interrupted:   true,
				InterruptedAt: current,
				NextNodes:     []string{next},
			}, nil
		}
		if e.graph.InterruptsBefore(next) {
			log.Debugf("graph interrupted before node %s", next)
			return state, &Result{
				Interrupted: true,
				NextNodes:   []string{next},
			}, nil
		}
		current = next
	}
}

// executeNode executes a single node and returns the updated state.
func (e *Executor[S]) executeNode(ctx context.Context, state S, nodeID string) (S, error) {
	node, exists := e.graph.Node(nodeID)
	if !exists {
		return state, fmt.Errorf("node %s not found", nodeID)
	}

	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_node %s", nodeID))
	defer span.End()
	span.SetAttributes(
		attribute.String("assistant.node_id", nodeID),
		attribute.String("assistant.node_name", node.Name),
	)

	if node.Function == nil {
		return state, nil
	}
	newState, err := node.Function(ctx, state)
	if err != nil {
		span.SetAttributes(attribute.String("assistant.error", err.Error()))
		return state, fmt.Errorf("node function execution failed: %w", err)
	}
	return newState, nil
}

// selectNextNode selects the next node based on edges and conditional
// logic. A conditional route value with no path-map entry is a
// configuration error and fails loudly rather than defaulting to an
// arbitrary branch.
func (e *Executor[S]) selectNextNode(ctx context.Context, state S, currentNodeID string) (string, error) {
	if condEdge, exists := e.graph.ConditionalEdge(currentNodeID); exists {
		route, err := condEdge.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("conditional edge evaluation failed for %s: %w", currentNodeID, err)
		}
		if next, ok := condEdge.PathMap[route]; ok {
			return next, nil
		}
		return "", fmt.Errorf("%w: route %q from node %s", ErrRouteNotMapped, route, currentNodeID)
	}
	edges := e.graph.Edges(currentNodeID)
	if len(edges) == 0 {
		// No outgoing edges: treat the node as terminal.
		return End, nil
	}
	return edges[0].To, nil
}
