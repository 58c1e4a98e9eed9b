// Package inmemory provides in-memory checkpoint storage for graph
// execution state. It is suitable for tests and single-process
// deployments; state does not survive a restart.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wnakano/luma-appointments-qa/graph"
)

// Saver is an in-memory implementation of graph.CheckpointSaver.
//
// Checkpoints are stored as marshaled JSON so Get always returns an
// isolated copy and the serialization behavior matches the persistent
// savers: a state that fails to round-trip fails here too.
type Saver[S any] struct {
	mu      sync.RWMutex
	storage map[string][]byte
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver[S any]() *Saver[S] {
	return &Saver[S]{
		storage: make(map[string][]byte),
	}
}

// Get retrieves the latest checkpoint for a session.
func (s *Saver[S]) Get(ctx context.Context, sessionID string) (*graph.Checkpoint[S], error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	s.mu.RLock()
	data, ok := s.storage[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var checkpoint graph.Checkpoint[S]
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// Put stores a checkpoint, replacing any previous one for the session.
func (s *Saver[S]) Put(ctx context.Context, checkpoint *graph.Checkpoint[S]) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint is nil")
	}
	if checkpoint.SessionID == "" {
		return graph.ErrSessionIDRequired
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	s.mu.Lock()
	s.storage[checkpoint.SessionID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes the checkpoint for a session.
func (s *Saver[S]) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	s.mu.Lock()
	delete(s.storage, sessionID)
	s.mu.Unlock()
	return nil
}

// Close releases resources held by the saver.
func (s *Saver[S]) Close() error {
	s.mu.Lock()
	s.storage = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}
