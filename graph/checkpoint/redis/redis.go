// Package redis provides Redis-backed checkpoint storage for graph
// execution state, suitable for multi-process deployments where
// sessions must survive restarts and be shared across replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/wnakano/luma-appointments-qa/graph"
)

const defaultPrefix = "luma:checkpoint:"

// Saver is a Redis-backed implementation of graph.CheckpointSaver.
type Saver[S any] struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Saver.
type Option[S any] func(*Saver[S])

// WithTTL sets the expiration for checkpoints. Zero means no
// expiration; session retention is otherwise an external concern.
func WithTTL[S any](ttl time.Duration) Option[S] {
	return func(s *Saver[S]) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for checkpoints.
func WithPrefix[S any](prefix string) Option[S] {
	return func(s *Saver[S]) {
		s.prefix = prefix
	}
}

// NewSaver creates a Redis saver connecting to the given address.
func NewSaver[S any](address, password string, db int, opts ...Option[S]) *Saver[S] {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewSaverFromClient(client, opts...)
}

// NewSaverFromClient creates a Redis saver from an existing client.
func NewSaverFromClient[S any](client *backend.Client, opts ...Option[S]) *Saver[S] {
	saver := &Saver[S]{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(saver)
	}
	return saver
}

func (s *Saver[S]) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get retrieves the latest checkpoint for a session.
func (s *Saver[S]) Get(ctx context.Context, sessionID string) (*graph.Checkpoint[S], error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get checkpoint: %w", err)
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
		return errors.New("checkpoint is nil")
	}
	if checkpoint.SessionID == "" {
		return graph.ErrSessionIDRequired
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(checkpoint.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for a session.
func (s *Saver[S]) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Saver[S]) Close() error {
	return s.client.Close()
}
