// Package sqlite provides SQLite-based checkpoint storage for graph
// execution state persistence and recovery.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wnakano/luma-appointments-qa/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"session_id TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"PRIMARY KEY (session_id)" +
		")"

	sqliteUpsertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"session_id, checkpoint_id, ts, checkpoint_json) VALUES (?, ?, ?, ?)"

	sqliteSelectCheckpoint = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE session_id = ? LIMIT 1"

	sqliteDeleteCheckpoint = "DELETE FROM checkpoints WHERE session_id = ?"
)

// Saver is a SQLite-backed implementation of graph.CheckpointSaver.
// It expects an initialized *sql.DB using a SQLite driver and creates
// the required schema. The checkpoint is stored as a JSON blob, one
// row per session, overwritten every turn.
type Saver[S any] struct {
	db *sql.DB
}

// NewSaver creates a new saver using the provided DB.
func NewSaver[S any](db *sql.DB) (*Saver[S], error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Saver[S]{db: db}, nil
}

// Get retrieves the latest checkpoint for a session.
func (s *Saver[S]) Get(ctx context.Context, sessionID string) (*graph.Checkpoint[S], error) {
	if sessionID == "" {
		return nil, graph.ErrSessionIDRequired
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectCheckpoint, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint: %w", err)
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
	_, err = s.db.ExecContext(ctx, sqliteUpsertCheckpoint,
		checkpoint.SessionID,
		checkpoint.ID,
		checkpoint.Timestamp.UnixNano(),
		data,
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for a session.
func (s *Saver[S]) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return graph.ErrSessionIDRequired
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteCheckpoint, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases resources held by the saver. The DB is owned by the
// caller and is not closed here.
func (s *Saver[S]) Close() error {
	return nil
}
