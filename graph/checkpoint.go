package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckpointVersion is the current version of the checkpoint format.
const CheckpointVersion = 1

// Checkpoint is the durable snapshot of a session: the latest state
// plus the resume metadata of the interrupted execution. One checkpoint
// exists per session; it is overwritten every turn.
type Checkpoint[S any] struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// SessionID keys the checkpoint.
	SessionID string `json:"session_id"`
	// State is the session state at suspension time. It must
	// round-trip through JSON unchanged field-for-field.
	State S `json:"state"`
	// NextNodes are the nodes execution resumes from.
	NextNodes []string `json:"next_nodes,omitempty"`
	// Interrupted is true when the session is paused at an interrupt
	// point awaiting external input.
	Interrupted bool `json:"interrupted"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
}

// NewCheckpoint creates a checkpoint for a session.
func NewCheckpoint[S any](sessionID string, state S, nextNodes []string, interrupted bool) *Checkpoint[S] {
	return &Checkpoint[S]{
		Version:     CheckpointVersion,
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		State:       state,
		NextNodes:   nextNodes,
		Interrupted: interrupted,
		Timestamp:   time.Now().UTC(),
	}
}

// CheckpointSaver defines the interface for checkpoint storage
// implementations. Implementations must guarantee session-scoped
// read-your-writes consistency: a Get following a Put for the same
// session observes that Put.
type CheckpointSaver[S any] interface {
	// Get retrieves the latest checkpoint for a session.
	// It returns (nil, nil) when the session has no checkpoint.
	Get(ctx context.Context, sessionID string) (*Checkpoint[S], error)
	// Put stores a checkpoint, replacing any previous one for the
	// same session.
	Put(ctx context.Context, checkpoint *Checkpoint[S]) error
	// Delete removes the checkpoint for a session.
	Delete(ctx context.Context, sessionID string) error
	// Close releases resources held by the saver.
	Close() error
}
