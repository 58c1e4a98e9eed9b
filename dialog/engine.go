package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/graph"
	"github.com/wnakano/luma-appointments-qa/log"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
	"github.com/wnakano/luma-appointments-qa/verify"
)

const (
	defaultCallTimeout             = 15 * time.Second
	defaultMaxConfirmationAttempts = 3
)

// Config wires the engine's collaborators.
type Config struct {
	// Repository stores patients and appointments. Required.
	Repository repository.Repository
	// Intent classifies inbound messages. Required.
	Intent classifier.IntentClassifier
	// Confirmation reads replies to yes/no questions. Required.
	Confirmation classifier.ConfirmationClassifier
	// Answerer answers general questions. Required.
	Answerer classifier.Answerer
	// Semantic resolves ambiguous appointment descriptions. Optional;
	// without it ambiguous criteria go straight to diagnosis.
	Semantic match.SemanticMatcher
	// Saver persists per-session checkpoints. Required.
	Saver graph.CheckpointSaver[State]

	// CallTimeout bounds each collaborator call. Defaults to 15s.
	CallTimeout time.Duration
	// MaxConfirmationAttempts bounds the ask/process confirmation
	// cycle on repeated unclear replies. Defaults to 3.
	MaxConfirmationAttempts int
}

// Engine runs dialogue turns. Turns for different sessions run
// concurrently; turns for the same session are serialized by a keyed
// mutex so checkpoint read/modify/write never interleaves.
type Engine struct {
	repo         repository.Repository
	intent       classifier.IntentClassifier
	confirmation classifier.ConfirmationClassifier
	answerer     classifier.Answerer
	resolver     *verify.Resolver
	matcher      *match.Matcher
	saver        graph.CheckpointSaver[State]
	executor     *graph.Executor[State]

	callTimeout             time.Duration
	maxConfirmationAttempts int

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewEngine validates the configuration, builds the dialogue graph
// and returns a ready engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if cfg.Intent == nil {
		return nil, errors.New("intent classifier is required")
	}
	if cfg.Confirmation == nil {
		return nil, errors.New("confirmation classifier is required")
	}
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	if cfg.Saver == nil {
		return nil, errors.New("checkpoint saver is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxConfirmationAttempts <= 0 {
		cfg.MaxConfirmationAttempts = defaultMaxConfirmationAttempts
	}

	e := &Engine{
		repo:                    cfg.Repository,
		intent:                  cfg.Intent,
		confirmation:            cfg.Confirmation,
		answerer:                cfg.Answerer,
		resolver:                verify.NewResolver(cfg.Repository),
		matcher:                 match.NewMatcher(cfg.Semantic),
		saver:                   cfg.Saver,
		callTimeout:             cfg.CallTimeout,
		maxConfirmationAttempts: cfg.MaxConfirmationAttempts,
		sessions:                make(map[string]*sync.Mutex),
	}

	g, err := buildGraph(e)
	if err != nil {
		return nil, fmt.Errorf("build dialogue graph: %w", err)
	}
	executor, err := graph.NewExecutor(g)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	e.executor = executor
	return e, nil
}

// sessionLock returns the mutex serializing turns for one session.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.sessions[sessionID] = lock
	}
	return lock
}

// HandleTurn processes one inbound message: load-or-init the session
// checkpoint, run the graph to its next interrupt point, persist, and
// return the state whose last history entry carries the reply.
//
// An empty sessionID starts a new session with a generated id.
// Replaying the requestID the session last processed returns the
// persisted state without re-executing, so transport retries never
// double-apply an action.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, requestID, userMessage string) (*State, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	checkpoint, err := e.saver.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for session %s: %w", sessionID, err)
	}

	var (
		state State
		start string
	)
	if checkpoint == nil {
		state = NewState(sessionID)
	} else {
		state = checkpoint.State
		if requestID != "" && state.RequestID == requestID {
			log.Infof("replayed request %s for session %s, returning persisted state", requestID, sessionID)
			return &state, nil
		}
		if len(checkpoint.NextNodes) > 0 {
			start = checkpoint.NextNodes[0]
		}
	}
	state.RequestID = requestID
	state.UserMessage = userMessage

	newState, result, err := e.executor.Execute(ctx, state, start)
	if err != nil {
		// The previously persisted checkpoint is left untouched, so the
		// session can retry from where it stood before this turn.
		return nil, fmt.Errorf("execute turn for session %s: %w", sessionID, err)
	}

	cp := graph.NewCheckpoint(sessionID, newState, result.NextNodes, result.Interrupted)
	if err := e.saver.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint for session %s: %w", sessionID, err)
	}
	log.Debugf("session %s suspended at %s awaiting next message", sessionID, newState.CurrentNode)
	return &newState, nil
}

// EndSession discards the session's checkpoint and lock.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	if err := e.saver.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint for session %s: %w", sessionID, err)
	}
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	return nil
}
