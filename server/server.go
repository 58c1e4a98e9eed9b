// Package server exposes the dialogue engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/cors"

	"github.com/wnakano/luma-appointments-qa/dialog"
	"github.com/wnakano/luma-appointments-qa/log"
)

const (
	defaultAddr        = ":8080"
	defaultParallelism = 64

	readHeaderTimeout = 10 * time.Second
)

// TurnHandler runs one dialogue turn. *dialog.Engine implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sessionID, requestID, userMessage string) (*dialog.State, error)
}

// QuestionRequest is the inbound chat payload. SessionID is empty on
// the first message of a conversation.
type QuestionRequest struct {
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id,omitempty"`
	UserMessage string `json:"user_message"`
}

// QuestionResponse is the chat reply payload.
type QuestionResponse struct {
	RequestID    string  `json:"request_id"`
	SessionID    string  `json:"session_id"`
	SystemAnswer string  `json:"system_answer"`
	Timestamp    string  `json:"timestamp"`
	ElapsedTime  float64 `json:"elapsed_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Options configures the server.
type Options struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string
	// Parallelism caps concurrently executing turns. Defaults to 64.
	Parallelism int
	// AllowedOrigins configures CORS. Empty allows all origins.
	AllowedOrigins []string
}

// Server serves the chatbot HTTP API.
type Server struct {
	handler TurnHandler
	pool    *ants.Pool
	httpSrv *http.Server
}

// New creates a server around the given turn handler.
func New(handler TurnHandler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.New("turn handler is required")
	}
	if opts.Addr == "" {
		opts.Addr = defaultAddr
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	pool, err := ants.NewPool(opts.Parallelism)
	if err != nil {
		return nil, err
	}

	s := &Server{
		handler: handler,
		pool:    pool,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/chatbot/question", s.handleQuestion).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Infof("chatbot server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.pool.Release()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserMessage == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_message is required"})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request_id is required"})
		return
	}

	var (
		state *dialog.State
		err   error
		done  = make(chan struct{})
	)
	submitErr := s.pool.Submit(func() {
		defer close(done)
		state, err = s.handler.HandleTurn(r.Context(), req.SessionID, req.RequestID, req.UserMessage)
	})
	if submitErr != nil {
		log.Warnf("turn pool rejected request %s: %v", req.RequestID, submitErr)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is busy, please retry"})
		return
	}
	<-done

	if err != nil {
		log.Errorf("turn failed for request %s: %v", req.RequestID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "something went wrong, please try again"})
		return
	}

	writeJSON(w, http.StatusOK, QuestionResponse{
		RequestID:    req.RequestID,
		SessionID:    state.SessionID,
		SystemAnswer: state.LastReply(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ElapsedTime:  time.Since(started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write response: %v", err)
	}
}
