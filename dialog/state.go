// Package dialog implements the appointment-assistant dialogue: the
// node set, routing topology, message formatting and the engine that
// runs turns against durable checkpoints.
package dialog

import (
	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/graph"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
	"github.com/wnakano/luma-appointments-qa/verify"
)

// StateVersion is bumped whenever the State layout changes
// incompatibly; checkpoints carry it so stale sessions can be
// detected.
const StateVersion = 1

// Turn is one completed user/system exchange.
type Turn struct {
	UserMessage   string `json:"user_message"`
	SystemMessage string `json:"system_message"`
}

// AppointmentRecord is the appointment resolved by matching, carried
// until the pending action completes.
type AppointmentRecord struct {
	AppointmentID   string `json:"appointment_id"`
	DoctorFullName  string `json:"doctor_full_name"`
	ClinicName      string `json:"clinic_name"`
	AppointmentDate string `json:"appointment_date"`
	Specialty       string `json:"specialty"`
}

// State is the per-session dialogue state. It is the unit the
// checkpoint saver persists; every field must survive a JSON
// round-trip unchanged.
//
// UserRecord is populated only by the patient verification node and
// AppointmentRecord only by the appointment verification node; no
// other node writes them.
type State struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	// RequestID is the id of the inbound request currently being (or
	// last) processed, used to absorb transport-level retries.
	RequestID string `json:"request_id,omitempty"`

	// UserMessage is the inbound message for the turn in progress.
	UserMessage string `json:"user_message,omitempty"`
	// History is append-only; each entry pairs an inbound message with
	// the reply it produced.
	History []Turn `json:"history"`

	CurrentNode      string            `json:"current_node,omitempty"`
	CurrentIntent    classifier.Intent `json:"current_intent,omitempty"`
	IntentConfidence float64           `json:"intent_confidence,omitempty"`
	Route            graph.Route       `json:"route,omitempty"`

	IsVerified              bool                `json:"is_verified"`
	UserInfo                verify.Info         `json:"user_info"`
	UserRecord              *verify.Record      `json:"user_record,omitempty"`
	VerificationDiagnostics *verify.Diagnostics `json:"verification_diagnostics,omitempty"`

	Appointments           []repository.Appointment `json:"appointments,omitempty"`
	AppointmentInfo        match.Criteria           `json:"appointment_info"`
	AppointmentRecord      *AppointmentRecord       `json:"appointment_record,omitempty"`
	AppointmentDiagnostics *match.Diagnostics       `json:"appointment_diagnostics,omitempty"`

	ConfirmationIntent   classifier.ConfirmationIntent `json:"confirmation_intent,omitempty"`
	ConfirmationAttempts int                           `json:"confirmation_attempts,omitempty"`

	// PendingReply buffers text produced mid-flow (appointment lists,
	// action outcomes) until the response node renders the final
	// message for the turn.
	PendingReply string `json:"pending_reply,omitempty"`
}

// NewState initializes a fresh session.
func NewState(sessionID string) State {
	return State{
		Version:   StateVersion,
		SessionID: sessionID,
	}
}

// LastReply returns the most recent system message, or "".
func (s State) LastReply() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[len(s.History)-1].SystemMessage
}

// appendTurn records the completed exchange for the current inbound
// message.
func (s State) appendTurn(systemMessage string) State {
	s.History = append(s.History, Turn{
		UserMessage:   s.UserMessage,
		SystemMessage: systemMessage,
	})
	return s
}

// exchanges renders the history in the form classifiers consume.
func (s State) exchanges() []classifier.Exchange {
	out := make([]classifier.Exchange, 0, len(s.History))
	for _, t := range s.History {
		out = append(out, classifier.Exchange{User: t.UserMessage, System: t.SystemMessage})
	}
	return out
}
