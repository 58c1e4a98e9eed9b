// Package classifier defines the structured classification contracts
// the dialogue core delegates to: intent classification, confirmation
// classification and free-text question answering. Implementations
// live in subpackages; failures degrade to documented low-confidence
// defaults rather than propagating.
package classifier

import (
	"context"

	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/verify"
)

// Intent enumerates what the user is trying to do this turn.
type Intent string

// User intents.
const (
	IntentGeneralQA              Intent = "general_qa"
	IntentListAppointments       Intent = "list_appointments"
	IntentConfirmAppointment     Intent = "confirm_appointment"
	IntentCancelAppointment      Intent = "cancel_appointment"
	IntentUserInformation        Intent = "user_information"
	IntentAppointmentInformation Intent = "appointment_information"
)

// Valid reports whether the intent is one of the defined constants.
func (i Intent) Valid() bool {
	switch i {
	case IntentGeneralQA, IntentListAppointments, IntentConfirmAppointment,
		IntentCancelAppointment, IntentUserInformation, IntentAppointmentInformation:
		return true
	}
	return false
}

// RequiresVerification reports whether the intent needs a verified
// patient before it can be served.
func (i Intent) RequiresVerification() bool {
	switch i {
	case IntentListAppointments, IntentConfirmAppointment, IntentCancelAppointment:
		return true
	}
	return false
}

// ConfirmationIntent is the classified reading of a yes/no reply.
type ConfirmationIntent string

// Confirmation readings.
const (
	ConfirmationConfirm ConfirmationIntent = "confirm"
	ConfirmationReject  ConfirmationIntent = "reject"
	ConfirmationUnclear ConfirmationIntent = "unclear"
)

// Exchange is one user/system turn pair as rendered into prompts.
type Exchange struct {
	User   string `json:"user"`
	System string `json:"system"`
}

// IntentResult is the structured outcome of intent classification.
// VerificationInfo and AppointmentInfo carry any identity or
// appointment fields extracted from the same message.
type IntentResult struct {
	Intent           Intent          `json:"intent"`
	Confidence       float64         `json:"confidence"`
	VerificationInfo *verify.Info    `json:"verification_info,omitempty"`
	AppointmentInfo  *match.Criteria `json:"appointment_info,omitempty"`
	RawQuery         string          `json:"raw_query,omitempty"`
}

// ConfirmationResult is the structured outcome of confirmation
// classification.
type ConfirmationResult struct {
	Intent     ConfirmationIntent `json:"intent"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning,omitempty"`
}

// FallbackIntentResult is the documented default when intent
// classification fails: the safest intent at zero confidence.
func FallbackIntentResult(userMessage string) *IntentResult {
	return &IntentResult{
		Intent:     IntentGeneralQA,
		Confidence: 0,
		RawQuery:   userMessage,
	}
}

// FallbackConfirmationResult is the documented default when
// confirmation classification fails.
func FallbackConfirmationResult() *ConfirmationResult {
	return &ConfirmationResult{
		Intent:     ConfirmationUnclear,
		Confidence: 0,
		Reasoning:  "classification unavailable",
	}
}

// IntentClassifier classifies an inbound message given the recent
// conversation history.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, userMessage string, history []Exchange) (*IntentResult, error)
}

// ConfirmationClassifier reads a free-text reply to a yes/no question.
type ConfirmationClassifier interface {
	ClassifyConfirmation(ctx context.Context, userMessage, question string) (*ConfirmationResult, error)
}

// Answerer produces a grounded answer to a general question.
type Answerer interface {
	Answer(ctx context.Context, userMessage string, history []Exchange) (string, error)
}
