package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/graph"
	"github.com/wnakano/luma-appointments-qa/graph/checkpoint/inmemory"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
	"github.com/wnakano/luma-appointments-qa/repository/memory"
	"github.com/wnakano/luma-appointments-qa/verify"
)

var (
	janeInfo = verify.Info{
		FullName:    "Jane Doe",
		PhoneNumber: "+15551234567",
		DateOfBirth: "1990-01-01",
	}
	janePatient = repository.Patient{
		ID:          "pat-1",
		FullName:    "Jane Doe",
		PhoneNumber: "+15551234567",
		DateOfBirth: "1990-01-01",
	}
	janeAppointment = repository.Appointment{
		ID:        "apt-1",
		PatientID: "pat-1",
		StartsAt:  time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
		EndsAt:    time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC),
		Status:    repository.StatusScheduled,
		Provider:  repository.Provider{FullName: "Dr. Smith", Specialty: "Cardiology"},
		Clinic:    repository.Clinic{Name: "Northside Clinic"},
	}
)

// scriptedClassifier pops pre-programmed results in order; running out
// of script is a test bug surfaced as an error.
type scriptedClassifier struct {
	intents       []*classifier.IntentResult
	confirmations []*classifier.ConfirmationResult
	answers       []string

	intentCalls       int
	confirmationCalls int
	answerCalls       int
}

func (s *scriptedClassifier) ClassifyIntent(ctx context.Context, userMessage string, history []classifier.Exchange) (*classifier.IntentResult, error) {
	s.intentCalls++
	if len(s.intents) == 0 {
		return nil, errors.New("intent script exhausted")
	}
	result := s.intents[0]
	s.intents = s.intents[1:]
	return result, nil
}

func (s *scriptedClassifier) ClassifyConfirmation(ctx context.Context, userMessage, question string) (*classifier.ConfirmationResult, error) {
	s.confirmationCalls++
	if len(s.confirmations) == 0 {
		return nil, errors.New("confirmation script exhausted")
	}
	result := s.confirmations[0]
	s.confirmations = s.confirmations[1:]
	return result, nil
}

func (s *scriptedClassifier) Answer(ctx context.Context, userMessage string, history []classifier.Exchange) (string, error) {
	s.answerCalls++
	if len(s.answers) == 0 {
		return "", errors.New("answer script exhausted")
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

// countingRepository counts status updates on top of a real store.
type countingRepository struct {
	repository.Repository
	updates int
}

func (r *countingRepository) UpdateAppointmentStatus(ctx context.Context, appointmentID string, newStatus repository.AppointmentStatus) (*repository.Appointment, error) {
	r.updates++
	return r.Repository.UpdateAppointmentStatus(ctx, appointmentID, newStatus)
}

func newTestEngine(t *testing.T, script *scriptedClassifier, repo repository.Repository, opts ...func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Repository:   repo,
		Intent:       script,
		Confirmation: script,
		Answerer:     script,
		Saver:        inmemory.NewSaver[State](),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engine
}

func TestGeneralQuestionInterruptsAfterAnswer(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{Intent: classifier.IntentGeneralQA, Confidence: 0.95, RawQuery: "What are your opening hours?"},
		},
		answers: []string{"We are open weekdays from 8am to 6pm."},
	}
	engine := newTestEngine(t, script, memory.NewStore(nil, nil))

	state, err := engine.HandleTurn(context.Background(), "", "req-1", "What are your opening hours?")
	require.NoError(t, err)
	assert.NotEmpty(t, state.SessionID, "a session id is generated for new sessions")
	assert.Equal(t, nodeQAAnswer, state.CurrentNode)
	assert.Equal(t, "We are open weekdays from 8am to 6pm.", state.LastReply())
	require.Len(t, state.History, 1)
	assert.Equal(t, "What are your opening hours?", state.History[0].UserMessage)

	cp, err := engine.saver.Get(context.Background(), state.SessionID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.True(t, cp.Interrupted)
	assert.Equal(t, []string{nodeConversationManager}, cp.NextNodes)
}

func TestVerifiedPatientWithoutCriteriaGetsClarification(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentCancelAppointment,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
			},
		},
	}
	repo := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	engine := newTestEngine(t, script, repo)

	state, err := engine.HandleTurn(context.Background(), "", "req-1",
		"Cancel my appointment, I'm Jane Doe, +15551234567, 1990-01-01")
	require.NoError(t, err)
	assert.True(t, state.IsVerified)
	require.NotNil(t, state.UserRecord)
	assert.Equal(t, "pat-1", state.UserRecord.PatientID)
	assert.Nil(t, state.AppointmentRecord)
	assert.Equal(t, nodeClarification, state.CurrentNode)
	require.NotNil(t, state.AppointmentDiagnostics)
	assert.Equal(t, match.ReasonNoInfoProvided, state.AppointmentDiagnostics.Reason)
	assert.Contains(t, state.LastReply(), "Which appointment")
}

func TestUnverifiedPatientAskedForIdentity(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{Intent: classifier.IntentListAppointments, Confidence: 0.9},
		},
	}
	engine := newTestEngine(t, script, memory.NewStore([]repository.Patient{janePatient}, nil))

	state, err := engine.HandleTurn(context.Background(), "", "req-1", "Show my appointments")
	require.NoError(t, err)
	assert.False(t, state.IsVerified)
	assert.Equal(t, nodeClarification, state.CurrentNode)
	require.NotNil(t, state.VerificationDiagnostics)
	assert.Equal(t, verify.ReasonNoInfoProvided, state.VerificationDiagnostics.Reason)
	assert.Contains(t, state.LastReply(), "full name, phone number and date of birth")
}

func TestListAppointmentsFlow(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentListAppointments,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
			},
		},
	}
	repo := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	engine := newTestEngine(t, script, repo)

	state, err := engine.HandleTurn(context.Background(), "", "req-1",
		"I'm Jane Doe, +15551234567, 1990-01-01, show my appointments")
	require.NoError(t, err)
	assert.True(t, state.IsVerified)
	assert.Equal(t, nodeActionResponse, state.CurrentNode)
	assert.Contains(t, state.LastReply(), "Dr. Smith")
	assert.Contains(t, state.LastReply(), "Northside Clinic")
	assert.Contains(t, state.LastReply(), closingQuestion)
}

func TestCancelFlowEndToEnd(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentCancelAppointment,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
				AppointmentInfo:  &match.Criteria{DoctorFullName: "Smith"},
			},
		},
		confirmations: []*classifier.ConfirmationResult{
			{Intent: classifier.ConfirmationConfirm, Confidence: 0.95},
		},
	}
	store := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	repo := &countingRepository{Repository: store}
	engine := newTestEngine(t, script, repo)
	ctx := context.Background()

	// Turn 1 resolves the appointment and asks for confirmation.
	state, err := engine.HandleTurn(ctx, "", "req-1",
		"Cancel my appointment with Dr. Smith, I'm Jane Doe, +15551234567, 1990-01-01")
	require.NoError(t, err)
	sessionID := state.SessionID
	assert.Equal(t, nodeAskConfirmation, state.CurrentNode)
	require.NotNil(t, state.AppointmentRecord)
	assert.Equal(t, "apt-1", state.AppointmentRecord.AppointmentID)
	assert.Contains(t, state.LastReply(), "cancel")
	assert.Contains(t, state.LastReply(), "Dr. Smith")
	assert.Zero(t, repo.updates)

	// Turn 2 confirms; the status change is applied and the
	// appointment flow resets.
	state, err = engine.HandleTurn(ctx, sessionID, "req-2", "yes please")
	require.NoError(t, err)
	assert.Equal(t, nodeActionResponse, state.CurrentNode)
	assert.Contains(t, state.LastReply(), "canceled")
	assert.Contains(t, state.LastReply(), closingQuestion)
	assert.Equal(t, 1, repo.updates)
	assert.Nil(t, state.AppointmentRecord)
	assert.Nil(t, state.Appointments)
	assert.Zero(t, state.ConfirmationAttempts)

	updated, err := store.FindAppointmentsByPatient(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCanceledByPatient, updated[0].Status)

	// The intent classifier ran once; resumed turns land directly on
	// the suspended node.
	assert.Equal(t, 1, script.intentCalls)
	assert.Equal(t, 1, script.confirmationCalls)
}

func TestRetriedRequestDoesNotDoubleApply(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentCancelAppointment,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
				AppointmentInfo:  &match.Criteria{DoctorFullName: "Smith"},
			},
		},
		confirmations: []*classifier.ConfirmationResult{
			{Intent: classifier.ConfirmationConfirm, Confidence: 0.95},
		},
	}
	store := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	repo := &countingRepository{Repository: store}
	engine := newTestEngine(t, script, repo)
	ctx := context.Background()

	state, err := engine.HandleTurn(ctx, "", "req-1",
		"Cancel my appointment with Dr. Smith, I'm Jane Doe, +15551234567, 1990-01-01")
	require.NoError(t, err)
	sessionID := state.SessionID

	first, err := engine.HandleTurn(ctx, sessionID, "req-2", "yes")
	require.NoError(t, err)
	require.Equal(t, 1, repo.updates)

	// The transport retries the same request; the persisted state is
	// returned without re-running the graph.
	second, err := engine.HandleTurn(ctx, sessionID, "req-2", "yes")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.updates, "a retried request must not re-apply the status change")
	assert.Equal(t, first.LastReply(), second.LastReply())
	assert.Equal(t, len(first.History), len(second.History))
}

func TestUnclearConfirmationLoopIsBounded(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentConfirmAppointment,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
				AppointmentInfo:  &match.Criteria{DoctorFullName: "Smith"},
			},
		},
		confirmations: []*classifier.ConfirmationResult{
			{Intent: classifier.ConfirmationUnclear, Confidence: 0.3},
			{Intent: classifier.ConfirmationUnclear, Confidence: 0.3},
		},
	}
	store := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	repo := &countingRepository{Repository: store}
	engine := newTestEngine(t, script, repo, func(cfg *Config) {
		cfg.MaxConfirmationAttempts = 2
	})
	ctx := context.Background()

	state, err := engine.HandleTurn(ctx, "", "req-1",
		"Confirm my appointment with Dr. Smith, I'm Jane Doe, +15551234567, 1990-01-01")
	require.NoError(t, err)
	sessionID := state.SessionID
	assert.Equal(t, nodeAskConfirmation, state.CurrentNode)

	// First unclear reply: the question is asked again.
	state, err = engine.HandleTurn(ctx, sessionID, "req-2", "the weather is nice")
	require.NoError(t, err)
	assert.Equal(t, nodeAskConfirmation, state.CurrentNode)
	assert.Equal(t, 1, state.ConfirmationAttempts)
	assert.Contains(t, state.LastReply(), "Sorry, I didn't catch that")

	// Second unclear reply hits the bound; the flow gives up without
	// touching the appointment.
	state, err = engine.HandleTurn(ctx, sessionID, "req-3", "hmm")
	require.NoError(t, err)
	assert.Equal(t, nodeActionResponse, state.CurrentNode)
	assert.Contains(t, state.LastReply(), "left your appointment unchanged")
	assert.Zero(t, repo.updates)
	assert.Zero(t, state.ConfirmationAttempts, "the flow resets after giving up")
}

func TestRejectedConfirmationLeavesAppointmentUntouched(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentCancelAppointment,
				Confidence:       0.9,
				VerificationInfo: &janeInfo,
				AppointmentInfo:  &match.Criteria{DoctorFullName: "Smith"},
			},
		},
		confirmations: []*classifier.ConfirmationResult{
			{Intent: classifier.ConfirmationReject, Confidence: 0.9},
		},
	}
	store := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	repo := &countingRepository{Repository: store}
	engine := newTestEngine(t, script, repo)
	ctx := context.Background()

	state, err := engine.HandleTurn(ctx, "", "req-1",
		"Cancel my appointment with Dr. Smith, I'm Jane Doe, +15551234567, 1990-01-01")
	require.NoError(t, err)

	state, err = engine.HandleTurn(ctx, state.SessionID, "req-2", "no, keep it")
	require.NoError(t, err)
	assert.Equal(t, nodeActionResponse, state.CurrentNode)
	assert.Contains(t, state.LastReply(), "unchanged")
	assert.Zero(t, repo.updates)

	listed, err := store.FindAppointmentsByPatient(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusScheduled, listed[0].Status)
}

func TestAnswererFailureDegradesToFallback(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{Intent: classifier.IntentGeneralQA, Confidence: 0.9},
			// Second turn: the script runs out of answers, and the
			// fallback intent keeps routing to QA.
			{Intent: classifier.IntentGeneralQA, Confidence: 0.9},
		},
		answers: []string{"We are open weekdays."},
	}
	engine := newTestEngine(t, script, memory.NewStore(nil, nil))
	ctx := context.Background()

	state, err := engine.HandleTurn(ctx, "", "req-1", "Opening hours?")
	require.NoError(t, err)
	sessionID := state.SessionID

	// The answer script is exhausted; the answerer error degrades to a
	// fallback reply rather than failing the turn.
	state, err = engine.HandleTurn(ctx, sessionID, "req-2", "And on weekends?")
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, state.LastReply())
	assert.Len(t, state.History, 2)
}

func TestIdentityFieldsAccumulateAcrossTurns(t *testing.T) {
	script := &scriptedClassifier{
		intents: []*classifier.IntentResult{
			{
				Intent:           classifier.IntentListAppointments,
				Confidence:       0.9,
				VerificationInfo: &verify.Info{FullName: "Jane Doe"},
			},
			{
				Intent:           classifier.IntentUserInformation,
				Confidence:       0.9,
				VerificationInfo: &verify.Info{PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01"},
			},
		},
	}
	repo := memory.NewStore([]repository.Patient{janePatient}, []repository.Appointment{janeAppointment})
	engine := newTestEngine(t, script, repo)
	ctx := context.Background()

	state, err := engine.HandleTurn(ctx, "", "req-1", "Show my appointments, I'm Jane Doe")
	require.NoError(t, err)
	assert.False(t, state.IsVerified)
	require.NotNil(t, state.VerificationDiagnostics)
	assert.Equal(t, verify.ReasonIncompleteInfo, state.VerificationDiagnostics.Reason)
	assert.Contains(t, state.LastReply(), "phone number and date of birth")

	// The missing fields arrive on the next turn and combine with the
	// name already on file.
	state, err = engine.HandleTurn(ctx, state.SessionID, "req-2", "+15551234567, 1990-01-01")
	require.NoError(t, err)
	assert.True(t, state.IsVerified)
	require.NotNil(t, state.UserRecord)
	assert.Equal(t, "pat-1", state.UserRecord.PatientID)
}

func TestStateRoundTripsThroughCheckpoint(t *testing.T) {
	state := State{
		Version:          StateVersion,
		SessionID:        "s1",
		RequestID:        "req-9",
		UserMessage:      "yes",
		History:          []Turn{{UserMessage: "hi", SystemMessage: "hello"}},
		CurrentNode:      nodeAskConfirmation,
		CurrentIntent:    classifier.IntentCancelAppointment,
		IntentConfidence: 0.9,
		Route:            routeCancel,
		IsVerified:       true,
		UserInfo:         janeInfo,
		UserRecord: &verify.Record{
			PatientID: "pat-1", FullName: "Jane Doe",
			PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01",
		},
		Appointments:    []repository.Appointment{janeAppointment},
		AppointmentInfo: match.Criteria{DoctorFullName: "Smith"},
		AppointmentRecord: &AppointmentRecord{
			AppointmentID: "apt-1", DoctorFullName: "Dr. Smith",
			ClinicName: "Northside Clinic", Specialty: "Cardiology",
		},
		ConfirmationIntent:   classifier.ConfirmationUnclear,
		ConfirmationAttempts: 1,
		PendingReply:         "pending",
	}

	cp := graph.NewCheckpoint("s1", state, []string{nodeProcessConfirmation}, true)
	data, err := json.Marshal(cp)
	require.NoError(t, err)

	var restored graph.Checkpoint[State]
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, state, restored.State)
	assert.Equal(t, []string{nodeProcessConfirmation}, restored.NextNodes)
}
