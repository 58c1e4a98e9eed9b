package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/log"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
	"github.com/wnakano/luma-appointments-qa/verify"
)

// callCtx bounds one external collaborator call.
func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.callTimeout)
}

// conversationManager classifies the inbound message, folds any
// extracted identity or appointment fields into state and routes to
// question answering or the appointment flow.
func (e *Engine) conversationManager(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeConversationManager

	callCtx, cancel := e.callCtx(ctx)
	result, err := e.intent.ClassifyIntent(callCtx, s.UserMessage, s.exchanges())
	cancel()
	if err != nil {
		log.Warnf("intent classification failed for session %s: %v", s.SessionID, err)
		result = classifier.FallbackIntentResult(s.UserMessage)
	}

	s.CurrentIntent = result.Intent
	s.IntentConfidence = result.Confidence
	if result.VerificationInfo != nil {
		s.UserInfo = s.UserInfo.Merge(*result.VerificationInfo)
	}
	if result.AppointmentInfo != nil {
		s.AppointmentInfo = s.AppointmentInfo.Merge(*result.AppointmentInfo)
	}

	if result.Intent == classifier.IntentGeneralQA {
		s.Route = routeQA
	} else {
		s.Route = routeAppointment
	}
	return s, nil
}

// qaAnswer answers a general question and completes the turn.
func (e *Engine) qaAnswer(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeQAAnswer

	callCtx, cancel := e.callCtx(ctx)
	answer, err := e.answerer.Answer(callCtx, s.UserMessage, s.exchanges())
	cancel()
	if err != nil {
		log.Warnf("question answering failed for session %s: %v", s.SessionID, err)
		answer = fallbackAnswer
	}
	return s.appendTurn(answer), nil
}

// verificationGate routes to whichever verification step is still
// outstanding for the requested action.
func (e *Engine) verificationGate(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeVerificationGate

	switch {
	case !s.IsVerified:
		s.Route = routeUserVerification
	case needsAppointmentRecord(s.CurrentIntent) && s.AppointmentRecord == nil:
		s.Route = routeAppointmentVerification
	default:
		s.Route = routeVerified
	}
	return s, nil
}

func needsAppointmentRecord(intent classifier.Intent) bool {
	return intent == classifier.IntentConfirmAppointment || intent == classifier.IntentCancelAppointment
}

// verificationPatient runs one identity verification attempt over the
// collected fields.
func (e *Engine) verificationPatient(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeVerificationPatient

	callCtx, cancel := e.callCtx(ctx)
	result, err := e.resolver.Resolve(callCtx, s.UserInfo)
	cancel()
	if err != nil {
		log.Errorf("patient verification failed for session %s: %v", s.SessionID, err)
		s.VerificationDiagnostics = nil
		s.Route = routeNotVerified
		return s, nil
	}
	if result.Verified {
		s.IsVerified = true
		s.UserRecord = result.Record
		s.VerificationDiagnostics = nil
		s.Route = routeVerified
		return s, nil
	}
	s.VerificationDiagnostics = result.Diagnostics
	s.UserInfo = s.UserInfo.Scrub(result.Diagnostics.LikelyIncorrect)
	s.Route = routeNotVerified
	return s, nil
}

// verificationAppointment caches the patient's appointment list and
// runs one matching attempt over the collected criteria.
func (e *Engine) verificationAppointment(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeVerificationAppointment

	if s.Appointments == nil {
		appointments, err := e.fetchAppointments(ctx, s)
		if err != nil {
			log.Errorf("appointment fetch failed for session %s: %v", s.SessionID, err)
			s.AppointmentDiagnostics = nil
			s.Route = routeNotVerified
			return s, nil
		}
		if appointments == nil {
			appointments = []repository.Appointment{}
		}
		s.Appointments = appointments
	}

	// Listing and plain information turns need a verified patient but
	// not a resolved appointment.
	if !needsAppointmentRecord(s.CurrentIntent) {
		s.Route = routeVerified
		return s, nil
	}

	callCtx, cancel := e.callCtx(ctx)
	result, err := e.matcher.Match(callCtx, s.AppointmentInfo, s.Appointments)
	cancel()
	if err != nil {
		log.Errorf("appointment matching failed for session %s: %v", s.SessionID, err)
		s.AppointmentDiagnostics = nil
		s.Route = routeNotVerified
		return s, nil
	}
	if result.Matched {
		appt := result.Appointment
		s.AppointmentRecord = &AppointmentRecord{
			AppointmentID:   appt.ID,
			DoctorFullName:  appt.Provider.FullName,
			ClinicName:      appt.Clinic.Name,
			AppointmentDate: appt.StartsAt.Format(appointmentTimeLayout),
			Specialty:       appt.Provider.Specialty,
		}
		s.AppointmentDiagnostics = nil
		s.Route = routeVerified
		return s, nil
	}
	s.AppointmentDiagnostics = result.Diagnostics
	s.AppointmentInfo = s.AppointmentInfo.Scrub(result.Diagnostics.LikelyIncorrect)
	s.Route = routeNotVerified
	return s, nil
}

func (e *Engine) fetchAppointments(ctx context.Context, s State) ([]repository.Appointment, error) {
	if s.UserRecord == nil {
		return nil, fmt.Errorf("no verified patient for session %s", s.SessionID)
	}
	callCtx, cancel := e.callCtx(ctx)
	defer cancel()
	return e.repo.FindAppointmentsByPatient(callCtx, s.UserRecord.PatientID)
}

// actionRouter dispatches the verified request to its action path.
func (e *Engine) actionRouter(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeActionRouter

	switch s.CurrentIntent {
	case classifier.IntentListAppointments:
		s.Route = routeList
	case classifier.IntentConfirmAppointment:
		s.Route = routeConfirm
	case classifier.IntentCancelAppointment:
		s.Route = routeCancel
	default:
		// Identity or appointment details arrived without an
		// actionable request.
		s.Route = routeWait
	}
	return s, nil
}

// listAppointments renders the patient's appointments into the
// pending reply.
func (e *Engine) listAppointments(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeListAppointments

	if s.Appointments == nil {
		appointments, err := e.fetchAppointments(ctx, s)
		if err != nil {
			log.Errorf("appointment fetch failed for session %s: %v", s.SessionID, err)
			s.PendingReply = fallbackAnswer
			return s, nil
		}
		if appointments == nil {
			appointments = []repository.Appointment{}
		}
		s.Appointments = appointments
	}
	s.PendingReply = formatAppointmentList(firstName(s.UserRecord), s.Appointments)
	return s, nil
}

func firstName(record *verify.Record) string {
	if record == nil {
		return ""
	}
	name, _, _ := strings.Cut(record.FullName, " ")
	return name
}

// askConfirmation poses the yes/no question for the pending action
// and completes the turn.
func (e *Engine) askConfirmation(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeAskConfirmation

	if s.AppointmentRecord == nil {
		return s, fmt.Errorf("confirmation requested with no resolved appointment for session %s", s.SessionID)
	}
	question := confirmationQuestion(s.AppointmentRecord, s.CurrentIntent, s.ConfirmationAttempts > 0)
	return s.appendTurn(question), nil
}

// processConfirmation reads the reply to the pending question and, on
// a confirm, applies the status change.
func (e *Engine) processConfirmation(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeProcessConfirmation

	callCtx, cancel := e.callCtx(ctx)
	result, err := e.confirmation.ClassifyConfirmation(callCtx, s.UserMessage, s.LastReply())
	cancel()
	if err != nil {
		log.Warnf("confirmation classification failed for session %s: %v", s.SessionID, err)
		result = classifier.FallbackConfirmationResult()
	}
	s.ConfirmationIntent = result.Intent

	switch result.Intent {
	case classifier.ConfirmationConfirm:
		s.PendingReply = e.applyAction(ctx, s)
		s.Route = routeConfirmed
	case classifier.ConfirmationReject:
		s.PendingReply = rejectedReply
		s.Route = routeRejected
	default:
		s.ConfirmationAttempts++
		if s.ConfirmationAttempts >= e.maxConfirmationAttempts {
			log.Infof("confirmation abandoned after %d unclear replies for session %s",
				s.ConfirmationAttempts, s.SessionID)
			s.PendingReply = confirmationGiveUpReply
			s.Route = routeRejected
			return s, nil
		}
		s.Route = routeUnclear
	}
	return s, nil
}

// applyAction performs the status transition for the confirmed
// request and returns the reply text.
func (e *Engine) applyAction(ctx context.Context, s State) string {
	target := repository.StatusConfirmed
	if s.CurrentIntent == classifier.IntentCancelAppointment {
		target = repository.StatusCanceledByPatient
	}
	callCtx, cancel := e.callCtx(ctx)
	updated, err := e.repo.UpdateAppointmentStatus(callCtx, s.AppointmentRecord.AppointmentID, target)
	cancel()
	if err != nil {
		log.Errorf("status update failed for session %s appointment %s: %v",
			s.SessionID, s.AppointmentRecord.AppointmentID, err)
		return actionFailedReply
	}
	log.Infof("appointment %s set to %s for session %s", updated.ID, updated.Status, s.SessionID)
	return actionOutcomeReply(updated)
}

// clarification asks the user for whatever the flow is missing and
// completes the turn.
func (e *Engine) clarification(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeClarification

	var message string
	switch {
	case !s.IsVerified:
		message = verificationClarification(s.VerificationDiagnostics)
	case needsAppointmentRecord(s.CurrentIntent) && s.AppointmentRecord == nil:
		message = appointmentClarification(s.AppointmentDiagnostics)
	default:
		message = waitClarification
	}
	return s.appendTurn(message), nil
}

// actionResponse renders the buffered outcome, resets the appointment
// flow so a new request re-resolves, and completes the turn.
func (e *Engine) actionResponse(ctx context.Context, s State) (State, error) {
	s.CurrentNode = nodeActionResponse

	reply := s.PendingReply
	if reply == "" {
		reply = fallbackAnswer
	}
	message := reply + " " + closingQuestion

	s.PendingReply = ""
	s.Appointments = nil
	s.AppointmentInfo = match.Criteria{}
	s.AppointmentRecord = nil
	s.AppointmentDiagnostics = nil
	s.ConfirmationIntent = ""
	s.ConfirmationAttempts = 0

	return s.appendTurn(message), nil
}
