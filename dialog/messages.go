package dialog

import (
	"fmt"
	"strings"

	"github.com/wnakano/luma-appointments-qa/classifier"
	"github.com/wnakano/luma-appointments-qa/match"
	"github.com/wnakano/luma-appointments-qa/repository"
	"github.com/wnakano/luma-appointments-qa/verify"
)

const (
	closingQuestion = "Is there anything else I can do for you?"

	fallbackAnswer = "I'm sorry, I'm having trouble answering that right now. " +
		"Please try again in a moment."

	actionFailedReply = "I'm sorry, I couldn't complete that change right now. " +
		"Your appointment was left as it was; please try again in a moment."

	rejectedReply = "No problem, I've left your appointment unchanged."

	confirmationGiveUpReply = "I still couldn't tell whether you'd like to go ahead, " +
		"so I've left your appointment unchanged. You can ask me again at any time."
)

const appointmentTimeLayout = "Monday, January 2 2006 at 3:04 PM"

func verifyFieldLabel(f verify.Field) string {
	switch f {
	case verify.FieldFullName:
		return "full name"
	case verify.FieldPhoneNumber:
		return "phone number"
	case verify.FieldDateOfBirth:
		return "date of birth"
	}
	return string(f)
}

func matchFieldLabel(f match.Field) string {
	switch f {
	case match.FieldDoctorFullName:
		return "doctor's name"
	case match.FieldClinicName:
		return "clinic name"
	case match.FieldAppointmentDate:
		return "appointment date"
	case match.FieldSpecialty:
		return "specialty"
	}
	return string(f)
}

func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
}

// verificationClarification asks for the identity fields diagnosed as
// missing or likely wrong.
func verificationClarification(diags *verify.Diagnostics) string {
	if diags == nil {
		return "To look up your records I need your full name, phone number and date of birth. Could you share them?"
	}
	switch diags.Reason {
	case verify.ReasonNoInfoProvided:
		return "To look up your records I need your full name, phone number and date of birth. Could you share them?"
	case verify.ReasonIncompleteInfo:
		labels := make([]string, 0, len(diags.MissingFields))
		for _, f := range diags.MissingFields {
			labels = append(labels, verifyFieldLabel(f))
		}
		return fmt.Sprintf("Thanks! I still need your %s to look you up.", joinLabels(labels))
	case verify.ReasonUserNotFound:
		return "I couldn't find a record matching those details. Could you double-check your full name, phone number and date of birth?"
	default:
		labels := make([]string, 0, len(diags.LikelyIncorrect))
		for _, f := range diags.LikelyIncorrect {
			labels = append(labels, verifyFieldLabel(f))
		}
		if len(labels) == 0 {
			return "Those details don't all belong to the same record. Could you double-check them and try again?"
		}
		return fmt.Sprintf("I couldn't verify you with those details. Your %s doesn't seem to match our records; could you check it?", joinLabels(labels))
	}
}

// appointmentClarification asks for the appointment details diagnosed
// as missing or likely wrong.
func appointmentClarification(diags *match.Diagnostics) string {
	if diags == nil {
		return "Which appointment do you mean? A doctor's name, clinic, date or specialty would help."
	}
	switch diags.Reason {
	case match.ReasonNoAppointments:
		return "I don't see any appointments on file for you. " + closingQuestion
	case match.ReasonNoInfoProvided, match.ReasonIncompleteInfo:
		return "Which appointment do you mean? A doctor's name, clinic, date or specialty would help."
	case match.ReasonNoMatches:
		return "None of your appointments match that description. Could you double-check the details?"
	default:
		labels := make([]string, 0, len(diags.LikelyIncorrect))
		for _, f := range diags.LikelyIncorrect {
			labels = append(labels, matchFieldLabel(f))
		}
		if len(labels) == 0 {
			return "I couldn't narrow that down to one appointment. Could you give me another detail, like the doctor's name or the date?"
		}
		return fmt.Sprintf("I found a close match, but the %s doesn't line up. Could you check it?", joinLabels(labels))
	}
}

const waitClarification = "I can list your appointments, or confirm or cancel one. What would you like to do?"

// formatAppointmentList renders the patient's appointments as a
// numbered list, greeting them by first name.
func formatAppointmentList(firstName string, appointments []repository.Appointment) string {
	greeting := "Here are your appointments"
	if firstName != "" {
		greeting = fmt.Sprintf("%s, here are your appointments", firstName)
	}
	if len(appointments) == 0 {
		return "You have no appointments on file."
	}
	var sb strings.Builder
	sb.WriteString(greeting + ":\n")
	for i, a := range appointments {
		fmt.Fprintf(&sb, "%d. %s with %s (%s)\n   %s, %s, %s, %s %s\n   Status: %s\n",
			i+1,
			a.StartsAt.Format(appointmentTimeLayout),
			a.Provider.FullName,
			a.Provider.Specialty,
			a.Clinic.Name,
			a.Clinic.AddressLine1,
			a.Clinic.City,
			a.Clinic.State,
			a.Clinic.PostalCode,
			a.Status,
		)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// confirmationQuestion renders the yes/no question for the pending
// action. retry prefixes an apology when the previous reply was
// unclear.
func confirmationQuestion(record *AppointmentRecord, intent classifier.Intent, retry bool) string {
	action := "confirm"
	if intent == classifier.IntentCancelAppointment {
		action = "cancel"
	}
	var sb strings.Builder
	if retry {
		sb.WriteString("Sorry, I didn't catch that. ")
	}
	fmt.Fprintf(&sb, "You'd like to %s your appointment with %s", action, record.DoctorFullName)
	if record.Specialty != "" {
		fmt.Fprintf(&sb, " (%s)", record.Specialty)
	}
	if record.ClinicName != "" {
		fmt.Fprintf(&sb, " at %s", record.ClinicName)
	}
	if record.AppointmentDate != "" {
		fmt.Fprintf(&sb, " on %s", record.AppointmentDate)
	}
	sb.WriteString(". Shall I go ahead? (yes/no)")
	return sb.String()
}

// actionOutcomeReply renders the success message after a status
// change was applied.
func actionOutcomeReply(updated *repository.Appointment) string {
	switch updated.Status {
	case repository.StatusConfirmed:
		return fmt.Sprintf("Done! Your appointment with %s on %s is confirmed.",
			updated.Provider.FullName, updated.StartsAt.Format(appointmentTimeLayout))
	case repository.StatusCanceledByPatient:
		return fmt.Sprintf("Done! Your appointment with %s on %s has been canceled.",
			updated.Provider.FullName, updated.StartsAt.Format(appointmentTimeLayout))
	}
	return fmt.Sprintf("Done! Your appointment with %s on %s is now %s.",
		updated.Provider.FullName, updated.StartsAt.Format(appointmentTimeLayout), updated.Status)
}
