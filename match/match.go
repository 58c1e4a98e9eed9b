// Package match selects one appointment from a patient's list given
// partially collected criteria. A direct pass using case-folded
// substring containment resolves unambiguous inputs without any
// external call; ambiguous inputs fall back to a semantic matcher.
package match

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/wnakano/luma-appointments-qa/log"
	"github.com/wnakano/luma-appointments-qa/repository"
)

// Field names criteria fields in diagnostics and prompts.
type Field string

// Criteria fields.
const (
	FieldDoctorFullName  Field = "doctor_full_name"
	FieldClinicName      Field = "clinic_name"
	FieldAppointmentDate Field = "appointment_date"
	FieldSpecialty       Field = "specialty"
)

// Reason classifies why matching did not succeed.
type Reason string

// Match outcome reasons.
const (
	ReasonMatched             Reason = "matched"
	ReasonNoAppointments      Reason = "no_appointments"
	ReasonNoInfoProvided      Reason = "no_info_provided"
	ReasonIncompleteInfo      Reason = "incomplete_info"
	ReasonSingleFieldMismatch Reason = "single_field_mismatch"
	ReasonPartialMatch        Reason = "partial_match"
	ReasonNoMatches           Reason = "no_matches"
)

// minRequiredFields is the number of populated criteria needed before
// matching is attempted at all.
const minRequiredFields = 1

// candidateDateLayout is the textual form appointment start times are
// compared and rendered in.
const candidateDateLayout = "2006-01-02 15:04"

// Criteria is the appointment information collected from the user so
// far. Empty fields have not been provided yet.
type Criteria struct {
	DoctorFullName  string `json:"doctor_full_name,omitempty"`
	ClinicName      string `json:"clinic_name,omitempty"`
	AppointmentDate string `json:"appointment_date,omitempty"`
	Specialty       string `json:"specialty,omitempty"`
}

// provided returns the populated fields together with their values.
func (c Criteria) provided() map[Field]string {
	out := make(map[Field]string, 4)
	if c.DoctorFullName != "" {
		out[FieldDoctorFullName] = c.DoctorFullName
	}
	if c.ClinicName != "" {
		out[FieldClinicName] = c.ClinicName
	}
	if c.AppointmentDate != "" {
		out[FieldAppointmentDate] = c.AppointmentDate
	}
	if c.Specialty != "" {
		out[FieldSpecialty] = c.Specialty
	}
	return out
}

// Empty reports whether no criterion is populated.
func (c Criteria) Empty() bool {
	return len(c.provided()) == 0
}

// Merge overlays newly extracted criteria onto the accumulated ones.
// Populated incoming fields win; empty ones leave the prior value.
func (c Criteria) Merge(incoming Criteria) Criteria {
	out := c
	if incoming.DoctorFullName != "" {
		out.DoctorFullName = incoming.DoctorFullName
	}
	if incoming.ClinicName != "" {
		out.ClinicName = incoming.ClinicName
	}
	if incoming.AppointmentDate != "" {
		out.AppointmentDate = incoming.AppointmentDate
	}
	if incoming.Specialty != "" {
		out.Specialty = incoming.Specialty
	}
	return out
}

// Scrub clears the fields named in likelyIncorrect so the user is
// asked for them again.
func (c Criteria) Scrub(likelyIncorrect []Field) Criteria {
	out := c
	for _, f := range likelyIncorrect {
		switch f {
		case FieldDoctorFullName:
			out.DoctorFullName = ""
		case FieldClinicName:
			out.ClinicName = ""
		case FieldAppointmentDate:
			out.AppointmentDate = ""
		case FieldSpecialty:
			out.Specialty = ""
		}
	}
	return out
}

// Diagnostics explains a non-matched outcome to the clarification
// prompt builder.
type Diagnostics struct {
	Reason          Reason  `json:"reason"`
	LikelyIncorrect []Field `json:"likely_incorrect,omitempty"`
	PossiblyCorrect []Field `json:"possibly_correct,omitempty"`
}

// SemanticResult is the semantic matcher's structured verdict.
type SemanticResult struct {
	MatchFound bool    `json:"match_found"`
	Confidence float64 `json:"confidence"`
	MatchedID  string  `json:"matched_id"`
	Reasoning  string  `json:"reasoning"`
}

// SemanticMatcher resolves ambiguous criteria against candidate
// appointments using an external model.
type SemanticMatcher interface {
	MatchAppointment(ctx context.Context, criteria Criteria, candidates []repository.Appointment) (*SemanticResult, error)
}

// Result is the outcome of one matching attempt.
type Result struct {
	Matched     bool
	Confidence  float64
	Appointment *repository.Appointment
	Reasoning   string
	Diagnostics *Diagnostics
}

// Matcher matches criteria against a patient's appointment list.
type Matcher struct {
	semantic SemanticMatcher
}

// NewMatcher creates a matcher with the given semantic fallback. A nil
// fallback disables step two; ambiguous inputs then go straight to
// diagnosis.
func NewMatcher(semantic SemanticMatcher) *Matcher {
	return &Matcher{semantic: semantic}
}

// Match runs one matching attempt over the cached appointment list.
func (m *Matcher) Match(ctx context.Context, criteria Criteria, appointments []repository.Appointment) (*Result, error) {
	if len(appointments) == 0 {
		return &Result{Diagnostics: &Diagnostics{Reason: ReasonNoAppointments}}, nil
	}
	provided := criteria.provided()
	if len(provided) == 0 {
		return &Result{Diagnostics: &Diagnostics{Reason: ReasonNoInfoProvided}}, nil
	}
	if len(provided) < minRequiredFields {
		return &Result{Diagnostics: &Diagnostics{Reason: ReasonIncompleteInfo}}, nil
	}

	var direct []repository.Appointment
	for _, appt := range appointments {
		if matchedFields(appt, provided) == len(provided) {
			direct = append(direct, appt)
		}
	}
	if len(direct) == 1 {
		appt := direct[0]
		return &Result{
			Matched:     true,
			Confidence:  1.0,
			Appointment: &appt,
		}, nil
	}

	if m.semantic != nil {
		verdict, err := m.semantic.MatchAppointment(ctx, criteria, appointments)
		if err != nil {
			// Collaborator failure degrades to diagnosis, not an error.
			log.Warnf("semantic appointment match failed: %v", err)
		} else if verdict != nil && verdict.MatchFound {
			if appt := findByID(appointments, verdict.MatchedID); appt != nil {
				return &Result{
					Matched:     true,
					Confidence:  verdict.Confidence,
					Appointment: appt,
					Reasoning:   verdict.Reasoning,
				}, nil
			}
			log.Warnf("semantic match returned unknown appointment id %q", verdict.MatchedID)
		}
	}

	return &Result{Diagnostics: m.diagnose(criteria, appointments)}, nil
}

// diagnose recomputes per-appointment partial-match counts and
// explains the failure in terms of the best candidate.
func (m *Matcher) diagnose(criteria Criteria, appointments []repository.Appointment) *Diagnostics {
	provided := criteria.provided()
	best := appointments[0]
	bestCount := matchedFields(best, provided)
	for _, appt := range appointments[1:] {
		if n := matchedFields(appt, provided); n > bestCount {
			best, bestCount = appt, n
		}
	}
	if bestCount == 0 {
		fields := make([]Field, 0, len(provided))
		for _, f := range fieldOrder {
			if _, ok := provided[f]; ok {
				fields = append(fields, f)
			}
		}
		return &Diagnostics{Reason: ReasonNoMatches, LikelyIncorrect: fields}
	}

	diags := &Diagnostics{}
	for _, f := range fieldOrder {
		value, ok := provided[f]
		if !ok {
			continue
		}
		if contains(candidateValue(best, f), value) {
			diags.PossiblyCorrect = append(diags.PossiblyCorrect, f)
		} else {
			diags.LikelyIncorrect = append(diags.LikelyIncorrect, f)
		}
	}
	if len(diags.LikelyIncorrect) == 1 {
		diags.Reason = ReasonSingleFieldMismatch
	} else {
		diags.Reason = ReasonPartialMatch
	}
	return diags
}

var fieldOrder = []Field{FieldDoctorFullName, FieldClinicName, FieldAppointmentDate, FieldSpecialty}

func candidateValue(appt repository.Appointment, f Field) string {
	switch f {
	case FieldDoctorFullName:
		return appt.Provider.FullName
	case FieldClinicName:
		return appt.Clinic.Name
	case FieldAppointmentDate:
		return appt.StartsAt.Format(candidateDateLayout)
	case FieldSpecialty:
		return appt.Provider.Specialty
	}
	return ""
}

func matchedFields(appt repository.Appointment, provided map[Field]string) int {
	count := 0
	for f, value := range provided {
		if contains(candidateValue(appt, f), value) {
			count++
		}
	}
	return count
}

// contains reports whether either normalized string contains the
// other. A Caser is stateful, so each call folds with its own.
func contains(candidate, criterion string) bool {
	folder := cases.Fold()
	a := folder.String(strings.TrimSpace(candidate))
	b := folder.String(strings.TrimSpace(criterion))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func findByID(appointments []repository.Appointment, id string) *repository.Appointment {
	for i := range appointments {
		if appointments[i].ID == id {
			return &appointments[i]
		}
	}
	return nil
}

// Describe renders an appointment in the textual form used by prompts
// and candidate listings.
func Describe(appt repository.Appointment) string {
	return fmt.Sprintf("%s with %s (%s) at %s, status %s",
		appt.StartsAt.Format(candidateDateLayout),
		appt.Provider.FullName,
		appt.Provider.Specialty,
		appt.Clinic.Name,
		appt.Status,
	)
}
