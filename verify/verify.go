// Package verify implements patient identity verification against the
// repository. A patient is verified only when full name, phone number
// and date of birth all match a single record; anything short of that
// produces diagnostics that drive the clarification prompt.
package verify

import (
	"context"
	"fmt"

	"github.com/wnakano/luma-appointments-qa/log"
	"github.com/wnakano/luma-appointments-qa/repository"
)

// Field names identity fields in diagnostics and prompts.
type Field string

// Identity fields.
const (
	FieldFullName    Field = "full_name"
	FieldPhoneNumber Field = "phone_number"
	FieldDateOfBirth Field = "date_of_birth"
)

// Reason classifies why verification did not succeed.
type Reason string

// Verification outcome reasons.
const (
	ReasonVerified                Reason = "verified"
	ReasonNoInfoProvided          Reason = "no_info_provided"
	ReasonIncompleteInfo          Reason = "incomplete_info"
	ReasonUserNotFound            Reason = "user_not_found"
	ReasonMultipleFieldsIncorrect Reason = "multiple_fields_incorrect"
	ReasonSingleFieldIncorrect    Reason = "single_field_incorrect"
	ReasonNoCompleteMatch         Reason = "no_complete_match"
)

// Info is the identity information collected from the user so far.
// Empty fields have not been provided yet.
type Info struct {
	FullName    string `json:"full_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// Empty reports whether no field is populated.
func (i Info) Empty() bool {
	return i.FullName == "" && i.PhoneNumber == "" && i.DateOfBirth == ""
}

// Complete reports whether all three fields are populated.
func (i Info) Complete() bool {
	return i.FullName != "" && i.PhoneNumber != "" && i.DateOfBirth != ""
}

// Missing returns the fields that have not been provided, in a fixed
// order.
func (i Info) Missing() []Field {
	var out []Field
	if i.FullName == "" {
		out = append(out, FieldFullName)
	}
	if i.PhoneNumber == "" {
		out = append(out, FieldPhoneNumber)
	}
	if i.DateOfBirth == "" {
		out = append(out, FieldDateOfBirth)
	}
	return out
}

// Merge overlays newly extracted fields onto the accumulated info.
// Populated incoming fields win; empty ones leave the prior value.
func (i Info) Merge(incoming Info) Info {
	out := i
	if incoming.FullName != "" {
		out.FullName = incoming.FullName
	}
	if incoming.PhoneNumber != "" {
		out.PhoneNumber = incoming.PhoneNumber
	}
	if incoming.DateOfBirth != "" {
		out.DateOfBirth = incoming.DateOfBirth
	}
	return out
}

// Scrub clears the fields named in likelyIncorrect so the user is
// asked for them again.
func (i Info) Scrub(likelyIncorrect []Field) Info {
	out := i
	for _, f := range likelyIncorrect {
		switch f {
		case FieldFullName:
			out.FullName = ""
		case FieldPhoneNumber:
			out.PhoneNumber = ""
		case FieldDateOfBirth:
			out.DateOfBirth = ""
		}
	}
	return out
}

// Record is the verified patient identity carried in session state.
type Record struct {
	PatientID   string `json:"patient_id"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	DateOfBirth string `json:"date_of_birth"`
}

// Diagnostics explains a non-verified outcome to the clarification
// prompt builder.
type Diagnostics struct {
	Reason          Reason  `json:"reason"`
	MissingFields   []Field `json:"missing_fields,omitempty"`
	LikelyIncorrect []Field `json:"likely_incorrect,omitempty"`
	PossiblyCorrect []Field `json:"possibly_correct,omitempty"`
}

// Result is the outcome of one verification attempt.
type Result struct {
	Verified    bool
	Record      *Record
	Diagnostics *Diagnostics
}

// Resolver verifies patient identity against a repository.
type Resolver struct {
	repo repository.Repository
}

// NewResolver creates a resolver backed by the given repository.
func NewResolver(repo repository.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve runs one verification attempt for the accumulated info.
//
// With no info it reports no_info_provided; with partial info it
// reports incomplete_info naming the missing fields. With all three
// fields it requires an exact single match; on failure it probes each
// field in isolation to estimate which fields are likely wrong.
func (r *Resolver) Resolve(ctx context.Context, info Info) (*Result, error) {
	if info.Empty() {
		return &Result{
			Diagnostics: &Diagnostics{
				Reason:        ReasonNoInfoProvided,
				MissingFields: info.Missing(),
			},
		}, nil
	}
	if !info.Complete() {
		return &Result{
			Diagnostics: &Diagnostics{
				Reason:        ReasonIncompleteInfo,
				MissingFields: info.Missing(),
			},
		}, nil
	}

	matches, err := r.repo.FindUsers(ctx, repository.UserCriteria{
		FullName:    info.FullName,
		PhoneNumber: info.PhoneNumber,
		DateOfBirth: info.DateOfBirth,
	})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	if len(matches) == 1 {
		p := matches[0]
		return &Result{
			Verified: true,
			Record: &Record{
				PatientID:   p.ID,
				FullName:    p.FullName,
				PhoneNumber: p.PhoneNumber,
				DateOfBirth: p.DateOfBirth,
			},
		}, nil
	}
	if len(matches) > 1 {
		// Ambiguous records. Treat as unmatched rather than guessing
		// which patient the caller is.
		log.Warnf("verification matched %d patients for one identity", len(matches))
	}
	diags, err := r.probeFields(ctx, info)
	if err != nil {
		return nil, err
	}
	return &Result{Diagnostics: diags}, nil
}

// probeFields looks each field up in isolation. A field that matches
// nothing on its own is likely wrong; a field that matches something
// may still be right.
func (r *Resolver) probeFields(ctx context.Context, info Info) (*Diagnostics, error) {
	probes := []struct {
		field    Field
		criteria repository.UserCriteria
	}{
		{FieldFullName, repository.UserCriteria{FullName: info.FullName}},
		{FieldPhoneNumber, repository.UserCriteria{PhoneNumber: info.PhoneNumber}},
		{FieldDateOfBirth, repository.UserCriteria{DateOfBirth: info.DateOfBirth}},
	}
	diags := &Diagnostics{}
	for _, probe := range probes {
		hits, err := r.repo.FindUsers(ctx, probe.criteria)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", probe.field, err)
		}
		if len(hits) == 0 {
			diags.LikelyIncorrect = append(diags.LikelyIncorrect, probe.field)
		} else {
			diags.PossiblyCorrect = append(diags.PossiblyCorrect, probe.field)
		}
	}
	switch len(diags.LikelyIncorrect) {
	case 3:
		diags.Reason = ReasonUserNotFound
	case 2:
		diags.Reason = ReasonMultipleFieldsIncorrect
	case 1:
		diags.Reason = ReasonSingleFieldIncorrect
	default:
		// Every field matches someone, just not the same someone.
		diags.Reason = ReasonNoCompleteMatch
	}
	return diags, nil
}
