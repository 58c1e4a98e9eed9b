// Package repository defines the patient/appointment data access
// contract the dialogue core depends on, together with the row types
// that cross that boundary.
package repository

import (
	"context"
	"errors"
	"time"
)

// AppointmentStatus enumerates the lifecycle states of an appointment.
type AppointmentStatus string

// Appointment status values.
const (
	StatusScheduled        AppointmentStatus = "scheduled"
	StatusConfirmed        AppointmentStatus = "confirmed"
	StatusCanceledByPatient AppointmentStatus = "canceled_by_patient"
	StatusCanceledByClinic  AppointmentStatus = "canceled_by_clinic"
)

// Valid reports whether the status is one of the defined constants.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCanceledByPatient, StatusCanceledByClinic:
		return true
	}
	return false
}

// Errors.
var (
	// ErrAppointmentNotFound is returned when an appointment id does
	// not exist.
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrInvalidStatus is returned for status values outside the
	// defined set.
	ErrInvalidStatus = errors.New("invalid appointment status")
)

// Patient is a patient row.
type Patient struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	// DateOfBirth uses the YYYY-MM-DD form.
	DateOfBirth string `json:"date_of_birth"`
}

// Provider is the doctor attached to an appointment.
type Provider struct {
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty"`
}

// Clinic is the facility attached to an appointment.
type Clinic struct {
	Name         string `json:"name"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
}

// Appointment is an appointment row with its provider and clinic
// denormalized, matching what the dialogue needs to render and match.
type Appointment struct {
	ID        string            `json:"id"`
	PatientID string            `json:"patient_id"`
	StartsAt  time.Time         `json:"starts_at"`
	EndsAt    time.Time         `json:"ends_at"`
	Reason    string            `json:"reason"`
	Status    AppointmentStatus `json:"status"`
	Provider  Provider          `json:"provider"`
	Clinic    Clinic            `json:"clinic"`
}

// UserCriteria filters patient lookups. Zero-valued fields are
// wildcards; a lookup with a single populated field estimates that
// field's plausibility in isolation.
type UserCriteria struct {
	FullName    string
	PhoneNumber string
	DateOfBirth string
}

// Empty reports whether no criterion is set.
func (c UserCriteria) Empty() bool {
	return c.FullName == "" && c.PhoneNumber == "" && c.DateOfBirth == ""
}

// Repository is the data access contract required by the dialogue
// core. Implementations must be safe for concurrent use.
type Repository interface {
	// FindUsers returns patients matching every populated criterion.
	FindUsers(ctx context.Context, criteria UserCriteria) ([]Patient, error)
	// FindAppointmentsByPatient returns all appointments for a patient.
	FindAppointmentsByPatient(ctx context.Context, patientID string) ([]Appointment, error)
	// UpdateAppointmentStatus transitions an appointment to newStatus
	// and returns the updated row.
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, newStatus AppointmentStatus) (*Appointment, error)
}
