// Package memory provides a seedable in-memory repository
// implementation, used by tests and the quickstart example.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/wnakano/luma-appointments-qa/repository"
)

// Store is an in-memory repository.Repository.
type Store struct {
	mu           sync.RWMutex
	patients     []repository.Patient
	appointments []repository.Appointment
}

// NewStore creates a store seeded with the given rows.
func NewStore(patients []repository.Patient, appointments []repository.Appointment) *Store {
	return &Store{
		patients:     append([]repository.Patient(nil), patients...),
		appointments: append([]repository.Appointment(nil), appointments...),
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindUsers returns patients matching every populated criterion.
// Names compare case-insensitively; phone and date of birth compare
// exactly after trimming.
func (s *Store) FindUsers(ctx context.Context, criteria repository.UserCriteria) ([]repository.Patient, error) {
	if criteria.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Patient
	for _, p := range s.patients {
		if criteria.FullName != "" && fold(p.FullName) != fold(criteria.FullName) {
			continue
		}
		if criteria.PhoneNumber != "" && strings.TrimSpace(p.PhoneNumber) != strings.TrimSpace(criteria.PhoneNumber) {
			continue
		}
		if criteria.DateOfBirth != "" && strings.TrimSpace(p.DateOfBirth) != strings.TrimSpace(criteria.DateOfBirth) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FindAppointmentsByPatient returns all appointments for a patient.
func (s *Store) FindAppointmentsByPatient(ctx context.Context, patientID string) ([]repository.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []repository.Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

// UpdateAppointmentStatus transitions an appointment and returns the
// updated row.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, appointmentID string, newStatus repository.AppointmentStatus) (*repository.Appointment, error) {
	if !newStatus.Valid() {
		return nil, repository.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.appointments {
		if s.appointments[i].ID == appointmentID {
			s.appointments[i].Status = newStatus
			updated := s.appointments[i]
			return &updated, nil
		}
	}
	return nil, repository.ErrAppointmentNotFound
}
