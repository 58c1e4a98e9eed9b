// Package sqlite provides a SQLite-backed repository implementation.
// It expects an initialized *sql.DB using a SQLite driver and creates
// the required schema on construction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wnakano/luma-appointments-qa/repository"
)

const (
	createPatients = "CREATE TABLE IF NOT EXISTS patients (" +
		"id TEXT PRIMARY KEY, " +
		"full_name TEXT NOT NULL, " +
		"phone_number TEXT NOT NULL, " +
		"date_of_birth TEXT NOT NULL" +
		")"

	createAppointments = "CREATE TABLE IF NOT EXISTS appointments (" +
		"id TEXT PRIMARY KEY, " +
		"patient_id TEXT NOT NULL, " +
		"starts_at TEXT NOT NULL, " +
		"ends_at TEXT NOT NULL, " +
		"reason TEXT NOT NULL, " +
		"status TEXT NOT NULL, " +
		"provider_full_name TEXT NOT NULL, " +
		"provider_specialty TEXT NOT NULL, " +
		"clinic_name TEXT NOT NULL, " +
		"clinic_address_line1 TEXT NOT NULL, " +
		"clinic_city TEXT NOT NULL, " +
		"clinic_state TEXT NOT NULL, " +
		"clinic_postal_code TEXT NOT NULL" +
		")"

	selectAppointmentCols = "id, patient_id, starts_at, ends_at, reason, status, " +
		"provider_full_name, provider_specialty, clinic_name, " +
		"clinic_address_line1, clinic_city, clinic_state, clinic_postal_code"
)

// Store is a SQLite-backed repository.Repository.
type Store struct {
	db *sql.DB
}

// NewStore creates a store using the provided DB and creates the
// schema if needed.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createPatients); err != nil {
		return nil, fmt.Errorf("create patients table: %w", err)
	}
	if _, err := db.Exec(createAppointments); err != nil {
		return nil, fmt.Errorf("create appointments table: %w", err)
	}
	return &Store{db: db}, nil
}

// InsertPatient adds a patient row.
func (s *Store) InsertPatient(ctx context.Context, p repository.Patient) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO patients (id, full_name, phone_number, date_of_birth) VALUES (?, ?, ?, ?)",
		p.ID, p.FullName, p.PhoneNumber, p.DateOfBirth,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// InsertAppointment adds an appointment row.
func (s *Store) InsertAppointment(ctx context.Context, a repository.Appointment) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO appointments ("+selectAppointmentCols+") "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.PatientID,
		a.StartsAt.UTC().Format(time.RFC3339), a.EndsAt.UTC().Format(time.RFC3339),
		a.Reason, string(a.Status),
		a.Provider.FullName, a.Provider.Specialty,
		a.Clinic.Name, a.Clinic.AddressLine1, a.Clinic.City, a.Clinic.State, a.Clinic.PostalCode,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// FindUsers returns patients matching every populated criterion.
func (s *Store) FindUsers(ctx context.Context, criteria repository.UserCriteria) ([]repository.Patient, error) {
	if criteria.Empty() {
		return nil, nil
	}
	var (
		conds []string
		args  []any
	)
	if criteria.FullName != "" {
		conds = append(conds, "LOWER(TRIM(full_name)) = LOWER(TRIM(?))")
		args = append(args, criteria.FullName)
	}
	if criteria.PhoneNumber != "" {
		conds = append(conds, "TRIM(phone_number) = TRIM(?)")
		args = append(args, criteria.PhoneNumber)
	}
	if criteria.DateOfBirth != "" {
		conds = append(conds, "TRIM(date_of_birth) = TRIM(?)")
		args = append(args, criteria.DateOfBirth)
	}
	query := "SELECT id, full_name, phone_number, date_of_birth FROM patients WHERE " +
		strings.Join(conds, " AND ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select patients: %w", err)
	}
	defer rows.Close()

	var out []repository.Patient
	for rows.Next() {
		var p repository.Patient
		if err := rows.Scan(&p.ID, &p.FullName, &p.PhoneNumber, &p.DateOfBirth); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindAppointmentsByPatient returns all appointments for a patient,
// ordered by start time.
func (s *Store) FindAppointmentsByPatient(ctx context.Context, patientID string) ([]repository.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectAppointmentCols+" FROM appointments WHERE patient_id = ? ORDER BY starts_at ASC",
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	defer rows.Close()

	var out []repository.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAppointmentStatus transitions an appointment and returns the
// updated row.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, appointmentID string, newStatus repository.AppointmentStatus) (*repository.Appointment, error) {
	if !newStatus.Valid() {
		return nil, repository.ErrInvalidStatus
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE appointments SET status = ? WHERE id = ?",
		string(newStatus), appointmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, repository.ErrAppointmentNotFound
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectAppointmentCols+" FROM appointments WHERE id = ?",
		appointmentID,
	)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (repository.Appointment, error) {
	var (
		a                  repository.Appointment
		startsAt, endsAt   string
		status             string
	)
	err := row.Scan(
		&a.ID, &a.PatientID, &startsAt, &endsAt, &a.Reason, &status,
		&a.Provider.FullName, &a.Provider.Specialty,
		&a.Clinic.Name, &a.Clinic.AddressLine1, &a.Clinic.City, &a.Clinic.State, &a.Clinic.PostalCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return a, repository.ErrAppointmentNotFound
	}
	if err != nil {
		return a, fmt.Errorf("scan appointment: %w", err)
	}
	if a.StartsAt, err = time.Parse(time.RFC3339, startsAt); err != nil {
		return a, fmt.Errorf("parse starts_at: %w", err)
	}
	if a.EndsAt, err = time.Parse(time.RFC3339, endsAt); err != nil {
		return a, fmt.Errorf("parse ends_at: %w", err)
	}
	a.Status = repository.AppointmentStatus(status)
	return a, nil
}
