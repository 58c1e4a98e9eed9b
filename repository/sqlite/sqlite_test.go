package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wnakano/luma-appointments-qa/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.InsertPatient(ctx, repository.Patient{
		ID: "pat-1", FullName: "Jane Doe", PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01",
	}))
	require.NoError(t, store.InsertAppointment(ctx, repository.Appointment{
		ID: "apt-1", PatientID: "pat-1",
		StartsAt: time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 9, 10, 11, 0, 0, 0, time.UTC),
		Reason:   "Annual checkup",
		Status:   repository.StatusScheduled,
		Provider: repository.Provider{FullName: "Dr. Smith", Specialty: "Cardiology"},
		Clinic: repository.Clinic{
			Name: "Northside Clinic", AddressLine1: "100 Main St",
			City: "Springfield", State: "IL", PostalCode: "62701",
		},
	}))
	return store
}

func TestFindUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("empty criteria matches nothing", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("exact three-field match", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{
			FullName: "Jane Doe", PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01",
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pat-1", got[0].ID)
	})

	t.Run("name compares case-insensitively", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{FullName: "JANE DOE"})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("wrong field breaks the conjunction", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{
			FullName: "Jane Doe", DateOfBirth: "2000-12-31",
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFindAppointmentsByPatient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.FindAppointmentsByPatient(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	appt := got[0]
	assert.Equal(t, "apt-1", appt.ID)
	assert.Equal(t, "Dr. Smith", appt.Provider.FullName)
	assert.Equal(t, "Northside Clinic", appt.Clinic.Name)
	assert.Equal(t, repository.StatusScheduled, appt.Status)
	assert.True(t, appt.StartsAt.Equal(time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)))
}

func TestUpdateAppointmentStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	updated, err := store.UpdateAppointmentStatus(ctx, "apt-1", repository.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusConfirmed, updated.Status)
	assert.Equal(t, "Dr. Smith", updated.Provider.FullName)

	_, err = store.UpdateAppointmentStatus(ctx, "apt-missing", repository.StatusConfirmed)
	assert.ErrorIs(t, err, repository.ErrAppointmentNotFound)

	_, err = store.UpdateAppointmentStatus(ctx, "apt-1", repository.AppointmentStatus("bogus"))
	assert.ErrorIs(t, err, repository.ErrInvalidStatus)
}
