package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wnakano/luma-appointments-qa/repository"
)

func seed() *Store {
	patients := []repository.Patient{
		{ID: "pat-1", FullName: "Jane Doe", PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01"},
		{ID: "pat-2", FullName: "John Roe", PhoneNumber: "+15559876543", DateOfBirth: "1985-06-15"},
	}
	appointments := []repository.Appointment{
		{
			ID: "apt-1", PatientID: "pat-1",
			StartsAt: time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC),
			Status:   repository.StatusScheduled,
			Provider: repository.Provider{FullName: "Dr. Smith", Specialty: "Cardiology"},
			Clinic:   repository.Clinic{Name: "Northside Clinic"},
		},
		{
			ID: "apt-2", PatientID: "pat-2",
			StartsAt: time.Date(2026, 9, 11, 9, 0, 0, 0, time.UTC),
			Status:   repository.StatusScheduled,
		},
	}
	return NewStore(patients, appointments)
}

func TestFindUsers(t *testing.T) {
	store := seed()
	ctx := context.Background()

	t.Run("empty criteria matches nothing", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("all three fields", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{
			FullName: "Jane Doe", PhoneNumber: "+15551234567", DateOfBirth: "1990-01-01",
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pat-1", got[0].ID)
	})

	t.Run("name is case-insensitive", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{FullName: "jane doe"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pat-1", got[0].ID)
	})

	t.Run("single field probe", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{PhoneNumber: "+15559876543"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "pat-2", got[0].ID)
	})

	t.Run("conjunction fails on one wrong field", func(t *testing.T) {
		got, err := store.FindUsers(ctx, repository.UserCriteria{
			FullName: "Jane Doe", PhoneNumber: "+15559876543",
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFindAppointmentsByPatient(t *testing.T) {
	store := seed()
	ctx := context.Background()

	got, err := store.FindAppointmentsByPatient(ctx, "pat-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "apt-1", got[0].ID)

	got, err = store.FindAppointmentsByPatient(ctx, "pat-unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	store := seed()
	ctx := context.Background()

	updated, err := store.UpdateAppointmentStatus(ctx, "apt-1", repository.StatusCanceledByPatient)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCanceledByPatient, updated.Status)

	listed, err := store.FindAppointmentsByPatient(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCanceledByPatient, listed[0].Status)

	_, err = store.UpdateAppointmentStatus(ctx, "apt-missing", repository.StatusConfirmed)
	assert.ErrorIs(t, err, repository.ErrAppointmentNotFound)

	_, err = store.UpdateAppointmentStatus(ctx, "apt-1", repository.AppointmentStatus("bogus"))
	assert.ErrorIs(t, err, repository.ErrInvalidStatus)
}
