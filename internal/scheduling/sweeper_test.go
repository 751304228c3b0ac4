package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExpirable(t *testing.T, repo *stubRepo, clinicianID, patientID uuid.UUID, start time.Time, deadline *time.Time) uuid.UUID {
	t.Helper()
	appt := bookAt(t, repo, clinicianID, patientID, start, 50)
	if deadline != nil {
		require.NoError(t, repo.SetPaymentDeadline(context.Background(), appt.ID, "pix-ref", *deadline))
	}
	return appt.ID
}

func TestSweepCancelsOnlyExpired(t *testing.T) {
	repo := newStubRepo()
	clinicianID := repo.addClinician("Dr. Souza", "Dermatology")
	patientID := repo.addPatient("Ana Lima")

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, testLoc)
	base := localDay(now, 3).Add(8 * time.Hour)

	past := now.Add(-time.Minute).UTC()
	future := now.Add(time.Hour).UTC()

	expiredID := seedExpirable(t, repo, clinicianID, patientID, base, &past)
	liveID := seedExpirable(t, repo, clinicianID, patientID, base.Add(time.Hour), &future)
	staffID := seedExpirable(t, repo, clinicianID, patientID, base.Add(2*time.Hour), nil)

	sweeper := NewSweeper(repo, nil)
	cancelled, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	expired, err := repo.GetAppointmentByID(context.Background(), expiredID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, expired.Status)

	detail, err := repo.GetAppointmentDetail(context.Background(), expiredID)
	require.NoError(t, err)
	require.NotNil(t, detail.Payment)
	assert.Equal(t, PaymentCancelled, detail.Payment.Status)

	live, err := repo.GetAppointmentByID(context.Background(), liveID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, live.Status)

	staff, err := repo.GetAppointmentByID(context.Background(), staffID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, staff.Status, "no deadline means the sweeper never touches it")
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	clinicianID := repo.addClinician("Dr. Souza", "Dermatology")
	patientID := repo.addPatient("Ana Lima")

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, testLoc)
	past := now.Add(-time.Minute).UTC()
	seedExpirable(t, repo, clinicianID, patientID, localDay(now, 3).Add(9*time.Hour), &past)

	sweeper := NewSweeper(repo, nil)

	first, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := sweeper.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestSweepSkipsConfirmed(t *testing.T) {
	repo := newStubRepo()
	clinicianID := repo.addClinician("Dr. Souza", "Dermatology")
	patientID := repo.addPatient("Ana Lima")

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, testLoc)
	past := now.Add(-time.Minute).UTC()
	id := seedExpirable(t, repo, clinicianID, patientID, localDay(now, 3).Add(9*time.Hour), &past)

	// Confirmed before the sweep ran: the stale deadline is irrelevant.
	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	require.NoError(t, err)

	cancelled, err := NewSweeper(repo, nil).Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, cancelled)

	appt, err := repo.GetAppointmentByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
}

func TestSweepReleasedSlotBecomesListable(t *testing.T) {
	repo := newStubRepo()
	clinicianID := repo.addClinician("Dr. Souza", "Dermatology")
	patientID := repo.addPatient("Ana Lima")

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, testLoc)
	day := localDay(now, 3)
	repo.addShift(clinicianID, day.Weekday(), 8*60, 12*60, 50, 10)

	past := now.Add(-time.Minute).UTC()
	seedExpirable(t, repo, clinicianID, patientID, day.Add(9*time.Hour), &past)

	alloc := newTestAllocator(repo, now)
	before, err := alloc.GenerateSlots(context.Background(), clinicianID, day)
	require.NoError(t, err)

	_, err = NewSweeper(repo, nil).Sweep(context.Background(), now)
	require.NoError(t, err)

	after, err := alloc.GenerateSlots(context.Background(), clinicianID, day)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
}

func TestSweepPropagatesRepositoryError(t *testing.T) {
	repo := newStubRepo()
	repo.failCancel = errors.New("connection reset")

	_, err := NewSweeper(repo, nil).Sweep(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorContains(t, err, "cancel expired appointments")
}
