package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the authoritative view of existing bookings. Appointments are
// stored in UTC; every comparison here converts through the clinic-local
// timezone first so that shift grids and stored instants line up.
type Ledger struct {
	repo Repository
	loc  *time.Location
}

func NewLedger(repo Repository, loc *time.Location) *Ledger {
	return &Ledger{repo: repo, loc: loc}
}

// OccupiedStarts returns the set of occupied slot starts for a clinician on
// one local calendar day, keyed by minute-of-day in clinic-local time. Only
// scheduled and confirmed appointments occupy a slot.
func (l *Ledger) OccupiedStarts(ctx context.Context, clinicianID uuid.UUID, date time.Time) (map[int]struct{}, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, l.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appts, err := l.repo.ListAppointmentsInRange(ctx, clinicianID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("list day appointments: %w", err)
	}

	occupied := make(map[int]struct{}, len(appts))
	for _, a := range appts {
		local := a.StartAt.In(l.loc)
		occupied[local.Hour()*60+local.Minute()] = struct{}{}
	}
	return occupied, nil
}

// HasConflict reports whether any scheduled/confirmed appointment interval
// intersects [startAt, endAt). Intervals are half-open: a slot ending exactly
// when another begins does not conflict. This read is advisory; the
// authoritative check runs inside the booking transaction.
func (l *Ledger) HasConflict(ctx context.Context, clinicianID uuid.UUID, startAt, endAt time.Time) (bool, error) {
	appts, err := l.repo.ListAppointmentsInRange(ctx, clinicianID, startAt.UTC(), endAt.UTC())
	if err != nil {
		return false, fmt.Errorf("list overlapping appointments: %w", err)
	}
	return len(appts) > 0, nil
}
