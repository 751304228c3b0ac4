package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultHorizonDays bounds how far ahead FindNextAvailableDay searches.
const DefaultHorizonDays = 90

// Allocator computes free bookable slots from shift grids and the ledger.
// It is pure computation over synchronous reads: no side effects, safe to
// call repeatedly and concurrently.
type Allocator struct {
	calendar *Calendar
	ledger   *Ledger
	loc      *time.Location
	now      func() time.Time
}

func NewAllocator(calendar *Calendar, ledger *Ledger, loc *time.Location) *Allocator {
	return &Allocator{
		calendar: calendar,
		ledger:   ledger,
		loc:      loc,
		now:      time.Now,
	}
}

// WithNow overrides the time source, for tests.
func (a *Allocator) WithNow(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// GenerateSlots lists the free slots for one clinician on one local calendar
// day, ascending by start time.
//
// Each active shift is walked from its start in steps of slot+gap minutes; a
// candidate is emitted while the full slot still fits before the shift end.
// Candidates whose clinic-local start minute is already occupied are dropped
// (exact start-time match on the fixed grid; true interval overlap is
// enforced again at commit time), as are candidates starting before now.
func (a *Allocator) GenerateSlots(ctx context.Context, clinicianID uuid.UUID, date time.Time) ([]SlotCandidate, error) {
	date = date.In(a.loc)

	shifts, err := a.calendar.ShiftsFor(ctx, clinicianID, date.Weekday())
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, nil
	}

	occupied, err := a.ledger.OccupiedStarts(ctx, clinicianID, date)
	if err != nil {
		return nil, err
	}

	now := a.now().In(a.loc)

	var slots []SlotCandidate
	for _, shift := range shifts {
		step := shift.SlotMinutes + shift.GapMinutes
		for cursor := shift.StartMinute; cursor+shift.SlotMinutes <= shift.EndMinute; cursor += step {
			if _, taken := occupied[cursor]; taken {
				continue
			}
			// The cursor is wall-clock minutes. Building the instant with
			// time.Date keeps it aligned with the occupancy key even on
			// DST-transition days, where elapsed-from-midnight drifts.
			start := time.Date(date.Year(), date.Month(), date.Day(), cursor/60, cursor%60, 0, 0, a.loc)
			if start.Before(now) {
				continue
			}
			slots = append(slots, SlotCandidate{
				ClinicianID: clinicianID,
				Start:       start,
				End:         start.Add(time.Duration(shift.SlotMinutes) * time.Minute),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// FindNextAvailableDay walks the horizon starting today and returns the first
// day with at least one free slot. A nil result means the horizon is fully
// booked, which is an expected outcome, not an error.
func (a *Allocator) FindNextAvailableDay(ctx context.Context, clinicianID uuid.UUID, horizonDays int) (*DayAvailability, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	now := a.now().In(a.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)

	for d := 0; d < horizonDays; d++ {
		day := today.AddDate(0, 0, d)
		slots, err := a.GenerateSlots(ctx, clinicianID, day)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &DayAvailability{Date: day, Slots: slots}, nil
		}
	}

	return nil, nil
}
