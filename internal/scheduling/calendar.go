package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Calendar answers questions about a clinician's recurring weekly schedule.
// It is read-only; shifts are maintained by clinic administration.
type Calendar struct {
	repo Repository
}

func NewCalendar(repo Repository) *Calendar {
	return &Calendar{repo: repo}
}

// ShiftsFor returns the active shifts for one weekday ordered by start time.
// An empty result is valid and distinct from an unknown clinician, which
// yields ErrClinicianNotFound.
func (c *Calendar) ShiftsFor(ctx context.Context, clinicianID uuid.UUID, weekday time.Weekday) ([]WorkShift, error) {
	if _, err := c.repo.GetClinicianByID(ctx, clinicianID); err != nil {
		return nil, err
	}

	shifts, err := c.repo.ListShiftsForWeekday(ctx, clinicianID, weekday)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	return shifts, nil
}

// HasAvailability reports whether the clinician has at least one active shift
// on the given weekday.
func (c *Calendar) HasAvailability(ctx context.Context, clinicianID uuid.UUID, weekday time.Weekday) (bool, error) {
	shifts, err := c.ShiftsFor(ctx, clinicianID, weekday)
	if err != nil {
		return false, err
	}
	return len(shifts) > 0, nil
}
