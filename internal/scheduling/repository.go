package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrClinicianNotFound   = errors.New("clinician not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// CreateAppointmentParams carries everything the repository needs to book a
// slot and open its pending payment in one transaction.
type CreateAppointmentParams struct {
	PatientID   uuid.UUID
	ClinicianID uuid.UUID
	StartAt     time.Time // UTC
	EndAt       time.Time // UTC
	ServiceType ServiceType
	AmountCents int64
	Method      string
}

// Repository contains all DB interactions needed by the scheduling core.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)

	// Active shifts for one weekday, ordered by start minute.
	ListShiftsForWeekday(ctx context.Context, clinicianID uuid.UUID, weekday time.Weekday) ([]WorkShift, error)

	// Scheduled/confirmed appointments whose [start_at, end_at) intersects
	// [from, to). Used for occupancy listing and the advisory conflict check.
	ListAppointmentsInRange(ctx context.Context, clinicianID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Re-checks interval overlap and inserts the appointment plus its pending
	// payment inside one transaction. Returns ErrBookingConflict when an
	// overlapping scheduled/confirmed appointment already exists.
	CreateScheduledAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, *Payment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// Compare-and-swap status transition; ErrAppointmentNotFound when no row
	// matches (id, from).
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	UpdatePaymentStatus(ctx context.Context, appointmentID uuid.UUID, from, to PaymentStatus) (*Payment, error)

	// Records the provider-issued instrument on the payment and the resulting
	// deadline on the appointment.
	SetPaymentDeadline(ctx context.Context, appointmentID uuid.UUID, externalRef string, deadline time.Time) error

	// Bulk-cancels scheduled appointments whose payment deadline elapsed,
	// together with their pending payments, in one statement. Returns the
	// number of appointments cancelled.
	CancelExpired(ctx context.Context, now time.Time) (int64, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
