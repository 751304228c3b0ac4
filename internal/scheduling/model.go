package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

type ServiceType string

const (
	ServiceConsultation ServiceType = "consultation"
	ServiceProcedure    ServiceType = "procedure"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Actor identifies who initiates a booking. Intake bookings get a payment
// instrument and a deadline; staff bookings are reconciled manually.
type Actor string

const (
	ActorIntake Actor = "intake"
	ActorStaff  Actor = "staff"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Document  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinician struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkShift is one recurring weekly availability window for a clinician.
// Start and end are minutes from local midnight in the clinic timezone, so
// a shift survives UTC-offset changes without re-encoding.
type WorkShift struct {
	ID          uuid.UUID
	ClinicianID uuid.UUID
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
	SlotMinutes int
	GapMinutes  int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ClinicianID     *uuid.UUID
	StartAt         time.Time // UTC
	EndAt           time.Time // UTC
	Status          AppointmentStatus
	ServiceType     ServiceType
	PaymentDeadline *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Status        PaymentStatus
	AmountCents   int64
	Method        string
	ExternalRef   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotCandidate is a bookable interval derived from a shift grid. Start and
// End carry the clinic-local location; they are never persisted.
type SlotCandidate struct {
	ClinicianID uuid.UUID
	Start       time.Time
	End         time.Time
}

// DayAvailability is the result of a horizon search: the first day that still
// has at least one free slot.
type DayAvailability struct {
	Date  time.Time // local midnight
	Slots []SlotCandidate
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Payment   *Payment
	Patient   *Patient
	Clinician *Clinician
}
