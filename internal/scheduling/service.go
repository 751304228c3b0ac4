package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/billing"
	"github.com/medagenda/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/medagenda/clinic-scheduling/internal/redis"
)

const (
	EventBookingCreated      = "BOOKING_CREATED"
	EventBookingConfirmed    = "BOOKING_CONFIRMED"
	EventBookingCancelled    = "BOOKING_CANCELLED"
	EventBookingExpired      = "BOOKING_EXPIRED"
	EventPaymentInstrumented = "PAYMENT_INSTRUMENTED"
)

var (
	ErrBookingConflict         = errors.New("requested interval overlaps an existing appointment")
	ErrClinicianBusy           = errors.New("clinician is currently being booked, please retry")
	ErrValidation              = errors.New("invalid booking request")
	ErrAppointmentExpired      = errors.New("appointment payment deadline has passed")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ServiceConfig carries the tunables the committer needs.
type ServiceConfig struct {
	Location        *time.Location
	PaymentDeadline time.Duration // how long an unpaid booking stays reserved
	ProviderTimeout time.Duration // outbound payment-provider call bound
	HorizonDays     int
}

// Service books appointments against free slots. It re-validates interval
// overlap inside the booking transaction, behind a per clinician distributed
// lock, so that exactly one of any set of concurrent overlapping attempts
// succeeds.
type Service struct {
	repo      Repository
	locker    redisclient.Locker
	allocator *Allocator
	catalog   billing.Catalog
	provider  billing.Provider
	metrics   *metrics.BookingMetrics
	cfg       ServiceConfig
	now       func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, allocator *Allocator, catalog billing.Catalog, provider billing.Provider, m *metrics.BookingMetrics, cfg ServiceConfig) *Service {
	if cfg.PaymentDeadline <= 0 {
		cfg.PaymentDeadline = 30 * time.Minute
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		allocator: allocator,
		catalog:   catalog,
		provider:  provider,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithNow overrides the time source, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	if s.allocator != nil {
		s.allocator.WithNow(now)
	}
	return s
}

type BookRequest struct {
	ClinicianID     uuid.UUID
	PatientID       uuid.UUID
	StartAt         time.Time
	DurationMinutes int
	ServiceType     ServiceType
	Actor           Actor
	Method          string // pix or card, intake only
}

type BookingResult struct {
	Appointment *Appointment
	Payment     *Payment
	Instrument  *billing.Instrument
}

// Slots lists the free slots for one clinician on one local calendar day.
func (s *Service) Slots(ctx context.Context, clinicianID uuid.UUID, date time.Time) ([]SlotCandidate, error) {
	return s.allocator.GenerateSlots(ctx, clinicianID, date)
}

// NextAvailableDay returns the first day within the horizon that still has a
// free slot, or nil when the clinician is fully booked.
func (s *Service) NextAvailableDay(ctx context.Context, clinicianID uuid.UUID, horizonDays int) (*DayAvailability, error) {
	if horizonDays <= 0 {
		horizonDays = s.cfg.HorizonDays
	}
	return s.allocator.FindNextAvailableDay(ctx, clinicianID, horizonDays)
}

// Book reserves the interval [StartAt, StartAt+duration) for the patient.
// The interval-overlap re-check and the insert run in one transaction behind
// the clinician lock. The payment instrument is requested only after the
// booking is committed; a provider failure leaves the appointment standing
// without a deadline and is logged, never surfaced to the caller.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookingResult, error) {
	started := s.now()

	if err := s.validateBookRequest(req); err != nil {
		s.metrics.ObserveBooking("validation_error", string(req.Actor), time.Since(started).Seconds())
		return nil, err
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	clinician, err := s.repo.GetClinicianByID(ctx, req.ClinicianID)
	if err != nil {
		if errors.Is(err, ErrClinicianNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinician: %w", err)
	}

	if req.Actor == ActorIntake {
		if err := s.requireGridBoundary(ctx, req); err != nil {
			s.metrics.ObserveBooking("validation_error", string(req.Actor), time.Since(started).Seconds())
			return nil, err
		}
	}

	specialty := ""
	if clinician.Specialty != nil {
		specialty = *clinician.Specialty
	}
	amount, err := s.catalog.PriceFor(string(req.ServiceType), specialty)
	if err != nil {
		return nil, fmt.Errorf("price service: %w", err)
	}

	endAt := req.StartAt.Add(time.Duration(req.DurationMinutes) * time.Minute)

	var (
		created *Appointment
		payment *Payment
	)

	err = s.locker.WithClinicianLock(ctx, req.ClinicianID, func(lockCtx context.Context) error {
		appt, pay, err := s.repo.CreateScheduledAppointment(lockCtx, CreateAppointmentParams{
			PatientID:   req.PatientID,
			ClinicianID: req.ClinicianID,
			StartAt:     req.StartAt.UTC(),
			EndAt:       endAt.UTC(),
			ServiceType: req.ServiceType,
			AmountCents: amount,
			Method:      req.Method,
		})
		if err != nil {
			return err
		}

		created = appt
		payment = pay

		s.logEvent(lockCtx, appt.ID, EventBookingCreated, map[string]any{
			"clinician_id": req.ClinicianID.String(),
			"patient_id":   req.PatientID.String(),
			"start_at":     req.StartAt.UTC(),
			"end_at":       endAt.UTC(),
			"actor":        string(req.Actor),
		})
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.metrics.ObserveBooking("busy", string(req.Actor), time.Since(started).Seconds())
			return nil, ErrClinicianBusy
		case errors.Is(err, ErrBookingConflict):
			s.metrics.ObserveBooking("conflict", string(req.Actor), time.Since(started).Seconds())
			return nil, err
		default:
			s.metrics.ObserveBooking("error", string(req.Actor), time.Since(started).Seconds())
			return nil, err
		}
	}

	result := &BookingResult{Appointment: created, Payment: payment}

	// Outbound provider call happens after the transaction committed; no row
	// lock is held across the network round-trip.
	if req.Actor == ActorIntake {
		result.Instrument = s.requestInstrument(ctx, created, payment, patient)
	}

	s.metrics.ObserveBooking("success", string(req.Actor), time.Since(started).Seconds())
	return result, nil
}

func (s *Service) validateBookRequest(req BookRequest) error {
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	switch req.ServiceType {
	case ServiceConsultation, ServiceProcedure:
	default:
		return fmt.Errorf("%w: unknown service type %q", ErrValidation, req.ServiceType)
	}
	switch req.Actor {
	case ActorIntake, ActorStaff:
	default:
		return fmt.Errorf("%w: unknown actor %q", ErrValidation, req.Actor)
	}
	if req.Actor == ActorIntake && req.Method != "pix" && req.Method != "card" {
		return fmt.Errorf("%w: intake bookings require method pix or card", ErrValidation)
	}
	if req.StartAt.Before(s.now()) {
		return fmt.Errorf("%w: start_at is in the past", ErrValidation)
	}
	return nil
}

// requireGridBoundary rejects intake bookings whose start does not fall on a
// currently free slot of the clinician's grid. Staff bookings may be
// off-grid (variable-length procedures); the transactional overlap check
// still protects them.
func (s *Service) requireGridBoundary(ctx context.Context, req BookRequest) error {
	slots, err := s.allocator.GenerateSlots(ctx, req.ClinicianID, req.StartAt.In(s.cfg.Location))
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if slot.Start.Equal(req.StartAt) {
			return nil
		}
	}
	return fmt.Errorf("%w: start_at is not a free slot boundary", ErrValidation)
}

func (s *Service) requestInstrument(ctx context.Context, appt *Appointment, payment *Payment, patient *Patient) *billing.Instrument {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	expiryMinutes := int(s.cfg.PaymentDeadline.Minutes())

	var (
		inst *billing.Instrument
		err  error
	)
	if payment.Method == "pix" {
		payer := billing.Payer{Name: patient.Name}
		if patient.Email != nil {
			payer.Email = *patient.Email
		}
		if patient.Document != nil {
			payer.Document = *patient.Document
		}
		inst, err = s.provider.CreatePixCharge(callCtx, payment.ID, payment.AmountCents, payer, expiryMinutes)
	} else {
		inst, err = s.provider.CreateCardLink(callCtx, payment.ID, payment.AmountCents, expiryMinutes)
	}
	if err != nil {
		// The booking stands without a deadline; staff reconcile manually.
		log.Printf("payment instrument for appointment %s failed: %v", appt.ID, err)
		s.metrics.ObserveProviderFailure()
		return nil
	}

	ref := inst.Ref
	if ref == "" {
		ref = inst.URL
	}
	if err := s.repo.SetPaymentDeadline(ctx, appt.ID, ref, inst.ExpiresAt.UTC()); err != nil {
		log.Printf("persist payment deadline for appointment %s failed: %v", appt.ID, err)
		return inst
	}

	deadline := inst.ExpiresAt.UTC()
	appt.PaymentDeadline = &deadline
	payment.ExternalRef = &ref

	s.logEvent(ctx, appt.ID, EventPaymentInstrumented, map[string]any{
		"payment_id": payment.ID.String(),
		"expires_at": deadline,
	})
	return inst
}

// Confirm moves a scheduled appointment to confirmed, marking its payment
// paid. Confirming past the payment deadline cancels the booking instead.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	now := s.now()

	if appt.Status == StatusCancelled && appt.PaymentDeadline != nil {
		return nil, ErrAppointmentExpired
	}

	if appt.Status == StatusScheduled && appt.PaymentDeadline != nil && appt.PaymentDeadline.Before(now) {
		if _, updErr := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCancelled); updErr != nil && !errors.Is(updErr, ErrAppointmentNotFound) {
			log.Printf("failed to cancel appointment %s during confirm: %v", appt.ID, updErr)
		}
		s.logEvent(ctx, appt.ID, EventBookingExpired, map[string]any{
			"reason": "confirm_after_deadline",
		})
		return nil, ErrAppointmentExpired
	}

	if appt.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// CAS miss: the sweeper or another caller moved the status
			// between our read and the update. Report the current state,
			// not a missing appointment.
			return nil, s.classifyTransitionMiss(ctx, appt.ID)
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	if _, err := s.repo.UpdatePaymentStatus(ctx, appt.ID, PaymentPending, PaymentPaid); err != nil && !errors.Is(err, ErrPaymentNotFound) {
		log.Printf("failed to mark payment paid for appointment %s: %v", appt.ID, err)
	}

	s.logEvent(ctx, updated.ID, EventBookingConfirmed, map[string]any{})
	return updated, nil
}

// classifyTransitionMiss re-reads an appointment after a compare-and-swap
// update matched no row and maps the current state to the right error.
func (s *Service) classifyTransitionMiss(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload appointment: %w", err)
	}
	if current.Status == StatusCancelled && current.PaymentDeadline != nil {
		return ErrAppointmentExpired
	}
	return ErrInvalidStatusTransition
}

// Cancel is the manual clinic action: scheduled or confirmed to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status != StatusScheduled && appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.classifyTransitionMiss(ctx, appt.ID)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if _, err := s.repo.UpdatePaymentStatus(ctx, appt.ID, PaymentPending, PaymentCancelled); err != nil && !errors.Is(err, ErrPaymentNotFound) {
		log.Printf("failed to cancel payment for appointment %s: %v", appt.ID, err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{"reason": "manual"})
	return updated, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
