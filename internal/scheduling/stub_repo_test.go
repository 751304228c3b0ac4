package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stubRepo is an in-memory Repository with real overlap semantics, so the
// service and allocator can be exercised without Postgres.
type stubRepo struct {
	mu sync.Mutex

	patients     map[uuid.UUID]*Patient
	clinicians   map[uuid.UUID]*Clinician
	shifts       map[uuid.UUID][]WorkShift
	appointments map[uuid.UUID]*Appointment
	payments     map[uuid.UUID]*Payment // keyed by appointment id
	events       []EventLog

	shiftListCalls int

	failCreate error
	failCancel error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		patients:     make(map[uuid.UUID]*Patient),
		clinicians:   make(map[uuid.UUID]*Clinician),
		shifts:       make(map[uuid.UUID][]WorkShift),
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[uuid.UUID]*Payment),
	}
}

func (r *stubRepo) addPatient(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = &Patient{ID: id, Name: name}
	return id
}

func (r *stubRepo) addClinician(name, specialty string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.clinicians[id] = &Clinician{ID: id, Name: name, Specialty: &specialty}
	return id
}

func (r *stubRepo) addShift(clinicianID uuid.UUID, weekday time.Weekday, startMin, endMin, slotMin, gapMin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shifts[clinicianID] = append(r.shifts[clinicianID], WorkShift{
		ID:          uuid.New(),
		ClinicianID: clinicianID,
		Weekday:     weekday,
		StartMinute: startMin,
		EndMinute:   endMin,
		SlotMinutes: slotMin,
		GapMinutes:  gapMin,
		Active:      true,
	})
}

func (r *stubRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubRepo) GetClinicianByID(_ context.Context, id uuid.UUID) (*Clinician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clinicians[id]
	if !ok {
		return nil, ErrClinicianNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *stubRepo) ListShiftsForWeekday(_ context.Context, clinicianID uuid.UUID, weekday time.Weekday) ([]WorkShift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shiftListCalls++

	var result []WorkShift
	for _, s := range r.shifts[clinicianID] {
		if s.Weekday == weekday && s.Active {
			result = append(result, s)
		}
	}
	return result, nil
}

func overlaps(a *Appointment, from, to time.Time) bool {
	return a.StartAt.Before(to) && a.EndAt.After(from)
}

func (r *stubRepo) ListAppointmentsInRange(_ context.Context, clinicianID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.ClinicianID == nil || *a.ClinicianID != clinicianID {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		if overlaps(a, from, to) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *stubRepo) CreateScheduledAppointment(_ context.Context, p CreateAppointmentParams) (*Appointment, *Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate != nil {
		return nil, nil, r.failCreate
	}

	for _, a := range r.appointments {
		if a.ClinicianID == nil || *a.ClinicianID != p.ClinicianID {
			continue
		}
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		if overlaps(a, p.StartAt, p.EndAt) {
			return nil, nil, ErrBookingConflict
		}
	}

	clinicianID := p.ClinicianID
	now := time.Now().UTC()
	appt := &Appointment{
		ID:          uuid.New(),
		PatientID:   p.PatientID,
		ClinicianID: &clinicianID,
		StartAt:     p.StartAt,
		EndAt:       p.EndAt,
		Status:      StatusScheduled,
		ServiceType: p.ServiceType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payment := &Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Status:        PaymentPending,
		AmountCents:   p.AmountCents,
		Method:        p.Method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.appointments[appt.ID] = appt
	r.payments[appt.ID] = payment

	apptCopy := *appt
	payCopy := *payment
	return &apptCopy, &payCopy, nil
}

func (r *stubRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *stubRepo) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(context.Background(), id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	detail := &AppointmentDetail{Appointment: *appt}
	if p, ok := r.payments[id]; ok {
		cp := *p
		detail.Payment = &cp
	}
	if pat, ok := r.patients[appt.PatientID]; ok {
		cp := *pat
		detail.Patient = &cp
	}
	if appt.ClinicianID != nil {
		if c, ok := r.clinicians[*appt.ClinicianID]; ok {
			cp := *c
			detail.Clinician = &cp
		}
	}
	return detail, nil
}

func (r *stubRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (r *stubRepo) UpdatePaymentStatus(_ context.Context, appointmentID uuid.UUID, from, to PaymentStatus) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[appointmentID]
	if !ok || p.Status != from {
		return nil, ErrPaymentNotFound
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (r *stubRepo) SetPaymentDeadline(_ context.Context, appointmentID uuid.UUID, externalRef string, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[appointmentID]
	if !ok || a.Status != StatusScheduled {
		return ErrAppointmentNotFound
	}
	d := deadline
	a.PaymentDeadline = &d
	if p, ok := r.payments[appointmentID]; ok {
		ref := externalRef
		p.ExternalRef = &ref
	}
	return nil
}

func (r *stubRepo) CancelExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCancel != nil {
		return 0, r.failCancel
	}

	var cancelled int64
	for _, a := range r.appointments {
		if a.Status != StatusScheduled || a.PaymentDeadline == nil {
			continue
		}
		if a.PaymentDeadline.After(now) {
			continue
		}
		a.Status = StatusCancelled
		if p, ok := r.payments[a.ID]; ok && p.Status == PaymentPending {
			p.Status = PaymentCancelled
		}
		cancelled++
	}
	return cancelled, nil
}

func (r *stubRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
