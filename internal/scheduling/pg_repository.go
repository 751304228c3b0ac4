package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs; pgxmock
// implements it for tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db PgxPool
}

func NewPgRepository(db PgxPool) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Document,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Specialty,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanShift(row pgx.Row) (*WorkShift, error) {
	var s WorkShift
	var weekday int

	err := row.Scan(
		&s.ID,
		&s.ClinicianID,
		&weekday,
		&s.StartMinute,
		&s.EndMinute,
		&s.SlotMinutes,
		&s.GapMinutes,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Weekday = time.Weekday(weekday)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicianID,
		&a.StartAt,
		&a.EndAt,
		&a.Status,
		&a.ServiceType,
		&a.PaymentDeadline,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Status,
		&p.AmountCents,
		&p.Method,
		&p.ExternalRef,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

const appointmentColumns = `id, patient_id, clinician_id, start_at, end_at, status, service_type, payment_deadline, created_at, updated_at`

const paymentColumns = `id, appointment_id, status, amount_cents, method, external_ref, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, document, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgRepository) ListShiftsForWeekday(ctx context.Context, clinicianID uuid.UUID, weekday time.Weekday) ([]WorkShift, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, clinician_id, weekday, start_minute, end_minute, slot_minutes, gap_minutes, active, created_at, updated_at
		FROM work_shifts
		WHERE clinician_id = $1
		  AND weekday = $2
		  AND active
		ORDER BY start_minute
	`, clinicianID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkShift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListAppointmentsInRange(ctx context.Context, clinicianID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinician_id = $1
		  AND status IN ('scheduled', 'confirmed')
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, clinicianID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateScheduledAppointment re-checks interval overlap and inserts the
// appointment and its pending payment in one transaction. An advisory
// transaction lock on the clinician serializes writers even when the Redis
// lock in front is degraded.
func (r *PgRepository) CreateScheduledAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, *Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, p.ClinicianID); err != nil {
		return nil, nil, fmt.Errorf("acquire clinician tx lock: %w", err)
	}

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE clinician_id = $1
			  AND status IN ('scheduled', 'confirmed')
			  AND start_at < $3
			  AND end_at > $2
		)
	`, p.ClinicianID, p.StartAt, p.EndAt).Scan(&conflict)
	if err != nil {
		return nil, nil, fmt.Errorf("check overlap: %w", err)
	}
	if conflict {
		return nil, nil, ErrBookingConflict
	}

	apptID := uuid.New()
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, clinician_id, start_at, end_at, status, service_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, now(), now())
		RETURNING `+appointmentColumns+`
	`, apptID, p.PatientID, p.ClinicianID, p.StartAt, p.EndAt, p.ServiceType))
	if err != nil {
		return nil, nil, fmt.Errorf("insert appointment: %w", err)
	}

	paymentID := uuid.New()
	payment, err := scanPayment(tx.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, status, amount_cents, method, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $4, now(), now())
		RETURNING `+paymentColumns+`
	`, paymentID, apptID, p.AmountCents, p.Method))
	if err != nil {
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return appt, payment, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	payment, err := scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
	`, id))
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	detail.Payment = payment

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	detail.Patient = patient

	if appt.ClinicianID != nil {
		clinician, err := r.GetClinicianByID(ctx, *appt.ClinicianID)
		if err != nil && !errors.Is(err, ErrClinicianNotFound) {
			return nil, err
		}
		detail.Clinician = clinician
	}

	return detail, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) UpdatePaymentStatus(ctx context.Context, appointmentID uuid.UUID, from, to PaymentStatus) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = $3
		RETURNING `+paymentColumns+`
	`, appointmentID, to, from)

	return scanPayment(row)
}

func (r *PgRepository) SetPaymentDeadline(ctx context.Context, appointmentID uuid.UUID, externalRef string, deadline time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deadline tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET payment_deadline = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
	`, appointmentID, deadline)
	if err != nil {
		return fmt.Errorf("set appointment deadline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payments
		SET external_ref = $2,
		    updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, externalRef); err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deadline tx: %w", err)
	}

	return nil
}

// CancelExpired releases every slot held past its payment deadline in one
// statement, cancelling the linked pending payments alongside.
func (r *PgRepository) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	var cancelled int64

	err := r.db.QueryRow(ctx, `
		WITH expired AS (
			UPDATE appointments
			SET status = 'cancelled',
			    updated_at = now()
			WHERE status = 'scheduled'
			  AND payment_deadline IS NOT NULL
			  AND payment_deadline <= $1
			RETURNING id
		), released_payments AS (
			UPDATE payments
			SET status = 'cancelled',
			    updated_at = now()
			WHERE appointment_id IN (SELECT id FROM expired)
			  AND status = 'pending'
			RETURNING id
		)
		SELECT count(*) FROM expired
	`, now).Scan(&cancelled)
	if err != nil {
		return 0, err
	}

	return cancelled, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
