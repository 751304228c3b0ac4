package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medagenda/clinic-scheduling/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	document TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clinicians (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	specialty TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS work_shifts (
	id UUID PRIMARY KEY,
	clinician_id UUID NOT NULL REFERENCES clinicians(id),
	weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_minute INT NOT NULL,
	end_minute INT NOT NULL CHECK (start_minute < end_minute),
	slot_minutes INT NOT NULL CHECK (slot_minutes > 0),
	gap_minutes INT NOT NULL DEFAULT 0 CHECK (gap_minutes >= 0),
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_work_shifts_clinician_weekday
	ON work_shifts (clinician_id, weekday) WHERE active;

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	patient_id UUID NOT NULL REFERENCES patients(id),
	clinician_id UUID REFERENCES clinicians(id),
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL CHECK (start_at < end_at),
	status TEXT NOT NULL,
	service_type TEXT NOT NULL,
	payment_deadline TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_appointments_clinician_active
	ON appointments (clinician_id, start_at)
	WHERE status IN ('scheduled', 'confirmed');

CREATE INDEX IF NOT EXISTS idx_appointments_expiring
	ON appointments (payment_deadline)
	WHERE status = 'scheduled' AND payment_deadline IS NOT NULL;

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	appointment_id UUID NOT NULL UNIQUE REFERENCES appointments(id),
	status TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	external_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_logs (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	appointment_id UUID,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	clinicianIDs, err := seedClinicians(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	if err := seedWorkShifts(context.Background(), pool, clinicianIDs); err != nil {
		log.Fatalf("seed work shifts: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinicians", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clinicians seeded")
	return ids, nil
}

// seedWorkShifts gives every clinician a Monday-Friday grid: mornings
// 08:00-12:00 and, for most, afternoons 14:00-18:00, on a 50-minute slot
// with a 10-minute gap.
func seedWorkShifts(ctx context.Context, pool *pgxpool.Pool, clinicianIDs []uuid.UUID) error {
	log.Printf("seeding work shifts for %d clinicians", len(clinicianIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, clinicianID := range clinicianIDs {
		hasAfternoon := gofakeit.Number(0, 9) < 8

		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO work_shifts (id, clinician_id, weekday, start_minute, end_minute, slot_minutes, gap_minutes, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, 50, 10, TRUE, now(), now())
			`, uuid.New(), clinicianID, weekday, 8*60, 12*60)
			if err != nil {
				return err
			}

			if hasAfternoon {
				_, err := tx.Exec(ctx, `
					INSERT INTO work_shifts (id, clinician_id, weekday, start_minute, end_minute, slot_minutes, gap_minutes, active, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, 50, 10, TRUE, now(), now())
				`, uuid.New(), clinicianID, weekday, 14*60, 18*60)
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("work shifts seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			document := gofakeit.Numerify("###.###.###-##")

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, document, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, document)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
