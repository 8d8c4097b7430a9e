// seed fills postgres with fake doctors, one clinic per doctor and weekday
// availability templates, so slot generation and booking can be exercised
// locally.
package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduling/internal/db"
	"github.com/medtrack/clinic-scheduling/internal/scheduling"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "seed").Logger()

func main() {
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedClinics(context.Background(), pool, 50); err != nil {
		logger.Fatal().Err(err).Msg("seed clinics")
	}

	logger.Info().Msg("seed complete")
}

// Working hours are overridable as "HH:MM" strings, e.g. SEED_OPENING=08:30.
func templateHours() (opening, closing, breakStart, breakEnd scheduling.TimeOfDay) {
	return mustTimeOfDay("SEED_OPENING", "09:00"),
		mustTimeOfDay("SEED_CLOSING", "17:00"),
		mustTimeOfDay("SEED_BREAK_START", "13:00"),
		mustTimeOfDay("SEED_BREAK_END", "14:00")
}

func mustTimeOfDay(key, fallback string) scheduling.TimeOfDay {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	t, err := scheduling.ParseTimeOfDay(v)
	if err != nil {
		logger.Fatal().Err(err).Str("key", key).Msg("invalid time of day")
	}
	return t
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info().Int("count", count).Msg("seeding doctors, clinics and templates")

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

	opening, closing, breakStart, breakEnd := templateHours()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		doctorID := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, doctorID, "Dr. "+gofakeit.Name(), spec)
		if err != nil {
			return err
		}

		clinicID := uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO clinics (id, doctor_id, name, city, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, now(), now())
		`, clinicID, doctorID, gofakeit.Company()+" Clinic", gofakeit.City())
		if err != nil {
			return err
		}

		// Monday through Friday.
		for day := 1; day <= 5; day++ {
			_, err = tx.Exec(ctx, `
				INSERT INTO availability_templates
					(id, clinic_id, doctor_id, day_of_week,
					 opening_minutes, closing_minutes, break_start_minutes, break_end_minutes,
					 slot_duration_minutes, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, now(), now())
			`, uuid.New(), clinicID, doctorID, day,
				opening.Minutes(), closing.Minutes(),
				breakStart.Minutes(), breakEnd.Minutes(),
				30)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("clinics seeded")
	return nil
}
