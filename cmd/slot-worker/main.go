// slot-worker expands availability templates into bookable slots for every
// active clinic, once at startup and then on a cron schedule (02:00 nightly
// by default).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduling/internal/cache"
	"github.com/medtrack/clinic-scheduling/internal/config"
	"github.com/medtrack/clinic-scheduling/internal/db"
	"github.com/medtrack/clinic-scheduling/internal/notify"
	redisclient "github.com/medtrack/clinic-scheduling/internal/redis"
	"github.com/medtrack/clinic-scheduling/internal/scheduling"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "slot-worker").Logger()
	logger.Info().Msg("slot-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Str("cron", cfg.WorkerCronSpec).Int("days_ahead", cfg.GenerateDaysAhead).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.Connect(rootCtx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	store := scheduling.NewPgStore(pgPool, cfg.LockWaitTimeout)
	svc := scheduling.NewService(store, cache.NewRedisStore(rdb), notify.Nop{}, cfg, logger)

	run := func() { generateForAllClinics(rootCtx, svc, store, cfg.GenerateDaysAhead, logger) }
	run()

	c := cron.New()
	if _, err := c.AddFunc(cfg.WorkerCronSpec, run); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.WorkerCronSpec).Msg("invalid cron spec")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping slot-worker")

	<-c.Stop().Done()
}

func generateForAllClinics(ctx context.Context, svc *scheduling.Service, store scheduling.Store, daysAhead int, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	today := time.Now().UTC()

	clinics, err := store.ListActiveClinics(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("list active clinics failed")
		return
	}

	for _, clinic := range clinics {
		result, err := svc.GenerateSlots(runCtx, clinic.ID, today, daysAhead)
		if err != nil {
			// One bad clinic must not stop the sweep.
			logger.Error().Err(err).Str("clinic_id", clinic.ID.String()).Msg("slot generation failed")
			continue
		}
		logger.Info().
			Str("clinic_id", clinic.ID.String()).
			Str("status", result.Status).
			Int("slots_created", result.SlotsCreated).
			Msg("clinic processed")
	}

	logger.Info().Int("clinics", len(clinics)).Dur("took", time.Since(start)).Msg("generation sweep complete")
}
