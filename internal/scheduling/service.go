package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduling/internal/cache"
	"github.com/medtrack/clinic-scheduling/internal/config"
	"github.com/medtrack/clinic-scheduling/internal/notify"
)

const (
	EventBookingConfirmation  = "BOOKING_CONFIRMATION"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventPatientConfirmed     = "PATIENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

const (
	StatusGenerated        = "success"
	StatusAlreadyGenerated = "already_generated"
)

type GenerateResult struct {
	Status       string
	ClinicID     uuid.UUID
	SlotsCreated int
}

type BookingResult struct {
	AppointmentID    uuid.UUID
	Status           string
	AppointmentDate  time.Time
	AppointmentStart time.Time
	Message          string
}

type ConfirmResult struct {
	AppointmentID uuid.UUID
	Status        string
	Message       string
}

type CancelResult struct {
	Status  string
	Message string
}

type Service struct {
	store      Store
	cache      cache.Store
	dispatcher notify.Dispatcher
	cfg        config.Config
	logger     zerolog.Logger
}

func NewService(store Store, cacheStore cache.Store, dispatcher notify.Dispatcher, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		cache:      cacheStore,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.With().Str("component", "scheduling").Logger(),
	}
}

func availabilityKey(clinicID, doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("available_slots:%s:%s:%s", clinicID, doctorID, date.Format("2006-01-02"))
}

func generationMarkerKey(clinicID uuid.UUID, startDate time.Time) string {
	return fmt.Sprintf("slots_generated:%s:%s", clinicID, startDate.Format("2006-01-02"))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// enqueueEvent is fire-and-forget: a dispatcher failure is logged and
// swallowed, never surfaced to the caller.
func (s *Service) enqueueEvent(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) {
	if err := s.dispatcher.Enqueue(ctx, eventType, appointmentID, payload); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to enqueue notification event")
	}
}

// invalidateAvailability drops every cached availability entry for the
// clinic/doctor/date. Runs strictly after the owning transaction commits;
// failures leave stale entries that age out at the cache TTL.
func (s *Service) invalidateAvailability(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) {
	prefix := availabilityKey(clinicID, doctorID, date)
	if err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("availability cache invalidation failed")
	}
}

// ListPatientAppointments returns a patient's appointments, newest first.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	appts, err := s.store.ListPatientAppointments(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return appts, nil
}

// ListDoctorAppointments returns a doctor's appointments in visit order.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	appts, err := s.store.ListDoctorAppointments(ctx, doctorID, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return appts, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
