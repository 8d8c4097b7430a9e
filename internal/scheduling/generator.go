package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSlots expands the clinic's availability templates into persisted
// slots for [startDate, startDate+daysAhead).
//
// A redis marker short-circuits repeat generation of the same window, but it
// is advisory only: if two callers race past it, the unique
// (clinic, doctor, slot_start) index makes the duplicate inserts no-ops.
func (s *Service) GenerateSlots(ctx context.Context, clinicID uuid.UUID, startDate time.Time, daysAhead int) (*GenerateResult, error) {
	startDate = dateOnly(startDate)
	if daysAhead <= 0 {
		daysAhead = s.cfg.GenerateDaysAhead
	}

	markerKey := generationMarkerKey(clinicID, startDate)
	if _, found, err := s.cache.Get(ctx, markerKey); err != nil {
		s.logger.Warn().Err(err).Str("key", markerKey).Msg("generation marker read failed, proceeding")
	} else if found {
		return &GenerateResult{Status: StatusAlreadyGenerated, ClinicID: clinicID}, nil
	}

	clinic, err := s.store.GetClinicByID(ctx, clinicID)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}
	if clinic.DoctorID == uuid.Nil {
		return nil, ErrDoctorNotFound
	}

	windowEnd := startDate.AddDate(0, 0, daysAhead)
	existingStarts, err := s.store.ListSlotStarts(ctx, clinicID, clinic.DoctorID, startDate, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("load existing slot starts: %w", err)
	}
	existing := make(map[int64]struct{}, len(existingStarts))
	for _, t := range existingStarts {
		existing[t.Unix()] = struct{}{}
	}

	var toInsert []Slot

	for day := startDate; day.Before(windowEnd); day = day.AddDate(0, 0, 1) {
		template, err := s.store.GetActiveTemplate(ctx, clinicID, day.Weekday())
		if err != nil {
			if errors.Is(err, ErrTemplateNotFound) {
				// No working hours defined for this weekday.
				continue
			}
			return nil, fmt.Errorf("load template for %s: %w", day.Weekday(), err)
		}

		toInsert = append(toInsert, expandTemplate(template, day, existing)...)
	}

	created, err := s.store.InsertSlots(ctx, toInsert)
	if err != nil {
		return nil, fmt.Errorf("insert slots: %w", err)
	}

	if err := s.cache.Set(ctx, markerKey, "1", s.cfg.GenerationMarkerTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", markerKey).Msg("generation marker write failed")
	}

	s.logger.Info().
		Str("clinic_id", clinicID.String()).
		Str("start_date", startDate.Format("2006-01-02")).
		Int("days_ahead", daysAhead).
		Int("slots_created", created).
		Msg("slot generation complete")

	return &GenerateResult{
		Status:       StatusGenerated,
		ClinicID:     clinicID,
		SlotsCreated: created,
	}, nil
}

// expandTemplate walks a cursor from opening to closing time in slot-duration
// steps. Cursor positions inside [break_start, break_end) are skipped. A slot
// is emitted whenever its start precedes closing time, even when its end runs
// past it; the last partial slot of the day is kept on purpose.
func expandTemplate(template *AvailabilityTemplate, day time.Time, existing map[int64]struct{}) []Slot {
	duration := TimeOfDay(template.SlotDurationMinutes)
	if duration <= 0 {
		return nil
	}

	var slots []Slot
	for cursor := template.OpeningTime; cursor < template.ClosingTime; cursor += duration {
		if template.BreakStart != nil && template.BreakEnd != nil &&
			cursor >= *template.BreakStart && cursor < *template.BreakEnd {
			continue
		}

		start := cursor.On(day)
		if _, ok := existing[start.Unix()]; ok {
			continue
		}

		slots = append(slots, Slot{
			ID:        uuid.New(),
			ClinicID:  template.ClinicID,
			DoctorID:  template.DoctorID,
			StartTime: start,
			EndTime:   (cursor + duration).On(day),
			SlotDate:  day,
			Status:    SlotAvailable,
			IsActive:  true,
		})
	}

	return slots
}
