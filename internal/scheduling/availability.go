package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetAvailableSlots returns the bookable slots for a clinic/doctor/date,
// cache-aside with a 1 hour TTL. The cache is a latency optimization only:
// every backend failure degrades to a miss or a skipped write, never an
// error to the caller.
func (s *Service) GetAvailableSlots(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]AvailableSlot, error) {
	date = dateOnly(date)
	key := availabilityKey(clinicID, doctorID, date)

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache read failed, falling back to store")
	} else if found {
		var result []AvailableSlot
		if err := json.Unmarshal([]byte(cached), &result); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("corrupt availability cache entry, falling back to store")
		} else {
			return result, nil
		}
	}

	slots, err := s.store.ListAvailableSlots(ctx, clinicID, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}

	result := make([]AvailableSlot, 0, len(slots))
	for _, slot := range slots {
		result = append(result, AvailableSlot{
			SlotID:    slot.ID,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
		})
	}

	if data, err := json.Marshal(result); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache encode failed")
	} else if err := s.cache.Set(ctx, key, string(data), s.cfg.AvailabilityCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}

	return result, nil
}
