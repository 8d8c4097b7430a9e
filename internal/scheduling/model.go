package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// TimeOfDay is a wall-clock time stored as minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

func (t TimeOfDay) Minutes() int { return int(t) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the time of day onto a calendar date in the date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinic struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Name      string
	City      *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityTemplate is the recurring weekly definition of a clinic-doctor's
// working hours. Maintained by clinic administration; the scheduling core only
// reads it.
type AvailabilityTemplate struct {
	ID                  uuid.UUID
	ClinicID            uuid.UUID
	DoctorID            uuid.UUID
	DayOfWeek           time.Weekday
	OpeningTime         TimeOfDay
	ClosingTime         TimeOfDay
	BreakStart          *TimeOfDay
	BreakEnd            *TimeOfDay
	SlotDurationMinutes int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Slot is one bookable window for one doctor at one clinic. Slots are never
// deleted; is_active=false is the only removal path.
type Slot struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	SlotDate  time.Time
	Status    SlotStatus
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	SlotID    uuid.UUID

	AppointmentDate  time.Time
	AppointmentStart time.Time
	AppointmentEnd   time.Time

	AppointmentType *string
	ReasonForVisit  *string

	Status      AppointmentStatus
	IsConfirmed bool
	ConfirmedAt *time.Time

	CancellationReason *string
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time

	// Reserved for a future visit-completion flow; no operation currently
	// transitions an appointment into a completed state.
	DoctorNotes *string
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CancellationRecord is the append-only audit row written once per
// cancellation.
type CancellationRecord struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	CancelledBy   uuid.UUID
	Reason        *string
	CreatedAt     time.Time
}

// AvailableSlot is the cached shape of one bookable slot.
type AvailableSlot struct {
	SlotID    uuid.UUID `json:"slot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
