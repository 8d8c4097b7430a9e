package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrDoctorNotFound      = errors.New("no doctor associated with clinic")
	ErrTemplateNotFound    = errors.New("availability template not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable covers a missing, already booked or deactivated
	// slot. The causes are deliberately indistinguishable to the caller.
	ErrSlotUnavailable = errors.New("slot not available or already booked")

	// ErrSlotContended means the row lock wait exceeded the configured
	// timeout. Retryable.
	ErrSlotContended = errors.New("slot is currently being booked, please retry")

	ErrInvalidState = errors.New("only scheduled appointments can be cancelled")
)

// DoctorAppointmentFilter narrows a doctor's appointment listing.
type DoctorAppointmentFilter struct {
	Status   *AppointmentStatus
	FromDate *time.Time
	ToDate   *time.Time
}

// Store contains all DB interactions needed by the service.
type Store interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	ListActiveClinics(ctx context.Context) ([]Clinic, error)

	// GetActiveTemplate returns the first active template for the
	// clinic/weekday pair, or ErrTemplateNotFound.
	GetActiveTemplate(ctx context.Context, clinicID uuid.UUID, day time.Weekday) (*AvailabilityTemplate, error)

	// ListSlotStarts returns the start timestamps of every slot already
	// persisted for the pair inside [from, to).
	ListSlotStarts(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// InsertSlots persists the batch and reports how many rows were
	// actually created. Starts that collide with an existing
	// (clinic, doctor, slot_start) row are skipped, not errors.
	InsertSlots(ctx context.Context, slots []Slot) (int, error)

	ListAvailableSlots(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]Slot, error)

	// GetScheduledAppointment loads an appointment only if it belongs to
	// the patient and is still scheduled.
	GetScheduledAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error)

	MarkAppointmentConfirmed(ctx context.Context, appointmentID uuid.UUID, at time.Time) error

	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]Appointment, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface used by booking and cancellation. Row locks
// taken through it are held until the owning transaction commits or rolls
// back, never across cache or notification calls.
type Tx interface {
	// LockAvailableSlot acquires an exclusive lock on the slot row matching
	// id + status=available + is_active. Zero rows yield ErrSlotUnavailable;
	// a lock wait timeout yields ErrSlotContended.
	LockAvailableSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, status SlotStatus) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// MarkAppointmentCancelled flips a scheduled appointment to cancelled.
	// Returns ErrInvalidState when the row is no longer scheduled.
	MarkAppointmentCancelled(ctx context.Context, id uuid.UUID, cancelledBy uuid.UUID, reason string, at time.Time) error

	InsertCancellationRecord(ctx context.Context, rec CancellationRecord) error
}
