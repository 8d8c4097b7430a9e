package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE raised when a FOR UPDATE wait exceeds lock_timeout.
const pgLockNotAvailable = "55P03"

type PgStore struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

// NewPgStore wires the store to a pgx pool. lockWait bounds how long a
// booking transaction waits for a contended slot row before giving up with
// ErrSlotContended.
func NewPgStore(pool *pgxpool.Pool, lockWait time.Duration) *PgStore {
	return &PgStore{pool: pool, lockWait: lockWait}
}

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	var city *string

	err := row.Scan(
		&c.ID,
		&c.DoctorID,
		&c.Name,
		&city,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	c.City = city
	return &c, nil
}

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var day, opening, closing int
	var breakStart, breakEnd *int

	err := row.Scan(
		&t.ID,
		&t.ClinicID,
		&t.DoctorID,
		&day,
		&opening,
		&closing,
		&breakStart,
		&breakEnd,
		&t.SlotDurationMinutes,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.DayOfWeek = time.Weekday(day)
	t.OpeningTime = TimeOfDay(opening)
	t.ClosingTime = TimeOfDay(closing)
	if breakStart != nil {
		v := TimeOfDay(*breakStart)
		t.BreakStart = &v
	}
	if breakEnd != nil {
		v := TimeOfDay(*breakEnd)
		t.BreakEnd = &v
	}
	return &t, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ClinicID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.SlotDate,
		&s.Status,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, clinic_id, slot_id,
	appointment_date, appointment_start, appointment_end,
	appointment_type, reason_for_visit,
	status, is_confirmed, confirmed_at,
	cancellation_reason, cancelled_by, cancelled_at,
	doctor_notes, completed_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.SlotID,
		&a.AppointmentDate,
		&a.AppointmentStart,
		&a.AppointmentEnd,
		&a.AppointmentType,
		&a.ReasonForVisit,
		&a.Status,
		&a.IsConfirmed,
		&a.ConfirmedAt,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.DoctorNotes,
		&a.CompletedAt,
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

// Interface methods

func (s *PgStore) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doctor_id, name, city, is_active, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (s *PgStore) ListActiveClinics(ctx context.Context) ([]Clinic, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doctor_id, name, city, is_active, created_at, updated_at
		FROM clinics
		WHERE is_active = true
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

func (s *PgStore) GetActiveTemplate(ctx context.Context, clinicID uuid.UUID, day time.Weekday) (*AvailabilityTemplate, error) {
	// First match wins if duplicate active templates exist for the pair.
	row := s.pool.QueryRow(ctx, `
		SELECT id, clinic_id, doctor_id, day_of_week,
		       opening_minutes, closing_minutes, break_start_minutes, break_end_minutes,
		       slot_duration_minutes, is_active, created_at, updated_at
		FROM availability_templates
		WHERE clinic_id = $1
		  AND day_of_week = $2
		  AND is_active = true
		ORDER BY created_at
		LIMIT 1
	`, clinicID, int(day))
	return scanTemplate(row)
}

func (s *PgStore) ListSlotStarts(ctx context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slot_start
		FROM appointment_slots
		WHERE clinic_id = $1
		  AND doctor_id = $2
		  AND slot_start >= $3
		  AND slot_start < $4
	`, clinicID, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}

	return starts, rows.Err()
}

func (s *PgStore) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, slot := range slots {
		batch.Queue(`
			INSERT INTO appointment_slots
				(id, clinic_id, doctor_id, slot_start, slot_end, slot_date, slot_status, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			ON CONFLICT (clinic_id, doctor_id, slot_start) DO NOTHING
		`, slot.ID, slot.ClinicID, slot.DoctorID, slot.StartTime, slot.EndTime, slot.SlotDate, slot.Status, slot.IsActive)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range slots {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("insert slot batch: %w", err)
		}
		created += int(tag.RowsAffected())
	}

	return created, nil
}

func (s *PgStore) ListAvailableSlots(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, clinic_id, doctor_id, slot_start, slot_end, slot_date, slot_status, is_active, created_at, updated_at
		FROM appointment_slots
		WHERE clinic_id = $1
		  AND doctor_id = $2
		  AND slot_date = $3
		  AND slot_status = 'available'
		  AND is_active = true
		ORDER BY slot_start ASC
	`, clinicID, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}

	return result, rows.Err()
}

func (s *PgStore) GetScheduledAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		  AND patient_id = $2
		  AND status = 'scheduled'
	`, appointmentID, patientID)
	return scanAppointment(row)
}

func (s *PgStore) MarkAppointmentConfirmed(ctx context.Context, appointmentID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET is_confirmed = true,
		    confirmed_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
	`, appointmentID, at)
	if err != nil {
		return fmt.Errorf("confirm appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PgStore) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1`
	args := []any{doctorID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND appointment_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND appointment_date <= $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY appointment_date ASC, appointment_start ASC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	// Bound every row lock wait inside this transaction; a contended slot
	// surfaces as ErrSlotContended instead of blocking indefinitely.
	if _, err := pgTx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockWait.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}

	if err := fn(&pgStoreTx{tx: pgTx}); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgStoreTx struct {
	tx pgx.Tx
}

func (t *pgStoreTx) LockAvailableSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, clinic_id, doctor_id, slot_start, slot_end, slot_date, slot_status, is_active, created_at, updated_at
		FROM appointment_slots
		WHERE id = $1
		  AND slot_status = 'available'
		  AND is_active = true
		FOR UPDATE
	`, slotID)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotUnavailable
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	return slot, nil
}

func (t *pgStoreTx) CreateAppointment(ctx context.Context, appt *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, clinic_id, slot_id,
			 appointment_date, appointment_start, appointment_end,
			 appointment_type, reason_for_visit,
			 status, is_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.ClinicID, appt.SlotID,
		appt.AppointmentDate, appt.AppointmentStart, appt.AppointmentEnd,
		appt.AppointmentType, appt.ReasonForVisit,
		appt.Status, appt.IsConfirmed)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (t *pgStoreTx) UpdateSlotStatus(ctx context.Context, slotID uuid.UUID, status SlotStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointment_slots
		SET slot_status = $2,
		    updated_at = now()
		WHERE id = $1
	`, slotID, status)
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotUnavailable
	}
	return nil
}

func (t *pgStoreTx) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (t *pgStoreTx) MarkAppointmentCancelled(ctx context.Context, id uuid.UUID, cancelledBy uuid.UUID, reason string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    cancelled_by = $3,
		    cancelled_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
	`, id, reason, cancelledBy, at)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (t *pgStoreTx) InsertCancellationRecord(ctx context.Context, rec CancellationRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_cancellations (id, appointment_id, cancelled_by, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, rec.ID, rec.AppointmentID, rec.CancelledBy, rec.Reason)
	if err != nil {
		return fmt.Errorf("insert cancellation record: %w", err)
	}
	return nil
}
