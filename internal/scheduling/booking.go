package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Book reserves a slot for a patient. The slot row lock, the appointment
// insert and the slot status flip share one transaction; cache invalidation
// and notification enqueue happen strictly after commit, so no lock is ever
// held across a network call, and their failure cannot undo the booking.
func (s *Service) Book(ctx context.Context, patientID, slotID uuid.UUID, appointmentType, reasonForVisit *string) (*BookingResult, error) {
	var (
		appt *Appointment
		slot *Slot
	)

	err := s.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockAvailableSlot(ctx, slotID)
		if err != nil {
			if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrSlotContended) {
				return err
			}
			return fmt.Errorf("lock slot: %w", err)
		}
		slot = locked

		appt = &Appointment{
			ID:               uuid.New(),
			PatientID:        patientID,
			DoctorID:         slot.DoctorID,
			ClinicID:         slot.ClinicID,
			SlotID:           slot.ID,
			AppointmentDate:  slot.SlotDate,
			AppointmentStart: slot.StartTime,
			AppointmentEnd:   slot.EndTime,
			AppointmentType:  appointmentType,
			ReasonForVisit:   reasonForVisit,
			Status:           AppointmentScheduled,
		}

		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return err
		}
		return tx.UpdateSlotStatus(ctx, slot.ID, SlotBooked)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, slot.ClinicID, slot.DoctorID, slot.SlotDate)
	s.enqueueEvent(ctx, EventBookingConfirmation, appt.ID, map[string]any{
		"patient_id": patientID.String(),
		"slot_id":    slotID.String(),
	})
	s.enqueueEvent(ctx, EventAppointmentBooked, appt.ID, map[string]any{
		"doctor_id": slot.DoctorID.String(),
		"slot_id":   slotID.String(),
	})

	return &BookingResult{
		AppointmentID:    appt.ID,
		Status:           "booked",
		AppointmentDate:  appt.AppointmentDate,
		AppointmentStart: appt.AppointmentStart,
		Message:          "Appointment booked successfully. Please confirm your attendance.",
	}, nil
}

// Confirm records that the patient will attend. Idempotent: confirming an
// already confirmed appointment succeeds without a second mutation or
// notification.
func (s *Service) Confirm(ctx context.Context, appointmentID, patientID uuid.UUID) (*ConfirmResult, error) {
	appt, err := s.store.GetScheduledAppointment(ctx, appointmentID, patientID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.IsConfirmed {
		return &ConfirmResult{
			AppointmentID: appt.ID,
			Status:        "confirmed",
			Message:       "Appointment already confirmed.",
		}, nil
	}

	if err := s.store.MarkAppointmentConfirmed(ctx, appt.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.enqueueEvent(ctx, EventPatientConfirmed, appt.ID, map[string]any{
		"doctor_id":  appt.DoctorID.String(),
		"patient_id": patientID.String(),
	})

	return &ConfirmResult{
		AppointmentID: appt.ID,
		Status:        "confirmed",
		Message:       "Appointment confirmed. The doctor will be notified.",
	}, nil
}

// Cancel moves a scheduled appointment to cancelled, releases its slot for
// rebooking and appends the audit record, all in one transaction.
func (s *Service) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID, reason string) (*CancelResult, error) {
	var appt *Appointment

	err := s.store.InTx(ctx, func(tx Tx) error {
		loaded, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("load appointment: %w", err)
		}
		if loaded.Status != AppointmentScheduled {
			return ErrInvalidState
		}
		appt = loaded

		now := time.Now().UTC()
		if err := tx.MarkAppointmentCancelled(ctx, appt.ID, actorID, reason, now); err != nil {
			return err
		}
		if err := tx.UpdateSlotStatus(ctx, appt.SlotID, SlotAvailable); err != nil {
			return err
		}
		return tx.InsertCancellationRecord(ctx, CancellationRecord{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			CancelledBy:   actorID,
			Reason:        &reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx, appt.ClinicID, appt.DoctorID, appt.AppointmentDate)
	s.enqueueEvent(ctx, EventAppointmentCancelled, appt.ID, map[string]any{
		"doctor_id": appt.DoctorID.String(),
		"reason":    reason,
	})
	s.enqueueEvent(ctx, EventAppointmentCancelled, appt.ID, map[string]any{
		"patient_id": appt.PatientID.String(),
		"reason":     reason,
	})

	return &CancelResult{
		Status:  "cancelled",
		Message: "Appointment cancelled and slot released.",
	}, nil
}
