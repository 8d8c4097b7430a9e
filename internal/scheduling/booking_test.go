package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBook_Success(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()

	result, err := svc.Book(context.Background(), patientID, slotID, nil, nil)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if result.Status != "booked" {
		t.Errorf("status = %q, want booked", result.Status)
	}

	if got := store.slots[slotID].Status; got != SlotBooked {
		t.Errorf("slot status = %q, want booked", got)
	}
	appt := store.appointments[result.AppointmentID]
	if appt == nil {
		t.Fatal("appointment not persisted")
	}
	if appt.Status != AppointmentScheduled {
		t.Errorf("appointment status = %q, want scheduled", appt.Status)
	}
	if !appt.AppointmentStart.Equal(NewTimeOfDay(9, 0).On(monday)) {
		t.Errorf("appointment start = %s, not copied from slot", appt.AppointmentStart)
	}
	if appt.DoctorID != doctorID || appt.ClinicID != clinicID {
		t.Error("doctor/clinic not copied from slot")
	}

	if n := len(dispatcher.byType(EventBookingConfirmation)); n != 1 {
		t.Errorf("booking confirmation events = %d, want 1", n)
	}
	if n := len(dispatcher.byType(EventAppointmentBooked)); n != 1 {
		t.Errorf("appointment booked events = %d, want 1", n)
	}
}

func TestBook_RemovesSlotFromAvailability(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()
	store.seedTemplate(clinicID, doctorID, time.Monday, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), nil, nil, 30)

	if _, err := svc.GenerateSlots(context.Background(), clinicID, monday, 1); err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}

	before, _ := svc.GetAvailableSlots(context.Background(), clinicID, doctorID, monday)
	if len(before) != 6 {
		t.Fatalf("got %d slots before booking, want 6", len(before))
	}

	if _, err := svc.Book(context.Background(), uuid.New(), before[0].SlotID, nil, nil); err != nil {
		t.Fatalf("Book: %v", err)
	}

	// Booking invalidated the cached list, so this recomputes.
	after, _ := svc.GetAvailableSlots(context.Background(), clinicID, doctorID, monday)
	if len(after) != 5 {
		t.Errorf("got %d slots after booking, want 5", len(after))
	}
}

func TestBook_SlotUnavailable(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()

	// Missing slot.
	if _, err := svc.Book(context.Background(), uuid.New(), uuid.New(), nil, nil); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("missing slot: err = %v, want ErrSlotUnavailable", err)
	}

	// Already booked slot.
	bookedID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	store.slots[bookedID].Status = SlotBooked
	if _, err := svc.Book(context.Background(), uuid.New(), bookedID, nil, nil); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("booked slot: err = %v, want ErrSlotUnavailable", err)
	}

	// Deactivated slot.
	inactiveID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(10, 0).On(monday), NewTimeOfDay(10, 30).On(monday))
	store.slots[inactiveID].IsActive = false
	if _, err := svc.Book(context.Background(), uuid.New(), inactiveID, nil, nil); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("inactive slot: err = %v, want ErrSlotUnavailable", err)
	}
}

func TestBook_ConcurrentSingleWinner(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))

	const contenders = 16

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Book(context.Background(), uuid.New(), slotID, nil, nil)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if losses != contenders-1 {
		t.Errorf("losers = %d, want %d", losses, contenders-1)
	}
	if len(store.appointments) != 1 {
		t.Errorf("appointments persisted = %d, want 1", len(store.appointments))
	}
}

func TestBook_ContendedLockIsRetryableConflict(t *testing.T) {
	store := &contendedStore{mockStore: newMockStore()}
	svc := NewService(store, failingCache{}, &mockDispatcher{}, testConfig(), testLogger())

	_, err := svc.Book(context.Background(), uuid.New(), uuid.New(), nil, nil)
	if !errors.Is(err, ErrSlotContended) {
		t.Fatalf("err = %v, want ErrSlotContended", err)
	}
	if len(store.appointments) != 0 {
		t.Errorf("appointments persisted = %d, want 0", len(store.appointments))
	}
}

func TestBook_SucceedsWhenCacheAndDispatcherFail(t *testing.T) {
	store := newMockStore()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))

	svc := NewService(store, failingCache{}, failingDispatcher{}, testConfig(), testLogger())

	result, err := svc.Book(context.Background(), uuid.New(), slotID, nil, nil)
	if err != nil {
		t.Fatalf("Book with failing cache and dispatcher: %v", err)
	}
	if got := store.slots[slotID].Status; got != SlotBooked {
		t.Errorf("slot status = %q, want booked", got)
	}
	if store.appointments[result.AppointmentID] == nil {
		t.Error("appointment not persisted")
	}
}

func TestCancel_SucceedsWhenCacheAndDispatcherFail(t *testing.T) {
	store := newMockStore()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()

	svc := NewService(store, failingCache{}, failingDispatcher{}, testConfig(), testLogger())

	booked, err := svc.Book(context.Background(), patientID, slotID, nil, nil)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), booked.AppointmentID, patientID, "moving"); err != nil {
		t.Fatalf("Cancel with failing cache and dispatcher: %v", err)
	}
	if got := store.appointments[booked.AppointmentID].Status; got != AppointmentCancelled {
		t.Errorf("appointment status = %q, want cancelled", got)
	}
	if got := store.slots[slotID].Status; got != SlotAvailable {
		t.Errorf("slot status = %q, want available", got)
	}
}

func TestConfirm_Success(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()

	booked, err := svc.Book(context.Background(), patientID, slotID, nil, nil)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	result, err := svc.Confirm(context.Background(), booked.AppointmentID, patientID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if result.Status != "confirmed" {
		t.Errorf("status = %q, want confirmed", result.Status)
	}

	appt := store.appointments[booked.AppointmentID]
	if !appt.IsConfirmed || appt.ConfirmedAt == nil {
		t.Error("confirmation flag/timestamp not set")
	}
	if appt.Status != AppointmentScheduled {
		t.Errorf("confirming changed status to %q; it must stay scheduled", appt.Status)
	}
	if n := len(dispatcher.byType(EventPatientConfirmed)); n != 1 {
		t.Errorf("patient confirmed events = %d, want 1", n)
	}
}

func TestConfirm_Idempotent(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()

	booked, _ := svc.Book(context.Background(), patientID, slotID, nil, nil)
	if _, err := svc.Confirm(context.Background(), booked.AppointmentID, patientID); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	firstConfirmedAt := *store.appointments[booked.AppointmentID].ConfirmedAt

	result, err := svc.Confirm(context.Background(), booked.AppointmentID, patientID)
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if result.Message != "Appointment already confirmed." {
		t.Errorf("message = %q, want already-confirmed message", result.Message)
	}
	if got := *store.appointments[booked.AppointmentID].ConfirmedAt; !got.Equal(firstConfirmedAt) {
		t.Error("second confirm moved the confirmation timestamp")
	}
	if n := len(dispatcher.byType(EventPatientConfirmed)); n != 1 {
		t.Errorf("patient confirmed events = %d after repeat confirm, want 1", n)
	}
}

func TestConfirm_NotFound(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()
	booked, _ := svc.Book(context.Background(), patientID, slotID, nil, nil)

	// Unknown appointment.
	if _, err := svc.Confirm(context.Background(), uuid.New(), patientID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("unknown appointment: err = %v, want ErrAppointmentNotFound", err)
	}

	// Wrong patient.
	if _, err := svc.Confirm(context.Background(), booked.AppointmentID, uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("wrong patient: err = %v, want ErrAppointmentNotFound", err)
	}

	// Cancelled appointment is no longer confirmable.
	if _, err := svc.Cancel(context.Background(), booked.AppointmentID, patientID, "can't make it"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), booked.AppointmentID, patientID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("cancelled appointment: err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestCancel_ReleasesSlot(t *testing.T) {
	svc, store, _, dispatcher := newTestService()
	clinicID, doctorID := store.seedClinic()
	store.seedTemplate(clinicID, doctorID, time.Monday, NewTimeOfDay(9, 0), NewTimeOfDay(12, 0), nil, nil, 30)
	if _, err := svc.GenerateSlots(context.Background(), clinicID, monday, 1); err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}

	available, _ := svc.GetAvailableSlots(context.Background(), clinicID, doctorID, monday)
	patientID := uuid.New()
	booked, err := svc.Book(context.Background(), patientID, available[0].SlotID, nil, nil)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	result, err := svc.Cancel(context.Background(), booked.AppointmentID, patientID, "schedule conflict")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", result.Status)
	}

	appt := store.appointments[booked.AppointmentID]
	if appt.Status != AppointmentCancelled {
		t.Errorf("appointment status = %q, want cancelled", appt.Status)
	}
	if appt.CancelledBy == nil || *appt.CancelledBy != patientID {
		t.Error("cancelling actor not recorded")
	}
	if len(store.cancellations) != 1 {
		t.Errorf("cancellation records = %d, want 1", len(store.cancellations))
	}
	if n := len(dispatcher.byType(EventAppointmentCancelled)); n != 2 {
		t.Errorf("cancellation events = %d, want 2 (doctor + patient)", n)
	}

	// The slot is immediately rebookable and visible again.
	after, _ := svc.GetAvailableSlots(context.Background(), clinicID, doctorID, monday)
	if len(after) != 6 {
		t.Errorf("got %d available slots after cancel, want 6", len(after))
	}
	if _, err := svc.Book(context.Background(), uuid.New(), available[0].SlotID, nil, nil); err != nil {
		t.Errorf("rebooking released slot: %v", err)
	}
}

func TestCancel_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Cancel(context.Background(), uuid.New(), uuid.New(), "whatever")
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()
	slotID := store.seedSlot(clinicID, doctorID, NewTimeOfDay(9, 0).On(monday), NewTimeOfDay(9, 30).On(monday))
	patientID := uuid.New()

	booked, _ := svc.Book(context.Background(), patientID, slotID, nil, nil)
	if _, err := svc.Cancel(context.Background(), booked.AppointmentID, patientID, "first"); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}

	_, err := svc.Cancel(context.Background(), booked.AppointmentID, patientID, "second")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel: err = %v, want ErrInvalidState", err)
	}
	if len(store.cancellations) != 1 {
		t.Errorf("cancellation records = %d, want 1", len(store.cancellations))
	}
}

func TestListPatientAppointments_ClampsPaging(t *testing.T) {
	svc, store, _, _ := newTestService()
	clinicID, doctorID := store.seedClinic()
	patientID := uuid.New()

	for i := 0; i < 30; i++ {
		slotID := store.seedSlot(clinicID, doctorID,
			NewTimeOfDay(9, 0).On(monday.AddDate(0, 0, i)),
			NewTimeOfDay(9, 30).On(monday.AddDate(0, 0, i)))
		if _, err := svc.Book(context.Background(), patientID, slotID, nil, nil); err != nil {
			t.Fatalf("Book %d: %v", i, err)
		}
	}

	appts, err := svc.ListPatientAppointments(context.Background(), patientID, 0, -5)
	if err != nil {
		t.Fatalf("ListPatientAppointments: %v", err)
	}
	if len(appts) != 20 {
		t.Errorf("default page size = %d, want 20", len(appts))
	}
}
