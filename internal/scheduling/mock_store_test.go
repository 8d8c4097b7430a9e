package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduling/internal/cache"
	"github.com/medtrack/clinic-scheduling/internal/config"
)

// mockStore is a map-backed Store. InTx holds the store mutex for the whole
// callback, which mirrors the row-lock serialization the pg implementation
// gets from FOR UPDATE.
type mockStore struct {
	mu            sync.Mutex
	clinics       map[uuid.UUID]*Clinic
	templates     []*AvailabilityTemplate
	slots         map[uuid.UUID]*Slot
	appointments  map[uuid.UUID]*Appointment
	cancellations []CancellationRecord

	listAvailableCalls int
}

func newMockStore() *mockStore {
	return &mockStore{
		clinics:      make(map[uuid.UUID]*Clinic),
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (m *mockStore) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockStore) ListActiveClinics(_ context.Context) ([]Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Clinic
	for _, c := range m.clinics {
		if c.IsActive {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *mockStore) GetActiveTemplate(_ context.Context, clinicID uuid.UUID, day time.Weekday) (*AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.templates {
		if t.ClinicID == clinicID && t.DayOfWeek == day && t.IsActive {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ErrTemplateNotFound
}

func (m *mockStore) ListSlotStarts(_ context.Context, clinicID, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var starts []time.Time
	for _, s := range m.slots {
		if s.ClinicID == clinicID && s.DoctorID == doctorID &&
			!s.StartTime.Before(from) && s.StartTime.Before(to) {
			starts = append(starts, s.StartTime)
		}
	}
	return starts, nil
}

func (m *mockStore) InsertSlots(_ context.Context, slots []Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := 0
	for _, slot := range slots {
		if m.slotStartExists(slot.ClinicID, slot.DoctorID, slot.StartTime) {
			continue
		}
		copied := slot
		m.slots[slot.ID] = &copied
		created++
	}
	return created, nil
}

func (m *mockStore) slotStartExists(clinicID, doctorID uuid.UUID, start time.Time) bool {
	for _, s := range m.slots {
		if s.ClinicID == clinicID && s.DoctorID == doctorID && s.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (m *mockStore) ListAvailableSlots(_ context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listAvailableCalls++

	var result []Slot
	for _, s := range m.slots {
		if s.ClinicID == clinicID && s.DoctorID == doctorID &&
			s.SlotDate.Equal(date) && s.Status == SlotAvailable && s.IsActive {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (m *mockStore) GetScheduledAppointment(_ context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[appointmentID]
	if !ok || a.PatientID != patientID || a.Status != AppointmentScheduled {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockStore) MarkAppointmentConfirmed(_ context.Context, appointmentID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[appointmentID]
	if !ok || a.Status != AppointmentScheduled {
		return ErrAppointmentNotFound
	}
	a.IsConfirmed = true
	a.ConfirmedAt = &at
	return nil
}

func (m *mockStore) ListPatientAppointments(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppointmentDate.After(result[j].AppointmentDate) })
	return page(result, limit, offset), nil
}

func (m *mockStore) ListDoctorAppointments(_ context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.FromDate != nil && a.AppointmentDate.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && a.AppointmentDate.After(*filter.ToDate) {
			continue
		}
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppointmentStart.Before(result[j].AppointmentStart) })
	return page(result, limit, offset), nil
}

func page(appts []Appointment, limit, offset int) []Appointment {
	if offset >= len(appts) {
		return nil
	}
	appts = appts[offset:]
	if limit < len(appts) {
		appts = appts[:limit]
	}
	return appts
}

func (m *mockStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&mockTx{store: m})
}

type mockTx struct {
	store *mockStore
}

func (t *mockTx) LockAvailableSlot(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	s, ok := t.store.slots[slotID]
	if !ok || s.Status != SlotAvailable || !s.IsActive {
		return nil, ErrSlotUnavailable
	}
	copied := *s
	return &copied, nil
}

func (t *mockTx) CreateAppointment(_ context.Context, appt *Appointment) error {
	copied := *appt
	t.store.appointments[appt.ID] = &copied
	return nil
}

func (t *mockTx) UpdateSlotStatus(_ context.Context, slotID uuid.UUID, status SlotStatus) error {
	s, ok := t.store.slots[slotID]
	if !ok {
		return ErrSlotUnavailable
	}
	s.Status = status
	return nil
}

func (t *mockTx) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.store.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (t *mockTx) MarkAppointmentCancelled(_ context.Context, id uuid.UUID, cancelledBy uuid.UUID, reason string, at time.Time) error {
	a, ok := t.store.appointments[id]
	if !ok || a.Status != AppointmentScheduled {
		return ErrInvalidState
	}
	a.Status = AppointmentCancelled
	a.CancellationReason = &reason
	a.CancelledBy = &cancelledBy
	a.CancelledAt = &at
	return nil
}

func (t *mockTx) InsertCancellationRecord(_ context.Context, rec CancellationRecord) error {
	t.store.cancellations = append(t.store.cancellations, rec)
	return nil
}

// contendedStore simulates a slot row whose lock wait times out on every
// booking attempt.
type contendedStore struct {
	*mockStore
}

func (s *contendedStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	return fn(contendedTx{})
}

type contendedTx struct{}

func (contendedTx) LockAvailableSlot(context.Context, uuid.UUID) (*Slot, error) {
	return nil, ErrSlotContended
}

func (contendedTx) CreateAppointment(context.Context, *Appointment) error { return nil }

func (contendedTx) UpdateSlotStatus(context.Context, uuid.UUID, SlotStatus) error { return nil }

func (contendedTx) GetAppointmentByID(context.Context, uuid.UUID) (*Appointment, error) {
	return nil, ErrAppointmentNotFound
}

func (contendedTx) MarkAppointmentCancelled(context.Context, uuid.UUID, uuid.UUID, string, time.Time) error {
	return nil
}

func (contendedTx) InsertCancellationRecord(context.Context, CancellationRecord) error { return nil }

// mockDispatcher records enqueued events.
type mockDispatcher struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	eventType     string
	appointmentID uuid.UUID
	payload       map[string]any
}

func (d *mockDispatcher) Enqueue(_ context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, recordedEvent{eventType, appointmentID, payload})
	return nil
}

func (d *mockDispatcher) byType(eventType string) []recordedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []recordedEvent
	for _, e := range d.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() config.Config {
	return config.Config{
		AvailabilityCacheTTL: time.Hour,
		GenerationMarkerTTL:  24 * time.Hour,
		LockWaitTimeout:      2 * time.Second,
		GenerateDaysAhead:    30,
	}
}

func newTestService() (*Service, *mockStore, *cache.MemoryStore, *mockDispatcher) {
	store := newMockStore()
	cacheStore := cache.NewMemoryStore()
	dispatcher := &mockDispatcher{}
	svc := NewService(store, cacheStore, dispatcher, testConfig(), zerolog.Nop())
	return svc, store, cacheStore, dispatcher
}

// seedClinic registers a clinic with a doctor and returns both ids.
func (m *mockStore) seedClinic() (clinicID, doctorID uuid.UUID) {
	clinicID = uuid.New()
	doctorID = uuid.New()
	m.clinics[clinicID] = &Clinic{ID: clinicID, DoctorID: doctorID, Name: "Test Clinic", IsActive: true}
	return clinicID, doctorID
}

func (m *mockStore) seedTemplate(clinicID, doctorID uuid.UUID, day time.Weekday, opening, closing TimeOfDay, breakStart, breakEnd *TimeOfDay, durationMinutes int) {
	m.templates = append(m.templates, &AvailabilityTemplate{
		ID:                  uuid.New(),
		ClinicID:            clinicID,
		DoctorID:            doctorID,
		DayOfWeek:           day,
		OpeningTime:         opening,
		ClosingTime:         closing,
		BreakStart:          breakStart,
		BreakEnd:            breakEnd,
		SlotDurationMinutes: durationMinutes,
		IsActive:            true,
	})
}

func (m *mockStore) seedSlot(clinicID, doctorID uuid.UUID, start, end time.Time) uuid.UUID {
	id := uuid.New()
	m.slots[id] = &Slot{
		ID:        id,
		ClinicID:  clinicID,
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
		SlotDate:  dateOnly(start),
		Status:    SlotAvailable,
		IsActive:  true,
	}
	return id
}
