package api

import (
	"time"

	"github.com/google/uuid"
)

type GenerateSlotsRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	DaysAhead int    `json:"days_ahead" validate:"gte=0,lte=365"`
}

type GenerateSlotsResponse struct {
	Status       string    `json:"status"`
	ClinicID     uuid.UUID `json:"clinic_id"`
	SlotsCreated int       `json:"slots_created"`
}

type AvailableSlotsResponse struct {
	ClinicID       uuid.UUID           `json:"clinic_id"`
	DoctorID       uuid.UUID           `json:"doctor_id"`
	Date           string              `json:"date"`
	Slots          []AvailableSlotItem `json:"slots"`
	TotalAvailable int                 `json:"total_available"`
}

type AvailableSlotItem struct {
	SlotID    uuid.UUID `json:"slot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type BookAppointmentRequest struct {
	PatientID       string  `json:"patient_id" validate:"required,uuid"`
	SlotID          string  `json:"slot_id" validate:"required,uuid"`
	AppointmentType *string `json:"appointment_type" validate:"omitempty,max=100"`
	ReasonForVisit  *string `json:"reason_for_visit" validate:"omitempty,max=2000"`
}

type BookAppointmentResponse struct {
	AppointmentID    uuid.UUID `json:"appointment_id"`
	Status           string    `json:"status"`
	AppointmentDate  string    `json:"appointment_date"`
	AppointmentStart time.Time `json:"appointment_start"`
	Message          string    `json:"message"`
}

type ConfirmAppointmentRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type ConfirmAppointmentResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
}

type CancelAppointmentRequest struct {
	CancelledBy        string `json:"cancelled_by" validate:"required,uuid"`
	CancellationReason string `json:"cancellation_reason" validate:"required,max=2000"`
}

type CancelAppointmentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AppointmentItem struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	ClinicID         uuid.UUID  `json:"clinic_id"`
	SlotID           uuid.UUID  `json:"slot_id"`
	AppointmentDate  string     `json:"appointment_date"`
	AppointmentStart time.Time  `json:"appointment_start"`
	AppointmentEnd   time.Time  `json:"appointment_end"`
	Status           string     `json:"status"`
	IsConfirmed      bool       `json:"is_confirmed"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

type AppointmentListResponse struct {
	Items []AppointmentItem `json:"items"`
	Total int               `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
