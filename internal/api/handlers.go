package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/medtrack/clinic-scheduling/internal/scheduling"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

func generateSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "id must be a valid UUID")
			return
		}

		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		startDate, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_date", "start_date must be YYYY-MM-DD")
			return
		}

		result, err := svc.GenerateSlots(r.Context(), clinicID, startDate, req.DaysAhead)
		if err != nil {
			handleGenerateError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateSlotsResponse{
			Status:       result.Status,
			ClinicID:     result.ClinicID,
			SlotsCreated: result.SlotsCreated,
		})
	}
}

func availableSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(r.URL.Query().Get("clinic_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), clinicID, doctorID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		items := make([]AvailableSlotItem, 0, len(slots))
		for _, s := range slots {
			items = append(items, AvailableSlotItem{SlotID: s.SlotID, StartTime: s.StartTime, EndTime: s.EndTime})
		}

		writeJSON(w, http.StatusOK, AvailableSlotsResponse{
			ClinicID:       clinicID,
			DoctorID:       doctorID,
			Date:           date.Format(dateLayout),
			Slots:          items,
			TotalAvailable: len(items),
		})
	}
}

func bookAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)
		slotID, _ := uuid.Parse(req.SlotID)

		result, err := svc.Book(r.Context(), patientID, slotID, req.AppointmentType, req.ReasonForVisit)
		if err != nil {
			handleBookError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			AppointmentID:    result.AppointmentID,
			Status:           result.Status,
			AppointmentDate:  result.AppointmentDate.Format(dateLayout),
			AppointmentStart: result.AppointmentStart,
			Message:          result.Message,
		})
	}
}

func confirmAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		patientID, _ := uuid.Parse(req.PatientID)

		result, err := svc.Confirm(r.Context(), appointmentID, patientID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConfirmAppointmentResponse{
			AppointmentID: result.AppointmentID,
			Status:        result.Status,
			Message:       result.Message,
		})
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		actorID, _ := uuid.Parse(req.CancelledBy)

		result, err := svc.Cancel(r.Context(), appointmentID, actorID, req.CancellationReason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelAppointmentResponse{
			Status:  result.Status,
			Message: result.Message,
		})
	}
}

func patientAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}
		limit, offset := parsePage(r)

		appts, err := svc.ListPatientAppointments(r.Context(), patientID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func doctorAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}
		limit, offset := parsePage(r)

		var filter scheduling.DoctorAppointmentFilter
		if v := r.URL.Query().Get("status"); v != "" {
			status := scheduling.AppointmentStatus(v)
			filter.Status = &status
		}
		if v := r.URL.Query().Get("from_date"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from_date", "from_date must be YYYY-MM-DD")
				return
			}
			filter.FromDate = &t
		}
		if v := r.URL.Query().Get("to_date"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to_date", "to_date must be YYYY-MM-DD")
				return
			}
			filter.ToDate = &t
		}

		appts, err := svc.ListDoctorAppointments(r.Context(), doctorID, filter, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func parsePage(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func toAppointmentList(appts []scheduling.Appointment) AppointmentListResponse {
	items := make([]AppointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, AppointmentItem{
			ID:               a.ID,
			PatientID:        a.PatientID,
			DoctorID:         a.DoctorID,
			ClinicID:         a.ClinicID,
			SlotID:           a.SlotID,
			AppointmentDate:  a.AppointmentDate.Format(dateLayout),
			AppointmentStart: a.AppointmentStart,
			AppointmentEnd:   a.AppointmentEnd,
			Status:           string(a.Status),
			IsConfirmed:      a.IsConfirmed,
			ConfirmedAt:      a.ConfirmedAt,
			CancelledAt:      a.CancelledAt,
		})
	}
	return AppointmentListResponse{Items: items, Total: len(items)}
}

func handleGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookError(w http.ResponseWriter, err error) {
	switch {
	// One generic conflict body on purpose: the caller cannot tell a
	// never-existing slot from one booked a moment earlier.
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot not available or already booked")
	case errors.Is(err, scheduling.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
