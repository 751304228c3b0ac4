package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/billing"
	redisclient "github.com/medagenda/clinic-scheduling/internal/redis"
	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

// SchedulingService is the surface the handlers need; *scheduling.Service
// implements it.
type SchedulingService interface {
	Slots(ctx context.Context, clinicianID uuid.UUID, date time.Time) ([]scheduling.SlotCandidate, error)
	NextAvailableDay(ctx context.Context, clinicianID uuid.UUID, horizonDays int) (*scheduling.DayAvailability, error)
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.BookingResult, error)
	Confirm(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.AppointmentDetail, error)
}

func listSlotsHandler(svc SchedulingService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicianID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		if dateStr == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
			return
		}
		date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Slots(r.Context(), clinicianID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DayAvailabilityResponse{
			Date:  date.Format("2006-01-02"),
			Slots: toSlotResponses(slots),
		})
	}
}

func nextAvailableHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicianID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "id must be a valid UUID")
			return
		}

		horizon := 0
		if h := r.URL.Query().Get("horizon"); h != "" {
			n, err := strconv.Atoi(h)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_horizon", "horizon must be a positive integer of days")
				return
			}
			horizon = n
		}

		day, err := svc.NextAvailableDay(r.Context(), clinicianID, horizon)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		// Fully booked within the horizon is a legitimate outcome, not a fault.
		if day == nil {
			writeJSON(w, http.StatusOK, map[string]any{"available": false})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"available": true,
			"day": DayAvailabilityResponse{
				Date:  day.Date.Format("2006-01-02"),
				Slots: toSlotResponses(day.Slots),
			},
		})
	}
}

func bookAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clinicianID, err := uuid.Parse(req.ClinicianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		startAt, err := time.Parse(time.RFC3339, req.StartAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_at", "start_at must be RFC3339")
			return
		}

		actor := scheduling.Actor(req.Actor)
		if actor == "" {
			actor = scheduling.ActorIntake
		}

		result, err := svc.Book(r.Context(), scheduling.BookRequest{
			ClinicianID:     clinicianID,
			PatientID:       patientID,
			StartAt:         startAt,
			DurationMinutes: req.DurationMinutes,
			ServiceType:     scheduling.ServiceType(req.ServiceType),
			Actor:           actor,
			Method:          req.Method,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := BookingResponse{
			Appointment: toAppointmentResponse(result.Appointment),
			Payment:     toPaymentResponse(result.Payment),
		}
		if result.Instrument != nil {
			resp.Instrument = &InstrumentResponse{
				Ref:       result.Instrument.Ref,
				URL:       result.Instrument.URL,
				ExpiresAt: result.Instrument.ExpiresAt,
			}
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func confirmAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Confirm(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := BookingResponse{
			Appointment: toAppointmentResponse(&detail.Appointment),
			Payment:     toPaymentResponse(detail.Payment),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrClinicianNotFound):
		writeError(w, http.StatusNotFound, "clinician_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, scheduling.ErrBookingConflict):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.Is(err, scheduling.ErrClinicianBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "clinician_busy", "clinician is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrAppointmentExpired):
		writeError(w, http.StatusConflict, "appointment_expired", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, billing.ErrUnpricedService):
		writeError(w, http.StatusUnprocessableEntity, "unpriced_service", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
