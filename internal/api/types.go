package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medagenda/clinic-scheduling/internal/scheduling"
)

type BookAppointmentRequest struct {
	ClinicianID     string `json:"clinician_id"`
	PatientID       string `json:"patient_id"`
	StartAt         string `json:"start_at"` // RFC3339
	DurationMinutes int    `json:"duration_minutes"`
	ServiceType     string `json:"service_type"` // consultation | procedure
	Actor           string `json:"actor"`        // intake | staff
	Method          string `json:"method,omitempty"`
}

type SlotResponse struct {
	ClinicianID uuid.UUID `json:"clinician_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type DayAvailabilityResponse struct {
	Date  string         `json:"date"` // YYYY-MM-DD, clinic-local
	Slots []SlotResponse `json:"slots"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	ClinicianID     *uuid.UUID `json:"clinician_id,omitempty"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	Status          string     `json:"status"`
	ServiceType     string     `json:"service_type"`
	PaymentDeadline *time.Time `json:"payment_deadline,omitempty"`
}

type PaymentResponse struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method,omitempty"`
	ExternalRef *string   `json:"external_ref,omitempty"`
}

type InstrumentResponse struct {
	Ref       string    `json:"ref,omitempty"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type BookingResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Payment     *PaymentResponse    `json:"payment,omitempty"`
	Instrument  *InstrumentResponse `json:"instrument,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		ClinicianID:     a.ClinicianID,
		StartAt:         a.StartAt,
		EndAt:           a.EndAt,
		Status:          string(a.Status),
		ServiceType:     string(a.ServiceType),
		PaymentDeadline: a.PaymentDeadline,
	}
}

func toPaymentResponse(p *scheduling.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:          p.ID,
		Status:      string(p.Status),
		AmountCents: p.AmountCents,
		Method:      p.Method,
		ExternalRef: p.ExternalRef,
	}
}

func toSlotResponses(slots []scheduling.SlotCandidate) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ClinicianID: s.ClinicianID,
			Start:       s.Start,
			End:         s.End,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
