package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/shopspring/decimal"

	"vitalwatch/internal/alerts"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/middleware"
	"vitalwatch/internal/models"
	"vitalwatch/internal/storage"
)

// ReadingChecker runs one reading through the vitals checks
type ReadingChecker interface {
	Check(ctx context.Context, r *models.Reading) error
}

// VitalsHandler accepts single readings over HTTP and checks them synchronously
type VitalsHandler struct {
	checker     ReadingChecker
	maxBodySize int64
}

// NewVitalsHandler creates a handler. A zero maxBodySize means 1MB.
func NewVitalsHandler(checker ReadingChecker, maxBodySize int64) *VitalsHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &VitalsHandler{checker: checker, maxBodySize: maxBodySize}
}

// Register adds the check routes to mux
func (h *VitalsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/patients/{id}/temperature", h.Temperature)
	mux.HandleFunc("POST /v1/patients/{id}/blood-pressure", h.BloodPressure)
}

// TemperatureRequest is the body of a temperature check.
// The value may be sent as a JSON string or number.
type TemperatureRequest struct {
	Temperature *decimal.Decimal `json:"temperature"`
}

// BloodPressureRequest is the body of a blood pressure check
type BloodPressureRequest struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// CheckResponse is returned when a check ran to completion
type CheckResponse struct {
	Success   bool        `json:"success"`
	PatientID string      `json:"patient_id"`
	Vital     models.Kind `json:"vital"`
}

// Temperature handles POST /v1/patients/{id}/temperature
func (h *VitalsHandler) Temperature(w http.ResponseWriter, r *http.Request) {
	var req TemperatureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Temperature == nil {
		h.writeError(w, http.StatusBadRequest, models.ErrMissingPayload.Error())
		return
	}

	h.check(w, r, &models.Reading{
		PatientID:   r.PathValue("id"),
		Kind:        models.KindTemperature,
		Temperature: req.Temperature,
	})
}

// BloodPressure handles POST /v1/patients/{id}/blood-pressure
func (h *VitalsHandler) BloodPressure(w http.ResponseWriter, r *http.Request) {
	var req BloodPressureRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.check(w, r, &models.Reading{
		PatientID:     r.PathValue("id"),
		Kind:          models.KindBloodPressure,
		BloodPressure: &models.BloodPressure{Systolic: req.Systolic, Diastolic: req.Diastolic},
	})
}

// decode applies the content-type and body-size checks and unmarshals into v.
// It writes the error response itself and reports whether to continue.
func (h *VitalsHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *VitalsHandler) check(w http.ResponseWriter, r *http.Request, reading *models.Reading) {
	reading.Normalize()
	if err := reading.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.checker.Check(r.Context(), reading); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log := logger.WithRequestID(middleware.RequestID(r.Context()))
			log.Error().
				Err(err).
				Str("patient_id", reading.PatientID).
				Str("vital", string(reading.Kind)).
				Msg("check failed")
		}
		h.writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(CheckResponse{
		Success:   true,
		PatientID: reading.PatientID,
		Vital:     reading.Kind,
	})
}

// statusFor maps checker errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrPatientNotFound):
		return http.StatusNotFound
	case errors.Is(err, alerts.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error response
func (h *VitalsHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
