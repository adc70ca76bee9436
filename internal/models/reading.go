package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names the vital sign carried by a reading
type Kind string

const (
	KindTemperature   Kind = "temperature"
	KindBloodPressure Kind = "blood_pressure"
)

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindTemperature, KindBloodPressure:
		return true
	default:
		return false
	}
}

// Reading is a single observation for one patient
type Reading struct {
	PatientID string `json:"patient_id"`
	Kind      Kind   `json:"kind"`

	// Set when Kind is temperature
	Temperature *decimal.Decimal `json:"temperature,omitempty"`

	// Set when Kind is blood_pressure
	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`

	ObservedAt time.Time `json:"observed_at,omitempty"`
}

var (
	ErrInvalidKind    = errors.New("reading kind must be temperature or blood_pressure")
	ErrMissingPayload = errors.New("reading has no value for its kind")
)

// NewTemperatureReading builds a temperature reading observed now
func NewTemperatureReading(patientID string, t decimal.Decimal) *Reading {
	return &Reading{
		PatientID:   patientID,
		Kind:        KindTemperature,
		Temperature: &t,
		ObservedAt:  time.Now().UTC(),
	}
}

// NewBloodPressureReading builds a blood pressure reading observed now
func NewBloodPressureReading(patientID string, bp BloodPressure) *Reading {
	return &Reading{
		PatientID:     patientID,
		Kind:          KindBloodPressure,
		BloodPressure: &bp,
		ObservedAt:    time.Now().UTC(),
	}
}

// Validate checks the reading carries a usable value for its kind
func (r *Reading) Validate() error {
	if r.PatientID == "" {
		return ErrEmptyID
	}

	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}

	switch r.Kind {
	case KindTemperature:
		if r.Temperature == nil {
			return ErrMissingPayload
		}
		if err := ValidateTemperature(*r.Temperature); err != nil {
			return err
		}
	case KindBloodPressure:
		if r.BloodPressure == nil {
			return ErrMissingPayload
		}
		return r.BloodPressure.Validate()
	}

	return nil
}
