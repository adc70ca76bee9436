package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BloodPressure is a systolic/diastolic pair in mmHg
type BloodPressure struct {
	Systolic  int `json:"systolic" yaml:"systolic"`
	Diastolic int `json:"diastolic" yaml:"diastolic"`
}

// Equal reports whether both components match exactly
func (b BloodPressure) Equal(other BloodPressure) bool {
	return b.Systolic == other.Systolic && b.Diastolic == other.Diastolic
}

func (b BloodPressure) String() string {
	return fmt.Sprintf("%d/%d", b.Systolic, b.Diastolic)
}

// HealthInfo holds a patient's baseline vital signs
type HealthInfo struct {
	// Normal body temperature in degrees Celsius
	NormalTemperature decimal.Decimal `json:"normal_temperature"`

	// Normal blood pressure
	BloodPressure BloodPressure `json:"blood_pressure"`
}

// PatientInfo is a patient record as returned by a patient store
type PatientInfo struct {
	ID         string     `json:"id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	BirthDate  time.Time  `json:"birth_date"`
	HealthInfo HealthInfo `json:"health_info"`
}

// FullName returns "First Last"
func (p *PatientInfo) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Validation errors
var (
	ErrEmptyID             = errors.New("patient ID cannot be empty")
	ErrEmptyName           = errors.New("patient first and last name are required")
	ErrZeroBirthDate       = errors.New("birth date cannot be zero")
	ErrFutureBirthDate     = errors.New("birth date cannot be in the future")
	ErrInvalidBirthDate    = errors.New("invalid birth date format")
	ErrInvalidTemperature  = errors.New("temperature must be a decimal between 20 and 50 °C with at most 6 fractional digits")
	ErrInvalidPressure     = errors.New("blood pressure components must be positive")
	ErrInvalidPressureText = errors.New("blood pressure must look like 120/80")
)

// Accepted temperature readings and baselines, in °C
var (
	MinTemperature = decimal.NewFromInt(20)
	MaxTemperature = decimal.NewFromInt(50)
)

// maxTemperatureScale bounds fractional digits. The exponent must be checked
// before any comparison, which rescales both operands.
const maxTemperatureScale = 6

// ValidateTemperature checks t is a plausible body temperature
func ValidateTemperature(t decimal.Decimal) error {
	if exp := t.Exponent(); exp < -maxTemperatureScale || exp > 1 {
		return ErrInvalidTemperature
	}
	if t.LessThan(MinTemperature) || t.GreaterThan(MaxTemperature) {
		return ErrInvalidTemperature
	}
	return nil
}

// Validate checks a blood pressure pair
func (b BloodPressure) Validate() error {
	if b.Systolic <= 0 || b.Diastolic <= 0 {
		return ErrInvalidPressure
	}
	return nil
}

// Validate checks that a patient record is complete enough to be checked against
func (p *PatientInfo) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}

	if p.FirstName == "" || p.LastName == "" {
		return ErrEmptyName
	}

	if p.BirthDate.IsZero() {
		return ErrZeroBirthDate
	}

	if p.BirthDate.After(time.Now()) {
		return ErrFutureBirthDate
	}

	if err := ValidateTemperature(p.HealthInfo.NormalTemperature); err != nil {
		return err
	}

	return p.HealthInfo.BloodPressure.Validate()
}
