package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SupportedDateFormats lists birth date formats we attempt to parse
var SupportedDateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"02.01.2006",
	"2006/01/02",
}

// Normalize trims identity fields of a patient record
func (p *PatientInfo) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
}

// Normalize trims the patient id and lower-cases the kind.
// Hyphenated kinds ("blood-pressure") are accepted.
func (r *Reading) Normalize() {
	r.PatientID = strings.TrimSpace(r.PatientID)

	kind := strings.ToLower(strings.TrimSpace(string(r.Kind)))
	r.Kind = Kind(strings.ReplaceAll(kind, "-", "_"))

	if !r.ObservedAt.IsZero() {
		r.ObservedAt = r.ObservedAt.UTC()
	}
}

// ParseBirthDate attempts to parse a date string into a UTC midnight time.Time
func ParseBirthDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, format := range SupportedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, ErrInvalidBirthDate
}

// ParseTemperature parses a decimal temperature such as "36.6"
func ParseTemperature(s string) (decimal.Decimal, error) {
	t, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidTemperature
	}
	if err := ValidateTemperature(t); err != nil {
		return decimal.Decimal{}, err
	}
	return t, nil
}

// ParseBloodPressure parses "systolic/diastolic", e.g. "120/80"
func ParseBloodPressure(s string) (BloodPressure, error) {
	upper, lower, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return BloodPressure{}, ErrInvalidPressureText
	}

	sys, err := strconv.Atoi(strings.TrimSpace(upper))
	if err != nil {
		return BloodPressure{}, ErrInvalidPressureText
	}
	dia, err := strconv.Atoi(strings.TrimSpace(lower))
	if err != nil {
		return BloodPressure{}, ErrInvalidPressureText
	}

	bp := BloodPressure{Systolic: sys, Diastolic: dia}
	if err := bp.Validate(); err != nil {
		return BloodPressure{}, err
	}
	return bp, nil
}
