// Package medical decides whether a vital-sign reading deviates from a
// patient's recorded baseline and raises an alert when it does.
package medical

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"vitalwatch/internal/logger"
	"vitalwatch/internal/metrics"
	"vitalwatch/internal/models"
)

// TemperatureTolerance is the allowed deviation from the normal temperature, in °C.
var TemperatureTolerance = decimal.RequireFromString("1.5")

// PatientLookup resolves a patient record by id
type PatientLookup interface {
	GetByID(ctx context.Context, id string) (*models.PatientInfo, error)
}

// AlertSender delivers an alert message
type AlertSender interface {
	Send(ctx context.Context, message string) error
}

// Checker compares readings against patient baselines.
// It holds no state between calls.
type Checker struct {
	patients PatientLookup
	alerts   AlertSender
}

// NewChecker creates a checker over the given collaborators
func NewChecker(patients PatientLookup, alerts AlertSender) *Checker {
	return &Checker{patients: patients, alerts: alerts}
}

// TemperatureAbnormal reports whether observed differs from normal by more than the tolerance
func TemperatureAbnormal(normal, observed decimal.Decimal) bool {
	return observed.Sub(normal).Abs().GreaterThan(TemperatureTolerance)
}

// BloodPressureAbnormal reports whether either component differs from normal
func BloodPressureAbnormal(normal, observed models.BloodPressure) bool {
	return !normal.Equal(observed)
}

// CheckTemperature alerts when the observed temperature is out of tolerance.
// Lookup and send errors are returned as-is.
func (c *Checker) CheckTemperature(ctx context.Context, patientID string, observed decimal.Decimal) error {
	const vital = "temperature"

	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		metrics.LookupErrors.WithLabelValues(vital).Inc()
		metrics.ChecksTotal.WithLabelValues(vital, "error").Inc()
		return err
	}

	log := logger.WithPatient("checker", patientID)
	normal := patient.HealthInfo.NormalTemperature

	if !TemperatureAbnormal(normal, observed) {
		log.Debug().
			Str("normal", normal.String()).
			Str("observed", observed.String()).
			Msg("temperature within tolerance")
		metrics.ChecksTotal.WithLabelValues(vital, "normal").Inc()
		return nil
	}

	log.Warn().
		Str("normal", normal.String()).
		Str("observed", observed.String()).
		Msg("abnormal temperature")
	metrics.ChecksTotal.WithLabelValues(vital, "abnormal").Inc()

	return c.alerts.Send(ctx, temperatureMessage(patientID, patient, observed))
}

// CheckBloodPressure alerts when the observed pressure differs from the baseline.
// Lookup and send errors are returned as-is.
func (c *Checker) CheckBloodPressure(ctx context.Context, patientID string, observed models.BloodPressure) error {
	const vital = "blood_pressure"

	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		metrics.LookupErrors.WithLabelValues(vital).Inc()
		metrics.ChecksTotal.WithLabelValues(vital, "error").Inc()
		return err
	}

	log := logger.WithPatient("checker", patientID)
	normal := patient.HealthInfo.BloodPressure

	if !BloodPressureAbnormal(normal, observed) {
		log.Debug().
			Str("normal", normal.String()).
			Msg("blood pressure matches baseline")
		metrics.ChecksTotal.WithLabelValues(vital, "normal").Inc()
		return nil
	}

	log.Warn().
		Str("normal", normal.String()).
		Str("observed", observed.String()).
		Msg("abnormal blood pressure")
	metrics.ChecksTotal.WithLabelValues(vital, "abnormal").Inc()

	return c.alerts.Send(ctx, bloodPressureMessage(patientID, patient, observed))
}

// Check validates a reading and dispatches it to the matching check
func (c *Checker) Check(ctx context.Context, r *models.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if r.Kind == models.KindTemperature {
		return c.CheckTemperature(ctx, r.PatientID, *r.Temperature)
	}
	return c.CheckBloodPressure(ctx, r.PatientID, *r.BloodPressure)
}

func temperatureMessage(id string, p *models.PatientInfo, observed decimal.Decimal) string {
	return fmt.Sprintf("Warning: patient %s (id %s) has temperature %s°C, normal is %s°C",
		p.FullName(), id, observed.String(), p.HealthInfo.NormalTemperature.String())
}

func bloodPressureMessage(id string, p *models.PatientInfo, observed models.BloodPressure) string {
	return fmt.Sprintf("Warning: patient %s (id %s) has blood pressure %s mmHg, normal is %s mmHg",
		p.FullName(), id, observed, p.HealthInfo.BloodPressure)
}
