package medical_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/medical"
	"vitalwatch/internal/models"
)

var errNotFound = errors.New("patient not found")

// fakeLookup serves patients from a map and counts calls
type fakeLookup struct {
	patients map[string]*models.PatientInfo
	calls    int
}

func (f *fakeLookup) GetByID(ctx context.Context, id string) (*models.PatientInfo, error) {
	f.calls++
	p, ok := f.patients[id]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}

// recordingSender records every message it is asked to send
type recordingSender struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingSender) Send(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func newPatient() *models.PatientInfo {
	return &models.PatientInfo{
		ID:        "id",
		FirstName: "Dmitry",
		LastName:  "Lakutin",
		BirthDate: time.Date(1990, 7, 12, 0, 0, 0, 0, time.UTC),
		HealthInfo: models.HealthInfo{
			NormalTemperature: decimal.RequireFromString("36.6"),
			BloodPressure:     models.BloodPressure{Systolic: 120, Diastolic: 80},
		},
	}
}

func newChecker() (*medical.Checker, *fakeLookup, *recordingSender) {
	lookup := &fakeLookup{patients: map[string]*models.PatientInfo{"id": newPatient()}}
	sender := &recordingSender{}
	return medical.NewChecker(lookup, sender), lookup, sender
}

func TestCheckTemperature(t *testing.T) {
	tests := []struct {
		observed  string
		wantSends int
	}{
		{"38.1", 0}, // +1.5, boundary
		{"35.1", 0}, // -1.5, boundary
		{"37.1", 0},
		{"36.6", 0},
		{"35.0", 1}, // -1.6
		{"38.2", 1}, // +1.6
		{"39.1", 1},
		{"38.11", 1},
		{"35.09", 1},
	}

	for _, tt := range tests {
		t.Run(tt.observed, func(t *testing.T) {
			checker, _, sender := newChecker()

			observed := decimal.RequireFromString(tt.observed)
			err := checker.CheckTemperature(context.Background(), "id", observed)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSends, sender.count())

			for _, msg := range sender.messages {
				assert.Contains(t, msg, "Warning")
				assert.Contains(t, msg, "Dmitry Lakutin")
				assert.Contains(t, msg, "id id")
				assert.Contains(t, msg, observed.String())
			}
		})
	}
}

func TestCheckBloodPressure(t *testing.T) {
	tests := []struct {
		name      string
		observed  models.BloodPressure
		wantSends int
	}{
		{"both high", models.BloodPressure{Systolic: 150, Diastolic: 90}, 1},
		{"both low", models.BloodPressure{Systolic: 110, Diastolic: 70}, 1},
		{"exact baseline", models.BloodPressure{Systolic: 120, Diastolic: 80}, 0},
		{"systolic and diastolic differ", models.BloodPressure{Systolic: 130, Diastolic: 90}, 1},
		{"diastolic only", models.BloodPressure{Systolic: 120, Diastolic: 70}, 1},
		{"systolic only", models.BloodPressure{Systolic: 121, Diastolic: 80}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, _, sender := newChecker()

			err := checker.CheckBloodPressure(context.Background(), "id", tt.observed)
			require.NoError(t, err)
			require.Equal(t, tt.wantSends, sender.count())

			for _, msg := range sender.messages {
				assert.Contains(t, msg, "Warning")
				assert.Contains(t, msg, tt.observed.String())
			}
		})
	}
}

func TestCheckNormalValuesNeverAlert(t *testing.T) {
	checker, _, sender := newChecker()
	patient := newPatient()

	require.NoError(t, checker.CheckTemperature(context.Background(), "id", patient.HealthInfo.NormalTemperature))
	require.NoError(t, checker.CheckBloodPressure(context.Background(), "id", patient.HealthInfo.BloodPressure))

	assert.Zero(t, sender.count())
}

func TestCheckIsIdempotent(t *testing.T) {
	checker, lookup, sender := newChecker()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, checker.CheckTemperature(ctx, "id", decimal.RequireFromString("35.0")))
		assert.Equal(t, i, sender.count())

		require.NoError(t, checker.CheckTemperature(ctx, "id", decimal.RequireFromString("36.6")))
		assert.Equal(t, i, sender.count())
	}
	assert.Equal(t, 6, lookup.calls)
}

func TestLookupErrorPropagatesUnchanged(t *testing.T) {
	checker, _, sender := newChecker()

	err := checker.CheckTemperature(context.Background(), "missing", decimal.RequireFromString("40"))
	assert.Same(t, errNotFound, err)

	err = checker.CheckBloodPressure(context.Background(), "missing", models.BloodPressure{Systolic: 200, Diastolic: 100})
	assert.Same(t, errNotFound, err)

	assert.Zero(t, sender.count())
}

func TestSendErrorPropagatesUnchanged(t *testing.T) {
	checker, _, sender := newChecker()
	sendErr := errors.New("smtp down")
	sender.err = sendErr

	err := checker.CheckBloodPressure(context.Background(), "id", models.BloodPressure{Systolic: 150, Diastolic: 90})
	assert.Same(t, sendErr, err)
	assert.Equal(t, 1, sender.count())
}

func TestCheckReading(t *testing.T) {
	checker, _, sender := newChecker()
	ctx := context.Background()

	require.NoError(t, checker.Check(ctx, models.NewTemperatureReading("id", decimal.RequireFromString("35.0"))))
	require.NoError(t, checker.Check(ctx, models.NewBloodPressureReading("id", models.BloodPressure{Systolic: 120, Diastolic: 80})))
	assert.Equal(t, 1, sender.count())

	err := checker.Check(ctx, &models.Reading{PatientID: "id", Kind: models.KindTemperature})
	assert.ErrorIs(t, err, models.ErrMissingPayload)
}

func TestTemperatureAbnormal(t *testing.T) {
	normal := decimal.RequireFromString("36.6")

	assert.False(t, medical.TemperatureAbnormal(normal, decimal.RequireFromString("38.1")))
	assert.False(t, medical.TemperatureAbnormal(normal, decimal.RequireFromString("35.1")))
	assert.True(t, medical.TemperatureAbnormal(normal, decimal.RequireFromString("35.0")))
	assert.True(t, medical.TemperatureAbnormal(normal, decimal.RequireFromString("38.100001")))
}

func TestBloodPressureAbnormal(t *testing.T) {
	normal := models.BloodPressure{Systolic: 120, Diastolic: 80}

	assert.False(t, medical.BloodPressureAbnormal(normal, normal))
	assert.True(t, medical.BloodPressureAbnormal(normal, models.BloodPressure{Systolic: 120, Diastolic: 81}))
	assert.True(t, medical.BloodPressureAbnormal(normal, models.BloodPressure{Systolic: 119, Diastolic: 80}))
}

func TestConcurrentChecksForDifferentPatients(t *testing.T) {
	patients := make(map[string]*models.PatientInfo)
	for _, id := range []string{"a", "b", "c", "d"} {
		p := newPatient()
		p.ID = id
		patients[id] = p
	}
	sender := &recordingSender{}
	checker := medical.NewChecker(&readOnlyLookup{patients: patients}, sender)

	var wg sync.WaitGroup
	for id := range patients {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = checker.CheckTemperature(context.Background(), id, decimal.RequireFromString("39.5"))
		}(id)
	}
	wg.Wait()

	assert.Equal(t, len(patients), sender.count())
}

// readOnlyLookup has no counters so it is safe for concurrent use
type readOnlyLookup struct {
	patients map[string]*models.PatientInfo
}

func (r *readOnlyLookup) GetByID(ctx context.Context, id string) (*models.PatientInfo, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}
