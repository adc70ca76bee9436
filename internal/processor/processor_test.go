package processor

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/config"
	"vitalwatch/internal/logger"
	"vitalwatch/internal/storage"
)

const patientsYAML = `
patients:
  - id: p-1
    first_name: Anna
    last_name: Smirnova
    birth_date: "1975-03-01"
    health_info:
      normal_temperature: "36.6"
      blood_pressure:
        systolic: 120
        diastolic: 80
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(patientsYAML), 0o600))

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Storage.Backend = config.BackendFile
	cfg.Storage.FilePath = path
	return cfg
}

func TestOpenBuildsEverySink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerts.Sinks = []string{config.SinkLog, config.SinkWebhook, config.SinkKafka}
	cfg.Alerts.Webhook.URL = "http://127.0.0.1:1/hook"

	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, c.Sender.Len())
	require.NotNil(t, c.Producer)
	require.NoError(t, c.HealthCheck(context.Background()))
	require.NoError(t, c.Close())
}

func TestOpenDeliversToWebhook(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig(t)
	cfg.Alerts.Sinks = []string{config.SinkLog, config.SinkWebhook}
	cfg.Alerts.Webhook.URL = hook.URL

	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Checker.CheckTemperature(ctx, "p-1", decimal.RequireFromString("36.6")))
	assert.EqualValues(t, 0, hits.Load())

	require.NoError(t, c.Checker.CheckTemperature(ctx, "p-1", decimal.RequireFromString("38.5")))
	assert.EqualValues(t, 1, hits.Load())
}

func TestOpenWithCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Cache.Enabled = true
	cfg.Cache.RedisAddr = mr.Addr()

	c, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Store.(*storage.CachedStore)
	require.True(t, ok)

	p, err := c.Store.GetByID(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", p.FirstName)
	assert.NotEmpty(t, mr.Keys())
}

func TestOpenErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.FilePath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg = testConfig(t)
	cfg.Alerts.Sinks = []string{config.SinkWebhook}
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Alerts.Sinks = []string{"sms"}
	_, err = Open(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrUnknownSink)
}

func TestProcessorServesChecks(t *testing.T) {
	p := New(testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-p.Ready():
	case err := <-done:
		t.Fatalf("processor exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not become ready")
	}

	base := "http://" + p.Addr()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Post(base+"/v1/patients/p-1/temperature", "application/json", strings.NewReader(`{"temperature":"39.5"}`))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, err = http.Post(base+"/v1/patients/nobody/blood-pressure", "application/json", strings.NewReader(`{"systolic":120,"diastolic":80}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, 1, stats.Sinks)
	assert.Nil(t, stats.Producer)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("processor did not shut down")
	}
}

func TestProcessorFailsOnBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.FilePath = filepath.Join(t.TempDir(), "missing.yaml")

	err := New(cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestOpenWarnsOnEmptyMemoryStore(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	c, err := Open(context.Background(), config.Default())
	require.NoError(t, err)
	defer c.Close()

	assert.Contains(t, buf.String(), "memory patient store is empty")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(ctx context.Context) error { return s.err }

func TestHealthCheckReportsFailedComponent(t *testing.T) {
	c, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.HealthCheck(context.Background()))

	stopped := errors.New("readings consumer stopped")
	c.register("readings", stubHealth{err: stopped})

	err = c.HealthCheck(context.Background())
	assert.ErrorIs(t, err, stopped)
	assert.Contains(t, err.Error(), "readings:")

	p := &Processor{components: c}
	rec := httptest.NewRecorder()
	p.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "readings consumer stopped")
}
