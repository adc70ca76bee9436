package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalwatch/internal/config"
	"vitalwatch/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testProducer(t *testing.T, w *fakeWriter) *Producer {
	t.Helper()
	cfg := config.Default().Alerts.Kafka
	p, err := NewProducer(cfg, withWriter(w), WithNode("ward-3"))
	require.NoError(t, err)
	return p
}

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(config.KafkaProducerConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewProducer(config.KafkaProducerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestProducerSend(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(t, w)
	assert.Equal(t, "kafka", p.Name())

	require.NoError(t, p.Send(context.Background(), "Warning: patient p-1"))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ward-3", string(msg.Key))

	var rec AlertRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	assert.Equal(t, "Warning: patient p-1", rec.Message)
	assert.Equal(t, "ward-3", rec.Node)
	assert.False(t, rec.SentAt.IsZero())

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.MessagesSent)
	assert.EqualValues(t, len(msg.Value), stats.BytesWritten)
}

func TestProducerSendErrors(t *testing.T) {
	brokerErr := errors.New("leader not available")
	w := &fakeWriter{err: brokerErr}
	p := testProducer(t, w)

	assert.ErrorIs(t, p.Send(context.Background(), "Warning"), brokerErr)
	assert.ErrorIs(t, p.Send(context.Background(), ""), ErrEmptyMessage)
	assert.EqualValues(t, 2, p.Stats().MessagesFailed)
}

func TestProducerClose(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(t, w)

	require.NoError(t, p.HealthCheck(context.Background()))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	assert.ErrorIs(t, p.Send(context.Background(), "Warning"), ErrProducerClosed)
	assert.ErrorIs(t, p.HealthCheck(context.Background()), ErrProducerClosed)
}

func TestGetCompression(t *testing.T) {
	assert.Equal(t, compress.Gzip, getCompression("gzip"))
	assert.Equal(t, compress.Snappy, getCompression("snappy"))
	assert.Equal(t, compress.Lz4, getCompression("lz4"))
	assert.Equal(t, compress.Zstd, getCompression("zstd"))
	assert.Equal(t, compress.None, getCompression("brotli"))
}

// fakeReader replays queued messages, then blocks until ctx is done
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
	fetchErr  error
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.fetchErr != nil {
		f.mu.Unlock()
		return kafka.Message{}, f.fetchErr
	}
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func (f *fakeReader) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

type recordingChecker struct {
	mu       sync.Mutex
	readings []models.Reading
	err      error
}

func (r *recordingChecker) Check(ctx context.Context, reading *models.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, *reading)
	return r.err
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func TestConsumerProcessesAndCommitsEverything(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(0, `{"patient_id":" p-1 ","kind":"Temperature","temperature":"38.2"}`),
		message(1, `not json`),
		message(2, `{"patient_id":"p-2","kind":"blood-pressure","blood_pressure":{"systolic":130,"diastolic":85}}`),
		message(3, `{"patient_id":"p-3","kind":"glucose"}`),
	}}
	checker := &recordingChecker{}
	c := newConsumer(reader, checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Len(t, checker.readings, 2)
	assert.Equal(t, "p-1", checker.readings[0].PatientID)
	assert.Equal(t, models.KindTemperature, checker.readings[0].Kind)
	assert.Equal(t, "38.2", checker.readings[0].Temperature.String())
	assert.Equal(t, models.KindBloodPressure, checker.readings[1].Kind)
	assert.Equal(t, models.BloodPressure{Systolic: 130, Diastolic: 85}, *checker.readings[1].BloodPressure)

	assert.Equal(t, []int64{0, 1, 2, 3}, reader.committed)
	assert.Equal(t, ConsumerStats{Checked: 2, Invalid: 2}, c.Stats())

	require.NoError(t, c.Stop())
	assert.True(t, reader.closed)
}

func TestConsumerCommitsFailedChecks(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		message(7, `{"patient_id":"ghost","kind":"temperature","temperature":"37.0"}`),
	}}
	checker := &recordingChecker{err: errors.New("patient not found")}
	c := newConsumer(reader, checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, c.Stats().Failed)
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer(config.ReadingsConfig{Topic: "t", GroupID: "g"}, &recordingChecker{})
	assert.Error(t, err)

	_, err = NewConsumer(config.ReadingsConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, &recordingChecker{})
	assert.Error(t, err)
}

func TestConsumerFetchFailureMarksUnhealthy(t *testing.T) {
	brokerErr := errors.New("group coordinator not available")
	c := newConsumer(&fakeReader{fetchErr: brokerErr}, &recordingChecker{})

	require.NoError(t, c.HealthCheck(context.Background()))

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, brokerErr)

	err = c.HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrConsumerStopped)
	assert.Contains(t, err.Error(), "group coordinator not available")
}

func TestConsumerCancelStaysHealthy(t *testing.T) {
	c := newConsumer(&fakeReader{}, &recordingChecker{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Start(ctx))
	assert.NoError(t, c.HealthCheck(context.Background()))
}
