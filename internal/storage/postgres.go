package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"vitalwatch/internal/models"
)

const selectPatientSQL = `
SELECT id, first_name, last_name, birth_date, normal_temperature, systolic, diastolic
FROM patients
WHERE id = $1`

// PostgresStore reads patients from the patients table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and pings it
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresFromDB(db), nil
}

// NewPostgresFromDB wraps an existing pool
func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*models.PatientInfo, error) {
	var p models.PatientInfo

	err := s.db.QueryRowContext(ctx, selectPatientSQL, id).Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.BirthDate,
		&p.HealthInfo.NormalTemperature,
		&p.HealthInfo.BloodPressure.Systolic,
		&p.HealthInfo.BloodPressure.Diastolic,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query patient %s: %w", id, err)
	}

	p.Normalize()
	return &p, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the pool
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
