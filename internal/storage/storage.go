package storage

import (
	"context"
	"errors"

	"vitalwatch/internal/models"
)

// ErrPatientNotFound is returned when no record exists for an id
var ErrPatientNotFound = errors.New("patient not found")

// PatientStore resolves patient records by id.
type PatientStore interface {
	GetByID(ctx context.Context, id string) (*models.PatientInfo, error)
	Close() error
}
