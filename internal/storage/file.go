package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"vitalwatch/internal/logger"
	"vitalwatch/internal/models"
)

// patientsFile is the on-disk YAML layout
type patientsFile struct {
	Patients []patientRecord `yaml:"patients"`
}

type patientRecord struct {
	ID         string `yaml:"id"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	BirthDate  string `yaml:"birth_date"`
	HealthInfo struct {
		NormalTemperature string               `yaml:"normal_temperature"`
		BloodPressure     models.BloodPressure `yaml:"blood_pressure"`
	} `yaml:"health_info"`
}

// FileStore serves patients loaded from a YAML file
type FileStore struct {
	path string
	*MemoryStore
}

// NewFileStore reads and validates every record in path
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, MemoryStore: NewMemoryStore()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file. On error the previous records are kept.
func (s *FileStore) Reload() error {
	log := logger.WithComponent("file_store")

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read patients file: %w", err)
	}

	patients, err := decodePatients(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}

	fresh := NewMemoryStore(patients...)

	s.MemoryStore.mu.Lock()
	s.MemoryStore.patients = fresh.patients
	s.MemoryStore.mu.Unlock()

	log.Info().
		Str("path", s.path).
		Int("patients", len(patients)).
		Msg("patients loaded")
	return nil
}

func decodePatients(raw []byte) ([]models.PatientInfo, error) {
	var file patientsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Patients))
	out := make([]models.PatientInfo, 0, len(file.Patients))

	for i, rec := range file.Patients {
		p, err := rec.toPatient()
		if err != nil {
			return nil, fmt.Errorf("patient %d (%q): %w", i, rec.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("patient %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (r patientRecord) toPatient() (models.PatientInfo, error) {
	birth, err := models.ParseBirthDate(r.BirthDate)
	if err != nil {
		return models.PatientInfo{}, err
	}

	temp, err := models.ParseTemperature(r.HealthInfo.NormalTemperature)
	if err != nil {
		return models.PatientInfo{}, err
	}

	p := models.PatientInfo{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		BirthDate: birth,
		HealthInfo: models.HealthInfo{
			NormalTemperature: temp,
			BloodPressure:     r.HealthInfo.BloodPressure,
		},
	}
	p.Normalize()

	if err := p.Validate(); err != nil {
		return models.PatientInfo{}, err
	}
	return p, nil
}
