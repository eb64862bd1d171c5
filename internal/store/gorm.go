package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"theralink-server/internal/adherence"
	"theralink-server/internal/models"
)

// NewGormStores backs every repository with the given database.
func NewGormStores(db *gorm.DB) *Stores {
	s := &Stores{
		Patients:   &GormPatientRepo{DB: db},
		Treatments: &GormTreatmentRepo{DB: db},
		Ledger:     &GormDoseLedger{DB: db},
	}
	s.OnClose(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return s
}

// GormPatientRepo stores patients in a SQL database.
type GormPatientRepo struct {
	DB *gorm.DB
}

func (r *GormPatientRepo) Create(ctx context.Context, p *models.Patient) error {
	if err := r.DB.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *GormPatientRepo) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	var p models.Patient
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

func (r *GormPatientRepo) List(ctx context.Context) ([]models.Patient, error) {
	var patients []models.Patient
	if err := r.DB.WithContext(ctx).Order("created_at asc").Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// Ping checks the connection pool.
func (r *GormPatientRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GormTreatmentRepo stores treatments in a SQL database.
type GormTreatmentRepo struct {
	DB *gorm.DB
}

func (r *GormTreatmentRepo) Create(ctx context.Context, t *models.Treatment) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create treatment: %w", err)
	}
	return nil
}

func (r *GormTreatmentRepo) ListByPatient(ctx context.Context, patientID string) ([]models.Treatment, error) {
	var treatments []models.Treatment
	err := r.DB.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order(treatmentOrder).
		Find(&treatments).Error
	if err != nil {
		return nil, fmt.Errorf("list treatments for %s: %w", patientID, err)
	}
	return treatments, nil
}

// Rows are read back in insertion order. created_at is only millisecond
// precise on MySQL, so the database sequence breaks ties.
const (
	treatmentOrder = "seq asc"
	doseLogOrder   = "recorded_at asc, seq asc"
)

// GormDoseLedger keeps the dose ledger in the dose_logs table.
type GormDoseLedger struct {
	DB *gorm.DB
}

// Append inserts a single row inside a transaction.
func (l *GormDoseLedger) Append(ctx context.Context, d *models.DoseLog) error {
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(d).Error
	})
	if err != nil {
		return fmt.Errorf("append dose log: %w", err)
	}
	return nil
}

func (l *GormDoseLedger) EventsFor(ctx context.Context, patientID, medication string) ([]models.DoseLog, error) {
	var logs []models.DoseLog
	err := l.DB.WithContext(ctx).
		Where("patient_id = ? AND LOWER(TRIM(medication)) = ?", patientID, adherence.MedicationKey(medication)).
		Order(doseLogOrder).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list dose logs for %s/%s: %w", patientID, medication, err)
	}
	return logs, nil
}

func (l *GormDoseLedger) EventsForPatient(ctx context.Context, patientID string) ([]models.DoseLog, error) {
	var logs []models.DoseLog
	err := l.DB.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order(doseLogOrder).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list dose logs for %s: %w", patientID, err)
	}
	return logs, nil
}

func (l *GormDoseLedger) StatusOn(ctx context.Context, patientID, medication string, date time.Time) (adherence.DoseStatus, bool, error) {
	logs, err := l.EventsFor(ctx, patientID, medication)
	if err != nil {
		return "", false, err
	}
	st, ok := adherence.LatestStatus(models.Events(logs), patientID, medication, date)
	return st, ok, nil
}
