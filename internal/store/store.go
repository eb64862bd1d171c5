// Package store persists patients, treatments and the dose ledger.
package store

import (
	"context"
	"errors"
	"time"

	"theralink-server/internal/adherence"
	"theralink-server/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// PatientRepository stores patients.
type PatientRepository interface {
	Create(ctx context.Context, p *models.Patient) error
	GetByID(ctx context.Context, id string) (*models.Patient, error)
	List(ctx context.Context) ([]models.Patient, error)
}

// TreatmentRepository stores prescription lines.
type TreatmentRepository interface {
	Create(ctx context.Context, t *models.Treatment) error
	// ListByPatient returns treatments in insertion order.
	ListByPatient(ctx context.Context, patientID string) ([]models.Treatment, error)
}

// DoseLedger is the append-only log of dose events. There is no way to
// update or delete an entry.
type DoseLedger interface {
	// Append commits the entry atomically or not at all.
	Append(ctx context.Context, d *models.DoseLog) error
	// EventsFor returns the entries for one medication, oldest first.
	EventsFor(ctx context.Context, patientID, medication string) ([]models.DoseLog, error)
	// EventsForPatient returns all of a patient's entries, oldest first.
	EventsForPatient(ctx context.Context, patientID string) ([]models.DoseLog, error)
	// StatusOn returns the status of the latest entry for the day, if any.
	StatusOn(ctx context.Context, patientID, medication string, date time.Time) (adherence.DoseStatus, bool, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores groups the repositories the service needs.
type Stores struct {
	Patients   PatientRepository
	Treatments TreatmentRepository
	Ledger     DoseLedger
	closers    []func() error
}

// Ping checks every backend that supports it.
func (s *Stores) Ping(ctx context.Context) error {
	for _, r := range []any{s.Patients, s.Treatments, s.Ledger} {
		if p, ok := r.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases backend resources.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OnClose registers a cleanup function run by Close.
func (s *Stores) OnClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
