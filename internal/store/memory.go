package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"theralink-server/internal/adherence"
	"theralink-server/internal/models"
)

// NewMemoryStores keeps everything in process memory. Data is lost on
// restart; intended for development and tests.
func NewMemoryStores() *Stores {
	return &Stores{
		Patients:   NewMemoryPatientRepo(),
		Treatments: NewMemoryTreatmentRepo(),
		Ledger:     NewMemoryLedger(),
	}
}

func stamp(b *models.BaseModel) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
}

// MemoryPatientRepo is an in-memory PatientRepository.
type MemoryPatientRepo struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Patient
}

func NewMemoryPatientRepo() *MemoryPatientRepo {
	return &MemoryPatientRepo{byID: make(map[string]models.Patient)}
}

func (r *MemoryPatientRepo) Create(ctx context.Context, p *models.Patient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&p.BaseModel)
	r.byID[p.ID] = *p
	r.order = append(r.order, p.ID)
	return nil
}

func (r *MemoryPatientRepo) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPatientRepo) List(ctx context.Context) ([]models.Patient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(id string, _ int) models.Patient { return r.byID[id] }), nil
}

// MemoryTreatmentRepo is an in-memory TreatmentRepository.
type MemoryTreatmentRepo struct {
	mu        sync.RWMutex
	seq       uint64
	byPatient map[string][]models.Treatment
}

func NewMemoryTreatmentRepo() *MemoryTreatmentRepo {
	return &MemoryTreatmentRepo{byPatient: make(map[string][]models.Treatment)}
}

func (r *MemoryTreatmentRepo) Create(ctx context.Context, t *models.Treatment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stamp(&t.BaseModel)
	r.seq++
	t.Seq = r.seq
	r.byPatient[t.PatientID] = append(r.byPatient[t.PatientID], *t)
	return nil
}

func (r *MemoryTreatmentRepo) ListByPatient(ctx context.Context, patientID string) ([]models.Treatment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Treatment(nil), r.byPatient[patientID]...), nil
}

// MemoryLedger is an in-memory DoseLedger.
type MemoryLedger struct {
	mu        sync.RWMutex
	seq       uint64
	byPatient map[string][]models.DoseLog
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byPatient: make(map[string][]models.DoseLog)}
}

func (l *MemoryLedger) Append(ctx context.Context, d *models.DoseLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stamp(&d.BaseModel)
	l.seq++
	d.Seq = l.seq
	l.byPatient[d.PatientID] = append(l.byPatient[d.PatientID], *d)
	return nil
}

func (l *MemoryLedger) EventsFor(ctx context.Context, patientID, medication string) ([]models.DoseLog, error) {
	logs, err := l.EventsForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	key := adherence.MedicationKey(medication)
	return lo.Filter(logs, func(d models.DoseLog, _ int) bool {
		return adherence.MedicationKey(d.Medication) == key
	}), nil
}

func (l *MemoryLedger) EventsForPatient(ctx context.Context, patientID string) ([]models.DoseLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	logs := append([]models.DoseLog(nil), l.byPatient[patientID]...)
	l.mu.RUnlock()
	sortLogs(logs)
	return logs, nil
}

func (l *MemoryLedger) StatusOn(ctx context.Context, patientID, medication string, date time.Time) (adherence.DoseStatus, bool, error) {
	logs, err := l.EventsFor(ctx, patientID, medication)
	if err != nil {
		return "", false, err
	}
	st, ok := adherence.LatestStatus(models.Events(logs), patientID, medication, date)
	return st, ok, nil
}
