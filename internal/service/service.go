// Package service assembles the adherence engine, the stores and the
// feedback generator into the operations exposed over HTTP. Every read
// recomputes from the ledger; nothing derived is stored.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"theralink-server/internal/adherence"
	"theralink-server/internal/feedback"
	"theralink-server/internal/models"
	"theralink-server/internal/store"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultLookbackDays   = 30
	DefaultHorizonDays    = 7
	DefaultStorageTimeout = 5 * time.Second
)

// Options tunes the observation window and the grace policy.
type Options struct {
	Location       *time.Location
	LookbackDays   int
	HorizonDays    int
	GracePeriod    time.Duration
	StorageTimeout time.Duration
	Clock          adherence.Clock
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = DefaultLookbackDays
	}
	if o.HorizonDays <= 0 {
		o.HorizonDays = DefaultHorizonDays
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = adherence.DefaultGracePeriod
	}
	if o.StorageTimeout <= 0 {
		o.StorageTimeout = DefaultStorageTimeout
	}
	if o.Clock == nil {
		o.Clock = adherence.SystemClock{}
	}
	return o
}

// Service implements patient registration, dose logging and the summary
// and schedule views.
type Service struct {
	patients   store.PatientRepository
	treatments store.TreatmentRepository
	ledger     store.DoseLedger
	pinger     interface{ Ping(context.Context) error }
	feedback   *feedback.Generator
	opts       Options
	policy     adherence.GracePolicy
	locks      *keyedLocker
	validate   *validator.Validate
	logger     zerolog.Logger
}

// New creates a Service.
func New(stores *store.Stores, gen *feedback.Generator, opts Options, logger zerolog.Logger) *Service {
	opts = opts.withDefaults()
	if gen == nil {
		gen = feedback.NewGenerator(nil, 0, logger)
	}
	return &Service{
		patients:   stores.Patients,
		treatments: stores.Treatments,
		ledger:     stores.Ledger,
		pinger:     stores,
		feedback:   gen,
		opts:       opts,
		policy:     adherence.GracePolicy{Period: opts.GracePeriod, Location: opts.Location},
		locks:      newKeyedLocker(),
		validate:   validator.New(),
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// HorizonDays is the default schedule horizon.
func (s *Service) HorizonDays() int { return s.opts.HorizonDays }

// Location is the time zone used to derive calendar dates.
func (s *Service) Location() *time.Location { return s.opts.Location }

func (s *Service) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StorageTimeout)
}

// lockPatient waits for the patient's lock no longer than the storage
// timeout or the caller's deadline, whichever comes first.
func (s *Service) lockPatient(ctx context.Context, patientID string) (func(), error) {
	lctx, cancel := s.storageCtx(ctx)
	defer cancel()
	unlock, err := s.locks.Lock(lctx, patientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("timed out waiting for patient lock")
		return nil, &StorageError{Op: "lock patient", Err: err}
	}
	return unlock, nil
}

func (s *Service) check(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(strings.ToLower(fe.Field()), "failed %q validation", fe.Tag())
	}
	return &ValidationError{Message: err.Error()}
}

// -- Patients --

// RegisterPatientInput is the payload of register_patient.
type RegisterPatientInput struct {
	Name      string `validate:"required"`
	Age       int    `validate:"required,gt=0"`
	Gender    string `validate:"required"`
	Condition string `validate:"required"`
}

// RegisterPatient validates and stores a new patient.
func (s *Service) RegisterPatient(ctx context.Context, in RegisterPatientInput) (*models.Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Condition = strings.TrimSpace(in.Condition)
	if err := s.check(in); err != nil {
		return nil, err
	}
	gender, ok := models.ParseGender(in.Gender)
	if !ok {
		return nil, invalid("gender", "must be one of male, female, other")
	}

	p := &models.Patient{Name: in.Name, Age: in.Age, Gender: gender, Condition: in.Condition}
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if err := s.patients.Create(sctx, p); err != nil {
		s.logger.Error().Err(err).Msg("create patient failed")
		return nil, &StorageError{Op: "create patient", Err: err}
	}
	s.logger.Info().Str("patient_id", p.ID).Msg("patient registered")
	return p, nil
}

// GetPatient returns a patient with its treatments.
func (s *Service) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	p, err := s.patients.GetByID(sctx, patientID)
	if err != nil {
		return nil, storageErr("get patient", "patient", patientID, err)
	}
	p.Treatments, err = s.treatments.ListByPatient(sctx, patientID)
	if err != nil {
		return nil, storageErr("list treatments", "patient", patientID, err)
	}
	return p, nil
}

// ListPatients returns all patients.
func (s *Service) ListPatients(ctx context.Context) ([]models.Patient, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	patients, err := s.patients.List(sctx)
	if err != nil {
		return nil, &StorageError{Op: "list patients", Err: err}
	}
	return patients, nil
}

// -- Treatments --

// RegisterTreatmentInput is the payload of register_treatment.
type RegisterTreatmentInput struct {
	PatientID    string `validate:"required"`
	Medication   string `validate:"required"`
	Dosage       string `validate:"required"`
	Frequency    string `validate:"required"`
	StartDate    string `validate:"required"`
	ScheduleDays []string
}

// RegisterTreatment adds a prescription line for an existing patient.
func (s *Service) RegisterTreatment(ctx context.Context, in RegisterTreatmentInput) (*models.Treatment, error) {
	in.Medication = strings.TrimSpace(in.Medication)
	if err := s.check(in); err != nil {
		return nil, err
	}
	start, err := adherence.ParseDate(in.StartDate)
	if err != nil {
		return nil, invalid("start_date", "%v", err)
	}
	days, err := adherence.ParseWeekdays(in.ScheduleDays)
	if err != nil {
		return nil, invalid("schedule_days", "%v", err)
	}

	unlock, err := s.lockPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if _, err := s.patients.GetByID(sctx, in.PatientID); err != nil {
		return nil, storageErr("get patient", "patient", in.PatientID, err)
	}

	t := &models.Treatment{
		PatientID:    in.PatientID,
		Medication:   in.Medication,
		Dosage:       strings.TrimSpace(in.Dosage),
		Frequency:    strings.TrimSpace(in.Frequency),
		StartDate:    start,
		ScheduleDays: days.Names(),
	}
	if t.ScheduleDays == nil {
		t.ScheduleDays = []string{}
	}
	if err := s.treatments.Create(sctx, t); err != nil {
		s.logger.Error().Err(err).Str("patient_id", in.PatientID).Msg("create treatment failed")
		return nil, &StorageError{Op: "create treatment", Err: err}
	}
	s.logger.Info().
		Str("patient_id", in.PatientID).
		Str("treatment_id", t.ID).
		Str("medication", t.Medication).
		Msg("treatment registered")
	return t, nil
}

// -- Dose ledger --

// LogDoseInput is the payload of log_dose. A nil Timestamp means now.
type LogDoseInput struct {
	PatientID  string `validate:"required"`
	Medication string `validate:"required"`
	Status     string `validate:"required"`
	Timestamp  *time.Time
}

// LogDoseResult is the fresh state returned after an append.
type LogDoseResult struct {
	DoseLog          *models.DoseLog     `json:"dose_log"`
	DoseLogID        string              `json:"dose_log_id"`
	AdherencePercent float64             `json:"adherence_percent"`
	RiskLabel        adherence.RiskLabel `json:"risk_label"`
	FeedbackMessage  string              `json:"feedback_message"`
	Summary          *PatientSummary     `json:"summary"`
}

// LogDose appends to the ledger and recomputes the patient's summary while
// holding the patient's lock, so concurrent submissions for one patient
// never observe each other half way.
func (s *Service) LogDose(ctx context.Context, in LogDoseInput) (*LogDoseResult, error) {
	in.Medication = strings.TrimSpace(in.Medication)
	if err := s.check(in); err != nil {
		return nil, err
	}
	status, ok := adherence.ParseDoseStatus(in.Status)
	if !ok {
		return nil, invalid("status", "must be Taken or Missed")
	}
	ts := s.opts.Clock.Now()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = *in.Timestamp
	}

	unlock, err := s.lockPatient(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	patient, err := s.patients.GetByID(sctx, in.PatientID)
	if err != nil {
		return nil, storageErr("get patient", "patient", in.PatientID, err)
	}

	entry := &models.DoseLog{
		PatientID:  in.PatientID,
		Medication: in.Medication,
		Status:     status,
		RecordedAt: ts,
		DoseDate:   adherence.DateOf(ts, s.opts.Location),
	}
	if err := s.ledger.Append(sctx, entry); err != nil {
		s.logger.Error().Err(err).Str("patient_id", in.PatientID).Msg("append dose log failed")
		return nil, &StorageError{Op: "append dose log", Err: err}
	}
	s.logger.Info().
		Str("patient_id", in.PatientID).
		Str("medication", entry.Medication).
		Str("status", string(entry.Status)).
		Str("date", adherence.FormatDate(entry.DoseDate)).
		Msg("dose logged")

	summary, err := s.summarise(ctx, patient, s.opts.Clock.Now())
	if err != nil {
		return nil, err
	}
	return &LogDoseResult{
		DoseLog:          entry,
		DoseLogID:        entry.ID,
		AdherencePercent: summary.Adherence,
		RiskLabel:        summary.RiskLabel,
		FeedbackMessage:  summary.Feedback,
		Summary:          summary,
	}, nil
}

// GetDoseLogs returns a patient's ledger entries, oldest first.
func (s *Service) GetDoseLogs(ctx context.Context, patientID string) ([]models.DoseLog, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if _, err := s.patients.GetByID(sctx, patientID); err != nil {
		return nil, storageErr("get patient", "patient", patientID, err)
	}
	logs, err := s.ledger.EventsForPatient(sctx, patientID)
	if err != nil {
		return nil, &StorageError{Op: "list dose logs", Err: err}
	}
	if logs == nil {
		logs = []models.DoseLog{}
	}
	return logs, nil
}

// -- Summary and schedule --

// Window is the observation window of a summary.
type Window struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// PatientSummary is the canonical adherence view of one patient.
type PatientSummary struct {
	PatientID        string                             `json:"patient_id"`
	Name             string                             `json:"name"`
	Adherence        float64                            `json:"adherence"`
	RiskLabel        adherence.RiskLabel                `json:"risk_label"`
	Feedback         string                             `json:"feedback"`
	FeedbackProvider string                             `json:"feedback_provider"`
	MissedDays       map[string]adherence.MissedDayInfo `json:"missed_days"`
	TakenCount       int                                `json:"taken_count"`
	MissedCount      int                                `json:"missed_count"`
	PendingCount     int                                `json:"pending_count"`
	EvaluationDate   string                             `json:"evaluation_date"`
	Window           Window                             `json:"window"`
}

// asOf turns an optional evaluation date into the evaluation instant: now
// when absent, otherwise the last instant of that date.
func (s *Service) asOf(evaluationDate *time.Time) time.Time {
	if evaluationDate == nil {
		return s.opts.Clock.Now()
	}
	return adherence.EndOfDay(*evaluationDate, s.opts.Location)
}

// GetSummary computes the patient's summary. A nil evaluationDate means now.
func (s *Service) GetSummary(ctx context.Context, patientID string, evaluationDate *time.Time) (*PatientSummary, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	patient, err := s.patients.GetByID(sctx, patientID)
	if err != nil {
		return nil, storageErr("get patient", "patient", patientID, err)
	}
	return s.summarise(ctx, patient, s.asOf(evaluationDate))
}

func (s *Service) loadTreatmentsAndEvents(ctx context.Context, patientID string) ([]adherence.Treatment, *adherence.Snapshot, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	rows, err := s.treatments.ListByPatient(sctx, patientID)
	if err != nil {
		return nil, nil, &StorageError{Op: "list treatments", Err: err}
	}
	logs, err := s.ledger.EventsForPatient(sctx, patientID)
	if err != nil {
		return nil, nil, &StorageError{Op: "list dose logs", Err: err}
	}
	treatments := make([]adherence.Treatment, len(rows))
	for i, r := range rows {
		treatments[i] = r.Schedule()
	}
	return treatments, adherence.NewSnapshot(models.Events(logs)), nil
}

// observationWindow starts at the later of the earliest treatment start and
// the lookback limit, and ends on the evaluation date.
func (s *Service) observationWindow(treatments []adherence.Treatment, evaluationDate time.Time) (time.Time, int) {
	start := adherence.AddDays(evaluationDate, -(s.opts.LookbackDays - 1))
	if earliest, ok := adherence.EarliestStart(treatments); ok && earliest.After(start) {
		start = earliest
	}
	return start, adherence.DaysBetween(start, evaluationDate) + 1
}

func (s *Service) summarise(ctx context.Context, patient *models.Patient, asOf time.Time) (*PatientSummary, error) {
	treatments, snapshot, err := s.loadTreatmentsAndEvents(ctx, patient.ID)
	if err != nil {
		return nil, err
	}

	evaluationDate := adherence.DateOf(asOf, s.opts.Location)
	start, days := s.observationWindow(treatments, evaluationDate)
	schedule := adherence.Expand(treatments, start, days, evaluationDate)
	res := adherence.Compute(schedule, snapshot, patient.ID, asOf, s.policy)
	risk := adherence.Classify(res.Percentage)

	msg := s.feedback.Generate(ctx, feedback.Input{
		Percentage: res.Percentage,
		Risk:       risk,
		MissedDays: res.MissedDays,
	})

	window := Window{End: adherence.FormatDate(evaluationDate), Days: max(days, 0)}
	if days > 0 {
		window.Start = adherence.FormatDate(start)
	}
	return &PatientSummary{
		PatientID:        patient.ID,
		Name:             patient.Name,
		Adherence:        adherence.Round2(res.Percentage),
		RiskLabel:        risk,
		Feedback:         msg.Text,
		FeedbackProvider: msg.Provider,
		MissedDays:       res.MissedDays,
		TakenCount:       res.TakenCount,
		MissedCount:      res.MissedCount,
		PendingCount:     res.PendingCount,
		EvaluationDate:   adherence.FormatDate(evaluationDate),
		Window:           window,
	}, nil
}

// GetSchedule lists the dosing occasions from the evaluation date through
// horizonDays-1 days later, resolved against the ledger. A nil
// evaluationDate means today.
func (s *Service) GetSchedule(ctx context.Context, patientID string, evaluationDate *time.Time, horizonDays int) ([]adherence.ScheduleItem, error) {
	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if _, err := s.patients.GetByID(sctx, patientID); err != nil {
		return nil, storageErr("get patient", "patient", patientID, err)
	}
	treatments, snapshot, err := s.loadTreatmentsAndEvents(ctx, patientID)
	if err != nil {
		return nil, err
	}

	asOf := s.asOf(evaluationDate)
	today := adherence.DateOf(asOf, s.opts.Location)
	schedule := adherence.Expand(treatments, today, horizonDays, today)
	return adherence.Annotate(schedule, snapshot, patientID, asOf, s.policy), nil
}

// -- System check --

// CheckReport describes the health of the service's collaborators.
type CheckReport struct {
	Storage          string `json:"storage"`
	FeedbackProvider string `json:"feedback_provider"`
	Feedback         string `json:"feedback"`
}

// Check pings storage and the feedback provider.
func (s *Service) Check(ctx context.Context) CheckReport {
	report := CheckReport{Storage: "OK", Feedback: "OK"}

	sctx, cancel := s.storageCtx(ctx)
	defer cancel()
	if err := s.pinger.Ping(sctx); err != nil {
		report.Storage = "ERROR: " + err.Error()
	}

	name, err := s.feedback.Ping(ctx)
	report.FeedbackProvider = name
	if err != nil {
		report.Feedback = "DEGRADED: using rule-based fallback (" + err.Error() + ")"
	}
	return report
}
