package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"theralink-server/internal/adherence"
	"theralink-server/internal/feedback"
	"theralink-server/internal/models"
	"theralink-server/internal/store"
)

var evalNoon = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, stores *store.Stores) *Service {
	t.Helper()
	if stores == nil {
		stores = store.NewMemoryStores()
	}
	return New(stores, nil, Options{Clock: adherence.FixedClock{At: evalNoon}}, zerolog.Nop())
}

func mustPatient(t *testing.T, s *Service) *models.Patient {
	t.Helper()
	p, err := s.RegisterPatient(context.Background(), RegisterPatientInput{
		Name: "Ada", Age: 40, Gender: "Female", Condition: "Diabetes",
	})
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}
	return p
}

func mustTreatment(t *testing.T, s *Service, patientID, med, start string, days ...string) *models.Treatment {
	t.Helper()
	tr, err := s.RegisterTreatment(context.Background(), RegisterTreatmentInput{
		PatientID: patientID, Medication: med, Dosage: "500mg", Frequency: "once-daily",
		StartDate: start, ScheduleDays: days,
	})
	if err != nil {
		t.Fatalf("register treatment: %v", err)
	}
	return tr
}

func logAt(t *testing.T, s *Service, patientID, med, status string, ts time.Time) *LogDoseResult {
	t.Helper()
	res, err := s.LogDose(context.Background(), LogDoseInput{PatientID: patientID, Medication: med, Status: status, Timestamp: &ts})
	if err != nil {
		t.Fatalf("log dose: %v", err)
	}
	return res
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := adherence.Date(y, m, d)
	return &t
}

func TestRegisterPatient_Validation(t *testing.T) {
	s := newTestService(t, nil)
	tests := []struct {
		name  string
		in    RegisterPatientInput
		field string
	}{
		{"missing name", RegisterPatientInput{Age: 30, Gender: "male", Condition: "x"}, "name"},
		{"zero age", RegisterPatientInput{Name: "A", Gender: "male", Condition: "x"}, "age"},
		{"negative age", RegisterPatientInput{Name: "A", Age: -2, Gender: "male", Condition: "x"}, "age"},
		{"bad gender", RegisterPatientInput{Name: "A", Age: 3, Gender: "robot", Condition: "x"}, "gender"},
		{"missing condition", RegisterPatientInput{Name: "A", Age: 3, Gender: "other"}, "condition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RegisterPatient(context.Background(), tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
	if list, _ := s.ListPatients(context.Background()); len(list) != 0 {
		t.Errorf("rejected input must not be stored, got %d patients", len(list))
	}
}

func TestRegisterPatient_NormalisesGender(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	if p.Gender != models.GenderFemale || p.ID == "" {
		t.Errorf("unexpected patient %+v", p)
	}
}

func TestRegisterTreatment(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)

	tr := mustTreatment(t, s, p.ID, "Metformin", "2024-01-01", "thursday", "Monday", "monday")
	if got := []string(tr.ScheduleDays); len(got) != 2 || got[0] != "Monday" || got[1] != "Thursday" {
		t.Errorf("schedule days not normalised: %v", got)
	}

	_, err := s.RegisterTreatment(context.Background(), RegisterTreatmentInput{
		PatientID: "nope", Medication: "A", Dosage: "1", Frequency: "daily", StartDate: "2024-01-01",
	})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	for _, in := range []RegisterTreatmentInput{
		{PatientID: p.ID, Medication: "A", Dosage: "1", Frequency: "daily", StartDate: "01/01/2024"},
		{PatientID: p.ID, Medication: "A", Dosage: "1", Frequency: "daily", StartDate: "2024-01-01", ScheduleDays: []string{"Caturday"}},
		{PatientID: p.ID, Dosage: "1", Frequency: "daily", StartDate: "2024-01-01"},
	} {
		var verr *ValidationError
		if _, err := s.RegisterTreatment(context.Background(), in); !errors.As(err, &verr) {
			t.Errorf("expected ValidationError for %+v, got %v", in, err)
		}
	}

	got, err := s.GetPatient(context.Background(), p.ID)
	if err != nil || len(got.Treatments) != 1 {
		t.Fatalf("expected one stored treatment, got %+v %v", got, err)
	}
}

func TestLogDose_Validation(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)

	_, err := s.LogDose(context.Background(), LogDoseInput{PatientID: p.ID, Medication: "A", Status: "Inconsistent"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "status" {
		t.Errorf("expected status ValidationError, got %v", err)
	}
	_, err = s.LogDose(context.Background(), LogDoseInput{PatientID: "ghost", Medication: "A", Status: "Taken"})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if logs, _ := s.GetDoseLogs(context.Background(), p.ID); len(logs) != 0 {
		t.Errorf("rejected input must not be appended, got %d logs", len(logs))
	}
}

func TestSummary_TakenTakenMissed(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "Metformin", "2024-01-01")

	logAt(t, s, p.ID, "Metformin", "Taken", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	logAt(t, s, p.ID, "Metformin", "Taken", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	res := logAt(t, s, p.ID, "Metformin", "missed", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))

	if res.AdherencePercent != 66.67 || res.RiskLabel != adherence.RiskMedium {
		t.Errorf("got %v / %s, want 66.67 / Medium", res.AdherencePercent, res.RiskLabel)
	}
	if res.FeedbackMessage == "" || res.DoseLogID == "" {
		t.Errorf("expected feedback and dose log id, got %+v", res)
	}
	sum := res.Summary
	if sum.MissedDays["Metformin"].TotalMissed != 1 || sum.Window.Start != "2024-01-01" || sum.Window.Days != 3 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestSummary_NoLogs(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "Metformin", "2024-01-01")

	// At noon on Jan 3 with end-of-day grace, Jan 1 and Jan 2 are missed
	// and Jan 3 is still pending.
	sum, err := s.GetSummary(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.MissedCount != 2 || sum.PendingCount != 1 || sum.Adherence != 0 || sum.RiskLabel != adherence.RiskHigh {
		t.Errorf("unexpected summary %+v", sum)
	}

	// Evaluated before the start date nothing is due.
	sum, err = s.GetSummary(context.Background(), p.ID, datePtr(2023, 12, 31))
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Adherence != 0 || sum.PendingCount != 0 || sum.MissedCount != 0 || sum.Window.Days != 0 {
		t.Errorf("expected empty window, got %+v", sum)
	}
}

func TestSummary_LookbackLimitsWindow(t *testing.T) {
	stores := store.NewMemoryStores()
	s := New(stores, nil, Options{LookbackDays: 2, Clock: adherence.FixedClock{At: evalNoon}}, zerolog.Nop())
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "A", "2023-12-01")
	logAt(t, s, p.ID, "A", "Taken", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))

	sum, err := s.GetSummary(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Window.Start != "2024-01-02" || sum.Adherence != 100 || sum.PendingCount != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestLogDose_SameDayLatestWins(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "X", "2024-01-03")

	logAt(t, s, p.ID, "X", "Taken", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))
	res := logAt(t, s, p.ID, "X", "Missed", time.Date(2024, 1, 3, 9, 0, 1, 0, time.UTC))

	sum := res.Summary
	if sum.TakenCount+sum.MissedCount != 1 {
		t.Fatalf("the day must count once, got taken=%d missed=%d", sum.TakenCount, sum.MissedCount)
	}
	if sum.MissedCount != 1 || sum.Adherence != 0 {
		t.Errorf("expected the later Missed to win, got %+v", sum)
	}
	logs, _ := s.GetDoseLogs(context.Background(), p.ID)
	if len(logs) != 2 {
		t.Errorf("both submissions stay in the ledger, got %d", len(logs))
	}
}

func TestLogDose_ConcurrentSamePatient(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "X", "2024-01-01")

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := time.Date(2024, 1, 3, 8, 0, i, 0, time.UTC)
			_, err := s.LogDose(context.Background(), LogDoseInput{PatientID: p.ID, Medication: "X", Status: "Taken", Timestamp: &ts})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("log dose: %v", err)
		}
	}

	logs, _ := s.GetDoseLogs(context.Background(), p.ID)
	if len(logs) != n {
		t.Errorf("expected %d ledger entries, got %d", n, len(logs))
	}
	sum, _ := s.GetSummary(context.Background(), p.ID, nil)
	if sum.TakenCount != 1 {
		t.Errorf("repeated submissions must not double count, got taken=%d", sum.TakenCount)
	}
	if s.locks.size() != 0 {
		t.Errorf("expected all patient locks released, %d left", s.locks.size())
	}
}

func TestGetSchedule(t *testing.T) {
	s := newTestService(t, nil)
	p := mustPatient(t, s)
	mustTreatment(t, s, p.ID, "Metformin", "2024-01-01", "Monday", "Thursday")

	items, err := s.GetSchedule(context.Background(), p.ID, datePtr(2024, 1, 1), 7)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if adherence.FormatDate(items[0].Date) != "2024-01-01" || adherence.FormatDate(items[1].Date) != "2024-01-04" {
		t.Errorf("unexpected dates %v %v", items[0].Date, items[1].Date)
	}
	if items[0].Status != adherence.StatusPending || !items[0].IsToday || items[1].Status != adherence.StatusUpcoming {
		t.Errorf("unexpected statuses %+v", items)
	}

	if _, err := s.GetSchedule(context.Background(), "ghost", nil, 7); err == nil {
		t.Error("expected NotFoundError for unknown patient")
	}
}

func TestGetSummary_NotFound(t *testing.T) {
	s := newTestService(t, nil)
	_, err := s.GetSummary(context.Background(), "ghost", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Resource != "patient" {
		t.Errorf("expected patient NotFoundError, got %v", err)
	}
}

type failingLedger struct {
	store.DoseLedger
}

func (failingLedger) Append(context.Context, *models.DoseLog) error {
	return fmt.Errorf("disk on fire")
}

func TestLogDose_StorageFailureReleasesLock(t *testing.T) {
	stores := store.NewMemoryStores()
	stores.Ledger = failingLedger{DoseLedger: stores.Ledger}
	s := newTestService(t, stores)
	p := mustPatient(t, s)

	for i := 0; i < 2; i++ {
		done := make(chan error, 1)
		go func() {
			_, err := s.LogDose(context.Background(), LogDoseInput{PatientID: p.ID, Medication: "X", Status: "Taken"})
			done <- err
		}()
		select {
		case err := <-done:
			var serr *StorageError
			if !errors.As(err, &serr) || !serr.Retryable() {
				t.Fatalf("expected retryable StorageError, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("log dose deadlocked after a storage failure")
		}
	}
}

type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Generate(ctx context.Context, _ feedback.Input) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSummary_FeedbackTimeoutFallsBack(t *testing.T) {
	gen := feedback.NewGenerator(slowProvider{}, 10*time.Millisecond, zerolog.Nop())
	s := New(store.NewMemoryStores(), gen, Options{Clock: adherence.FixedClock{At: evalNoon}}, zerolog.Nop())
	p := mustPatient(t, s)

	sum, err := s.GetSummary(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatalf("summary must not fail on provider timeout: %v", err)
	}
	if sum.FeedbackProvider != "rules" || sum.Feedback == "" {
		t.Errorf("expected rule-based feedback, got %+v", sum)
	}

	report := s.Check(context.Background())
	if report.Storage != "OK" || report.FeedbackProvider != "slow" || report.Feedback == "OK" {
		t.Errorf("unexpected check report %+v", report)
	}
}

type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (blockingProvider) Name() string { return "blocking" }

func (p blockingProvider) Generate(ctx context.Context, _ feedback.Input) (string, error) {
	p.entered <- struct{}{}
	select {
	case <-p.release:
		return "keep going", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestLogDose_WaitingForPatientLockHonoursDeadline(t *testing.T) {
	prov := blockingProvider{entered: make(chan struct{}, 1), release: make(chan struct{})}
	gen := feedback.NewGenerator(prov, 5*time.Second, zerolog.Nop())
	s := New(store.NewMemoryStores(), gen, Options{Clock: adherence.FixedClock{At: evalNoon}}, zerolog.Nop())
	p := mustPatient(t, s)

	first := make(chan error, 1)
	go func() {
		_, err := s.LogDose(context.Background(), LogDoseInput{PatientID: p.ID, Medication: "X", Status: "Taken"})
		first <- err
	}()
	<-prov.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.LogDose(ctx, LogDoseInput{PatientID: p.ID, Medication: "X", Status: "Missed"})
	elapsed := time.Since(start)

	var serr *StorageError
	if !errors.As(err, &serr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected StorageError wrapping the deadline, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("waited %v for the lock, the caller's deadline was 50ms", elapsed)
	}

	close(prov.release)
	if err := <-first; err != nil {
		t.Fatalf("first log dose: %v", err)
	}
	if logs, _ := s.GetDoseLogs(context.Background(), p.ID); len(logs) != 1 {
		t.Errorf("the timed-out request must not append, got %d logs", len(logs))
	}
	if s.locks.size() != 0 {
		t.Errorf("expected all patient locks released, %d left", s.locks.size())
	}
}

func TestKeyedLocker(t *testing.T) {
	l := newKeyedLocker()
	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	other, err := l.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("other keys must not wait: %v", err)
	}
	other()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	unlock()
	if l.size() != 0 {
		t.Errorf("expected no locks left, got %d", l.size())
	}
	again, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
