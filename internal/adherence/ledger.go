package adherence

import (
	"strings"
	"time"
)

// Ledger answers which status is authoritative for a medication on a date.
type Ledger interface {
	StatusOn(patientID, medication string, date time.Time) (DoseStatus, bool)
}

// MedicationKey is the normalised form used to match ledger entries to
// treatments.
func MedicationKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type dayKey struct {
	patient    string
	medication string
	date       time.Time
}

// Snapshot is an immutable, indexed view over a set of dose events.
type Snapshot struct {
	latest map[dayKey]DoseEvent
}

// NewSnapshot indexes events by (patient, medication, date). Where several
// events share a day the one with the latest timestamp wins; equal
// timestamps resolve to the event appearing later in the slice.
func NewSnapshot(events []DoseEvent) *Snapshot {
	s := &Snapshot{latest: make(map[dayKey]DoseEvent, len(events))}
	for _, e := range events {
		k := dayKey{e.PatientID, MedicationKey(e.Medication), normalise(e.Date)}
		if cur, ok := s.latest[k]; ok && cur.Timestamp.After(e.Timestamp) {
			continue
		}
		s.latest[k] = e
	}
	return s
}

// StatusOn implements Ledger.
func (s *Snapshot) StatusOn(patientID, medication string, date time.Time) (DoseStatus, bool) {
	e, ok := s.latest[dayKey{patientID, MedicationKey(medication), normalise(date)}]
	if !ok {
		return "", false
	}
	return e.Status, true
}

// LatestStatus resolves the authoritative status for one day directly from
// a list of events.
func LatestStatus(events []DoseEvent, patientID, medication string, date time.Time) (DoseStatus, bool) {
	return NewSnapshot(events).StatusOn(patientID, medication, date)
}
