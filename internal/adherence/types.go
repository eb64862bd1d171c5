// Package adherence expands prescriptions into dated dosing schedules and
// reconciles them against the dose ledger. Everything here is a pure
// function of its inputs; no wall clock or storage is touched.
package adherence

import (
	"encoding/json"
	"strings"
	"time"
)

// DoseStatus is the outcome recorded in a dose event.
type DoseStatus string

const (
	DoseTaken  DoseStatus = "Taken"
	DoseMissed DoseStatus = "Missed"
)

// ParseDoseStatus accepts Taken or Missed in any case.
func ParseDoseStatus(s string) (DoseStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "taken":
		return DoseTaken, true
	case "missed":
		return DoseMissed, true
	}
	return "", false
}

// ScheduleStatus is the resolved state of a single schedule item.
type ScheduleStatus string

const (
	StatusPending  ScheduleStatus = "pending"
	StatusTaken    ScheduleStatus = "taken"
	StatusMissed   ScheduleStatus = "missed"
	StatusUpcoming ScheduleStatus = "upcoming"
)

// Treatment is the scheduling view of a prescription line.
type Treatment struct {
	ID           string
	Medication   string
	Dosage       string
	StartDate    time.Time
	ScheduleDays Weekdays
}

// DoseEvent is one ledger entry. Date is the calendar date of Timestamp in
// the clinic's time zone and is fixed when the event is appended.
type DoseEvent struct {
	ID         string
	PatientID  string
	Medication string
	Status     DoseStatus
	Timestamp  time.Time
	Date       time.Time
}

// ScheduleItem is one expected dosing occasion.
type ScheduleItem struct {
	TreatmentID  string         `json:"treatment_id"`
	Medication   string         `json:"medication"`
	Dosage       string         `json:"dosage"`
	Date         time.Time      `json:"-"`
	IsToday      bool           `json:"is_today"`
	IsFuture     bool           `json:"is_future"`
	Status       ScheduleStatus `json:"status"`
	Overdue      bool           `json:"overdue"`
	ScheduleDays Weekdays       `json:"schedule_days"`
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (s ScheduleItem) MarshalJSON() ([]byte, error) {
	type alias ScheduleItem
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(s), Date: FormatDate(s.Date)})
}

// MarshalJSON renders weekday names; the every-day set becomes [].
func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := w.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// MissedDay is a single date on which a medication resolved to missed.
type MissedDay struct {
	Date       time.Time
	Medication string
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (m MissedDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date       string `json:"date"`
		Medication string `json:"medication"`
	}{FormatDate(m.Date), m.Medication})
}

// MissedDayInfo summarises missed doses for one medication.
type MissedDayInfo struct {
	ScheduledDays Weekdays    `json:"scheduled_days"`
	MissedDays    []MissedDay `json:"missed_days"`
	TotalMissed   int         `json:"total_missed"`
}

// Result is the output of Compute.
type Result struct {
	Percentage   float64
	TakenCount   int
	MissedCount  int
	PendingCount int
	MissedDays   map[string]MissedDayInfo
}
