package models

import (
	"encoding/json"
	"time"

	"theralink-server/internal/adherence"
)

// DoseLog is an append-only ledger entry. Rows are never updated or
// deleted; the latest RecordedAt per patient, medication and DoseDate is
// authoritative for that day.
type DoseLog struct {
	BaseModel
	// Seq is assigned by the database; among entries with the same
	// RecordedAt the higher Seq was appended later.
	Seq        uint64               `gorm:"autoIncrement;uniqueIndex;<-:false" json:"-"`
	PatientID  string               `gorm:"size:36;not null;index:idx_dose_logs_patient_med_date,priority:1" json:"patient_id"`
	Medication string               `gorm:"size:255;not null;index:idx_dose_logs_patient_med_date,priority:2" json:"medication"`
	Status     adherence.DoseStatus `gorm:"size:20;not null" json:"status"`
	RecordedAt time.Time            `gorm:"not null" json:"timestamp"`
	DoseDate   time.Time            `gorm:"type:date;not null;index:idx_dose_logs_patient_med_date,priority:3" json:"-"`
}

// Event converts the row into the engine's view.
func (d DoseLog) Event() adherence.DoseEvent {
	return adherence.DoseEvent{
		ID:         d.ID,
		PatientID:  d.PatientID,
		Medication: d.Medication,
		Status:     d.Status,
		Timestamp:  d.RecordedAt,
		Date:       adherence.Date(d.DoseDate.Date()),
	}
}

// Events converts a slice of rows.
func Events(logs []DoseLog) []adherence.DoseEvent {
	out := make([]adherence.DoseEvent, len(logs))
	for i, l := range logs {
		out[i] = l.Event()
	}
	return out
}

// MarshalJSON adds the calendar date the dose counts towards.
func (d DoseLog) MarshalJSON() ([]byte, error) {
	type alias DoseLog
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(d), Date: adherence.FormatDate(d.DoseDate)})
}
