package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"theralink-server/internal/adherence"
)

// Frequency values understood by the schedule view. Other free-text values
// are stored as given.
const (
	FrequencyOnceDaily       = "once-daily"
	FrequencyTwiceDaily      = "twice-daily"
	FrequencyThreeTimesDaily = "three-times-daily"
	FrequencyWeekly          = "weekly"
	FrequencyCustom          = "custom"
)

// Treatment is a prescription line. It is never edited in place; a change
// of dosage or frequency ends one treatment and starts another.
type Treatment struct {
	BaseModel
	// Seq is assigned by the database and orders treatments created within
	// the same clock tick.
	Seq          uint64                      `gorm:"autoIncrement;uniqueIndex;<-:false" json:"-"`
	PatientID    string                      `gorm:"size:36;index;not null" json:"patient_id"`
	Medication   string                      `gorm:"size:255;not null" json:"medication"`
	Dosage       string                      `gorm:"size:255" json:"dosage"`
	Frequency    string                      `gorm:"size:100" json:"frequency"`
	StartDate    time.Time                   `gorm:"type:date;not null" json:"-"`
	ScheduleDays datatypes.JSONSlice[string] `json:"schedule_days"`
}

// Schedule converts the stored row into the engine's view. Schedule days
// are validated on the way in, so unknown names are ignored here.
func (t Treatment) Schedule() adherence.Treatment {
	days, err := adherence.ParseWeekdays(t.ScheduleDays)
	if err != nil {
		days = nil
	}
	return adherence.Treatment{
		ID:           t.ID,
		Medication:   t.Medication,
		Dosage:       t.Dosage,
		StartDate:    adherence.Date(t.StartDate.Date()),
		ScheduleDays: days,
	}
}

// StartDateString renders the start date as YYYY-MM-DD.
func (t Treatment) StartDateString() string {
	return adherence.FormatDate(t.StartDate)
}

// MarshalJSON renders StartDate as YYYY-MM-DD.
func (t Treatment) MarshalJSON() ([]byte, error) {
	type alias Treatment
	return json.Marshal(struct {
		alias
		StartDate string `json:"start_date"`
	}{alias: alias(t), StartDate: t.StartDateString()})
}
