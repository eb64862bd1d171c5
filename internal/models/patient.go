package models

import "strings"

// Gender of a patient
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender normalises free-form input such as "Female".
func ParseGender(s string) (Gender, bool) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderMale, GenderFemale, GenderOther:
		return g, true
	}
	return "", false
}

// Patient is the root record; treatments and dose logs refer to it by ID.
type Patient struct {
	BaseModel
	Name      string `gorm:"size:255;not null" json:"name"`
	Age       int    `gorm:"not null" json:"age"`
	Gender    Gender `gorm:"size:20;not null" json:"gender"`
	Condition string `gorm:"type:text" json:"condition"`

	// Relations (not always preloaded)
	Treatments []Treatment `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE" json:"treatments,omitempty"`
	DoseLogs   []DoseLog   `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE" json:"-"`
}
