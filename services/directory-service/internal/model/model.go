package model

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Doctor struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Specialization    string    `json:"specialization"`
	Languages         []string  `json:"languages"`
	ExperienceYears   int       `json:"experience_years"`
	Gender            string    `json:"gender,omitempty"`
	Bio               string    `json:"bio,omitempty"`
	PhotoURL          string    `json:"photo_url,omitempty"`
	Verified          bool      `json:"verified"`
	AcceptingPatients bool      `json:"accepting_patients"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// PatientProfile is the optional medical context a patient shares with doctors.
// Age is nil until the patient sets it.
type PatientProfile struct {
	UserID            string           `json:"user_id"`
	Age               *int             `json:"age"`
	Gender            string           `json:"gender"`
	PreferredLanguage string           `json:"preferred_language"`
	MedicalHistory    string           `json:"medical_history"`
	Allergies         string           `json:"allergies"`
	Medications       string           `json:"medications"`
	EmergencyContact  EmergencyContact `json:"emergency_contact"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
