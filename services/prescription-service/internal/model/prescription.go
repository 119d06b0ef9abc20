package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("prescription not found")
	ErrExists   = errors.New("prescription already issued")
)

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// Prescription is issued once per completed appointment. Date and FollowUpDate
// are YYYY-MM-DD; FollowUpDate is empty when no follow-up is planned.
type Prescription struct {
	AppointmentID  string       `json:"appointment_id"`
	DoctorID       string       `json:"doctor_id"`
	PatientID      string       `json:"patient_id"`
	DoctorName     string       `json:"doctor_name"`
	Specialization string       `json:"specialization"`
	Date           string       `json:"date"`
	Time           string       `json:"time"`
	Diagnosis      string       `json:"diagnosis"`
	Medications    []Medication `json:"medications"`
	Instructions   string       `json:"instructions"`
	FollowUpDate   string       `json:"follow_up_date,omitempty"`
	IssuedAt       time.Time    `json:"issued_at"`
}
