package model

import (
	"errors"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound  = errors.New("appointment not found")
	ErrSlotTaken = errors.New("time slot already booked")
)

// Appointment is one booked consultation. Date carries no time of day; Time
// is the slot label.
type Appointment struct {
	ID           string
	PatientID    string
	DoctorID     string
	Date         time.Time
	Time         string
	Reason       string
	Status       string
	PatientPhone string
	CancelReason string
	CancelledAt  *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Appointment) DateString() string {
	return a.Date.Format("2006-01-02")
}

func (a Appointment) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}
