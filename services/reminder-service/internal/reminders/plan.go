// Package reminders schedules consultation reminders from booking events and
// publishes them when they fall due.
package reminders

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/repromitra/telehealth/libs/events"
)

const startLayout = "2006-01-02 15:04"

var ErrInvalidAppointment = errors.New("appointment payload has no usable start time")

type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	Payload        events.ReminderPayload
	RemindAt       time.Time
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// Plan returns one job per lead time that is still in the future. Date and
// Time are wall-clock values in loc.
func Plan(p events.AppointmentPayload, loc *time.Location, leads []time.Duration, now time.Time) ([]Job, error) {
	if p.AppointmentID == "" {
		return nil, ErrInvalidAppointment
	}
	startsAt, err := time.ParseInLocation(startLayout, p.Date+" "+p.Time, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAppointment, err)
	}

	var out []Job
	for _, lead := range leads {
		if lead <= 0 {
			continue
		}
		remindAt := startsAt.Add(-lead)
		if !remindAt.After(now) {
			continue
		}
		minutes := int(lead / time.Minute)
		out = append(out, Job{
			IdempotencyKey: p.AppointmentID + "|" + strconv.Itoa(minutes),
			AppointmentID:  p.AppointmentID,
			RemindAt:       remindAt.UTC(),
			Payload: events.ReminderPayload{
				AppointmentID: p.AppointmentID,
				PatientID:     p.PatientID,
				DoctorID:      p.DoctorID,
				DoctorName:    p.DoctorName,
				PatientPhone:  p.PatientPhone,
				Date:          p.Date,
				Time:          p.Time,
				StartsAt:      startsAt.Format(time.RFC3339),
				LeadMinutes:   minutes,
			},
		})
	}
	return out, nil
}
