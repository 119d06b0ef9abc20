// Package metrics folds domain events into daily counters.
package metrics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/repromitra/telehealth/libs/events"
)

// Topics lists every event the aggregator reads.
var Topics = []string{
	events.AppointmentBooked,
	events.AppointmentCancelled,
	events.AppointmentCompleted,
	events.PrescriptionIssued,
	events.NotificationSent,
	events.NotificationFailed,
	events.ReminderFailed,
}

const dayLayout = "2006-01-02"

// DoctorDelta increments one doctor's counters for Day.
type DoctorDelta struct {
	DoctorID      string
	Day           string
	Booked        int
	Cancelled     int
	Completed     int
	Prescriptions int
}

// ChannelDelta increments delivery counters for one channel on Day.
type ChannelDelta struct {
	Day     string
	Channel string
	Sent    int
	Failed  int
}

type Delta struct {
	Doctor  *DoctorDelta
	Channel *ChannelDelta
}

// FromEvent maps an event to the counters it moves. at is the broker
// timestamp, used when the payload carries no date of its own. A zero Delta
// means the event does not count.
func FromEvent(eventType string, raw []byte, at time.Time) (Delta, error) {
	switch eventType {
	case events.AppointmentBooked, events.AppointmentCancelled, events.AppointmentCompleted:
		var p events.AppointmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Delta{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.DoctorID == "" {
			return Delta{}, nil
		}
		d := &DoctorDelta{DoctorID: p.DoctorID, Day: p.Date}
		if _, err := time.Parse(dayLayout, d.Day); err != nil {
			d.Day = at.UTC().Format(dayLayout)
		}
		switch eventType {
		case events.AppointmentBooked:
			d.Booked = 1
		case events.AppointmentCancelled:
			d.Cancelled = 1
		default:
			d.Completed = 1
		}
		return Delta{Doctor: d}, nil

	case events.PrescriptionIssued:
		var p events.PrescriptionIssuedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Delta{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.DoctorID == "" {
			return Delta{}, nil
		}
		day := at.UTC().Format(dayLayout)
		if issued, err := time.Parse(time.RFC3339, p.IssuedAt); err == nil {
			day = issued.UTC().Format(dayLayout)
		}
		return Delta{Doctor: &DoctorDelta{DoctorID: p.DoctorID, Day: day, Prescriptions: 1}}, nil

	case events.NotificationSent, events.NotificationFailed:
		var p events.NotificationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Delta{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.Channel == "" {
			return Delta{}, nil
		}
		c := &ChannelDelta{Day: at.UTC().Format(dayLayout), Channel: p.Channel}
		if eventType == events.NotificationSent {
			c.Sent = 1
		} else {
			c.Failed = 1
		}
		return Delta{Channel: c}, nil

	case events.ReminderFailed:
		return Delta{Channel: &ChannelDelta{Day: at.UTC().Format(dayLayout), Channel: "reminder", Failed: 1}}, nil
	}
	return Delta{}, nil
}
