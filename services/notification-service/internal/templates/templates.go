// Package templates turns domain events into patient-facing messages.
package templates

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/repromitra/telehealth/libs/events"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

type Message struct {
	Channel       string
	Recipient     string
	Subject       string
	Body          string
	AppointmentID string
}

// Topics lists the events that produce notifications.
var Topics = []string{
	events.AppointmentBooked,
	events.AppointmentCancelled,
	events.PrescriptionIssued,
	events.ReminderDue,
}

// Render returns the messages for one event. Unknown event types and events
// without a reachable recipient yield no messages.
func Render(eventType string, raw []byte) ([]Message, error) {
	switch eventType {
	case events.AppointmentBooked, events.AppointmentCancelled:
		var p events.AppointmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.PatientPhone == "" {
			return nil, nil
		}
		body := bookedBody(p)
		if eventType == events.AppointmentCancelled {
			body = cancelledBody(p)
		}
		return []Message{{Channel: ChannelSMS, Recipient: p.PatientPhone, Body: body, AppointmentID: p.AppointmentID}}, nil

	case events.ReminderDue:
		var p events.ReminderPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if p.PatientPhone == "" {
			return nil, nil
		}
		return []Message{{Channel: ChannelSMS, Recipient: p.PatientPhone, Body: reminderBody(p), AppointmentID: p.AppointmentID}}, nil

	case events.PrescriptionIssued:
		var p events.PrescriptionIssuedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		var out []Message
		if p.PatientPhone != "" {
			out = append(out, Message{Channel: ChannelSMS, Recipient: p.PatientPhone, Body: prescriptionSMS(p), AppointmentID: p.AppointmentID})
		}
		if p.PatientEmail != "" {
			out = append(out, Message{
				Channel:       ChannelEmail,
				Recipient:     p.PatientEmail,
				Subject:       "Your ReproMitra prescription is ready",
				Body:          prescriptionEmail(p),
				AppointmentID: p.AppointmentID,
			})
		}
		return out, nil
	}
	return nil, nil
}

func doctorLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "your doctor"
	}
	return name
}

func bookedBody(p events.AppointmentPayload) string {
	return fmt.Sprintf("ReproMitra: your video consultation with %s is booked for %s at %s. Ref %s.",
		doctorLabel(p.DoctorName), p.Date, p.Time, shortRef(p.AppointmentID))
}

func cancelledBody(p events.AppointmentPayload) string {
	msg := fmt.Sprintf("ReproMitra: your consultation on %s at %s has been cancelled.", p.Date, p.Time)
	if r := strings.TrimSpace(p.CancelReason); r != "" {
		msg += " Reason: " + r + "."
	}
	return msg
}

func reminderBody(p events.ReminderPayload) string {
	when := "soon"
	switch {
	case p.LeadMinutes >= 24*60 && p.LeadMinutes%(24*60) == 0:
		when = fmt.Sprintf("in %d day(s)", p.LeadMinutes/(24*60))
	case p.LeadMinutes >= 60 && p.LeadMinutes%60 == 0:
		when = fmt.Sprintf("in %d hour(s)", p.LeadMinutes/60)
	case p.LeadMinutes > 0:
		when = fmt.Sprintf("in %d minutes", p.LeadMinutes)
	}
	return fmt.Sprintf("ReproMitra reminder: your video consultation with %s starts %s (%s at %s). Join from your dashboard.",
		doctorLabel(p.DoctorName), when, p.Date, p.Time)
}

func prescriptionSMS(p events.PrescriptionIssuedPayload) string {
	msg := fmt.Sprintf("ReproMitra: %s has issued your prescription. View or download it in the app.", doctorLabel(p.DoctorName))
	if p.FollowUpDate != "" {
		msg += " Follow-up due " + p.FollowUpDate + "."
	}
	return msg
}

func prescriptionEmail(p events.PrescriptionIssuedPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\n%s has issued a prescription for your consultation (ref %s).\n", doctorLabel(p.DoctorName), shortRef(p.AppointmentID))
	b.WriteString("Sign in to ReproMitra to view it or download the PDF.\n")
	if p.FollowUpDate != "" {
		fmt.Fprintf(&b, "\nPlease book a follow-up consultation on or after %s.\n", p.FollowUpDate)
	}
	b.WriteString("\nReproMitra")
	return b.String()
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
