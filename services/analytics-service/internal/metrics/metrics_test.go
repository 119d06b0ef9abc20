package metrics

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/segmentio/kafka-go"
)

var brokerTime = time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestFromEventDoctorCounters(t *testing.T) {
	appt := events.AppointmentPayload{AppointmentID: "a1", DoctorID: "d1", Date: "2026-03-12"}
	cases := []struct {
		topic string
		check func(DoctorDelta) bool
	}{
		{events.AppointmentBooked, func(d DoctorDelta) bool { return d.Booked == 1 && d.Day == "2026-03-12" }},
		{events.AppointmentCancelled, func(d DoctorDelta) bool { return d.Cancelled == 1 }},
		{events.AppointmentCompleted, func(d DoctorDelta) bool { return d.Completed == 1 }},
	}
	for _, tc := range cases {
		d, err := FromEvent(tc.topic, mustJSON(t, appt), brokerTime)
		if err != nil || d.Doctor == nil || !tc.check(*d.Doctor) {
			t.Fatalf("%s: unexpected delta %v %+v", tc.topic, err, d.Doctor)
		}
	}

	d, err := FromEvent(events.PrescriptionIssued, mustJSON(t, events.PrescriptionIssuedPayload{DoctorID: "d1", IssuedAt: "2026-03-11T04:00:00Z"}), brokerTime)
	if err != nil || d.Doctor == nil || d.Doctor.Prescriptions != 1 || d.Doctor.Day != "2026-03-11" {
		t.Fatalf("prescription: %v %+v", err, d.Doctor)
	}
}

func TestFromEventChannels(t *testing.T) {
	d, err := FromEvent(events.NotificationFailed, mustJSON(t, events.NotificationPayload{Channel: "sms"}), brokerTime)
	if err != nil || d.Channel == nil || d.Channel.Failed != 1 || d.Channel.Day != "2026-03-10" {
		t.Fatalf("failed: %v %+v", err, d.Channel)
	}
	d, _ = FromEvent(events.ReminderFailed, []byte(`{}`), brokerTime)
	if d.Channel == nil || d.Channel.Channel != "reminder" {
		t.Fatalf("dlq: %+v", d.Channel)
	}
	if d, _ := FromEvent("auth.user.created.v1", []byte(`{}`), brokerTime); d.Doctor != nil || d.Channel != nil {
		t.Fatalf("unrelated events must not count")
	}
	if _, err := FromEvent(events.AppointmentBooked, []byte(`{`), brokerTime); err == nil {
		t.Fatalf("expected decode error")
	}
}

type memoryStore struct{ applied []Delta }

func (m *memoryStore) Apply(_ context.Context, d Delta) error {
	m.applied = append(m.applied, d)
	return nil
}

func TestAggregatorSkipsEmptyDeltas(t *testing.T) {
	store := &memoryStore{}
	a := NewAggregator(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msgs := []kafka.Message{
		{Topic: events.AppointmentBooked, Value: mustJSON(t, events.AppointmentPayload{DoctorID: "d1", Date: "2026-03-12"}), Time: brokerTime},
		{Topic: events.AppointmentBooked, Value: mustJSON(t, events.AppointmentPayload{}), Time: brokerTime},
		{Topic: events.NotificationSent, Value: []byte("{"), Time: brokerTime},
	}
	for _, m := range msgs {
		if err := a.HandleMessage(context.Background(), m); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected one applied delta, got %+v", store.applied)
	}
}
