package outbox

import (
	"context"
	"testing"

	"github.com/repromitra/telehealth/libs/kafkax"
)

func TestToMessageCarriesEventMeta(t *testing.T) {
	msg := toMessage(context.Background(), Record{
		ID:          7,
		EventID:     "evt-7",
		AggregateID: "appt-1",
		EventType:   "booking.appointment.booked.v1",
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
	})
	if msg.Topic != "booking.appointment.booked.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message routing: topic=%s key=%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-7" || meta.EventType != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestNewEventMarshalsPayload(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "booking.appointment.cancelled.v1", map[string]string{"reason": "sick"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if string(evt.Payload) != `{"reason":"sick"}` {
		t.Fatalf("unexpected payload %s", evt.Payload)
	}
}
