// Package events names the Kafka topics exchanged between services and the
// JSON payloads carried on them.
package events

const (
	UserCreated          = "auth.user.created.v1"
	AppointmentBooked    = "booking.appointment.booked.v1"
	AppointmentCancelled = "booking.appointment.cancelled.v1"
	AppointmentCompleted = "booking.appointment.completed.v1"
	ConsultationClosed   = "consultation.session.closed.v1"
	PrescriptionIssued   = "prescription.issued.v1"
	ReminderDue          = "reminder.consultation.due.v1"
	ReminderFailed       = "reminder.consultation.dlq.v1"
	NotificationSent     = "notification.sent.v1"
	NotificationFailed   = "notification.failed.v1"
)

type UserCreatedPayload struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Pseudonym string `json:"pseudonym"`
	CreatedAt string `json:"created_at"`
}

// AppointmentPayload is shared by the booked, cancelled and completed topics.
type AppointmentPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	DoctorName    string `json:"doctor_name,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

type ConsultationClosedPayload struct {
	AppointmentID string `json:"appointment_id"`
	RoomName      string `json:"room_name"`
	ClosedBy      string `json:"closed_by"`
	ClosedAt      string `json:"closed_at"`
}

type PrescriptionIssuedPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	DoctorName    string `json:"doctor_name"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	PatientEmail  string `json:"patient_email,omitempty"`
	FollowUpDate  string `json:"follow_up_date,omitempty"`
	IssuedAt      string `json:"issued_at"`
}

// ReminderPayload announces an upcoming consultation. StartsAt is RFC3339.
type ReminderPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	DoctorName    string `json:"doctor_name,omitempty"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	StartsAt      string `json:"starts_at"`
	LeadMinutes   int    `json:"lead_minutes"`
	Error         string `json:"error,omitempty"`
}

type NotificationPayload struct {
	NotificationID string `json:"notification_id"`
	SourceEventID  string `json:"source_event_id"`
	Channel        string `json:"channel"`
	Recipient      string `json:"recipient"`
	Error          string `json:"error,omitempty"`
}
