package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/services/booking-service/internal/booking"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
)

const appointmentColumns = `
	id::text, patient_id::text, doctor_id::text, appointment_date, slot_time, reason, status,
	patient_phone, COALESCE(cancellation_reason, ''), cancelled_at, completed_at, created_at, updated_at`

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

// InTx runs fn in a read-committed transaction and commits when fn returns nil.
func (r *BookingRepository) InTx(ctx context.Context, fn func(booking.Tx) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&bookingTx{tx: tx, outbox: r.outbox})
	})
}

func (r *BookingRepository) BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	return bookedTimes(ctx, r.pool, doctorID, date)
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *BookingRepository) ListForPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, `patient_id = $1`, patientID, limit)
}

func (r *BookingRepository) ListForDoctor(ctx context.Context, doctorID string, limit int) ([]model.Appointment, error) {
	return r.list(ctx, `doctor_id = $1`, doctorID, limit)
}

func (r *BookingRepository) list(ctx context.Context, where, id string, limit int) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+where+`
		ORDER BY appointment_date DESC, slot_time DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func bookedTimes(ctx context.Context, q querier, doctorID string, date time.Time) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE doctor_id = $1
			AND appointment_date = $2::date
			AND status <> 'cancelled'
		ORDER BY slot_time
	`, doctorID, date.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *bookingTx) LockIdempotencyKey(ctx context.Context, patientID, key, fingerprint string) (string, string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (patient_id, idempotency_key, request_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id, idempotency_key) DO NOTHING
	`, patientID, key, fingerprint)
	if err != nil {
		return "", "", err
	}

	var appointmentID, stored string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, ''), request_hash
		FROM booking_idempotency_keys
		WHERE patient_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, patientID, key).Scan(&appointmentID, &stored)
	return appointmentID, stored, err
}

func (t *bookingTx) FinalizeIdempotency(ctx context.Context, patientID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3, updated_at = now()
		WHERE patient_id = $1 AND idempotency_key = $2
	`, patientID, key, appointmentID)
	return err
}

// LockDoctorDay serialises bookings for one doctor and day until commit.
func (t *bookingTx) LockDoctorDay(ctx context.Context, doctorID string, date time.Time) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, doctorID, date.Format("2006-01-02"))
	return err
}

func (t *bookingTx) BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	return bookedTimes(ctx, t.tx, doctorID, date)
}

func (t *bookingTx) Create(ctx context.Context, appt *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, appointment_date, slot_time, reason, status, patient_phone)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		RETURNING id::text, created_at, updated_at
	`, appt.PatientID, appt.DoctorID, appt.DateString(), appt.Time, appt.Reason, appt.Status, appt.PatientPhone).
		Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if IsConflict(err) {
		return model.ErrSlotTaken
	}
	return err
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *bookingTx) Cancel(ctx context.Context, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (t *bookingTx) Complete(ctx context.Context, id string) (time.Time, error) {
	var completedAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
			completed_at = now(),
			updated_at = now()
		WHERE id = $1
		RETURNING completed_at
	`, id).Scan(&completedAt)
	return completedAt, err
}

func (t *bookingTx) AddEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.DoctorID,
		&appt.Date,
		&appt.Time,
		&appt.Reason,
		&appt.Status,
		&appt.PatientPhone,
		&appt.CancelReason,
		&appt.CancelledAt,
		&appt.CompletedAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, err
}

// IsConflict reports a unique violation, which here means the slot index fired.
func IsConflict(err error) bool {
	return db.IsUniqueViolation(err)
}

func IsNotFound(err error) bool {
	return db.IsNoRows(err)
}
