package metrics

import (
	"context"
	"time"

	"github.com/repromitra/telehealth/libs/db"
)

type DoctorDay struct {
	Day           string `json:"day"`
	Booked        int    `json:"booked"`
	Cancelled     int    `json:"cancelled"`
	Completed     int    `json:"completed"`
	Prescriptions int    `json:"prescriptions"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Apply(ctx context.Context, d Delta) error {
	if d.Doctor != nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO daily_doctor_metrics (doctor_id, day, booked_count, cancelled_count, completed_count, prescription_count)
			VALUES ($1, $2::date, $3, $4, $5, $6)
			ON CONFLICT (doctor_id, day)
			DO UPDATE SET booked_count = daily_doctor_metrics.booked_count + EXCLUDED.booked_count,
			              cancelled_count = daily_doctor_metrics.cancelled_count + EXCLUDED.cancelled_count,
			              completed_count = daily_doctor_metrics.completed_count + EXCLUDED.completed_count,
			              prescription_count = daily_doctor_metrics.prescription_count + EXCLUDED.prescription_count,
			              updated_at = now()
		`, d.Doctor.DoctorID, d.Doctor.Day, d.Doctor.Booked, d.Doctor.Cancelled, d.Doctor.Completed, d.Doctor.Prescriptions)
		if err != nil {
			return err
		}
	}
	if d.Channel != nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO daily_notification_metrics (day, channel, sent_count, failed_count)
			VALUES ($1::date, $2, $3, $4)
			ON CONFLICT (day, channel)
			DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
			              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
			              updated_at = now()
		`, d.Channel.Day, d.Channel.Channel, d.Channel.Sent, d.Channel.Failed)
		if err != nil {
			return err
		}
	}
	return nil
}

// DoctorDays returns the doctor's counters for [from, to], oldest first.
func (r *Repository) DoctorDays(ctx context.Context, doctorID string, from, to time.Time) ([]DoctorDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), booked_count, cancelled_count, completed_count, prescription_count
		FROM daily_doctor_metrics
		WHERE doctor_id = $1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day
	`, doctorID, from.Format(dayLayout), to.Format(dayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DoctorDay{}
	for rows.Next() {
		var d DoctorDay
		if err := rows.Scan(&d.Day, &d.Booked, &d.Cancelled, &d.Completed, &d.Prescriptions); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
