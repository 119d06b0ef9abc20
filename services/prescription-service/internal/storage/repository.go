package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/services/prescription-service/internal/model"
)

type PrescriptionRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPrescriptionRepository(pool *db.Pool, outboxRepo *outbox.Repository) *PrescriptionRepository {
	return &PrescriptionRepository{pool: pool, outbox: outboxRepo}
}

const selectColumns = `
	appointment_id::text, doctor_id::text, patient_id::text, doctor_name, specialization,
	to_char(appointment_date, 'YYYY-MM-DD'), slot_time, diagnosis, medications, instructions,
	COALESCE(to_char(follow_up_date, 'YYYY-MM-DD'), ''), issued_at`

func (r *PrescriptionRepository) Create(ctx context.Context, p model.Prescription, evt outbox.Event) (model.Prescription, error) {
	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return model.Prescription{}, err
	}

	var out model.Prescription
	err = db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO prescriptions (
				appointment_id, doctor_id, patient_id, doctor_name, specialization,
				appointment_date, slot_time, diagnosis, medications, instructions, follow_up_date, issued_at
			) VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::date, $7, $8, $9::jsonb, $10, NULLIF($11, '')::date, $12)
			RETURNING `+selectColumns,
			p.AppointmentID, p.DoctorID, p.PatientID, p.DoctorName, p.Specialization,
			p.Date, p.Time, p.Diagnosis, meds, p.Instructions, p.FollowUpDate, p.IssuedAt,
		)
		var err error
		if out, err = scanPrescription(row); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if db.IsUniqueViolation(err) {
		return model.Prescription{}, model.ErrExists
	}
	if err != nil {
		return model.Prescription{}, err
	}
	return out, nil
}

func (r *PrescriptionRepository) Get(ctx context.Context, appointmentID string) (model.Prescription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM prescriptions WHERE appointment_id = $1`, appointmentID)
	p, err := scanPrescription(row)
	if db.IsNoRows(err) {
		return model.Prescription{}, model.ErrNotFound
	}
	return p, err
}

func scanPrescription(row pgx.Row) (model.Prescription, error) {
	var (
		p    model.Prescription
		meds []byte
	)
	if err := row.Scan(
		&p.AppointmentID, &p.DoctorID, &p.PatientID, &p.DoctorName, &p.Specialization,
		&p.Date, &p.Time, &p.Diagnosis, &meds, &p.Instructions, &p.FollowUpDate, &p.IssuedAt,
	); err != nil {
		return model.Prescription{}, err
	}
	if err := json.Unmarshal(meds, &p.Medications); err != nil {
		return model.Prescription{}, err
	}
	if p.Medications == nil {
		p.Medications = []model.Medication{}
	}
	return p, nil
}
