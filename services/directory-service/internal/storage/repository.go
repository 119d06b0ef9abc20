package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

const doctorColumns = `id::text, name, specialization, languages, experience_years, gender, bio,
	photo_url, verified, accepting_patients, updated_at`

func (r *Repository) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id))
}

func (r *Repository) UpdateDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET name = $2,
			bio = $3,
			languages = $4,
			accepting_patients = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Bio, d.Languages, d.AcceptingPatients,
	))
}

func scanDoctor(row pgx.Row) (model.Doctor, error) {
	var d model.Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.Languages,
		&d.ExperienceYears,
		&d.Gender,
		&d.Bio,
		&d.PhotoURL,
		&d.Verified,
		&d.AcceptingPatients,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Doctor{}, model.ErrNotFound
	}
	return d, err
}

const profileColumns = `user_id::text, age, gender, preferred_language, medical_history, allergies,
	medications, emergency_contact_name, emergency_contact_relationship, emergency_contact_phone, updated_at`

func (r *Repository) GetPatientProfile(ctx context.Context, userID string) (model.PatientProfile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM patient_profiles WHERE user_id = $1`, userID))
}

func (r *Repository) UpsertPatientProfile(ctx context.Context, p model.PatientProfile) (model.PatientProfile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `
		INSERT INTO patient_profiles (
			user_id, age, gender, preferred_language, medical_history, allergies, medications,
			emergency_contact_name, emergency_contact_relationship, emergency_contact_phone
		)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE
		SET age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			preferred_language = EXCLUDED.preferred_language,
			medical_history = EXCLUDED.medical_history,
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_relationship = EXCLUDED.emergency_contact_relationship,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			updated_at = now()
		RETURNING `+profileColumns,
		p.UserID, p.Age, p.Gender, p.PreferredLanguage, p.MedicalHistory, p.Allergies, p.Medications,
		p.EmergencyContact.Name, p.EmergencyContact.Relationship, p.EmergencyContact.Phone,
	))
}

func scanProfile(row pgx.Row) (model.PatientProfile, error) {
	var p model.PatientProfile
	err := row.Scan(
		&p.UserID,
		&p.Age,
		&p.Gender,
		&p.PreferredLanguage,
		&p.MedicalHistory,
		&p.Allergies,
		&p.Medications,
		&p.EmergencyContact.Name,
		&p.EmergencyContact.Relationship,
		&p.EmergencyContact.Phone,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PatientProfile{}, model.ErrNotFound
	}
	return p, err
}
