package directory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/repromitra/telehealth/libs/validate"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

const DefaultLanguage = "English"

var (
	Genders   = []string{"", "Male", "Female", "Other", "Prefer not to say"}
	Languages = []string{"English", "Hindi", "Odia", "Tamil"}
)

// ValidatePatientProfile trims p and checks the constrained fields.
func ValidatePatientProfile(p model.PatientProfile) (model.PatientProfile, error) {
	p.Gender = strings.TrimSpace(p.Gender)
	p.PreferredLanguage = strings.TrimSpace(p.PreferredLanguage)
	p.MedicalHistory = strings.TrimSpace(p.MedicalHistory)
	p.Allergies = strings.TrimSpace(p.Allergies)
	p.Medications = strings.TrimSpace(p.Medications)
	p.EmergencyContact.Name = strings.TrimSpace(p.EmergencyContact.Name)
	p.EmergencyContact.Relationship = strings.TrimSpace(p.EmergencyContact.Relationship)
	p.EmergencyContact.Phone = validate.NormalizePhone(p.EmergencyContact.Phone)

	if p.Age != nil && (*p.Age < 0 || *p.Age > 130) {
		return p, fmt.Errorf("%w: age must be between 0 and 130", ErrValidation)
	}
	if !slices.Contains(Genders, p.Gender) {
		return p, fmt.Errorf("%w: unsupported gender", ErrValidation)
	}
	if p.PreferredLanguage == "" {
		p.PreferredLanguage = DefaultLanguage
	}
	if !slices.Contains(Languages, p.PreferredLanguage) {
		return p, fmt.Errorf("%w: unsupported preferred_language", ErrValidation)
	}
	if p.EmergencyContact.Phone != "" && !validate.E164(p.EmergencyContact.Phone) {
		return p, fmt.Errorf("%w: emergency contact phone must be E.164", ErrValidation)
	}
	return p, nil
}

// DoctorUpdate is what a doctor may change about their own listing.
type DoctorUpdate struct {
	Name              string
	Bio               string
	Languages         []string
	AcceptingPatients *bool
}

func (u DoctorUpdate) applyTo(d model.Doctor) (model.Doctor, error) {
	if name := strings.TrimSpace(u.Name); name != "" {
		d.Name = name
	}
	d.Bio = strings.TrimSpace(u.Bio)
	if u.Languages != nil {
		langs := make([]string, 0, len(u.Languages))
		for _, l := range u.Languages {
			if l = strings.TrimSpace(l); l != "" && !slices.Contains(langs, l) {
				langs = append(langs, l)
			}
		}
		if len(langs) == 0 {
			return d, fmt.Errorf("%w: at least one language is required", ErrValidation)
		}
		d.Languages = langs
	}
	if u.AcceptingPatients != nil {
		d.AcceptingPatients = *u.AcceptingPatients
	}
	return d, nil
}
