package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

type Store interface {
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	GetDoctor(ctx context.Context, id string) (model.Doctor, error)
	UpdateDoctor(ctx context.Context, d model.Doctor) (model.Doctor, error)
	GetPatientProfile(ctx context.Context, userID string) (model.PatientProfile, error)
	UpsertPatientProfile(ctx context.Context, p model.PatientProfile) (model.PatientProfile, error)
}

// Cache holds the full doctor list. A miss is (nil, false, nil).
type Cache interface {
	Doctors(ctx context.Context) ([]model.Doctor, bool, error)
	StoreDoctors(ctx context.Context, doctors []model.Doctor) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func (s *Service) Search(ctx context.Context, f Filter) (Listing, error) {
	all, err := s.allDoctors(ctx)
	if err != nil {
		return Listing{}, err
	}
	return Apply(all, f), nil
}

func (s *Service) allDoctors(ctx context.Context) ([]model.Doctor, error) {
	if s.cache != nil {
		doctors, ok, err := s.cache.Doctors(ctx)
		if err != nil {
			s.logger.Warn("doctor cache read failed", "err", err)
		} else if ok {
			return doctors, nil
		}
	}
	doctors, err := s.store.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.StoreDoctors(ctx, doctors); err != nil {
			s.logger.Warn("doctor cache write failed", "err", err)
		}
	}
	return doctors, nil
}

// Doctor looks up one listing. Ids that are not UUIDs cannot exist.
func (s *Service) Doctor(ctx context.Context, id string) (model.Doctor, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return model.Doctor{}, model.ErrNotFound
	}
	return s.store.GetDoctor(ctx, parsed.String())
}

// Profile is either a patient profile or, for doctors, their listing.
type Profile struct {
	Role    string                `json:"role"`
	Patient *model.PatientProfile `json:"patient,omitempty"`
	Doctor  *model.Doctor         `json:"doctor,omitempty"`
}

func (s *Service) Profile(ctx context.Context, sess session.Session) (Profile, error) {
	if sess.IsDoctor() {
		d, err := s.store.GetDoctor(ctx, sess.UserID)
		if err != nil {
			return Profile{}, err
		}
		return Profile{Role: session.RoleDoctor, Doctor: &d}, nil
	}
	p, err := s.store.GetPatientProfile(ctx, sess.UserID)
	if errors.Is(err, model.ErrNotFound) {
		p = model.PatientProfile{UserID: sess.UserID, PreferredLanguage: DefaultLanguage}
	} else if err != nil {
		return Profile{}, err
	}
	return Profile{Role: session.RolePatient, Patient: &p}, nil
}

func (s *Service) UpdatePatientProfile(ctx context.Context, sess session.Session, p model.PatientProfile) (model.PatientProfile, error) {
	if sess.IsDoctor() {
		return model.PatientProfile{}, fmt.Errorf("%w: doctors update their listing", ErrForbidden)
	}
	p.UserID = sess.UserID
	p, err := ValidatePatientProfile(p)
	if err != nil {
		return model.PatientProfile{}, err
	}
	return s.store.UpsertPatientProfile(ctx, p)
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, sess session.Session, u DoctorUpdate) (model.Doctor, error) {
	if !sess.IsDoctor() {
		return model.Doctor{}, ErrForbidden
	}
	current, err := s.store.GetDoctor(ctx, sess.UserID)
	if err != nil {
		return model.Doctor{}, err
	}
	next, err := u.applyTo(current)
	if err != nil {
		return model.Doctor{}, err
	}
	saved, err := s.store.UpdateDoctor(ctx, next)
	if err != nil {
		return model.Doctor{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("doctor cache invalidation failed", "err", err)
		}
	}
	return saved, nil
}
