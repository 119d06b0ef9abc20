package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/directory-service/internal/directory"
	"github.com/repromitra/telehealth/services/directory-service/internal/model"
)

type Directory interface {
	Search(ctx context.Context, f directory.Filter) (directory.Listing, error)
	Doctor(ctx context.Context, id string) (model.Doctor, error)
	Profile(ctx context.Context, sess session.Session) (directory.Profile, error)
	UpdatePatientProfile(ctx context.Context, sess session.Session, p model.PatientProfile) (model.PatientProfile, error)
	UpdateDoctorProfile(ctx context.Context, sess session.Session, u directory.DoctorUpdate) (model.Doctor, error)
}

type Handler struct {
	dir    Directory
	logger *slog.Logger
}

func New(dir Directory, logger *slog.Logger) *Handler {
	return &Handler{dir: dir, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/doctors", h.ListDoctors)
	mux.HandleFunc("GET /api/v1/doctors/{id}", h.GetDoctor)
	mux.Handle("GET /api/v1/profile", session.Require(http.HandlerFunc(h.GetProfile)))
	mux.Handle("PUT /api/v1/profile", session.Require(http.HandlerFunc(h.UpdateProfile)))
}

func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := h.dir.Search(r.Context(), directory.Filter{
		Query:          q.Get("q"),
		Specialization: q.Get("specialization"),
		Language:       q.Get("language"),
	})
	if err != nil {
		h.writeError(w, err, "failed to list doctors")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing)
}

func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	d, err := h.dir.Doctor(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load doctor")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	p, err := h.dir.Profile(r.Context(), sess)
	if err != nil {
		h.writeError(w, err, "failed to load profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

type patientProfileRequest struct {
	Age               *int                   `json:"age"`
	Gender            string                 `json:"gender"`
	PreferredLanguage string                 `json:"preferred_language"`
	MedicalHistory    string                 `json:"medical_history"`
	Allergies         string                 `json:"allergies"`
	Medications       string                 `json:"medications"`
	EmergencyContact  model.EmergencyContact `json:"emergency_contact"`
}

type doctorProfileRequest struct {
	Name              string   `json:"name"`
	Bio               string   `json:"bio"`
	Languages         []string `json:"languages"`
	AcceptingPatients *bool    `json:"accepting_patients"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	if sess.IsDoctor() {
		var req doctorProfileRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d, err := h.dir.UpdateDoctorProfile(r.Context(), sess, directory.DoctorUpdate{
			Name:              req.Name,
			Bio:               req.Bio,
			Languages:         req.Languages,
			AcceptingPatients: req.AcceptingPatients,
		})
		if err != nil {
			h.writeError(w, err, "failed to update profile")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, directory.Profile{Role: session.RoleDoctor, Doctor: &d})
		return
	}

	var req patientProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.dir.UpdatePatientProfile(r.Context(), sess, model.PatientProfile{
		Age:               req.Age,
		Gender:            req.Gender,
		PreferredLanguage: req.PreferredLanguage,
		MedicalHistory:    req.MedicalHistory,
		Allergies:         req.Allergies,
		Medications:       req.Medications,
		EmergencyContact:  req.EmergencyContact,
	})
	if err != nil {
		h.writeError(w, err, "failed to update profile")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, directory.Profile{Role: session.RolePatient, Patient: &p})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, directory.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, directory.ErrForbidden):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
