package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/prescription-service/internal/model"
	"github.com/repromitra/telehealth/services/prescription-service/internal/pdf"
	"github.com/repromitra/telehealth/services/prescription-service/internal/prescriptions"
)

type Prescriptions interface {
	Issue(ctx context.Context, sess session.Session, appointmentID string, d prescriptions.Draft) (model.Prescription, error)
	Get(ctx context.Context, sess session.Session, appointmentID string) (model.Prescription, error)
}

type Handler struct {
	svc    Prescriptions
	logger *slog.Logger
}

func New(svc Prescriptions, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/prescriptions/{appointmentId}", session.Require(http.HandlerFunc(h.Issue)))
	mux.Handle("GET /api/v1/prescriptions/{appointmentId}", session.Require(http.HandlerFunc(h.Get)))
	mux.Handle("GET /api/v1/prescriptions/{appointmentId}/pdf", session.Require(http.HandlerFunc(h.PDF)))
}

type issueRequest struct {
	Diagnosis    string             `json:"diagnosis"`
	Medications  []model.Medication `json:"medications"`
	Instructions string             `json:"instructions"`
	FollowUpDate string             `json:"follow_up_date"`
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, _ := session.FromContext(r.Context())
	p, err := h.svc.Issue(r.Context(), sess, r.PathValue("appointmentId"), prescriptions.Draft{
		Diagnosis:    req.Diagnosis,
		Medications:  req.Medications,
		Instructions: req.Instructions,
		FollowUpDate: req.FollowUpDate,
	})
	if err != nil {
		h.writeError(w, err, "failed to issue prescription")
		return
	}
	h.logger.Info("prescription issued", "appointment_id", p.AppointmentID, "medications", len(p.Medications))
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	p, err := h.svc.Get(r.Context(), sess, r.PathValue("appointmentId"))
	if err != nil {
		h.writeError(w, err, "failed to load prescription")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	p, err := h.svc.Get(r.Context(), sess, r.PathValue("appointmentId"))
	if err != nil {
		h.writeError(w, err, "failed to load prescription")
		return
	}
	var buf bytes.Buffer
	if err := pdf.Render(&buf, p); err != nil {
		h.logger.Error("render prescription pdf", "appointment_id", p.AppointmentID, "err", err)
		http.Error(w, "failed to render prescription", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="prescription-`+p.AppointmentID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, prescriptions.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, prescriptions.ErrForbidden):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "prescription not found", http.StatusNotFound)
	case errors.Is(err, model.ErrExists):
		http.Error(w, "prescription already issued", http.StatusConflict)
	case errors.Is(err, prescriptions.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, prescriptions.ErrDependency):
		h.logger.Warn("prescription dependency failure", "err", err)
		http.Error(w, "upstream service unavailable", http.StatusBadGateway)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
