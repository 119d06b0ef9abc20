package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/consultation-service/internal/consultation"
)

type Consultations interface {
	Join(ctx context.Context, sess session.Session, appointmentID string) (consultation.JoinInfo, error)
	Leave(ctx context.Context, sess session.Session, appointmentID string) error
	Close(ctx context.Context, sess session.Session, appointmentID string) (consultation.CloseResult, error)
}

type Handler struct {
	svc    Consultations
	logger *slog.Logger
}

func New(svc Consultations, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/consultations/{appointmentId}/join", session.Require(http.HandlerFunc(h.Join)))
	mux.Handle("POST /api/v1/consultations/{appointmentId}/leave", session.Require(http.HandlerFunc(h.Leave)))
	mux.Handle("POST /api/v1/consultations/{appointmentId}/close", session.Require(http.HandlerFunc(h.Close)))
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	info, err := h.svc.Join(r.Context(), sess, r.PathValue("appointmentId"))
	if err != nil {
		h.writeError(w, err, "failed to join consultation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := h.svc.Leave(r.Context(), sess, r.PathValue("appointmentId")); err != nil {
		h.writeError(w, err, "failed to leave consultation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	res, err := h.svc.Close(r.Context(), sess, r.PathValue("appointmentId"))
	if err != nil {
		h.writeError(w, err, "failed to close consultation")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, consultation.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, consultation.ErrForbidden):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, consultation.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, consultation.ErrDependency):
		h.logger.Warn("consultation dependency failure", "err", err)
		http.Error(w, "booking service unavailable", http.StatusBadGateway)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
