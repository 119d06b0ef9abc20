package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/booking-service/internal/booking"
	"github.com/repromitra/telehealth/services/booking-service/internal/model"
)

// Bookings is the subset of booking.Service the HTTP layer needs.
type Bookings interface {
	Slots(ctx context.Context, doctorID, date string) ([]string, error)
	Submit(ctx context.Context, sess session.Session, req booking.SubmitRequest) (model.Appointment, bool, error)
	List(ctx context.Context, sess session.Session, limit int) ([]booking.DashboardItem, error)
	Get(ctx context.Context, sess session.Session, id string) (model.Appointment, error)
	Cancel(ctx context.Context, sess session.Session, id, reason string) (model.Appointment, error)
}

type BookingHandler struct {
	bookings Bookings
	logger   *slog.Logger
}

func NewBookingHandler(bookings Bookings, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// Register mounts the booking routes on mux. Private routes expect gateway
// identity headers.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/public/slots", h.Slots)
	mux.Handle("POST /api/v1/appointments", session.Require(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/v1/appointments", session.Require(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/v1/appointments/{id}", session.Require(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", session.Require(http.HandlerFunc(h.Cancel)))
}

type createBookingRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Reason   string `json:"reason"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID             string `json:"id"`
	PatientID      string `json:"patient_id"`
	DoctorID       string `json:"doctor_id"`
	DoctorName     string `json:"doctor_name,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Reason         string `json:"reason"`
	Status         string `json:"status"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type slotsResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if doctorID == "" || date == "" {
		http.Error(w, "doctor_id and date are required", http.StatusBadRequest)
		return
	}

	slots, err := h.bookings.Slots(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, err, "failed to load available slots")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, replayed, err := h.bookings.Submit(r.Context(), sess, booking.SubmitRequest{
		DoctorID:       req.DoctorID,
		Date:           req.Date,
		Time:           req.Time,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err, "failed to book appointment")
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	items, err := h.bookings.List(r.Context(), sess, limit)
	if err != nil {
		h.writeError(w, err, "failed to list appointments")
		return
	}
	out := make([]appointmentResponse, 0, len(items))
	for _, item := range items {
		resp := toResponse(item.Appointment)
		resp.DoctorName = item.DoctorName
		resp.Specialization = item.Specialization
		out = append(out, resp)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	appt, err := h.bookings.Get(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "failed to load appointment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	var req cancelBookingRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	appt, err := h.bookings.Cancel(r.Context(), sess, r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeError(w, err, "failed to cancel appointment")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrForbidden):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrDoctorNotFound):
		http.Error(w, "doctor not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrSlotUnavailable), errors.Is(err, model.ErrSlotTaken):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrDoctorUnavailable), errors.Is(err, booking.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrIdempotencyMismatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrDependency):
		h.logger.Warn("booking dependency failure", "err", err)
		http.Error(w, "directory service unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error(fallback, "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		Date:         a.DateString(),
		Time:         a.Time,
		Reason:       a.Reason,
		Status:       a.Status,
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
