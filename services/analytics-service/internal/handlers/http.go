package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/analytics-service/internal/metrics"
)

const maxDays = 90

type Metrics interface {
	DoctorDays(ctx context.Context, doctorID string, from, to time.Time) ([]metrics.DoctorDay, error)
}

type Handler struct {
	store  Metrics
	logger *slog.Logger
	now    func() time.Time
}

func New(store Metrics, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/metrics/me", session.Require(http.HandlerFunc(h.Mine)))
}

type summary struct {
	From          string              `json:"from"`
	To            string              `json:"to"`
	Booked        int                 `json:"booked"`
	Cancelled     int                 `json:"cancelled"`
	Completed     int                 `json:"completed"`
	Prescriptions int                 `json:"prescriptions"`
	Days          []metrics.DoctorDay `json:"days"`
}

// Mine returns the calling doctor's daily activity for the last ?days days.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if !sess.IsDoctor() {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDays {
			http.Error(w, "days must be between 1 and 90", http.StatusBadRequest)
			return
		}
		days = n
	}
	to := h.now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	rows, err := h.store.DoctorDays(r.Context(), sess.UserID, from, to)
	if err != nil {
		h.logger.Error("failed to load metrics", "err", err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	out := summary{From: from.Format("2006-01-02"), To: to.Format("2006-01-02"), Days: rows}
	for _, d := range rows {
		out.Booked += d.Booked
		out.Cancelled += d.Cancelled
		out.Completed += d.Completed
		out.Prescriptions += d.Prescriptions
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
