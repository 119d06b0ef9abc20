package consultation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/repromitra/telehealth/libs/events"
	"github.com/repromitra/telehealth/libs/outbox"
	"github.com/repromitra/telehealth/libs/rpc/bookingrpc"
	"github.com/repromitra/telehealth/libs/session"
	"github.com/repromitra/telehealth/services/consultation-service/internal/jitsi"
	"github.com/repromitra/telehealth/services/consultation-service/internal/rooms"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrForbidden    = errors.New("not a participant")
	ErrInvalidState = errors.New("appointment is not open for consultation")
	ErrDependency   = errors.New("booking service unavailable")
)

const statusScheduled = "scheduled"

type Appointments interface {
	GetAppointment(ctx context.Context, id string) (bookingrpc.Appointment, error)
	CompleteAppointment(ctx context.Context, id, actorID string) (bookingrpc.Appointment, error)
}

// Store persists session open/close times. Closed writes the close event in
// the same transaction.
type Store interface {
	Opened(ctx context.Context, appointmentID, room, userID string) error
	Closed(ctx context.Context, appointmentID, room, userID string, evt outbox.Event) error
}

type Config struct {
	Domain string
}

type Service struct {
	appts  Appointments
	rooms  *rooms.Manager
	tokens *jitsi.Signer
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the consultation flow. tokens may be nil when the Jitsi
// deployment does not require JWT auth.
func NewService(appts Appointments, roomManager *rooms.Manager, tokens *jitsi.Signer, store Store, cfg Config, logger *slog.Logger) *Service {
	if cfg.Domain == "" {
		cfg.Domain = "meet.jit.si"
	}
	return &Service{
		appts:  appts,
		rooms:  roomManager,
		tokens: tokens,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func RoomName(appointmentID string) string {
	return "ReproMitra-" + appointmentID
}

type JoinInfo struct {
	Domain          string         `json:"domain"`
	RoomName        string         `json:"room_name"`
	DisplayName     string         `json:"display_name"`
	JWT             string         `json:"jwt,omitempty"`
	Config          map[string]any `json:"config"`
	InterfaceConfig map[string]any `json:"interface_config"`
}

func (s *Service) Join(ctx context.Context, sess session.Session, appointmentID string) (JoinInfo, error) {
	appt, err := s.authorize(ctx, sess, appointmentID)
	if err != nil {
		return JoinInfo{}, err
	}
	if appt.Status != statusScheduled {
		return JoinInfo{}, fmt.Errorf("%w: status is %s", ErrInvalidState, appt.Status)
	}

	room := RoomName(appt.ID)
	lease, err := s.rooms.Acquire(ctx, room, sess.UserID)
	if err != nil {
		return JoinInfo{}, fmt.Errorf("acquire room: %w", err)
	}
	defer lease.Release(ctx)

	if err := s.store.Opened(ctx, appt.ID, room, sess.UserID); err != nil {
		return JoinInfo{}, fmt.Errorf("record session: %w", err)
	}

	info := JoinInfo{
		Domain:          s.cfg.Domain,
		RoomName:        room,
		DisplayName:     sess.DisplayName(),
		Config:          roomConfig(),
		InterfaceConfig: interfaceConfig(),
	}
	if s.tokens != nil {
		info.JWT, err = s.tokens.Sign(room, jitsi.User{
			ID:        sess.UserID,
			Name:      info.DisplayName,
			Moderator: sess.UserID == appt.DoctorID,
		}, s.now())
		if err != nil {
			return JoinInfo{}, fmt.Errorf("sign room token: %w", err)
		}
	}
	lease.Keep()
	return info, nil
}

func (s *Service) Leave(ctx context.Context, sess session.Session, appointmentID string) error {
	appt, err := s.authorize(ctx, sess, appointmentID)
	if err != nil {
		return err
	}
	return s.rooms.Leave(ctx, RoomName(appt.ID), sess.UserID)
}

type CloseResult struct {
	Status   string `json:"status"`
	Redirect string `json:"redirect"`
}

// Close ends the consultation: the room is emptied whatever happens next and
// the appointment is completed through booking.
func (s *Service) Close(ctx context.Context, sess session.Session, appointmentID string) (CloseResult, error) {
	appt, err := s.authorize(ctx, sess, appointmentID)
	if err != nil {
		return CloseResult{}, err
	}
	room := RoomName(appt.ID)
	defer func() {
		if err := s.rooms.Close(context.WithoutCancel(ctx), room); err != nil {
			s.logger.Warn("room cleanup failed", "room", room, "err", err)
		}
	}()

	completed, err := s.appts.CompleteAppointment(ctx, appt.ID, sess.UserID)
	if err != nil {
		return CloseResult{}, translate(err)
	}

	closedAt := s.now().UTC()
	evt, err := outbox.NewEvent("consultation", appt.ID, events.ConsultationClosed, events.ConsultationClosedPayload{
		AppointmentID: appt.ID,
		RoomName:      room,
		ClosedBy:      sess.UserID,
		ClosedAt:      closedAt.Format(time.RFC3339),
	})
	if err != nil {
		return CloseResult{}, err
	}
	if err := s.store.Closed(ctx, appt.ID, room, sess.UserID, evt); err != nil {
		return CloseResult{}, fmt.Errorf("record close: %w", err)
	}
	return CloseResult{Status: completed.Status, Redirect: "/prescription/" + appt.ID}, nil
}

func (s *Service) authorize(ctx context.Context, sess session.Session, appointmentID string) (bookingrpc.Appointment, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return bookingrpc.Appointment{}, ErrNotFound
	}
	appt, err := s.appts.GetAppointment(ctx, appointmentID)
	if err != nil {
		return bookingrpc.Appointment{}, translate(err)
	}
	if !sess.IsParticipant(appt.PatientID, appt.DoctorID) {
		return bookingrpc.Appointment{}, ErrForbidden
	}
	return appt, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, bookingrpc.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, bookingrpc.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, bookingrpc.ErrInvalidState):
		return ErrInvalidState
	default:
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
}

func roomConfig() map[string]any {
	return map[string]any{
		"startWithAudioMuted":     false,
		"startWithVideoMuted":     false,
		"enableClosePage":         true,
		"disableDeepLinking":      true,
		"prejoinPageEnabled":      false,
		"enableNoAudioDetection":  true,
		"enableNoisyMicDetection": true,
		"requireDisplayName":      true,
		"startScreenSharing":      false,
		"enableEmailInStats":      false,
	}
}

func interfaceConfig() map[string]any {
	return map[string]any{
		"SHOW_JITSI_WATERMARK":             false,
		"SHOW_WATERMARK_FOR_GUESTS":        false,
		"DISABLE_JOIN_LEAVE_NOTIFICATIONS": true,
		"SHOW_CHROME_EXTENSION_BANNER":     false,
		"MOBILE_APP_PROMO":                 false,
		"HIDE_INVITE_MORE_HEADER":          true,
		"TOOLBAR_BUTTONS": []string{
			"microphone", "camera", "closedcaptions", "desktop", "fullscreen",
			"fodeviceselection", "hangup", "profile", "chat", "settings",
			"raisehand", "videoquality", "filmstrip", "tileview",
			"videobackgroundblur", "help", "mute-everyone",
		},
	}
}
