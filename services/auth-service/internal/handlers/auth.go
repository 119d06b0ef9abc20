package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/repromitra/telehealth/libs/auth"
	"github.com/repromitra/telehealth/libs/httpx"
	"github.com/repromitra/telehealth/libs/pseudonym"
	"github.com/repromitra/telehealth/libs/validate"
	"github.com/repromitra/telehealth/services/auth-service/internal/audit"
	"github.com/repromitra/telehealth/services/auth-service/internal/otp"
	"github.com/repromitra/telehealth/services/auth-service/internal/sessions"
	"github.com/repromitra/telehealth/services/auth-service/internal/storage"
)

type Users interface {
	SignIn(ctx context.Context, phone string, newPseudonym func() (string, error)) (storage.User, bool, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

type RefreshTokens interface {
	Issue(ctx context.Context, userID string, expiresAt time.Time) (string, error)
	Lookup(ctx context.Context, raw string) (sessions.RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
}

type AuditLog interface {
	Record(ctx context.Context, e audit.Entry) error
	ListForUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error)
}

// Revocations is the access token deny list. It may be nil, in which case
// sign-out only revokes the refresh token.
type Revocations interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthHandler struct {
	signer  TokenSigner
	otp     otp.Provider
	users   Users
	refresh RefreshTokens
	audit   AuditLog
	revoked Revocations
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewAuthHandler(
	signer TokenSigner,
	provider otp.Provider,
	users Users,
	refresh RefreshTokens,
	auditLog AuditLog,
	revoked Revocations,
	cfg Config,
	logger *slog.Logger,
) *AuthHandler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &AuthHandler{
		signer:  signer,
		otp:     provider,
		users:   users,
		refresh: refresh,
		audit:   auditLog,
		revoked: revoked,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/otp/start", h.StartOTP)
	mux.HandleFunc("POST /api/v1/auth/otp/verify", h.VerifyOTP)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("GET /api/v1/auth/audit", h.Audit)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
}

type startRequest struct {
	Phone string `json:"phone"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Pseudonym string `json:"pseudonym"`
	Phone     string `json:"phone"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	NewUser      bool         `json:"new_user"`
	User         userResponse `json:"user"`
}

func (h *AuthHandler) StartOTP(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	phone, ok := parsePhone(req.Phone)
	if !ok {
		http.Error(w, "phone must be in E.164 format", http.StatusBadRequest)
		return
	}
	if err := h.otp.Start(r.Context(), phone); err != nil {
		h.logger.Error("otp start failed", "provider", h.otp.Name(), "err", err)
		http.Error(w, "failed to send verification code", http.StatusBadGateway)
		return
	}
	h.record(r, "", audit.ActionOTPStarted)
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	phone, ok := parsePhone(req.Phone)
	req.Code = strings.TrimSpace(req.Code)
	if !ok || req.Code == "" {
		http.Error(w, "phone and code are required", http.StatusBadRequest)
		return
	}

	approved, err := h.otp.Check(r.Context(), phone, req.Code)
	switch {
	case errors.Is(err, otp.ErrTooManyAttempts):
		h.record(r, "", audit.ActionSignInFailed)
		http.Error(w, "too many attempts, request a new code", http.StatusTooManyRequests)
		return
	case errors.Is(err, otp.ErrNoPendingCode):
		http.Error(w, "code expired or not requested", http.StatusUnauthorized)
		return
	case err != nil:
		h.logger.Error("otp check failed", "provider", h.otp.Name(), "err", err)
		http.Error(w, "failed to verify code", http.StatusBadGateway)
		return
	case !approved:
		h.record(r, "", audit.ActionSignInFailed)
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}

	user, created, err := h.users.SignIn(r.Context(), phone, pseudonym.Generate)
	if err != nil {
		h.logger.Error("sign in failed", "err", err)
		http.Error(w, "failed to sign in", http.StatusInternalServerError)
		return
	}
	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("issue tokens failed", "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	resp.NewUser = created
	h.record(r, user.ID, audit.ActionSignIn)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	record, err := h.refresh.Lookup(r.Context(), req.RefreshToken)
	if errors.Is(err, sessions.ErrNotFound) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("refresh lookup failed", "err", err)
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if !record.Usable(h.now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}
	// Rotation: the old token is spent even if issuing the new pair fails.
	revoked, err := h.refresh.Revoke(r.Context(), record.ID)
	if err != nil {
		h.logger.Error("refresh revoke failed", "err", err)
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}
	if !revoked {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	resp, err := h.issueTokens(r.Context(), user)
	if err != nil {
		h.logger.Error("issue tokens failed", "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	h.record(r, user.ID, audit.ActionTokenRefresh)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Logout revokes the refresh token from the body and, when a bearer token is
// present, denies its jti until expiry. It is idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var userID string
	if token := bearerToken(r); token != "" {
		if claims, err := h.signer.Verify(token); err == nil {
			userID = claims.Subject
			if h.revoked != nil && claims.ExpiresAt != nil {
				if err := h.revoked.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
					h.logger.Error("access token revoke failed", "err", err)
					http.Error(w, "failed to sign out", http.StatusInternalServerError)
					return
				}
			}
		}
	}

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		record, err := h.refresh.Lookup(r.Context(), raw)
		switch {
		case errors.Is(err, sessions.ErrNotFound):
		case err != nil:
			h.logger.Error("refresh lookup failed", "err", err)
			http.Error(w, "failed to sign out", http.StatusInternalServerError)
			return
		default:
			if _, err := h.refresh.Revoke(r.Context(), record.ID); err != nil {
				h.logger.Error("refresh revoke failed", "err", err)
				http.Error(w, "failed to sign out", http.StatusInternalServerError)
				return
			}
			if userID == "" {
				userID = record.UserID
			}
		}
	}

	if userID != "" {
		h.record(r, userID, audit.ActionSignOut)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := h.audit.ListForUser(r.Context(), claims.Subject, limit)
	if err != nil {
		h.logger.Error("audit list failed", "err", err)
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, _ *http.Request) {
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, auth.JWKS{Keys: keys})
}

func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return nil, false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	if h.revoked != nil {
		revoked, err := h.revoked.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			h.logger.Error("revocation check failed", "err", err)
			http.Error(w, "failed to verify token", http.StatusServiceUnavailable)
			return nil, false
		}
		if revoked {
			http.Error(w, "token revoked", http.StatusUnauthorized)
			return nil, false
		}
	}
	return claims, true
}

func (h *AuthHandler) issueTokens(ctx context.Context, user storage.User) (tokenResponse, error) {
	now := h.now()
	access, err := h.signer.Sign(auth.NewClaims(user.ID, user.Role, user.Pseudonym, user.Phone, uuid.NewString(), now, h.cfg.AccessTTL))
	if err != nil {
		return tokenResponse{}, err
	}
	refresh, err := h.refresh.Issue(ctx, user.ID, now.Add(h.cfg.RefreshTTL))
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.cfg.AccessTTL.Seconds()),
		User:         toUserResponse(user),
	}, nil
}

// record writes an audit entry. Audit failures are logged, never surfaced.
func (h *AuthHandler) record(r *http.Request, userID, action string) {
	err := h.audit.Record(r.Context(), audit.Entry{
		UserID:    userID,
		Action:    action,
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("audit record failed", "action", action, "err", err)
	}
}

func toUserResponse(u storage.User) userResponse {
	return userResponse{ID: u.ID, Role: u.Role, Pseudonym: u.Pseudonym, Phone: u.Phone}
}

func parsePhone(raw string) (string, bool) {
	phone := validate.NormalizePhone(raw)
	return phone, validate.E164(phone)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
