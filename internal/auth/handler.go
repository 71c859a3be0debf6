package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/ovaphlow/pitchfork/service-auth/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-auth/internal/token"
	userentity "github.com/ovaphlow/pitchfork/service-auth/internal/user/entity"
)

const maxBodyBytes = 1 << 20

type ctxKey int

const claimsKey ctxKey = iota

// ClaimsFrom returns the access token claims set by RequireAccessToken.
func ClaimsFrom(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*token.Claims)
	return c, ok
}

// Handler exposes the service over JSON.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the endpoints on r. The guard wraps the public credential
// endpoints (login, otp, password reset) and may be nil.
func (h *Handler) Routes(r chi.Router, guard func(http.Handler) http.Handler) {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/social", h.Social)
		r.Post("/verify-otp", h.VerifyOtp)
		r.Post("/resend-otp", h.ResendOtp)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
	})
	r.Post("/refresh", h.Refresh)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAccessToken)
		r.Post("/logout", h.Logout)
		r.Post("/logout-all", h.LogoutAll)
		r.Post("/change-password", h.ChangePassword)
		r.Get("/me", h.Me)
		r.Patch("/fcm-token", h.UpdateFCMToken)
		r.Get("/login-history", h.LoginHistory)
	})
}

// RequireAccessToken rejects requests without a valid bearer access token.
func (h *Handler) RequireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			h.writeError(w, r, newError(KindTokenInvalid, msgAuthorizationMissing))
			return
		}
		claims, err := h.svc.Authenticate(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func bearer(r *http.Request) (string, bool) {
	v := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

// StatusOf maps every error kind to its HTTP status.
func StatusOf(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindAccountLocked:
		return http.StatusLocked
	case KindAccountBlocked, KindAccountUnverified:
		return http.StatusForbidden
	case KindOtpInvalid, KindOtpMismatch:
		return http.StatusBadRequest
	case KindOtpExhausted, KindRateLimited:
		return http.StatusTooManyRequests
	case KindTokenInvalid, KindTokenExpired:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error             Kind   `json:"error"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfter        int    `json:"retry_after,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = internal("unhandled", err)
	}
	status := StatusOf(e.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	body := errorBody{
		Error:             e.Kind,
		Message:           Message(requestLang(r), e),
		RemainingAttempts: e.Remaining,
	}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, body)
}

// RateLimited writes the throttling refusal in the same shape as other errors.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request, retry time.Duration) {
	e := newError(KindRateLimited, msgRateLimited, int(math.Ceil(retry.Seconds())))
	e.RetryAfter = retry
	h.writeError(w, r, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request, key string, extra map[string]any) {
	body := map[string]any{"message": Localize(requestLang(r), key)}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func requestLang(r *http.Request) language.Tag {
	if l := r.URL.Query().Get("lang"); l != "" {
		return Tag(l)
	}
	return Tag(r.Header.Get("Accept-Language"))
}

// decode reads a JSON body into v. An empty body leaves v zero.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return validation(msgMalformedBody)
	}
	return nil
}

func clientInfo(r *http.Request, device userentity.DeviceInfo) ClientInfo {
	return ClientInfo{IP: ratelimit.ClientIP(r), UserAgent: r.UserAgent(), Device: device}
}

func userID(r *http.Request) (int64, error) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		return 0, newError(KindTokenInvalid, msgAuthorizationMissing)
	}
	id, err := c.UserID()
	if err != nil {
		return 0, newError(KindTokenInvalid, msgTokenInvalid)
	}
	return id, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegisterInput
		Device userentity.DeviceInfo `json:"device_info"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Register(r.Context(), req.RegisterInput, clientInfo(r, req.Device))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.Tokens != nil {
		writeJSON(w, http.StatusCreated, res)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": Localize(requestLang(r), MsgOtpSent),
		"user_id": res.UserID,
		"status":  res.Status,
		"otp":     res.Otp,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoginInput
		Device userentity.DeviceInfo `json:"device_info"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.svc.Login(r.Context(), req.LoginInput, clientInfo(r, req.Device))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Social(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FederatedInput
		Device userentity.DeviceInfo `json:"device_info"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.svc.LoginWithFederatedProvider(r.Context(), req.FederatedInput, clientInfo(r, req.Device))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.svc.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Logout(r.Context(), id, req.RefreshToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgLoggedOut, nil)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.LogoutAllDevices(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgLoggedOutAll, map[string]any{"revoked": n})
}

func (h *Handler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.VerifyOtp(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgVerified, map[string]any{"user": res})
}

func (h *Handler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	var req ResendOtpInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ack, err := h.svc.ResendOtp(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgOtpSent, map[string]any{"otp": ack})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.svc.ForgotPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgResetSent, nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgPasswordReset, nil)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ChangePasswordInput
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), id, req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgPasswordChanged, nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.svc.Me(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		FCMToken string `json:"fcm_token"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.UpdateFCMToken(r.Context(), id, req.FCMToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ack(w, r, MsgFCMTokenUpdated, nil)
}

func (h *Handler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.LoginHistory(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
