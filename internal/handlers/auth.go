package handlers

import (
	"errors"
	"net/http"

	"ovpnadmin/internal/auth"
	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/models"

	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	sessions *auth.SessionManager
	users    *auth.UserService
	throttle *auth.Throttle
	audit    *auth.AuditService
	csrf     *middleware.CSRF
	log      logrus.FieldLogger
}

func NewAuthHandler(
	sessions *auth.SessionManager,
	users *auth.UserService,
	throttle *auth.Throttle,
	audit *auth.AuditService,
	csrf *middleware.CSRF,
	log logrus.FieldLogger,
) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		throttle: throttle,
		audit:    audit,
		csrf:     csrf,
		log:      log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type meResponse struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// CSRFToken issues the double-submit token cookie.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.csrf.IssueToken(w); err != nil {
		h.log.WithError(err).Error("csrf token issue failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Login records an attempt for every POST, undecodable bodies included,
// before any credential is checked.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)
	ua := r.UserAgent()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if err := h.throttle.RecordAttempt(ctx, "", ip); err != nil {
			h.internalError(w, err, "failed to record login attempt")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if err := h.throttle.RecordAttempt(ctx, req.Username, ip); err != nil {
		h.internalError(w, err, "failed to record login attempt")
		return
	}
	if err := h.throttle.Check(ctx, req.Username, ip); err != nil {
		if errors.Is(err, auth.ErrThrottled) {
			h.audit.Record(ctx, auth.Event{Action: models.ActionLoginThrottle, IP: ip, UserAgent: ua})
			writeError(w, http.StatusTooManyRequests, "too_many_requests")
			return
		}
		h.internalError(w, err, "throttle check failed")
		return
	}

	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		var action, actor string
		switch {
		case errors.Is(err, auth.ErrUnknownUser):
			action = models.ActionLoginFailNoUser
		case errors.Is(err, auth.ErrUserDisabled):
			action, actor = models.ActionLoginFailDisabled, user.Username
		case errors.Is(err, auth.ErrBadPassword):
			action, actor = models.ActionLoginFailBadPW, user.Username
		default:
			h.internalError(w, err, "authentication failed")
			return
		}
		// Unknown usernames are never written to the audit log.
		h.audit.Record(ctx, auth.Event{Actor: actor, Action: action, Target: actor, IP: ip, UserAgent: ua})
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	sid, err := h.sessions.Create(ctx, user.ID)
	if err != nil {
		h.internalError(w, err, "failed to create session")
		return
	}

	h.audit.Record(ctx, auth.Event{
		Actor:     user.Username,
		Action:    models.ActionLoginSuccess,
		Target:    user.Username,
		IP:        ip,
		UserAgent: ua,
	})

	h.sessions.SetCookie(w, sid)
	w.WriteHeader(http.StatusNoContent)
}

// Logout deletes the caller's session if there is one. It always succeeds
// from the client's point of view and always clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.sessions.FromRequest(r)
	if !ok {
		h.sessions.ClearCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := r.Context()
	actor := ""
	if sess, err := h.sessions.Resolve(ctx, sid); err == nil {
		actor = models.NoTarget
		if user, err := h.users.GetByID(ctx, sess.UserID); err == nil {
			actor = user.Username
		}
	} else if !errors.Is(err, auth.ErrSessionNotFound) {
		h.log.WithError(err).Warn("logout: session lookup failed")
	}

	if err := h.sessions.Revoke(ctx, sid); err != nil {
		h.internalError(w, err, "failed to delete session")
		return
	}

	if actor != "" {
		h.audit.Record(ctx, auth.Event{
			Actor:     actor,
			Action:    models.ActionLogout,
			Target:    actor,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
	}

	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r)
	writeJSON(w, http.StatusOK, meResponse{Username: id.Username, Roles: id.Roles.Slice()})
}

type passwordRequest struct {
	Password string `json:"password"`
}

// StepUp re-verifies the caller's password and stamps the session.
func (h *AuthHandler) StepUp(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	ctx := r.Context()
	id := middleware.GetIdentity(r)
	ev := auth.Event{Actor: id.Username, Target: id.Username, IP: clientIP(r), UserAgent: r.UserAgent()}

	ok, err := h.users.VerifyPassword(ctx, id.UserID, req.Password)
	if err != nil {
		h.internalError(w, err, "step-up verification failed")
		return
	}
	if !ok {
		ev.Action = models.ActionStepUpFail
		h.audit.Record(ctx, ev)
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	if err := h.sessions.TouchStepUp(ctx, id.SessionID); err != nil {
		h.internalError(w, err, "failed to record step-up")
		return
	}
	ev.Action = models.ActionStepUpSuccess
	h.audit.Record(ctx, ev)
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	id := middleware.GetIdentity(r)
	err := h.users.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusUnprocessableEntity, "password_too_short")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	default:
		h.internalError(w, err, "failed to change password")
		return
	}

	h.audit.Record(r.Context(), auth.Event{
		Actor:     id.Username,
		Action:    models.ActionPasswordChange,
		Target:    id.Username,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) internalError(w http.ResponseWriter, err error, msg string) {
	h.log.WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, "internal_error")
}
