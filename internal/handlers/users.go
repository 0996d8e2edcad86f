package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"ovpnadmin/internal/auth"
	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type UsersHandler struct {
	users *auth.UserService
	audit *auth.AuditService
	log   logrus.FieldLogger
}

func NewUsersHandler(users *auth.UserService, audit *auth.AuditService, log logrus.FieldLogger) *UsersHandler {
	return &UsersHandler{users: users, audit: audit, log: log}
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Disabled  bool      `json:"disabled"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type setDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.users.List(ctx)
	if err != nil {
		h.internalError(w, err, "failed to list users")
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		roles, err := h.users.Roles(ctx, u.ID)
		if err != nil {
			h.internalError(w, err, "failed to load roles")
			return
		}
		out = append(out, toUserResponse(&u, roles))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username_required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "password_too_short")
		return
	}

	ctx := r.Context()
	user, err := h.users.Create(ctx, req.Username, req.Password, req.Roles...)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusConflict, "user_exists")
			return
		}
		h.internalError(w, err, "failed to create user")
		return
	}

	roles, err := h.users.Roles(ctx, user.ID)
	if err != nil {
		h.internalError(w, err, "failed to load roles")
		return
	}

	h.record(r, models.ActionUserCreate, user.Username, map[string][]string{"roles": roles.Slice()})
	writeJSON(w, http.StatusCreated, toUserResponse(user, roles))
}

func (h *UsersHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	var req setDisabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	id := chi.URLParam(r, "id")
	if caller := middleware.GetIdentity(r); caller != nil && caller.UserID == id && req.Disabled {
		writeError(w, http.StatusUnprocessableEntity, "cannot_disable_self")
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		h.userError(w, err)
		return
	}
	if err := h.users.SetDisabled(ctx, id, req.Disabled); err != nil {
		h.userError(w, err)
		return
	}

	action := models.ActionUserEnable
	if req.Disabled {
		action = models.ActionUserDisable
	}
	h.record(r, action, user.Username, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		writeError(w, http.StatusBadRequest, "role_required")
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.userError(w, err)
		return
	}
	if err := h.users.AssignRole(ctx, user.ID, req.Role); err != nil {
		h.internalError(w, err, "failed to assign role")
		return
	}

	h.record(r, models.ActionRoleAssign, user.Username, map[string]string{"role": strings.ToUpper(strings.TrimSpace(req.Role))})
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) record(r *http.Request, action, target string, details any) {
	actor := actorFrom(r)
	h.audit.Record(r.Context(), auth.Event{
		Actor:     actor.Username,
		Action:    action,
		Target:    target,
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
		Details:   details,
	})
}

func (h *UsersHandler) userError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	h.internalError(w, err, "user update failed")
}

func (h *UsersHandler) internalError(w http.ResponseWriter, err error, msg string) {
	h.log.WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func toUserResponse(u *models.User, roles auth.RoleSet) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Disabled:  u.Disabled,
		Roles:     roles.Slice(),
		CreatedAt: u.CreatedAt,
	}
}
