package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/identity/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// Service defines the account operations the handler needs.
type Service interface {
	Register(ctx context.Context, actor id.Actor, req *models.RegisterRequest) (*models.User, error)
	Get(ctx context.Context, actor id.Actor, userID id.UserID) (*models.User, error)
	Me(ctx context.Context, actor id.Actor) (*models.User, error)
	List(ctx context.Context, actor id.Actor) ([]*models.User, error)
	Update(ctx context.Context, actor id.Actor, userID id.UserID, req *models.UpdateUserRequest) (*models.User, error)
	ChangePassword(ctx context.Context, actor id.Actor, req *models.ChangePasswordRequest) error
	VerifyUser(ctx context.Context, actor id.Actor, userID id.UserID) (*models.User, error)
}

// Handler wires account endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts account endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.HandleRegister)
	r.Get("/users", h.HandleList)
	r.Get("/users/me", h.HandleMe)
	r.Post("/users/me/password", h.HandleChangePassword)
	r.Get("/users/{id}", h.HandleGet)
	r.Patch("/users/{id}", h.HandleUpdate)
	r.Post("/users/{id}/verify", h.HandleVerify)
}

// HandleRegister handles POST /users. Anonymous callers are allowed.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.Register(ctx, requestcontext.Actor(ctx), &req)
	if err != nil {
		h.logger.WarnContext(ctx, "user registration failed",
			"request_id", requestID,
			"username", req.Username,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user registered",
		"request_id", requestID,
		"user_id", user.ID,
		"user_type", user.Role,
	)
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// HandleList handles GET /users.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.service.List(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

// HandleMe handles GET /users/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.service.Me(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleGet handles GET /users/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.service.Get(ctx, requestcontext.Actor(ctx), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleUpdate handles PATCH /users/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.service.Update(ctx, requestcontext.Actor(ctx), userID, &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// HandleChangePassword handles POST /users/me/password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	var req models.ChangePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ChangePassword(ctx, actor, &req); err != nil {
		h.logger.WarnContext(ctx, "password change failed",
			"request_id", requestID,
			"user_id", actor.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerify handles POST /users/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.service.VerifyUser(ctx, actor, userID)
	if err != nil {
		h.logger.WarnContext(ctx, "user verification failed",
			"request_id", requestID,
			"actor_id", actor.UserID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}
