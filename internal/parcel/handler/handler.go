package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/parcel/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// Service defines the parcel operations the handler needs.
type Service interface {
	Create(ctx context.Context, actor id.Actor, req *models.CreateParcelRequest) (*models.Parcel, error)
	Get(ctx context.Context, actor id.Actor, parcelID id.ParcelID) (*models.Parcel, error)
	List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Parcel, error)
	Update(ctx context.Context, actor id.Actor, parcelID id.ParcelID, req *models.UpdateParcelRequest) (*models.Parcel, error)
	Verify(ctx context.Context, actor id.Actor, parcelID id.ParcelID) (*models.Parcel, error)
}

// Handler wires parcel endpoints to the parcel service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts parcel endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/parcels", h.HandleCreate)
	r.Get("/parcels", h.HandleList)
	r.Get("/parcels/{id}", h.HandleGet)
	r.Patch("/parcels/{id}", h.HandleUpdate)
	r.Post("/parcels/{id}/verify", h.HandleVerify)
}

// HandleCreate handles POST /parcels.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	var req models.CreateParcelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcel, err := h.service.Create(ctx, actor, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "parcel registration failed",
			"request_id", requestID,
			"parcel_number", req.ParcelID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "parcel registered",
		"request_id", requestID,
		"parcel_id", parcel.ID,
		"owner_id", parcel.CurrentOwner,
	)
	httputil.WriteJSON(w, http.StatusCreated, parcel)
}

// HandleList handles GET /parcels?status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := models.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcels, err := h.service.List(ctx, requestcontext.Actor(ctx), models.ListFilter{Status: status})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcels)
}

// HandleGet handles GET /parcels/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcel, err := h.service.Get(ctx, requestcontext.Actor(ctx), parcelID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcel)
}

// HandleUpdate handles PATCH /parcels/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateParcelRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcel, err := h.service.Update(ctx, requestcontext.Actor(ctx), parcelID, &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcel)
}

// HandleVerify handles POST /parcels/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	parcelID, err := id.ParseParcelID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	parcel, err := h.service.Verify(ctx, actor, parcelID)
	if err != nil {
		h.logger.WarnContext(ctx, "parcel verification failed",
			"request_id", requestID,
			"actor_id", actor.UserID,
			"parcel_id", parcelID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcel)
}
