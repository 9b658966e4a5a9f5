package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/ledger/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// Service defines the ledger operations the handler needs.
type Service interface {
	Create(ctx context.Context, actor id.Actor, req *models.CreateTransactionRequest) (*models.Transaction, error)
	Get(ctx context.Context, actor id.Actor, txID id.TransactionID) (*models.Transaction, error)
	List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Transaction, error)
	Update(ctx context.Context, actor id.Actor, txID id.TransactionID, req *models.UpdateTransactionRequest) (*models.Transaction, error)
	Approve(ctx context.Context, actor id.Actor, txID id.TransactionID) (*models.Transaction, error)
}

// Handler wires transaction endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts transaction endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transactions", h.HandleCreate)
	r.Get("/transactions", h.HandleList)
	r.Get("/transactions/{id}", h.HandleGet)
	r.Patch("/transactions/{id}", h.HandleUpdate)
	r.Post("/transactions/{id}/approve", h.HandleApprove)
}

// HandleCreate handles POST /transactions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	var req models.CreateTransactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.service.Create(ctx, actor, &req)
	if err != nil {
		h.logger.WarnContext(ctx, "transaction creation failed",
			"request_id", requestID,
			"parcel_id", req.Parcel,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "transaction created",
		"request_id", requestID,
		"transaction_id", tx.ID,
		"parcel_id", tx.Parcel,
	)
	httputil.WriteJSON(w, http.StatusCreated, tx)
}

// HandleList handles GET /transactions?status=&parcel=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	status, err := models.ParseStatus(query.Get("status"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.ListFilter{Status: status}
	if raw := query.Get("parcel"); raw != "" {
		if filter.Parcel, err = id.ParseParcelID(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	txs, err := h.service.List(ctx, requestcontext.Actor(ctx), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txs)
}

// HandleGet handles GET /transactions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.service.Get(ctx, requestcontext.Actor(ctx), txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

// HandleUpdate handles PATCH /transactions/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID, err := id.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateTransactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.service.Update(ctx, requestcontext.Actor(ctx), txID, &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

// HandleApprove handles POST /transactions/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	txID, err := id.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tx, err := h.service.Approve(ctx, actor, txID)
	if err != nil {
		h.logger.WarnContext(ctx, "transaction approval failed",
			"request_id", requestID,
			"actor_id", actor.UserID,
			"transaction_id", txID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "transaction approved",
		"request_id", requestID,
		"transaction_id", tx.ID,
		"parcel_id", tx.Parcel,
		"new_owner_id", tx.ToOwner,
	)
	httputil.WriteJSON(w, http.StatusOK, tx)
}
