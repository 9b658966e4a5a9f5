package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landregistry/internal/document/models"
	id "landregistry/pkg/domain"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	"landregistry/pkg/requestcontext"
)

// defaultMaxUploadBytes bounds multipart document uploads unless overridden.
const defaultMaxUploadBytes = 10 << 20

// Service defines the document operations the handler needs.
type Service interface {
	Create(ctx context.Context, actor id.Actor, req *models.CreateDocumentRequest) (*models.Document, error)
	Get(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, actor id.Actor, filter models.ListFilter) ([]*models.Document, error)
	Update(ctx context.Context, actor id.Actor, docID id.DocumentID, req *models.UpdateDocumentRequest) (*models.Document, error)
	Verify(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error)
}

// Handler wires document endpoints to the document service.
type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

type Option func(*Handler)

// WithMaxUploadBytes caps the size of a multipart upload body.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger, maxUploadBytes: defaultMaxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts document endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleCreate)
	r.Get("/documents", h.HandleList)
	r.Get("/documents/{id}", h.HandleGet)
	r.Patch("/documents/{id}", h.HandleUpdate)
	r.Post("/documents/{id}/verify", h.HandleVerify)
}

// HandleCreate handles POST /documents. The body is either JSON metadata or
// a multipart form whose "file" part is the document content.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	var (
		req *models.CreateDocumentRequest
		err error
	)
	if isMultipart(r) {
		req, err = decodeMultipart(w, r, h.maxUploadBytes)
	} else {
		req = &models.CreateDocumentRequest{}
		err = httputil.DecodeJSON(r, req)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to decode document upload", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.Create(ctx, actor, req)
	if err != nil {
		h.logger.WarnContext(ctx, "document upload failed",
			"request_id", requestID,
			"parcel_id", req.Parcel,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document uploaded",
		"request_id", requestID,
		"document_id", doc.ID,
		"parcel_id", doc.Parcel,
		"content_bytes", len(req.Content),
	)
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleList handles GET /documents?parcel=&document_type=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	docType, err := models.ParseDocumentType(query.Get("document_type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.ListFilter{Type: docType}
	if raw := query.Get("parcel"); raw != "" {
		if filter.Parcel, err = id.ParseParcelID(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	docs, err := h.service.List(ctx, requestcontext.Actor(ctx), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

// HandleGet handles GET /documents/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Get(ctx, requestcontext.Actor(ctx), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleUpdate handles PATCH /documents/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateDocumentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Update(ctx, requestcontext.Actor(ctx), docID, &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleVerify handles POST /documents/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	doc, err := h.service.Verify(ctx, actor, docID)
	if err != nil {
		h.logger.WarnContext(ctx, "document verification failed",
			"request_id", requestID,
			"actor_id", actor.UserID,
			"document_id", docID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document verified",
		"request_id", requestID,
		"document_id", doc.ID,
		"verified_by", doc.VerifiedBy,
	)
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func decodeMultipart(w http.ResponseWriter, r *http.Request, limit int64) (*models.CreateDocumentRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body")
	}
	req := &models.CreateDocumentRequest{
		Title:        r.FormValue("title"),
		DocumentType: models.DocumentType(r.FormValue("document_type")),
		IPFSHash:     r.FormValue("ipfs_hash"),
	}
	if raw := r.FormValue("parcel"); raw != "" {
		parcelID, err := id.ParseParcelID(raw)
		if err != nil {
			return nil, err
		}
		req.Parcel = parcelID
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "metadata must be a JSON object")
		}
	}

	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid file part")
	}
	defer file.Close()
	if req.Content, err = io.ReadAll(file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file part")
	}
	return req, nil
}
