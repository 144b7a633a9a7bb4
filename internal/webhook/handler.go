package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/spool/internal/jsonnum"
)

// Enqueuer is the queue surface a webhook needs. *queue.Manager implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload map[string]any, transport string) (string, error)
}

// Handler serves the configured webhook endpoints.
type Handler struct {
	endpoints map[string]Endpoint
	queue     Enqueuer
	logger    *slog.Logger
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(endpoints []Endpoint, q Enqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	byPath := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if ep.MaxBodySize <= 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}
		byPath[ep.Path] = ep
	}
	return &Handler{endpoints: byPath, queue: q, logger: logger}
}

// Len reports the number of endpoints.
func (h *Handler) Len() int {
	return len(h.endpoints)
}

// Mount registers a POST route per endpoint.
func (h *Handler) Mount(r chi.Router) {
	for path := range h.endpoints {
		r.Post(path, h.serve)
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.endpoints[r.URL.Path]
	if !ok {
		respond(w, http.StatusNotFound, errorResponse{Error: "endpoint not found"})
		return
	}
	logger := h.logger.With("path", endpoint.Path, "transport", endpoint.Transport,
		"request_id", middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		respond(w, http.StatusInternalServerError, errorResponse{Error: "failed to read request body"})
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		respond(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
		return
	}

	// Signature first: an unsigned caller learns nothing about the body rules.
	if err := Verify(body, r.Header.Get(endpoint.SignatureHeader), endpoint.Secret); err != nil {
		logger.Warn("webhook signature rejected", "header", endpoint.SignatureHeader)
		respond(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
		return
	}

	payload, err := jsonnum.Object(body)
	if err != nil {
		respond(w, http.StatusBadRequest, errorResponse{Error: "body must be a JSON object"})
		return
	}

	id, err := h.queue.Enqueue(r.Context(), payload, endpoint.Transport)
	if err != nil {
		logger.Error("failed to enqueue webhook item", "error", err)
		respond(w, http.StatusInternalServerError, errorResponse{Error: "failed to enqueue"})
		return
	}
	logger.Info("webhook item enqueued", "item_id", id)
	respond(w, http.StatusAccepted, acceptedResponse{ID: id})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
