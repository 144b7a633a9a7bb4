package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/spool/internal/jsonnum"
	"github.com/mattjoyce/spool/internal/queue"
)

// maxBodyBytes caps an enqueue payload.
const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read queue stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    st.Total,
		DeadLetters:   st.DeadLetters,
	})
}

// handleEnqueue handles POST /enqueue/{transport}. The body is the payload,
// a JSON object; an empty body enqueues an empty payload.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	transport := strings.TrimSpace(chi.URLParam(r, "transport"))
	if transport == "" {
		s.writeError(w, http.StatusBadRequest, "transport is required")
		return
	}

	payload := map[string]any{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if payload, err = jsonnum.Object(body); err != nil {
			s.writeError(w, http.StatusBadRequest, "payload must be a JSON object")
			return
		}
	}

	id, err := s.queue.Enqueue(r.Context(), payload, transport)
	if err != nil {
		s.logger.Error("enqueue failed", "transport", transport, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue")
		return
	}
	s.writeJSON(w, http.StatusAccepted, EnqueueResponse{ItemID: id, Transport: transport})
}

// handleDrain handles POST /drain: one budgeted inline pass.
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "inline draining is not configured")
		return
	}
	result, err := s.runner.RunQueue(r.Context())
	if err != nil {
		s.logger.Error("drain failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "drain failed")
		return
	}
	s.writeJSON(w, http.StatusOK, DrainResponse{Result: string(result), Handled: s.runner.Handled()})
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read queue stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleDeadLetters handles GET /dead?limit=N.
func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := s.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list dead letters", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	resp := DeadLettersResponse{Items: make([]DeadLetterView, 0, len(list))}
	for _, dl := range list {
		view := DeadLetterView{
			ID:        dl.ID,
			ItemID:    dl.ItemID,
			Transport: dl.Transport,
			Attempts:  dl.Attempts,
			LastError: dl.LastError,
			CreatedAt: dl.CreatedAt,
			FailedAt:  dl.FailedAt,
		}
		if payload, err := queue.Decode(dl.Payload); err == nil {
			view.Payload = payload
		}
		resp.Items = append(resp.Items, view)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleReplay handles POST /dead/{id}/replay.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	itemID, err := s.queue.Replay(r.Context(), id)
	if errors.Is(err, queue.ErrItemNotFound) {
		s.writeError(w, http.StatusNotFound, "dead letter not found")
		return
	}
	if err != nil {
		s.logger.Error("replay failed", "dead_letter_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "replay failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, ReplayResponse{ItemID: itemID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
