package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/internal/feedback/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Search-Query-Expansion-Service/pkg/middleware"
)

// FeedbackPublisher is the persistence surface the handler submits to.
type FeedbackPublisher interface {
	Submit(ctx context.Context, req *feedback.SubmitRequest) (*feedback.SubmitResponse, error)
	RecentByQuery(ctx context.Context, query string, limit int) ([]feedback.Submission, error)
}

type Handler struct {
	publisher FeedbackPublisher
	validator *validator.Validator
	collector *analytics.BatchCollector
	logger    *slog.Logger
}

// New creates a Handler. collector may be nil; activity events are then
// not tracked.
func New(pub FeedbackPublisher, v *validator.Validator, collector *analytics.BatchCollector) *Handler {
	return &Handler{
		publisher: pub,
		validator: v,
		collector: collector,
		logger:    slog.Default().With("component", "feedback-handler"),
	}
}

// Submit accepts a relevance-feedback submission and queues it for the
// offline expansion jobs.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req feedback.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Submit(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("feedback submission failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "feedback submission failed")
		return
	}

	log.Info("feedback accepted",
		"feedback_id", resp.FeedbackID,
		"query_key", resp.QueryKey,
		"doc_count", len(req.DocIDs),
	)
	if h.collector != nil {
		h.collector.Track(resp.QueryKey, analytics.FeedbackActivityEvent{
			Type:       analytics.EventFeedback,
			FeedbackID: resp.FeedbackID,
			Query:      req.Query,
			DocCount:   len(req.DocIDs),
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// Recent returns the latest stored submissions for a query.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > 200 {
			parsed = 200
		}
		limit = parsed
	}

	subs, err := h.publisher.RecentByQuery(ctx, query, limit)
	if err != nil {
		log.Error("feedback history lookup failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "feedback history lookup failed")
		return
	}
	if subs == nil {
		subs = []feedback.Submission{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
