// Package handlers provides HTTP handlers for risk scaling and breach history.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/events"
	"github.com/aristath/riskguard/internal/modules/risk"
)

const (
	dateLayout        = "2006-01-02"
	defaultEventLimit = 500
	maxEventLimit     = 5000
	maxBodyBytes      = 16 << 20
)

// EventStore is the read side of the risk event repository
type EventStore interface {
	List(ctx context.Context, filter risk.EventFilter) ([]risk.Event, error)
	CountByCategory(ctx context.Context, filter risk.EventFilter) (map[risk.Category]int, error)
}

// Handler handles risk HTTP requests
type Handler struct {
	aggregator   *risk.Aggregator
	store        EventStore
	limits       risk.Limits
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new risk handler.
// limits are the configured ceilings used when a request does not carry its own.
// store and eventManager may be nil.
func NewHandler(
	aggregator *risk.Aggregator,
	store EventStore,
	limits risk.Limits,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		aggregator:   aggregator,
		store:        store,
		limits:       limits,
		eventManager: eventManager,
		log:          log.With().Str("handler", "risk").Logger(),
	}
}

// ScaleRequest is the body of POST /api/risk/scale
type ScaleRequest struct {
	Date                 string       `json:"date"`
	Positions            []float64    `json:"positions"`
	PositionsWeighted    []float64    `json:"positions_weighted"`
	CovarianceMatrix     [][]float64  `json:"covariance_matrix"`
	JumpCovarianceMatrix [][]float64  `json:"jump_covariance_matrix"`
	Limits               *risk.Limits `json:"limits,omitempty"`
}

// HandleScale handles POST /api/risk/scale
func (h *Handler) HandleScale(w http.ResponseWriter, r *http.Request) {
	var req ScaleRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}

	limits := h.limits
	if req.Limits != nil {
		limits = *req.Limits
	}

	evaluationID := uuid.NewString()
	result, err := h.aggregator.Scale(r.Context(), risk.Input{
		Date:           date,
		Positions:      req.Positions,
		Weighted:       req.PositionsWeighted,
		Covariance:     req.CovarianceMatrix,
		JumpCovariance: req.JumpCovarianceMatrix,
		Limits:         limits,
		RunID:          evaluationID,
	})
	if err != nil {
		if risk.IsInputError(err) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("evaluation_id", evaluationID).Msg("Failed to scale positions")
		if h.eventManager != nil {
			h.eventManager.EmitError("risk", err, map[string]interface{}{"evaluation_id": evaluationID})
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to scale positions")
		return
	}

	if h.eventManager != nil {
		h.eventManager.EmitTyped(events.RiskEvaluated, "risk", &events.RiskEvaluatedData{
			Date:        result.Date,
			Instruments: len(result.Positions),
			Multiplier:  result.Multiplier,
			Binding:     string(result.Binding),
			Breaches:    len(result.Events),
			RunID:       evaluationID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"evaluation_id": evaluationID,
			"date":          result.Date.Format(dateLayout),
			"positions":     result.Positions,
			"multiplier":    result.Multiplier,
			"binding":       result.Binding,
			"checks":        result.Checks,
			"events":        result.Events,
			"limits":        limits,
		},
		"metadata": metadata(),
	})
}

// HandleGetLimits handles GET /api/risk/limits
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"limits":     h.limits,
			"categories": h.aggregator.Categories(),
		},
		"metadata": metadata(),
	})
}

// HandleListEvents handles GET /api/risk/events
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Event storage is not configured")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list risk events")
		h.writeError(w, http.StatusInternalServerError, "Failed to list risk events")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"events": list,
			"count":  len(list),
		},
		"metadata": metadata(),
	})
}

// HandleGetEventSummary handles GET /api/risk/events/summary
func (h *Handler) HandleGetEventSummary(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Event storage is not configured")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := h.store.CountByCategory(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarise risk events")
		h.writeError(w, http.StatusInternalServerError, "Failed to summarise risk events")
		return
	}

	byCategory := make(map[string]int, len(risk.Categories()))
	total := 0
	for _, c := range risk.Categories() {
		byCategory[string(c)] = counts[c]
		total += counts[c]
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"by_category": byCategory,
			"total":       total,
		},
		"metadata": metadata(),
	})
}

func parseFilter(r *http.Request) (risk.EventFilter, error) {
	q := r.URL.Query()
	filter := risk.EventFilter{
		RunID: q.Get("run_id"),
		Limit: defaultEventLimit,
	}

	if v := q.Get("category"); v != "" {
		c, err := risk.ParseCategory(v)
		if err != nil {
			return filter, err
		}
		filter.Category = c
	}
	if v := q.Get("from"); v != "" {
		from, err := parseDate(v)
		if err != nil {
			return filter, err
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := parseDate(v)
		if err != nil {
			return filter, err
		}
		filter.To = to
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		if limit > maxEventLimit {
			limit = maxEventLimit
		}
		filter.Limit = limit
	}
	return filter, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return t.UTC(), nil
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":    message,
		"metadata": metadata(),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
