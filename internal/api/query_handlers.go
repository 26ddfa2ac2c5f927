package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/geotrips/internal/geohash"
	"github.com/onnwee/geotrips/internal/middleware"
	"github.com/onnwee/geotrips/internal/query"
	"github.com/onnwee/geotrips/internal/store"
	"github.com/onnwee/geotrips/internal/telemetry"
)

// QueryHandlers serves the four analytic query endpoints.
type QueryHandlers struct {
	planner *query.Planner
	metrics *telemetry.Metrics
}

// NewQueryHandlers creates a QueryHandlers. metrics may be nil.
func NewQueryHandlers(planner *query.Planner, metrics *telemetry.Metrics) *QueryHandlers {
	return &QueryHandlers{planner: planner, metrics: metrics}
}

// countResponse is the wire shape for Q1, Q2 and Q3, and for the advisory
// responses to invalid query input.
type countResponse struct {
	Count   int64  `json:"count"`
	Message string `json:"message,omitempty"`
}

// startStopResponse is the wire shape for Q4.
type startStopResponse struct {
	Start int64   `json:"start"`
	Stop  int64   `json:"stop"`
	Fare  float64 `json:"fare"`
}

// bboxRequest is the shared request body for Q3 and Q4.
type bboxRequest struct {
	Lat1     float64 `json:"lat1"`
	Lng1     float64 `json:"lng1"`
	Lat2     float64 `json:"lat2"`
	Lng2     float64 `json:"lng2"`
	DaysBack string  `json:"days_back"`
}

// instantRequest is the request body for Q2.
type instantRequest struct {
	TimeInstant string `json:"time_instant"`
}

// CurrentCount handles GET /query/trip_count_right_now/.
func (h *QueryHandlers) CurrentCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	start := time.Now()
	count, err := h.planner.CurrentCount(r.Context())
	h.observe("current_count", start, err)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), countResponse{Count: count})
}

// CountAtInstant handles POST /query/trip_count_at_time_t/.
func (h *QueryHandlers) CountAtInstant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req instantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeInvalidTime(w, r, err)
		return
	}

	t, err := query.ParseInstant(req.TimeInstant)
	if err != nil {
		h.writeInvalidTime(w, r, err)
		return
	}

	start := time.Now()
	count, err := h.planner.CountAtInstant(r.Context(), t)
	h.observe("count_at_instant", start, err)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), countResponse{Count: count})
}

// TripsPassedThrough handles POST /query/trips_passed_through/.
func (h *QueryHandlers) TripsPassedThrough(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req bboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}

	start := time.Now()
	count, err := h.planner.TripsPassedThrough(r.Context(), req.Lat1, req.Lng1, req.Lat2, req.Lng2, req.DaysBack, time.Now().UTC())
	h.observe("trips_passed_through", start, err)
	if err != nil {
		h.writeQueryInputOrStoreError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), countResponse{Count: count})
}

// TripsStartStop handles POST /query/trips_start_stop/.
func (h *QueryHandlers) TripsStartStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req bboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "malformed request body")
		return
	}

	start := time.Now()
	result, err := h.planner.TripsStartStop(r.Context(), req.Lat1, req.Lng1, req.Lat2, req.Lng2, req.DaysBack, time.Now().UTC())
	h.observe("trips_start_stop", start, err)
	if err != nil {
		h.writeQueryInputOrStoreError(w, r, err)
		return
	}
	writeJSON(w, r.Context(), startStopResponse{Start: result.Start, Stop: result.Stop, Fare: result.Fare})
}

func (h *QueryHandlers) observe(name string, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.ObserveQuery(name, time.Since(start).Seconds())
	if err != nil {
		h.metrics.IncQueryErrors(name)
	}
}

// writeInvalidTime renders a malformed time_instant as an advisory 200,
// matching the query-input error taxonomy (not a transport failure).
func (h *QueryHandlers) writeInvalidTime(w http.ResponseWriter, r *http.Request, err error) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidTime)
	writeJSON(w, ctx, countResponse{Count: 0, Message: "invalid time_instant: " + err.Error()})
}

// writeQueryInputOrStoreError routes a query.ErrInvalidWindow /
// geohash.ErrInvalidCoordinate as an advisory 200, and everything else
// (store unavailability) as a 5xx.
func (h *QueryHandlers) writeQueryInputOrStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidWindow):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidWindow)
		writeJSON(w, ctx, countResponse{Count: 0, Message: "invalid days_back: " + err.Error()})
	case errors.Is(err, geohash.ErrInvalidCoordinate):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCoordinate)
		writeJSON(w, ctx, countResponse{Count: 0, Message: "invalid coordinate: " + err.Error()})
	default:
		h.writeStoreError(w, r, err)
	}
}

func (h *QueryHandlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, store.ErrStoreUnavailable) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeStoreError)
		if h.metrics != nil {
			h.metrics.IncStoreErrors()
		}
		slog.ErrorContext(ctx, "store error answering query", "error", err)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		return
	}
	ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
	slog.ErrorContext(ctx, "unexpected error answering query", "error", err)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, ctx context.Context, v interface{}) {
	middleware.UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
