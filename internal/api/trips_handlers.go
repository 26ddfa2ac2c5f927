package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/geotrips/internal/idempotency"
	"github.com/onnwee/geotrips/internal/ingest"
	"github.com/onnwee/geotrips/internal/middleware"
	"github.com/onnwee/geotrips/internal/store"
	"github.com/onnwee/geotrips/internal/telemetry"
)

const idempotencyKeyHeader = "Idempotency-Key"

// TripsHandlers serves the trip event ingestion endpoint.
type TripsHandlers struct {
	writer   *ingest.Writer
	metrics  *telemetry.Metrics
	idemRepo idempotency.Repository
}

// NewTripsHandlers creates a TripsHandlers. metrics may be nil, in which
// case ingestion counters are skipped. idemRepo may be nil, in which case
// the Idempotency-Key header is ignored and every request is applied.
func NewTripsHandlers(writer *ingest.Writer, metrics *telemetry.Metrics, idemRepo idempotency.Repository) *TripsHandlers {
	return &TripsHandlers{writer: writer, metrics: metrics, idemRepo: idemRepo}
}

// Ingest handles POST /trips/: decode a single event, validate it, and
// apply it to the store. The arrival time is the time the request was
// received, not anything carried in the body. A client may attach an
// Idempotency-Key header so a retried request replays the first response
// rather than applying the event twice.
func (h *TripsHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	idemKey := r.Header.Get(idempotencyKeyHeader)
	if idemKey != "" && h.idemRepo != nil {
		if err := idempotency.ValidateKey(idemKey); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if cached, err := h.idemRepo.Get(idemKey); err == nil && cached.Status == idempotency.StatusCompleted {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(cached.ResponseStatusCode)
			_, _ = w.Write([]byte(cached.ResponseBody))
			return
		}
	}

	ev, err := ingest.DecodeEvent(r.Body)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMalformedEvent)
		if h.metrics != nil {
			h.metrics.IncEventsRejected()
		}
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedEvent, err.Error())
		return
	}

	if err := h.writer.Apply(r.Context(), ev, time.Now().UTC()); err != nil {
		ctx := r.Context()
		switch {
		case errors.Is(err, ingest.ErrMalformedEvent):
			ctx = middleware.SetErrorCode(ctx, ErrCodeMalformedEvent)
			if h.metrics != nil {
				h.metrics.IncEventsRejected()
			}
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedEvent, err.Error())
		case errors.Is(err, store.ErrStoreUnavailable):
			ctx = middleware.SetErrorCode(ctx, ErrCodeStoreError)
			if h.metrics != nil {
				h.metrics.IncStoreErrors()
			}
			slog.ErrorContext(ctx, "store error applying trip event", "error", err)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeStoreError, "store unavailable")
		default:
			ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
			slog.ErrorContext(ctx, "unexpected error applying trip event", "error", err)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.IncEventsIngested(string(ev.Event))
	}

	const responseBody = `{"status":"accepted"}`
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(responseBody))

	if idemKey != "" && h.idemRepo != nil {
		record := &idempotency.IdempotencyKey{
			Key:                idemKey,
			Method:             r.Method,
			Route:              r.URL.Path,
			TripID:             ev.TripID,
			ResponseHash:       idempotency.ComputeResponseHash(responseBody),
			Status:             idempotency.StatusCompleted,
			ResponseBody:       responseBody,
			ResponseStatusCode: http.StatusAccepted,
		}
		if err := h.idemRepo.Store(record); err != nil && !errors.Is(err, idempotency.ErrKeyExists) {
			slog.ErrorContext(r.Context(), "failed to store idempotency record", "error", err)
		}
	}
}
