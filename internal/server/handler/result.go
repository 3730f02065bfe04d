package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ResultService defines the methods the result handler requires from the
// persistent store.
type ResultService interface {
	GetByID(ctx context.Context, id string) (domain.WindowResult, error)
	GetLatest(ctx context.Context, productID string) (domain.WindowResult, error)
	List(ctx context.Context, filter domain.ResultFilter, opts domain.ListOpts) ([]domain.WindowResult, error)
	Count(ctx context.Context) (int64, error)
}

// LatestResultCache serves the hot copy of each product's newest result.
type LatestResultCache interface {
	GetLatest(ctx context.Context, productID string) (domain.WindowResult, error)
}

// StreamSource reads the durable result stream for catch-up reads.
type StreamSource interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// ResultHandler serves window-result endpoints.
type ResultHandler struct {
	results ResultService
	cache   LatestResultCache
	stream  StreamSource
	// streamName is the durable stream the catch-up endpoint reads.
	streamName string
	logger     *slog.Logger
}

// NewResultHandler creates a ResultHandler. cache and stream may be nil when
// the mode runs without Redis; the endpoints then fall back to the store or
// report unavailability.
func NewResultHandler(results ResultService, cache LatestResultCache, stream StreamSource, streamName string, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{
		results:    results,
		cache:      cache,
		stream:     stream,
		streamName: streamName,
		logger:     logger,
	}
}

// resultView is the JSON shape of one analyzed window.
type resultView struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	WindowIndex     int64     `json:"window_index"`
	Detected        bool      `json:"detected"`
	GroupSize       int       `json:"group_size,omitempty"`
	PeriodSnapshots float64   `json:"period_snapshots,omitempty"`
	PeriodSeconds   float64   `json:"period_seconds,omitempty"`
	CombinedScore   float64   `json:"combined_score"`
	Homogeneity     float64   `json:"homogeneity"`
	Rhythm          float64   `json:"rhythm"`
	Exclusion       float64   `json:"exclusion"`
	MemberIndices   []int     `json:"member_indices,omitempty"`
	WindowStartedAt time.Time `json:"window_started_at"`
	WindowClosedAt  time.Time `json:"window_closed_at"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
	AnalysisTimeMS  float64   `json:"analysis_time_ms"`
}

func toResultView(res domain.WindowResult) resultView {
	return resultView{
		ID:              res.ID,
		ProductID:       res.ProductID,
		WindowIndex:     res.WindowIndex,
		Detected:        res.Detected,
		GroupSize:       res.GroupSize,
		PeriodSnapshots: res.PeriodSnapshots,
		PeriodSeconds:   res.Period.Seconds(),
		CombinedScore:   res.CombinedScore,
		Homogeneity:     res.Homogeneity,
		Rhythm:          res.Rhythm,
		Exclusion:       res.Exclusion,
		MemberIndices:   res.MemberIndices,
		WindowStartedAt: res.WindowStartedAt,
		WindowClosedAt:  res.WindowClosedAt,
		AnalyzedAt:      res.AnalyzedAt,
		AnalysisTimeMS:  float64(res.AnalysisTime) / float64(time.Millisecond),
	}
}

// listResultsResponse wraps the list endpoint output with metadata.
type listResultsResponse struct {
	Results []resultView `json:"results"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListResults returns analyzed windows, newest first.
// GET /api/results?product_id=X&detected=true&since=...&until=...&limit=50&offset=0
func (h *ResultHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	filter := domain.ResultFilter{
		ProductID: r.URL.Query().Get("product_id"),
	}
	if v := r.URL.Query().Get("detected"); v != "" {
		detected, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "detected must be true or false")
			return
		}
		filter.Detected = &detected
	}

	results, err := h.results.List(r.Context(), filter, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list results failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	total, err := h.results.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count results failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count results")
		return
	}

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, toResultView(res))
	}

	writeJSON(w, http.StatusOK, listResultsResponse{
		Results: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetResult returns a single analyzed window by its ID.
// GET /api/results/{id}
func (h *ResultHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing result id")
		return
	}

	res, err := h.results.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get result failed",
			slog.String("result_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get result")
		return
	}

	writeJSON(w, http.StatusOK, toResultView(res))
}

// GetLatest returns the newest analyzed window for one product, served from
// the cache when possible.
// GET /api/results/latest?product_id=X
func (h *ResultHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}

	if h.cache != nil {
		res, err := h.cache.GetLatest(r.Context(), productID)
		if err == nil {
			writeJSON(w, http.StatusOK, toResultView(res))
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: latest-result cache read failed",
				slog.String("product_id", productID),
				slog.String("error", err.Error()),
			)
		}
	}

	res, err := h.results.GetLatest(r.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no results for product")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get latest result failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get latest result")
		return
	}

	writeJSON(w, http.StatusOK, toResultView(res))
}

// streamMessageView is one catch-up entry from the durable result stream.
type streamMessageView struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// streamResponse carries catch-up entries plus the cursor for the next read.
type streamResponse struct {
	Messages []streamMessageView `json:"messages"`
	NextID   string              `json:"next_id"`
}

// StreamResults reads the durable result stream from a cursor, letting
// clients catch up on results they missed before following the websocket.
// GET /api/results/stream?last_id=0&count=100
func (h *ResultHandler) StreamResults(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "result stream not available in this mode")
		return
	}

	lastID := r.URL.Query().Get("last_id")
	if lastID == "" {
		lastID = "0"
	}
	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}
	if count > 1000 {
		count = 1000
	}

	msgs, err := h.stream.StreamRead(r.Context(), h.streamName, lastID, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read result stream")
		return
	}

	resp := streamResponse{
		Messages: make([]streamMessageView, 0, len(msgs)),
		NextID:   lastID,
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, streamMessageView{
			ID:      msg.ID,
			Payload: json.RawMessage(msg.Payload),
		})
		resp.NextID = msg.ID
	}

	writeJSON(w, http.StatusOK, resp)
}
