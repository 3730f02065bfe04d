package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ProductService defines the methods the product handler requires. It is
// declared locally so the handler package does not depend on the concrete
// store implementation.
type ProductService interface {
	GetByID(ctx context.Context, productID string) (domain.ProductInfo, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.ProductInfo, error)
	Count(ctx context.Context) (int64, error)
}

// SnapshotReader serves the latest observed snapshot per product.
type SnapshotReader interface {
	Get(ctx context.Context, productID string) (domain.Snapshot, error)
}

// ProductHandler serves product registry endpoints.
type ProductHandler struct {
	products  ProductService
	snapshots SnapshotReader
	logger    *slog.Logger
}

// NewProductHandler creates a ProductHandler.
func NewProductHandler(products ProductService, snapshots SnapshotReader, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		products:  products,
		snapshots: snapshots,
		logger:    logger,
	}
}

// productView is the JSON shape of one product registry row.
type productView struct {
	ProductID        string    `json:"product_id"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	WindowsCompleted int64     `json:"windows_completed"`
	LastDetected     *bool     `json:"last_detected"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toProductView(info domain.ProductInfo) productView {
	return productView(info)
}

// listProductsResponse wraps the list endpoint output with metadata.
type listProductsResponse struct {
	Products []productView `json:"products"`
	Total    int64         `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// ListProducts returns tracked products with pagination.
// GET /api/products?limit=50&offset=0
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	infos, err := h.products.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list products failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	total, err := h.products.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count products failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count products")
		return
	}

	views := make([]productView, 0, len(infos))
	for _, info := range infos {
		views = append(views, toProductView(info))
	}

	writeJSON(w, http.StatusOK, listProductsResponse{
		Products: views,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetProduct returns a single product registry row.
// GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	info, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get product failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	writeJSON(w, http.StatusOK, toProductView(info))
}

// snapshotView is the JSON shape of the latest cached snapshot.
type snapshotView struct {
	ProductID  string      `json:"product_id"`
	Price      float64     `json:"price"`
	MovingWeek int64       `json:"moving_week"`
	Summary    []levelView `json:"summary,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

type levelView struct {
	PriceTicks int64 `json:"price_ticks"`
	SizeBucket int64 `json:"size_bucket"`
	Quantity   int64 `json:"quantity"`
	Orders     int   `json:"orders"`
}

// GetSnapshot returns the most recent snapshot observed for a product.
// GET /api/products/{id}/snapshot
func (h *ProductHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	snap, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshot for product")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get snapshot failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}

	view := snapshotView{
		ProductID:  snap.ProductID,
		Price:      snap.Price,
		MovingWeek: snap.MovingWeek,
		Timestamp:  snap.Timestamp,
	}
	for _, lvl := range snap.Summary {
		view.Summary = append(view.Summary, levelView(lvl))
	}

	writeJSON(w, http.StatusOK, view)
}
