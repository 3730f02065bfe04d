package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResultCache implements domain.ResultCache using one JSON value per product
// at key "result:latest:{productID}". Entries have no TTL: the latest verdict
// stands until the next window replaces it.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

func resultKey(productID string) string {
	return "result:latest:" + productID
}

// cachedResult mirrors domain.WindowResult field for field so the two convert
// directly; durations are stored as nanoseconds.
type cachedResult struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	WindowIndex int64  `json:"window_index"`
	Detected    bool   `json:"detected"`

	GroupSize       int           `json:"group_size,omitempty"`
	PeriodSnapshots float64       `json:"period_snapshots,omitempty"`
	Period          time.Duration `json:"period_ns,omitempty"`
	CombinedScore   float64       `json:"combined_score"`
	Homogeneity     float64       `json:"homogeneity"`
	Rhythm          float64       `json:"rhythm"`
	Exclusion       float64       `json:"exclusion"`
	MemberIndices   []int         `json:"member_indices,omitempty"`

	WindowStartedAt time.Time     `json:"window_started_at"`
	WindowClosedAt  time.Time     `json:"window_closed_at"`
	AnalyzedAt      time.Time     `json:"analyzed_at"`
	AnalysisTime    time.Duration `json:"analysis_time_ns"`
}

// SetLatest stores the most recent window result for a product.
func (rc *ResultCache) SetLatest(ctx context.Context, res domain.WindowResult) error {
	data, err := json.Marshal(cachedResult(res))
	if err != nil {
		return fmt.Errorf("redis: encode result %s: %w", res.ProductID, err)
	}
	if err := rc.rdb.Set(ctx, resultKey(res.ProductID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set result %s: %w", res.ProductID, err)
	}
	return nil
}

// GetLatest retrieves the most recent window result for a product.
// It returns domain.ErrNotFound when no result has been cached yet.
func (rc *ResultCache) GetLatest(ctx context.Context, productID string) (domain.WindowResult, error) {
	data, err := rc.rdb.Get(ctx, resultKey(productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WindowResult{}, domain.ErrNotFound
		}
		return domain.WindowResult{}, fmt.Errorf("redis: get result %s: %w", productID, err)
	}

	var cr cachedResult
	if err := json.Unmarshal(data, &cr); err != nil {
		return domain.WindowResult{}, fmt.Errorf("redis: decode result %s: %w", productID, err)
	}
	return domain.WindowResult(cr), nil
}

// Compile-time interface check.
var _ domain.ResultCache = (*ResultCache)(nil)
