package hypixel

import (
	"math"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// Side selects which half of a product's book the engine observes.
//
// An instant buy eats standing sell offers and advances the buy-side
// weekly counter, so the buy side couples buyMovingWeek with
// sell_summary; the sell side is the mirror image.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// APIOrderEntry is one order-book level as returned by the bazaar API.
type APIOrderEntry struct {
	PricePerUnit float64 `json:"pricePerUnit"`
	Amount       int64   `json:"amount"`
	Orders       int     `json:"orders"`
}

// APIQuickStatus carries the per-product aggregates of the bazaar API.
type APIQuickStatus struct {
	BuyPrice       float64 `json:"buyPrice"`
	SellPrice      float64 `json:"sellPrice"`
	BuyMovingWeek  float64 `json:"buyMovingWeek"`
	SellMovingWeek float64 `json:"sellMovingWeek"`
}

// APIProduct is one product entry of the bazaar API response.
type APIProduct struct {
	ProductID   string          `json:"product_id"`
	SellSummary []APIOrderEntry `json:"sell_summary"`
	BuySummary  []APIOrderEntry `json:"buy_summary"`
	QuickStatus APIQuickStatus  `json:"quick_status"`
}

// APIResponse is the full bazaar API response envelope.
type APIResponse struct {
	Success     bool                  `json:"success"`
	Cause       string                `json:"cause"`
	LastUpdated int64                 `json:"lastUpdated"` // milliseconds
	Products    map[string]APIProduct `json:"products"`
}

// ToSnapshot maps the product to a domain snapshot for one side of the
// book, stamped with the API's own update time.
func (p APIProduct) ToSnapshot(side Side, at time.Time) domain.Snapshot {
	price := p.QuickStatus.BuyPrice
	movingWeek := p.QuickStatus.BuyMovingWeek
	entries := p.SellSummary
	if side == SideSell {
		price = p.QuickStatus.SellPrice
		movingWeek = p.QuickStatus.SellMovingWeek
		entries = p.BuySummary
	}

	snap := domain.Snapshot{
		ProductID:  p.ProductID,
		Price:      price,
		MovingWeek: int64(math.Round(movingWeek)),
		Summary:    make(domain.OrderSummary, 0, len(entries)),
		Timestamp:  at,
	}
	for _, e := range entries {
		snap.Summary = append(snap.Summary, domain.OrderLevel{
			PriceTicks: priceTicks(e.PricePerUnit),
			SizeBucket: sizeBucket(e.Amount, e.Orders),
			Quantity:   e.Amount,
			Orders:     e.Orders,
		})
	}
	return snap
}

// priceTicks keys a level by its price at 1/1000 coin resolution, so
// float jitter in the feed cannot split one level into two.
func priceTicks(price float64) int64 {
	return int64(math.Round(price * 1000))
}

// sizeBucket classifies a level by its average order size.
func sizeBucket(amount int64, orders int) int64 {
	if orders < 1 {
		orders = 1
	}
	return int64(math.Round(float64(amount) / float64(orders)))
}
