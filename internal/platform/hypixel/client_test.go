package hypixel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

const bazaarPayload = `{
	"success": true,
	"lastUpdated": 1736935200000,
	"products": {
		"ENCHANTED_LAPIS": {
			"product_id": "ENCHANTED_LAPIS",
			"sell_summary": [
				{"pricePerUnit": 90.1, "amount": 640, "orders": 10}
			],
			"buy_summary": [
				{"pricePerUnit": 85.0, "amount": 320, "orders": 4}
			],
			"quick_status": {
				"buyPrice": 90.3,
				"sellPrice": 84.9,
				"buyMovingWeek": 1200000,
				"sellMovingWeek": 900000
			}
		},
		"ENCHANTED_COAL": {
			"product_id": "ENCHANTED_COAL",
			"sell_summary": [],
			"buy_summary": [],
			"quick_status": {
				"buyPrice": 412.5,
				"sellPrice": 401.2,
				"buyMovingWeek": 50000,
				"sellMovingWeek": 48000
			}
		}
	}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchAll(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != bazaarPath {
			t.Errorf("path = %s, want %s", r.URL.Path, bazaarPath)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		w.Write([]byte(bazaarPayload))
	})

	c := NewClient(srv.URL, "", SideBuy)
	bz, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bz.LastUpdated != 1736935200000 {
		t.Errorf("LastUpdated = %d, want 1736935200000", bz.LastUpdated)
	}
	if len(bz.Snapshots) != 2 {
		t.Fatalf("len(Snapshots) = %d, want 2", len(bz.Snapshots))
	}
	// Snapshots come back sorted by product ID.
	if bz.Snapshots[0].ProductID != "ENCHANTED_COAL" || bz.Snapshots[1].ProductID != "ENCHANTED_LAPIS" {
		t.Errorf("order = %s, %s, want ENCHANTED_COAL, ENCHANTED_LAPIS",
			bz.Snapshots[0].ProductID, bz.Snapshots[1].ProductID)
	}

	lapis := bz.Snapshots[1]
	if lapis.Price != 90.3 {
		t.Errorf("Price = %v, want buy price 90.3", lapis.Price)
	}
	if lapis.MovingWeek != 1200000 {
		t.Errorf("MovingWeek = %d, want 1200000", lapis.MovingWeek)
	}
	// The buy side observes the standing sell offers.
	if len(lapis.Summary) != 1 {
		t.Fatalf("len(Summary) = %d, want 1", len(lapis.Summary))
	}
	lv := lapis.Summary[0]
	if lv.PriceTicks != 90100 {
		t.Errorf("PriceTicks = %d, want 90100", lv.PriceTicks)
	}
	if lv.SizeBucket != 64 {
		t.Errorf("SizeBucket = %d, want 64", lv.SizeBucket)
	}
	if lv.Quantity != 640 || lv.Orders != 10 {
		t.Errorf("Quantity/Orders = %d/%d, want 640/10", lv.Quantity, lv.Orders)
	}
	if lapis.Timestamp.UnixMilli() != bz.LastUpdated {
		t.Errorf("Timestamp = %v, want the API update time", lapis.Timestamp)
	}
}

func TestClient_FetchAll_SellSide(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bazaarPayload))
	})

	c := NewClient(srv.URL, "", SideSell)
	bz, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lapis := bz.Snapshots[1]
	if lapis.Price != 84.9 {
		t.Errorf("Price = %v, want sell price 84.9", lapis.Price)
	}
	if lapis.MovingWeek != 900000 {
		t.Errorf("MovingWeek = %d, want 900000", lapis.MovingWeek)
	}
	if len(lapis.Summary) != 1 || lapis.Summary[0].PriceTicks != 85000 {
		t.Errorf("Summary = %+v, want the buy-order book", lapis.Summary)
	}
}

func TestClient_FetchSince(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(bazaarPayload))
	})
	c := NewClient(srv.URL, "", SideBuy)

	if _, err := c.FetchSince(context.Background(), 1736935200000); !errors.Is(err, domain.ErrNotModified) {
		t.Errorf("unchanged watermark: err = %v, want ErrNotModified", err)
	}

	bz, err := c.FetchSince(context.Background(), 1736935100000)
	if err != nil {
		t.Fatalf("older watermark: unexpected error: %v", err)
	}
	if len(bz.Snapshots) != 2 {
		t.Errorf("len(Snapshots) = %d, want 2", len(bz.Snapshots))
	}
}

func TestClient_FetchAll_APIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "cause": "Invalid API key"}`))
	})
	c := NewClient(srv.URL, "bad-key", SideBuy)

	_, err := c.FetchAll(context.Background())
	if err == nil {
		t.Fatal("expected an error for success=false")
	}
}

func TestClient_FetchAll_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusServiceUnavailable, domain.ErrUnavailable},
	}
	for _, tt := range tests {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		c := NewClient(srv.URL, "", SideBuy)
		_, err := c.FetchAll(context.Background())
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestClient_SendsAPIKey(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("API-Key"); got != "test-key" {
			t.Errorf("API-Key = %q, want test-key", got)
		}
		w.Write([]byte(bazaarPayload))
	})
	c := NewClient(srv.URL, "test-key", SideBuy)
	if _, err := c.FetchAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSizeBucket(t *testing.T) {
	tests := []struct {
		amount int64
		orders int
		want   int64
	}{
		{640, 10, 64},
		{100, 3, 33},
		{50, 0, 50},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := sizeBucket(tt.amount, tt.orders); got != tt.want {
			t.Errorf("sizeBucket(%d, %d) = %d, want %d", tt.amount, tt.orders, got, tt.want)
		}
	}
}
