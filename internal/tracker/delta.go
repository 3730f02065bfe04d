package tracker

import "github.com/alanyoungcy/bazaarpulse/internal/domain"

// levelAcc accumulates one indexed order-book level. Duplicate levels at
// the same price tick are merged by summing.
type levelAcc struct {
	bucket int64
	qty    int64
	orders int
}

func indexSummary(s domain.OrderSummary) map[int64]levelAcc {
	idx := make(map[int64]levelAcc, len(s))
	for _, lv := range s {
		acc, ok := idx[lv.PriceTicks]
		if !ok {
			acc = levelAcc{bucket: lv.SizeBucket}
		}
		acc.qty += lv.Quantity
		acc.orders += lv.Orders
		idx[lv.PriceTicks] = acc
	}
	return idx
}

// diffSummaries computes the signed per-bucket quantity change between
// two consecutive order summaries. Levels are matched by price tick; the
// per-level changes are then folded into size buckets. A bucket that
// collects both positive and negative level changes within this one diff
// has cancelled and is excluded from the record rather than summed.
func diffSummaries(prev, cur domain.OrderSummary) domain.SummaryDelta {
	prevIdx := indexSummary(prev)
	curIdx := indexSummary(cur)

	pos := make(map[int64]int64)
	neg := make(map[int64]int64)
	ordersAffected := 0

	for ticks, c := range curIdx {
		p := prevIdx[ticks]
		dq := c.qty - p.qty
		switch {
		case dq > 0:
			pos[c.bucket] += dq
		case dq < 0:
			neg[c.bucket] += -dq
		}
		if do := c.orders - p.orders; do > 0 {
			ordersAffected += do
		} else {
			ordersAffected += -do
		}
	}
	for ticks, p := range prevIdx {
		if _, ok := curIdx[ticks]; ok {
			continue
		}
		// Level vanished entirely.
		neg[p.bucket] += p.qty
		ordersAffected += p.orders
	}

	changes := make(map[int64]int64, len(pos)+len(neg))
	for bucket, q := range pos {
		if neg[bucket] > 0 {
			continue
		}
		changes[bucket] = q
	}
	for bucket, q := range neg {
		if pos[bucket] > 0 {
			continue
		}
		changes[bucket] = -q
	}

	return domain.SummaryDelta{Changes: changes, OrdersAffected: ordersAffected}
}
