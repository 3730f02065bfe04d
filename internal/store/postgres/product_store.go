package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ProductStore implements domain.ProductStore using PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore creates a new ProductStore backed by the given connection pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const productCols = `product_id, first_seen_at, last_seen_at,
	windows_completed, last_detected, updated_at`

// Upsert inserts or refreshes a product registry row. The first-seen
// timestamp of an existing row is preserved.
func (s *ProductStore) Upsert(ctx context.Context, info domain.ProductInfo) error {
	const query = `
		INSERT INTO products (
			product_id, first_seen_at, last_seen_at,
			windows_completed, last_detected, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW()
		)
		ON CONFLICT (product_id) DO UPDATE SET
			last_seen_at = GREATEST(products.last_seen_at, EXCLUDED.last_seen_at),
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		info.ProductID, info.FirstSeenAt, info.LastSeenAt,
		info.WindowsCompleted, info.LastDetected,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert product %s: %w", info.ProductID, err)
	}
	return nil
}

// RecordResult advances a product's window counter and records the verdict of
// its most recent window. The row is created if the product has never been
// registered.
func (s *ProductStore) RecordResult(ctx context.Context, productID string, detected bool, at time.Time) error {
	const query = `
		INSERT INTO products (
			product_id, first_seen_at, last_seen_at,
			windows_completed, last_detected, updated_at
		) VALUES (
			$1, $2, $2, 1, $3, NOW()
		)
		ON CONFLICT (product_id) DO UPDATE SET
			windows_completed = products.windows_completed + 1,
			last_detected     = EXCLUDED.last_detected,
			last_seen_at      = GREATEST(products.last_seen_at, EXCLUDED.last_seen_at),
			updated_at        = NOW()`

	_, err := s.pool.Exec(ctx, query, productID, at, detected)
	if err != nil {
		return fmt.Errorf("postgres: record result for product %s: %w", productID, err)
	}
	return nil
}

// GetByID retrieves a product registry row by its primary key.
func (s *ProductStore) GetByID(ctx context.Context, productID string) (domain.ProductInfo, error) {
	var info domain.ProductInfo
	err := s.pool.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE product_id = $1`, productID,
	).Scan(
		&info.ProductID, &info.FirstSeenAt, &info.LastSeenAt,
		&info.WindowsCompleted, &info.LastDetected, &info.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ProductInfo{}, domain.ErrNotFound
		}
		return domain.ProductInfo{}, fmt.Errorf("postgres: get product %s: %w", productID, err)
	}
	return info, nil
}

// List returns product registry rows ordered by product ID, with pagination
// and optional time filtering on last_seen_at.
func (s *ProductStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ProductInfo, error) {
	query := `SELECT ` + productCols + ` FROM products WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND last_seen_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND last_seen_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY product_id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	defer rows.Close()

	var products []domain.ProductInfo
	for rows.Next() {
		var info domain.ProductInfo
		if err := rows.Scan(
			&info.ProductID, &info.FirstSeenAt, &info.LastSeenAt,
			&info.WindowsCompleted, &info.LastDetected, &info.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		products = append(products, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list products rows: %w", err)
	}
	return products, nil
}

// Count returns the total number of registered products.
func (s *ProductStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count products: %w", err)
	}
	return count, nil
}
