package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ResultStore implements domain.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a new ResultStore backed by the given connection pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

const resultCols = `id, product_id, window_index, detected, group_size,
	period_snapshots, period_ns, combined_score, homogeneity, rhythm,
	exclusion, member_indices, window_started_at, window_closed_at,
	analyzed_at, analysis_time_ns`

const insertResultQuery = `
	INSERT INTO window_results (
		id, product_id, window_index, detected, group_size,
		period_snapshots, period_ns, combined_score, homogeneity, rhythm,
		exclusion, member_indices, window_started_at, window_closed_at,
		analyzed_at, analysis_time_ns
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16
	) ON CONFLICT (product_id, window_index) DO NOTHING`

// resultArgs lays out insert parameters in resultCols order. Member indices
// are stored as JSONB and durations as nanosecond bigints.
func resultArgs(res domain.WindowResult) ([]any, error) {
	membersJSON, err := json.Marshal(res.MemberIndices)
	if err != nil {
		return nil, fmt.Errorf("marshal member indices: %w", err)
	}
	return []any{
		res.ID, res.ProductID, res.WindowIndex, res.Detected, res.GroupSize,
		res.PeriodSnapshots, res.Period.Nanoseconds(), res.CombinedScore,
		res.Homogeneity, res.Rhythm, res.Exclusion, membersJSON,
		res.WindowStartedAt, res.WindowClosedAt, res.AnalyzedAt,
		res.AnalysisTime.Nanoseconds(),
	}, nil
}

// scanResult scans a single result row into a domain.WindowResult.
func scanResult(row pgx.Row) (domain.WindowResult, error) {
	var r domain.WindowResult
	var periodNS, analysisNS int64
	var membersJSON []byte
	err := row.Scan(
		&r.ID, &r.ProductID, &r.WindowIndex, &r.Detected, &r.GroupSize,
		&r.PeriodSnapshots, &periodNS, &r.CombinedScore, &r.Homogeneity,
		&r.Rhythm, &r.Exclusion, &membersJSON, &r.WindowStartedAt,
		&r.WindowClosedAt, &r.AnalyzedAt, &analysisNS,
	)
	if err != nil {
		return domain.WindowResult{}, err
	}
	r.Period = time.Duration(periodNS)
	r.AnalysisTime = time.Duration(analysisNS)
	if membersJSON != nil {
		if err := json.Unmarshal(membersJSON, &r.MemberIndices); err != nil {
			return domain.WindowResult{}, fmt.Errorf("unmarshal member indices: %w", err)
		}
	}
	return r, nil
}

// Insert writes a single window result. A result for an already-persisted
// (product, window index) pair is silently skipped, so replays do not
// duplicate rows.
func (s *ResultStore) Insert(ctx context.Context, res domain.WindowResult) error {
	args, err := resultArgs(res)
	if err != nil {
		return fmt.Errorf("postgres: insert result %s: %w", res.ID, err)
	}
	if _, err := s.pool.Exec(ctx, insertResultQuery, args...); err != nil {
		return fmt.Errorf("postgres: insert result %s: %w", res.ID, err)
	}
	return nil
}

// InsertBatch inserts multiple window results efficiently using pgx Batch.
// Duplicates (same product_id, window_index) are silently skipped via
// ON CONFLICT DO NOTHING.
func (s *ResultStore) InsertBatch(ctx context.Context, results []domain.WindowResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, res := range results {
		args, err := resultArgs(res)
		if err != nil {
			return fmt.Errorf("postgres: insert result %s: %w", res.ID, err)
		}
		batch.Queue(insertResultQuery, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert result batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID retrieves a result by its primary key.
func (s *ResultStore) GetByID(ctx context.Context, id string) (domain.WindowResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultCols+` FROM window_results WHERE id = $1`, id)
	r, err := scanResult(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WindowResult{}, domain.ErrNotFound
		}
		return domain.WindowResult{}, fmt.Errorf("postgres: get result %s: %w", id, err)
	}
	return r, nil
}

// GetLatest retrieves the most recent result for a product, by window index.
func (s *ResultStore) GetLatest(ctx context.Context, productID string) (domain.WindowResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultCols+` FROM window_results WHERE product_id = $1
		 ORDER BY window_index DESC LIMIT 1`, productID)
	r, err := scanResult(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WindowResult{}, domain.ErrNotFound
		}
		return domain.WindowResult{}, fmt.Errorf("postgres: get latest result %s: %w", productID, err)
	}
	return r, nil
}

// List returns results matching the filter with pagination and optional time
// filtering on analyzed_at.
func (s *ResultStore) List(ctx context.Context, filter domain.ResultFilter, opts domain.ListOpts) ([]domain.WindowResult, error) {
	query := `SELECT ` + resultCols + ` FROM window_results WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.ProductID != "" {
		query += fmt.Sprintf(" AND product_id = $%d", argIdx)
		args = append(args, filter.ProductID)
		argIdx++
	}
	if filter.Detected != nil {
		query += fmt.Sprintf(" AND detected = $%d", argIdx)
		args = append(args, *filter.Detected)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND analyzed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND analyzed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY analyzed_at DESC"

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
		return nil, fmt.Errorf("postgres: list results: %w", err)
	}
	defer rows.Close()

	var results []domain.WindowResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list results rows: %w", err)
	}
	return results, nil
}

// ListBefore returns results analyzed before the given time, oldest first,
// for the archiver. A limit <= 0 returns all matching rows.
func (s *ResultStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.WindowResult, error) {
	query := `SELECT ` + resultCols + ` FROM window_results WHERE analyzed_at < $1 ORDER BY analyzed_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list results before: %w", err)
	}
	defer rows.Close()

	var results []domain.WindowResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list results before rows: %w", err)
	}
	return results, nil
}

// DeleteBefore deletes all results analyzed before the given time. Returns the
// number deleted.
func (s *ResultStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM window_results WHERE analyzed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete results before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored results.
func (s *ResultStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM window_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count results: %w", err)
	}
	return count, nil
}
