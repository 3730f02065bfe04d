package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interface required by the archiver.
//
// The archiver only needs the time-ranged query and delete methods, not the
// full domain.ResultStore. The Postgres store satisfies this implicitly.
// ---------------------------------------------------------------------------

// ResultArchiveStore provides read and delete access to window results for
// archival purposes.
type ResultArchiveStore interface {
	// ListBefore returns results analyzed strictly before the cutoff,
	// oldest first. A limit <= 0 returns all matching rows.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.WindowResult, error)
	// DeleteBefore removes results analyzed strictly before the cutoff.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by draining old rows from the
// primary store into JSONL files on S3 and deleting them once the upload has
// succeeded. If the upload fails the rows stay in the database for the next
// run, so no record is lost between the two steps.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	deleter domain.BlobDeleter
	results ResultArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	deleter domain.BlobDeleter,
	results ResultArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		deleter: deleter,
		results: results,
		audit:   audit,
	}
}

// archivedResult mirrors domain.WindowResult field for field so the two
// convert directly; durations are stored as nanoseconds. Domain types carry
// no tags, so the archive owns its JSONL encoding.
type archivedResult struct {
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

// archivedAudit mirrors domain.AuditEntry.
type archivedAudit struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ArchiveResults drains all window results analyzed before the cutoff into a
// JSONL file on S3, deletes the archived rows, and records the run in the
// audit log. Returns the number of archived rows.
func (a *ArchiveImpl) ArchiveResults(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.results.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive results query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]archivedResult, 0, len(rows))
	for _, r := range rows {
		records = append(records, archivedResult(r))
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive results marshal: %w", err)
	}

	path := archivePath("results", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive results upload: %w", err)
	}

	count := int64(len(rows))

	if _, err := a.results.DeleteBefore(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive results delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.results", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive results audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit drains audit entries created up to the cutoff into a JSONL
// file on S3 and deletes the archived rows. The run's own audit entry is
// written after the delete, so it survives the pass it records.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]archivedAudit, 0, len(entries))
	for _, e := range entries {
		records = append(records, archivedAudit(e))
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if _, err := a.audit.DeleteBefore(ctx, before); err != nil {
		return count, fmt.Errorf("s3blob: archive audit delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}

	return count, nil
}

// PruneRaw deletes raw feed recordings under the given prefix whose
// last-modified time is before the cutoff. Returns the number of objects
// removed.
func (a *ArchiveImpl) PruneRaw(ctx context.Context, prefix string, before time.Time) (int64, error) {
	infos, err := a.reader.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune raw list: %w", err)
	}

	var pruned int64
	for _, info := range infos {
		if !info.LastModified.Before(before) {
			continue
		}
		if err := a.deleter.Delete(ctx, info.Path); err != nil {
			return pruned, fmt.Errorf("s3blob: prune raw delete %s: %w", info.Path, err)
		}
		pruned++
	}

	if pruned > 0 {
		if err := a.audit.Log(ctx, "archive.prune_raw", map[string]any{
			"prefix": prefix,
			"count":  pruned,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return pruned, fmt.Errorf("s3blob: prune raw audit log: %w", err)
		}
	}

	return pruned, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// multipartThreshold is the archive size past which uploads switch to
// multipart. A month of drained rows on a busy feed can exceed what a
// single PutObject request handles comfortably.
const multipartThreshold = 8 * 1024 * 1024

func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if int64(len(buf)) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), "application/x-ndjson", minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff and stamped with the cutoff itself so repeated
// runs within a month never overwrite each other.
//
//	archive/results/2025-01/20250115T060000Z.jsonl
//	archive/audit/2025-01/20250115T060000Z.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, before.Format("2006-01"), before.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
