package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory backends
// ---------------------------------------------------------------------------

type memBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	modified  map[string]time.Time
	multipart map[string]bool
}

func newMemBlob() *memBlob {
	return &memBlob{
		objects:   make(map[string][]byte),
		modified:  make(map[string]time.Time),
		multipart: make(map[string]bool),
	}
}

func (b *memBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	b.modified[path] = time.Now()
	return nil
}

func (b *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	if err := b.Put(ctx, path, data, contentType); err != nil {
		return err
	}
	b.mu.Lock()
	b.multipart[path] = true
	b.mu.Unlock()
	return nil
}

func (b *memBlob) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlob) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var infos []domain.BlobInfo
	for path, raw := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         path,
				Size:         int64(len(raw)),
				LastModified: b.modified[path],
			})
		}
	}
	return infos, nil
}

func (b *memBlob) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

func (b *memBlob) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, path)
	delete(b.modified, path)
	return nil
}

// memResultStore keeps the strict less-than cutoff of the Postgres
// result store.
type memResultStore struct {
	rows []domain.WindowResult
}

func (s *memResultStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.WindowResult, error) {
	var out []domain.WindowResult
	for _, r := range s.rows {
		if r.AnalyzedAt.Before(before) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memResultStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.WindowResult
	var deleted int64
	for _, r := range s.rows {
		if r.AnalyzedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return deleted, nil
}

// memAuditStore keeps the inclusive cutoff of the Postgres audit store:
// List's Until and DeleteBefore both cover entries created exactly at
// the bound.
type memAuditStore struct {
	entries []domain.AuditEntry
	nextID  int64
}

func (s *memAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.nextID++
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *memAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *memAuditStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.AuditEntry
	var deleted int64
	for _, e := range s.entries {
		if !e.CreatedAt.After(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestArchiveResults_UploadsThenDeletes(t *testing.T) {
	blob := newMemBlob()
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	results := &memResultStore{rows: []domain.WindowResult{
		{ID: "old-1", ProductID: "ENCHANTED_COAL", WindowIndex: 1, AnalyzedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "old-2", ProductID: "ENCHANTED_COAL", WindowIndex: 2, AnalyzedAt: cutoff.Add(-time.Hour)},
		{ID: "fresh", ProductID: "ENCHANTED_COAL", WindowIndex: 3, AnalyzedAt: cutoff.Add(time.Hour)},
	}}
	audit := &memAuditStore{}
	a := NewArchiver(blob, blob, blob, results, audit)

	n, err := a.ArchiveResults(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveResults: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d rows, want 2", n)
	}

	path := archivePath("results", cutoff)
	raw, ok := blob.objects[path]
	if !ok {
		t.Fatalf("archive not uploaded at %s", path)
	}
	if lines := strings.Count(strings.TrimRight(string(raw), "\n"), "\n") + 1; lines != 2 {
		t.Errorf("archive holds %d lines, want 2", lines)
	}

	if len(results.rows) != 1 || results.rows[0].ID != "fresh" {
		t.Errorf("store rows after drain = %+v, want only the fresh row", results.rows)
	}
	if len(audit.entries) != 1 || audit.entries[0].Event != "archive.results" {
		t.Errorf("audit after drain = %+v, want one archive.results entry", audit.entries)
	}
}

func TestArchiveAudit_CutoffEntryDrainedExactlyOnce(t *testing.T) {
	blob := newMemBlob()
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	audit := &memAuditStore{entries: []domain.AuditEntry{
		{ID: 1, Event: "poll.failure", CreatedAt: cutoff.Add(-time.Hour)},
		{ID: 2, Event: "window.closed", CreatedAt: cutoff}, // exactly at the bound
		{ID: 3, Event: "window.closed", CreatedAt: cutoff.Add(time.Hour)},
	}}
	a := NewArchiver(blob, blob, blob, &memResultStore{}, audit)

	n, err := a.ArchiveAudit(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveAudit: %v", err)
	}
	// The entry created exactly at the cutoff is uploaded and deleted by
	// the same run; an asymmetric delete bound used to leave it behind
	// for the next run to archive again.
	if n != 2 {
		t.Fatalf("archived %d entries, want 2 including the cutoff entry", n)
	}
	for _, e := range audit.entries {
		if e.ID == 2 {
			t.Error("cutoff entry still in the store after archiving")
		}
	}

	n, err = a.ArchiveAudit(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveAudit (second run): %v", err)
	}
	if n != 0 {
		t.Errorf("second run archived %d entries, want 0", n)
	}
	if len(blob.objects) != 1 {
		t.Errorf("bucket holds %d objects after both runs, want 1", len(blob.objects))
	}
}

func TestArchiveUpload_LargePayloadGoesMultipart(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, blob, blob, &memResultStore{}, &memAuditStore{})

	if err := a.upload(context.Background(), "archive/small.jsonl", make([]byte, 1024)); err != nil {
		t.Fatalf("upload small: %v", err)
	}
	if err := a.upload(context.Background(), "archive/large.jsonl", make([]byte, multipartThreshold)); err != nil {
		t.Fatalf("upload large: %v", err)
	}

	if blob.multipart["archive/small.jsonl"] {
		t.Error("small payload used multipart")
	}
	if !blob.multipart["archive/large.jsonl"] {
		t.Error("large payload did not use multipart")
	}
}

func TestPruneRaw_DeletesOnlyOldRecordings(t *testing.T) {
	blob := newMemBlob()
	cutoff := time.Now().Add(-time.Hour)

	seed := func(path string, at time.Time) {
		blob.objects[path] = []byte("{}\n")
		blob.modified[path] = at
	}
	seed("raw/2026-08-01/00/1.jsonl", cutoff.Add(-time.Minute))
	seed("raw/2026-08-29/12/2.jsonl", cutoff.Add(time.Minute))
	seed("archive/results/2026-08/x.jsonl", cutoff.Add(-time.Minute))

	audit := &memAuditStore{}
	a := NewArchiver(blob, blob, blob, &memResultStore{}, audit)

	n, err := a.PruneRaw(context.Background(), "raw/", cutoff)
	if err != nil {
		t.Fatalf("PruneRaw: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d objects, want 1", n)
	}
	if _, ok := blob.objects["raw/2026-08-01/00/1.jsonl"]; ok {
		t.Error("old recording survived pruning")
	}
	if _, ok := blob.objects["raw/2026-08-29/12/2.jsonl"]; !ok {
		t.Error("recent recording was pruned")
	}
	if _, ok := blob.objects["archive/results/2026-08/x.jsonl"]; !ok {
		t.Error("object outside the prefix was pruned")
	}
	if len(audit.entries) != 1 || audit.entries[0].Event != "archive.prune_raw" {
		t.Errorf("audit = %+v, want one archive.prune_raw entry", audit.entries)
	}
}
