package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnap(product string, movingWeek int64, at time.Time) domain.Snapshot {
	return domain.Snapshot{
		ProductID:  product,
		Price:      412.5,
		MovingWeek: movingWeek,
		Summary: domain.OrderSummary{
			{PriceTicks: 412500, SizeBucket: 64, Quantity: 640, Orders: 10},
		},
		Timestamp: at,
	}
}

// ---------------------------------------------------------------------------
// Feed fakes
// ---------------------------------------------------------------------------

type fakeFetcher struct {
	mu         sync.Mutex
	batches    []domain.SnapshotBatch
	errs       []error
	calls      int
	watermarks []int64
}

func (f *fakeFetcher) FetchSince(ctx context.Context, watermark int64) (domain.SnapshotBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermarks = append(f.watermarks, watermark)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.SnapshotBatch{}, f.errs[i]
	}
	if i >= len(f.batches) {
		return domain.SnapshotBatch{}, domain.ErrNotModified
	}
	return f.batches[i], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	err     error
	calls   int
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.allowed, l.err
}


type fakeLocks struct {
	mu   sync.Mutex
	err  error
	keys []string
	ttls []time.Duration
}

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

type fakeSnapshotCache struct {
	mu      sync.Mutex
	snaps   map[string]domain.Snapshot
	batches int
	err     error
}

func newFakeSnapshotCache() *fakeSnapshotCache {
	return &fakeSnapshotCache{snaps: make(map[string]domain.Snapshot)}
}

func (c *fakeSnapshotCache) Set(ctx context.Context, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.snaps[snap.ProductID] = snap
	return nil
}

func (c *fakeSnapshotCache) Get(ctx context.Context, productID string) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[productID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *fakeSnapshotCache) SetBatch(ctx context.Context, snaps []domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.batches++
	for _, snap := range snaps {
		c.snaps[snap.ProductID] = snap
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sink fakes
// ---------------------------------------------------------------------------

type fakeResultWriter struct {
	mu       sync.Mutex
	inserted []domain.WindowResult
	err      error
}

func (w *fakeResultWriter) Insert(ctx context.Context, res domain.WindowResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.inserted = append(w.inserted, res)
	return nil
}

type recordedProduct struct {
	productID string
	detected  bool
	at        time.Time
}

type fakeProductRecorder struct {
	mu      sync.Mutex
	calls   []recordedProduct
	upserts []domain.ProductInfo
}

func (r *fakeProductRecorder) Upsert(ctx context.Context, info domain.ProductInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, info)
	return nil
}

func (r *fakeProductRecorder) RecordResult(ctx context.Context, productID string, detected bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedProduct{productID, detected, at})
	return nil
}

type fakeResultCache struct {
	mu     sync.Mutex
	latest map[string]domain.WindowResult
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{latest: make(map[string]domain.WindowResult)}
}

func (c *fakeResultCache) SetLatest(ctx context.Context, res domain.WindowResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[res.ProductID] = res
	return nil
}

func (c *fakeResultCache) GetLatest(ctx context.Context, productID string) (domain.WindowResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.latest[productID]
	if !ok {
		return domain.WindowResult{}, domain.ErrNotFound
	}
	return res, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], bytes.Clone(payload))
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], bytes.Clone(payload))
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type auditedEvent struct {
	event  string
	detail map[string]any
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditedEvent
}

func (a *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditedEvent{event, detail})
	return nil
}

func (a *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *fakeAudit) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type notified struct {
	event   string
	title   string
	message string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []notified
}

func (n *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, notified{event, title, message})
	return nil
}

// ---------------------------------------------------------------------------
// Blob fakes
// ---------------------------------------------------------------------------

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *fakeBlobStore) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = raw
	s.types[path] = contentType
	s.puts++
	return nil
}

func (s *fakeBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error {
	return s.Put(ctx, path, data, contentType)
}

func (s *fakeBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var infos []domain.BlobInfo
	for path, raw := range s.objects {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(raw))})
		}
	}
	return infos, nil
}

func (s *fakeBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok, nil
}
