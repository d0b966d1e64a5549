// Package cache keeps downloaded media segments in memory. Each entry is
// loaded exactly once regardless of how many requests arrive for it, lives
// for a sliding idle window after its last access, and is evicted by its own
// lifecycle goroutine.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/hlsproxy/internal/downloader"
)

var (
	// ErrCacheFull is returned when admitting a new entry would grow the
	// pool past its size limit. Callers redirect to the origin instead.
	ErrCacheFull = errors.New("cache: size limit reached")

	// ErrLoadFailed is returned when the entry's download did not complete
	// before the entry expired.
	ErrLoadFailed = errors.New("cache: resource load failed")
)

// retryDelay paces download retries for a still-live entry.
const retryDelay = time.Second

// Resource is a cached upstream object.
type Resource struct {
	Data        []byte
	ContentType string
}

// Loader fetches an origin URL into memory. *downloader.Downloader
// implements it.
type Loader interface {
	Download(ctx context.Context, origin string, threads int) (*downloader.Result, error)
}

// Config configures a Pool.
type Config struct {
	// SizeLimit is the soft byte cap. Admission of a new entry is refused
	// once the pool's counted size reaches it; entries being loaded count
	// as zero until their size is known.
	SizeLimit int64

	// TTL is the idle lifetime of an entry. Every access pushes the
	// expiry forward by this much.
	TTL time.Duration

	// Threads is the connection count for parallel downloads.
	Threads int

	Loader Loader
	Logger *slog.Logger
}

// Pool is the in-memory segment cache.
type Pool struct {
	mu    sync.RWMutex
	items map[string]*item

	sizeLimit int64
	ttl       time.Duration
	threads   int
	loader    Loader
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// item is one cached entry. Its mu is write-held for the whole download, so
// readers block until the data is in and size polling sees in-flight loads
// as empty.
type item struct {
	mu       sync.RWMutex
	resource *Resource

	// expireAt is unix nanoseconds, advanced on every access.
	expireAt atomic.Int64
}

func (it *item) refresh(ttl time.Duration) {
	it.expireAt.Store(time.Now().Add(ttl).UnixNano())
}

func (it *item) expireTime() time.Time {
	return time.Unix(0, it.expireAt.Load())
}

// NewPool creates a Pool and starts accepting entries immediately.
func NewPool(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	return &Pool{
		items:     make(map[string]*item),
		sizeLimit: cfg.SizeLimit,
		ttl:       cfg.TTL,
		threads:   threads,
		loader:    cfg.Loader,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Prepare admits origin into the cache and starts its download in the
// background without waiting for the data. It is a no-op beyond an expiry
// refresh when the entry already exists.
func (p *Pool) Prepare(origin string) error {
	it, err := p.acquire(origin)
	if err != nil {
		return err
	}
	it.refresh(p.ttl)
	return nil
}

// Get returns the cached resource for origin, admitting and downloading it
// first if needed. It blocks while the entry is still being loaded.
func (p *Pool) Get(ctx context.Context, origin string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	it, err := p.acquire(origin)
	if err != nil {
		return nil, err
	}
	it.refresh(p.ttl)

	// Blocks until the loader releases the write lock. The load itself is
	// bounded by the entry's expiry, so this cannot wait forever.
	it.mu.RLock()
	res := it.resource
	it.mu.RUnlock()

	if res == nil {
		return nil, ErrLoadFailed
	}
	return res, nil
}

// Contains reports whether origin currently has a cache entry, loaded or
// loading.
func (p *Pool) Contains(origin string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.items[origin]
	return ok
}

// Len returns the number of entries, including ones still loading.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Size returns the counted byte size of the pool. Entries still loading
// contribute zero.
func (p *Pool) Size() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sizeLocked()
}

// Close stops all lifecycle goroutines and cancels in-flight downloads.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// sizeLocked sums loaded entry sizes. Callers hold p.mu in either mode.
func (p *Pool) sizeLocked() int64 {
	var total int64
	for _, it := range p.items {
		if it.mu.TryRLock() {
			if it.resource != nil {
				total += int64(len(it.resource.Data))
			}
			it.mu.RUnlock()
		}
	}
	return total
}

// acquire returns the entry for origin, creating and starting it when absent.
func (p *Pool) acquire(origin string) (*item, error) {
	p.mu.RLock()
	it := p.items[origin]
	p.mu.RUnlock()
	if it != nil {
		return it, nil
	}

	p.mu.Lock()
	if it := p.items[origin]; it != nil {
		p.mu.Unlock()
		return it, nil
	}

	if p.sizeLimit > 0 && p.sizeLocked() >= p.sizeLimit {
		p.mu.Unlock()
		p.logger.Warn("cache full, refusing admission", slog.String("url", origin))
		return nil, ErrCacheFull
	}

	it = &item{}
	it.refresh(p.ttl)
	// Held until the download finishes so every reader waits on it.
	it.mu.Lock()
	p.items[origin] = it
	p.mu.Unlock()

	go p.runItem(origin, it)
	return it, nil
}

// runItem owns the entry's lifecycle: download, then wait out the idle
// window, then remove itself from the pool.
func (p *Pool) runItem(origin string, it *item) {
	// The load races against the live expiry, not a snapshot of it:
	// accesses during the download keep pushing the deadline out, so a
	// slow transfer survives as long as clients keep asking for it.
	ctx, cancel := context.WithCancel(context.Background())
	loaded := make(chan struct{})
	go func() {
		defer cancel()
		p.waitExpire(it, loaded)
	}()

	res := p.load(ctx, origin)
	close(loaded)
	cancel()

	it.resource = res
	it.mu.Unlock()

	if res == nil {
		p.remove(origin, it)
		return
	}

	p.logger.Debug("cached",
		slog.String("url", origin),
		slog.Int("bytes", len(res.Data)),
		slog.String("content_type", res.ContentType),
	)

	p.waitExpire(it, nil)
	p.remove(origin, it)
	p.logger.Debug("expired", slog.String("url", origin))
}

// load downloads origin, retrying until ctx expires. Servers without range
// support demote the transfer to a single connection.
func (p *Pool) load(ctx context.Context, origin string) *Resource {
	threads := p.threads
	for {
		result, err := p.loader.Download(ctx, origin, threads)
		if err == nil {
			return &Resource{Data: result.Data, ContentType: result.ContentType}
		}

		if threads > 1 && (errors.Is(err, downloader.ErrRangeNotSupported) ||
			errors.Is(err, downloader.ErrContentLengthMissing)) {
			p.logger.Debug("parallel download unavailable, using single connection",
				slog.String("url", origin),
				slog.String("reason", err.Error()),
			)
			threads = 1
			continue
		}

		if ctx.Err() != nil {
			p.logger.Warn("resource load abandoned",
				slog.String("url", origin),
				slog.String("error", err.Error()),
			)
			return nil
		}

		p.logger.Warn("download failed, retrying",
			slog.String("url", origin),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

// waitExpire sleeps until the entry's idle window elapses. Accesses push the
// expiry forward, so the loop re-arms until a wakeup finds it in the past.
// A close of stop ends the wait early; nil means wait for expiry alone.
func (p *Pool) waitExpire(it *item, stop <-chan struct{}) {
	for {
		remaining := time.Until(it.expireTime())
		if remaining <= 0 {
			return
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		case <-p.done:
			timer.Stop()
			return
		}
	}
}

func (p *Pool) remove(origin string, it *item) {
	p.mu.Lock()
	if cur, ok := p.items[origin]; ok && cur == it {
		delete(p.items, origin)
	}
	p.mu.Unlock()
}
