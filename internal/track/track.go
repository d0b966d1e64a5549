// Package track keeps watched playlists warm. Each tracked playlist gets a
// worker that periodically re-fetches it and pre-admits every media entry
// into the segment cache, until the playlist goes unrequested for its idle
// window.
package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/hlsproxy/internal/cache"
	"github.com/jmylchreest/hlsproxy/internal/codec"
	"github.com/jmylchreest/hlsproxy/internal/httpclient"
	"github.com/jmylchreest/hlsproxy/internal/urlutil"
)

// Preparer admits a URL into the segment cache. *cache.Pool implements it.
type Preparer interface {
	Prepare(origin string) error
}

// Config configures a Pool.
type Config struct {
	// TTL is how long a playlist stays tracked after its last request.
	TTL time.Duration

	// Interval is the re-fetch period while tracked.
	Interval time.Duration

	Client *httpclient.Client
	Parser *codec.Parser
	Cache  Preparer
	Logger *slog.Logger
}

// Pool tracks playlists and pre-warms their segments.
type Pool struct {
	mu       sync.Mutex
	trackers map[string]*tracker

	ttl      time.Duration
	interval time.Duration
	client   *httpclient.Client
	parser   *codec.Parser
	cache    Preparer
	logger   *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type tracker struct {
	expireAt atomic.Int64
}

func (tr *tracker) refresh(ttl time.Duration) {
	tr.expireAt.Store(time.Now().Add(ttl).UnixNano())
}

func (tr *tracker) expireTime() time.Time {
	return time.Unix(0, tr.expireAt.Load())
}

// NewPool creates a tracking pool.
func NewPool(cfg Config) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		trackers: make(map[string]*tracker),
		ttl:      cfg.TTL,
		interval: cfg.Interval,
		client:   cfg.Client,
		parser:   cfg.Parser,
		cache:    cfg.Cache,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track starts tracking origin, or extends its tracking window when already
// tracked.
func (p *Pool) Track(origin string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tr, ok := p.trackers[origin]; ok {
		tr.refresh(p.ttl)
		return
	}

	tr := &tracker{}
	tr.refresh(p.ttl)
	p.trackers[origin] = tr

	p.logger.Info("tracking playlist", slog.String("url", origin))
	go p.run(origin, tr)
}

// Contains reports whether origin is currently tracked.
func (p *Pool) Contains(origin string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.trackers[origin]
	return ok
}

// Len returns the number of tracked playlists.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trackers)
}

// Close stops all workers.
func (p *Pool) Close() {
	p.closeOnce.Do(p.cancel)
}

func (p *Pool) run(origin string, tr *tracker) {
	defer func() {
		p.remove(origin, tr)
		p.logger.Info("tracking stopped", slog.String("url", origin))
	}()

	for {
		if !time.Now().Before(tr.expireTime()) {
			return
		}

		if err := p.warm(origin); err != nil {
			// Transient origin trouble must not end tracking.
			p.logger.Warn("playlist refresh failed",
				slog.String("url", origin),
				slog.String("error", err.Error()),
			)
		}

		sleep := p.interval
		if remaining := time.Until(tr.expireTime()); remaining < sleep {
			sleep = remaining
		}
		if sleep <= 0 {
			return
		}

		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// warm fetches the playlist once and admits every media entry into the
// cache.
func (p *Pool) warm(origin string) error {
	base, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("parsing playlist URL: %w", err)
	}

	resp, err := p.client.Get(p.ctx, origin)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("origin responded with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading playlist body: %w", err)
	}

	playlist, err := p.parser.Parse(p.ctx, body)
	if err != nil {
		return fmt.Errorf("parsing playlist: %w", err)
	}

	for _, media := range playlist.Media {
		resolved, err := urlutil.Resolve(base, media.Location)
		if err != nil {
			p.logger.Debug("skipping unresolvable media location",
				slog.String("playlist", origin),
				slog.String("location", media.Location),
			)
			continue
		}

		if err := p.cache.Prepare(resolved); err != nil {
			if errors.Is(err, cache.ErrCacheFull) {
				// Pointless to admit the rest of the window.
				p.logger.Warn("cache full, skipping pre-warm",
					slog.String("playlist", origin),
				)
				return nil
			}
			p.logger.Warn("pre-warm failed",
				slog.String("url", resolved),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (p *Pool) remove(origin string, tr *tracker) {
	p.mu.Lock()
	if cur, ok := p.trackers[origin]; ok && cur == tr {
		delete(p.trackers, origin)
	}
	p.mu.Unlock()
}
