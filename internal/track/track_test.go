package track

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/hlsproxy/internal/cache"
	"github.com/jmylchreest/hlsproxy/internal/codec"
	"github.com/jmylchreest/hlsproxy/internal/httpclient"
)

type fakeCache struct {
	mu       sync.Mutex
	prepared []string
	err      error
}

func (f *fakeCache) Prepare(origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.prepared = append(f.prepared, origin)
	return nil
}

func (f *fakeCache) preparedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prepared...)
}

func newTestPool(t *testing.T, cacheSink Preparer, ttl, interval time.Duration) *Pool {
	t.Helper()
	return NewPool(Config{
		TTL:      ttl,
		Interval: interval,
		Client:   httpclient.New(httpclient.DefaultConfig()),
		Parser:   codec.NewParser(2),
		Cache:    cacheSink,
	})
}

const trackedPlaylist = "#EXTM3U\n" +
	"#EXTINF:6,\n" +
	"seg-001.ts\n" +
	"#EXTINF:6,\n" +
	"http://cdn.example.com/seg-002.ts\n"

func TestPool_TrackPreWarmsSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, time.Second, time.Second)
	defer p.Close()

	p.Track(srv.URL + "/live/index.m3u8")

	require.Eventually(t, func() bool { return len(sink.preparedURLs()) == 2 },
		2*time.Second, 10*time.Millisecond)

	prepared := sink.preparedURLs()
	assert.Equal(t, srv.URL+"/live/seg-001.ts", prepared[0])
	assert.Equal(t, "http://cdn.example.com/seg-002.ts", prepared[1])
}

func TestPool_RefreshesAtInterval(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, time.Second, 50*time.Millisecond)
	defer p.Close()

	p.Track(srv.URL + "/index.m3u8")

	require.Eventually(t, func() bool { return fetches.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestPool_StopsAfterIdleWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, 100*time.Millisecond, 30*time.Millisecond)
	defer p.Close()

	origin := srv.URL + "/index.m3u8"
	p.Track(origin)
	assert.True(t, p.Contains(origin))

	assert.Eventually(t, func() bool { return !p.Contains(origin) },
		2*time.Second, 10*time.Millisecond)
	assert.Zero(t, p.Len())
}

func TestPool_TrackIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, time.Second, time.Second)
	defer p.Close()

	origin := srv.URL + "/index.m3u8"
	p.Track(origin)
	p.Track(origin)
	p.Track(origin)

	assert.Equal(t, 1, p.Len())
}

func TestPool_TrackExtendsWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, 150*time.Millisecond, 40*time.Millisecond)
	defer p.Close()

	origin := srv.URL + "/index.m3u8"
	p.Track(origin)

	for i := 0; i < 5; i++ {
		time.Sleep(80 * time.Millisecond)
		p.Track(origin)
	}

	assert.True(t, p.Contains(origin))
}

func TestPool_SurvivesOriginErrors(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{}
	p := newTestPool(t, sink, time.Second, 40*time.Millisecond)
	defer p.Close()

	origin := srv.URL + "/index.m3u8"
	p.Track(origin)

	// First fetch fails but tracking keeps going and the retry warms the
	// cache.
	require.Eventually(t, func() bool { return len(sink.preparedURLs()) >= 2 },
		2*time.Second, 10*time.Millisecond)
	assert.True(t, p.Contains(origin))
}

func TestPool_CacheFullStopsWarmPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(trackedPlaylist))
	}))
	defer srv.Close()

	sink := &fakeCache{err: cache.ErrCacheFull}
	p := newTestPool(t, sink, 200*time.Millisecond, 50*time.Millisecond)
	defer p.Close()

	origin := srv.URL + "/index.m3u8"
	p.Track(origin)

	// Tracking itself is unaffected by a full cache.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, p.Contains(origin))
	assert.Empty(t, sink.preparedURLs())
}
