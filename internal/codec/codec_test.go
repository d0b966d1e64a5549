package codec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/hlsproxy/pkg/m3u8"
)

const samplePlaylist = "#EXTM3U\n" +
	"#EXTINF:6.006,\n" +
	"segment-001.ts\n" +
	"#EXTINF:6.006,\n" +
	"segment-002.ts\n"

func TestParser_Parse(t *testing.T) {
	p := NewParser(2)

	playlist, err := p.Parse(context.Background(), []byte(samplePlaylist))
	require.NoError(t, err)
	require.Len(t, playlist.Media, 2)
	assert.Equal(t, "segment-001.ts", playlist.Media[0].Location)
}

func TestParser_ParseError(t *testing.T) {
	p := NewParser(1)

	_, err := p.Parse(context.Background(), []byte("not a playlist"))
	assert.ErrorIs(t, err, m3u8.ErrNotAPlaylist)
}

func TestParser_ConcurrentParses(t *testing.T) {
	p := NewParser(4)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			playlist, err := p.Parse(context.Background(), []byte(samplePlaylist))
			assert.NoError(t, err)
			assert.Len(t, playlist.Media, 2)
		}()
	}
	wg.Wait()
}

func TestParser_ContextCancelled(t *testing.T) {
	p := NewParser(1)

	// Hold the only slot so the next Parse has to wait.
	require.NoError(t, p.sem.Acquire(context.Background(), 1))
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Parse(ctx, []byte(samplePlaylist))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParser_Encode(t *testing.T) {
	p := NewParser(1)

	playlist, err := p.Parse(context.Background(), []byte(samplePlaylist))
	require.NoError(t, err)

	encoded := p.Encode(playlist)
	reparsed, err := p.Parse(context.Background(), []byte(encoded))
	require.NoError(t, err)
	assert.Len(t, reparsed.Media, 2)
}
