// Package codec bounds CPU-heavy playlist parsing so a burst of concurrent
// requests cannot saturate every scheduler thread.
package codec

import (
	"bytes"
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/hlsproxy/pkg/m3u8"
)

// Parser parses M3U8 documents with at most a fixed number of parses in
// flight. Waiters queue on the semaphore and honour context cancellation.
type Parser struct {
	sem *semaphore.Weighted
}

// NewParser creates a Parser allowing limit concurrent parses. limit <= 0
// defaults to GOMAXPROCS.
func NewParser(limit int) *Parser {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Parser{sem: semaphore.NewWeighted(int64(limit))}
}

// Parse decodes an M3U8 document, blocking while the pool is full.
func (p *Parser) Parse(ctx context.Context, data []byte) (*m3u8.Playlist, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring parse slot: %w", err)
	}
	defer p.sem.Release(1)

	return m3u8.Parse(bytes.NewReader(data))
}

// Encode renders a playlist back to its textual form. Encoding is cheap
// relative to parsing and is not pooled.
func (p *Parser) Encode(playlist *m3u8.Playlist) string {
	return playlist.String()
}
