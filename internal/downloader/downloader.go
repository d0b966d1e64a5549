// Package downloader fetches URLs into memory, optionally splitting the
// transfer across parallel byte-range requests.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/hlsproxy/internal/httpclient"
)

// Errors returned by Download. The cache retries with a single connection on
// ErrRangeNotSupported and ErrContentLengthMissing; everything else is
// terminal for the attempt.
var (
	ErrContentLengthMissing = errors.New("downloader: Content-Length header missing")
	ErrRangeNotSupported    = errors.New("downloader: server does not support range requests")
	ErrReassembly           = errors.New("downloader: error reassembling downloaded chunks")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downloader: upstream responded with status %d", e.Code)
}

// DefaultContentType is assumed when the upstream omits Content-Type.
const DefaultContentType = "application/octet-stream"

// Result is a fully fetched resource.
type Result struct {
	Data        []byte
	ContentType string
}

// Downloader fetches URLs using a shared HTTP client.
type Downloader struct {
	client         *httpclient.Client
	defaultThreads int
	logger         *slog.Logger
}

// New creates a Downloader. defaultThreads applies when Download is called
// with threads <= 0; values below 1 are treated as 1.
func New(client *httpclient.Client, defaultThreads int, logger *slog.Logger) *Downloader {
	if defaultThreads < 1 {
		defaultThreads = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client:         client,
		defaultThreads: defaultThreads,
		logger:         logger,
	}
}

// Download fetches origin into memory. threads <= 0 selects the configured
// default; 1 performs a plain GET; above 1 the transfer is split into that
// many consecutive ranged GETs, verified and reassembled in offset order.
func (d *Downloader) Download(ctx context.Context, origin string, threads int) (*Result, error) {
	if threads <= 0 {
		threads = d.defaultThreads
	}
	if threads <= 1 {
		return d.downloadSingle(ctx, origin)
	}
	return d.downloadRanged(ctx, origin, threads)
}

func (d *Downloader) downloadSingle(ctx context.Context, origin string) (*Result, error) {
	resp, err := d.client.Get(ctx, origin)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Result{Data: data, ContentType: contentType(resp)}, nil
}

// chunk is one ranged piece of a parallel download.
type chunk struct {
	start int64
	data  []byte
}

func (d *Downloader) downloadRanged(ctx context.Context, origin string, threads int) (*Result, error) {
	head, err := d.client.Head(ctx, origin)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, head.Body)
	head.Body.Close()

	if !statusOK(head.StatusCode) {
		return nil, &StatusError{Code: head.StatusCode}
	}

	length, err := strconv.ParseInt(head.Header.Get("Content-Length"), 10, 64)
	if err != nil || length < 0 {
		return nil, ErrContentLengthMissing
	}

	// Servers that support ranges advertise it; some that do stay silent,
	// but probing them is not worth the extra round trip.
	acceptRanges := head.Header.Get("Accept-Ranges")
	if acceptRanges == "" || acceptRanges == "none" {
		return nil, ErrRangeNotSupported
	}

	if int64(threads) > length {
		// Not enough bytes to split.
		return d.downloadSingle(ctx, origin)
	}

	d.logger.Debug("ranged download",
		slog.String("url", origin),
		slog.Int64("content_length", length),
		slog.Int("threads", threads),
	)

	chunkSize := length / int64(threads)
	chunks := make([]chunk, threads)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if i == threads-1 {
			end = length - 1
		}

		i := i
		g.Go(func() error {
			data, err := d.fetchRange(gctx, origin, start, end)
			if err != nil {
				return err
			}
			chunks[i] = chunk{start: start, data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(chunks, func(a, b int) bool { return chunks[a].start < chunks[b].start })

	buf := make([]byte, 0, length)
	var pos int64
	for _, c := range chunks {
		if c.start != pos {
			return nil, ErrReassembly
		}
		pos += int64(len(c.data))
		buf = append(buf, c.data...)
	}
	if pos != length {
		return nil, ErrReassembly
	}

	return &Result{Data: buf, ContentType: contentType(head)}, nil
}

// fetchRange GETs the inclusive byte range [start, end].
func (d *Downloader) fetchRange(ctx context.Context, origin string, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return nil, fmt.Errorf("creating range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !statusOK(resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading range body: %w", err)
	}
	return data, nil
}

func statusOK(code int) bool {
	return code >= 200 && code < 300
}

func contentType(resp *http.Response) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return DefaultContentType
}
