package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jmylchreest/hlsproxy/internal/cache"
	"github.com/jmylchreest/hlsproxy/pkg/httprange"
)

// Stream serves a cached segment, honoring Range requests against the
// in-memory copy. When the cache refuses admission the client is redirected
// to the origin instead of being starved.
func (p *Proxy) Stream(w http.ResponseWriter, r *http.Request) {
	origin, ok := p.origin(w, r)
	if !ok {
		return
	}

	res, err := p.cache.Get(r.Context(), origin)
	if err != nil {
		if errors.Is(err, cache.ErrCacheFull) {
			w.Header().Set("Location", origin)
			w.WriteHeader(http.StatusTemporaryRedirect)
			return
		}
		p.serverError(w, r, "segment load failed", err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	size := int64(len(res.Data))

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(res.Data)
		return
	}

	ranges, err := httprange.Parse(rangeHeader)
	if err != nil {
		http.Error(w, "malformed Range header", http.StatusBadRequest)
		return
	}

	type span struct{ offset, length int64 }
	spans := make([]span, 0, len(ranges))
	var total int64
	for _, rng := range ranges {
		offset, length := rng.Resolve(size)
		spans = append(spans, span{offset, length})
		total += length
	}

	if total == 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	if len(spans) == 1 {
		s := spans[0]
		if s.length > 0 {
			w.Header().Set("Content-Range",
				fmt.Sprintf("bytes %d-%d/%d", s.offset, s.offset+s.length-1, size))
		}
	}
	// Multiple ranges come back as one concatenated body rather than
	// multipart/byteranges. Single-range is the only form real players send.
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return
	}
	for _, s := range spans {
		_, _ = w.Write(res.Data[s.offset : s.offset+s.length])
	}
}
