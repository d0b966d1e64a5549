package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jmylchreest/hlsproxy/internal/cache"
)

// Media proxies a media playlist: it registers the playlist for tracking so
// upcoming segments get pre-warmed, admits the current window into the cache,
// and rewrites every segment to the /stream endpoint.
func (p *Proxy) Media(w http.ResponseWriter, r *http.Request) {
	origin, ok := p.origin(w, r)
	if !ok {
		return
	}

	base, err := url.Parse(origin)
	if err != nil {
		http.Error(w, "invalid origin URL", http.StatusBadRequest)
		return
	}

	playlist, err := p.fetchPlaylist(r, origin)
	if err != nil {
		p.serverError(w, r, "media playlist fetch failed", err)
		return
	}

	p.tracker.Track(origin)

	for _, media := range playlist.Media {
		proxied, absolute, resolved := p.rewriteLocation(base, "/stream", media.Location)
		media.Location = proxied
		if !resolved {
			// Nothing to pre-warm; the raw location is not a usable URL.
			continue
		}

		if err := p.cache.Prepare(absolute); err != nil {
			if errors.Is(err, cache.ErrCacheFull) {
				// The segment still plays, just unaccelerated via 307.
				p.logger.Debug("cache full, segment not pre-warmed",
					slog.String("url", absolute),
				)
				continue
			}
			p.logger.Warn("segment pre-warm failed",
				slog.String("url", absolute),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", PlaylistContentType)
	_, _ = w.Write([]byte(p.parser.Encode(playlist)))
}
