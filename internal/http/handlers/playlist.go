package handlers

import (
	"net/http"
	"net/url"
)

// Playlist proxies a master playlist, rewriting every entry to point at the
// /media endpoint so variant playlists also flow through the proxy.
func (p *Proxy) Playlist(w http.ResponseWriter, r *http.Request) {
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
		p.serverError(w, r, "playlist fetch failed", err)
		return
	}

	for _, media := range playlist.Media {
		media.Location, _, _ = p.rewriteLocation(base, "/media", media.Location)
	}

	w.Header().Set("Content-Type", PlaylistContentType)
	_, _ = w.Write([]byte(p.parser.Encode(playlist)))
}
