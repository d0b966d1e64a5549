// Package handlers implements the proxy's HTTP endpoints: playlist and media
// rewriting, cached segment streaming, and health.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/hlsproxy/internal/cache"
	"github.com/jmylchreest/hlsproxy/internal/codec"
	"github.com/jmylchreest/hlsproxy/internal/httpclient"
	"github.com/jmylchreest/hlsproxy/internal/track"
	"github.com/jmylchreest/hlsproxy/pkg/m3u8"
)

// PlaylistContentType is the MIME type for rewritten playlists.
const PlaylistContentType = "application/vnd.apple.mpegurl"

// originParam is the query parameter carrying the upstream URL.
const originParam = "origin"

// Proxy holds the collaborators behind the HTTP surface.
type Proxy struct {
	baseURL string
	client  *httpclient.Client
	parser  *codec.Parser
	cache   *cache.Pool
	tracker *track.Pool
	logger  *slog.Logger
}

// NewProxy creates the handler set. baseURL is the public address clients
// reach this proxy on, without a trailing slash.
func NewProxy(baseURL string, client *httpclient.Client, parser *codec.Parser, cachePool *cache.Pool, tracker *track.Pool, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		baseURL: baseURL,
		client:  client,
		parser:  parser,
		cache:   cachePool,
		tracker: tracker,
		logger:  logger,
	}
}

// Routes mounts the proxy endpoints on the router.
func (p *Proxy) Routes(r chi.Router) {
	r.Get("/playlist", p.Playlist)
	r.Get("/media", p.Media)
	r.Get("/stream", p.Stream)
	r.Head("/stream", p.Stream)
	r.Get("/health", p.Health)
}

// origin extracts and validates the origin query parameter. It writes the
// error response itself when the parameter is unusable.
func (p *Proxy) origin(w http.ResponseWriter, r *http.Request) (string, bool) {
	origin := r.URL.Query().Get(originParam)
	if origin == "" {
		http.Error(w, "missing origin parameter", http.StatusBadRequest)
		return "", false
	}
	return origin, true
}

// fetchPlaylist GETs an upstream playlist and parses it.
func (p *Proxy) fetchPlaylist(r *http.Request, origin string) (*m3u8.Playlist, error) {
	resp, err := p.client.Get(r.Context(), origin)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("origin responded with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading playlist body: %w", err)
	}

	playlist, err := p.parser.Parse(r.Context(), body)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}
	return playlist, nil
}

// rewriteLocation turns a media location into a proxy URL on the given
// endpoint. Locations that cannot be resolved against base are passed
// through encoded as-is so the client at least sees a well-formed URL, with
// resolved false telling callers the absolute URL is not fetchable.
func (p *Proxy) rewriteLocation(base *url.URL, endpoint, location string) (proxied, absolute string, resolved bool) {
	target := location
	resolved = true
	if abs, err := resolveLocation(base, location); err == nil {
		target = abs
	} else {
		resolved = false
		p.logger.Warn("unresolvable media location, encoding raw",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
	}
	return p.baseURL + endpoint + "?" + originParam + "=" + url.QueryEscape(target), target, resolved
}

func resolveLocation(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (p *Proxy) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	p.logger.Error(msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
