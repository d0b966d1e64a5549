package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jmylchreest/hlsproxy/internal/version"
)

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	CacheEntries int    `json:"cache_entries"`
	CacheBytes   int64  `json:"cache_bytes"`
	Tracked      int    `json:"tracked_playlists"`
}

// Health reports liveness along with cache and tracking occupancy.
func (p *Proxy) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "ok",
		Version:      version.Version,
		CacheEntries: p.cache.Len(),
		CacheBytes:   p.cache.Size(),
		Tracked:      p.tracker.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
