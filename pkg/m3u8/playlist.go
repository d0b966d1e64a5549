// Package m3u8 provides parsing and serialization of extended M3U playlists.
// It recognizes the #EXTM3U, #PLAYLIST and #EXTINF directives and preserves
// any other directive verbatim so playlists survive a parse/encode round trip.
package m3u8

// Playlist is an ordered collection of media entries with playlist-level
// attributes parsed from the #EXTM3U header line.
type Playlist struct {
	// Title is the playlist title from the #PLAYLIST directive, if any.
	Title string

	// Attributes holds key="value" pairs from the #EXTM3U header line.
	Attributes map[string]string

	// Media holds the entries in playlist order.
	Media []*Media
}

// Media is a single playlist entry.
type Media struct {
	// Name is the display name following the comma on the #EXTINF line.
	Name string

	// Duration is the entry duration in seconds. -1 for live streams or
	// when no duration was given.
	Duration float64

	// Location is the media URL, possibly relative to the playlist URL.
	Location string

	// Attributes holds key="value" pairs from the #EXTINF line.
	Attributes map[string]string

	// Extensions holds unrecognized directives attached to this entry,
	// keyed by the directive name including the leading '#'.
	Extensions map[string]Extension
}

// Extension is the preserved value of an unrecognized directive.
// Directives without a ':' separator have HasValue false.
type Extension struct {
	Value    string
	HasValue bool
}

// NewPlaylist returns an empty playlist with initialized maps.
func NewPlaylist() *Playlist {
	return &Playlist{Attributes: make(map[string]string)}
}

func newMedia() *Media {
	return &Media{
		Duration:   -1,
		Attributes: make(map[string]string),
		Extensions: make(map[string]Extension),
	}
}
