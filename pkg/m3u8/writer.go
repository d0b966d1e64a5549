package m3u8

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Encode writes the playlist to w in extended M3U format.
//
// Attribute maps are emitted in sorted key order so output is deterministic;
// attribute ordering is not significant on parse. Entries are separated by a
// blank line.
func (p *Playlist) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s%s\n", directiveHeader, formatAttributes(p.Attributes)); err != nil {
		return fmt.Errorf("m3u8: writing header: %w", err)
	}

	if p.Title != "" {
		if _, err := fmt.Fprintf(w, "%s:%s\n", directivePlaylist, p.Title); err != nil {
			return fmt.Errorf("m3u8: writing title: %w", err)
		}
	}

	for _, media := range p.Media {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return fmt.Errorf("m3u8: writing separator: %w", err)
		}
		if err := media.encode(w); err != nil {
			return err
		}
	}

	return nil
}

// String returns the serialized playlist.
func (p *Playlist) String() string {
	var b strings.Builder
	// strings.Builder never returns a write error.
	_ = p.Encode(&b)
	return b.String()
}

func (m *Media) encode(w io.Writer) error {
	for _, key := range sortedKeys(m.Extensions) {
		ext := m.Extensions[key]
		line := key
		if ext.HasValue {
			line += ":" + ext.Value
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("m3u8: writing extension: %w", err)
		}
	}

	extinf := fmt.Sprintf("%s:%s%s,%s",
		directiveInfo, formatDuration(m.Duration), formatAttributes(m.Attributes), m.Name)
	if _, err := fmt.Fprintln(w, extinf); err != nil {
		return fmt.Errorf("m3u8: writing EXTINF: %w", err)
	}

	if _, err := fmt.Fprintln(w, m.Location); err != nil {
		return fmt.Errorf("m3u8: writing location: %w", err)
	}

	return nil
}

// formatAttributes renders an attribute map as ` key="value"` tokens with a
// leading space, or an empty string for an empty map.
func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, key := range sortedKeys(attrs) {
		fmt.Fprintf(&b, " %s=%q", key, attrs[key])
	}
	return b.String()
}

// formatDuration renders a duration without a trailing fractional part for
// whole values, matching common playlist generators.
func formatDuration(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
