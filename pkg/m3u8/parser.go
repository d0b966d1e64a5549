package m3u8

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Parse errors.
var (
	// ErrNotAPlaylist is returned when the input does not start with #EXTM3U.
	ErrNotAPlaylist = errors.New("m3u8: not a playlist")

	// ErrMissingDuration is returned when an #EXTINF line has no parseable duration.
	ErrMissingDuration = errors.New("m3u8: media duration missing")

	// ErrUnexpectedEOF is returned when the input ends before the #EXTM3U header.
	ErrUnexpectedEOF = errors.New("m3u8: unexpected end of input")
)

// Recognized directives.
const (
	directiveHeader   = "#EXTM3U"
	directiveInfo     = "#EXTINF"
	directivePlaylist = "#PLAYLIST"
)

// attrRegex matches space-delimited key="value" tokens on a directive line.
var attrRegex = regexp.MustCompile(`([^ ]*?)="(.*?)"`)

// maxLineSize bounds a single playlist line. Some providers emit very long
// tokenized segment URLs.
const maxLineSize = 1024 * 1024

// Parse reads an extended M3U playlist from r.
//
// Lines are trimmed and blank lines skipped. The first non-blank line must
// start with #EXTM3U. Unrecognized '#' directives are preserved on the entry
// that follows them. A non-directive line is taken as the current entry's
// location and seals it.
func Parse(r io.Reader) (*Playlist, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	playlist := NewPlaylist()
	cur := newMedia()
	sawHeader := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawHeader {
			if !strings.HasPrefix(line, directiveHeader) {
				return nil, ErrNotAPlaylist
			}
			mergeAttributes(playlist.Attributes, line[len(directiveHeader):])
			sawHeader = true
			continue
		}

		if strings.HasPrefix(line, "#") {
			if err := parseDirective(playlist, cur, line); err != nil {
				return nil, err
			}
			continue
		}

		// Location line seals the current entry.
		cur.Location = line
		playlist.Media = append(playlist.Media, cur)
		cur = newMedia()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("m3u8: reading playlist: %w", err)
	}
	if !sawHeader {
		return nil, ErrUnexpectedEOF
	}

	return playlist, nil
}

// parseDirective dispatches a single '#' line against the current entry.
func parseDirective(playlist *Playlist, cur *Media, line string) error {
	key, value, hasValue := strings.Cut(line, ":")

	switch key {
	case directiveInfo:
		return parseMediaInfo(cur, value)
	case directivePlaylist:
		playlist.Title = value
		return nil
	default:
		cur.Extensions[key] = Extension{Value: value, HasValue: hasValue}
		return nil
	}
}

// parseMediaInfo parses the #EXTINF value: duration[ attr="v" ...][,name].
func parseMediaInfo(cur *Media, value string) error {
	info, name, hasName := strings.Cut(value, ",")
	if hasName {
		cur.Name = name
	}

	durationStr, attrs, _ := strings.Cut(info, " ")
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return ErrMissingDuration
	}
	cur.Duration = duration

	mergeAttributes(cur.Attributes, attrs)
	return nil
}

// mergeAttributes extracts key="value" tokens from s into dst.
func mergeAttributes(dst map[string]string, s string) {
	for _, match := range attrRegex.FindAllStringSubmatch(s, -1) {
		dst[strings.TrimSpace(match[1])] = match[2]
	}
}
