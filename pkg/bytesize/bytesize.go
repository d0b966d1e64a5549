// Package bytesize provides human-readable byte size parsing and formatting
// using binary (1024) units.
//
// Examples:
//   - "512MB" = 512 * 1024 * 1024 bytes
//   - "1.5 GB" = 1.5 * 1024^3 bytes
//   - "4096" = 4096 bytes (no unit = bytes)
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var unitMultipliers = map[string]Size{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"kib": KB,
	"m":   MB,
	"mb":  MB,
	"mib": MB,
	"g":   GB,
	"gb":  GB,
	"gib": GB,
	"t":   TB,
	"tb":  TB,
	"tib": TB,
}

var sizeRegex = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([a-zA-Z]*)$`)

// Parse parses a human-readable byte size string.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	matches := sizeRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number %q: %w", matches[1], err)
	}

	mult, ok := unitMultipliers[strings.ToLower(matches[2])]
	if !ok {
		return 0, fmt.Errorf("unknown size unit: %q", matches[2])
	}

	return Size(value * float64(mult)), nil
}

// Format returns the most compact human-readable representation of s.
func Format(s Size) string {
	abs := s
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= TB && abs%TB == 0:
		return fmt.Sprintf("%dTB", s/TB)
	case abs >= GB && abs%GB == 0:
		return fmt.Sprintf("%dGB", s/GB)
	case abs >= MB && abs%MB == 0:
		return fmt.Sprintf("%dMB", s/MB)
	case abs >= KB && abs%KB == 0:
		return fmt.Sprintf("%dKB", s/KB)
	default:
		return strconv.FormatInt(int64(s), 10)
	}
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return Format(s)
}

// Bytes returns the size in bytes as int64.
func (s Size) Bytes() int64 {
	return int64(s)
}
