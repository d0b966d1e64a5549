// Package httprange parses HTTP Range header values (RFC 7233, bytes unit).
//
// Multi-part ranges of closed intervals are supported. An open-ended form
// (either "N-" or "-N") terminates parsing: anything after the first open form
// is ignored, which is all real players need.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse errors.
var (
	// ErrInvalidHeader is returned when the value lacks the "bytes=" prefix.
	ErrInvalidHeader = errors.New("httprange: invalid header")

	// ErrInvalidRange is returned when a part is not of the form "a-b".
	ErrInvalidRange = errors.New("httprange: invalid range")

	// ErrInvalidNumber is returned when an offset fails to parse as an integer.
	ErrInvalidNumber = errors.New("httprange: invalid number")
)

// Form discriminates the three byte-range shapes.
type Form int

const (
	// FormClosed is "a-b": the inclusive interval [a, b].
	FormClosed Form = iota

	// FormPrefix is "a-": everything from offset a to the end.
	FormPrefix

	// FormSuffix is "-n": the final n bytes.
	FormSuffix
)

// Range is one parsed element of a Range header value.
type Range struct {
	Form Form

	// From is the start offset for FormClosed and FormPrefix.
	From int64

	// To is the inclusive end offset for FormClosed.
	To int64

	// Count is the suffix length for FormSuffix.
	Count int64
}

// Parse parses a Range header value such as "bytes=0-499,500-999".
func Parse(value string) ([]Range, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes=")
	if !ok {
		return nil, ErrInvalidHeader
	}

	var result []Range
	for _, part := range strings.Split(rest, ",") {
		halves := strings.Split(strings.TrimSpace(part), "-")
		// Numbers are validated before the shape so "bytes=abc" reports the
		// bad number rather than the missing dash.
		for _, half := range halves {
			if half == "" {
				continue
			}
			if _, err := parseOffset(half); err != nil {
				return nil, err
			}
		}
		if len(halves) != 2 {
			return nil, ErrInvalidRange
		}
		from, to := halves[0], halves[1]

		switch {
		case from == "":
			count, err := parseOffset(to)
			if err != nil {
				return nil, err
			}
			// Only the first suffix form is honored.
			return append(result, Range{Form: FormSuffix, Count: count}), nil

		case to == "":
			start, err := parseOffset(from)
			if err != nil {
				return nil, err
			}
			// Only the first open-ended prefix form is honored.
			return append(result, Range{Form: FormPrefix, From: start}), nil

		default:
			start, err := parseOffset(from)
			if err != nil {
				return nil, err
			}
			end, err := parseOffset(to)
			if err != nil {
				return nil, err
			}
			result = append(result, Range{Form: FormClosed, From: start, To: end})
		}
	}

	return result, nil
}

func parseOffset(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return n, nil
}

// Resolve maps the range onto a resource of the given size, returning the
// start offset and length of the selected bytes. Results are clamped to the
// resource bounds; an empty selection resolves to length 0.
func (r Range) Resolve(size int64) (offset, length int64) {
	switch r.Form {
	case FormSuffix:
		count := min(r.Count, size)
		return size - count, count

	case FormPrefix:
		if r.From >= size {
			return size, 0
		}
		return r.From, size - r.From

	default:
		if r.From >= size || r.To < r.From {
			return 0, 0
		}
		end := min(r.To, size-1)
		return r.From, end - r.From + 1
	}
}
