// Package urlutil provides URL manipulation utilities.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL normalizes a base URL for consistent use:
//   - Adds http:// scheme if no scheme provided
//   - Removes trailing slash for clean path joining
//
// Examples:
//
//	"proxy.example.com"       -> "http://proxy.example.com"
//	"https://proxy.example.com/" -> "https://proxy.example.com"
//	"localhost:8080"          -> "http://localhost:8080"
func NormalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}

	baseURL = strings.TrimSpace(baseURL)

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return strings.TrimSuffix(baseURL, "/")
}

// Resolve resolves a playlist media location against the playlist URL it was
// found in. Absolute locations are returned unchanged; relative ones are
// joined with the base.
func Resolve(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing media location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// ResolveString is Resolve with a string base URL.
func ResolveString(baseURL, location string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	return Resolve(base, location)
}
