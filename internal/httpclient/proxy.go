package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// FallbackKey is the reserved proxies map key whose proxy applies when no
// other entry matches the target host.
const FallbackKey = "fallback"

// ProxySelector picks an outbound proxy URL per target hostname.
//
// Rules map hostname substrings to proxies: the first rule (in sorted key
// order, for determinism) whose key is contained in the target hostname wins,
// otherwise the fallback applies, otherwise the request goes direct.
type ProxySelector struct {
	rules    []proxyRule
	fallback *url.URL
}

type proxyRule struct {
	substr string
	proxy  *url.URL
}

// NewProxySelector builds a selector from configuration. single, when set,
// becomes the fallback proxy for every host; entries in proxies take
// precedence, with the reserved "fallback" key replacing single.
func NewProxySelector(single string, proxies map[string]string) (*ProxySelector, error) {
	s := &ProxySelector{}

	if single != "" {
		u, err := url.Parse(single)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL %q: %w", single, err)
		}
		s.fallback = u
	}

	keys := make([]string, 0, len(proxies))
	for k := range proxies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		u, err := url.Parse(proxies[key])
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL for %q: %w", key, err)
		}
		if key == FallbackKey {
			s.fallback = u
			continue
		}
		s.rules = append(s.rules, proxyRule{substr: key, proxy: u})
	}

	return s, nil
}

// Empty reports whether the selector has no rules and no fallback.
func (s *ProxySelector) Empty() bool {
	return s == nil || (len(s.rules) == 0 && s.fallback == nil)
}

// Select returns the proxy for the given hostname, or nil for direct.
func (s *ProxySelector) Select(hostname string) *url.URL {
	if s == nil {
		return nil
	}
	for _, rule := range s.rules {
		if strings.Contains(hostname, rule.substr) {
			return rule.proxy
		}
	}
	return s.fallback
}

// ProxyFunc adapts the selector to http.Transport.Proxy.
func (s *ProxySelector) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return s.Select(req.URL.Hostname()), nil
	}
}
