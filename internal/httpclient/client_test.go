package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "custom-agent/2.0"
	client := New(cfg)

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "custom-agent/2.0", gotUA)
}

func TestClient_GzipDecompression(t *testing.T) {
	payload := []byte("#EXTM3U\n#EXTINF:6,\nseg.ts\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write(payload)
		_ = zw.Close()

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client := New(DefaultConfig())

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestClient_DecompressionDisabled(t *testing.T) {
	var gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("raw"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.EnableDecompression = false
	client := New(cfg)

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(body))
	assert.Empty(t, gotEncoding)
}

func TestClient_Head(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "42")
	}))
	defer srv.Close()

	client := New(DefaultConfig())
	resp, err := client.Head(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "42", resp.Header.Get("Content-Length"))
}

func TestProxySelector(t *testing.T) {
	selector, err := NewProxySelector("", map[string]string{
		"cdn.example.com": "http://127.0.0.1:3128",
		"other.net":       "http://127.0.0.1:3129",
		"fallback":        "http://127.0.0.1:8888",
	})
	require.NoError(t, err)

	tests := []struct {
		hostname string
		expected string
	}{
		{"cdn.example.com", "http://127.0.0.1:3128"},
		{"edge1.cdn.example.com", "http://127.0.0.1:3128"},
		{"media.other.net", "http://127.0.0.1:3129"},
		{"unrelated.org", "http://127.0.0.1:8888"},
	}

	for _, tt := range tests {
		got := selector.Select(tt.hostname)
		require.NotNil(t, got, "hostname %s", tt.hostname)
		assert.Equal(t, tt.expected, got.String(), "hostname %s", tt.hostname)
	}
}

func TestProxySelector_NoFallback(t *testing.T) {
	selector, err := NewProxySelector("", map[string]string{
		"cdn.example.com": "http://127.0.0.1:3128",
	})
	require.NoError(t, err)

	assert.Nil(t, selector.Select("unrelated.org"))
	assert.False(t, selector.Empty())
}

func TestProxySelector_SingleProxy(t *testing.T) {
	selector, err := NewProxySelector("http://127.0.0.1:9999", nil)
	require.NoError(t, err)

	got := selector.Select("anything.example.com")
	require.NotNil(t, got)
	assert.Equal(t, "http://127.0.0.1:9999", got.String())
}

func TestProxySelector_Empty(t *testing.T) {
	selector, err := NewProxySelector("", nil)
	require.NoError(t, err)
	assert.True(t, selector.Empty())

	var nilSelector *ProxySelector
	assert.True(t, nilSelector.Empty())
	assert.Nil(t, nilSelector.Select("x"))
}

func TestProxySelector_ProxyFunc(t *testing.T) {
	selector, err := NewProxySelector("", map[string]string{
		"origin.example.com": "http://127.0.0.1:3128",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://origin.example.com/seg.ts", nil)
	got, err := selector.ProxyFunc()(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "http://127.0.0.1:3128", got.String())
}

func TestObfuscateURL(t *testing.T) {
	u, err := url.Parse("http://origin.example.com/seg.ts?token=secret123&id=5")
	require.NoError(t, err)

	obfuscated := obfuscateURL(u)
	assert.NotContains(t, obfuscated, "secret123")
	assert.Contains(t, obfuscated, "id=5")
}
