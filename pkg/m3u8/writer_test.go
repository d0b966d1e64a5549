package m3u8

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Basic(t *testing.T) {
	playlist := &Playlist{
		Attributes: map[string]string{"x-tvg-url": "test"},
		Media: []*Media{
			{
				Name:       "A",
				Duration:   1,
				Location:   "http://example.com/A.m3u8",
				Attributes: map[string]string{"tvg-id": "a"},
			},
		},
	}

	out := playlist.String()
	assert.True(t, strings.HasPrefix(out, `#EXTM3U x-tvg-url="test"`))
	assert.Contains(t, out, `#EXTINF:1 tvg-id="a",A`)
	assert.Contains(t, out, "http://example.com/A.m3u8\n")
}

func TestEncode_Title(t *testing.T) {
	playlist := &Playlist{
		Attributes: map[string]string{},
		Title:      "My Streams",
	}

	assert.Contains(t, playlist.String(), "#PLAYLIST:My Streams\n")
}

func TestEncode_Extensions(t *testing.T) {
	playlist := &Playlist{
		Attributes: map[string]string{},
		Media: []*Media{
			{
				Duration: 6,
				Location: "seg1.ts",
				Extensions: map[string]Extension{
					"#EXT-X-VERSION":              {Value: "6", HasValue: true},
					"#EXT-X-INDEPENDENT-SEGMENTS": {},
				},
			},
		},
	}

	out := playlist.String()
	assert.Contains(t, out, "#EXT-X-VERSION:6\n")
	assert.Contains(t, out, "#EXT-X-INDEPENDENT-SEGMENTS\n")
	assert.Contains(t, out, "#EXTINF:6,\n")
}

func TestEncode_FractionalDuration(t *testing.T) {
	playlist := &Playlist{
		Attributes: map[string]string{},
		Media:      []*Media{{Duration: 6.5, Location: "a.ts"}},
	}

	assert.Contains(t, playlist.String(), "#EXTINF:6.5,\n")
}

func TestRoundTrip(t *testing.T) {
	original := &Playlist{
		Title:      "Round Trip",
		Attributes: map[string]string{"x-tvg-url": "http://epg.example.com/guide.xml"},
		Media: []*Media{
			{
				Name:       "Channel One",
				Duration:   -1,
				Location:   "http://example.com/one.m3u8",
				Attributes: map[string]string{"tvg-id": "one", "group-title": "News"},
				Extensions: map[string]Extension{},
			},
			{
				Name:       "",
				Duration:   6.5,
				Location:   "segments/00042.ts",
				Attributes: map[string]string{},
				Extensions: map[string]Extension{
					"#EXT-X-DISCONTINUITY": {},
					"#EXT-X-KEY":           {Value: `METHOD=NONE`, HasValue: true},
				},
			},
		},
	}

	parsed, err := Parse(strings.NewReader(original.String()))
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	// A second round trip is byte-stable.
	assert.Equal(t, original.String(), parsed.String())
}

func TestRoundTrip_FromText(t *testing.T) {
	content := `#EXTM3U
#EXT-X-VERSION:6
#EXTINF:6,
21-35-08882.html
#EXTINF:6,
21-35-08883.html
`

	first, err := Parse(strings.NewReader(content))
	require.NoError(t, err)

	second, err := Parse(strings.NewReader(first.String()))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
