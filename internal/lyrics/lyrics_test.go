package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Song Title (Official Video) [Lyrics]", "Song Title"},
		{"Song Title (Official Music Video)", "Song Title"},
		{"Artist - Song HD", "Artist - Song"},
		{"Song ft. Someone (Lyric Video)", "Song feat. Someone"},
		{"Song [4K Remaster]", "Song"},
		{"Song Official Audio", "Song"},
		{"  Plain   Song  ", "Plain Song"},
		{"Harmony", "Harmony"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func hit(typ, url, title, artist string) geniusHit {
	var h geniusHit
	h.Type = typ
	h.Result.URL = url
	h.Result.Title = title
	h.Result.PrimaryArtist.Name = artist
	return h
}

func TestRankHits(t *testing.T) {
	hits := []geniusHit{
		hit("album", "https://genius.com/albums/artist/record", "Record", "Artist"),
		hit("song", "https://genius.com/other-song-annotated", "Other Song", "Other"),
		hit("song", "https://genius.com/artist-song-lyrics", "Song", "Artist"),
		hit("article", "https://genius.com/a/news-about-song", "Song news", "Artist"),
		hit("song", "https://genius.com/artist-song-interview-lyrics", "Song", "Artist"),
	}
	got := rankHits(hits, "Artist", "Song")
	require.Len(t, got, 2)
	assert.Equal(t, "https://genius.com/artist-song-lyrics", got[0].url)
	assert.Equal(t, "https://genius.com/other-song-annotated", got[1].url)
	assert.Equal(t, 100+20+50+30+3, got[0].score)
}

func TestRankHitsKeepsOrderOnTies(t *testing.T) {
	var hits []geniusHit
	for i := range 12 {
		hits = append(hits, hit("song", fmt.Sprintf("https://genius.com/x-%d", i), "x", "y"))
	}
	got := rankHits(hits, "", "")
	require.Len(t, got, maxCandidates)
	for i, c := range got {
		assert.Equal(t, i, c.index)
	}
}

func TestSanitize(t *testing.T) {
	raw := "12 Contributors\r\n[Verse 1]\r\nfirst line\r\n\r\n\r\n\r\nsecond line\nRead More about this\nSee more\n" +
		strings.Repeat("This is prose. ", 20) + "\nvisit our site"
	assert.Equal(t, "[Verse 1]\nfirst line\n\nsecond line", sanitize(raw))
}

func TestLikelyLyrics(t *testing.T) {
	long := strings.Repeat("word ", 40)
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"section markers", "[Chorus]\n" + long + "\n" + long, true},
		{"short lines", "la la la\nhey there\nsing along\n" + long, true},
		{"prose", strings.Join([]string{long, long, long, "short"}, "\n"), false},
		{"calendar", "January 3 release\nFebruary 1 tour\nMarch news\n4 shows\n5 more\n6 others\n[Intro]", false},
		{"mostly long", strings.Join([]string{long[:150], long[:150], long[:150], "ok"}, "\n"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, likelyLyrics(tt.text))
		})
	}
}

func TestExtractLyrics(t *testing.T) {
	t.Run("containers", func(t *testing.T) {
		page := `<html><body>
<div data-lyrics-container="true"><div data-exclude-from-selection="true">Song Lyrics</div>[Verse 1]<br/><a><span>first line</span></a><br>second line</div>
<div data-lyrics-container="true">[Chorus]<br>hook</div>
<div class="lyrics">legacy</div>
</body></html>`
		got, err := extractLyrics(strings.NewReader(page))
		require.NoError(t, err)
		assert.Equal(t, "[Verse 1]\nfirst line\nsecond line\n\n[Chorus]\nhook", got)
	})
	t.Run("legacy", func(t *testing.T) {
		got, err := extractLyrics(strings.NewReader(`<div class="lyrics"><p>old<br>page</p></div>`))
		require.NoError(t, err)
		assert.Equal(t, "old\npage", got)
	})
	t.Run("none", func(t *testing.T) {
		got, err := extractLyrics(strings.NewReader(`<p>nothing</p>`))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

const songPage = `<div data-lyrics-container="true">[Verse 1]<br>we sing<br>all night<br>[Chorus]<br>oh oh</div>`

func TestLookupPrefersOVH(t *testing.T) {
	var calls atomic.Int32
	ovh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/Artist/Song Title", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"lyrics": "line one\r\nline two\r\n"})
	}))
	defer ovh.Close()

	svc := NewService(Options{OVHBase: ovh.URL + "/v1"})
	for range 2 {
		got, err := svc.Lookup(context.Background(), "Artist", "Song Title (Official Video) [Lyrics]")
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupSkipsAlbumPages(t *testing.T) {
	ovh := httptest.NewServer(http.NotFoundHandler())
	defer ovh.Close()

	var albumFetched atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "Artist Song", r.URL.Query().Get("q"))
			hits := []geniusHit{
				hit("song", srv.URL+"/albums/artist-song-lyrics", "Song", "Artist"),
				hit("song", srv.URL+"/artist-song-lyrics", "Song", "Artist"),
			}
			var body struct {
				Response struct {
					Hits []geniusHit `json:"hits"`
				} `json:"response"`
			}
			body.Response.Hits = hits
			_ = json.NewEncoder(w).Encode(body)
		case strings.HasPrefix(r.URL.Path, "/albums/"):
			albumFetched.Store(true)
			fmt.Fprint(w, `<div data-lyrics-container="true">[Intro]<br>wrong</div>`)
		default:
			fmt.Fprint(w, songPage)
		}
	}))
	defer srv.Close()

	svc := NewService(Options{GeniusToken: "tok", OVHBase: ovh.URL, GeniusBase: srv.URL})
	got, err := svc.Lookup(context.Background(), "Artist", "Song")
	require.NoError(t, err)
	assert.Equal(t, "[Verse 1]\nwe sing\nall night\n[Chorus]\noh oh", got)
	assert.False(t, albumFetched.Load())
}

func TestLookupFallsThroughInvalidPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			_, _ = fmt.Fprintf(w, `{"response":{"hits":[
				{"type":"song","result":{"url":"%[1]s/broken-lyrics","title":"Song","primary_artist":{"name":"Artist"}}},
				{"type":"song","result":{"url":"%[1]s/prose-lyrics","title":"Song","primary_artist":{"name":"Artist"}}},
				{"type":"song","result":{"url":"%[1]s/good","title":"Song","primary_artist":{"name":"Artist"}}}
			]}}`, srv.URL)
		case "/broken-lyrics":
			w.WriteHeader(http.StatusInternalServerError)
		case "/prose-lyrics":
			long := strings.Repeat("words ", 40)
			fmt.Fprintf(w, `<div class="lyrics">%s<br>%s<br>%s</div>`, long, long, long)
		default:
			fmt.Fprint(w, songPage)
		}
	}))
	defer srv.Close()

	svc := NewService(Options{GeniusToken: "tok", GeniusBase: srv.URL})
	got, err := svc.Lookup(context.Background(), "", "Song")
	require.NoError(t, err)
	assert.Contains(t, got, "we sing")
}

func TestLookupNotFound(t *testing.T) {
	ovh := httptest.NewServer(http.NotFoundHandler())
	defer ovh.Close()

	svc := NewService(Options{OVHBase: ovh.URL})
	_, err := svc.Lookup(context.Background(), "Artist", "Song")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Lookup(context.Background(), "Artist", "(Official Video)")
	assert.ErrorIs(t, err, ErrNotFound)
}
