package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sp "github.com/zmb3/spotify/v2"
)

type fakeSource struct {
	info     map[string]*resolver.Entry
	playlist []resolver.Entry
	targets  []string
}

func (f *fakeSource) Info(_ context.Context, url string) (*resolver.Entry, error) {
	f.targets = append(f.targets, url)
	if e, ok := f.info[url]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", resolver.ErrUnplayable, url)
}

func (f *fakeSource) Playlist(_ context.Context, url string) ([]resolver.Entry, error) {
	f.targets = append(f.targets, url)
	return f.playlist, nil
}

type fakeCatalog struct {
	tracks []spotify.Track
}

func (f *fakeCatalog) GetAlbum(context.Context, sp.ID, int) ([]spotify.Track, spotify.PlaylistMeta, error) {
	return f.tracks, spotify.PlaylistMeta{Title: "Album"}, nil
}

func (f *fakeCatalog) GetPlaylist(context.Context, sp.ID, int) ([]spotify.Track, spotify.PlaylistMeta, error) {
	return append([]spotify.Track(nil), f.tracks...), spotify.PlaylistMeta{Title: "Mix"}, nil
}

func (f *fakeCatalog) GetTrack(_ context.Context, id sp.ID) (spotify.Track, error) {
	for _, t := range f.tracks {
		if t.ID == string(id) {
			return t, nil
		}
	}
	return spotify.Track{}, errors.New("missing")
}

func (f *fakeCatalog) GetArtistTop(context.Context, sp.ID, string, int) ([]spotify.Track, error) {
	return f.tracks, nil
}

func (f *fakeCatalog) SearchTracks(context.Context, string, int) ([]spotify.Track, error) {
	return f.tracks, nil
}

type fakeTrim struct{ calls int }

func (f *fakeTrim) Trim(_ context.Context, id string, s *repository.Song) string {
	f.calls++
	s.Offset += 5
	s.Length = s.DurationSec() - 10
	return "skipped intro"
}

func track(id, name, artist string) spotify.Track {
	return spotify.Track{ID: id, Name: name, Artists: []string{artist}, Duration: 200 * time.Second, URL: "https://open.spotify.com/track/" + id}
}

func TestParseChapters(t *testing.T) {
	desc := "Tracklist\n0:00 Intro\n1:30 - Second Song\nnot a chapter\n3:05 | Finale (Live)\n"
	got := ParseChapters(desc, 300)
	assert.Equal(t, []Chapter{
		{Label: "Intro", Offset: 0, Length: 90},
		{Label: "Second Song", Offset: 90, Length: 95},
		{Label: "Finale (Live)", Offset: 185, Length: 115},
	}, got)

	t.Run("must start at zero", func(t *testing.T) {
		assert.Nil(t, ParseChapters("1:00 a\n2:00 b", 300))
	})
	t.Run("label before timestamp", func(t *testing.T) {
		got := ParseChapters("Opening [0:00]\nClosing [1:00:00]", 3700)
		require.Len(t, got, 2)
		assert.Equal(t, "Opening", got[0].Label)
		assert.Equal(t, 3600, got[1].Offset)
		assert.Equal(t, 100, got[1].Length)
	})
	t.Run("skips lines with two timestamps", func(t *testing.T) {
		got := ParseChapters("0:00 start\n0:10 - 0:20 range\n", 30)
		require.Len(t, got, 1)
		assert.Equal(t, 30, got[0].Length)
	})
}

func TestExpandFreeTextSearch(t *testing.T) {
	src := &fakeSource{info: map[string]*resolver.Entry{
		"ytsearch1:never gonna": {ID: "dQw", Title: "Never Gonna", Uploader: "Rick", Duration: 213, WebpageURL: "https://www.youtube.com/watch?v=dQw"},
	}}
	x := NewExpander(src, nil, nil, Options{})

	res, err := x.Expand(context.Background(), Request{Query: "  never gonna ", Requester: "u1", GuildID: "g1"})
	require.NoError(t, err)
	require.Len(t, res.Songs, 1)
	s := res.Songs[0]
	assert.Equal(t, "Never Gonna", s.Title)
	assert.Equal(t, []string{"Rick"}, s.Artists)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw", s.StreamQuery)
	assert.Equal(t, 213, s.DurationSec())
	assert.Equal(t, "u1", s.Requester)
	assert.Equal(t, "g1", s.GuildID)
	assert.NotEmpty(t, s.ID)
}

func TestExpandNoResults(t *testing.T) {
	x := NewExpander(&fakeSource{}, nil, nil, Options{})

	_, err := x.Expand(context.Background(), Request{Query: "nothing"})
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = x.Expand(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestExpandSplitsChapters(t *testing.T) {
	url := "https://www.youtube.com/watch?v=mix"
	src := &fakeSource{info: map[string]*resolver.Entry{
		url: {ID: "mix", Title: "Full Album", Duration: 240, WebpageURL: url, Description: "0:00 One\n2:00 Two"},
	}}
	trim := &fakeTrim{}
	x := NewExpander(src, nil, trim, Options{})

	res, err := x.Expand(context.Background(), Request{Query: url, Split: true})
	require.NoError(t, err)
	require.Len(t, res.Songs, 2)
	assert.Equal(t, "One (Full Album)", res.Songs[0].Title)
	assert.Equal(t, 120, res.Songs[1].Offset)
	assert.Equal(t, 120, res.Songs[1].Length)
	assert.NotEqual(t, res.Songs[0].ID, res.Songs[1].ID)
	assert.Zero(t, trim.calls)

	res, err = x.Expand(context.Background(), Request{Query: url})
	require.NoError(t, err)
	require.Len(t, res.Songs, 1)
	assert.Equal(t, 5, res.Songs[0].Offset)
	assert.Equal(t, 230, res.Songs[0].Length)
	assert.Equal(t, []string{"skipped intro"}, res.Notes)
}

func TestExpandYouTubePlaylistSamples(t *testing.T) {
	var entries []resolver.Entry
	for i := range 5 {
		entries = append(entries, resolver.Entry{ID: fmt.Sprintf("v%d", i), Title: fmt.Sprintf("T%d", i), Duration: 60})
	}
	src := &fakeSource{playlist: entries}
	x := NewExpander(src, nil, nil, Options{PlaylistLimit: 3})

	res, err := x.Expand(context.Background(), Request{Query: "https://www.youtube.com/playlist?list=PL1"})
	require.NoError(t, err)
	require.Len(t, res.Songs, 3)
	assert.Equal(t, []string{"a random sample of 3 songs was taken"}, res.Notes)
	for _, s := range res.Songs {
		assert.Contains(t, s.StreamQuery, "https://www.youtube.com/watch?v=v")
	}
}

func TestExpandLiveStreamURL(t *testing.T) {
	src := &fakeSource{}
	x := NewExpander(src, nil, nil, Options{})

	res, err := x.Expand(context.Background(), Request{Query: "https://radio.example/stream.m3u8"})
	require.NoError(t, err)
	require.Len(t, res.Songs, 1)
	assert.True(t, res.Songs[0].IsLive)
	assert.Equal(t, "https://radio.example/stream.m3u8", res.Songs[0].StreamQuery)
	assert.Empty(t, src.targets)
}

func TestExpandSpotify(t *testing.T) {
	cat := &fakeCatalog{tracks: []spotify.Track{
		track("t1", "Song One", "Band"),
		track("t2", "Song Two", "Band"),
	}}

	t.Run("disabled without credentials", func(t *testing.T) {
		x := NewExpander(&fakeSource{}, nil, nil, Options{})
		_, err := x.Expand(context.Background(), Request{Query: "spotify:track:t1"})
		assert.ErrorIs(t, err, ErrSpotifyDisabled)
	})

	t.Run("playlist is searched lazily", func(t *testing.T) {
		src := &fakeSource{}
		x := NewExpander(src, cat, nil, Options{})
		res, err := x.Expand(context.Background(), Request{Query: "https://open.spotify.com/playlist/p1"})
		require.NoError(t, err)
		assert.Equal(t, "Mix", res.Playlist)
		require.Len(t, res.Songs, 2)
		assert.Equal(t, `ytsearch1:"Song One" "Band"`, res.Songs[0].StreamQuery)
		assert.Equal(t, 200, res.Songs[0].DurationSec())
		assert.Empty(t, src.targets)
	})

	t.Run("playlist above the limit is sampled", func(t *testing.T) {
		x := NewExpander(&fakeSource{}, cat, nil, Options{PlaylistLimit: 1})
		res, err := x.Expand(context.Background(), Request{Query: "spotify:playlist:p1"})
		require.NoError(t, err)
		assert.Len(t, res.Songs, 1)
		assert.Len(t, res.Notes, 1)
	})

	t.Run("picked track", func(t *testing.T) {
		x := NewExpander(&fakeSource{}, cat, nil, Options{})
		s, err := x.SpotifyTrack(context.Background(), "t2", "u1", "g1")
		require.NoError(t, err)
		assert.Equal(t, "Song Two", s.Title)
		assert.Equal(t, "u1", s.Requester)
		assert.NotEmpty(t, s.ID)
	})
}
