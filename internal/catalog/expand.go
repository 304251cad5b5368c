// Package catalog turns user input (links, URIs or free text) into queueable
// songs.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/utils"
	sp "github.com/zmb3/spotify/v2"
)

var (
	ErrNoResults       = errors.New("no results")
	ErrSpotifyDisabled = errors.New("spotify is not configured")
)

type Source interface {
	Info(ctx context.Context, url string) (*resolver.Entry, error)
	Playlist(ctx context.Context, url string) ([]resolver.Entry, error)
}

type Catalog interface {
	GetAlbum(ctx context.Context, id sp.ID, limit int) ([]spotify.Track, spotify.PlaylistMeta, error)
	GetPlaylist(ctx context.Context, id sp.ID, limit int) ([]spotify.Track, spotify.PlaylistMeta, error)
	GetTrack(ctx context.Context, id sp.ID) (spotify.Track, error)
	GetArtistTop(ctx context.Context, id sp.ID, market string, limit int) ([]spotify.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]spotify.Track, error)
}

// Trimmer shortens songs by skipping off-topic segments.
type Trimmer interface {
	Trim(ctx context.Context, videoID string, s *repository.Song) string
}

type Options struct {
	PlaylistLimit int
	Market        string
}

type Request struct {
	Query     string
	Requester string
	GuildID   string
	// Split queues one song per chapter when the video lists chapters.
	Split bool
}

type Result struct {
	Songs    []repository.Song
	Playlist string
	Notes    []string
}

type Expander struct {
	src     Source
	catalog Catalog
	trim    Trimmer
	opts    Options
}

// NewExpander wires the lookups. catalog and trim may be nil.
func NewExpander(src Source, catalog Catalog, trim Trimmer, opts Options) *Expander {
	if opts.PlaylistLimit <= 0 {
		opts.PlaylistLimit = 100
	}
	if opts.Market == "" {
		opts.Market = "US"
	}
	return &Expander{src: src, catalog: catalog, trim: trim, opts: opts}
}

// WithCatalog returns a copy that reads Spotify through c, e.g. a client
// acting as the requesting user.
func (x *Expander) WithCatalog(c Catalog) *Expander {
	cp := *x
	cp.catalog = c
	return &cp
}

func (x *Expander) SpotifyEnabled() bool { return x.catalog != nil }

func (x *Expander) Expand(ctx context.Context, req Request) (Result, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return Result{}, ErrNoResults
	}

	var (
		res Result
		err error
	)
	switch {
	case spotify.IsSpotify(q):
		res, err = x.fromSpotify(ctx, q)
	case isYouTube(q) && strings.Contains(q, "list="):
		res, err = x.fromYouTubePlaylist(ctx, q)
	case isURL(q) && !isYouTube(q):
		res = Result{Songs: []repository.Song{{
			Title:       q,
			StreamQuery: q,
			CatalogURL:  q,
			IsLive:      true,
		}}}
	default:
		res, err = x.fromYouTube(ctx, q, req.Split)
	}
	if err != nil {
		return Result{}, err
	}
	if len(res.Songs) == 0 {
		return Result{}, ErrNoResults
	}
	for i := range res.Songs {
		res.Songs[i].Requester = req.Requester
		res.Songs[i].GuildID = req.GuildID
		res.Songs[i].EnsureID()
	}
	return res, nil
}

// Search is the single Spotify search helper behind the picker.
func (x *Expander) Search(ctx context.Context, query string, limit int) ([]spotify.Track, error) {
	if x.catalog == nil {
		return nil, ErrSpotifyDisabled
	}
	return x.catalog.SearchTracks(ctx, query, limit)
}

// SpotifyTrack builds the song for a track id picked from search results.
func (x *Expander) SpotifyTrack(ctx context.Context, id, requester, guildID string) (repository.Song, error) {
	if x.catalog == nil {
		return repository.Song{}, ErrSpotifyDisabled
	}
	t, err := x.catalog.GetTrack(ctx, sp.ID(id))
	if err != nil {
		return repository.Song{}, err
	}
	s := SongFromTrack(t)
	s.Requester, s.GuildID = requester, guildID
	s.EnsureID()
	return s, nil
}

func (x *Expander) fromSpotify(ctx context.Context, q string) (Result, error) {
	if x.catalog == nil {
		return Result{}, ErrSpotifyDisabled
	}
	typ, id, err := spotify.ParseID(q)
	if err != nil {
		return Result{}, err
	}

	var (
		tracks []spotify.Track
		meta   spotify.PlaylistMeta
	)
	switch typ {
	case "track":
		t, err := x.catalog.GetTrack(ctx, id)
		if err != nil {
			return Result{}, err
		}
		tracks = []spotify.Track{t}
	case "album":
		tracks, meta, err = x.catalog.GetAlbum(ctx, id, 0)
	case "playlist":
		tracks, meta, err = x.catalog.GetPlaylist(ctx, id, 0)
	case "artist":
		tracks, err = x.catalog.GetArtistTop(ctx, id, x.opts.Market, x.opts.PlaylistLimit)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Playlist: meta.Title}
	tracks, sampled := sample(tracks, x.opts.PlaylistLimit)
	if sampled {
		res.Notes = append(res.Notes, fmt.Sprintf("a random sample of %d songs was taken", x.opts.PlaylistLimit))
	}
	for _, t := range tracks {
		res.Songs = append(res.Songs, SongFromTrack(t))
	}
	return res, nil
}

// SongFromTrack maps a catalog track to a song that is searched on YouTube
// when it comes up for playback.
func SongFromTrack(t spotify.Track) repository.Song {
	s := repository.Song{
		Title:       t.Name,
		Artists:     t.Artists,
		Album:       t.Album,
		Thumbnail:   t.Image,
		CatalogURL:  t.URL,
		StreamQuery: fmt.Sprintf(`ytsearch1:"%s" "%s"`, t.Name, t.Artist()),
	}
	if d := int(t.Duration.Seconds()); d > 0 {
		s.Duration = &d
	}
	return s
}

func (x *Expander) fromYouTubePlaylist(ctx context.Context, q string) (Result, error) {
	entries, err := x.src.Playlist(ctx, q)
	if err != nil {
		return Result{}, err
	}
	var res Result
	entries, sampled := sample(entries, x.opts.PlaylistLimit)
	if sampled {
		res.Notes = append(res.Notes, fmt.Sprintf("a random sample of %d songs was taken", x.opts.PlaylistLimit))
	}
	for _, e := range entries {
		s := songFromEntry(e)
		if e.ID != "" {
			s.StreamQuery = "https://www.youtube.com/watch?v=" + e.ID
		}
		x.applyTrim(ctx, e.ID, &s)
		res.Songs = append(res.Songs, s)
	}
	return res, nil
}

func (x *Expander) fromYouTube(ctx context.Context, q string, split bool) (Result, error) {
	target := q
	if !isURL(q) {
		target = "ytsearch1:" + q
	}
	e, err := x.src.Info(ctx, target)
	if err != nil {
		if errors.Is(err, resolver.ErrUnplayable) {
			return Result{}, fmt.Errorf("%w: %s", ErrNoResults, q)
		}
		return Result{}, err
	}

	base := songFromEntry(*e)
	if split && !e.IsLive && e.Description != "" && base.DurationSec() > 0 {
		if chs := ParseChapters(e.Description, base.DurationSec()); len(chs) > 1 {
			var res Result
			for _, ch := range chs {
				s := base
				s.Title = ch.Label + " (" + base.Title + ")"
				s.Offset, s.Length = ch.Offset, ch.Length
				res.Songs = append(res.Songs, s)
			}
			res.Notes = append(res.Notes, fmt.Sprintf("split into %d chapters", len(chs)))
			return res, nil
		}
	}

	if msg := x.applyTrim(ctx, e.ID, &base); msg != "" {
		return Result{Songs: []repository.Song{base}, Notes: []string{msg}}, nil
	}
	return Result{Songs: []repository.Song{base}}, nil
}

func songFromEntry(e resolver.Entry) repository.Song {
	s := repository.Song{
		Title:       e.Title,
		Thumbnail:   e.Thumbnail,
		CatalogURL:  e.WebpageURL,
		StreamQuery: e.WebpageURL,
		IsLive:      e.IsLive,
	}
	if e.Uploader != "" {
		s.Artists = []string{e.Uploader}
	}
	if s.StreamQuery == "" {
		s.StreamQuery = e.URL
	}
	if d := int(e.Duration); d > 0 {
		s.Duration = &d
	}
	return s
}

func (x *Expander) applyTrim(ctx context.Context, youtubeID string, s *repository.Song) string {
	if x.trim == nil || s.IsLive || youtubeID == "" {
		return ""
	}
	return x.trim.Trim(ctx, youtubeID, s)
}

// sample keeps at most limit items, picked at random when there are more.
func sample[T any](items []T, limit int) ([]T, bool) {
	if limit <= 0 || len(items) <= limit {
		return items, false
	}
	utils.ShuffleSlice(items)
	return items[:limit], true
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isYouTube(s string) bool {
	return strings.Contains(s, "youtube.com") || strings.Contains(s, "youtu.be")
}
