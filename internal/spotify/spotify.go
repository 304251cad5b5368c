package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
)

// Track is a catalog entry flattened for queueing.
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Album    string
	Duration time.Duration
	Image    string
	URL      string
}

func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

type PlaylistMeta struct {
	ID     string
	Title  string
	Source string
}

var ErrUnsupported = errors.New("unsupported spotify link")

type Client struct {
	raw *spotify.Client
}

// ParseID splits a spotify: URI or open.spotify.com URL into its kind and
// id.
func ParseID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", fmt.Errorf("invalid spotify URI %q", raw)
		}
		typ, id = parts[1], spotify.ID(parts[2])
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", err
		}
		if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
			return "", "", fmt.Errorf("not a spotify URL: %s", raw)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		// localized links look like /intl-de/track/<id>
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) < 2 {
			return "", "", fmt.Errorf("invalid spotify URL path %q", u.Path)
		}
		typ, id = parts[0], spotify.ID(parts[1])
	}
	switch typ {
	case "album", "playlist", "track", "artist":
		return typ, id, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupported, typ)
}

func IsSpotify(s string) bool {
	return strings.HasPrefix(s, "spotify:") || strings.Contains(s, "open.spotify.com")
}

func artistNames(as []spotify.SimpleArtist) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Name)
	}
	return out
}

func firstImage(imgs []spotify.Image) string {
	if len(imgs) == 0 {
		return ""
	}
	return imgs[0].URL
}

func fromFull(t spotify.FullTrack) Track {
	return Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artistNames(t.Artists),
		Album:    t.Album.Name,
		Duration: t.TimeDuration(),
		Image:    firstImage(t.Album.Images),
		URL:      t.ExternalURLs["spotify"],
	}
}

func (c *Client) GetAlbum(ctx context.Context, id spotify.ID, limit int) ([]Track, PlaylistMeta, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, err
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, err
	}
	img := firstImage(alb.Images)
	var out []Track
	add := func(items []spotify.SimpleTrack) {
		for _, t := range items {
			if limit > 0 && len(out) >= limit {
				return
			}
			out = append(out, Track{
				ID:       string(t.ID),
				Name:     t.Name,
				Artists:  artistNames(t.Artists),
				Album:    alb.Name,
				Duration: t.TimeDuration(),
				Image:    img,
				URL:      t.ExternalURLs["spotify"],
			})
		}
	}
	add(page.Tracks)
	for page.Next != "" && (limit <= 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Tracks)
	}
	return out, PlaylistMeta{ID: string(id), Title: alb.Name, Source: alb.ExternalURLs["spotify"]}, nil
}

// GetPlaylist pages through a playlist. limit <= 0 reads everything.
func (c *Client) GetPlaylist(ctx context.Context, id spotify.ID, limit int) ([]Track, PlaylistMeta, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return nil, PlaylistMeta{}, err
	}
	var out []Track
	add := func(items []spotify.PlaylistItem) {
		for _, it := range items {
			if limit > 0 && len(out) >= limit {
				return
			}
			if it.Track.Track != nil {
				out = append(out, fromFull(*it.Track.Track))
			}
		}
	}
	add(page.Items)
	for page.Next != "" && (limit <= 0 || len(out) < limit) {
		if err := c.raw.NextPage(ctx, page); err != nil {
			break
		}
		add(page.Items)
	}
	return out, PlaylistMeta{ID: string(id), Title: pl.Name, Source: pl.ExternalURLs["spotify"]}, nil
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return fromFull(*t), nil
}

func (c *Client) GetArtistTop(ctx context.Context, id spotify.ID, market string, limit int) ([]Track, error) {
	full, err := c.raw.GetArtistsTopTracks(ctx, id, market)
	if err != nil {
		return nil, err
	}
	out := make([]Track, 0, len(full))
	for _, t := range full {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, fromFull(t))
	}
	return out, nil
}

// SearchTracks returns up to limit tracks for a free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	if res.Tracks == nil {
		return nil, nil
	}
	out := make([]Track, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		out = append(out, fromFull(t))
	}
	return out, nil
}

// MyPlaylists lists the playlists of the user the client is authorized for.
func (c *Client) MyPlaylists(ctx context.Context, limit int) ([]PlaylistMeta, error) {
	if limit <= 0 {
		limit = 25
	}
	page, err := c.raw.CurrentUsersPlaylists(ctx, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]PlaylistMeta, 0, len(page.Playlists))
	for _, p := range page.Playlists {
		out = append(out, PlaylistMeta{ID: string(p.ID), Title: p.Name, Source: p.ExternalURLs["spotify"]})
	}
	return out, nil
}
