package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/cache"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const defaultSuggestURL = "https://suggestqueries.google.com/complete/search"

// TrackSearcher is the catalog search used for Spotify choices.
type TrackSearcher interface {
	SpotifyEnabled() bool
	Search(ctx context.Context, query string, limit int) ([]spotify.Track, error)
}

// Suggester feeds the play command's autocomplete.
type Suggester struct {
	http    *http.Client
	base    string
	catalog TrackSearcher
	cache   *cache.TTL[[]string]
}

func NewSuggester(catalog TrackSearcher) *Suggester {
	return &Suggester{
		http:    &http.Client{Timeout: 2 * time.Second},
		base:    defaultSuggestURL,
		catalog: catalog,
		cache:   cache.NewTTL[[]string](10 * time.Minute),
	}
}

// YouTube returns search-box completions for query.
func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	u, err := url.Parse(s.base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest: status %d", resp.StatusCode)
	}

	// ["query", ["s1", "s2", ...], ...]
	var parsed []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(parsed[1], &out); err != nil {
		return nil, nil
	}
	s.cache.Set(key, out)
	return out, nil
}

// Choices mixes YouTube completions with Spotify tracks, Spotify taking up
// to half of limit when it is configured.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 || limit > 25 {
		limit = 25
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	var tracks []spotify.Track
	if s.catalog != nil && s.catalog.SpotifyEnabled() {
		tracks, _ = s.catalog.Search(ctx, query, limit/2)
	}
	yt, _ := s.YouTube(ctx, query)

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt[:min(len(yt), max(0, limit-len(tracks)))] {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate("YouTube: "+v, 100),
			Value: utils.Truncate(v, 100),
		})
	}
	for _, t := range tracks {
		name := "Spotify: 🎵 " + t.Name
		if a := t.Artist(); a != "" {
			name += " - " + a
		}
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate(name, 100),
			Value: "spotify:track:" + t.ID,
		})
	}
	return out[:min(len(out), limit)]
}
