package lyrics

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/cache"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

// ErrNotFound is the only error Lookup returns.
var ErrNotFound = errors.New("lyrics: not found")

type Options struct {
	GeniusToken string
	CacheTTL    time.Duration
	// Gate bounds outbound calls. A private gate is created when nil.
	Gate *utils.Gate

	OVHBase    string
	GeniusBase string
}

// Service looks lyrics up on lyrics.ovh and falls back to Genius search
// plus page scraping.
type Service struct {
	ovh    *ovhClient
	genius *geniusClient
	cache  *cache.TTL[string]
	gate   *utils.Gate
}

func NewService(opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Gate == nil {
		opts.Gate = utils.NewGate(4, 0)
	}
	return &Service{
		ovh:    newOVHClient(opts.OVHBase),
		genius: newGeniusClient(opts.GeniusBase, opts.GeniusToken),
		cache:  cache.NewTTL[string](opts.CacheTTL),
		gate:   opts.Gate,
	}
}

func (s *Service) Lookup(ctx context.Context, artist, title string) (string, error) {
	artist = strings.TrimSpace(artist)
	title = NormalizeTitle(strings.TrimSpace(title))
	if title == "" {
		return "", ErrNotFound
	}

	bestKey := cacheKey("best", artist, title)
	if txt, ok := s.cache.Get(bestKey); ok {
		return txt, nil
	}

	if txt := s.fromOVH(ctx, artist, title); txt != "" {
		s.cache.Set(bestKey, txt)
		return txt, nil
	}
	if txt := s.fromGenius(ctx, artist, title); txt != "" {
		s.cache.Set(bestKey, txt)
		return txt, nil
	}
	return "", ErrNotFound
}

func (s *Service) fromOVH(ctx context.Context, artist, title string) string {
	if artist == "" {
		return ""
	}
	key := cacheKey("ovh", artist, title)
	if txt, ok := s.cache.Get(key); ok {
		return txt
	}

	var raw string
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.ovh.fetch(ctx, artist, title)
		return err
	})
	if err != nil {
		slog.Debug("lyrics.ovh lookup failed", "artist", artist, "title", title, "err", err)
		return ""
	}
	txt := sanitize(raw)
	if txt != "" {
		s.cache.Set(key, txt)
	}
	return txt
}

func (s *Service) fromGenius(ctx context.Context, artist, title string) string {
	if s.genius.token == "" {
		return ""
	}
	query := strings.TrimSpace(artist + " " + title)

	var hits []geniusHit
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		hits, err = s.genius.search(ctx, query)
		return err
	})
	if err != nil {
		slog.Debug("genius search failed", "query", query, "err", err)
		return ""
	}

	for _, c := range rankHits(hits, artist, title) {
		if ctx.Err() != nil {
			return ""
		}
		key := "genius:" + c.url
		if txt, ok := s.cache.Get(key); ok {
			return txt
		}
		txt, err := s.scrape(ctx, c.url)
		if err != nil {
			slog.Debug("genius page rejected", "url", c.url, "err", err)
			continue
		}
		s.cache.Set(key, txt)
		return txt
	}
	return ""
}

var errNotLyrics = errors.New("page does not look like lyrics")

func (s *Service) scrape(ctx context.Context, pageURL string) (string, error) {
	var raw string
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		body, err := s.genius.page(ctx, pageURL)
		if err != nil {
			return err
		}
		defer body.Close()
		raw, err = extractLyrics(body)
		return err
	})
	if err != nil {
		return "", err
	}
	txt := sanitize(raw)
	if !likelyLyrics(txt) {
		return "", errNotLyrics
	}
	return txt, nil
}
