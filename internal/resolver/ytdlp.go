package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

const searchPrefix = "ytsearch1:"

// Entry is the subset of yt-dlp's info JSON the bot cares about.
type Entry struct {
	ID               string
	Title            string
	Uploader         string
	Description      string
	Duration         float64
	IsLive           bool
	WebpageURL       string
	URL              string
	Thumbnail        string
	Formats          []string
	RequestedFormats []string
	Entries          []Entry
}

type Options struct {
	Timeout        time.Duration
	SearchFallback bool
	CookiesPath    string
	POToken        string
}

// Ytdlp resolves queries by shelling out to yt-dlp.
type Ytdlp struct {
	opts    Options
	extract func(ctx context.Context, target string, flat bool) (*Entry, error)
}

var installOnce sync.Once

// Install makes sure a yt-dlp binary is available. It only does work on the
// first call.
func Install(ctx context.Context) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})
}

func NewYtdlp(opts Options) *Ytdlp {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	y := &Ytdlp{opts: opts}
	y.extract = y.run
	return y
}

// Resolve turns a URL or free-text query into a stream. Free text goes
// straight to a single-result YouTube search.
func (y *Ytdlp) Resolve(ctx context.Context, query string) (*Stream, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrUnplayable
	}
	ctx, cancel := context.WithTimeout(ctx, y.opts.Timeout)
	defer cancel()

	target := searchTarget(query)
	e, err := y.extract(ctx, target, false)
	if err != nil {
		slog.Debug("yt-dlp resolve failed", "query", target, "err", err)
	}
	picked := pickEntry(e)
	if picked == nil && y.opts.SearchFallback && !strings.HasPrefix(target, searchPrefix) {
		slog.Debug("yt-dlp falling back to search", "query", query)
		e, err = y.extract(ctx, searchPrefix+query, false)
		if err != nil {
			slog.Debug("yt-dlp search fallback failed", "query", query, "err", err)
		}
		picked = pickEntry(e)
	}
	if picked == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnplayable, query)
	}

	u := AudioURL(picked)
	if u == "" {
		return nil, fmt.Errorf("%w: no audio url for %s", ErrUnplayable, query)
	}
	return &Stream{
		URL:        u,
		Title:      picked.Title,
		Duration:   time.Duration(picked.Duration * float64(time.Second)),
		Thumbnail:  picked.Thumbnail,
		WebpageURL: picked.WebpageURL,
		IsLive:     picked.IsLive,
	}, nil
}

// Info returns metadata for a single URL without flattening playlists.
func (y *Ytdlp) Info(ctx context.Context, url string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, y.opts.Timeout)
	defer cancel()
	e, err := y.extract(ctx, url, false)
	if err != nil {
		return nil, err
	}
	if p := pickEntry(e); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnplayable, url)
}

// Playlist lists the entries of a playlist URL without resolving them.
func (y *Ytdlp) Playlist(ctx context.Context, url string) ([]Entry, error) {
	e, err := y.extract(ctx, url, true)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(e.Entries))
	for _, it := range e.Entries {
		if it.ID == "" && it.URL == "" && it.WebpageURL == "" {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func searchTarget(query string) string {
	if strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://") ||
		strings.HasPrefix(query, "ytsearch") {
		return query
	}
	return searchPrefix + query
}

// pickEntry chooses the first entry that carries something playable.
func pickEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	if len(e.Entries) > 0 {
		for i := range e.Entries {
			if playable(&e.Entries[i]) {
				return &e.Entries[i]
			}
		}
		return nil
	}
	if playable(e) {
		return e
	}
	return nil
}

func playable(e *Entry) bool {
	return len(e.Formats) > 0 || len(e.RequestedFormats) > 0 || e.URL != "" || e.WebpageURL != ""
}

// AudioURL returns the best fetchable URL: requested formats first, then
// the top-level url, then any format, then the page itself.
func AudioURL(e *Entry) string {
	for _, u := range e.RequestedFormats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	if strings.HasPrefix(e.URL, "http") {
		return e.URL
	}
	for _, u := range e.Formats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	return e.WebpageURL
}

func (y *Ytdlp) run(ctx context.Context, target string, flat bool) (*Entry, error) {
	Install(context.Background())

	cmd := ytdlp.New().NoCheckCertificates().DumpJSON()
	if flat {
		cmd = cmd.FlatPlaylist()
	} else {
		cmd = cmd.Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best")
	}
	if y.opts.CookiesPath != "" {
		cmd = cmd.Cookies(y.opts.CookiesPath)
	}
	if strings.Contains(target, "youtube.com") || strings.Contains(target, "youtu.be") ||
		strings.HasPrefix(target, "ytsearch") {
		args := "youtube:player-client=default,mweb"
		if y.opts.POToken != "" {
			args += ";po_token=" + y.opts.POToken
		}
		cmd = cmd.ExtractorArgs(args)
	}

	res, err := cmd.Run(ctx, target)
	if err != nil {
		if strings.Contains(err.Error(), "Sign in to confirm") {
			return nil, fmt.Errorf("yt-dlp %s (PO token may be required): %w", target, err)
		}
		return nil, fmt.Errorf("yt-dlp %s: %w", target, err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("yt-dlp %s: no info returned", target)
	}
	e := toEntry(infos[0])
	return &e, nil
}

func toEntry(x *ytdlp.ExtractedInfo) Entry {
	e := Entry{
		ID:          x.ID,
		Title:       deref(x.Title),
		Uploader:    deref(x.Uploader),
		Description: deref(x.Description),
		Duration:    deref(x.Duration),
		IsLive:      deref(x.IsLive),
		WebpageURL:  deref(x.WebpageURL),
		URL:         deref(x.URL),
	}
	// yt-dlp orders thumbnails worst to best
	for i := len(x.Thumbnails) - 1; i >= 0; i-- {
		if t := x.Thumbnails[i]; t != nil && t.URL != "" {
			e.Thumbnail = t.URL
			break
		}
	}
	for _, f := range x.Formats {
		if f != nil {
			e.Formats = append(e.Formats, f.URL)
		}
	}
	for _, f := range x.RequestedFormats {
		if f != nil {
			e.RequestedFormats = append(e.RequestedFormats, f.URL)
		}
	}
	for _, sub := range x.Entries {
		if sub != nil {
			e.Entries = append(e.Entries, toEntry(sub))
		}
	}
	return e
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
