package sponsorblock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/cache"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const (
	category = "music_offtopic"
	// edgeSlack is how close to a window edge a span has to reach to count
	// as an intro or outro.
	edgeSlack = 2.0
)

// Applier trims the non-music intro and outro off YouTube songs.
type Applier struct {
	client *Client
	spans  *cache.TTL[[]Span]

	mu     sync.Mutex
	paused time.Time
	pause  time.Duration
}

// NewApplier shares gate with the other lookup services. After the
// server reports overload no lookups are made for pause.
func NewApplier(gate *utils.Gate, pause time.Duration) *Applier {
	return &Applier{
		client: NewClient(gate),
		spans:  cache.NewTTL[[]Span](time.Hour),
		pause:  pause,
	}
}

// Trim narrows the song's play window and returns a note for the user, or
// "" when nothing changed.
func (a *Applier) Trim(ctx context.Context, videoID string, s *repository.Song) string {
	total := s.DurationSec()
	if videoID == "" || total <= 0 || s.IsLive {
		return ""
	}
	spans, ok := a.lookup(ctx, videoID)
	if !ok || len(spans) == 0 {
		return ""
	}

	start := s.Offset
	end := total
	if s.Length > 0 {
		end = min(total, s.Offset+s.Length)
	}
	newStart, newEnd, notes := cut(spans, start, end)
	if len(notes) == 0 {
		return ""
	}
	slog.Debug("sponsorblock trimmed song", "videoID", videoID, "offset", newStart, "end", newEnd)
	s.Offset = newStart
	s.Length = newEnd - newStart
	return strings.Join(notes, " and ")
}

func (a *Applier) lookup(ctx context.Context, videoID string) ([]Span, bool) {
	if spans, ok := a.spans.Get(videoID); ok {
		return spans, true
	}
	a.mu.Lock()
	paused := time.Now().Before(a.paused)
	a.mu.Unlock()
	if paused {
		return nil, false
	}

	spans, err := a.client.Spans(ctx, videoID, category)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			a.mu.Lock()
			a.paused = time.Now().Add(a.pause)
			a.mu.Unlock()
			slog.Warn("sponsorblock unavailable, pausing lookups", "for", a.pause)
		} else {
			slog.Debug("sponsorblock lookup failed", "videoID", videoID, "err", err)
		}
		return nil, false
	}
	a.spans.Set(videoID, spans)
	return spans, true
}

// cut moves start past a span covering the beginning of [start, end) and
// end back to a span covering its tail. Spans are sorted and merged.
func cut(spans []Span, start, end int) (int, int, []string) {
	var notes []string
	for _, sp := range spans {
		if sp.Start <= float64(start)+edgeSlack && sp.End > float64(start) {
			if skip := int(sp.End); skip < end {
				start = skip
				notes = append(notes, "skipped intro")
			}
			break
		}
	}
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		if sp.End >= float64(end)-edgeSlack && sp.Start < float64(end) {
			if stop := int(sp.Start); stop > start {
				end = stop
				notes = append(notes, "trimmed outro")
			}
			break
		}
	}
	return start, end, notes
}
