package sponsorblock

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const defaultBase = "https://sponsor.ajay.app/api/skipSegments"

// ErrUnavailable means the segment server is overloaded or down.
var ErrUnavailable = errors.New("sponsorblock unavailable")

// Span is a skippable range of a video in seconds.
type Span struct {
	Start, End float64
}

type segmentJSON struct {
	Category string     `json:"category"`
	Segment  [2]float64 `json:"segment"`
}

type Client struct {
	http *http.Client
	base string
	gate *utils.Gate
}

func NewClient(gate *utils.Gate) *Client {
	return &Client{
		http: &http.Client{Timeout: 8 * time.Second},
		base: defaultBase,
		gate: gate,
	}
}

// Spans returns the merged segments of videoID in the given categories.
// A video without submissions yields no spans and no error.
func (c *Client) Spans(ctx context.Context, videoID string, categories ...string) ([]Span, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("videoID", videoID)
	for _, cat := range categories {
		q.Add("category", cat)
	}
	u.RawQuery = q.Encode()

	var raw []segmentJSON
	fetch := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", utils.RandomUserAgent())
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&raw)
		case http.StatusNotFound:
			return nil
		case http.StatusGatewayTimeout, http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return ErrUnavailable
		default:
			return fmt.Errorf("sponsorblock: http %d", resp.StatusCode)
		}
	}
	if c.gate != nil {
		err = c.gate.Do(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	spans := make([]Span, 0, len(raw))
	for _, s := range raw {
		if s.Segment[1] > s.Segment[0] {
			spans = append(spans, Span{Start: s.Segment[0], End: s.Segment[1]})
		}
	}
	return merge(spans), nil
}

// merge sorts spans by start and joins the ones that overlap or touch.
func merge(spans []Span) []Span {
	if len(spans) < 2 {
		return spans
	}
	slices.SortFunc(spans, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}
