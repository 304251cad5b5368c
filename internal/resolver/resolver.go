package resolver

import (
	"context"
	"errors"
	"time"
)

// ErrUnplayable means no playable stream could be produced for a query.
var ErrUnplayable = errors.New("resolver: unplayable")

// Stream describes a resolved, directly fetchable audio source.
type Stream struct {
	URL        string
	Title      string
	Duration   time.Duration
	Thumbnail  string
	WebpageURL string
	IsLive     bool
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (*Stream, error)
}
