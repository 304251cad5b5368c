package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"golang.org/x/sync/semaphore"
)

type Options struct {
	IdleTimeout    time.Duration
	ResolveTimeout time.Duration
	SweepInterval  time.Duration
	Workers        int
}

// Registry owns every guild's Session and the event loop that turns track
// completions and idle timers into scheduler actions.
type Registry struct {
	store     Store
	resolver  Resolver
	voice     Voice
	presenter Presenter
	opts      Options
	pool      *semaphore.Weighted

	events chan event
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(store Store, res Resolver, voice Voice, opts Options) *Registry {
	if opts.Workers < 1 {
		opts.Workers = 8
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 30 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Registry{
		store:     store,
		resolver:  res,
		voice:     voice,
		presenter: nopPresenter{},
		opts:      opts,
		pool:      semaphore.NewWeighted(int64(opts.Workers)),
		events:    make(chan event, 64),
		done:      make(chan struct{}),
		sessions:  make(map[string]*Session),
	}
}

// SetPresenter must be called before Run.
func (r *Registry) SetPresenter(p Presenter) {
	if p == nil {
		p = nopPresenter{}
	}
	r.presenter = p
}

// Get returns the guild's session, creating it on first use.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := newSession(r, guildID)
	r.sessions[guildID] = s
	return s
}

// Peek returns the session if one exists.
func (r *Registry) Peek(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

func (r *Registry) all() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Advance starts the next queued song if the guild is idle. It is a no-op
// while something plays or another advance is in flight.
func (r *Registry) Advance(ctx context.Context, guildID string) error {
	s := r.Get(guildID)
	gen, ok := s.tryBeginAdvance()
	if !ok {
		return nil
	}
	return s.runAdvance(ctx, gen)
}

// Play connects to channelID, queues songs and starts playback when the
// guild was idle. Connection failures are returned to the caller.
func (r *Registry) Play(ctx context.Context, guildID, channelID string, songs []repository.Song, immediate bool) ([]repository.Song, error) {
	s := r.Get(guildID)
	if err := s.Connect(ctx, channelID); err != nil {
		return nil, err
	}
	q, err := s.Enqueue(ctx, songs, immediate)
	if err != nil {
		return nil, err
	}
	if err := r.Advance(ctx, guildID); err != nil {
		return q, err
	}
	return q, nil
}

// IdleSweep disconnects sessions that have been idle on a voice channel
// past the idle timeout with nothing queued. It returns how many left.
func (r *Registry) IdleSweep(ctx context.Context) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	n := 0
	now := time.Now()
	for _, s := range r.all() {
		if s.idleExpired(r.opts.IdleTimeout, now) && s.leaveIfEmpty(ctx) {
			n++
		}
	}
	return n
}

func (r *Registry) post(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Run consumes scheduler events until ctx is cancelled or Shutdown is
// called.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case ev := <-r.events:
			s := r.Peek(ev.guildID)
			if s == nil {
				continue
			}
			switch ev.kind {
			case eventCompleted:
				go s.onComplete(ctx, ev.gen)
			case eventIdle:
				go s.onIdle(ctx, ev.gen)
			}
		case <-ticker.C:
			if n := r.IdleSweep(ctx); n > 0 {
				slog.Info("idle sweep disconnected sessions", "count", n)
			}
		}
	}
}

// Shutdown stops every session's playback and leaves all voice channels.
func (r *Registry) Shutdown() {
	r.once.Do(func() { close(r.done) })
	for _, s := range r.all() {
		s.Leave()
	}
}
