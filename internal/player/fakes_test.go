package player

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
)

type memStore struct {
	mu       sync.Mutex
	queues   map[string][]repository.Song
	settings map[string]repository.Settings
	failing  bool
}

func newMemStore() *memStore {
	return &memStore{
		queues:   make(map[string][]repository.Song),
		settings: make(map[string]repository.Settings),
	}
}

var errStoreDown = errors.New("store down")

func (m *memStore) GetQueue(_ context.Context, g string) ([]repository.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errStoreDown
	}
	return slices.Clone(m.queues[g]), nil
}

func (m *memStore) SetQueue(_ context.Context, g string, songs []repository.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	m.queues[g] = slices.Clone(songs)
	return nil
}

func (m *memStore) DeleteQueue(_ context.Context, g string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errStoreDown
	}
	delete(m.queues, g)
	return nil
}

func (m *memStore) UpdateQueue(_ context.Context, g string, fn func([]repository.Song) []repository.Song) ([]repository.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errStoreDown
	}
	q := fn(slices.Clone(m.queues[g]))
	m.queues[g] = slices.Clone(q)
	return q, nil
}

func (m *memStore) GetSettings(_ context.Context, g string) (repository.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.settings[g]; ok {
		return st, nil
	}
	return repository.DefaultSettings(g), nil
}

func (m *memStore) UpdateSettings(_ context.Context, g string, fn func(*repository.Settings)) (repository.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return repository.Settings{}, errStoreDown
	}
	st, ok := m.settings[g]
	if !ok {
		st = repository.DefaultSettings(g)
	}
	fn(&st)
	m.settings[g] = st
	return st, nil
}

func (m *memStore) titles(g string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.queues[g] {
		out = append(out, s.Title)
	}
	return out
}

// fakeResolver resolves every query to a stream titled after it. Queries
// listed in fail error out; a gate, when set, blocks resolution of that
// query until closed.
type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	gates map[string]chan struct{}
}

func (f *fakeResolver) Resolve(ctx context.Context, q string) (*resolver.Stream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gates[q]
	fail := f.fail[q]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, resolver.ErrUnplayable
	}
	return &resolver.Stream{URL: "https://media/" + q, Title: q}, nil
}

func (f *fakeResolver) count(q string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == q {
			n++
		}
	}
	return n
}

type fakeVoice struct {
	mu      sync.Mutex
	conns   []*fakeConn
	joinErr error
}

func (v *fakeVoice) Join(_ context.Context, _, channelID string) (VoiceConn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.joinErr != nil {
		return nil, v.joinErr
	}
	c := &fakeConn{channel: channelID}
	v.conns = append(v.conns, c)
	return c, nil
}

type fakeConn struct {
	channel string

	mu      sync.Mutex
	played  []*fakePlayback
	closed  bool
	playErr error
}

func (c *fakeConn) ChannelID() string { return c.channel }

func (c *fakeConn) Play(_ context.Context, st *resolver.Stream, opts PlayOptions) (Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return nil, c.playErr
	}
	pb := &fakePlayback{title: st.Title, volume: opts.Volume, done: make(chan struct{})}
	c.played = append(c.played, pb)
	return pb, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) last() *fakePlayback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.played) == 0 {
		return nil
	}
	return c.played[len(c.played)-1]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakePlayback struct {
	title string

	mu      sync.Mutex
	volume  float64
	paused  bool
	stopped bool
	once    sync.Once
	done    chan struct{}
}

// finish simulates the track running to its end.
func (p *fakePlayback) finish() { p.once.Do(func() { close(p.done) }) }

func (p *fakePlayback) Done() <-chan struct{}   { return p.done }
func (p *fakePlayback) Err() error              { return nil }
func (p *fakePlayback) Position() time.Duration { return 0 }

func (p *fakePlayback) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *fakePlayback) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *fakePlayback) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.finish()
}

type recordingPresenter struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingPresenter) NowPlaying(_ string, song *repository.Song) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if song == nil {
		r.titles = append(r.titles, "")
		return
	}
	r.titles = append(r.titles, song.Title)
}

func (r *recordingPresenter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.titles)
}

func songs(titles ...string) []repository.Song {
	out := make([]repository.Song, len(titles))
	for i, t := range titles {
		out[i] = repository.Song{Title: t, StreamQuery: t}
	}
	return out
}
