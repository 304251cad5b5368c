package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guild = "g1"

type harness struct {
	reg   *Registry
	store *memStore
	res   *fakeResolver
	voice *fakeVoice
	pres  *recordingPresenter
	sess  *Session
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = time.Hour
	}
	h := &harness{
		store: newMemStore(),
		res:   &fakeResolver{fail: map[string]bool{}, gates: map[string]chan struct{}{}},
		voice: &fakeVoice{},
		pres:  &recordingPresenter{},
	}
	h.reg = NewRegistry(h.store, h.res, h.voice, opts)
	h.reg.SetPresenter(h.pres)
	h.sess = h.reg.Get(guild)

	ctx, cancel := context.WithCancel(context.Background())
	go h.reg.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.reg.Shutdown()
	})
	return h
}

func (h *harness) conn() *fakeConn {
	h.voice.mu.Lock()
	defer h.voice.mu.Unlock()
	return h.voice.conns[len(h.voice.conns)-1]
}

func (h *harness) playedCount() int {
	c := h.conn()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.played)
}

func (h *harness) start(t *testing.T, titles ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.sess.Connect(ctx, "voice"))
	_, err := h.sess.Enqueue(ctx, songs(titles...), false)
	require.NoError(t, err)
	require.NoError(t, h.reg.Advance(ctx, guild))
}

func playing(s *Session, title string) func() bool {
	return func() bool {
		snap := s.NowPlaying()
		return snap.State == StatePlaying && snap.Current != nil && snap.Current.Title == title
	}
}

func idle(s *Session) func() bool {
	return func() bool {
		snap := s.NowPlaying()
		return snap.State == StateIdle && snap.Current == nil && !s.advancingNow()
	}
}

func (s *Session) advancingNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advancing
}

func TestEnqueueOrder(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	_, err := h.sess.Enqueue(ctx, songs("A", "B"), false)
	require.NoError(t, err)
	_, err = h.sess.Enqueue(ctx, songs("C"), false)
	require.NoError(t, err)
	q, err := h.sess.Enqueue(ctx, songs("D"), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"D", "A", "B", "C"}, h.store.titles(guild))
	for _, s := range q {
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, guild, s.GuildID)
	}
}

func TestAdvanceEndToEnd(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "A", "B")

	require.True(t, playing(h.sess, "A")())
	assert.Equal(t, []string{"B"}, h.store.titles(guild))

	h.conn().last().finish()
	require.Eventually(t, playing(h.sess, "B"), time.Second, 5*time.Millisecond)
	assert.Empty(t, h.store.titles(guild))

	h.conn().last().finish()
	require.Eventually(t, idle(h.sess), time.Second, 5*time.Millisecond)
	assert.True(t, h.sess.idleArmed())
	assert.Equal(t, []string{"A", "B", ""}, h.pres.seen())

	st, err := h.store.GetSettings(context.Background(), guild)
	require.NoError(t, err)
	require.NotNil(t, st.LastPlayed)
	require.NotNil(t, st.PreviousPlayed)
	assert.Equal(t, "B", st.LastPlayed.Title)
	assert.Equal(t, "A", st.PreviousPlayed.Title)
}

func TestLoopSingleSong(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.store.UpdateSettings(context.Background(), guild, func(s *repository.Settings) { s.Loop = true })
	require.NoError(t, err)

	h.start(t, "A")
	require.True(t, playing(h.sess, "A")())
	assert.Equal(t, []string{"A"}, h.store.titles(guild))

	for i := range 3 {
		h.conn().last().finish()
		require.Eventually(t, func() bool {
			return h.playedCount() == i+2 && playing(h.sess, "A")()
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"A"}, h.store.titles(guild))
	}
}

func TestSkipRacingCompletionPopsOnce(t *testing.T) {
	h := newHarness(t, Options{})
	gate := make(chan struct{})
	h.res.gates["B"] = gate

	h.start(t, "A", "B", "C")
	first := h.conn().last()

	skipErr := make(chan error, 1)
	go func() { skipErr <- h.sess.Skip(context.Background()) }()
	first.finish()

	time.Sleep(20 * time.Millisecond)
	close(gate)

	require.Eventually(t, playing(h.sess, "B"), time.Second, 5*time.Millisecond)
	err := <-skipErr
	if err != nil {
		assert.ErrorIs(t, err, ErrAdvanceInFlight)
	}
	assert.Equal(t, []string{"C"}, h.store.titles(guild))
	assert.Equal(t, 1, h.res.count("B"))
	assert.Equal(t, 2, h.playedCount())
}

func TestSkip(t *testing.T) {
	h := newHarness(t, Options{})
	assert.ErrorIs(t, h.sess.Skip(context.Background()), ErrNothingPlaying)

	h.start(t, "A", "B")
	first := h.conn().last()
	require.NoError(t, h.sess.Skip(context.Background()))
	assert.True(t, first.stopped)
	assert.True(t, playing(h.sess, "B")())

	require.NoError(t, h.sess.Skip(context.Background()))
	assert.True(t, idle(h.sess)())
}

func TestResolutionFailureDropsAndContinues(t *testing.T) {
	tests := []struct {
		name      string
		loop      bool
		wantQueue []string
	}{
		{"plain", false, nil},
		{"loop", true, []string{"C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.res.fail["B"] = true
			_, err := h.store.UpdateSettings(context.Background(), guild, func(s *repository.Settings) { s.Loop = tt.loop })
			require.NoError(t, err)

			h.start(t, "B", "C")
			assert.True(t, playing(h.sess, "C")())
			assert.Equal(t, tt.wantQueue, h.store.titles(guild))
		})
	}
}

func TestEverySongUnplayable(t *testing.T) {
	h := newHarness(t, Options{})
	h.res.fail["A"] = true
	h.res.fail["B"] = true

	h.start(t, "A", "B")
	assert.True(t, idle(h.sess)())
	assert.Empty(t, h.store.titles(guild))
	assert.True(t, h.sess.idleArmed())
}

func TestStopDuringResolution(t *testing.T) {
	h := newHarness(t, Options{})
	gate := make(chan struct{})
	h.res.gates["A"] = gate
	ctx := context.Background()

	require.NoError(t, h.sess.Connect(ctx, "voice"))
	_, err := h.sess.Enqueue(ctx, songs("A", "B"), false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.reg.Advance(ctx, guild) }()
	require.Eventually(t, func() bool { return h.sess.NowPlaying().State == StateResolving }, time.Second, time.Millisecond)

	conn := h.conn()
	require.NoError(t, h.sess.Stop(ctx))
	close(gate)
	require.NoError(t, <-done)

	assert.True(t, conn.isClosed())
	assert.True(t, idle(h.sess)())
	assert.Empty(t, h.store.titles(guild))
	if pb := conn.last(); pb != nil {
		assert.True(t, pb.stopped)
	}
	_, connected := h.sess.Connected()
	assert.False(t, connected)
}

func TestLeaveKeepsQueue(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "A", "B")
	conn := h.conn()

	h.sess.Leave()
	assert.True(t, conn.isClosed())
	assert.True(t, conn.last().stopped)
	assert.Equal(t, []string{"B"}, h.store.titles(guild))
	assert.Equal(t, StateIdle, h.sess.State())
}

func TestIdleTimerCancelledByEnqueue(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.start(t, "A")
	h.conn().last().finish()
	require.Eventually(t, idle(h.sess), time.Second, 5*time.Millisecond)
	require.True(t, h.sess.idleArmed())

	h.sess.mu.Lock()
	armedGen := h.sess.idleGen
	h.sess.mu.Unlock()

	_, err := h.sess.Enqueue(ctx, songs("B"), false)
	require.NoError(t, err)
	assert.False(t, h.sess.idleArmed())
	assert.False(t, h.sess.onIdle(ctx, armedGen))
	assert.False(t, h.conn().isClosed())
}

func TestIdleTimerDisconnects(t *testing.T) {
	h := newHarness(t, Options{IdleTimeout: 20 * time.Millisecond})
	h.start(t, "A")
	conn := h.conn()
	conn.last().finish()

	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	_, connected := h.sess.Connected()
	assert.False(t, connected)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, Options{})
	assert.ErrorIs(t, h.sess.Pause(), ErrNotPlaying)

	h.start(t, "A")
	pb := h.conn().last()

	require.NoError(t, h.sess.Pause())
	assert.True(t, pb.paused)
	assert.Equal(t, StatePaused, h.sess.State())
	assert.ErrorIs(t, h.sess.Pause(), ErrNotPlaying)

	require.NoError(t, h.sess.Resume())
	assert.False(t, pb.paused)
	assert.ErrorIs(t, h.sess.Resume(), ErrNotPaused)
}

func TestSetVolume(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	assert.ErrorIs(t, h.sess.SetVolume(ctx, 2.5), ErrInvalidVolume)
	assert.ErrorIs(t, h.sess.SetVolume(ctx, -0.1), ErrInvalidVolume)

	h.start(t, "A")
	require.NoError(t, h.sess.SetVolume(ctx, 0.5))
	assert.Equal(t, 0.5, h.conn().last().volume)
	assert.Equal(t, 0.5, h.sess.NowPlaying().Volume)

	st, err := h.store.GetSettings(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, 0.5, st.Volume)
}

func TestToggleLoop(t *testing.T) {
	h := newHarness(t, Options{})
	on, err := h.sess.ToggleLoop(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.sess.NowPlaying().Loop)

	on, err = h.sess.ToggleLoop(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
}

func TestRemove(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	_, err := h.sess.Enqueue(ctx, songs("A", "B", "C"), false)
	require.NoError(t, err)

	got, err := h.sess.Remove(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Title)
	assert.Equal(t, []string{"A", "C"}, h.store.titles(guild))

	for _, pos := range []int{0, 3, -1} {
		_, err = h.sess.Remove(ctx, pos)
		assert.ErrorIs(t, err, ErrInvalidPosition)
	}
}

func TestConnectionFailures(t *testing.T) {
	t.Run("join", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.voice.joinErr = errors.New("no permission")
		_, err := h.reg.Play(context.Background(), guild, "voice", songs("A"), false)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, StateIdle, h.sess.State())
	})

	t.Run("not connected", func(t *testing.T) {
		h := newHarness(t, Options{})
		_, err := h.sess.Enqueue(context.Background(), songs("A"), false)
		require.NoError(t, err)
		err = h.reg.Advance(context.Background(), guild)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, []string{"A"}, h.store.titles(guild))
	})

	t.Run("voice start", func(t *testing.T) {
		h := newHarness(t, Options{})
		_, err := h.store.UpdateSettings(context.Background(), guild, func(s *repository.Settings) { s.Loop = true })
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, h.sess.Connect(ctx, "voice"))
		h.conn().playErr = errors.New("udp closed")
		_, err = h.sess.Enqueue(ctx, songs("A", "B"), false)
		require.NoError(t, err)

		err = h.reg.Advance(ctx, guild)
		assert.ErrorIs(t, err, ErrConnection)
		assert.Equal(t, StateIdle, h.sess.State())
		assert.Equal(t, []string{"A", "B"}, h.store.titles(guild))
	})
}

func TestPersistenceFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.failing = true
	_, err := h.sess.Enqueue(context.Background(), songs("A"), false)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, h.sess.Clear(context.Background()), ErrPersistence)
}

func (v *fakeVoice) channel(ch string) *fakeConn {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.conns) - 1; i >= 0; i-- {
		if v.conns[i].channel == ch {
			return v.conns[i]
		}
	}
	return nil
}

func TestChannelMove(t *testing.T) {
	cases := []struct {
		name   string
		during func(t *testing.T, h *harness, gate chan struct{})
		// songs expected on the new connection, in order
		want []string
	}{
		{
			name: "while resolving",
			during: func(t *testing.T, h *harness, gate chan struct{}) {
				require.Eventually(t, func() bool { return h.sess.NowPlaying().State == StateResolving }, time.Second, time.Millisecond)
				_, err := h.reg.Play(context.Background(), guild, "voice2", songs("C"), false)
				require.NoError(t, err)
				close(gate)
			},
			want: []string{"A", "B", "C"},
		},
		{
			name: "while playing",
			during: func(t *testing.T, h *harness, gate chan struct{}) {
				close(gate)
				require.Eventually(t, playing(h.sess, "A"), time.Second, time.Millisecond)
				_, err := h.reg.Play(context.Background(), guild, "voice2", songs("C"), false)
				require.NoError(t, err)
				assert.True(t, playing(h.sess, "A")())
				h.voice.channel("voice1").last().finish()
			},
			want: []string{"B", "C"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			gate := make(chan struct{})
			h.res.gates["A"] = gate
			ctx := context.Background()

			require.NoError(t, h.sess.Connect(ctx, "voice1"))
			_, err := h.sess.Enqueue(ctx, songs("A", "B"), false)
			require.NoError(t, err)
			done := make(chan error, 1)
			go func() { done <- h.reg.Advance(ctx, guild) }()

			tc.during(t, h, gate)
			require.NoError(t, <-done)

			moved := h.voice.channel("voice2")
			require.NotNil(t, moved)
			ch, ok := h.sess.Connected()
			require.True(t, ok)
			assert.Equal(t, "voice2", ch)

			for _, title := range tc.want {
				require.Eventually(t, playing(h.sess, title), time.Second, 5*time.Millisecond, "waiting for %s", title)
				pb := moved.last()
				require.NotNil(t, pb)
				assert.Equal(t, title, pb.title)
				pb.finish()
			}
			require.Eventually(t, idle(h.sess), time.Second, 5*time.Millisecond)
			assert.Empty(t, h.store.titles(guild))
		})
	}
}

func TestMovedUpdatesChannel(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t, "A")

	h.sess.Moved("elsewhere")
	ch, ok := h.sess.Connected()
	require.True(t, ok)
	assert.Equal(t, "elsewhere", ch)
	assert.Equal(t, "elsewhere", h.sess.NowPlaying().ChannelID)
	assert.True(t, playing(h.sess, "A")())
	assert.Len(t, h.voice.conns, 1)

	h.sess.Leave()
	h.sess.Moved("again")
	_, ok = h.sess.Connected()
	assert.False(t, ok)
}
