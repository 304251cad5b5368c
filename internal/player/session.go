package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

// Session is the playback state of one guild. All mutation of the voice
// connection, the running playback and the current song happens under mu.
type Session struct {
	guildID string
	reg     *Registry

	mu        sync.Mutex
	state     State
	current   *repository.Song
	stream    *resolver.Stream
	started   time.Time
	conn      VoiceConn
	channelID string
	pb        Playback
	volume    float64
	loop      bool
	gen       uint64
	advancing bool
	rerun     bool
	idle      *time.Timer
	idleGen   uint64
	idleSince time.Time

	snap atomic.Pointer[Snapshot]
}

func newSession(reg *Registry, guildID string) *Session {
	s := &Session{guildID: guildID, reg: reg, volume: repository.DefaultVolume}
	s.publishLocked()
	return s
}

func (s *Session) GuildID() string { return s.guildID }

// NowPlaying returns the last published snapshot without taking the lock.
func (s *Session) NowPlaying() Snapshot {
	snap := *s.snap.Load()
	if pb := snap.playback; pb != nil {
		snap.Elapsed = pb.Position()
	}
	return snap
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports the voice channel the session is attached to.
func (s *Session) Connected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "", false
	}
	return s.channelID, true
}

// Moved records that the bot was dragged to channelID from outside. The
// guild's voice connection follows the bot, so only the channel changes.
func (s *Session) Moved(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || channelID == "" || s.channelID == channelID {
		return
	}
	s.channelID = channelID
	s.publishLocked()
}

// Connect joins channelID, moving the bot if it already sits elsewhere in
// the guild.
func (s *Session) Connect(ctx context.Context, channelID string) error {
	s.mu.Lock()
	if s.conn != nil && s.channelID == channelID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.reg.voice.Join(ctx, s.guildID, channelID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn, s.channelID = conn, channelID
	if s.state == StateIdle && s.current == nil {
		s.idleSince = time.Now()
	}
	s.publishLocked()
	return nil
}

// Enqueue appends songs to the queue, or puts them in front when
// immediate is set. Any pending idle disconnect is cancelled.
func (s *Session) Enqueue(ctx context.Context, songs []repository.Song, immediate bool) ([]repository.Song, error) {
	add := make([]repository.Song, len(songs))
	for i, song := range songs {
		song.EnsureID()
		song.GuildID = s.guildID
		add[i] = song
	}

	q, err := s.reg.store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
		if immediate {
			return slices.Concat(add, q)
		}
		return slices.Concat(q, add)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.mu.Lock()
	s.cancelIdleLocked()
	s.mu.Unlock()
	return q, nil
}

func (s *Session) Queue(ctx context.Context) ([]repository.Song, error) {
	q, err := s.reg.store.GetQueue(ctx, s.guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return q, nil
}

// Remove deletes the song at 1-based position pos.
func (s *Session) Remove(ctx context.Context, pos int) (repository.Song, error) {
	var removed repository.Song
	var found bool
	_, err := s.reg.store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
		found = pos >= 1 && pos <= len(q)
		if !found {
			return q
		}
		removed = q[pos-1]
		return slices.Delete(slices.Clone(q), pos-1, pos)
	})
	if err != nil {
		return repository.Song{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !found {
		return repository.Song{}, ErrInvalidPosition
	}
	return removed, nil
}

func (s *Session) Clear(ctx context.Context) error {
	if err := s.reg.store.DeleteQueue(ctx, s.guildID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (s *Session) Shuffle(ctx context.Context) ([]repository.Song, error) {
	q, err := s.reg.store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
		q = slices.Clone(q)
		utils.ShuffleSlice(q)
		return q
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return q, nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying || s.pb == nil {
		return ErrNotPlaying
	}
	s.pb.Pause()
	s.state = StatePaused
	s.publishLocked()
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused || s.pb == nil {
		return ErrNotPaused
	}
	s.pb.Resume()
	s.state = StatePlaying
	s.publishLocked()
	return nil
}

// ToggleLoop flips the loop flag. It takes effect at the next pop.
func (s *Session) ToggleLoop(ctx context.Context) (bool, error) {
	st, err := s.reg.store.UpdateSettings(ctx, s.guildID, func(st *repository.Settings) {
		st.Loop = !st.Loop
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.mu.Lock()
	s.loop = st.Loop
	s.publishLocked()
	s.mu.Unlock()
	return st.Loop, nil
}

// SetVolume stores v (1.0 is unity gain) and applies it to the running
// stream.
func (s *Session) SetVolume(ctx context.Context, v float64) error {
	if v < 0 || v > MaxVolume {
		return ErrInvalidVolume
	}
	if _, err := s.reg.store.UpdateSettings(ctx, s.guildID, func(st *repository.Settings) {
		st.Volume = v
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
	if s.pb != nil {
		s.pb.SetVolume(v)
	}
	s.publishLocked()
	return nil
}

// Skip stops the current track and advances to the next one.
func (s *Session) Skip(ctx context.Context) error {
	s.mu.Lock()
	if s.advancing {
		s.mu.Unlock()
		return ErrAdvanceInFlight
	}
	if s.pb == nil || (s.state != StatePlaying && s.state != StatePaused) {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.gen++
	gen := s.gen
	pb := s.pb
	s.pb = nil
	s.advancing = true
	s.state = StateResolving
	s.publishLocked()
	s.mu.Unlock()

	pb.Stop()
	return s.runAdvance(ctx, gen)
}

// Stop ends playback, clears the queue and leaves the voice channel.
func (s *Session) Stop(ctx context.Context) error {
	s.disconnect()
	if err := s.reg.store.DeleteQueue(ctx, s.guildID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Leave ends playback and leaves the voice channel. The queue is kept.
func (s *Session) Leave() {
	s.disconnect()
}

func (s *Session) disconnect() {
	s.mu.Lock()
	s.gen++
	pb, conn := s.pb, s.conn
	hadSong := s.current != nil
	s.pb, s.conn, s.channelID = nil, nil, ""
	s.current, s.stream = nil, nil
	s.state = StateDisconnecting
	s.cancelIdleLocked()
	s.publishLocked()
	s.mu.Unlock()

	if pb != nil {
		pb.Stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Warn("voice disconnect failed", "guildID", s.guildID, "err", err)
		}
	}

	s.mu.Lock()
	if s.state == StateDisconnecting {
		s.state = StateIdle
	}
	s.publishLocked()
	s.mu.Unlock()

	if hadSong {
		s.reg.presenter.NowPlaying(s.guildID, nil)
	}
}

// tryBeginAdvance claims the advance slot. It refuses while a track is
// running or another advance is in flight; in the latter case a rerun is
// queued so songs enqueued during an aborted advance are not stranded.
func (s *Session) tryBeginAdvance() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advancing {
		s.rerun = true
		return 0, false
	}
	if s.state != StateIdle {
		return 0, false
	}
	s.advancing = true
	return s.gen, true
}

func (s *Session) finishAdvance() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rerun && s.state == StateIdle && s.conn != nil {
		s.rerun = false
		return s.gen, true
	}
	s.rerun = false
	s.advancing = false
	return 0, false
}

var (
	errRetry   = errors.New("try next song")
	errAborted = errors.New("advance superseded")
)

func (s *Session) runAdvance(ctx context.Context, gen uint64) error {
	if err := s.reg.pool.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		s.advancing, s.rerun = false, false
		if s.gen == gen && s.state == StateResolving {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return err
	}
	defer s.reg.pool.Release(1)

	for {
		err := s.advanceStep(ctx, gen)
		if errors.Is(err, errRetry) {
			continue
		}
		next, again := s.finishAdvance()
		if again {
			gen = next
			continue
		}
		if errors.Is(err, errAborted) {
			return nil
		}
		return err
	}
}

// advanceStep pops the next song and starts it. The lock is held while the
// queue head is popped and the current song is set, then released for
// resolution and stream start.
func (s *Session) advanceStep(ctx context.Context, gen uint64) error {
	store := s.reg.store

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return errAborted
	}
	conn := s.conn
	if conn == nil {
		s.state = StateIdle
		s.current, s.stream = nil, nil
		s.publishLocked()
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnection, ErrNotConnected)
	}

	settings, err := store.GetSettings(ctx, s.guildID)
	if err != nil {
		slog.Warn("settings read failed, using defaults", "guildID", s.guildID, "err", err)
		settings = repository.DefaultSettings(s.guildID)
	}
	s.volume, s.loop = settings.Volume, settings.Loop

	var popped *repository.Song
	_, err = store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
		popped = nil
		if len(q) == 0 {
			return q
		}
		head := q[0]
		popped = &head
		rest := slices.Clone(q[1:])
		if settings.Loop {
			rest = append(rest, head)
		}
		return rest
	})
	if err != nil {
		s.state = StateIdle
		s.current = nil
		s.publishLocked()
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if popped == nil {
		hadSong := s.current != nil
		s.current, s.stream = nil, nil
		s.state = StateIdle
		s.armIdleLocked()
		s.publishLocked()
		s.mu.Unlock()
		if hadSong {
			s.reg.presenter.NowPlaying(s.guildID, nil)
		}
		return nil
	}

	s.current, s.stream = popped, nil
	s.state = StateResolving
	s.cancelIdleLocked()
	s.publishLocked()
	if _, err := store.UpdateSettings(ctx, s.guildID, func(st *repository.Settings) {
		st.PreviousPlayed = st.LastPlayed
		last := *popped
		st.LastPlayed = &last
	}); err != nil {
		slog.Warn("failed to record last played", "guildID", s.guildID, "err", fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	volume := s.volume
	s.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, s.reg.opts.ResolveTimeout)
	st, err := s.reg.resolver.Resolve(rctx, popped.StreamQuery)
	cancel()
	if err != nil {
		slog.Warn("dropping unplayable song", "guildID", s.guildID, "title", popped.Title, "err", err)
		return s.dropFailed(ctx, gen, popped, settings.Loop)
	}

	opts := PlayOptions{
		Volume: volume,
		Seek:   time.Duration(popped.Offset) * time.Second,
		Length: time.Duration(popped.Length) * time.Second,
	}
	var pb Playback
	for {
		pb, err = conn.Play(context.Background(), st, opts)
		if err != nil {
			slog.Error("voice playback failed to start", "guildID", s.guildID, "err", err)
			return s.requeueFailed(ctx, gen, popped, settings.Loop, err)
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			pb.Stop()
			return errAborted
		}
		if s.conn == conn {
			break
		}
		// The bot moved channels while the stream was starting. Keep the
		// song and start it again on the new connection.
		moved := s.conn
		s.mu.Unlock()
		pb.Stop()
		if moved == nil {
			return s.requeueFailed(ctx, gen, popped, settings.Loop, ErrNotConnected)
		}
		slog.Info("voice channel changed during start, restarting", "guildID", s.guildID, "channelID", moved.ChannelID())
		conn = moved
	}
	s.pb = pb
	s.stream = st
	s.started = time.Now()
	s.state = StatePlaying
	s.publishLocked()
	song := *popped
	s.mu.Unlock()

	slog.Info("now playing", "guildID", s.guildID, "title", song.Title)
	go s.watch(pb, gen)
	s.reg.presenter.NowPlaying(s.guildID, &song)
	return nil
}

func (s *Session) watch(pb Playback, gen uint64) {
	<-pb.Done()
	if err := pb.Err(); err != nil {
		slog.Warn("playback ended with error", "guildID", s.guildID, "err", err)
	}
	s.reg.post(event{kind: eventCompleted, guildID: s.guildID, gen: gen})
}

func (s *Session) dropFailed(ctx context.Context, gen uint64, song *repository.Song, loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return errAborted
	}
	if loop {
		if _, err := s.reg.store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
			return removeLoopCopy(q, song.ID)
		}); err != nil {
			slog.Warn("failed to drop looped copy", "guildID", s.guildID, "err", err)
		}
	}
	s.current = nil
	s.state = StateIdle
	s.publishLocked()
	return errRetry
}

func (s *Session) requeueFailed(ctx context.Context, gen uint64, song *repository.Song, loop bool, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return errAborted
	}
	if _, err := s.reg.store.UpdateQueue(ctx, s.guildID, func(q []repository.Song) []repository.Song {
		if loop {
			q = removeLoopCopy(q, song.ID)
		}
		return slices.Concat([]repository.Song{*song}, q)
	}); err != nil {
		slog.Warn("failed to requeue song", "guildID", s.guildID, "err", err)
	}
	s.current, s.stream = nil, nil
	s.state = StateIdle
	s.publishLocked()
	return fmt.Errorf("%w: %v", ErrConnection, cause)
}

// removeLoopCopy drops the last occurrence of id, which is the copy the
// loop re-append put at the tail.
func removeLoopCopy(q []repository.Song, id string) []repository.Song {
	for i := len(q) - 1; i >= 0; i-- {
		if q[i].ID == id {
			return slices.Delete(slices.Clone(q), i, i+1)
		}
	}
	return q
}

// onComplete handles a natural end of track. Stale generations and
// completions racing an in-flight advance are ignored.
func (s *Session) onComplete(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.advancing || (s.state != StatePlaying && s.state != StatePaused) {
		s.mu.Unlock()
		return
	}
	s.pb = nil
	s.advancing = true
	s.state = StateResolving
	s.publishLocked()
	s.mu.Unlock()

	if err := s.runAdvance(ctx, gen); err != nil {
		slog.Error("advance after completion failed", "guildID", s.guildID, "err", err)
	}
}

func (s *Session) armIdleLocked() {
	s.cancelIdleLocked()
	s.idleSince = time.Now()
	if s.conn == nil || s.reg.opts.IdleTimeout <= 0 {
		return
	}
	g := s.idleGen
	s.idle = time.AfterFunc(s.reg.opts.IdleTimeout, func() {
		s.reg.post(event{kind: eventIdle, guildID: s.guildID, gen: g})
	})
}

func (s *Session) cancelIdleLocked() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	s.idleGen++
}

// onIdle releases the voice connection if nothing happened since the
// timer was armed and the queue is still empty.
func (s *Session) onIdle(ctx context.Context, gen uint64) bool {
	s.mu.Lock()
	if gen != s.idleGen || s.advancing || s.state != StateIdle || s.conn == nil {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.leaveIfEmpty(ctx)
}

// idleExpired reports whether the session has sat idle on a voice channel
// for longer than d.
func (s *Session) idleExpired(d time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.advancing && s.state == StateIdle &&
		!s.idleSince.IsZero() && now.Sub(s.idleSince) >= d
}

func (s *Session) leaveIfEmpty(ctx context.Context) bool {
	q, err := s.reg.store.GetQueue(ctx, s.guildID)
	if err != nil {
		slog.Warn("idle check failed", "guildID", s.guildID, "err", err)
		return false
	}
	if len(q) > 0 {
		return false
	}
	slog.Info("leaving idle voice channel", "guildID", s.guildID)
	s.Leave()
	return true
}

func (s *Session) idleArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle != nil
}

func (s *Session) publishLocked() {
	snap := &Snapshot{
		GuildID:  s.guildID,
		State:    s.state,
		Stream:   s.stream,
		Started:  s.started,
		Volume:   s.volume,
		Loop:     s.loop,
		playback: s.pb,
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	if s.conn != nil {
		snap.ChannelID = s.channelID
	}
	s.snap.Store(snap)
}
