package player

import (
	"context"
	"errors"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
)

type State int

const (
	StateIdle State = iota
	StateResolving
	StatePlaying
	StatePaused
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisconnecting:
		return "disconnecting"
	}
	return "unknown"
}

var (
	ErrConnection      = errors.New("voice connection failed")
	ErrPersistence     = errors.New("state store unavailable")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrAdvanceInFlight = errors.New("already moving to the next track")
	ErrInvalidVolume   = errors.New("volume must be between 0% and 200%")
	ErrInvalidPosition = errors.New("no song at that position")
	ErrNotPaused       = errors.New("playback is not paused")
	ErrNotPlaying      = errors.New("playback is not running")
	ErrNotConnected    = errors.New("not connected to a voice channel")
)

const MaxVolume = 2.0

// Store is the slice of the repository the scheduler needs.
type Store interface {
	GetQueue(ctx context.Context, guildID string) ([]repository.Song, error)
	SetQueue(ctx context.Context, guildID string, songs []repository.Song) error
	DeleteQueue(ctx context.Context, guildID string) error
	UpdateQueue(ctx context.Context, guildID string, fn func([]repository.Song) []repository.Song) ([]repository.Song, error)
	GetSettings(ctx context.Context, guildID string) (repository.Settings, error)
	UpdateSettings(ctx context.Context, guildID string, fn func(*repository.Settings)) (repository.Settings, error)
}

type Resolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Stream, error)
}

type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (VoiceConn, error)
}

type PlayOptions struct {
	Volume float64
	Seek   time.Duration
	Length time.Duration // 0 plays to the end
}

// VoiceConn is one joined voice channel.
type VoiceConn interface {
	ChannelID() string
	Play(ctx context.Context, st *resolver.Stream, opts PlayOptions) (Playback, error)
	Close() error
}

// Playback is one running stream. Done is closed once audio stops for any
// reason, including Stop.
type Playback interface {
	Done() <-chan struct{}
	Err() error
	Pause()
	Resume()
	SetVolume(v float64)
	Position() time.Duration
	Stop()
}

// Presenter is told about track changes. It is never called with the
// session lock held.
type Presenter interface {
	NowPlaying(guildID string, song *repository.Song)
}

type Snapshot struct {
	GuildID   string
	State     State
	Current   *repository.Song
	Stream    *resolver.Stream
	Started   time.Time
	Elapsed   time.Duration
	ChannelID string
	Volume    float64
	Loop      bool

	playback Playback
}

type event struct {
	kind    eventKind
	guildID string
	gen     uint64
}

type eventKind int

const (
	eventCompleted eventKind = iota
	eventIdle
)

type nopPresenter struct{}

func (nopPresenter) NowPlaying(string, *repository.Song) {}
