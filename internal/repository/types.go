package repository

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

type Repo struct {
	db      *sql.DB
	dialect Dialect
	locks   keyLocks
}

// Song is the queued unit of playback. It is stored as JSON inside queue,
// settings and playlist rows.
type Song struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists,omitempty"`
	Album       string   `json:"album,omitempty"`
	Duration    *int     `json:"duration,omitempty"` // seconds
	Thumbnail   string   `json:"thumbnail,omitempty"`
	CatalogURL  string   `json:"catalog_url,omitempty"`
	Requester   string   `json:"requester,omitempty"`
	StreamQuery string   `json:"stream_query"`
	GuildID     string   `json:"guild_id,omitempty"`
	Offset      int      `json:"offset,omitempty"` // seconds to skip at start
	Length      int      `json:"length,omitempty"` // seconds to play, 0 = until the end
	IsLive      bool     `json:"is_live,omitempty"`
}

// EnsureID assigns a fresh id to songs that do not have one yet.
func (s *Song) EnsureID() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
}

func (s Song) Artist() string {
	return strings.Join(s.Artists, ", ")
}

func (s Song) DurationSec() int {
	if s.Duration == nil {
		return 0
	}
	return *s.Duration
}

type Settings struct {
	GuildID        string
	Volume         float64
	Loop           bool
	LastPlayed     *Song
	PreviousPlayed *Song
}

const DefaultVolume = 1.0

func DefaultSettings(guildID string) Settings {
	return Settings{GuildID: guildID, Volume: DefaultVolume}
}

type Playlist struct {
	UserID      string
	Name        string
	Description string
	Songs       []Song
}

type SpotifyUser struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// keyLocks serializes read-modify-write cycles per key inside the process.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}
