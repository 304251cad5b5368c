package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getbool(key string, def bool) bool {
	v, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

// getdur accepts Go durations ("90s", "5m") or a bare number of seconds.
func getdur(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(getenv(key, ""))
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func LoadConfig() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	lookupRate, err := strconv.ParseFloat(getenv("LOOKUP_RATE", "4"), 64)
	if err != nil {
		return nil, ErrConfig("LOOKUP_RATE must be a number")
	}

	cfg := &Config{
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		SpotifyClientID:       os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret:   os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:    getenv("SPOTIFY_REDIRECT_URI", "http://localhost:8888/callback"),
		GeniusToken:           os.Getenv("GENIUS_API_TOKEN"),
		DataDir:               getenv("DATA_DIR", "./data"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		BotStatus:             getenv("BOT_STATUS", "online"),
		BotActivity:           getenv("BOT_ACTIVITY", "music"),
		RegisterCommandsOnBot: getbool("REGISTER_COMMANDS_ON_BOT", false),
		LeaveIfNoListeners:    getbool("LEAVE_IF_NO_LISTENERS", true),
		PlaylistLimit:         getint("PLAYLIST_LIMIT", 100),
		Debug:                 getbool("DEBUG", false),

		IdleTimeout:            getdur("IDLE_TIMEOUT", 300*time.Second),
		ResolveTimeout:         getdur("RESOLVE_TIMEOUT", 30*time.Second),
		ResolverSearchFallback: getbool("RESOLVER_SEARCH_FALLBACK", true),
		YouTubeCookiesPath:     os.Getenv("YOUTUBE_COOKIES_PATH"),
		YouTubePOToken:         os.Getenv("YOUTUBE_PO_TOKEN"),
		AdvanceWorkers:         getint("ADVANCE_WORKERS", 8),
		IdleSweepInterval:      getdur("IDLE_SWEEP_INTERVAL", time.Minute),

		LookupConcurrency: getint("LOOKUP_CONCURRENCY", 4),
		LookupRate:        lookupRate,
		LyricsCacheTTL:    getdur("LYRICS_CACHE_TTL", time.Hour),

		EnableSponsorBlock:     getbool("ENABLE_SPONSORBLOCK", false),
		SponsorBlockTimeoutMin: getint("SPONSORBLOCK_TIMEOUT", 5),
	}

	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	if cfg.AdvanceWorkers < 1 {
		return nil, ErrConfig("ADVANCE_WORKERS must be at least 1")
	}
	if cfg.LookupConcurrency < 1 {
		return nil, ErrConfig("LOOKUP_CONCURRENCY must be at least 1")
	}
	if cfg.DatabaseURL == "" {
		_ = os.MkdirAll(cfg.DataDir, 0o755)
	}
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
