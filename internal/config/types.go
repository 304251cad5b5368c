package config

import "time"

type Config struct {
	DiscordToken          string
	SpotifyClientID       string
	SpotifyClientSecret   string
	SpotifyRedirectURI    string
	GeniusToken           string
	DataDir               string
	DatabaseURL           string // postgres DSN; sqlite under DataDir when empty
	BotStatus             string // online/dnd/idle
	BotActivity           string
	RegisterCommandsOnBot bool
	LeaveIfNoListeners    bool
	PlaylistLimit         int
	Debug                 bool

	IdleTimeout            time.Duration
	ResolveTimeout         time.Duration
	ResolverSearchFallback bool
	YouTubeCookiesPath     string
	YouTubePOToken         string
	AdvanceWorkers         int
	IdleSweepInterval      time.Duration

	LookupConcurrency int
	LookupRate        float64 // requests per second, 0 disables pacing
	LyricsCacheTTL    time.Duration

	EnableSponsorBlock     bool
	SponsorBlockTimeoutMin int
}

func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
