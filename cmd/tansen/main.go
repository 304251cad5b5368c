package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/config"
	"github.com/sonroyaalmerol/tansen/internal/handlers"
	"github.com/sonroyaalmerol/tansen/internal/logging"
	"github.com/sonroyaalmerol/tansen/internal/lyrics"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
	"github.com/sonroyaalmerol/tansen/internal/sponsorblock"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Init(false)
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.Debug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, err := repository.OpenDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	slog.Info("checking yt-dlp installation")
	resolver.Install(ctx)
	ytdl := resolver.NewYtdlp(resolver.Options{
		Timeout:        cfg.ResolveTimeout,
		SearchFallback: cfg.ResolverSearchFallback,
		CookiesPath:    cfg.YouTubeCookiesPath,
		POToken:        cfg.YouTubePOToken,
	})

	gate := utils.NewGate(cfg.LookupConcurrency, cfg.LookupRate)
	lyr := lyrics.NewService(lyrics.Options{
		GeniusToken: cfg.GeniusToken,
		CacheTTL:    cfg.LyricsCacheTTL,
		Gate:        gate,
	})

	var (
		cat  catalog.Catalog
		auth *spotify.UserAuth
	)
	if cfg.SpotifyEnabled() {
		cat = spotify.NewAppClient(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret, repo)
		auth = spotify.NewUserAuth(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI, repo)
	} else {
		slog.Info("spotify credentials not set, catalog search disabled")
	}

	var trim catalog.Trimmer
	if cfg.EnableSponsorBlock {
		trim = sponsorblock.NewApplier(gate, time.Duration(cfg.SponsorBlockTimeoutMin)*time.Minute)
	}

	exp := catalog.NewExpander(ytdl, cat, trim, catalog.Options{PlaylistLimit: cfg.PlaylistLimit})

	bot := handlers.NewBot(cfg, repo, handlers.Deps{
		Resolver:    ytdl,
		Expander:    exp,
		Lyrics:      lyr,
		SpotifyAuth: auth,
	})
	if err := bot.Run(ctx); err != nil {
		slog.Error("bot stopped", "err", err)
		os.Exit(1)
	}
}
