package handlers

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/config"
	"github.com/sonroyaalmerol/tansen/internal/lyrics"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/stream"
)

// Deps are the services built before the gateway connects.
type Deps struct {
	Resolver    player.Resolver
	Expander    *catalog.Expander
	Lyrics      *lyrics.Service
	SpotifyAuth *spotify.UserAuth
}

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
	deps Deps
}

func NewBot(cfg *config.Config, repo *repository.Repo, deps Deps) *Bot {
	return &Bot{cfg: cfg, repo: repo, deps: deps}
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	reg := player.NewRegistry(b.repo, b.deps.Resolver, stream.NewVoice(dg), player.Options{
		IdleTimeout:    b.cfg.IdleTimeout,
		ResolveTimeout: b.cfg.ResolveTimeout,
		SweepInterval:  b.cfg.IdleSweepInterval,
		Workers:        b.cfg.AdvanceWorkers,
	})
	panel := NewPresenter(dg)
	panel.attach(reg)
	reg.SetPresenter(panel)
	cmd := NewCommandHandler(b.cfg, b.repo, reg, b.deps, panel)

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username, "guilds", len(r.Guilds))
		b.setPresence(s)
		appID := s.State.User.ID
		if b.cfg.RegisterCommandsOnBot {
			if err := cmd.RegisterCommands(s, appID, ""); err == nil {
				slog.Info("registered global application commands")
			}
			return
		}
		for _, g := range r.Guilds {
			go func(guildID string) {
				_ = cmd.RegisterCommands(s, appID, guildID)
			}(g.ID)
		}
		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			slog.Error("clear global commands", "err", err)
		}
	})

	// register on guilds joined after startup
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot || s.State.User == nil {
			return
		}
		if err := cmd.RegisterCommands(s, s.State.User.ID, g.ID); err == nil {
			slog.Debug("registered commands on guild", "guildID", g.ID)
		}
	})

	dg.AddHandler(cmd.HandleInteraction)
	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		b.onVoiceState(s, reg, vs)
	})

	go reg.Run(ctx)

	if err := dg.Open(); err != nil {
		reg.Shutdown()
		return err
	}
	defer dg.Close()
	// leave voice before the gateway closes
	defer reg.Shutdown()

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func (b *Bot) setPresence(s *discordgo.Session) {
	data := discordgo.UpdateStatusData{Status: b.cfg.BotStatus}
	if b.cfg.BotActivity != "" {
		data.Activities = []*discordgo.Activity{{Name: b.cfg.BotActivity, Type: discordgo.ActivityTypeListening}}
	}
	if err := s.UpdateStatusComplex(data); err != nil {
		slog.Warn("update presence failed", "err", err)
	}
}

type voiceEvent int

const (
	voiceIgnore voiceEvent = iota
	voiceKicked
	voiceMoved
	voiceOther
)

// classifyVoiceState sorts an update relative to the channel the bot is
// playing in.
func classifyVoiceState(botID, current string, vs *discordgo.VoiceState) voiceEvent {
	if vs == nil {
		return voiceIgnore
	}
	if botID != "" && vs.UserID == botID {
		switch vs.ChannelID {
		case "":
			return voiceKicked
		case current:
			return voiceIgnore
		default:
			return voiceMoved
		}
	}
	return voiceOther
}

// onVoiceState follows the bot when it is moved or kicked and, when
// enabled, leaves channels where no humans are listening anymore.
func (b *Bot) onVoiceState(s *discordgo.Session, reg *player.Registry, vs *discordgo.VoiceStateUpdate) {
	sess := reg.Peek(vs.GuildID)
	if sess == nil {
		return
	}
	chID, ok := sess.Connected()
	if !ok {
		return
	}
	botID := ""
	if s.State.User != nil {
		botID = s.State.User.ID
	}

	switch classifyVoiceState(botID, chID, vs.VoiceState) {
	case voiceIgnore:
		return
	case voiceKicked:
		slog.Info("disconnected from voice externally", "guildID", vs.GuildID)
		sess.Leave()
		return
	case voiceMoved:
		slog.Info("moved to another voice channel", "guildID", vs.GuildID, "from", chID, "to", vs.ChannelID)
		sess.Moved(vs.ChannelID)
		chID = vs.ChannelID
	}

	if !b.cfg.LeaveIfNoListeners {
		return
	}
	if listeners(s, vs.GuildID, chID) == 0 {
		slog.Info("no listeners left, leaving", "guildID", vs.GuildID, "channelID", chID)
		sess.Leave()
	}
}

func listeners(s *discordgo.Session, guildID, channelID string) int {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if m, _ := s.State.Member(guildID, vs.UserID); m != nil && m.User != nil && !m.User.Bot {
			n++
		}
	}
	return n
}
