package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/autocomplete"
	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/config"
	"github.com/sonroyaalmerol/tansen/internal/lyrics"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
)

const ephemeral = discordgo.MessageFlags(1 << 6)

type CommandHandler struct {
	cfg     *config.Config
	repo    *repository.Repo
	reg     *player.Registry
	exp     *catalog.Expander
	lyrics  *lyrics.Service
	auth    *spotify.UserAuth
	suggest *autocomplete.Suggester
	panel   *Presenter
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, reg *player.Registry, deps Deps, panel *Presenter) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		repo:    repo,
		reg:     reg,
		exp:     deps.Expander,
		lyrics:  deps.Lyrics,
		auth:    deps.SpotifyAuth,
		suggest: autocomplete.NewSuggester(deps.Expander),
		panel:   panel,
	}
}

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionString, Required: required}
}

func boolOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionBoolean}
}

func commands() []*discordgo.ApplicationCommand {
	minVol, minPos := 0.0, 1.0
	query := stringOpt("query", "search text or link", true)
	query.Autocomplete = true
	name := stringOpt("name", "playlist name", true)

	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Search for a song or queue a link",
			Options:     []*discordgo.ApplicationCommandOption{query, boolOpt("immediate", "add to the front of the queue")},
		},
		{
			Name:        "play-url",
			Description: "Queue a YouTube, Spotify or stream link",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("url", "link to queue", true),
				boolOpt("immediate", "add to the front of the queue"),
				boolOpt("split", "queue each chapter as its own song"),
			},
		},
		{
			Name:        "play-playlist",
			Description: "Queue a whole Spotify playlist or album",
			Options:     []*discordgo.ApplicationCommandOption{stringOpt("url", "Spotify playlist or album link", true)},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playback, clear the queue and disconnect"},
		{Name: "pause", Description: "Pause the current song"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "loop", Description: "Toggle looping the current song"},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{{
				Name: "level", Description: "0-200 (%)", Type: discordgo.ApplicationCommandOptionInteger,
				Required: true, MinValue: &minVol, MaxValue: 200,
			}},
		},
		{Name: "queue", Description: "Show the queue"},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{{
				Name: "position", Description: "position in the queue", Type: discordgo.ApplicationCommandOptionInteger,
				Required: true, MinValue: &minPos,
			}},
		},
		{Name: "clear", Description: "Clear the queue"},
		{Name: "shuffle", Description: "Shuffle the queue"},
		{Name: "now-playing", Description: "Show the player panel"},
		{Name: "lyrics", Description: "Lyrics for the current song"},
		{Name: "join", Description: "Join your voice channel"},
		{Name: "leave", Description: "Leave the voice channel"},
		{
			Name:        "playlist",
			Description: "Manage your saved playlists",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "save", Description: "save the current queue",
					Options: []*discordgo.ApplicationCommandOption{name, stringOpt("description", "what it is", false)},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "load", Description: "queue a saved playlist",
					Options: []*discordgo.ApplicationCommandOption{name},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "list your playlists"},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete", Description: "delete a playlist",
					Options: []*discordgo.ApplicationCommandOption{name},
				},
			},
		},
		{Name: "spotify-link", Description: "Link your Spotify account"},
		{Name: "spotify-playlists", Description: "Queue one of your Spotify playlists"},
		{Name: "help", Description: "List commands"},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	start := time.Now()
	cmds := commands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		slog.Error("failed to register application commands", "guildID", guildID, "err", err)
		return err
	}
	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		slog.Debug("interaction: component", "guildID", i.GuildID, "userID", userIDOf(i), "customID", i.MessageComponentData().CustomID)
		h.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		h.handleModal(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var query string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused {
			query = opt.StringValue()
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	choices := h.suggest.Choices(ctx, query, 10)
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "play-url":
		h.cmdPlayURL(s, i)
	case "play-playlist":
		h.cmdPlayPlaylist(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "loop":
		h.cmdLoop(s, i)
	case "volume":
		h.cmdVolume(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "remove":
		h.cmdRemove(s, i)
	case "clear":
		h.cmdClear(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "lyrics":
		h.cmdLyrics(s, i)
	case "join":
		h.cmdJoin(s, i)
	case "leave":
		h.cmdLeave(s, i)
	case "playlist":
		h.cmdPlaylist(s, i)
	case "spotify-link":
		h.cmdSpotifyLink(s, i)
	case "spotify-playlists":
		h.cmdSpotifyPlaylists(s, i)
	case "help":
		h.cmdHelp(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, hidden bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if hidden {
		data.Flags = ephemeral
	}
	h.respond(s, i, data)
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, hidden bool) {
	data := &discordgo.InteractionResponseData{}
	if hidden {
		data.Flags = ephemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

// editReply replaces the deferred response, dropping any components such as
// a picker the user just answered.
func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	none := []discordgo.MessageComponent{}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &none,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

// errText maps scheduler and lookup errors to what users are told.
func errText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, player.ErrConnection):
		return "couldn't connect to the voice channel"
	case errors.Is(err, player.ErrNotConnected):
		return "I'm not in a voice channel"
	case errors.Is(err, player.ErrNothingPlaying):
		return "nothing is playing"
	case errors.Is(err, player.ErrAdvanceInFlight):
		return "hang on, the next song is still loading"
	case errors.Is(err, player.ErrInvalidVolume):
		return "volume must be between 0 and 200"
	case errors.Is(err, player.ErrInvalidPosition):
		return "there's no song at that position"
	case errors.Is(err, player.ErrNotPaused):
		return "not paused"
	case errors.Is(err, player.ErrNotPlaying):
		return "not currently playing"
	case errors.Is(err, player.ErrPersistence):
		return "couldn't save that, try again"
	case errors.Is(err, resolver.ErrUnplayable), errors.Is(err, catalog.ErrNoResults):
		return "no songs found"
	case errors.Is(err, catalog.ErrSpotifyDisabled):
		return "Spotify isn't set up on this bot"
	case errors.Is(err, spotify.ErrNotLinked):
		return "link your Spotify account first with /spotify-link"
	case errors.Is(err, spotify.ErrUnsupported):
		return "that kind of Spotify link isn't supported"
	case errors.Is(err, lyrics.ErrNotFound):
		return "no lyrics found"
	}
	return "something went wrong"
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil {
		return ""
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// options flattens a command's options, descending into a subcommand.
func options(opts []*discordgo.ApplicationCommandInteractionDataOption) (sub string, m map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	m = make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		if o.Type == discordgo.ApplicationCommandOptionSubCommand {
			sub = o.Name
			_, inner := options(o.Options)
			for k, v := range inner {
				m[k] = v
			}
			continue
		}
		m[o.Name] = o
	}
	return sub, m
}

func optString(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := m[name]; ok {
		return strings.TrimSpace(o.StringValue())
	}
	return ""
}

func optBool(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	if o, ok := m[name]; ok {
		return o.BoolValue()
	}
	return false
}

func optInt(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) (int, bool) {
	if o, ok := m[name]; ok {
		return int(o.IntValue()), true
	}
	return 0, false
}
