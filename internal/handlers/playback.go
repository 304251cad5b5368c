package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/lyrics"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/ui"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const volumeStep = 0.05

// enqueue expands a request and hands the songs to the scheduler. The
// interaction must already be deferred.
func (h *CommandHandler) enqueue(s *discordgo.Session, i *discordgo.InteractionCreate, exp *catalog.Expander, query string, immediate, split bool) {
	guildID, userID := i.GuildID, userIDOf(i)
	chID, ok := userInVoice(s, guildID, userID)
	if !ok {
		h.editReply(s, i, "gotta be in a voice channel")
		return
	}

	ctx := context.Background()
	res, err := exp.Expand(ctx, catalog.Request{Query: query, Requester: userID, GuildID: guildID, Split: split})
	if err != nil {
		slog.Debug("resolve query failed", "guildID", guildID, "userID", userID, "query", query, "err", err)
		h.editReply(s, i, errText(err))
		return
	}
	h.queueSongs(s, i, chID, res, immediate)
}

func (h *CommandHandler) queueSongs(s *discordgo.Session, i *discordgo.InteractionCreate, chID string, res catalog.Result, immediate bool) {
	h.panel.Bind(i.GuildID, i.ChannelID)
	_, err := h.reg.Play(context.Background(), i.GuildID, chID, res.Songs, immediate)
	if err != nil && !errors.Is(err, player.ErrConnection) {
		slog.Warn("play failed", "guildID", i.GuildID, "err", err)
	}
	if errors.Is(err, player.ErrConnection) || errors.Is(err, player.ErrPersistence) {
		h.editReply(s, i, errText(err))
		return
	}
	h.editReply(s, i, addedMessage(res, immediate))
}

func addedMessage(res catalog.Result, immediate bool) string {
	what := utils.EscapeMd(res.Songs[0].Title)
	if len(res.Songs) > 1 {
		what = fmt.Sprintf("%d songs", len(res.Songs))
		if res.Playlist != "" {
			what += " from " + utils.EscapeMd(res.Playlist)
		}
	}
	where := "the queue"
	if immediate {
		where = "the front of the queue"
	}
	msg := fmt.Sprintf("%s added to %s", what, where)
	if len(res.Notes) > 0 {
		msg += " (" + strings.Join(res.Notes, ", ") + ")"
	}
	return msg
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, opts := options(i.ApplicationCommandData().Options)
	query, immediate := optString(opts, "query"), optBool(opts, "immediate")
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userIDOf(i), "query", query, "immediate", immediate)

	if _, ok := userInVoice(s, i.GuildID, userIDOf(i)); !ok {
		h.reply(s, i, "gotta be in a voice channel", true)
		return
	}

	// free text goes through the Spotify picker when it is available
	if h.exp.SpotifyEnabled() && !strings.Contains(query, "://") && !strings.HasPrefix(query, "spotify:") {
		h.deferReply(s, i, true)
		tracks, err := h.exp.Search(context.Background(), query, 5)
		if err == nil && len(tracks) > 0 {
			custom := ui.SelectSearch
			if immediate {
				custom += ":now"
			}
			comps := ui.SearchPicker(custom, tracks)
			content := "Pick a track:"
			if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
				Content:    &content,
				Components: &comps,
			}); err != nil {
				slog.Warn("edit reply failed", "guildID", i.GuildID, "err", err)
			}
			return
		}
		if err != nil {
			slog.Debug("spotify search failed, falling back to YouTube", "query", query, "err", err)
		}
		h.enqueue(s, i, h.exp, query, immediate, false)
		return
	}

	h.deferReply(s, i, false)
	h.enqueue(s, i, h.exp, query, immediate, false)
}

func (h *CommandHandler) cmdPlayURL(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, opts := options(i.ApplicationCommandData().Options)
	url, immediate, split := optString(opts, "url"), optBool(opts, "immediate"), optBool(opts, "split")
	slog.Info("cmd play-url", "guildID", i.GuildID, "userID", userIDOf(i), "url", url, "immediate", immediate, "split", split)
	h.deferReply(s, i, false)
	h.enqueue(s, i, h.exp, url, immediate, split)
}

func (h *CommandHandler) cmdPlayPlaylist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, opts := options(i.ApplicationCommandData().Options)
	url := optString(opts, "url")
	slog.Info("cmd play-playlist", "guildID", i.GuildID, "userID", userIDOf(i), "url", url)
	if !h.exp.SpotifyEnabled() {
		h.reply(s, i, errText(catalog.ErrSpotifyDisabled), true)
		return
	}
	if !strings.Contains(url, "/playlist/") && !strings.Contains(url, "/album/") &&
		!strings.HasPrefix(url, "spotify:playlist:") && !strings.HasPrefix(url, "spotify:album:") {
		h.reply(s, i, "that's not a Spotify playlist or album link", true)
		return
	}
	h.deferReply(s, i, false)
	h.enqueue(s, i, h.exp, url, false, false)
}

// session returns the guild's session or replies that nothing is going on.
func (h *CommandHandler) session(s *discordgo.Session, i *discordgo.InteractionCreate) *player.Session {
	sess := h.reg.Peek(i.GuildID)
	if sess == nil {
		h.reply(s, i, "I'm not in a voice channel", true)
	}
	return sess
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.session(s, i)
	if sess == nil {
		return
	}
	h.deferReply(s, i, false)
	if err := sess.Skip(context.Background()); err != nil {
		slog.Debug("skip failed", "guildID", i.GuildID, "err", err)
		h.editReply(s, i, errText(err))
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i))
	h.editReply(s, i, "skipped")
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.session(s, i)
	if sess == nil {
		return
	}
	if err := sess.Stop(context.Background()); err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, stopped", false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.session(s, i)
	if sess == nil {
		return
	}
	if err := sess.Pause(); err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.panel.Refresh(i.GuildID)
	h.reply(s, i, "the stop-and-go light is now red", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.session(s, i)
	if sess == nil {
		return
	}
	if err := sess.Resume(); err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.panel.Refresh(i.GuildID)
	h.reply(s, i, "the stop-and-go light is now green", false)
}

func (h *CommandHandler) cmdLoop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	on, err := h.reg.Get(i.GuildID).ToggleLoop(context.Background())
	if err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd loop", "guildID", i.GuildID, "userID", userIDOf(i), "loop", on)
	h.panel.Refresh(i.GuildID)
	if on {
		h.reply(s, i, "looped :)", false)
	} else {
		h.reply(s, i, "stopped looping :(", false)
	}
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, opts := options(i.ApplicationCommandData().Options)
	level, _ := optInt(opts, "level")
	if err := h.reg.Get(i.GuildID).SetVolume(context.Background(), float64(level)/100); err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "level", level)
	h.panel.Refresh(i.GuildID)
	h.reply(s, i, fmt.Sprintf("volume set to %d%%", level), false)
}

// stepVolume nudges v by delta, clamped to the accepted range and rounded
// to whole percents.
func stepVolume(v, delta float64) float64 {
	v = math.Round((v+delta)*100) / 100
	return max(0, min(v, player.MaxVolume))
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.reg.Get(i.GuildID)
	q, err := sess.Queue(context.Background())
	if err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Debug("cmd queue", "guildID", i.GuildID, "userID", userIDOf(i), "size", len(q))
	h.respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{ui.QueueEmbed(sess.NowPlaying(), q)},
		Flags:  ephemeral,
	})
}

func (h *CommandHandler) cmdRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	_, opts := options(i.ApplicationCommandData().Options)
	pos, _ := optInt(opts, "position")
	song, err := h.reg.Get(i.GuildID).Remove(context.Background(), pos)
	if err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd remove", "guildID", i.GuildID, "userID", userIDOf(i), "position", pos)
	h.reply(s, i, ":wastebasket: removed "+utils.EscapeMd(song.Title), false)
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.reg.Get(i.GuildID).Clear(context.Background()); err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd clear queue", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "clearer than a field after a fresh harvest", false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	q, err := h.reg.Get(i.GuildID).Shuffle(context.Background())
	if err != nil {
		h.reply(s, i, errText(err), true)
		return
	}
	slog.Info("cmd shuffle", "guildID", i.GuildID, "userID", userIDOf(i), "size", len(q))
	if len(q) < 2 {
		h.reply(s, i, "not much to shuffle", true)
		return
	}
	h.reply(s, i, fmt.Sprintf("shuffled %d songs", len(q)), false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.reg.Peek(i.GuildID)
	if sess == nil || sess.NowPlaying().Current == nil {
		h.reply(s, i, "nothing is currently playing", true)
		return
	}
	slog.Debug("cmd now-playing", "guildID", i.GuildID, "userID", userIDOf(i))
	h.panel.Bind(i.GuildID, i.ChannelID)
	snap := sess.NowPlaying()
	h.respond(s, i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{ui.NowPlayingEmbed(snap)},
		Components: ui.PanelComponents(snap),
	})
}

// lyricsArtist drops the channel suffixes YouTube adds to auto-generated
// uploads.
func lyricsArtist(song repository.Song) string {
	if len(song.Artists) == 0 {
		return ""
	}
	a := song.Artists[0]
	a = strings.TrimSuffix(a, " - Topic")
	a = strings.TrimSuffix(a, "VEVO")
	return strings.TrimSpace(a)
}

func (h *CommandHandler) cmdLyrics(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.reg.Peek(i.GuildID)
	if sess == nil || sess.NowPlaying().Current == nil {
		h.reply(s, i, "nothing is currently playing", true)
		return
	}
	song := *sess.NowPlaying().Current
	slog.Info("cmd lyrics", "guildID", i.GuildID, "userID", userIDOf(i), "title", song.Title)
	h.deferReply(s, i, false)
	h.sendLyrics(s, i, song)
}

func (h *CommandHandler) sendLyrics(s *discordgo.Session, i *discordgo.InteractionCreate, song repository.Song) {
	text, err := h.lyrics.Lookup(context.Background(), lyricsArtist(song), song.Title)
	if err != nil {
		if !errors.Is(err, lyrics.ErrNotFound) {
			slog.Warn("lyrics lookup failed", "guildID", i.GuildID, "title", song.Title, "err", err)
		}
		h.editReply(s, i, errText(err))
		return
	}
	embeds := ui.LyricsEmbeds(song, text)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) cmdJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		h.reply(s, i, "gotta be in a voice channel", true)
		return
	}
	h.deferReply(s, i, false)
	ctx := context.Background()
	if err := h.reg.Get(i.GuildID).Connect(ctx, chID); err != nil {
		h.editReply(s, i, errText(err))
		return
	}
	h.panel.Bind(i.GuildID, i.ChannelID)
	slog.Info("cmd join", "guildID", i.GuildID, "userID", userIDOf(i), "channelID", chID)
	// pick up whatever queue survived a restart
	if err := h.reg.Advance(ctx, i.GuildID); err != nil {
		slog.Debug("advance after join failed", "guildID", i.GuildID, "err", err)
	}
	h.editReply(s, i, fmt.Sprintf("joined <#%s>", chID))
}

func (h *CommandHandler) cmdLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.session(s, i)
	if sess == nil {
		return
	}
	if _, ok := sess.Connected(); !ok {
		h.reply(s, i, "I'm not in a voice channel", true)
		return
	}
	sess.Leave()
	slog.Info("cmd leave", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, disconnected", false)
}

func (h *CommandHandler) cmdHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{ui.HelpEmbed()},
		Flags:  ephemeral,
	})
}
