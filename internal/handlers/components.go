package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/ui"
)

func (h *CommandHandler) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	switch id := data.CustomID; {
	case strings.HasPrefix(id, ui.SelectSearch):
		h.onTrackPicked(s, i, data.Values, strings.HasSuffix(id, ":now"))
	case id == ui.SelectPlaylist:
		h.onPlaylistPicked(s, i, data.Values)
	case id == ui.ModalSpotifyLink:
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: ui.LinkModal(),
		}); err != nil {
			slog.Warn("open modal failed", "guildID", i.GuildID, "err", err)
		}
	case strings.HasPrefix(id, "panel:"):
		h.onPanelButton(s, i, id)
	default:
		slog.Debug("unknown component", "customID", id, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) deferUpdate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Warn("defer update failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) onTrackPicked(s *discordgo.Session, i *discordgo.InteractionCreate, values []string, immediate bool) {
	if len(values) == 0 {
		return
	}
	userID := userIDOf(i)
	slog.Info("track picked", "guildID", i.GuildID, "userID", userID, "trackID", values[0], "immediate", immediate)
	h.deferUpdate(s, i)

	chID, ok := userInVoice(s, i.GuildID, userID)
	if !ok {
		h.editReply(s, i, "gotta be in a voice channel")
		return
	}
	song, err := h.exp.SpotifyTrack(context.Background(), values[0], userID, i.GuildID)
	if err != nil {
		slog.Warn("picked track lookup failed", "trackID", values[0], "err", err)
		h.editReply(s, i, errText(err))
		return
	}
	h.queueSongs(s, i, chID, catalog.Result{Songs: []repository.Song{song}}, immediate)
}

func (h *CommandHandler) onPlaylistPicked(s *discordgo.Session, i *discordgo.InteractionCreate, values []string) {
	if len(values) == 0 || h.auth == nil {
		return
	}
	userID := userIDOf(i)
	slog.Info("spotify playlist picked", "guildID", i.GuildID, "userID", userID, "playlistID", values[0])
	h.deferUpdate(s, i)

	client, err := h.auth.Client(context.Background(), userID)
	if err != nil {
		h.editReply(s, i, errText(err))
		return
	}
	// private playlists are only visible to their owner's token
	h.enqueue(s, i, h.exp.WithCatalog(client), "spotify:playlist:"+values[0], false, false)
}

func (h *CommandHandler) handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if data.CustomID != ui.ModalSpotifyLink || h.auth == nil {
		return
	}
	userID := userIDOf(i)
	h.deferReply(s, i, true)
	if err := h.auth.Complete(context.Background(), userID, modalValue(data, ui.InputRedirectURL)); err != nil {
		slog.Warn("spotify link failed", "userID", userID, "err", err)
		h.editReply(s, i, "couldn't link Spotify: "+err.Error())
		return
	}
	slog.Info("spotify account linked", "userID", userID)
	h.editReply(s, i, "👍 Spotify linked, try /spotify-playlists")
}

func modalValue(data discordgo.ModalSubmitInteractionData, id string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok && in.CustomID == id {
				return in.Value
			}
		}
	}
	return ""
}

func (h *CommandHandler) onPanelButton(s *discordgo.Session, i *discordgo.InteractionCreate, id string) {
	sess := h.reg.Peek(i.GuildID)
	if sess == nil {
		h.reply(s, i, "I'm not in a voice channel", true)
		return
	}
	ctx := context.Background()
	slog.Info("panel button", "guildID", i.GuildID, "userID", userIDOf(i), "button", id)

	var err error
	switch id {
	case ui.BtnPauseResume:
		if sess.State() == player.StatePaused {
			err = sess.Resume()
		} else {
			err = sess.Pause()
		}
	case ui.BtnLoop:
		_, err = sess.ToggleLoop(ctx)
	case ui.BtnVolDown:
		err = sess.SetVolume(ctx, stepVolume(sess.NowPlaying().Volume, -volumeStep))
	case ui.BtnVolUp:
		err = sess.SetVolume(ctx, stepVolume(sess.NowPlaying().Volume, volumeStep))
	case ui.BtnStop:
		err = sess.Stop(ctx)
	case ui.BtnSkip:
		// the presenter edits the panel once the next song starts
		h.deferUpdate(s, i)
		if err := sess.Skip(ctx); err != nil {
			slog.Debug("skip from panel failed", "guildID", i.GuildID, "err", err)
		}
		return
	case ui.BtnLyrics:
		cur := sess.NowPlaying().Current
		if cur == nil {
			h.reply(s, i, "nothing is currently playing", true)
			return
		}
		h.deferReply(s, i, false)
		h.sendLyrics(s, i, *cur)
		return
	}
	if err != nil {
		h.reply(s, i, errText(err), true)
		return
	}

	snap := sess.NowPlaying()
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{ui.NowPlayingEmbed(snap)},
			Components: ui.PanelComponents(snap),
		},
	}); err != nil {
		slog.Warn("panel update failed", "guildID", i.GuildID, "err", err)
	}
}
