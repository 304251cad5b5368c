package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/catalog"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/ui"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

// snapshotSongs is what "playlist save" stores: the current song followed
// by the pending queue.
func snapshotSongs(cur *repository.Song, queue []repository.Song) []repository.Song {
	out := make([]repository.Song, 0, len(queue)+1)
	if cur != nil {
		out = append(out, *cur)
	}
	return append(out, queue...)
}

// requeueable copies saved songs with fresh ids so the same playlist can be
// loaded more than once.
func requeueable(songs []repository.Song, requester, guildID string) []repository.Song {
	out := make([]repository.Song, len(songs))
	for i, s := range songs {
		s.ID = ""
		s.Requester = requester
		s.GuildID = guildID
		s.EnsureID()
		out[i] = s
	}
	return out
}

func (h *CommandHandler) cmdPlaylist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub, opts := options(i.ApplicationCommandData().Options)
	ctx := context.Background()
	userID := userIDOf(i)
	name := optString(opts, "name")
	slog.Info("cmd playlist", "guildID", i.GuildID, "userID", userID, "sub", sub, "name", name)

	switch sub {
	case "save":
		sess := h.reg.Get(i.GuildID)
		q, err := sess.Queue(ctx)
		if err != nil {
			h.reply(s, i, errText(err), true)
			return
		}
		songs := snapshotSongs(sess.NowPlaying().Current, q)
		if len(songs) == 0 {
			h.reply(s, i, "nothing to save, the queue is empty", true)
			return
		}
		err = h.repo.SetPlaylist(ctx, repository.Playlist{
			UserID:      userID,
			Name:        name,
			Description: optString(opts, "description"),
			Songs:       songs,
		})
		if err != nil {
			slog.Error("save playlist failed", "userID", userID, "err", err)
			h.reply(s, i, "failed to save playlist", true)
			return
		}
		h.reply(s, i, fmt.Sprintf("👍 saved %d songs as **%s**", len(songs), utils.EscapeMd(name)), true)

	case "load":
		pl, err := h.repo.GetPlaylist(ctx, userID, name)
		if err != nil {
			slog.Error("load playlist failed", "userID", userID, "err", err)
			h.reply(s, i, "failed to load playlist", true)
			return
		}
		if pl == nil || len(pl.Songs) == 0 {
			h.reply(s, i, "no playlist with that name exists", true)
			return
		}
		chID, ok := userInVoice(s, i.GuildID, userID)
		if !ok {
			h.reply(s, i, "gotta be in a voice channel", true)
			return
		}
		h.deferReply(s, i, false)
		h.queueSongs(s, i, chID, catalog.Result{
			Songs:    requeueable(pl.Songs, userID, i.GuildID),
			Playlist: pl.Name,
		}, false)

	case "list":
		pls, err := h.repo.ListPlaylists(ctx, userID)
		if err != nil {
			slog.Error("list playlists failed", "userID", userID, "err", err)
			h.reply(s, i, "failed to list playlists", true)
			return
		}
		h.respond(s, i, &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{ui.PlaylistsEmbed(pls)},
			Flags:  ephemeral,
		})

	case "delete":
		ok, err := h.repo.DeletePlaylist(ctx, userID, name)
		switch {
		case err != nil:
			slog.Error("delete playlist failed", "userID", userID, "err", err)
			h.reply(s, i, "failed to delete playlist", true)
		case !ok:
			h.reply(s, i, "no playlist with that name exists", true)
		default:
			h.reply(s, i, "👍 playlist deleted", true)
		}
	}
}

func (h *CommandHandler) cmdSpotifyLink(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.auth == nil {
		h.reply(s, i, errText(catalog.ErrSpotifyDisabled), true)
		return
	}
	slog.Info("cmd spotify-link", "guildID", i.GuildID, "userID", userIDOf(i))
	h.respond(s, i, &discordgo.InteractionResponseData{
		Content:    "Open Spotify, approve access, then paste the URL you land on.",
		Components: ui.LinkComponents(h.auth.LinkURL(userIDOf(i))),
		Flags:      ephemeral,
	})
}

func (h *CommandHandler) cmdSpotifyPlaylists(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.auth == nil {
		h.reply(s, i, errText(catalog.ErrSpotifyDisabled), true)
		return
	}
	userID := userIDOf(i)
	slog.Info("cmd spotify-playlists", "guildID", i.GuildID, "userID", userID)
	h.deferReply(s, i, true)

	ctx := context.Background()
	client, err := h.auth.Client(ctx, userID)
	if err != nil {
		if !errors.Is(err, spotify.ErrNotLinked) {
			slog.Warn("spotify user client failed", "userID", userID, "err", err)
		}
		h.editReply(s, i, errText(err))
		return
	}
	pls, err := client.MyPlaylists(ctx, 25)
	if spotify.Revoked(err) {
		if err := h.auth.Unlink(ctx, userID); err != nil {
			slog.Warn("spotify unlink failed", "userID", userID, "err", err)
		}
		h.editReply(s, i, "your Spotify access was revoked, run /spotify-link again")
		return
	}
	if err != nil {
		slog.Warn("spotify playlists failed", "userID", userID, "err", err)
		h.editReply(s, i, "couldn't fetch your Spotify playlists")
		return
	}
	if len(pls) == 0 {
		h.editReply(s, i, "you don't have any Spotify playlists")
		return
	}
	content := "Pick a playlist to queue:"
	comps := ui.PlaylistPicker(pls)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &comps,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "err", err)
	}
}
