package ui

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/spotify"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

// Component custom ids.
const (
	BtnPauseResume = "panel:pause"
	BtnSkip        = "panel:skip"
	BtnLoop        = "panel:loop"
	BtnVolDown     = "panel:vol_down"
	BtnVolUp       = "panel:vol_up"
	BtnStop        = "panel:stop"
	BtnLyrics      = "panel:lyrics"

	SelectSearch   = "pick:track"
	SelectPlaylist = "pick:spotify_playlist"

	ModalSpotifyLink = "modal:spotify_link"
	InputRedirectURL = "redirect_url"
)

// PanelComponents is the button row under the now-playing panel.
func PanelComponents(snap player.Snapshot) []discordgo.MessageComponent {
	pause := discordgo.Button{Label: "Pause", Style: discordgo.SecondaryButton, CustomID: BtnPauseResume, Emoji: &discordgo.ComponentEmoji{Name: "⏸️"}}
	if snap.State == player.StatePaused {
		pause.Label = "Resume"
		pause.Style = discordgo.SuccessButton
		pause.Emoji = &discordgo.ComponentEmoji{Name: "▶️"}
	}
	loop := discordgo.Button{Label: "Loop", Style: discordgo.SecondaryButton, CustomID: BtnLoop, Emoji: &discordgo.ComponentEmoji{Name: "🔂"}}
	if snap.Loop {
		loop.Style = discordgo.PrimaryButton
	}
	idle := snap.Current == nil

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			pause,
			discordgo.Button{Label: "Skip", Style: discordgo.SecondaryButton, CustomID: BtnSkip, Disabled: idle, Emoji: &discordgo.ComponentEmoji{Name: "⏭️"}},
			loop,
			discordgo.Button{Label: "Stop", Style: discordgo.DangerButton, CustomID: BtnStop, Emoji: &discordgo.ComponentEmoji{Name: "⏹️"}},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "-5%", Style: discordgo.SecondaryButton, CustomID: BtnVolDown, Emoji: &discordgo.ComponentEmoji{Name: "🔉"}},
			discordgo.Button{Label: "+5%", Style: discordgo.SecondaryButton, CustomID: BtnVolUp, Emoji: &discordgo.ComponentEmoji{Name: "🔊"}},
			discordgo.Button{Label: "Lyrics", Style: discordgo.SecondaryButton, CustomID: BtnLyrics, Disabled: idle, Emoji: &discordgo.ComponentEmoji{Name: "📜"}},
		}},
	}
}

// SearchPicker offers catalog search results as a select menu. customID
// should start with SelectSearch.
func SearchPicker(customID string, tracks []spotify.Track) []discordgo.MessageComponent {
	opts := make([]discordgo.SelectMenuOption, 0, len(tracks))
	for _, t := range tracks {
		opts = append(opts, discordgo.SelectMenuOption{
			Label:       utils.Truncate(t.Name, 100),
			Description: utils.Truncate(fmt.Sprintf("%s · %s", t.Artist(), utils.PrettyTime(int(t.Duration.Seconds()))), 100),
			Value:       t.ID,
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    customID,
				Placeholder: "Pick a track",
				Options:     opts,
			},
		}},
	}
}

// PlaylistPicker lists a user's playlists, at most 25.
func PlaylistPicker(pls []spotify.PlaylistMeta) []discordgo.MessageComponent {
	opts := make([]discordgo.SelectMenuOption, 0, min(len(pls), 25))
	for _, p := range pls[:min(len(pls), 25)] {
		opts = append(opts, discordgo.SelectMenuOption{
			Label: utils.Truncate(p.Title, 100),
			Value: p.ID,
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    SelectPlaylist,
				Placeholder: "Queue a playlist",
				Options:     opts,
			},
		}},
	}
}

// LinkComponents pairs the consent link with a button that opens the
// paste-back modal.
func LinkComponents(authURL string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Open Spotify", Style: discordgo.LinkButton, URL: authURL},
			discordgo.Button{Label: "Paste redirect URL", Style: discordgo.PrimaryButton, CustomID: ModalSpotifyLink},
		}},
	}
}

func LinkModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: ModalSpotifyLink,
		Title:    "Link Spotify",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    InputRedirectURL,
					Label:       "URL you were redirected to",
					Style:       discordgo.TextInputParagraph,
					Placeholder: "http://localhost/callback?code=...",
					Required:    true,
				},
			}},
		},
	}
}
