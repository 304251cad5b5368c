package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorIdle    = 0x992222
	colorInfo    = 0x1DB954

	QueuePageSize = 25
	LyricsChunk   = 4000
	maxDesc       = 4096
)

// SongLink renders a markdown link to the song, pointing at its offset
// when it starts mid-video.
func SongLink(s repository.Song) string {
	title := utils.EscapeMd(utils.Truncate(s.Title, 200))
	link := s.CatalogURL
	if link == "" && strings.HasPrefix(s.StreamQuery, "http") {
		link = s.StreamQuery
	}
	if link == "" {
		return title
	}
	if s.Offset > 0 && strings.Contains(link, "youtube.com/watch") {
		link += fmt.Sprintf("&t=%d", s.Offset)
	}
	return fmt.Sprintf("[%s](%s)", title, link)
}

func songLength(s repository.Song) int {
	if s.Length > 0 {
		return s.Length
	}
	return s.DurationSec() - s.Offset
}

func durationLabel(s repository.Song) string {
	if s.IsLive {
		return "live"
	}
	if n := songLength(s); n > 0 {
		return utils.PrettyTime(n)
	}
	return "?"
}

func NowPlayingEmbed(snap player.Snapshot) *discordgo.MessageEmbed {
	cur := snap.Current
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty.",
			Color:       colorIdle,
		}
	}

	title, color, button := "Now Playing", colorPlaying, "▶️"
	switch snap.State {
	case player.StatePaused:
		title, color, button = "Paused", colorPaused, "⏸️"
	case player.StateResolving:
		title, button = "Loading", "⏳"
	}

	pos := int(snap.Elapsed / time.Second)
	elapsed := "live"
	progress := 0.0
	if !cur.IsLive {
		total := songLength(*cur)
		if total <= 0 && snap.Stream != nil {
			total = int(snap.Stream.Duration / time.Second)
		}
		if total > 0 {
			progress = float64(pos) / float64(total)
		}
		elapsed = fmt.Sprintf("%s/%s", utils.PrettyTime(pos), utils.PrettyTime(total))
	}
	loop := ""
	if snap.Loop {
		loop = "🔂"
	}

	desc := fmt.Sprintf("**%s**\n", SongLink(*cur))
	if cur.Requester != "" {
		desc += fmt.Sprintf("Requested by: <@%s>\n", cur.Requester)
	}
	desc += fmt.Sprintf("\n%s %s `[ %s ]` %s", button, ProgressBar(10, progress), elapsed, loop)

	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Volume %d%%", int(snap.Volume*100+0.5)),
		},
	}
	if a := cur.Artist(); a != "" {
		e.Footer.Text = a + " · " + e.Footer.Text
	}
	if cur.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cur.Thumbnail}
	} else if snap.Stream != nil && snap.Stream.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: snap.Stream.Thumbnail}
	}
	return e
}

// QueueEmbed shows the current song and the first QueuePageSize pending ones.
func QueueEmbed(snap player.Snapshot, queue []repository.Song) *discordgo.MessageEmbed {
	var desc strings.Builder
	if snap.Current != nil {
		fmt.Fprintf(&desc, "**Now:** %s `[ %s ]`\n\n", SongLink(*snap.Current), durationLabel(*snap.Current))
	}
	if len(queue) == 0 {
		desc.WriteString("Nothing queued.")
	} else {
		desc.WriteString("**Up next:**\n")
	}

	shown := 0
	for i, s := range queue[:min(len(queue), QueuePageSize)] {
		line := fmt.Sprintf("`%d.` %s `[ %s ]`\n", i+1, SongLink(s), durationLabel(s))
		if desc.Len()+len(line) > maxDesc-32 {
			break
		}
		desc.WriteString(line)
		shown++
	}
	if rest := len(queue) - shown; rest > 0 && shown > 0 {
		fmt.Fprintf(&desc, "…and %d more", rest)
	}

	total := 0
	for _, s := range queue {
		if !s.IsLive {
			total += max(0, songLength(s))
		}
	}
	title := "Queue"
	if snap.Loop {
		title += " (loop on)"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc.String(),
		Color:       colorPlaying,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: countLabel(len(queue)), Inline: true},
			{Name: "Total length", Value: totalLabel(total), Inline: true},
		},
	}
}

func countLabel(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func totalLabel(sec int) string {
	if sec <= 0 {
		return "-"
	}
	return utils.PrettyTime(sec)
}

// LyricsEmbeds splits lyrics into embeds of at most LyricsChunk characters.
// Discord accepts ten embeds per message.
func LyricsEmbeds(song repository.Song, text string) []*discordgo.MessageEmbed {
	chunks := utils.Chunk(text, LyricsChunk)
	if len(chunks) > 10 {
		chunks = chunks[:10]
	}
	out := make([]*discordgo.MessageEmbed, 0, len(chunks))
	for i, c := range chunks {
		e := &discordgo.MessageEmbed{Description: c, Color: colorInfo}
		if i == 0 {
			e.Title = utils.Truncate(song.Title, 250)
			if a := song.Artist(); a != "" {
				e.Author = &discordgo.MessageEmbedAuthor{Name: utils.Truncate(a, 250)}
			}
		}
		out = append(out, e)
	}
	return out
}

func PlaylistsEmbed(pls []repository.Playlist) *discordgo.MessageEmbed {
	if len(pls) == 0 {
		return &discordgo.MessageEmbed{Title: "Your playlists", Description: "No saved playlists.", Color: colorInfo}
	}
	var b strings.Builder
	for _, p := range pls {
		fmt.Fprintf(&b, "**%s** · %s", utils.EscapeMd(p.Name), countLabel(len(p.Songs)))
		if p.Description != "" {
			b.WriteString(" · " + utils.EscapeMd(utils.Truncate(p.Description, 80)))
		}
		b.WriteByte('\n')
	}
	return &discordgo.MessageEmbed{Title: "Your playlists", Description: utils.Truncate(b.String(), maxDesc), Color: colorInfo}
}

type HelpSection struct {
	Name     string
	Commands [][2]string
}

var Help = []HelpSection{
	{"Playback", [][2]string{
		{"play", "Search Spotify or YouTube, or queue a link"},
		{"play-url", "Queue a YouTube, Spotify or stream link"},
		{"play-playlist", "Queue a whole Spotify playlist or album"},
		{"pause / resume", "Pause or resume playback"},
		{"skip", "Skip the current song"},
		{"stop", "Stop, clear the queue and disconnect"},
		{"loop", "Toggle looping the current song"},
		{"volume", "Set the volume (0-200%)"},
		{"now-playing", "Show the player panel"},
		{"lyrics", "Lyrics for the current song"},
	}},
	{"Queue", [][2]string{
		{"queue", "Show the queue"},
		{"remove", "Remove a queued song by position"},
		{"shuffle", "Shuffle the queue"},
		{"clear", "Clear the queue"},
	}},
	{"Voice", [][2]string{
		{"join", "Join your voice channel"},
		{"leave", "Leave the voice channel"},
	}},
	{"Playlists", [][2]string{
		{"playlist save/load/list/delete", "Manage your saved playlists"},
		{"spotify-link", "Link your Spotify account"},
		{"spotify-playlists", "Queue one of your Spotify playlists"},
	}},
}

func HelpEmbed() *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{Title: "Commands", Color: colorInfo}
	for _, sec := range Help {
		var b strings.Builder
		for _, c := range sec.Commands {
			fmt.Fprintf(&b, "`/%s` %s\n", c[0], c[1])
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: sec.Name, Value: b.String()})
	}
	return e
}
