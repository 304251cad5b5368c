package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestProgressBar(t *testing.T) {
	tests := []struct {
		progress float64
		knob     int
	}{
		{0, 0},
		{0.5, 5},
		{0.99, 9},
		{1, 9},
		{2, 9},
		{-1, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.progress), func(t *testing.T) {
			bar := []rune(ProgressBar(10, tt.progress))
			require.Len(t, bar, 10)
			assert.Equal(t, '🔘', bar[tt.knob])
			assert.Equal(t, 1, strings.Count(string(bar), "🔘"))
		})
	}
	assert.Empty(t, ProgressBar(0, 0.5))
}

func TestSongLink(t *testing.T) {
	tests := []struct {
		name string
		song repository.Song
		want string
	}{
		{"catalog url", repository.Song{Title: "A", CatalogURL: "https://open.spotify.com/track/1", StreamQuery: `ytsearch1:"A" "B"`}, "[A](https://open.spotify.com/track/1)"},
		{"stream url", repository.Song{Title: "B", StreamQuery: "https://www.youtube.com/watch?v=x", Offset: 30}, "[B](https://www.youtube.com/watch?v=x&t=30)"},
		{"no link", repository.Song{Title: "C_d", StreamQuery: "c d"}, "C\\_d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SongLink(tt.song))
		})
	}
}

func TestNowPlayingEmbed(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		e := NowPlayingEmbed(player.Snapshot{})
		assert.Equal(t, "Nothing Playing", e.Title)
	})

	t.Run("paused with progress", func(t *testing.T) {
		song := &repository.Song{Title: "Song", Artists: []string{"Band"}, Duration: intp(100), Requester: "42", Thumbnail: "https://img"}
		e := NowPlayingEmbed(player.Snapshot{
			State:   player.StatePaused,
			Current: song,
			Elapsed: 50 * time.Second,
			Volume:  0.75,
			Loop:    true,
		})
		assert.Equal(t, "Paused", e.Title)
		assert.Contains(t, e.Description, "<@42>")
		assert.Contains(t, e.Description, "0:50/1:40")
		assert.Contains(t, e.Description, "🔂")
		assert.Equal(t, "Band · Volume 75%", e.Footer.Text)
		assert.Equal(t, "https://img", e.Thumbnail.URL)
	})

	t.Run("live", func(t *testing.T) {
		e := NowPlayingEmbed(player.Snapshot{State: player.StatePlaying, Current: &repository.Song{Title: "Radio", IsLive: true}, Volume: 1})
		assert.Equal(t, "Now Playing", e.Title)
		assert.Contains(t, e.Description, "`[ live ]`")
	})
}

func TestQueueEmbedShowsFirstPage(t *testing.T) {
	var q []repository.Song
	for i := range 30 {
		q = append(q, repository.Song{Title: fmt.Sprintf("S%d", i), Duration: intp(60)})
	}
	e := QueueEmbed(player.Snapshot{Current: &repository.Song{Title: "Now", Duration: intp(10)}}, q)

	assert.Contains(t, e.Description, "`25.` S24")
	assert.NotContains(t, e.Description, "`26.`")
	assert.Contains(t, e.Description, "…and 5 more")
	assert.Equal(t, "30 songs", e.Fields[0].Value)
	assert.Equal(t, "30:00", e.Fields[1].Value)
}

func TestQueueEmbedEmpty(t *testing.T) {
	e := QueueEmbed(player.Snapshot{}, nil)
	assert.Equal(t, "Nothing queued.", e.Description)
	assert.Equal(t, "-", e.Fields[0].Value)
}

func TestLyricsEmbedsChunked(t *testing.T) {
	line := strings.Repeat("la ", 30) + "\n"
	text := strings.Repeat(line, 200)
	es := LyricsEmbeds(repository.Song{Title: "Song", Artists: []string{"Band"}}, text)

	require.Greater(t, len(es), 1)
	assert.Equal(t, "Song", es[0].Title)
	assert.Equal(t, "Band", es[0].Author.Name)
	assert.Empty(t, es[1].Title)
	for _, e := range es {
		assert.LessOrEqual(t, utf8.RuneCountInString(e.Description), LyricsChunk)
	}
}

func TestPanelComponents(t *testing.T) {
	rows := PanelComponents(player.Snapshot{State: player.StatePaused, Current: &repository.Song{Title: "x"}, Loop: true})
	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow).Components
	pause := first[0].(discordgo.Button)
	assert.Equal(t, "Resume", pause.Label)
	assert.Equal(t, BtnPauseResume, pause.CustomID)
	assert.Equal(t, discordgo.PrimaryButton, first[2].(discordgo.Button).Style)

	idle := PanelComponents(player.Snapshot{})
	skip := idle[0].(discordgo.ActionsRow).Components[1].(discordgo.Button)
	assert.True(t, skip.Disabled)
}

func TestHelpEmbedListsEveryCommand(t *testing.T) {
	e := HelpEmbed()
	var all string
	for _, f := range e.Fields {
		all += f.Value
	}
	for _, name := range []string{"play", "skip", "shuffle", "lyrics", "spotify-link", "playlist save/load/list/delete"} {
		assert.Contains(t, all, "`/"+name)
	}
}
