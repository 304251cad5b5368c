package handlers

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/repository"
	"github.com/sonroyaalmerol/tansen/internal/ui"
)

// Messenger is the slice of the Discord REST API the panel needs.
type Messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type panelRef struct {
	channelID string
	messageID string
}

// Presenter keeps one now-playing panel per guild and edits it in place
// when the track changes.
type Presenter struct {
	api Messenger
	reg *player.Registry

	mu     sync.Mutex
	panels map[string]*panelRef
	locks  map[string]*sync.Mutex
}

func NewPresenter(api Messenger) *Presenter {
	return &Presenter{
		api:    api,
		panels: make(map[string]*panelRef),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Presenter) attach(reg *player.Registry) { p.reg = reg }

// Bind sets the text channel the guild's panel lives in. Moving to another
// channel starts a fresh panel there.
func (p *Presenter) Bind(guildID, channelID string) {
	if channelID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ref, ok := p.panels[guildID]; ok && ref.channelID == channelID {
		return
	}
	p.panels[guildID] = &panelRef{channelID: channelID}
}

func (p *Presenter) guildLock(guildID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[guildID] = l
	}
	return l
}

func (p *Presenter) snapshot(guildID string) player.Snapshot {
	if p.reg == nil {
		return player.Snapshot{GuildID: guildID}
	}
	if sess := p.reg.Peek(guildID); sess != nil {
		return sess.NowPlaying()
	}
	return player.Snapshot{GuildID: guildID}
}

// NowPlaying is called by the scheduler on every track change; song is nil
// once the queue runs dry.
func (p *Presenter) NowPlaying(guildID string, song *repository.Song) {
	snap := p.snapshot(guildID)
	if song != nil && (snap.Current == nil || snap.Current.ID != song.ID) {
		snap.Current = song
	}
	if song == nil {
		snap.Current = nil
	}
	p.render(guildID, snap, song != nil)
}

// Refresh redraws the panel after a command changed player state.
func (p *Presenter) Refresh(guildID string) {
	p.render(guildID, p.snapshot(guildID), false)
}

func (p *Presenter) render(guildID string, snap player.Snapshot, allowNew bool) {
	l := p.guildLock(guildID)
	l.Lock()
	defer l.Unlock()

	p.mu.Lock()
	ref, ok := p.panels[guildID]
	var cur panelRef
	if ok {
		cur = *ref
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	embeds := []*discordgo.MessageEmbed{ui.NowPlayingEmbed(snap)}
	comps := ui.PanelComponents(snap)
	if snap.Current == nil {
		comps = []discordgo.MessageComponent{}
	}

	if cur.messageID != "" {
		_, err := p.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         cur.messageID,
			Channel:    cur.channelID,
			Embeds:     &embeds,
			Components: &comps,
		})
		if err == nil {
			return
		}
		slog.Debug("panel edit failed, sending a new one", "guildID", guildID, "err", err)
	}
	if !allowNew {
		return
	}

	msg, err := p.api.ChannelMessageSendComplex(cur.channelID, &discordgo.MessageSend{
		Embeds:     embeds,
		Components: comps,
	})
	if err != nil {
		slog.Warn("panel send failed", "guildID", guildID, "channelID", cur.channelID, "err", err)
		return
	}
	p.mu.Lock()
	if ref, ok := p.panels[guildID]; ok && ref.channelID == cur.channelID {
		ref.messageID = msg.ID
	}
	p.mu.Unlock()
}
