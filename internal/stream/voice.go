package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/tansen/internal/player"
	"github.com/sonroyaalmerol/tansen/internal/resolver"
)

const (
	bufferPackets = 50
	prefill       = 10
	frameDuration = 20 * time.Millisecond
)

// Voice joins Discord voice channels on behalf of the scheduler.
type Voice struct {
	s *discordgo.Session
}

func NewVoice(s *discordgo.Session) *Voice {
	return &Voice{s: s}
}

func (v *Voice) Join(ctx context.Context, guildID, channelID string) (player.VoiceConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := v.s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	ensureChannels(vc)
	return &Conn{vc: vc, guildID: guildID, channelID: channelID}, nil
}

// Conn is a joined voice channel.
type Conn struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
}

func (c *Conn) ChannelID() string { return c.channelID }

// Close leaves the channel. Panics from discordgo tearing down half-open
// connections are recovered.
func (c *Conn) Close() (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "panic", r, "guildID", c.guildID)
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()
	ensureChannels(c.vc)
	_ = c.vc.Speaking(false)
	time.Sleep(150 * time.Millisecond)
	return c.vc.Disconnect()
}

// Play decodes st and streams it to the channel until it ends or is
// stopped.
func (c *Conn) Play(ctx context.Context, st *resolver.Stream, opts player.PlayOptions) (player.Playback, error) {
	pcm, err := StartPCMStream(ctx, st.URL, opts.Seek, opts.Length)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder()
	if err != nil {
		pcm.Close()
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &playback{
		guildID:  c.guildID,
		vc:       c.vc,
		pcm:      pcm,
		enc:      enc,
		buf:      newOpusBuffer(bufferPackets),
		cancel:   cancel,
		offset:   opts.Seek,
		done:     make(chan struct{}),
		produced: make(chan struct{}),
	}
	p.SetVolume(opts.Volume)

	go p.produce()
	go p.send(pctx)
	return p, nil
}

type playback struct {
	guildID string
	vc      *discordgo.VoiceConnection
	pcm     *PCMStreamer
	enc     *Encoder
	buf     *opusBuffer
	cancel  context.CancelFunc
	offset  time.Duration

	volume atomic.Uint64
	paused atomic.Bool
	sent   atomic.Int64

	errMu sync.Mutex
	err   error

	done     chan struct{}
	produced chan struct{}
	stopOnce sync.Once
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err != nil {
		return p.err
	}
	return p.pcm.Err()
}

func (p *playback) Pause()  { p.paused.Store(true) }
func (p *playback) Resume() { p.paused.Store(false) }

func (p *playback) SetVolume(v float64) { p.volume.Store(math.Float64bits(v)) }

func (p *playback) Position() time.Duration {
	return p.offset + time.Duration(p.sent.Load())*frameDuration
}

func (p *playback) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.buf.Close()
	})
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		slog.Warn("playback did not stop in time", "guildID", p.guildID)
	}
}

func (p *playback) setErr(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

var errBufferClosed = errors.New("buffer closed")

// produce reads PCM, applies the current gain and encodes into the ring.
func (p *playback) produce() {
	defer close(p.produced)
	defer p.buf.MarkEOS()

	r := bufio.NewReaderSize(p.pcm.Stdout(), 64*1024)
	frame := make([]byte, p.enc.FrameBytes())
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.ErrClosedPipe) {
				p.setErr(fmt.Errorf("read pcm: %w", err))
			}
			return
		}
		ApplyGain(frame, math.Float64frombits(p.volume.Load()))
		err := p.enc.EncodeFrame(frame, func(pkt []byte) error {
			if !p.buf.Push(pkt) {
				return errBufferClosed
			}
			return nil
		})
		if errors.Is(err, errBufferClosed) {
			return
		}
		if err != nil {
			p.setErr(err)
			return
		}
	}
}

// send paces packets to Discord every 20 ms.
func (p *playback) send(ctx context.Context) {
	speaking := false
	defer func() {
		p.cancel()
		p.buf.Close()
		p.pcm.Close()
		<-p.produced
		p.enc.Close()
		if speaking {
			_ = p.vc.Speaking(false)
		}
		close(p.done)
	}()

	if !waitReady(ctx, p.vc, 5*time.Second) {
		p.setErr(errors.New("voice connection not ready"))
		return
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.buf.Len() < prefill && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-p.produced:
			deadline = time.Now()
		case <-time.After(50 * time.Millisecond):
		}
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	dropped := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p.paused.Load() {
			if speaking {
				_ = p.vc.Speaking(false)
				speaking = false
			}
			continue
		}
		pkt, ok := p.buf.Pop()
		if !ok {
			return
		}
		if !speaking {
			_ = p.vc.Speaking(true)
			speaking = true
		}

		select {
		case <-ctx.Done():
			return
		case p.vc.OpusSend <- pkt:
			p.sent.Add(1)
			dropped = 0
		case <-time.After(200 * time.Millisecond):
			dropped++
			slog.Debug("dropped opus packet", "guildID", p.guildID, "consecutive", dropped)
		}
	}
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// ensureChannels guards against discordgo closing nil channels on
// disconnect.
func ensureChannels(vc *discordgo.VoiceConnection) {
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
}
