package stream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/asticode/go-astiav"
)

const (
	frameSamples = 960 // 20 ms at 48 kHz
	bitRate      = 128_000
)

// packetFunc receives each encoded Opus packet.
type packetFunc func(pkt []byte) error

// Encoder turns 20 ms PCM frames into Opus packets with libopus.
type Encoder struct {
	cc     *astiav.CodecContext
	frame  *astiav.Frame
	packet *astiav.Packet
}

// s16Stereo is implemented by both the codec context and the frame.
type s16Stereo interface {
	SetSampleRate(int)
	SetChannelLayout(astiav.ChannelLayout)
	SetSampleFormat(astiav.SampleFormat)
}

func useS16Stereo(x s16Stereo) {
	x.SetSampleRate(sampleRate)
	x.SetChannelLayout(astiav.ChannelLayoutStereo)
	x.SetSampleFormat(astiav.SampleFormatS16)
}

func NewEncoder() (enc *Encoder, err error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found, check the ffmpeg build")
	}

	enc = &Encoder{}
	defer func() {
		if err != nil {
			enc.Close()
			enc = nil
		}
	}()

	if enc.cc = astiav.AllocCodecContext(codec); enc.cc == nil {
		return nil, errors.New("alloc opus codec context")
	}
	useS16Stereo(enc.cc)
	enc.cc.SetBitRate(bitRate)

	opts := astiav.NewDictionary()
	defer opts.Free()
	for k, v := range map[string]string{"frame_duration": "20", "application": "audio"} {
		if err := opts.Set(k, v, 0); err != nil {
			return nil, fmt.Errorf("opus option %s: %w", k, err)
		}
	}
	if err := enc.cc.Open(codec, opts); err != nil {
		return nil, fmt.Errorf("open opus encoder: %w", err)
	}

	if enc.frame = astiav.AllocFrame(); enc.frame == nil {
		return nil, errors.New("alloc encoder frame")
	}
	useS16Stereo(enc.frame)
	enc.frame.SetNbSamples(frameSamples)
	if err := enc.frame.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("alloc encoder frame buffer: %w", err)
	}

	if enc.packet = astiav.AllocPacket(); enc.packet == nil {
		return nil, errors.New("alloc encoder packet")
	}
	slog.Debug("opus encoder ready", "bitrate", enc.cc.BitRate())
	return enc, nil
}

// Close frees whatever NewEncoder managed to allocate.
func (e *Encoder) Close() {
	if e.packet != nil {
		e.packet.Free()
	}
	if e.frame != nil {
		e.frame.Free()
	}
	if e.cc != nil {
		e.cc.Free()
	}
}

// FrameBytes is the PCM size EncodeFrame expects.
func (e *Encoder) FrameBytes() int { return frameSamples * sampleBytes }

func (e *Encoder) EncodeFrame(pcm []byte, onPacket packetFunc) error {
	if len(pcm) != e.FrameBytes() {
		return fmt.Errorf("pcm frame is %d bytes, want %d", len(pcm), e.FrameBytes())
	}
	if err := e.frame.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("set frame bytes: %w", err)
	}
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return e.drain(onPacket)
}

func (e *Encoder) drain(onPacket packetFunc) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive packet: %w", err)
		}
		if err := onPacket(e.packet.Data()); err != nil {
			return err
		}
	}
}
