package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/sonroyaalmerol/tansen/internal/utils"
)

const (
	sampleRate = 48000
	channels   = 2
	// bytes per interleaved s16 sample frame
	sampleBytes = channels * 2
)

// PCMStreamer decodes a remote media URL into s16le stereo 48 kHz PCM,
// readable from Stdout.
type PCMStreamer struct {
	fc       *astiav.FormatContext
	st       *astiav.Stream
	dec      *astiav.CodecContext
	swr      *astiav.SoftwareResampleContext
	src, dst *astiav.Frame

	cancel context.CancelFunc
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// refererFor adds the headers googlevideo expects for YouTube media URLs.
func refererFor(inputURL string) map[string]string {
	if !strings.Contains(inputURL, "googlevideo.com") {
		return nil
	}
	return map[string]string{
		"Referer": "https://www.youtube.com/",
		"Origin":  "https://www.youtube.com",
	}
}

// StartPCMStream opens inputURL and starts decoding in the background.
// seek skips into the input first; a non-zero limit stops output after
// that much audio.
func StartPCMStream(ctx context.Context, inputURL string, seek, limit time.Duration) (*PCMStreamer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("reconnect", "1", 0)
	_ = opts.Set("reconnect_streamed", "1", 0)
	_ = opts.Set("reconnect_delay_max", "5", 0)
	_ = opts.Set("headers", utils.StreamHeaders(refererFor(inputURL)), 0)

	if err := fc.OpenInput(inputURL, nil, opts); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		fc.CloseInput()
		fc.Free()
		if err == nil {
			err = errors.New("no audio stream")
		}
		return nil, fmt.Errorf("find audio stream: %w", err)
	}

	ps := &PCMStreamer{fc: fc, st: st, done: make(chan struct{})}
	fail := func(err error) (*PCMStreamer, error) {
		ps.free()
		return nil, err
	}

	ps.dec = astiav.AllocCodecContext(codec)
	if ps.dec == nil {
		return fail(errors.New("alloc codec context"))
	}
	if err := ps.dec.FromCodecParameters(st.CodecParameters()); err != nil {
		return fail(fmt.Errorf("codec from params: %w", err))
	}
	ps.dec.SetTimeBase(st.TimeBase())
	if err := ps.dec.Open(codec, nil); err != nil {
		return fail(fmt.Errorf("open decoder: %w", err))
	}

	ps.swr = astiav.AllocSoftwareResampleContext()
	ps.src = astiav.AllocFrame()
	ps.dst = astiav.AllocFrame()
	if ps.swr == nil || ps.src == nil || ps.dst == nil {
		return fail(errors.New("alloc resampler"))
	}

	if seek > 0 {
		ts := int64(seek.Seconds() / st.TimeBase().Float64())
		// best effort, some inputs cannot seek
		if err := fc.SeekFrame(st.Index(), ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err == nil {
			_ = fc.Flush()
		}
	}

	ps.pr, ps.pw = io.Pipe()
	runCtx, cancel := context.WithCancel(ctx)
	ps.cancel = cancel
	go ps.run(runCtx, limit)
	return ps, nil
}

func (s *PCMStreamer) Stdout() io.Reader { return s.pr }

// Err returns the decode error, if decoding stopped early.
func (s *PCMStreamer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops decoding and releases ffmpeg resources.
func (s *PCMStreamer) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.pr.Close()
		<-s.done
		s.free()
	})
}

func (s *PCMStreamer) free() {
	if s.src != nil {
		s.src.Free()
	}
	if s.dst != nil {
		s.dst.Free()
	}
	if s.swr != nil {
		s.swr.Free()
	}
	if s.dec != nil {
		s.dec.Free()
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
	}
}

func (s *PCMStreamer) run(ctx context.Context, limit time.Duration) {
	defer close(s.done)
	defer s.pw.Close()

	var remaining int64 = -1
	if limit > 0 {
		remaining = int64(limit.Seconds()*sampleRate) * sampleBytes
	}

	write := func() bool {
		for {
			s.src.Unref()
			if err := s.dec.ReceiveFrame(s.src); err != nil {
				if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
					return true
				}
				s.setErr(fmt.Errorf("receive frame: %w", err))
				return false
			}
			b, err := s.convert(s.src)
			if err != nil {
				s.setErr(err)
				return false
			}
			if remaining >= 0 {
				if int64(len(b)) >= remaining {
					_, _ = s.pw.Write(b[:remaining])
					return false
				}
				remaining -= int64(len(b))
			}
			if _, err := s.pw.Write(b); err != nil {
				// reader closed
				return false
			}
		}
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for {
		if ctx.Err() != nil {
			return
		}
		pkt.Unref()
		if err := s.fc.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				_ = s.dec.SendPacket(nil)
				write()
				return
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			s.setErr(fmt.Errorf("read frame: %w", err))
			return
		}
		if pkt.StreamIndex() != s.st.Index() {
			continue
		}
		if err := s.dec.SendPacket(pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
			s.setErr(fmt.Errorf("send packet: %w", err))
			return
		}
		if !write() {
			return
		}
	}
}

// convert resamples one decoded frame and returns its interleaved bytes.
func (s *PCMStreamer) convert(src *astiav.Frame) ([]byte, error) {
	s.dst.Unref()
	s.dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	s.dst.SetSampleRate(sampleRate)
	s.dst.SetSampleFormat(astiav.SampleFormatS16)
	// room for upsampling plus whatever the resampler buffered
	nb := src.NbSamples()*sampleRate/max(src.SampleRate(), 1) + 256
	s.dst.SetNbSamples(nb)
	if err := s.dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("dst alloc buffer: %w", err)
	}
	if err := s.swr.ConvertFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("swr convert: %w", err)
	}
	b, err := s.dst.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("dst bytes: %w", err)
	}
	n := s.dst.NbSamples() * sampleBytes
	if n < len(b) {
		b = b[:n]
	}
	return b, nil
}

func (s *PCMStreamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
