package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/protocol"
)

// DefaultFrameBytes is 20 ms of 16-bit mono audio at 16 kHz.
const DefaultFrameBytes = 640

var ErrBadAudio = errors.New("bad audio frame")

// Sender is the outbound half of the client connection.
type Sender interface {
	Send(header string, body any) error
}

// AudioBridge connects the device callback thread to the network loop
// through a capture queue and a playback queue. Capture buffers are recycled
// so the device thread does not allocate in steady state.
type AudioBridge struct {
	frameBytes int
	capture    *Queue[*[]byte]
	playback   *Queue[[]byte]
	recording  atomic.Bool
	buffers    sync.Pool

	// pending is the unplayed tail of a relayed buffer longer than one
	// callback. Only FillPlayback touches it.
	pending []byte
}

func NewAudioBridge(frameBytes int) *AudioBridge {
	if frameBytes <= 0 {
		frameBytes = DefaultFrameBytes
	}
	return &AudioBridge{
		frameBytes: frameBytes,
		capture:    NewQueue[*[]byte](),
		playback:   NewQueue[[]byte](),
	}
}

func (b *AudioBridge) FrameBytes() int { return b.frameBytes }

func (b *AudioBridge) Start() { b.recording.Store(true) }

// Stop ends recording. TransmitLoop returns once the capture queue drains.
func (b *AudioBridge) Stop() {
	b.recording.Store(false)
	b.capture.Wake()
}

func (b *AudioBridge) Recording() bool { return b.recording.Load() }

// OnCapture runs on the device thread. The buffer is copied into a pooled one.
func (b *AudioBridge) OnCapture(buf []byte) {
	if !b.recording.Load() {
		return
	}
	dst := b.getBuffer(len(buf))
	copy(*dst, buf)
	b.capture.Push(dst)
}

func (b *AudioBridge) getBuffer(n int) *[]byte {
	if p, ok := b.buffers.Get().(*[]byte); ok && cap(*p) >= n {
		*p = (*p)[:n]
		return p
	}
	buf := make([]byte, n, max(n, b.frameBytes))
	return &buf
}

// FillPlayback runs on the device thread and always fills all of out.
// A short buffer is padded with silence; a long one carries over to the
// next call.
func (b *AudioBridge) FillPlayback(out []byte) {
	if len(b.pending) == 0 {
		buf, ok := b.playback.TryPop()
		if !ok {
			clear(out)
			return
		}
		b.pending = buf
	}
	n := copy(out, b.pending)
	b.pending = b.pending[n:]
	clear(out[n:])
}

// TransmitLoop sends captured buffers as AUDIO_STREAM frames until recording
// stops and the queue is empty. Send failures drop the buffer.
func (b *AudioBridge) TransmitLoop(ctx context.Context, out Sender) error {
	p := newPacketizer()
	for {
		buf, ok := b.capture.TryPop()
		if !ok {
			if !b.recording.Load() {
				return nil
			}
			if err := b.capture.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		data, err := p.marshal(*buf)
		b.buffers.Put(buf)
		if err != nil {
			return fmt.Errorf("packetize: %w", err)
		}
		body := map[string]string{"audio": base64.StdEncoding.EncodeToString(data)}
		if err := out.Send(protocol.AudioStream, body); err != nil {
			log.Debug().Err(err).Str("module", "client.media").Msg("audio frame dropped")
		}
	}
}

// OnAudioFrame queues a relayed AUDIO_STREAM body for playback.
func (b *AudioBridge) OnAudioFrame(body json.RawMessage) error {
	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	pkt, err := unmarshalPacket(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	if pkt.PayloadType != PayloadType {
		return fmt.Errorf("%w: payload type %d", ErrBadAudio, pkt.PayloadType)
	}
	b.playback.Push(pkt.Payload)
	return nil
}
