package main

import (
	"context"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/client/media"
)

// testPattern is a camera that draws a moving bar.
type testPattern struct {
	n int
}

func (p *testPattern) Read() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	bar := (p.n * 16) % 640
	p.n++
	for y := range 480 {
		for x := range 640 {
			c := color.RGBA{R: uint8(x / 3), G: uint8(y / 2), B: 96, A: 255}
			if x >= bar && x < bar+32 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

type logRenderer struct{}

func (logRenderer) RenderLocal(image.Image) {}

func (logRenderer) RenderRemote(img image.Image) {
	if img == nil {
		log.Debug().Msg("remote video cleared")
		return
	}
	log.Debug().Int("w", img.Bounds().Dx()).Int("h", img.Bounds().Dy()).Msg("remote video frame")
}

// simulateAudioDevice plays the part of the sound card callback: every 20 ms
// it hands over one captured buffer of a 440 Hz tone and pulls one playback buffer.
func simulateAudioDevice(ctx context.Context, b *media.AudioBridge) error {
	const sampleRate = 16000
	capture := make([]byte, b.FrameBytes())
	playback := make([]byte, b.FrameBytes())
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var phase float64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for i := 0; i+1 < len(capture); i += media.SampleBytes {
			s := int16(3000 * math.Sin(phase))
			capture[i], capture[i+1] = byte(s), byte(s>>8)
			phase += 2 * math.Pi * 440 / sampleRate
		}
		b.OnCapture(capture)
		b.FillPlayback(playback)
	}
}
