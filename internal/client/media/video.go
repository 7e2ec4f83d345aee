package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/dkeye/roomcast/internal/protocol"
)

const (
	FrameWidth           = 320
	FrameHeight          = 240
	DefaultVideoInterval = 100 * time.Millisecond
	DefaultJPEGQuality   = 70
)

var ErrBadVideo = errors.New("bad video frame")

type Camera interface {
	Read() (image.Image, error)
}

// Renderer shows frames. A nil image clears the view.
type Renderer interface {
	RenderLocal(image.Image)
	RenderRemote(image.Image)
}

// VideoPump polls the camera on a fixed interval while streaming and sends
// each frame as a VIDEO_STREAM body.
type VideoPump struct {
	cam      Camera
	render   Renderer
	out      Sender
	interval time.Duration
	quality  int

	streaming atomic.Bool
}

func NewVideoPump(cam Camera, render Renderer, out Sender, interval time.Duration) *VideoPump {
	if interval <= 0 {
		interval = DefaultVideoInterval
	}
	return &VideoPump{cam: cam, render: render, out: out, interval: interval, quality: DefaultJPEGQuality}
}

func (v *VideoPump) Start()          { v.streaming.Store(true) }
func (v *VideoPump) Stop()           { v.streaming.Store(false) }
func (v *VideoPump) Streaming() bool { return v.streaming.Load() }

// Run ticks until ctx ends. When streaming turns off, one {"frame": false}
// tells peers to clear the picture.
func (v *VideoPump) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	var sending bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !v.streaming.Load() {
			if sending {
				sending = false
				v.render.RenderLocal(nil)
				v.send(false)
			}
			continue
		}
		sending = true
		if err := v.tick(); err != nil {
			log.Warn().Err(err).Str("module", "client.media").Msg("video frame skipped")
		}
	}
}

func (v *VideoPump) tick() error {
	src, err := v.cam.Read()
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	frame := Prepare(src)
	v.render.RenderLocal(frame)
	encoded, err := EncodeFrame(frame, v.quality)
	if err != nil {
		return err
	}
	v.send(encoded)
	return nil
}

func (v *VideoPump) send(frame any) {
	if err := v.out.Send(protocol.VideoStream, map[string]any{"frame": frame}); err != nil {
		log.Debug().Err(err).Str("module", "client.media").Msg("video frame dropped")
	}
}

// OnVideoFrame renders a relayed VIDEO_STREAM body, or clears the remote
// view when the peer sent false.
func (v *VideoPump) OnVideoFrame(body json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(body), []byte("false")) {
		v.render.RenderRemote(nil)
		return nil
	}
	img, err := DecodeFrame(body)
	if err != nil {
		return err
	}
	v.render.RenderRemote(img)
	return nil
}

// Prepare converts a camera image into the mirrored 320x240 RGBA frame that
// is shown locally and sent.
func Prepare(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	mirror(dst)
	return dst
}

func mirror(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for l, r := 0, len(row)-4; l < r; l, r = l+4, r-4 {
			for i := range 4 {
				row[l+i], row[r+i] = row[r+i], row[l+i]
			}
		}
	}
}

// EncodeFrame returns the base64 JPEG text carried in a VIDEO_STREAM body.
func EncodeFrame(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func DecodeFrame(body json.RawMessage) (image.Image, error) {
	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVideo, err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVideo, err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVideo, err)
	}
	return img, nil
}
