package sampler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

// ErrNoFrame is returned when a source has nothing buffered yet
var ErrNoFrame = errors.New("sampler: no frame available")

// Source is where a camera's current frame comes from
type Source interface {
	// Ready reports whether a frame is buffered
	Ready() bool
	// Paused reports whether playback is paused
	Paused() bool
	// Err returns a persistent stream error, nil when healthy
	Err() error
	// Snapshot returns the current frame as JPEG
	Snapshot() ([]byte, error)
	Close() error
}

// PushSource holds frames pushed by a client, such as the browser webcam
type PushSource struct {
	mu     sync.RWMutex
	frame  []byte
	paused bool
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

// Push replaces the current frame
func (p *PushSource) Push(jpegData []byte) {
	frame := make([]byte, len(jpegData))
	copy(frame, jpegData)
	p.mu.Lock()
	p.frame = frame
	p.mu.Unlock()
}

func (p *PushSource) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

func (p *PushSource) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.frame) > 0
}

func (p *PushSource) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *PushSource) Err() error { return nil }

func (p *PushSource) Snapshot() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.frame) == 0 {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(p.frame))
	copy(out, p.frame)
	return out, nil
}

func (p *PushSource) Close() error {
	p.mu.Lock()
	p.frame = nil
	p.mu.Unlock()
	return nil
}

// Downscale re-encodes a JPEG no wider than maxWidth, keeping the aspect ratio.
// Frames already narrow enough are returned unchanged.
func Downscale(jpegData []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return jpegData, nil
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}
	if cfg.Width <= maxWidth {
		return jpegData, nil
	}

	src, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	height := cfg.Height * maxWidth / cfg.Width
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
