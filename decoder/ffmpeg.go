// Package decoder turns camera stream URLs into a continuously refreshed
// latest JPEG frame using an ffmpeg subprocess.
package decoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	reconnectDelay = 5 * time.Second
	maxFrameBytes  = 10 * 1024 * 1024
)

// ErrNoFrame is returned by Snapshot before the first frame arrives
var ErrNoFrame = errors.New("decoder: no frame decoded yet")

// Frame represents a decoded video frame
type Frame struct {
	Data      []byte // JPEG encoded
	Timestamp time.Time
	Sequence  uint64
}

// Config holds configuration for a decoder
type Config struct {
	CameraID    string
	URL         string
	FFmpegPath  string
	FPS         int
	Width       int // 0 keeps the source size
	Height      int
	JPEGQuality int // 1-100, default 75
}

// Stats holds decoder statistics
type Stats struct {
	CameraID      string    `json:"cameraId"`
	IsConnected   bool      `json:"isConnected"`
	FramesDecoded uint64    `json:"framesDecoded"`
	LastFrame     time.Time `json:"lastFrame"`
	LastError     string    `json:"lastError,omitempty"`
}

// FFmpegSource decodes a stream with ffmpeg and keeps the latest frame
type FFmpegSource struct {
	cfg Config

	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	latest        *Frame
	framesDecoded uint64
	lastError     error
	isConnected   bool
}

// NewFFmpegSource creates a source and starts decoding in the background
func NewFFmpegSource(ctx context.Context, cfg Config) (*FFmpegSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("camera %s has no stream url", cfg.CameraID)
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 2
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 75
	}

	childCtx, cancel := context.WithCancel(ctx)
	s := &FFmpegSource{
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.decodeLoop(childCtx)
	return s, nil
}

// Ready reports whether a frame is buffered
func (s *FFmpegSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest != nil
}

// Paused is always false: remote streams play continuously
func (s *FFmpegSource) Paused() bool { return false }

// Err returns the error of the last connection attempt, nil while frames flow
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Snapshot returns a copy of the latest frame
func (s *FFmpegSource) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(s.latest.Data))
	copy(out, s.latest.Data)
	return out, nil
}

// Close stops the decoder and waits for the loop to exit
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.isConnected = false
	s.mu.Unlock()

	<-s.done
	return nil
}

// Stats returns decoder statistics
func (s *FFmpegSource) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		CameraID:      s.cfg.CameraID,
		IsConnected:   s.isConnected,
		FramesDecoded: s.framesDecoded,
	}
	if s.latest != nil {
		st.LastFrame = s.latest.Timestamp
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

func (s *FFmpegSource) decodeLoop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectAndDecode(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		s.mu.Lock()
		s.lastError = err
		s.isConnected = false
		s.mu.Unlock()
		log.Printf("⚠️ Decoder %s error: %v, reconnecting in %s...", s.cfg.CameraID, err, reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *FFmpegSource) connectAndDecode(ctx context.Context) error {
	args := BuildArgs(s.cfg)

	s.mu.Lock()
	s.cmd = exec.CommandContext(ctx, s.cfg.FFmpegPath, args...)
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	cmd := s.cmd
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	defer cmd.Wait()

	s.mu.Lock()
	s.isConnected = true
	s.mu.Unlock()

	log.Printf("🎥 Decoder %s connected: %s", s.cfg.CameraID, s.cfg.URL)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(line, "error") || strings.Contains(line, "Error") {
				log.Printf("⚠️ ffmpeg %s: %s", s.cfg.CameraID, line)
			}
		}
	}()

	return ReadJPEGFrames(ctx, stdout, s.storeFrame)
}

func (s *FFmpegSource) storeFrame(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.Timestamp = time.Now()
	s.latest = f
	s.framesDecoded++
	s.lastError = nil
}

// BuildArgs returns the ffmpeg arguments that emit an MJPEG pipe at the
// configured rate. RTSP inputs use TCP transport; file and HTTP inputs are
// played in real time and looped.
func BuildArgs(cfg Config) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	if strings.HasPrefix(cfg.URL, "rtsp://") || strings.HasPrefix(cfg.URL, "rtsps://") {
		args = append(args, "-rtsp_transport", "tcp")
	} else {
		args = append(args, "-re", "-stream_loop", "-1")
	}
	args = append(args, "-i", cfg.URL)

	vf := fmt.Sprintf("fps=%d", cfg.FPS)
	if cfg.Width > 0 && cfg.Height > 0 {
		vf += fmt.Sprintf(",scale=%d:%d", cfg.Width, cfg.Height)
	}
	args = append(args, "-vf", vf)

	// Convert 1-100 to ffmpeg's 31-1 scale
	jpegQuality := 31 - (cfg.JPEGQuality * 30 / 100)
	if jpegQuality < 1 {
		jpegQuality = 1
	}
	if jpegQuality > 31 {
		jpegQuality = 31
	}

	return append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprintf("%d", jpegQuality),
		"-",
	)
}

// ReadJPEGFrames splits a concatenated JPEG stream on SOI/EOI markers and
// calls handler for every complete image.
func ReadJPEGFrames(ctx context.Context, reader io.Reader, handler func(*Frame)) error {
	bufReader := bufio.NewReader(reader)
	frameBuffer := &bytes.Buffer{}
	inFrame := false
	var sequence uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		b, err := bufReader.ReadByte()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("stream ended")
			}
			return fmt.Errorf("read error: %w", err)
		}

		frameBuffer.WriteByte(b)

		bufLen := frameBuffer.Len()
		if bufLen >= 2 {
			data := frameBuffer.Bytes()

			// SOI marker (Start of Image): 0xFF 0xD8
			if !inFrame && data[bufLen-2] == 0xFF && data[bufLen-1] == 0xD8 {
				inFrame = true
				frameBuffer.Reset()
				frameBuffer.Write([]byte{0xFF, 0xD8})
			} else if inFrame && data[bufLen-2] == 0xFF && data[bufLen-1] == 0xD9 {
				// EOI marker (End of Image): 0xFF 0xD9
				jpegData := make([]byte, frameBuffer.Len())
				copy(jpegData, frameBuffer.Bytes())

				sequence++
				handler(&Frame{Data: jpegData, Sequence: sequence})

				frameBuffer.Reset()
				inFrame = false
			}
		}

		if frameBuffer.Len() > maxFrameBytes {
			frameBuffer.Reset()
			inFrame = false
		}
	}
}
