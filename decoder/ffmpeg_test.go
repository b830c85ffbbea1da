package decoder

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestReadJPEGFramesSplitsOnMarkers(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0x03, 0xFF, 0x00, 0xFF, 0xD9}

	var stream []byte
	stream = append(stream, 0x00, 0x42) // garbage before the first image
	stream = append(stream, first...)
	stream = append(stream, 0x13)
	stream = append(stream, second...)

	var frames []*Frame
	err := ReadJPEGFrames(context.Background(), bytes.NewReader(stream), func(f *Frame) {
		frames = append(frames, f)
	})
	if err == nil || !strings.Contains(err.Error(), "stream ended") {
		t.Fatalf("expected stream ended error, got %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	if !bytes.Equal(frames[0].Data, first) || !bytes.Equal(frames[1].Data, second) {
		t.Fatalf("frames = %x / %x", frames[0].Data, frames[1].Data)
	}
	if frames[1].Sequence != 2 {
		t.Fatalf("sequence = %d", frames[1].Sequence)
	}
}

func TestReadJPEGFramesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ReadJPEGFrames(ctx, bytes.NewReader([]byte{0xFF, 0xD8}), func(*Frame) {
		t.Fatal("no frame expected")
	}); err != nil {
		t.Fatalf("cancelled read should return nil, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	rtsp := strings.Join(BuildArgs(Config{URL: "rtsp://cam/1", FPS: 2, JPEGQuality: 75}), " ")
	if !strings.Contains(rtsp, "-rtsp_transport tcp -i rtsp://cam/1") {
		t.Fatalf("rtsp args = %s", rtsp)
	}
	if !strings.Contains(rtsp, "-vf fps=2 ") || !strings.HasSuffix(rtsp, "-q:v 9 -") {
		t.Fatalf("rtsp args = %s", rtsp)
	}

	file := strings.Join(BuildArgs(Config{URL: "http://minio/video.mp4", FPS: 1, Width: 640, Height: 360, JPEGQuality: 100}), " ")
	if !strings.Contains(file, "-re -stream_loop -1 -i http://minio/video.mp4") {
		t.Fatalf("file args = %s", file)
	}
	if !strings.Contains(file, "fps=1,scale=640:360") || !strings.Contains(file, "-q:v 1 ") {
		t.Fatalf("file args = %s", file)
	}
}
