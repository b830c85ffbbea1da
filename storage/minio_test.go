package storage

import (
	"net/url"
	"testing"
	"time"
)

func TestObjectURL(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/media/")
	tests := []struct {
		name string
		base *url.URL
		want string
	}{
		{"public base", base, "https://cdn.example.com/media/events/ev1/videos/1_a.mp4"},
		{"raw endpoint", nil, "http://minio:9000/drishti/events/ev1/videos/1_a.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ObjectURL(tt.base, "http", "minio:9000", "drishti", "events/ev1/videos/1_a.mp4")
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	if got := VideoKey("ev1", "../../gate cam.mp4", at); got != "events/ev1/videos/1700000000123_gate_cam.mp4" {
		t.Fatalf("video key = %s", got)
	}
	if got := VideoKey("ev1", "", at); got != "events/ev1/videos/1700000000123_upload" {
		t.Fatalf("empty name key = %s", got)
	}
	if got := SnapshotKey("ev1", "cam-webcam", at); got != "events/ev1/snapshots/cam-webcam/1700000000123.jpg" {
		t.Fatalf("snapshot key = %s", got)
	}
}
