package heatmap

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/drishti/backend/models"
)

func TestRenderIsDeterministic(t *testing.T) {
	points := []Point{{0.2, 0.3}, {0.21, 0.31}, {0.8, 0.7}}
	a := Render(points, Options{})
	b := Render(points, Options{})
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatal("same points rendered different pixels")
	}
	if a.Bounds().Dx() != DefaultWidth || a.Bounds().Dy() != DefaultHeight {
		t.Fatalf("bounds = %v", a.Bounds())
	}
}

func TestRenderEmptyIsTransparent(t *testing.T) {
	img := Render(nil, Options{})
	for i, v := range img.Pix {
		if v != 0 {
			t.Fatalf("pixel byte %d = %d", i, v)
		}
	}
}

func TestRenderDensityIsHotter(t *testing.T) {
	opts := Options{Blur: -1}
	single := Render([]Point{{0.5, 0.5}}, opts)
	stacked := Render([]Point{{0.5, 0.5}, {0.5, 0.5}, {0.5, 0.5}}, opts)

	x, y := DefaultWidth/2, DefaultHeight/2
	a1 := single.NRGBAAt(x, y).A
	a3 := stacked.NRGBAAt(x, y).A
	if a3 <= a1 {
		t.Fatalf("stacked alpha %d should exceed single %d", a3, a1)
	}
	// Additive splats saturate at full intensity, which maps to red
	if c := stacked.NRGBAAt(x, y); c.R != 255 || c.B != 0 || c.A != 255 {
		t.Fatalf("saturated center = %+v", c)
	}
	// Outside the radius nothing is drawn without blur
	if c := single.NRGBAAt(x+DefaultRadius+2, y); c.A != 0 {
		t.Fatalf("pixel outside radius = %+v", c)
	}
}

func TestRenderBlurSpreads(t *testing.T) {
	sharp := Render([]Point{{0.5, 0.5}}, Options{Blur: -1})
	blurred := Render([]Point{{0.5, 0.5}}, Options{})
	x, y := DefaultWidth/2+DefaultRadius+5, DefaultHeight/2
	if sharp.NRGBAAt(x, y).A != 0 {
		t.Fatal("sharp render leaked outside radius")
	}
	if blurred.NRGBAAt(x, y).A == 0 {
		t.Fatal("blur should spread intensity past the radius")
	}
}

func TestPaletteEnds(t *testing.T) {
	if c := palette[0]; c.R != 0 || c.G != 0 || c.B != 255 {
		t.Fatalf("palette[0] = %+v", c)
	}
	if c := palette[255]; c.R != 255 || c.G > 2 || c.B != 0 {
		t.Fatalf("palette[255] = %+v", c)
	}
	// 0.6 is pure green
	if c := palette[153]; c.G != 255 || c.R > 3 || c.B > 3 {
		t.Fatalf("palette[153] = %+v", c)
	}
}

type fakePoints struct {
	points map[string][]models.CrowdDetection
	calls  int
}

func (f *fakePoints) ListDetectionPoints(ctx context.Context, eventID, cameraID string) ([]models.CrowdDetection, error) {
	f.calls++
	return f.points[cameraID], nil
}

func TestAggregatorSelectsCamera(t *testing.T) {
	now := time.Now()
	src := &fakePoints{points: map[string][]models.CrowdDetection{
		"cam-a": {{ID: "p1", X: 0.5, Y: 0.5, Timestamp: now}},
	}}
	agg := NewAggregator(src, Options{})

	if got := agg.Selected("ev1"); got != models.WebcamID {
		t.Fatalf("default selection = %s", got)
	}

	empty, err := agg.RenderPNG(context.Background(), "ev1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	agg.Select("ev1", "cam-a")
	withPoint, err := agg.RenderPNG(context.Background(), "ev1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if bytes.Equal(empty, withPoint) {
		t.Fatal("selecting a camera with points should change the image")
	}

	img, err := png.Decode(bytes.NewReader(withPoint))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != DefaultWidth {
		t.Fatalf("width = %d", img.Bounds().Dx())
	}

	again, _ := agg.RenderPNG(context.Background(), "ev1")
	if !bytes.Equal(again, withPoint) {
		t.Fatal("unchanged points should reuse the render")
	}
	if agg.Selected("ev2") != models.WebcamID {
		t.Fatal("selection is per event")
	}
}
