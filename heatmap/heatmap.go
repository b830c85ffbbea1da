// Package heatmap renders crowd density images from normalized detection
// points: radial splats are accumulated, blurred once and colorized.
package heatmap

import (
	"image"
	"image/color"
	"math"
)

const (
	DefaultWidth   = 500
	DefaultHeight  = 281
	DefaultRadius  = 35
	DefaultBlur    = 15
	DefaultOpacity = 0.5
)

// Point is a normalized position, both axes in [0,1]
type Point struct {
	X float64
	Y float64
}

// Options controls rendering. Zero fields take the defaults.
type Options struct {
	Width   int
	Height  int
	Radius  float64
	Blur    float64 // Gaussian sigma in pixels, negative disables
	Opacity float64 // peak alpha of one splat
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Radius <= 0 {
		o.Radius = DefaultRadius
	}
	if o.Blur == 0 {
		o.Blur = DefaultBlur
	}
	if o.Opacity <= 0 {
		o.Opacity = DefaultOpacity
	}
	return o
}

type colorStop struct {
	at float64
	c  color.NRGBA
}

// Blue to red ramp
var ramp = []colorStop{
	{0.0, color.NRGBA{0, 0, 255, 0}},
	{0.2, color.NRGBA{0, 0, 255, 255}},
	{0.4, color.NRGBA{0, 255, 255, 255}},
	{0.6, color.NRGBA{0, 255, 0, 255}},
	{0.8, color.NRGBA{255, 255, 0, 255}},
	{1.0, color.NRGBA{255, 0, 0, 255}},
}

var palette = buildPalette()

// buildPalette samples the ramp at the centers of 256 cells
func buildPalette() [256]color.NRGBA {
	var lut [256]color.NRGBA
	for i := range lut {
		t := (float64(i) + 0.5) / 256
		lut[i] = sampleRamp(t)
	}
	return lut
}

func sampleRamp(t float64) color.NRGBA {
	if t <= ramp[0].at {
		return ramp[0].c
	}
	for i := 1; i < len(ramp); i++ {
		lo, hi := ramp[i-1], ramp[i]
		if t > hi.at {
			continue
		}
		f := (t - lo.at) / (hi.at - lo.at)
		return color.NRGBA{
			R: lerp(lo.c.R, hi.c.R, f),
			G: lerp(lo.c.G, hi.c.G, f),
			B: lerp(lo.c.B, hi.c.B, f),
			A: lerp(lo.c.A, hi.c.A, f),
		}
	}
	return ramp[len(ramp)-1].c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// Render draws the heatmap of points. The same points always produce the
// same pixels.
func Render(points []Point, opts Options) *image.NRGBA {
	o := opts.withDefaults()
	w, h := o.Width, o.Height
	field := make([]float64, w*h)

	for _, p := range points {
		splat(field, w, h, p.X*float64(w), p.Y*float64(h), o.Radius, o.Opacity)
	}
	if o.Blur > 0 {
		field = gaussianBlur(field, w, h, o.Blur)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range field {
		alpha := uint8(math.Round(clamp01(v) * 255))
		if alpha == 0 {
			continue
		}
		c := palette[alpha]
		img.Pix[i*4] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = alpha
	}
	return img
}

// splat adds a radial gradient falling linearly from peak to zero at radius
func splat(field []float64, w, h int, cx, cy, radius, peak float64) {
	x0 := int(math.Max(0, math.Floor(cx-radius)))
	x1 := int(math.Min(float64(w-1), math.Ceil(cx+radius)))
	y0 := int(math.Max(0, math.Floor(cy-radius)))
	y1 := int(math.Min(float64(h-1), math.Ceil(cy+radius)))

	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - cx
			d := math.Sqrt(dx*dx + dy*dy)
			if d >= radius {
				continue
			}
			i := y*w + x
			field[i] = math.Min(1, field[i]+peak*(1-d/radius))
		}
	}
}

func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianBlur is a separable blur; samples outside the canvas count as zero
func gaussianBlur(src []float64, w, h int, sigma float64) []float64 {
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var acc float64
			for j := -r; j <= r; j++ {
				xx := x + j
				if xx < 0 || xx >= w {
					continue
				}
				acc += src[row+xx] * k[j+r]
			}
			tmp[row+x] = acc
		}
	}

	out := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for j := -r; j <= r; j++ {
				yy := y + j
				if yy < 0 || yy >= h {
					continue
				}
				acc += tmp[yy*w+x] * k[j+r]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
