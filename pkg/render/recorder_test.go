package render

import (
	"context"
	"errors"
	"image"
	"image/color"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// op is one recorded canvas call.
type op struct {
	kind   string
	rect   geometry.Rect
	points []geometry.Point
	clip   Clip
	text   string
	font   Font
	align  region.Align
	color  color.Color
	width  float64
	dash   []float64
	img    image.Image
}

// recorder is a Canvas that remembers every call. Text is measured as
// 0.5 em per rune.
type recorder struct {
	w, h int
	ops  []op
}

func newRecorder(w, h int) *recorder {
	return &recorder{w: w, h: h}
}

func (r *recorder) Width() int  { return r.w }
func (r *recorder) Height() int { return r.h }
func (r *recorder) Err() error  { return nil }

func (r *recorder) FillRect(rect geometry.Rect, c color.Color) {
	r.ops = append(r.ops, op{kind: "fillRect", rect: rect, color: c})
}

func (r *recorder) FillPolygon(pts []geometry.Point, c color.Color) {
	r.ops = append(r.ops, op{kind: "fillPolygon", points: pts, color: c})
}

func (r *recorder) StrokeRect(rect geometry.Rect, c color.Color, w float64, dash []float64) {
	r.ops = append(r.ops, op{kind: "strokeRect", rect: rect, color: c, width: w, dash: dash})
}

func (r *recorder) StrokePolyline(pts []geometry.Point, closed bool, c color.Color, w float64, dash []float64) {
	r.ops = append(r.ops, op{kind: "strokePolyline", points: pts, color: c, width: w, dash: dash})
}

func (r *recorder) FillCircle(center geometry.Point, radius float64, c color.Color) {
	r.ops = append(r.ops, op{kind: "fillCircle", points: []geometry.Point{center}, width: radius, color: c})
}

func (r *recorder) DrawImage(img image.Image, dst geometry.Rect, clip Clip) {
	r.ops = append(r.ops, op{kind: "drawImage", rect: dst, clip: clip, img: img})
}

func (r *recorder) DrawText(s string, at geometry.Point, f Font, c color.Color, align region.Align) {
	r.ops = append(r.ops, op{kind: "drawText", text: s, points: []geometry.Point{at}, font: f, color: c, align: align})
}

func (r *recorder) MeasureText(s string, f Font) float64 {
	return float64(len([]rune(s))) * f.Size * 0.5
}

func (r *recorder) kinds() []string {
	out := make([]string, len(r.ops))
	for i, o := range r.ops {
		out[i] = o.kind
	}
	return out
}

// fakeSource serves images from a map.
type fakeSource map[string]image.Image

func (f fakeSource) Resolve(_ context.Context, ref string) (image.Image, error) {
	if img, ok := f[ref]; ok {
		return img, nil
	}
	return nil, errors.New("not found: " + ref)
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
