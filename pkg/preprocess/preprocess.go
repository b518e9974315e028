// Package preprocess produces the derived images the renderer prefers over
// originals: size-capped recompressed copies and background-removed cutouts.
package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Optimizer caps image dimensions and recompresses as JPEG.
type Optimizer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultOptimizer matches the product list preload settings.
func DefaultOptimizer() Optimizer {
	return Optimizer{MaxWidth: 800, MaxHeight: 800, Quality: 80}
}

// Optimize shrinks img to fit within the bounds, never enlarging it, and
// round-trips it through JPEG at the configured quality. Transparent areas
// are flattened onto white first.
func (o Optimizer) Optimize(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("invalid image dimensions")
	}
	out := img
	if o.MaxWidth > 0 && o.MaxHeight > 0 && (b.Dx() > o.MaxWidth || b.Dy() > o.MaxHeight) {
		out = imaging.Fit(img, o.MaxWidth, o.MaxHeight, imaging.Lanczos)
	}
	if !opaque(out) {
		bg := imaging.New(out.Bounds().Dx(), out.Bounds().Dy(), color.White)
		out = imaging.Overlay(bg, out, image.Pt(0, 0), 1.0)
	}

	q := o.Quality
	if q < 1 || q > 100 {
		q = 85
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("failed to encode optimized image: %w", err)
	}
	decoded, err := imaging.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode optimized image: %w", err)
	}
	return decoded, nil
}

// BackgroundRemover cuts the subject of an image out of its background.
// Implementations return an image with a transparent background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}

// WhiteKeyRemover clears near-white pixels, which suits product shots on a
// white studio backdrop.
type WhiteKeyRemover struct {
	// Tolerance is how far below 255 a channel may fall and still count as white.
	Tolerance int
}

// NewWhiteKeyRemover returns a remover with the given tolerance.
func NewWhiteKeyRemover(tolerance int) *WhiteKeyRemover {
	return &WhiteKeyRemover{Tolerance: tolerance}
}

// RemoveBackground makes every pixel whose red, green and blue all exceed
// 255-Tolerance fully transparent.
func (r *WhiteKeyRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := imaging.Clone(img)
	threshold := uint8(255 - clampTolerance(r.Tolerance))
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	for y := 0; y < h; y++ {
		i := y * out.Stride
		for x := 0; x < w; x++ {
			if out.Pix[i] > threshold && out.Pix[i+1] > threshold && out.Pix[i+2] > threshold {
				out.Pix[i+3] = 0
			}
			i += 4
		}
	}
	return out, nil
}

func clampTolerance(t int) int {
	if t < 0 {
		return 0
	}
	if t > 255 {
		return 255
	}
	return t
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// RemoverConfig selects and tunes a BackgroundRemover.
type RemoverConfig struct {
	Method            string
	WhiteTolerance    int
	GrabCutIterations int
	GrabCutBorder     int
	MaxConcurrent     int
}

// NewRemover builds the remover named by cfg.Method: "white" (default) or "grabcut".
func NewRemover(cfg RemoverConfig) (BackgroundRemover, error) {
	switch cfg.Method {
	case "", "white":
		return NewWhiteKeyRemover(cfg.WhiteTolerance), nil
	case "grabcut":
		g, err := NewGrabCutRemover(cfg.GrabCutIterations, cfg.GrabCutBorder, cfg.MaxConcurrent)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown background removal method %q", cfg.Method)
	}
}
