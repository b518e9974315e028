// Package render draws a brochure scene onto a canvas at any resolution.
//
// Every coordinate, font size and line width is the template-native value
// multiplied by a single render scale, so the interactive preview and the
// high-resolution export share one code path. Draw order is fixed: base
// image, rectangle regions, polygon regions, floating texts, then the
// in-progress annotation (interactive only).
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/placement"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// textInset is the horizontal padding of left and right aligned region text.
const textInset = 5

// ErrEmptyScene is returned when neither a base image nor a size is known.
var ErrEmptyScene = errors.New("scene has no base image and no size")

// ImageSource resolves image references. Implementations pick the best
// available variant of an image.
type ImageSource interface {
	Resolve(ctx context.Context, ref string) (image.Image, error)
}

// Scene is everything that ends up on the canvas.
type Scene struct {
	BaseRef string
	// Width and Height are the native template size. When zero they are
	// taken from the base image.
	Width   int
	Height  int
	Regions *region.Set
	Texts   []*region.FloatingText

	// Interactive-only state.
	Preview      annotate.Preview
	Selected     string
	SelectedText string
}

// Options controls one render pass.
type Options struct {
	Scale       float64
	Interactive bool
}

// Failure records an image that could not be drawn.
type Failure struct {
	RegionID string
	Ref      string
	Err      error
}

// Result is a finished render.
type Result struct {
	Image    image.Image
	Scale    float64
	Failures []Failure
}

// Renderer draws scenes.
type Renderer struct {
	source ImageSource
	fonts  *FontBook
	logger *zap.Logger
}

// New creates a Renderer. fonts and logger may be nil.
func New(source ImageSource, fonts *FontBook, logger *zap.Logger) *Renderer {
	if fonts == nil {
		fonts = NewFontBook("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{source: source, fonts: fonts, logger: logger}
}

// Fonts returns the renderer's font book.
func (r *Renderer) Fonts() *FontBook {
	return r.fonts
}

// Render draws scene onto a new raster canvas sized native x opts.Scale.
func (r *Renderer) Render(ctx context.Context, scene Scene, opts Options) (*Result, error) {
	if opts.Scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", opts.Scale)
	}
	base, w, h, baseErr := r.base(ctx, scene)
	if w <= 0 || h <= 0 {
		if baseErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmptyScene, baseErr)
		}
		return nil, ErrEmptyScene
	}
	scene.Width, scene.Height = w, h

	cw := int(math.Round(float64(w) * opts.Scale))
	ch := int(math.Round(float64(h) * opts.Scale))
	canvas := NewRasterCanvas(cw, ch, r.fonts)
	defer canvas.Close()

	failures := r.draw(ctx, canvas, scene, base, baseErr, opts)
	if err := canvas.Err(); err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}
	return &Result{Image: canvas.Image(), Scale: opts.Scale, Failures: failures}, nil
}

// Draw renders scene onto an existing canvas. The canvas must already be
// sized for opts.Scale.
func (r *Renderer) Draw(ctx context.Context, canvas Canvas, scene Scene, opts Options) []Failure {
	base, w, h, baseErr := r.base(ctx, scene)
	scene.Width, scene.Height = w, h
	return r.draw(ctx, canvas, scene, base, baseErr, opts)
}

func (r *Renderer) base(ctx context.Context, scene Scene) (image.Image, int, int, error) {
	w, h := scene.Width, scene.Height
	if scene.BaseRef == "" {
		return nil, w, h, nil
	}
	img, err := r.source.Resolve(ctx, scene.BaseRef)
	if err != nil {
		r.logger.Warn("base image unavailable", zap.String("ref", scene.BaseRef), zap.Error(err))
		return nil, w, h, err
	}
	if w <= 0 || h <= 0 {
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	return img, w, h, nil
}

func (r *Renderer) draw(ctx context.Context, c Canvas, scene Scene, base image.Image, baseErr error, opts Options) []Failure {
	s := opts.Scale
	var failures []Failure
	full := geometry.Rect{Width: float64(scene.Width), Height: float64(scene.Height)}.Scale(s)

	switch {
	case base != nil:
		c.DrawImage(base, full, RectClip(full))
	case baseErr != nil:
		failures = append(failures, Failure{Ref: scene.BaseRef, Err: baseErr})
		r.placeholder(c, RectClip(full), s)
	}

	if scene.Regions != nil {
		for i, reg := range scene.Regions.Rectangles() {
			if f := r.drawRegion(ctx, c, reg, s); f != nil {
				failures = append(failures, *f)
			}
			if opts.Interactive {
				r.outline(c, reg, i+1, reg.ID == scene.Selected, s)
			}
		}
		for i, reg := range scene.Regions.Polygons() {
			if f := r.drawRegion(ctx, c, reg, s); f != nil {
				failures = append(failures, *f)
			}
			if opts.Interactive {
				r.outline(c, reg, i+1, reg.ID == scene.Selected, s)
			}
		}
	}

	for _, t := range scene.Texts {
		r.drawFloating(c, t, s)
		if opts.Interactive && t.ID == scene.SelectedText {
			r.textSelection(c, t, s)
		}
	}

	if opts.Interactive && scene.Preview.Active() {
		r.preview(c, scene.Preview, s)
	}
	return failures
}

func clipFor(reg *region.Region, s float64) Clip {
	if p, ok := reg.Shape.(region.Polygon); ok {
		return PolygonClip(geometry.ScalePoints(p.Points, s))
	}
	return RectClip(reg.Shape.Bounds().Scale(s))
}

func (r *Renderer) drawRegion(ctx context.Context, c Canvas, reg *region.Region, s float64) *Failure {
	clip := clipFor(reg, s)
	switch content := reg.Content.(type) {
	case *region.ImageFill:
		if !content.Assigned() {
			return nil
		}
		img, err := r.source.Resolve(ctx, content.Ref)
		if err != nil {
			r.logger.Warn("region image unavailable",
				zap.String("region", reg.ID),
				zap.String("ref", content.Ref),
				zap.Error(err))
			r.placeholder(c, clip, s)
			return &Failure{RegionID: reg.ID, Ref: content.Ref, Err: err}
		}
		b := img.Bounds()
		dst := placement.ScaledDrawRect(reg.Shape.Bounds(), b.Dx(), b.Dy(), content, s)
		c.DrawImage(img, dst, clip)
	case *region.TextFill:
		r.drawRegionText(c, reg, content, clip, s)
	}
	return nil
}

func (r *Renderer) drawRegionText(c Canvas, reg *region.Region, t *region.TextFill, clip Clip, s float64) {
	if t.Text == "" {
		return
	}
	st := t.Style.Normalized()
	if st.HasBackground() {
		fillClip(c, clip, MustColor(st.BackgroundColor, color.NRGBA{}))
	}
	b := reg.Shape.Bounds()
	x := b.Center().X
	switch st.Align {
	case region.AlignLeft:
		x = b.X + textInset
	case region.AlignRight:
		x = b.Right() - textInset
	}
	at := geometry.Pt(x, b.Center().Y).Mul(s)
	c.DrawText(t.Text, at, fontFor(st, s), MustColor(st.Color, color.NRGBA{A: 255}), st.Align)
}

func (r *Renderer) drawFloating(c Canvas, t *region.FloatingText, s float64) {
	if t.Text == "" {
		return
	}
	st := t.Style.Normalized()
	f := fontFor(st, s)
	at := t.Position.Mul(s)
	if st.HasBackground() {
		w := c.MeasureText(t.Text, f)
		h := st.FontSize * s
		x := at.X
		switch st.Align {
		case region.AlignCenter:
			x -= w / 2
		case region.AlignRight:
			x -= w
		}
		box := geometry.Rect{X: x - 4*s, Y: at.Y - h/2 - 2*s, Width: w + 8*s, Height: h + 4*s}
		c.FillRect(box, MustColor(st.BackgroundColor, color.NRGBA{}))
	}
	c.DrawText(t.Text, at, f, MustColor(st.Color, color.NRGBA{A: 255}), st.Align)
}

func fontFor(st region.TextStyle, s float64) Font {
	return Font{Family: st.FontFamily, Weight: st.FontWeight, Size: st.FontSize * s}
}

func fillClip(c Canvas, clip Clip, col color.Color) {
	if len(clip.Polygon) >= 3 {
		c.FillPolygon(clip.Polygon, col)
		return
	}
	c.FillRect(clip.Rect, col)
}

var (
	placeholderFill  = color.NRGBA{0xd1, 0xd5, 0xdb, 0xff}
	placeholderLabel = color.NRGBA{0x6b, 0x72, 0x80, 0xff}
)

// placeholder marks a region whose image could not be loaded.
func (r *Renderer) placeholder(c Canvas, clip Clip, s float64) {
	fillClip(c, clip, placeholderFill)
	size := math.Max(10, 14*s)
	c.DrawText("image unavailable", clip.Bounds().Center(), Font{Family: "Arial", Size: size}, placeholderLabel, region.AlignCenter)
}
