// Package placement positions assigned images inside their regions and
// applies the user's pan and zoom.
//
// Images are cover-fitted to the region's bounding box, scaled by the
// region's zoom factor and displaced by its offset. Every transform change
// re-clamps the offset, so a region never ends up in an inconsistent state.
package placement

import (
	"math"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// Config holds the zoom parameters.
type Config struct {
	Step     float64
	MinScale float64
	MaxScale float64
}

// DefaultConfig zooms in 0.1 steps within [0.5, 3.0].
func DefaultConfig() Config {
	return Config{Step: 0.1, MinScale: region.MinScale, MaxScale: region.MaxScale}
}

// Engine applies transforms to the image regions of a set.
type Engine struct {
	regions *region.Set
	config  Config
}

// New creates an Engine with default configuration.
func New(set *region.Set) *Engine {
	return NewWithConfig(set, DefaultConfig())
}

// NewWithConfig creates an Engine with custom configuration.
func NewWithConfig(set *region.Set, config Config) *Engine {
	if config.Step <= 0 {
		config.Step = 0.1
	}
	if config.MinScale <= 0 || config.MinScale < region.MinScale {
		config.MinScale = region.MinScale
	}
	if config.MaxScale <= config.MinScale || config.MaxScale > region.MaxScale {
		config.MaxScale = region.MaxScale
	}
	return &Engine{regions: set, config: config}
}

// Transform is a snapshot of a region's image transform.
type Transform struct {
	Scale  float64        `json:"scale"`
	Offset geometry.Point `json:"offset"`
}

// ZoomIn raises the scale of region id by one step.
func (e *Engine) ZoomIn(id string) (Transform, error) {
	return e.apply(id, func(r *region.Region, f *region.ImageFill) {
		f.Scale = e.clampScale(f.Scale + e.config.Step)
		reclamp(r, f)
	})
}

// ZoomOut lowers the scale of region id by one step.
func (e *Engine) ZoomOut(id string) (Transform, error) {
	return e.apply(id, func(r *region.Region, f *region.ImageFill) {
		f.Scale = e.clampScale(f.Scale - e.config.Step)
		reclamp(r, f)
	})
}

// ResetZoom restores scale 1 and a centered image.
func (e *Engine) ResetZoom(id string) (Transform, error) {
	return e.apply(id, func(_ *region.Region, f *region.ImageFill) {
		f.Scale = region.DefaultScale
		f.Offset = geometry.Point{}
	})
}

// Pan moves the image of region id by (dx, dy) template pixels. It is meant
// to be called for every pointer move of a drag.
func (e *Engine) Pan(id string, dx, dy float64) (Transform, error) {
	return e.apply(id, func(r *region.Region, f *region.ImageFill) {
		f.Offset = f.Offset.Add(geometry.Pt(dx, dy))
		reclamp(r, f)
	})
}

// TransformOf returns the current transform of region id.
func (e *Engine) TransformOf(id string) (Transform, error) {
	return e.apply(id, func(*region.Region, *region.ImageFill) {})
}

// apply runs fn on the image payload of id. Regions without an assigned
// image are left untouched and report the zero Transform.
func (e *Engine) apply(id string, fn func(*region.Region, *region.ImageFill)) (Transform, error) {
	r, err := e.regions.Get(id)
	if err != nil {
		return Transform{}, err
	}
	f, ok := r.Image()
	if !ok || !f.Assigned() {
		return Transform{}, nil
	}
	fn(r, f)
	return Transform{Scale: f.Scale, Offset: f.Offset}, nil
}

func (e *Engine) clampScale(s float64) float64 {
	return geometry.Clamp(round2(s), e.config.MinScale, e.config.MaxScale)
}

func reclamp(r *region.Region, f *region.ImageFill) {
	b := r.Shape.Bounds()
	f.Offset = geometry.ClampOffset(b.Width, b.Height, f.Scale, f.Offset)
}

// round2 keeps repeated 0.1 steps from accumulating binary drift.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DrawRect returns where an image of size (iw, ih) is drawn for f inside
// area, in the same space as area.
func DrawRect(area geometry.Rect, iw, ih int, f *region.ImageFill) geometry.Rect {
	s := f.Scale
	if s <= 0 {
		s = region.DefaultScale
	}
	return geometry.CoverRect(area, float64(iw), float64(ih), s, f.Offset)
}

// ScaledDrawRect is DrawRect for a canvas at renderScale. The offset is
// stored in template pixels and is scaled along with the area.
func ScaledDrawRect(area geometry.Rect, iw, ih int, f *region.ImageFill, renderScale float64) geometry.Rect {
	scaled := *f
	scaled.Offset = f.Offset.Mul(renderScale)
	return DrawRect(area.Scale(renderScale), iw, ih, &scaled)
}
