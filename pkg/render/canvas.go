package render

import (
	"image"
	"image/color"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// Font selects a face. Size is in canvas pixels.
type Font struct {
	Family string
	Weight string
	Size   float64
}

// Clip restricts a draw call. A non-empty Polygon takes precedence over Rect.
type Clip struct {
	Rect    geometry.Rect
	Polygon []geometry.Point
}

// RectClip clips to r.
func RectClip(r geometry.Rect) Clip {
	return Clip{Rect: r}
}

// PolygonClip clips to the closed outline pts.
func PolygonClip(pts []geometry.Point) Clip {
	return Clip{Rect: geometry.BoundingBox(pts), Polygon: pts}
}

// Outline returns the clip as a closed point list.
func (c Clip) Outline() []geometry.Point {
	if len(c.Polygon) >= 3 {
		return c.Polygon
	}
	return c.Rect.Points()
}

// Bounds returns the clip's bounding box.
func (c Clip) Bounds() geometry.Rect {
	if len(c.Polygon) >= 3 {
		return geometry.BoundingBox(c.Polygon)
	}
	return c.Rect
}

// Canvas is the drawing surface the renderer targets. All coordinates are
// canvas pixels. Implementations keep the first drawing error and report it
// from Err.
type Canvas interface {
	Width() int
	Height() int
	FillRect(r geometry.Rect, c color.Color)
	FillPolygon(pts []geometry.Point, c color.Color)
	StrokeRect(r geometry.Rect, c color.Color, lineWidth float64, dash []float64)
	StrokePolyline(pts []geometry.Point, closed bool, c color.Color, lineWidth float64, dash []float64)
	FillCircle(center geometry.Point, radius float64, c color.Color)
	// DrawImage stretches img onto dst, showing only the part inside clip.
	DrawImage(img image.Image, dst geometry.Rect, clip Clip)
	// DrawText draws s vertically centered on at.Y. align says whether at.X
	// is the left edge, the middle or the right edge of the text.
	DrawText(s string, at geometry.Point, f Font, c color.Color, align region.Align)
	MeasureText(s string, f Font) float64
	Err() error
}
