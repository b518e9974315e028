// Package region defines the replaceable areas of a brochure template.
//
// A Region pairs a Shape (Rectangle or Polygon) with a Content payload
// (ImageFill or TextFill). Both are closed sum types: the unexported marker
// methods keep other packages from adding variants, so a switch over the
// concrete types is exhaustive.
package region

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/menta2k/brochure-composer/pkg/geometry"
)

var (
	// ErrNotFound is returned when no region has the requested id.
	ErrNotFound = errors.New("region not found")
	// ErrKindMismatch is returned when an operation targets the wrong content kind.
	ErrKindMismatch = errors.New("region kind mismatch")
	// ErrTooFewPoints is returned for polygons with fewer than MinPolygonPoints vertices.
	ErrTooFewPoints = errors.New("polygon needs at least 3 points")
	// ErrDuplicateID is returned when adding a region whose id is already present.
	ErrDuplicateID = errors.New("duplicate region id")
)

// MinPolygonPoints is the smallest vertex count of a complete polygon.
const MinPolygonPoints = 3

// Kind selects what a region is filled with.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindText
}

// ShapeKind names a Shape variant.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapePolygon   ShapeKind = "polygon"
)

// Valid reports whether s is a known shape kind.
func (s ShapeKind) Valid() bool {
	return s == ShapeRectangle || s == ShapePolygon
}

// Shape is the outline of a region in template-native pixels.
type Shape interface {
	ShapeKind() ShapeKind
	// Bounds is the axis-aligned bounding box used for placement and text layout.
	Bounds() geometry.Rect
	// Contains reports whether p falls inside the outline.
	Contains(p geometry.Point) bool
	isShape()
}

// Rectangle is an axis-aligned rectangular outline.
type Rectangle struct {
	geometry.Rect
}

func (Rectangle) ShapeKind() ShapeKind            { return ShapeRectangle }
func (r Rectangle) Bounds() geometry.Rect          { return r.Rect }
func (r Rectangle) Contains(p geometry.Point) bool { return r.Rect.Contains(p) }
func (Rectangle) isShape()                         {}

// Polygon is a closed outline with straight edges between ordered points.
type Polygon struct {
	Points []geometry.Point
}

func (Polygon) ShapeKind() ShapeKind { return ShapePolygon }
func (p Polygon) Bounds() geometry.Rect {
	return geometry.BoundingBox(p.Points)
}
func (p Polygon) Contains(pt geometry.Point) bool {
	return geometry.PointInPolygon(pt, p.Points)
}
func (Polygon) isShape() {}

// Content is what fills a region.
type Content interface {
	Kind() Kind
	isContent()
}

// ImageFill holds the assigned image and the user's pan/zoom transform.
// Offset is in template-native pixels; Scale lives in [MinScale, MaxScale].
type ImageFill struct {
	Ref    string
	Offset geometry.Point
	Scale  float64
}

func (*ImageFill) Kind() Kind { return KindImage }
func (*ImageFill) isContent() {}

// Assigned reports whether an image reference has been chosen.
func (f *ImageFill) Assigned() bool {
	return f.Ref != ""
}

// TextFill holds a string and its styling.
type TextFill struct {
	Text  string
	Style TextStyle
}

func (*TextFill) Kind() Kind { return KindText }
func (*TextFill) isContent() {}

// Zoom domain for ImageFill.Scale.
const (
	MinScale     = 0.5
	MaxScale     = 3.0
	DefaultScale = 1.0
)

// NewContent returns the empty payload for kind.
func NewContent(kind Kind) Content {
	if kind == KindText {
		return &TextFill{Style: DefaultTextStyle()}
	}
	return &ImageFill{Scale: DefaultScale}
}

// Region is one replaceable area of a template.
type Region struct {
	ID      string
	Shape   Shape
	Content Content
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewRectangle creates a rectangle region of the given kind.
func NewRectangle(r geometry.Rect, kind Kind) *Region {
	return &Region{ID: NewID(), Shape: Rectangle{Rect: r}, Content: NewContent(kind)}
}

// NewPolygon creates a polygon region of the given kind. The point slice is copied.
func NewPolygon(pts []geometry.Point, kind Kind) (*Region, error) {
	if len(pts) < MinPolygonPoints {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(pts))
	}
	cp := append([]geometry.Point(nil), pts...)
	return &Region{ID: NewID(), Shape: Polygon{Points: cp}, Content: NewContent(kind)}, nil
}

// Kind returns the content kind.
func (r *Region) Kind() Kind {
	return r.Content.Kind()
}

// Image returns the image payload, or false for text regions.
func (r *Region) Image() (*ImageFill, bool) {
	f, ok := r.Content.(*ImageFill)
	return f, ok
}

// Text returns the text payload, or false for image regions.
func (r *Region) Text() (*TextFill, bool) {
	f, ok := r.Content.(*TextFill)
	return f, ok
}

// Validate checks the structural invariants of a region.
func (r *Region) Validate() error {
	if r.ID == "" {
		return errors.New("region id is empty")
	}
	switch s := r.Shape.(type) {
	case Rectangle:
		if s.Width < 0 || s.Height < 0 {
			return fmt.Errorf("region %s: negative rectangle size", r.ID)
		}
	case Polygon:
		if len(s.Points) < MinPolygonPoints {
			return fmt.Errorf("region %s: %w", r.ID, ErrTooFewPoints)
		}
	default:
		return fmt.Errorf("region %s: missing shape", r.ID)
	}
	if r.Content == nil {
		return fmt.Errorf("region %s: missing content", r.ID)
	}
	if f, ok := r.Image(); ok && (f.Scale < MinScale || f.Scale > MaxScale) {
		return fmt.Errorf("region %s: scale %.2f outside [%.1f, %.1f]", r.ID, f.Scale, MinScale, MaxScale)
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Region) Clone() *Region {
	out := &Region{ID: r.ID, Shape: r.Shape}
	if p, ok := r.Shape.(Polygon); ok {
		out.Shape = Polygon{Points: append([]geometry.Point(nil), p.Points...)}
	}
	switch c := r.Content.(type) {
	case *ImageFill:
		cp := *c
		out.Content = &cp
	case *TextFill:
		cp := *c
		out.Content = &cp
	}
	return out
}
