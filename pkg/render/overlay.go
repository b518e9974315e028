package render

import (
	"fmt"
	"image/color"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// Overlay colors. Overlays are sized in canvas pixels and never scale.
var (
	rectStroke         = color.NRGBA{0x00, 0x66, 0xcc, 0xff}
	rectStrokeSelected = color.NRGBA{0xff, 0x00, 0x00, 0xff}
	rectTint           = color.NRGBA{0x00, 0x66, 0xcc, 0x1a}
	polyStroke         = color.NRGBA{0xa1, 0x00, 0xff, 0xff}
	polyStrokeSelected = color.NRGBA{0xff, 0x00, 0xff, 0xff}
	polyTint           = color.NRGBA{0xa1, 0x00, 0xff, 0x1a}
	draftRect          = color.NRGBA{0x00, 0xcc, 0x66, 0xff}
	draftPoly          = color.NRGBA{0x00, 0xa3, 0xa3, 0xff}
	textSelect         = color.NRGBA{0x00, 0x66, 0xcc, 0xff}
)

var labelFont = Font{Family: "Arial", Weight: "bold", Size: 12}

// Label returns the overlay caption for the n-th region of its shape.
func Label(reg *region.Region, n int) string {
	if t, ok := reg.Text(); ok {
		if t.Text == "" {
			return fmt.Sprintf("Text Area %d", n)
		}
		r := []rune(t.Text)
		if len(r) > 10 {
			return "Text: " + string(r[:10]) + "..."
		}
		return "Text: " + t.Text
	}
	if reg.Shape.ShapeKind() == region.ShapePolygon {
		return fmt.Sprintf("Polygon %d", n)
	}
	return fmt.Sprintf("Image %d", n)
}

func (r *Renderer) outline(c Canvas, reg *region.Region, n int, selected bool, s float64) {
	stroke, tint := rectStroke, rectTint
	if reg.Shape.ShapeKind() == region.ShapePolygon {
		stroke, tint = polyStroke, polyTint
		if selected {
			stroke = polyStrokeSelected
		}
	} else if selected {
		stroke = rectStrokeSelected
	}
	width := 2.0
	if selected {
		width = 3
	}

	clip := clipFor(reg, s)
	if empty(reg) {
		fillClip(c, clip, tint)
	}
	c.StrokePolyline(clip.Outline(), true, stroke, width, nil)

	b := clip.Bounds()
	c.DrawText(Label(reg, n), geometry.Pt(b.X+5, b.Y+12), labelFont, stroke, region.AlignLeft)
}

func empty(reg *region.Region) bool {
	switch content := reg.Content.(type) {
	case *region.ImageFill:
		return !content.Assigned()
	case *region.TextFill:
		return content.Text == ""
	}
	return true
}

func (r *Renderer) textSelection(c Canvas, t *region.FloatingText, s float64) {
	b := t.ApproxBounds().Scale(s)
	box := geometry.Rect{X: b.X - 4, Y: b.Y - 4, Width: b.Width + 8, Height: b.Height + 8}
	c.StrokeRect(box, textSelect, 1, []float64{4, 4})
}

func (r *Renderer) preview(c Canvas, p annotate.Preview, s float64) {
	switch p.State {
	case annotate.DrawingRectangle:
		c.StrokeRect(p.Rect.Scale(s), draftRect, 2, []float64{5, 5})
	case annotate.DrawingPolygon:
		pts := geometry.ScalePoints(p.Points, s)
		if len(pts) == 0 {
			return
		}
		path := append(pts, p.Cursor.Mul(s))
		c.StrokePolyline(path, false, draftPoly, 2, []float64{6, 6})
		for _, pt := range pts {
			c.FillCircle(pt, 3, draftPoly)
		}
	}
}
