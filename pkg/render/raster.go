package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// RasterCanvas is a Canvas backed by a gg software context.
type RasterCanvas struct {
	dc    *gg.Context
	fonts *FontBook
	err   error
}

// NewRasterCanvas creates a width x height canvas filled with white.
func NewRasterCanvas(width, height int, fonts *FontBook) *RasterCanvas {
	if fonts == nil {
		fonts = NewFontBook("")
	}
	c := &RasterCanvas{dc: gg.NewContext(width, height), fonts: fonts}
	c.FillRect(geometry.Rect{Width: float64(width), Height: float64(height)}, color.White)
	return c
}

func (c *RasterCanvas) Width() int  { return c.dc.Width() }
func (c *RasterCanvas) Height() int { return c.dc.Height() }
func (c *RasterCanvas) Err() error  { return c.err }

// Image returns the rendered pixels.
func (c *RasterCanvas) Image() image.Image {
	c.fail(c.dc.FlushGPU())
	return c.dc.Image()
}

// Close releases the context.
func (c *RasterCanvas) Close() error {
	return c.dc.Close()
}

func (c *RasterCanvas) fail(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *RasterCanvas) FillRect(r geometry.Rect, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	c.fail(c.dc.Fill())
}

func (c *RasterCanvas) FillPolygon(pts []geometry.Point, col color.Color) {
	if len(pts) < 3 {
		return
	}
	c.dc.SetColor(col)
	c.tracePath(pts, true)
	c.fail(c.dc.Fill())
}

func (c *RasterCanvas) StrokeRect(r geometry.Rect, col color.Color, lineWidth float64, dash []float64) {
	c.StrokePolyline(r.Points(), true, col, lineWidth, dash)
}

func (c *RasterCanvas) StrokePolyline(pts []geometry.Point, closed bool, col color.Color, lineWidth float64, dash []float64) {
	if len(pts) < 2 {
		return
	}
	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth)
	if len(dash) > 0 {
		c.dc.SetDash(dash...)
	}
	c.tracePath(pts, closed)
	c.fail(c.dc.Stroke())
	c.dc.ClearDash()
}

func (c *RasterCanvas) FillCircle(center geometry.Point, radius float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawCircle(center.X, center.Y, radius)
	c.fail(c.dc.Fill())
}

func (c *RasterCanvas) tracePath(pts []geometry.Point, closed bool) {
	c.dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		c.dc.LineTo(p.X, p.Y)
	}
	if closed {
		c.dc.ClosePath()
	}
}

// DrawImage resamples the visible part of img into a tile masked by the
// clip outline and composites the tile at integer coordinates. gg does not
// apply its clip stack to image draws, so clipping happens here.
func (c *RasterCanvas) DrawImage(img image.Image, dst geometry.Rect, clip Clip) {
	if img == nil || dst.Empty() {
		return
	}
	canvas := geometry.Rect{Width: float64(c.Width()), Height: float64(c.Height())}
	visible := dst.Intersect(clip.Bounds()).Intersect(canvas)
	if visible.Empty() {
		return
	}
	x0, y0 := int(math.Floor(visible.X)), int(math.Floor(visible.Y))
	x1, y1 := int(math.Ceil(visible.Right())), int(math.Ceil(visible.Bottom()))
	tw, th := x1-x0, y1-y0
	if tw <= 0 || th <= 0 {
		return
	}

	mask := outlineMask(clip.Outline(), x0, y0, tw, th)
	tile := image.NewNRGBA(image.Rect(0, 0, tw, th))

	sb := img.Bounds()
	sx := dst.Width / float64(sb.Dx())
	sy := dst.Height / float64(sb.Dy())
	s2d := f64.Aff3{
		sx, 0, dst.X - float64(x0) - float64(sb.Min.X)*sx,
		0, sy, dst.Y - float64(y0) - float64(sb.Min.Y)*sy,
	}
	xdraw.BiLinear.Transform(tile, s2d, img, sb, xdraw.Over, &xdraw.Options{
		DstMask:  mask,
		DstMaskP: image.Point{},
	})

	c.dc.DrawImageEx(gg.ImageBufFromImage(tile), gg.DrawImageOptions{
		X:             float64(x0),
		Y:             float64(y0),
		DstWidth:      float64(tw),
		DstHeight:     float64(th),
		Interpolation: gg.InterpNearest,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
}

// outlineMask rasterizes the closed outline into a w x h alpha mask whose
// origin sits at (ox, oy) in canvas space.
func outlineMask(outline []geometry.Point, ox, oy, w, h int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if len(outline) < 3 {
		return mask
	}
	z := vector.NewRasterizer(w, h)
	z.DrawOp = xdraw.Src
	z.MoveTo(float32(outline[0].X-float64(ox)), float32(outline[0].Y-float64(oy)))
	for _, p := range outline[1:] {
		z.LineTo(float32(p.X-float64(ox)), float32(p.Y-float64(oy)))
	}
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

func (c *RasterCanvas) face(f Font) bool {
	face, err := c.fonts.Face(f)
	if err != nil {
		c.fail(fmt.Errorf("font %s %s: %w", f.Family, f.Weight, err))
		return false
	}
	c.dc.SetFont(face)
	return true
}

func (c *RasterCanvas) MeasureText(s string, f Font) float64 {
	if !c.face(f) {
		return 0
	}
	w, _ := c.dc.MeasureString(s)
	return w
}

func (c *RasterCanvas) DrawText(s string, at geometry.Point, f Font, col color.Color, align region.Align) {
	if s == "" || !c.face(f) {
		return
	}
	face := c.dc.Font()
	w, _ := c.dc.MeasureString(s)
	x := at.X
	switch align {
	case region.AlignCenter:
		x -= w / 2
	case region.AlignRight:
		x -= w
	}
	m := face.Metrics()
	baseline := at.Y + (m.Ascent-m.Descent)/2
	c.dc.SetColor(col)
	c.dc.DrawString(s, x, baseline)
}
