package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/brochure-composer/pkg/geometry"
)

func triangle() []geometry.Point {
	return []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 50, Y: 80}}
}

func TestNewRectangleDefaults(t *testing.T) {
	r := NewRectangle(geometry.Rect{X: 1, Y: 2, Width: 30, Height: 40}, KindImage)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, KindImage, r.Kind())

	f, ok := r.Image()
	require.True(t, ok)
	assert.Equal(t, DefaultScale, f.Scale)
	assert.False(t, f.Assigned())

	_, ok = r.Text()
	assert.False(t, ok)
}

func TestNewPolygonNeedsThreePoints(t *testing.T) {
	_, err := NewPolygon(triangle()[:2], KindImage)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	r, err := NewPolygon(triangle(), KindText)
	require.NoError(t, err)
	tf, ok := r.Text()
	require.True(t, ok)
	assert.Equal(t, DefaultTextStyle(), tf.Style)
	assert.Equal(t, geometry.Rect{X: 0, Y: 0, Width: 100, Height: 80}, r.Shape.Bounds())
}

func TestSetOrderingAndViews(t *testing.T) {
	s := NewSet()
	b := NewRectangle(geometry.Rect{Width: 20, Height: 20}, KindImage)
	p, err := NewPolygon(triangle(), KindImage)
	require.NoError(t, err)
	a := NewRectangle(geometry.Rect{Width: 20, Height: 20}, KindText)

	for _, r := range []*Region{b, p, a} {
		require.NoError(t, s.Add(r))
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []*Region{b, p, a}, s.All())
	assert.Equal(t, []*Region{b, a}, s.Rectangles())
	assert.Equal(t, []*Region{p}, s.Polygons())

	assert.ErrorIs(t, s.Add(b), ErrDuplicateID)

	require.NoError(t, s.Delete(p.ID))
	assert.Equal(t, []*Region{b, a}, s.All())
	assert.ErrorIs(t, s.Delete(p.ID), ErrNotFound)
	_, err = s.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRejectsIncompletePolygon(t *testing.T) {
	s := NewSet()
	err := s.Add(&Region{ID: "p", Shape: Polygon{Points: triangle()[:2]}, Content: NewContent(KindImage)})
	assert.ErrorIs(t, err, ErrTooFewPoints)
	assert.Equal(t, 0, s.Len())
}

func TestAssignImage(t *testing.T) {
	s := NewSet()
	img := NewRectangle(geometry.Rect{Width: 50, Height: 50}, KindImage)
	txt := NewRectangle(geometry.Rect{Width: 50, Height: 50}, KindText)
	require.NoError(t, s.Add(img))
	require.NoError(t, s.Add(txt))

	f, _ := img.Image()
	f.Scale = 2
	f.Offset = geometry.Pt(5, 5)

	require.NoError(t, s.AssignImage(img.ID, "https://example.com/a.jpg"))
	assert.Equal(t, "https://example.com/a.jpg", f.Ref)
	assert.Equal(t, DefaultScale, f.Scale)
	assert.Equal(t, geometry.Point{}, f.Offset)

	assert.ErrorIs(t, s.AssignImage(txt.ID, "x"), ErrKindMismatch)
	assert.ErrorIs(t, s.AssignImage("missing", "x"), ErrNotFound)
}

func TestAssignTextNormalizesStyle(t *testing.T) {
	s := NewSet()
	txt := NewRectangle(geometry.Rect{Width: 50, Height: 50}, KindText)
	img := NewRectangle(geometry.Rect{Width: 50, Height: 50}, KindImage)
	require.NoError(t, s.Add(txt))
	require.NoError(t, s.Add(img))

	require.NoError(t, s.AssignText(txt.ID, "Sale", TextStyle{FontSize: 24, Align: "diagonal"}))
	f, _ := txt.Text()
	assert.Equal(t, "Sale", f.Text)
	assert.Equal(t, 24.0, f.Style.FontSize)
	assert.Equal(t, "Arial", f.Style.FontFamily)
	assert.Equal(t, AlignCenter, f.Style.Align)

	assert.ErrorIs(t, s.AssignText(img.ID, "x", DefaultTextStyle()), ErrKindMismatch)
	assert.ErrorIs(t, s.SetStyle(img.ID, DefaultTextStyle()), ErrKindMismatch)
}

func TestImageRefsDeduplicatesInDrawOrder(t *testing.T) {
	s := NewSet()
	p, _ := NewPolygon(triangle(), KindImage)
	r1 := NewRectangle(geometry.Rect{Width: 20, Height: 20}, KindImage)
	r2 := NewRectangle(geometry.Rect{Width: 20, Height: 20}, KindImage)
	for _, r := range []*Region{p, r1, r2} {
		require.NoError(t, s.Add(r))
	}
	require.NoError(t, s.AssignImage(p.ID, "poly"))
	require.NoError(t, s.AssignImage(r1.ID, "shared"))
	require.NoError(t, s.AssignImage(r2.ID, "shared"))

	assert.Equal(t, []string{"shared", "poly"}, s.ImageRefs())
}

func TestCloneIsDeep(t *testing.T) {
	p, _ := NewPolygon(triangle(), KindImage)
	c := p.Clone()
	c.Shape.(Polygon).Points[0].X = 999
	cf, _ := c.Image()
	cf.Ref = "changed"

	assert.Equal(t, 0.0, p.Shape.(Polygon).Points[0].X)
	pf, _ := p.Image()
	assert.Empty(t, pf.Ref)
}

func TestTextStyleBackground(t *testing.T) {
	st := DefaultTextStyle()
	assert.False(t, st.HasBackground())
	st.BackgroundColor = "#ffcc00"
	assert.True(t, st.HasBackground())
	st.BackgroundColor = "Transparent"
	assert.False(t, st.HasBackground())
}

func TestFloatingTextHit(t *testing.T) {
	ft := NewFloatingText("Hello", geometry.Pt(100, 100))
	// 5 glyphs * 16 * 0.6 = 48 wide, centered.
	assert.True(t, ft.Hit(geometry.Pt(77, 100)))
	assert.False(t, ft.Hit(geometry.Pt(70, 100)))
	assert.False(t, ft.Hit(geometry.Pt(100, 120)))

	ft.Style.Align = AlignLeft
	assert.True(t, ft.Hit(geometry.Pt(140, 95)))
	assert.False(t, ft.Hit(geometry.Pt(90, 100)))

	ft.Style.Align = AlignRight
	assert.True(t, ft.Hit(geometry.Pt(60, 100)))
	assert.False(t, ft.Hit(geometry.Pt(110, 100)))
}
