package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

func setup(t *testing.T) (*Engine, *region.Region) {
	t.Helper()
	set := region.NewSet()
	r := region.NewRectangle(geometry.Rect{X: 50, Y: 150, Width: 200, Height: 150}, region.KindImage)
	require.NoError(t, set.Add(r))
	require.NoError(t, set.AssignImage(r.ID, "https://example.com/product.jpg"))
	return New(set), r
}

func TestZoomInOutIsSymmetric(t *testing.T) {
	e, r := setup(t)

	for _, n := range []int{1, 3, 7, 15} {
		_, err := e.ResetZoom(r.ID)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			_, err := e.ZoomIn(r.ID)
			require.NoError(t, err)
		}
		var tr Transform
		for i := 0; i < n; i++ {
			tr, err = e.ZoomOut(r.ID)
			require.NoError(t, err)
		}
		assert.InDelta(t, 1.0, tr.Scale, 1e-9, "after %d steps", n)
	}
}

func TestZoomClampsToDomain(t *testing.T) {
	e, r := setup(t)
	var tr Transform
	var err error
	for i := 0; i < 40; i++ {
		tr, err = e.ZoomIn(r.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3.0, tr.Scale)

	for i := 0; i < 40; i++ {
		tr, err = e.ZoomOut(r.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 0.5, tr.Scale)
}

func TestResetZoom(t *testing.T) {
	e, r := setup(t)
	_, _ = e.ZoomIn(r.ID)
	_, _ = e.ZoomIn(r.ID)
	_, _ = e.Pan(r.ID, 12, -7)

	tr, err := e.ResetZoom(r.ID)
	require.NoError(t, err)
	assert.Equal(t, Transform{Scale: 1}, tr)
}

func TestPanClampsToBudget(t *testing.T) {
	e, r := setup(t)

	// At scale 1 there is no budget.
	tr, err := e.Pan(r.ID, 40, 40)
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{}, tr.Offset)

	for i := 0; i < 5; i++ {
		_, err = e.ZoomIn(r.ID)
		require.NoError(t, err)
	}
	// Scale 1.5: budget is 200*0.5/2 = 50 and 150*0.5/2 = 37.5.
	tr, err = e.Pan(r.ID, 1000, -1000)
	require.NoError(t, err)
	assert.InDelta(t, 50, tr.Offset.X, 1e-9)
	assert.InDelta(t, -37.5, tr.Offset.Y, 1e-9)

	tr, err = e.Pan(r.ID, -20, 10)
	require.NoError(t, err)
	assert.InDelta(t, 30, tr.Offset.X, 1e-9)
	assert.InDelta(t, -27.5, tr.Offset.Y, 1e-9)
}

func TestZoomOutReclampsOffset(t *testing.T) {
	e, r := setup(t)
	for i := 0; i < 10; i++ {
		_, _ = e.ZoomIn(r.ID)
	}
	_, err := e.Pan(r.ID, 1000, 1000)
	require.NoError(t, err)

	tr, err := e.ZoomOut(r.ID)
	require.NoError(t, err)
	// Scale 1.9: budget 90 x 67.5.
	assert.InDelta(t, 1.9, tr.Scale, 1e-9)
	assert.InDelta(t, 90, tr.Offset.X, 1e-9)
	assert.InDelta(t, 67.5, tr.Offset.Y, 1e-9)
}

func TestOperationsWithoutImageAreNoops(t *testing.T) {
	set := region.NewSet()
	empty := region.NewRectangle(geometry.Rect{Width: 100, Height: 100}, region.KindImage)
	text := region.NewRectangle(geometry.Rect{Width: 100, Height: 100}, region.KindText)
	require.NoError(t, set.Add(empty))
	require.NoError(t, set.Add(text))
	e := New(set)

	for _, id := range []string{empty.ID, text.ID} {
		tr, err := e.ZoomIn(id)
		require.NoError(t, err)
		assert.Equal(t, Transform{}, tr)
	}
	f, _ := empty.Image()
	assert.Equal(t, 1.0, f.Scale)

	_, err := e.Pan("missing", 1, 1)
	assert.ErrorIs(t, err, region.ErrNotFound)
}

func TestDrawRectScenario(t *testing.T) {
	area := geometry.Rect{X: 50, Y: 150, Width: 200, Height: 150}
	f := &region.ImageFill{Ref: "x", Scale: 1}

	got := DrawRect(area, 400, 200, f)
	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, 150, got.Y, 1e-9)
	assert.InDelta(t, 300, got.Width, 1e-9)
	assert.InDelta(t, 150, got.Height, 1e-9)
}

func TestScaledDrawRectIsLinear(t *testing.T) {
	area := geometry.Rect{X: 13, Y: 27, Width: 171, Height: 93}
	f := &region.ImageFill{Ref: "x", Scale: 1.7, Offset: geometry.Pt(-11.5, 6.25)}

	one := ScaledDrawRect(area, 640, 480, f, 1)
	two := ScaledDrawRect(area, 640, 480, f, 2)
	assert.InDelta(t, one.X*2, two.X, 1e-9)
	assert.InDelta(t, one.Y*2, two.Y, 1e-9)
	assert.InDelta(t, one.Width*2, two.Width, 1e-9)
	assert.InDelta(t, one.Height*2, two.Height, 1e-9)
}

func BenchmarkPan(b *testing.B) {
	set := region.NewSet()
	r := region.NewRectangle(geometry.Rect{Width: 300, Height: 200}, region.KindImage)
	_ = set.Add(r)
	_ = set.AssignImage(r.ID, "x")
	e := New(set)
	_, _ = e.ZoomIn(r.ID)
	for i := 0; i < b.N; i++ {
		_, _ = e.Pan(r.ID, 1, -1)
	}
}
