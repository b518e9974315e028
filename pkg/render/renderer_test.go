package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
)

func addImage(t *testing.T, set *region.Set, r *region.Region, ref string) *region.Region {
	t.Helper()
	require.NoError(t, set.Add(r))
	if ref != "" {
		require.NoError(t, set.AssignImage(r.ID, ref))
	}
	return r
}

func polygon(t *testing.T, kind region.Kind, pts ...geometry.Point) *region.Region {
	t.Helper()
	r, err := region.NewPolygon(pts, kind)
	require.NoError(t, err)
	return r
}

func TestDrawOrderGroupsByShape(t *testing.T) {
	src := fakeSource{
		"base": solid(400, 300, color.White),
		"b":    solid(50, 50, red),
		"c":    solid(50, 50, blue),
	}
	set := region.NewSet()
	addImage(t, set, region.NewRectangle(geometry.Rect{X: 10, Y: 10, Width: 100, Height: 100}, region.KindImage), "b")
	a := polygon(t, region.KindText, geometry.Pt(200, 10), geometry.Pt(300, 10), geometry.Pt(250, 90))
	require.NoError(t, set.Add(a))
	require.NoError(t, set.AssignText(a.ID, "Sale", region.DefaultTextStyle()))
	addImage(t, set, region.NewRectangle(geometry.Rect{X: 10, Y: 150, Width: 100, Height: 100}, region.KindImage), "c")

	scene := Scene{
		BaseRef: "base",
		Regions: set,
		Texts:   []*region.FloatingText{region.NewFloatingText("Hi", geometry.Pt(300, 250))},
	}
	rec := newRecorder(400, 300)
	failures := New(src, nil, nil).Draw(context.Background(), rec, scene, Options{Scale: 1})
	require.Empty(t, failures)

	assert.Equal(t, []string{"drawImage", "drawImage", "drawImage", "drawText", "drawText"}, rec.kinds())
	assert.Same(t, src["base"], rec.ops[0].img)
	assert.Same(t, src["b"], rec.ops[1].img)
	assert.Same(t, src["c"], rec.ops[2].img)
	assert.Equal(t, "Sale", rec.ops[3].text)
	assert.Equal(t, "Hi", rec.ops[4].text)
}

func TestRectangleCoverScenario(t *testing.T) {
	src := fakeSource{"base": solid(400, 400, color.White), "p": solid(400, 200, red)}
	set := region.NewSet()
	addImage(t, set, region.NewRectangle(geometry.Rect{X: 50, Y: 150, Width: 200, Height: 150}, region.KindImage), "p")

	rec := newRecorder(400, 400)
	New(src, nil, nil).Draw(context.Background(), rec, Scene{BaseRef: "base", Regions: set}, Options{Scale: 1})

	require.Len(t, rec.ops, 2)
	got := rec.ops[1]
	assert.InDelta(t, 0, got.rect.X, 1e-9)
	assert.InDelta(t, 150, got.rect.Y, 1e-9)
	assert.InDelta(t, 300, got.rect.Width, 1e-9)
	assert.InDelta(t, 150, got.rect.Height, 1e-9)
	assert.Equal(t, geometry.Rect{X: 50, Y: 150, Width: 200, Height: 150}, got.clip.Rect)
	assert.Empty(t, got.clip.Polygon)
}

func richScene(t *testing.T) (fakeSource, Scene) {
	t.Helper()
	src := fakeSource{
		"base": solid(300, 200, color.White),
		"p1":   solid(640, 480, red),
		"p2":   solid(120, 300, blue),
	}
	set := region.NewSet()
	img := addImage(t, set, region.NewRectangle(geometry.Rect{X: 13, Y: 17, Width: 91, Height: 57}, region.KindImage), "p1")
	f, _ := img.Image()
	f.Scale = 1.7
	f.Offset = geometry.Pt(-9.5, 4.25)

	addImage(t, set, polygon(t, region.KindImage, geometry.Pt(150, 20), geometry.Pt(280, 40), geometry.Pt(230, 150), geometry.Pt(160, 120)), "p2")

	txt := region.NewRectangle(geometry.Rect{X: 20, Y: 120, Width: 110, Height: 40}, region.KindText)
	require.NoError(t, set.Add(txt))
	style := region.DefaultTextStyle()
	style.BackgroundColor = "#ffee00"
	style.FontSize = 18
	require.NoError(t, set.AssignText(txt.ID, "Only today", style))

	ptxt := polygon(t, region.KindText, geometry.Pt(10, 170), geometry.Pt(140, 175), geometry.Pt(120, 195))
	require.NoError(t, set.Add(ptxt))
	style.Align = region.AlignLeft
	require.NoError(t, set.AssignText(ptxt.ID, "Left", style))

	ft := region.NewFloatingText("Floating", geometry.Pt(250, 180))
	ft.Style.BackgroundColor = "rgba(0,0,0,0.5)"
	ft.Style.Align = region.AlignRight

	return src, Scene{BaseRef: "base", Regions: set, Texts: []*region.FloatingText{ft}}
}

func TestRenderScaleIsLinear(t *testing.T) {
	src, scene := richScene(t)
	r := New(src, nil, nil)

	one := newRecorder(300, 200)
	two := newRecorder(600, 400)
	require.Empty(t, r.Draw(context.Background(), one, scene, Options{Scale: 1}))
	require.Empty(t, r.Draw(context.Background(), two, scene, Options{Scale: 2}))

	require.Equal(t, one.kinds(), two.kinds())
	const eps = 1e-9
	for i := range one.ops {
		a, b := one.ops[i], two.ops[i]
		assert.InDelta(t, a.rect.X*2, b.rect.X, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.rect.Y*2, b.rect.Y, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.rect.Width*2, b.rect.Width, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.rect.Height*2, b.rect.Height, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.clip.Rect.X*2, b.clip.Rect.X, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.clip.Rect.Width*2, b.clip.Rect.Width, eps, "op %d %s", i, a.kind)
		assert.InDelta(t, a.font.Size*2, b.font.Size, eps, "op %d %s", i, a.kind)
		require.Len(t, b.points, len(a.points))
		for j := range a.points {
			assert.InDelta(t, a.points[j].X*2, b.points[j].X, eps, "op %d point %d", i, j)
			assert.InDelta(t, a.points[j].Y*2, b.points[j].Y, eps, "op %d point %d", i, j)
		}
		require.Len(t, b.clip.Polygon, len(a.clip.Polygon))
		for j := range a.clip.Polygon {
			assert.InDelta(t, a.clip.Polygon[j].X*2, b.clip.Polygon[j].X, eps)
			assert.InDelta(t, a.clip.Polygon[j].Y*2, b.clip.Polygon[j].Y, eps)
		}
	}
}

func TestRegionTextPlacement(t *testing.T) {
	tests := []struct {
		align region.Align
		want  geometry.Point
	}{
		{region.AlignLeft, geometry.Pt(105, 125)},
		{region.AlignCenter, geometry.Pt(200, 125)},
		{region.AlignRight, geometry.Pt(295, 125)},
	}
	for _, tt := range tests {
		t.Run(string(tt.align), func(t *testing.T) {
			set := region.NewSet()
			txt := region.NewRectangle(geometry.Rect{X: 100, Y: 100, Width: 200, Height: 50}, region.KindText)
			require.NoError(t, set.Add(txt))
			style := region.DefaultTextStyle()
			style.Align = tt.align
			require.NoError(t, set.AssignText(txt.ID, "Price", style))

			rec := newRecorder(800, 600)
			New(fakeSource{}, nil, nil).Draw(context.Background(), rec, Scene{Width: 400, Height: 300, Regions: set}, Options{Scale: 2})

			require.Equal(t, []string{"drawText"}, rec.kinds())
			assert.Equal(t, tt.want.Mul(2), rec.ops[0].points[0])
			assert.Equal(t, tt.align, rec.ops[0].align)
			assert.Equal(t, 32.0, rec.ops[0].font.Size)
		})
	}
}

func TestEmptyRegionTextDrawsNoBackground(t *testing.T) {
	set := region.NewSet()
	txt := region.NewRectangle(geometry.Rect{X: 10, Y: 10, Width: 100, Height: 40}, region.KindText)
	require.NoError(t, set.Add(txt))
	style := region.DefaultTextStyle()
	style.BackgroundColor = "#ffee00"
	require.NoError(t, set.AssignText(txt.ID, "", style))

	scene := Scene{Width: 200, Height: 100, Regions: set}
	rec := newRecorder(200, 100)
	New(fakeSource{}, nil, nil).Draw(context.Background(), rec, scene, Options{Scale: 1})
	assert.Empty(t, rec.kinds())

	require.NoError(t, set.AssignText(txt.ID, "Sale", style))
	rec = newRecorder(200, 100)
	New(fakeSource{}, nil, nil).Draw(context.Background(), rec, scene, Options{Scale: 1})
	require.Equal(t, []string{"fillRect", "drawText"}, rec.kinds())
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 100, Height: 40}, rec.ops[0].rect)
}

func TestFloatingTextBackgroundBox(t *testing.T) {
	ft := region.NewFloatingText("Hey", geometry.Pt(100, 50))
	ft.Style.BackgroundColor = "#ffffff"
	ft.Style.FontSize = 20

	rec := newRecorder(200, 100)
	New(fakeSource{}, nil, nil).Draw(context.Background(), rec, Scene{Width: 200, Height: 100, Texts: []*region.FloatingText{ft}}, Options{Scale: 1})

	require.Equal(t, []string{"fillRect", "drawText"}, rec.kinds())
	// 3 runes * 20 * 0.5 = 30 wide, centered on x=100.
	assert.Equal(t, geometry.Rect{X: 81, Y: 38, Width: 38, Height: 24}, rec.ops[0].rect)
}

func TestFailedImageDrawsPlaceholder(t *testing.T) {
	src := fakeSource{"base": solid(300, 200, color.White)}
	set := region.NewSet()
	rect := addImage(t, set, region.NewRectangle(geometry.Rect{X: 10, Y: 10, Width: 80, Height: 60}, region.KindImage), "https://gone.example/a.jpg")
	poly := addImage(t, set, polygon(t, region.KindImage, geometry.Pt(150, 10), geometry.Pt(250, 10), geometry.Pt(200, 90)), "https://gone.example/b.jpg")

	rec := newRecorder(300, 200)
	failures := New(src, nil, nil).Draw(context.Background(), rec, Scene{BaseRef: "base", Regions: set}, Options{Scale: 1})

	require.Len(t, failures, 2)
	assert.Equal(t, rect.ID, failures[0].RegionID)
	assert.Equal(t, poly.ID, failures[1].RegionID)
	assert.Error(t, failures[0].Err)

	assert.Equal(t, []string{"drawImage", "fillRect", "drawText", "fillPolygon", "drawText"}, rec.kinds())
	assert.Equal(t, placeholderFill, rec.ops[1].color)
	assert.Equal(t, "image unavailable", rec.ops[2].text)
}

func TestMissingBaseStillRenders(t *testing.T) {
	rec := newRecorder(100, 80)
	failures := New(fakeSource{}, nil, nil).Draw(context.Background(), rec, Scene{BaseRef: "nope", Width: 100, Height: 80}, Options{Scale: 1})
	require.Len(t, failures, 1)
	assert.Empty(t, failures[0].RegionID)
	assert.Equal(t, "fillRect", rec.ops[0].kind)
}

func TestRenderWithoutSize(t *testing.T) {
	_, err := New(fakeSource{}, nil, nil).Render(context.Background(), Scene{BaseRef: "nope"}, Options{Scale: 1})
	assert.ErrorIs(t, err, ErrEmptyScene)

	_, err = New(fakeSource{}, nil, nil).Render(context.Background(), Scene{Width: 10, Height: 10}, Options{})
	assert.Error(t, err)
}

func TestInteractiveOverlays(t *testing.T) {
	set := region.NewSet()
	r1 := addImage(t, set, region.NewRectangle(geometry.Rect{X: 10, Y: 10, Width: 80, Height: 60}, region.KindImage), "")
	scene := Scene{
		Width:    200,
		Height:   100,
		Regions:  set,
		Selected: r1.ID,
		Preview: annotate.Preview{
			State: annotate.DrawingRectangle,
			Rect:  geometry.Rect{X: 100, Y: 20, Width: 40, Height: 30},
		},
	}
	r := New(fakeSource{}, nil, nil)

	rec := newRecorder(200, 100)
	r.Draw(context.Background(), rec, scene, Options{Scale: 1, Interactive: true})
	assert.Equal(t, []string{"fillRect", "strokePolyline", "drawText", "strokeRect"}, rec.kinds())
	assert.Equal(t, rectStrokeSelected, rec.ops[1].color)
	assert.Equal(t, 3.0, rec.ops[1].width)
	assert.Equal(t, "Image 1", rec.ops[2].text)
	last := rec.ops[len(rec.ops)-1]
	assert.Equal(t, []float64{5, 5}, last.dash)
	assert.Equal(t, scene.Preview.Rect, last.rect)

	export := newRecorder(200, 100)
	r.Draw(context.Background(), export, scene, Options{Scale: 1})
	assert.Empty(t, export.ops)
}

func TestPolygonPreview(t *testing.T) {
	scene := Scene{
		Width:  100,
		Height: 100,
		Preview: annotate.Preview{
			State:  annotate.DrawingPolygon,
			Points: []geometry.Point{{X: 10, Y: 10}, {X: 50, Y: 10}},
			Cursor: geometry.Pt(40, 40),
		},
	}
	rec := newRecorder(200, 200)
	New(fakeSource{}, nil, nil).Draw(context.Background(), rec, scene, Options{Scale: 2, Interactive: true})
	assert.Equal(t, []string{"strokePolyline", "fillCircle", "fillCircle"}, rec.kinds())
	assert.Equal(t, []geometry.Point{{X: 20, Y: 20}, {X: 100, Y: 20}, {X: 80, Y: 80}}, rec.ops[0].points)
}

func TestLabel(t *testing.T) {
	txt := region.NewRectangle(geometry.Rect{Width: 10, Height: 10}, region.KindText)
	assert.Equal(t, "Text Area 2", Label(txt, 2))
	f, _ := txt.Text()
	f.Text = "Summer collection"
	assert.Equal(t, "Text: Summer col...", Label(txt, 2))
	poly := polygon(t, region.KindImage, geometry.Pt(0, 0), geometry.Pt(1, 0), geometry.Pt(0, 1))
	assert.Equal(t, "Polygon 1", Label(poly, 1))
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func closeTo(t *testing.T, want, got color.NRGBA) {
	t.Helper()
	const tol = 8
	diff := func(a, b uint8) int {
		if a > b {
			return int(a - b)
		}
		return int(b - a)
	}
	assert.True(t, diff(want.R, got.R) <= tol && diff(want.G, got.G) <= tol && diff(want.B, got.B) <= tol,
		"want %v got %v", want, got)
}

func TestRasterRenderClipsImages(t *testing.T) {
	src := fakeSource{
		"base": solid(100, 100, red),
		"p":    solid(200, 100, blue),
	}
	set := region.NewSet()
	addImage(t, set, region.NewRectangle(geometry.Rect{X: 25, Y: 25, Width: 50, Height: 50}, region.KindImage), "p")
	addImage(t, set, polygon(t, region.KindImage, geometry.Pt(0, 80), geometry.Pt(20, 80), geometry.Pt(20, 100), geometry.Pt(0, 100)), "p")

	res, err := New(src, nil, nil).Render(context.Background(), Scene{BaseRef: "base", Regions: set}, Options{Scale: 2})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 200), res.Image.Bounds())

	closeTo(t, blue, pixel(res.Image, 100, 100))
	// The cover-fitted image overflows horizontally; the overflow is clipped.
	closeTo(t, red, pixel(res.Image, 40, 100))
	closeTo(t, red, pixel(res.Image, 160, 100))
	closeTo(t, blue, pixel(res.Image, 10, 190))
	closeTo(t, red, pixel(res.Image, 60, 190))
}

func TestExport(t *testing.T) {
	src := fakeSource{"base": solid(120, 80, red)}
	r := New(src, nil, nil)

	out, err := r.Export(context.Background(), Scene{BaseRef: "base"}, ExportOptions{Scale: 2, Quality: 90})
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, out.Format)
	assert.Equal(t, "image/jpeg", out.ContentType)

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 240, 160), img.Bounds())

	_, err = r.Export(context.Background(), Scene{BaseRef: "base"}, ExportOptions{Scale: 4})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "brochure.jpg")
	require.NoError(t, WriteFile(path, []byte("data")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	assert.Error(t, WriteFile(filepath.Join(blocker, "brochure.jpg"), []byte("data")))
}

func TestScales(t *testing.T) {
	assert.InDelta(t, 0.4, PreviewScale(2000, 1000, 800), 1e-9)
	assert.Equal(t, 1.0, PreviewScale(400, 300, 800))
	assert.InDelta(t, 0.5, FitScale(1600, 1000, 800, 600), 1e-9)
	assert.InDelta(t, 0.6, FitScale(1000, 1000, 800, 600), 1e-9)
	assert.True(t, ValidExportScale(3))
	assert.False(t, ValidExportScale(0))
}

func TestParseColor(t *testing.T) {
	tests := map[string]color.NRGBA{
		"#000000":                {0, 0, 0, 255},
		"#fff":                   {255, 255, 255, 255},
		"#FF8800":                {255, 136, 0, 255},
		"#11223344":              {0x11, 0x22, 0x33, 0x44},
		"rgb(10, 20, 30)":        {10, 20, 30, 255},
		"rgba(255, 255, 255, 0)": {255, 255, 255, 0},
		"transparent":            {0, 0, 0, 0},
		" White ":                {255, 255, 255, 255},
	}
	for in, want := range tests {
		got, err := ParseColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "#12", "#zzzzzz", "rgb(1,2)", "hsl(1,2,3)", "rgba(1,2,3,4)"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}
