package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

func sampleRegions(t *testing.T) *region.Set {
	t.Helper()
	set := region.NewSet()
	require.NoError(t, set.Add(region.NewRectangle(geometry.Rect{X: 10, Y: 20, Width: 300, Height: 150}, region.KindImage)))

	poly, err := region.NewPolygon([]geometry.Point{{X: 400, Y: 50}, {X: 550, Y: 60}, {X: 480, Y: 200}}, region.KindImage)
	require.NoError(t, err)
	require.NoError(t, set.Add(poly))

	txt := region.NewRectangle(geometry.Rect{X: 0, Y: 0, Width: 120, Height: 40}, region.KindText)
	require.NoError(t, set.Add(txt))
	style := region.DefaultTextStyle()
	style.FontFamily = "Georgia"
	style.FontSize = 28
	style.Align = region.AlignRight
	require.NoError(t, set.AssignText(txt.ID, "", style))
	return set
}

func TestRegionRoundTrip(t *testing.T) {
	set := sampleRegions(t)

	data, err := json.Marshal(EncodeRegions(set))
	require.NoError(t, err)

	var recs []RegionRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	back, err := DecodeRegions(recs)
	require.NoError(t, err)

	want, got := set.All(), back.All()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Kind(), got[i].Kind())
		assert.Equal(t, want[i].Shape, got[i].Shape)
	}
	ts, ok := got[2].Text()
	require.True(t, ok)
	assert.Equal(t, "Georgia", ts.Style.FontFamily)
	assert.Equal(t, region.AlignRight, ts.Style.Align)
}

func TestCoordinatesWireFormat(t *testing.T) {
	set := sampleRegions(t)
	data, err := json.Marshal(EncodeRegions(set))
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "rectangle", raw[0]["shape"])
	assert.Equal(t, map[string]any{"x": 10.0, "y": 20.0, "width": 300.0, "height": 150.0}, raw[0]["coordinates"])
	assert.NotContains(t, raw[0], "textStyle")

	assert.Equal(t, "polygon", raw[1]["shape"])
	coords := raw[1]["coordinates"].(map[string]any)
	assert.Len(t, coords["points"], 3)

	assert.Equal(t, "text", raw[2]["kind"])
	assert.Contains(t, raw[2], "textStyle")
}

func TestDecodeRejectsBadRecords(t *testing.T) {
	tests := map[string]RegionRecord{
		"kind":    {ID: "a", Kind: "video", Shape: region.ShapeRectangle},
		"shape":   {ID: "a", Kind: region.KindImage, Shape: "circle"},
		"polygon": {ID: "a", Kind: region.KindImage, Shape: region.ShapePolygon, Coordinates: Coordinates{Points: []geometry.Point{{X: 1}, {Y: 1}}}},
	}
	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRegion(rec)
			assert.Error(t, err)
		})
	}

	_, err := DecodeRegions([]RegionRecord{
		{ID: "dup", Kind: region.KindImage, Shape: region.ShapeRectangle},
		{ID: "dup", Kind: region.KindImage, Shape: region.ShapeRectangle},
	})
	assert.ErrorIs(t, err, region.ErrDuplicateID)
}

func TestTemplateAssignment(t *testing.T) {
	tpl := &Template{}
	assert.True(t, tpl.Assign("u1"))
	assert.False(t, tpl.Assign("u1"))
	assert.False(t, tpl.Assign(""))
	assert.True(t, tpl.AssignedTo("u1"))
	assert.True(t, tpl.Unassign("u1"))
	assert.False(t, tpl.Unassign("u1"))
	assert.Empty(t, tpl.AssignedUsers)
}

// storeSuite runs the same contract against every implementation.
func storeSuite(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	first := &Template{Name: "Weekly", BaseImageRef: "https://cdn.example/base.jpg", Width: 1200, Height: 1600, Regions: sampleRegions(t)}
	require.NoError(t, s.Save(ctx, first))
	require.NotEmpty(t, first.ID)
	require.False(t, first.CreatedAt.IsZero())

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly", got.Name)
	assert.Equal(t, first.BaseImageRef, got.BaseImageRef)
	assert.Equal(t, 1200, got.Width)
	assert.Equal(t, 3, got.Regions.Len())
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	// Mutating the returned copy does not touch the store.
	got.Name = "changed"
	again, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly", again.Name)

	second := &Template{Name: "Monthly", CreatedAt: first.CreatedAt.Add(time.Second)}
	require.NoError(t, s.Save(ctx, second))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, Assign(ctx, s, second.ID, "user-7"))
	mine, err := ForUser(ctx, s, "user-7")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, second.ID, mine[0].ID)

	require.NoError(t, Unassign(ctx, s, second.ID, "user-7"))
	mine, err = ForUser(ctx, s, "user-7")
	require.NoError(t, err)
	assert.Empty(t, mine)

	assert.ErrorIs(t, Assign(ctx, s, "missing", "user-7"), ErrNotFound)

	require.NoError(t, s.Delete(ctx, first.ID))
	_, err = s.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	storeSuite(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "test:"}, nil)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	storeSuite(t, s)
	assert.True(t, mr.Exists("test:templates"))
}

func TestRedisStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisConfig{Addr: mr.Addr(), TTL: time.Minute}, nil)
	defer s.Close()
	ctx := context.Background()

	tpl := &Template{Name: "Flash sale"}
	require.NoError(t, s.Save(ctx, tpl))
	assert.Equal(t, time.Minute, mr.TTL("brochure:template:"+tpl.ID))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, err := mr.SMembers("brochure:templates")
	if err == nil {
		assert.Empty(t, members)
	}
}
