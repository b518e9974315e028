// Package store persists brochure templates: a base image reference, the
// region definitions drawn over it and the users allowed to fill it in.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// ErrNotFound is returned when a template id is unknown.
var ErrNotFound = errors.New("template not found")

// Template is a persisted brochure template.
type Template struct {
	ID           string
	Name         string
	BaseImageRef string
	// Width and Height are the native size of the base image, when known.
	Width         int
	Height        int
	Regions       *region.Set
	AssignedUsers []string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AssignedTo reports whether userID may use the template.
func (t *Template) AssignedTo(userID string) bool {
	return slices.Contains(t.AssignedUsers, userID)
}

// Assign adds userID to the template's users. It reports false when the
// user was already assigned.
func (t *Template) Assign(userID string) bool {
	if userID == "" || t.AssignedTo(userID) {
		return false
	}
	t.AssignedUsers = append(t.AssignedUsers, userID)
	return true
}

// Unassign removes userID from the template's users.
func (t *Template) Unassign(userID string) bool {
	i := slices.Index(t.AssignedUsers, userID)
	if i < 0 {
		return false
	}
	t.AssignedUsers = slices.Delete(t.AssignedUsers, i, i+1)
	return true
}

// Coordinates is the shape-dependent geometry of a stored region.
// Rectangles use X, Y, Width and Height; polygons use Points.
type Coordinates struct {
	X      float64          `json:"x,omitempty"`
	Y      float64          `json:"y,omitempty"`
	Width  float64          `json:"width,omitempty"`
	Height float64          `json:"height,omitempty"`
	Points []geometry.Point `json:"points,omitempty"`
}

// RegionRecord is the stored form of a region.
type RegionRecord struct {
	ID          string            `json:"id"`
	Kind        region.Kind       `json:"kind"`
	Shape       region.ShapeKind  `json:"shape"`
	Coordinates Coordinates       `json:"coordinates"`
	TextStyle   *region.TextStyle `json:"textStyle,omitempty"`
}

// EncodeRegion converts a region into its stored form. Image assignments
// and text content belong to an editing session and are not stored.
func EncodeRegion(r *region.Region) RegionRecord {
	rec := RegionRecord{ID: r.ID, Kind: r.Kind(), Shape: r.Shape.ShapeKind()}
	switch s := r.Shape.(type) {
	case region.Rectangle:
		rec.Coordinates = Coordinates{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
	case region.Polygon:
		rec.Coordinates = Coordinates{Points: append([]geometry.Point(nil), s.Points...)}
	}
	if t, ok := r.Text(); ok {
		st := t.Style
		rec.TextStyle = &st
	}
	return rec
}

// DecodeRegion rebuilds a region from its stored form.
func DecodeRegion(rec RegionRecord) (*region.Region, error) {
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("region %s: unknown kind %q", rec.ID, rec.Kind)
	}
	var (
		r   *region.Region
		err error
	)
	switch rec.Shape {
	case region.ShapeRectangle:
		c := rec.Coordinates
		r = region.NewRectangle(geometry.Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}, rec.Kind)
	case region.ShapePolygon:
		r, err = region.NewPolygon(rec.Coordinates.Points, rec.Kind)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", rec.ID, err)
		}
	default:
		return nil, fmt.Errorf("region %s: unknown shape %q", rec.ID, rec.Shape)
	}
	if rec.ID != "" {
		r.ID = rec.ID
	}
	if t, ok := r.Text(); ok && rec.TextStyle != nil {
		t.Style = rec.TextStyle.Normalized()
	}
	return r, r.Validate()
}

// EncodeRegions converts a set in insertion order.
func EncodeRegions(set *region.Set) []RegionRecord {
	if set == nil {
		return []RegionRecord{}
	}
	all := set.All()
	out := make([]RegionRecord, 0, len(all))
	for _, r := range all {
		out = append(out, EncodeRegion(r))
	}
	return out
}

// DecodeRegions rebuilds a set, keeping record order.
func DecodeRegions(recs []RegionRecord) (*region.Set, error) {
	set := region.NewSet()
	for i, rec := range recs {
		r, err := DecodeRegion(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if err := set.Add(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return set, nil
}

type document struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	BaseImageRef  string         `json:"baseImageRef"`
	Width         int            `json:"width,omitempty"`
	Height        int            `json:"height,omitempty"`
	Regions       []RegionRecord `json:"regions"`
	AssignedUsers []string       `json:"assignedUsers"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// MarshalJSON writes the stored template format.
func (t *Template) MarshalJSON() ([]byte, error) {
	users := t.AssignedUsers
	if users == nil {
		users = []string{}
	}
	return json.Marshal(document{
		ID:            t.ID,
		Name:          t.Name,
		BaseImageRef:  t.BaseImageRef,
		Width:         t.Width,
		Height:        t.Height,
		Regions:       EncodeRegions(t.Regions),
		AssignedUsers: users,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	})
}

// UnmarshalJSON reads the stored template format.
func (t *Template) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	set, err := DecodeRegions(doc.Regions)
	if err != nil {
		return fmt.Errorf("template %s: %w", doc.ID, err)
	}
	*t = Template{
		ID:            doc.ID,
		Name:          doc.Name,
		BaseImageRef:  doc.BaseImageRef,
		Width:         doc.Width,
		Height:        doc.Height,
		Regions:       set,
		AssignedUsers: doc.AssignedUsers,
		CreatedBy:     doc.CreatedBy,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	return nil
}
