package region

import (
	"fmt"
)

// Set is the insertion-ordered collection of regions owned by one editing
// session. It is not safe for concurrent use.
type Set struct {
	order []string
	byID  map[string]*Region
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{byID: make(map[string]*Region)}
}

// Len returns the number of regions.
func (s *Set) Len() int {
	return len(s.order)
}

// Add appends r. Polygons with fewer than three points are rejected.
func (s *Set) Add(r *Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, ok := s.byID[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	s.byID[r.ID] = r
	s.order = append(s.order, r.ID)
	return nil
}

// Get returns the region with id.
func (s *Set) Get(id string) (*Region, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Delete removes the region with id.
func (s *Set) Delete(id string) error {
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// All returns every region in insertion order.
func (s *Set) All() []*Region {
	out := make([]*Region, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Rectangles returns the rectangle regions in insertion order.
func (s *Set) Rectangles() []*Region {
	return s.filter(ShapeRectangle)
}

// Polygons returns the polygon regions in insertion order.
func (s *Set) Polygons() []*Region {
	return s.filter(ShapePolygon)
}

func (s *Set) filter(kind ShapeKind) []*Region {
	var out []*Region
	for _, id := range s.order {
		if r := s.byID[id]; r.Shape.ShapeKind() == kind {
			out = append(out, r)
		}
	}
	return out
}

// AssignImage sets the image reference of an image region. The transform
// is reset so a new picture starts cover-fitted and centered. Any reference
// is accepted; resolving it is the loader's job.
func (s *Set) AssignImage(id, ref string) error {
	r, err := s.Get(id)
	if err != nil {
		return err
	}
	f, ok := r.Image()
	if !ok {
		return fmt.Errorf("%w: region %s holds %s", ErrKindMismatch, id, r.Kind())
	}
	f.Ref = ref
	f.Scale = DefaultScale
	f.Offset.X, f.Offset.Y = 0, 0
	return nil
}

// AssignText sets the string and style of a text region.
func (s *Set) AssignText(id, text string, style TextStyle) error {
	r, err := s.Get(id)
	if err != nil {
		return err
	}
	f, ok := r.Text()
	if !ok {
		return fmt.Errorf("%w: region %s holds %s", ErrKindMismatch, id, r.Kind())
	}
	f.Text = text
	f.Style = style.Normalized()
	return nil
}

// SetStyle replaces only the style of a text region.
func (s *Set) SetStyle(id string, style TextStyle) error {
	r, err := s.Get(id)
	if err != nil {
		return err
	}
	f, ok := r.Text()
	if !ok {
		return fmt.Errorf("%w: region %s holds %s", ErrKindMismatch, id, r.Kind())
	}
	f.Style = style.Normalized()
	return nil
}

// ImageRefs returns the distinct assigned image references in draw order.
func (s *Set) ImageRefs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, group := range [][]*Region{s.Rectangles(), s.Polygons()} {
		for _, r := range group {
			if f, ok := r.Image(); ok && f.Assigned() && !seen[f.Ref] {
				seen[f.Ref] = true
				refs = append(refs, f.Ref)
			}
		}
	}
	return refs
}
