// Package annotate implements the authoring state machine that turns pointer
// input into rectangle and polygon regions.
//
// In annotate mode a rectangle is drawn by press-drag-release and a polygon
// by successive clicks followed by Finish. In assign mode clicks select a
// region instead. All points are template-native pixels.
package annotate

import (
	"errors"
	"fmt"

	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// ErrTooFewPoints is returned by Finish when the polygon is not complete.
var ErrTooFewPoints = errors.New("polygon needs at least 3 points")

// ErrNotDrawing is returned by Finish outside polygon drawing.
var ErrNotDrawing = errors.New("no polygon in progress")

// State is the drawing state.
type State int

const (
	Idle State = iota
	DrawingRectangle
	DrawingPolygon
)

func (s State) String() string {
	switch s {
	case DrawingRectangle:
		return "drawing_rectangle"
	case DrawingPolygon:
		return "drawing_polygon"
	default:
		return "idle"
	}
}

// Mode selects what pointer input means.
type Mode string

const (
	ModeAnnotate Mode = "annotate"
	ModeAssign   Mode = "assign"
)

// Config selects what new regions look like.
type Config struct {
	Shape region.ShapeKind
	Kind  region.Kind
	// MinSize is the exclusive lower bound on both sides of a committed rectangle.
	MinSize float64
}

// DefaultConfig draws image rectangles larger than 10px.
func DefaultConfig() Config {
	return Config{Shape: region.ShapeRectangle, Kind: region.KindImage, MinSize: 10}
}

// Preview describes the in-progress shape for the renderer.
type Preview struct {
	State  State
	Rect   geometry.Rect
	Points []geometry.Point
	Cursor geometry.Point
}

// Active reports whether there is anything to draw.
func (p Preview) Active() bool {
	return p.State != Idle
}

// Engine is the annotation state machine. It is driven by one goroutine.
type Engine struct {
	regions  *region.Set
	cfg      Config
	mode     Mode
	state    State
	start    geometry.Point
	cursor   geometry.Point
	points   []geometry.Point
	selected string
}

// New returns an engine adding regions to set.
func New(set *region.Set, cfg Config) *Engine {
	if !cfg.Shape.Valid() {
		cfg.Shape = region.ShapeRectangle
	}
	if !cfg.Kind.Valid() {
		cfg.Kind = region.KindImage
	}
	return &Engine{regions: set, cfg: cfg, mode: ModeAnnotate}
}

func (e *Engine) State() State { return e.state }
func (e *Engine) Mode() Mode   { return e.mode }
func (e *Engine) Config() Config {
	return e.cfg
}

// SetMode switches between annotate and assign. Any drawing in progress is dropped.
func (e *Engine) SetMode(m Mode) {
	if m != ModeAnnotate && m != ModeAssign {
		return
	}
	e.Cancel()
	e.mode = m
}

// SetShape selects the shape for new regions, dropping any drawing in progress.
func (e *Engine) SetShape(s region.ShapeKind) error {
	if !s.Valid() {
		return fmt.Errorf("unknown shape %q", s)
	}
	if s != e.cfg.Shape {
		e.Cancel()
	}
	e.cfg.Shape = s
	return nil
}

// SetKind selects the content kind for new regions.
func (e *Engine) SetKind(k region.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("unknown region kind %q", k)
	}
	e.cfg.Kind = k
	return nil
}

// PointerDown handles a press at p.
func (e *Engine) PointerDown(p geometry.Point) {
	if e.mode == ModeAssign {
		e.toggleSelection(p)
		return
	}
	switch e.cfg.Shape {
	case region.ShapeRectangle:
		e.state = DrawingRectangle
		e.start, e.cursor = p, p
	case region.ShapePolygon:
		e.state = DrawingPolygon
		e.points = append(e.points, p)
		e.cursor = p
	}
}

// PointerMove tracks the pointer for the live preview.
func (e *Engine) PointerMove(p geometry.Point) {
	if e.state != Idle {
		e.cursor = p
	}
}

// PointerUp ends a rectangle drag. It returns the committed region, or nil
// when the drag was too small or nothing was being drawn.
func (e *Engine) PointerUp(p geometry.Point) (*region.Region, error) {
	if e.state != DrawingRectangle {
		return nil, nil
	}
	r := geometry.RectFromPoints(e.start, p)
	e.state = Idle
	e.cursor = p
	if r.Width <= e.cfg.MinSize || r.Height <= e.cfg.MinSize {
		return nil, nil
	}
	reg := region.NewRectangle(r, e.cfg.Kind)
	if err := e.regions.Add(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Finish commits the polygon in progress. With fewer than three points the
// points are kept and ErrTooFewPoints is returned.
func (e *Engine) Finish() (*region.Region, error) {
	if e.state != DrawingPolygon {
		return nil, ErrNotDrawing
	}
	if len(e.points) < region.MinPolygonPoints {
		return nil, fmt.Errorf("%w: have %d", ErrTooFewPoints, len(e.points))
	}
	reg, err := region.NewPolygon(e.points, e.cfg.Kind)
	if err != nil {
		return nil, err
	}
	if err := e.regions.Add(reg); err != nil {
		return nil, err
	}
	e.points = nil
	e.state = Idle
	return reg, nil
}

// Cancel discards any drawing in progress.
func (e *Engine) Cancel() {
	e.state = Idle
	e.points = nil
}

// Points returns a copy of the polygon vertices placed so far.
func (e *Engine) Points() []geometry.Point {
	return append([]geometry.Point(nil), e.points...)
}

// Preview returns the shape being drawn.
func (e *Engine) Preview() Preview {
	p := Preview{State: e.state, Cursor: e.cursor}
	switch e.state {
	case DrawingRectangle:
		p.Rect = geometry.RectFromPoints(e.start, e.cursor)
	case DrawingPolygon:
		p.Points = e.Points()
	}
	return p
}

// Selected returns the selected region id, or "".
func (e *Engine) Selected() string {
	return e.selected
}

// Select sets the selected region id directly.
func (e *Engine) Select(id string) {
	e.selected = id
}

// ClearSelection drops the current selection.
func (e *Engine) ClearSelection() {
	e.selected = ""
}

// HitTest returns the topmost region under p. Polygons are drawn after
// rectangles, so they are tested first, each group from the last added.
func (e *Engine) HitTest(p geometry.Point) (*region.Region, bool) {
	for _, group := range [][]*region.Region{e.regions.Polygons(), e.regions.Rectangles()} {
		for i := len(group) - 1; i >= 0; i-- {
			if group[i].Shape.Contains(p) {
				return group[i], true
			}
		}
	}
	return nil, false
}

func (e *Engine) toggleSelection(p geometry.Point) {
	r, ok := e.HitTest(p)
	if !ok {
		return
	}
	if e.selected == r.ID {
		e.selected = ""
		return
	}
	e.selected = r.ID
}
