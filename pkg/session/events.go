package session

import (
	"errors"
	"fmt"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/placement"
	"github.com/menta2k/brochure-composer/pkg/region"
)

// EventType is the kind of an input event.
type EventType string

const (
	PointerDown EventType = "pointerdown"
	PointerMove EventType = "pointermove"
	PointerUp   EventType = "pointerup"
	KeyDown     EventType = "keydown"
)

// Event is one input event. X and Y are in the screen pixels of the
// surface's canvas; the session divides them by the surface's view scale.
type Event struct {
	Type    EventType `json:"type"`
	Surface View      `json:"surface"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Key     string    `json:"key,omitempty"`
}

// Outcome reports what an event changed. Redraw is false when the event
// left the scene untouched, so the caller can skip the repaint.
type Outcome struct {
	Redraw    bool                 `json:"redraw"`
	Committed *region.Region       `json:"-"`
	Transform *placement.Transform `json:"transform,omitempty"`
	Selected  string               `json:"selected,omitempty"`
	Message   string               `json:"message,omitempty"`
}

type drag struct {
	text   string
	grab   geometry.Point
	region string
	last   geometry.Point
}

func (d drag) active() bool { return d.text != "" || d.region != "" }

// Dispatch applies one event. It is the only place pointer and key input
// turn into state changes.
func (s *Session) Dispatch(ev Event) (Outcome, error) {
	if err := s.lock(); err != nil {
		return Outcome{}, err
	}
	defer s.mu.Unlock()

	if ev.Type == KeyDown {
		return s.key(ev)
	}
	switch ev.Surface {
	case ViewPreview:
		return s.previewPointer(ev)
	case ViewEditor, "":
		return s.editorPointer(ev)
	}
	return Outcome{}, fmt.Errorf("unknown surface %q", ev.Surface)
}

func (s *Session) native(ev Event, scale float64) geometry.Point {
	if scale <= 0 {
		scale = 1
	}
	return geometry.Pt(ev.X/scale, ev.Y/scale)
}

// editorPointer drives the annotation canvas. Outside annotate mode a press
// on a floating text starts dragging it instead.
func (s *Session) editorPointer(ev Event) (Outcome, error) {
	p := s.native(ev, s.editorScale)
	switch ev.Type {
	case PointerDown:
		if s.annotator.Mode() != annotate.ModeAnnotate {
			if t := s.hitText(p); t != nil {
				s.drag = drag{text: t.ID, grab: p.Sub(t.Position)}
				s.selectedText = t.ID
				return Outcome{Redraw: true, Selected: t.ID}, nil
			}
		}
		s.annotator.PointerDown(p)
		return Outcome{Redraw: true, Selected: s.annotator.Selected()}, nil

	case PointerMove:
		if s.drag.text != "" {
			if t, ok := s.text(s.drag.text); ok {
				t.Position = p.Sub(s.drag.grab)
			}
			return Outcome{Redraw: true}, nil
		}
		if s.annotator.State() == annotate.Idle {
			return Outcome{}, nil
		}
		s.annotator.PointerMove(p)
		return Outcome{Redraw: true}, nil

	case PointerUp:
		if s.drag.text != "" {
			s.drag = drag{}
			return Outcome{Redraw: true}, nil
		}
		if s.annotator.State() != annotate.DrawingRectangle {
			return Outcome{}, nil
		}
		reg, err := s.annotator.PointerUp(p)
		if err != nil {
			return Outcome{Redraw: true}, err
		}
		if reg == nil {
			return Outcome{Redraw: true, Message: "area too small, discarded"}, nil
		}
		return Outcome{Redraw: true, Committed: reg.Clone()}, nil
	}
	return Outcome{}, fmt.Errorf("unknown event type %q", ev.Type)
}

// hitText returns the topmost floating text under p.
func (s *Session) hitText(p geometry.Point) *region.FloatingText {
	for i := len(s.texts) - 1; i >= 0; i-- {
		if s.texts[i].Hit(p) {
			return s.texts[i]
		}
	}
	return nil
}

// previewPointer drives the preview canvas: pressing on an assigned image
// makes it the zoom target and dragging pans it.
func (s *Session) previewPointer(ev Event) (Outcome, error) {
	p := s.native(ev, s.previewScale)
	switch ev.Type {
	case PointerDown:
		reg := s.hitImage(p)
		if reg == nil {
			s.drag = drag{}
			s.zoomTarget = ""
			return Outcome{}, nil
		}
		s.drag = drag{region: reg.ID, last: p}
		s.zoomTarget = reg.ID
		return Outcome{Selected: reg.ID}, nil

	case PointerMove:
		if s.drag.region == "" {
			return Outcome{}, nil
		}
		d := p.Sub(s.drag.last)
		s.drag.last = p
		tr, err := s.placer.Pan(s.drag.region, d.X, d.Y)
		if err != nil {
			s.drag = drag{}
			return Outcome{}, err
		}
		return Outcome{Redraw: true, Transform: &tr}, nil

	case PointerUp:
		active := s.drag.active()
		s.drag = drag{}
		return Outcome{Redraw: active}, nil
	}
	return Outcome{}, fmt.Errorf("unknown event type %q", ev.Type)
}

// hitImage finds a region with an assigned image under p. Rectangles are
// matched by bounds and polygons by containment.
func (s *Session) hitImage(p geometry.Point) *region.Region {
	for _, group := range [][]*region.Region{s.regions.Rectangles(), s.regions.Polygons()} {
		for _, r := range group {
			f, ok := r.Image()
			if !ok || !f.Assigned() {
				continue
			}
			if r.Shape.Contains(p) {
				return r
			}
		}
	}
	return nil
}

func (s *Session) key(ev Event) (Outcome, error) {
	switch ev.Key {
	case "+", "=", "-", "0":
		if s.zoomTarget == "" {
			return Outcome{}, ErrNoZoomTarget
		}
		action := ZoomIn
		switch ev.Key {
		case "-":
			action = ZoomOut
		case "0":
			action = ZoomReset
		}
		tr, err := s.zoom(s.zoomTarget, action)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Redraw: true, Transform: &tr}, nil

	case "Enter":
		reg, err := s.annotator.Finish()
		if errors.Is(err, annotate.ErrNotDrawing) {
			return Outcome{}, nil
		}
		if err != nil {
			return Outcome{Redraw: true, Message: "polygon needs at least 3 points"}, err
		}
		return Outcome{Redraw: true, Committed: reg.Clone()}, nil

	case "Escape":
		if s.annotator.State() == annotate.Idle {
			return Outcome{}, nil
		}
		s.annotator.Cancel()
		return Outcome{Redraw: true}, nil

	case "Delete", "Backspace":
		if s.selectedText != "" {
			return Outcome{Redraw: true}, s.deleteText(s.selectedText)
		}
		if id := s.annotator.Selected(); id != "" {
			return Outcome{Redraw: true}, s.deleteRegion(id)
		}
		return Outcome{}, nil
	}
	return Outcome{}, nil
}
