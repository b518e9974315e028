package geometry

import "math"

// CoverScale returns the smallest uniform scale at which an image of size
// (iw, ih) fully covers a (w, h) area.
func CoverScale(w, h, iw, ih float64) float64 {
	if iw <= 0 || ih <= 0 {
		return 0
	}
	return math.Max(w/iw, h/ih)
}

// CoverRect returns where an image of size (iw, ih) lands when cover-fitted
// into area, multiplied by userScale and displaced by offset. The result is
// centered on area before the offset is applied.
func CoverRect(area Rect, iw, ih, userScale float64, offset Point) Rect {
	s := CoverScale(area.Width, area.Height, iw, ih) * userScale
	dw, dh := iw*s, ih*s
	return Rect{
		X:      area.X + (area.Width-dw)/2 + offset.X,
		Y:      area.Y + (area.Height-dh)/2 + offset.Y,
		Width:  dw,
		Height: dh,
	}
}

// MaxOffset returns the symmetric pan budget for a (w, h) area at userScale s.
// At s >= 1 this is half the overflow; below 1 the shortfall is used as the
// budget instead, which limits drift without guaranteeing edge coverage.
func MaxOffset(w, h, s float64) Point {
	if s >= 1 {
		return Point{X: w * (s - 1) / 2, Y: h * (s - 1) / 2}
	}
	return Point{X: w * (1 - s) / 2, Y: h * (1 - s) / 2}
}

// ClampOffset limits offset to the pan budget of a (w, h) area at scale s.
func ClampOffset(w, h, s float64, offset Point) Point {
	m := MaxOffset(w, h, s)
	return Point{
		X: Clamp(offset.X, -m.X, m.X),
		Y: Clamp(offset.Y, -m.Y, m.Y),
	}
}
