package region

import (
	"strings"

	"github.com/menta2k/brochure-composer/pkg/geometry"
)

// Align is the horizontal text alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Transparent is the background value that disables the text background fill.
const Transparent = "transparent"

// FontFamilies lists the families offered by the style editor.
var FontFamilies = []string{
	"Arial", "Helvetica", "Times New Roman", "Georgia", "Verdana",
	"Tahoma", "Trebuchet MS", "Impact", "Comic Sans MS", "Courier New",
}

// FontWeights lists the accepted weight keywords.
var FontWeights = []string{
	"normal", "bold", "100", "200", "300", "400", "500", "600", "700", "800", "900",
}

// TextStyle describes how a text payload is drawn. FontSize is in
// template-native pixels.
type TextStyle struct {
	FontFamily      string  `json:"fontFamily"`
	FontSize        float64 `json:"fontSize"`
	FontWeight      string  `json:"fontWeight"`
	Color           string  `json:"color"`
	BackgroundColor string  `json:"backgroundColor"`
	Align           Align   `json:"textAlign"`
}

// DefaultTextStyle is the style new text regions start with.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontFamily:      "Arial",
		FontSize:        16,
		FontWeight:      "normal",
		Color:           "#000000",
		BackgroundColor: Transparent,
		Align:           AlignCenter,
	}
}

// HasBackground reports whether a background fill should be drawn.
func (s TextStyle) HasBackground() bool {
	bg := strings.TrimSpace(s.BackgroundColor)
	return bg != "" && !strings.EqualFold(bg, Transparent)
}

// Normalized fills unset fields from DefaultTextStyle.
func (s TextStyle) Normalized() TextStyle {
	d := DefaultTextStyle()
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.FontWeight == "" {
		s.FontWeight = d.FontWeight
	}
	if s.Color == "" {
		s.Color = d.Color
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = d.BackgroundColor
	}
	switch s.Align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		s.Align = d.Align
	}
	return s
}

// FloatingText is a text payload anchored at a free point. It is not part of
// the persisted template.
type FloatingText struct {
	ID       string
	Text     string
	Position geometry.Point
	Style    TextStyle
}

// NewFloatingText places text at pos with the default style.
func NewFloatingText(text string, pos geometry.Point) *FloatingText {
	return &FloatingText{ID: NewID(), Text: text, Position: pos, Style: DefaultTextStyle()}
}

// ApproxBounds estimates the box covered by the text without font metrics:
// each glyph is taken as 0.6 em wide and the line as 1 em tall, centered
// vertically on the anchor.
func (f *FloatingText) ApproxBounds() geometry.Rect {
	w := float64(len([]rune(f.Text))) * f.Style.FontSize * 0.6
	h := f.Style.FontSize
	x := f.Position.X
	switch f.Style.Align {
	case AlignCenter:
		x -= w / 2
	case AlignRight:
		x -= w
	}
	return geometry.Rect{X: x, Y: f.Position.Y - h/2, Width: w, Height: h}
}

// Hit reports whether p falls on the text.
func (f *FloatingText) Hit(p geometry.Point) bool {
	return f.ApproxBounds().Contains(p)
}
