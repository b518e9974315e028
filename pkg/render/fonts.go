package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

type weightClass int

const (
	weightRegular weightClass = iota
	weightMedium
	weightBold
)

func classify(weight string) weightClass {
	switch strings.ToLower(strings.TrimSpace(weight)) {
	case "bold", "bolder":
		return weightBold
	case "", "normal", "lighter":
		return weightRegular
	}
	n, err := strconv.Atoi(weight)
	if err != nil {
		return weightRegular
	}
	switch {
	case n >= 600:
		return weightBold
	case n >= 500:
		return weightMedium
	default:
		return weightRegular
	}
}

var monospaceFamilies = map[string]bool{
	"courier new": true,
	"courier":     true,
	"monospace":   true,
}

type faceKey struct {
	source string
	size   float64
}

// FontBook maps CSS-style family and weight names onto font sources.
// Families are looked up as TrueType files in Dir first
// ("Arial.ttf", "Arial-Bold.ttf"); anything missing falls back to the
// bundled Go fonts, with monospace families mapped to Go Mono.
type FontBook struct {
	Dir string

	mu      sync.Mutex
	sources map[string]*text.FontSource
	faces   map[faceKey]text.Face
}

// NewFontBook returns a font book reading extra fonts from dir, which may be empty.
func NewFontBook(dir string) *FontBook {
	return &FontBook{
		Dir:     dir,
		sources: make(map[string]*text.FontSource),
		faces:   make(map[faceKey]text.Face),
	}
}

// Face returns a face for f.
func (b *FontBook) Face(f Font) (text.Face, error) {
	size := f.Size
	if size <= 0 {
		size = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	src, key, err := b.source(f.Family, classify(f.Weight))
	if err != nil {
		return nil, err
	}
	fk := faceKey{source: key, size: size}
	if face, ok := b.faces[fk]; ok {
		return face, nil
	}
	face := src.Face(size)
	b.faces[fk] = face
	return face, nil
}

func (b *FontBook) source(family string, w weightClass) (*text.FontSource, string, error) {
	if b.Dir != "" && family != "" {
		name := family
		switch w {
		case weightBold:
			name += "-Bold"
		case weightMedium:
			name += "-Medium"
		}
		path := filepath.Join(b.Dir, name+".ttf")
		if src, ok := b.sources[path]; ok {
			return src, path, nil
		}
		if _, err := os.Stat(path); err == nil {
			src, err := text.NewFontSourceFromFile(path)
			if err != nil {
				return nil, "", fmt.Errorf("failed to load font %s: %w", path, err)
			}
			b.sources[path] = src
			return src, path, nil
		}
	}

	key, data := bundled(family, w)
	if src, ok := b.sources[key]; ok {
		return src, key, nil
	}
	src, err := text.NewFontSource(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse bundled font %s: %w", key, err)
	}
	b.sources[key] = src
	return src, key, nil
}

func bundled(family string, w weightClass) (string, []byte) {
	if monospaceFamilies[strings.ToLower(family)] {
		if w == weightBold {
			return "go-mono-bold", gomonobold.TTF
		}
		return "go-mono", gomono.TTF
	}
	switch w {
	case weightBold:
		return "go-bold", gobold.TTF
	case weightMedium:
		return "go-medium", gomedium.TTF
	default:
		return "go-regular", goregular.TTF
	}
}
