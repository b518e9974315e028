package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/brochure-composer/internal/utils"
	"github.com/menta2k/brochure-composer/pkg/annotate"
)

// Format is an export encoding.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat maps a file extension or name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ExportScales are the allowed HD export factors.
var ExportScales = []int{1, 2, 3}

// ValidExportScale reports whether s is an allowed HD factor.
func ValidExportScale(s int) bool {
	for _, v := range ExportScales {
		if v == s {
			return true
		}
	}
	return false
}

// PreviewScale returns the scale that brings the longest side of a w x h
// template down to maxDim, never enlarging.
func PreviewScale(w, h, maxDim int) float64 {
	long := math.Max(float64(w), float64(h))
	if long <= 0 || maxDim <= 0 {
		return 1
	}
	return math.Min(1, float64(maxDim)/long)
}

// FitScale returns min(maxW/w, maxH/h, 1).
func FitScale(w, h, maxW, maxH int) float64 {
	if w <= 0 || h <= 0 {
		return 1
	}
	return math.Min(1, math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h)))
}

// Encode writes img in format f. quality applies to JPEG and WebP.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	switch f {
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
}

// ExportOptions configures Export.
type ExportOptions struct {
	Scale   int
	Format  Format
	Quality int
}

// Export is a finished export. Data holds the complete encoded file.
type Export struct {
	Data        []byte
	Format      Format
	Width       int
	Height      int
	Failures    []Failure
	ContentType string
}

// Export renders scene at an HD factor without interactive overlays and
// encodes it. Nothing is returned unless encoding succeeded completely.
func (r *Renderer) Export(ctx context.Context, scene Scene, opts ExportOptions) (*Export, error) {
	if !ValidExportScale(opts.Scale) {
		return nil, fmt.Errorf("export scale must be one of %v, got %d", ExportScales, opts.Scale)
	}
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	scene.Preview = annotate.Preview{}
	scene.Selected, scene.SelectedText = "", ""

	res, err := r.Render(ctx, scene, Options{Scale: float64(opts.Scale)})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, res.Image, opts.Format, opts.Quality); err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	b := res.Image.Bounds()
	return &Export{
		Data:        buf.Bytes(),
		Format:      opts.Format,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Failures:    res.Failures,
		ContentType: opts.Format.ContentType(),
	}, nil
}

// WriteFile stores data at path through a temporary file in the same
// directory, so a failed write never leaves a partial file behind.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}
