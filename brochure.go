// Package brochure composes brochure images from templates.
//
// A template is a base image with replaceable regions. Image regions are
// filled with product pictures that are cover-fitted and clipped to the
// region's rectangle or polygon; text regions are filled with styled text.
// The composed result is rendered at an HD factor and encoded as JPEG, PNG
// or WebP.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		brochure "github.com/menta2k/brochure-composer"
//	)
//
//	func main() {
//		c := brochure.New()
//		defer c.Close()
//
//		tpl, err := brochure.LoadTemplate("weekly.json")
//		if err != nil {
//			log.Fatal(err)
//		}
//		out, err := c.Compose(context.Background(), tpl, brochure.Fill{
//			Images: map[string]string{"hero": "https://cdn.example.com/milk.jpg"},
//			Texts:  map[string]string{"price": "1.99"},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("%dx%d, %d bytes", out.Width, out.Height, len(out.Data))
//	}
//
// The package is a thin facade over the session manager in pkg/session. The
// HTTP server in internal/server exposes the same operations interactively.
package brochure

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/internal/utils"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/products"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// Version of the brochure composer
const Version = "1.0.0"

// Composer renders filled templates without an interactive session.
type Composer struct {
	manager *session.Manager
	export  render.ExportOptions
	logger  *zap.Logger
}

// DefaultExport is a 2x JPEG at quality 90.
var DefaultExport = render.ExportOptions{Scale: 2, Format: render.FormatJPEG, Quality: 90}

// New creates a Composer with default settings.
func New() *Composer {
	return NewWithConfig(session.DefaultConfig(), DefaultExport, nil)
}

// NewWithConfig creates a Composer with custom settings. A Composer runs
// on behalf of a local user, so image references may name local files.
func NewWithConfig(cfg session.Config, export render.ExportOptions, logger *zap.Logger, opts ...session.ManagerOption) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.LocalFiles = true
	opts = append([]session.ManagerOption{session.WithLogger(logger)}, opts...)
	return &Composer{
		manager: session.NewManager(cfg, opts...),
		export:  export,
		logger:  logger,
	}
}

// FloatingText is free text placed at a template-native point.
type FloatingText struct {
	Text  string
	At    geometry.Point
	Style *region.TextStyle
}

// Fill describes what goes into a template. Images and Texts are keyed by
// region ID. Products are preloaded and optimized before rendering, so
// their images can be referenced from Images.
type Fill struct {
	Images   map[string]string
	Texts    map[string]string
	Styles   map[string]region.TextStyle
	Floating []FloatingText
	Products []products.Product
}

// Compose fills tpl and exports it with the Composer's export options.
func (c *Composer) Compose(ctx context.Context, tpl *store.Template, fill Fill) (*render.Export, error) {
	return c.ComposeWith(ctx, tpl, fill, c.export)
}

// ComposeWith fills tpl and exports it with opts.
func (c *Composer) ComposeWith(ctx context.Context, tpl *store.Template, fill Fill, opts render.ExportOptions) (*render.Export, error) {
	sess, err := c.manager.Open(ctx, tpl)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = c.manager.Close(sess.ID)
	}()

	if len(fill.Products) > 0 {
		report, err := sess.LoadProducts(ctx, fill.Products)
		if err != nil {
			return nil, err
		}
		for ref, ferr := range report.Failed {
			c.logger.Warn("product image not preloaded", zap.String("ref", ref), zap.Error(ferr))
		}
	}
	for _, id := range slices.Sorted(maps.Keys(fill.Images)) {
		if err := sess.AssignImage(id, fill.Images[id]); err != nil {
			return nil, fmt.Errorf("image for region %s: %w", id, err)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(fill.Texts)) {
		style, ok := fill.Styles[id]
		if !ok {
			style = region.DefaultTextStyle()
		}
		if err := sess.AssignText(id, fill.Texts[id], style); err != nil {
			return nil, fmt.Errorf("text for region %s: %w", id, err)
		}
	}
	for _, ft := range fill.Floating {
		if _, err := sess.AddText(ft.Text, ft.At, ft.Style); err != nil {
			return nil, err
		}
	}
	return sess.Export(ctx, opts)
}

// ComposeFile composes the template stored at templatePath and writes the
// export to outPath. An empty outPath writes next to the template, named
// after its title. The written path is returned.
func (c *Composer) ComposeFile(ctx context.Context, templatePath, outPath string, fill Fill) (string, error) {
	if outPath != "" && !utils.IsImageFile(outPath) {
		return "", fmt.Errorf("output %s is not an image file", outPath)
	}
	tpl, err := LoadTemplate(templatePath)
	if err != nil {
		return "", err
	}
	out, err := c.Compose(ctx, tpl, fill)
	if err != nil {
		return "", err
	}
	if outPath == "" {
		outPath = utils.OutputPath(templatePath, tpl.Name, string(out.Format))
	}
	if err := render.WriteFile(outPath, out.Data); err != nil {
		return "", err
	}
	c.logger.Info("brochure written",
		zap.String("path", outPath),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
		zap.Int("failures", len(out.Failures)))
	return outPath, nil
}

// Close releases every open session.
func (c *Composer) Close() {
	c.manager.CloseAll()
}

// LoadTemplate reads a template document from a JSON file.
func LoadTemplate(path string) (*store.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	var tpl store.Template
	if err := tpl.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	return &tpl, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
