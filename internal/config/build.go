package config

import (
	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/placement"
	"github.com/menta2k/brochure-composer/pkg/preprocess"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// LoaderOptions converts the loader section.
func (c *Config) LoaderOptions() loader.Config {
	l := c.Loader
	return loader.Config{
		Timeout:       l.Timeout,
		RetryDelay:    l.RetryDelay,
		UserAgent:     l.UserAgent,
		Origin:        l.Origin,
		ProxyURL:      l.ProxyURL,
		RelayURL:      l.RelayURL,
		DriveRelayURL: l.DriveRelayURL,
		MaxBytes:      l.MaxBytes,
	}
}

// RedisOptions converts the redis section.
func (c *Config) RedisOptions() store.RedisConfig {
	return store.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TTL,
		Prefix:   c.Redis.KeyPrefix,
	}
}

// ExportOptions returns the default export settings.
func (c *Config) ExportOptions() (render.ExportOptions, error) {
	f, err := render.ParseFormat(c.Render.ExportFormat)
	if err != nil {
		return render.ExportOptions{}, err
	}
	return render.ExportOptions{Scale: c.Render.ExportScale, Format: f, Quality: c.Render.Quality}, nil
}

// SessionOptions builds the session manager configuration, including the
// background remover.
func (c *Config) SessionOptions() (session.Config, error) {
	p := c.Preprocess
	remover, err := preprocess.NewRemover(preprocess.RemoverConfig{
		Method:            p.RemovalMethod,
		WhiteTolerance:    p.WhiteTolerance,
		GrabCutIterations: p.GrabCutIterations,
		GrabCutBorder:     p.GrabCutBorder,
		MaxConcurrent:     p.MaxConcurrent,
	})
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Loader: c.LoaderOptions(),
		Annotate: annotate.Config{
			Shape:   region.ShapeKind(c.Annotate.Shape),
			Kind:    region.Kind(c.Annotate.Kind),
			MinSize: c.Annotate.MinSize,
		},
		Placement:          placement.DefaultConfig(),
		Optimizer:          preprocess.Optimizer{MaxWidth: p.MaxWidth, MaxHeight: p.MaxHeight, Quality: p.Quality},
		Remover:            remover,
		EditorWidth:        c.Render.EditorWidth,
		EditorHeight:       c.Render.EditorHeight,
		PreviewMaxDim:      c.Render.PreviewMaxDim,
		PreloadConcurrency: c.Loader.Preload,
	}, nil
}
