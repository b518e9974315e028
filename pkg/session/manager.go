package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/placement"
	"github.com/menta2k/brochure-composer/pkg/preprocess"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Config holds what every new session is built from.
type Config struct {
	Loader    loader.Config
	Annotate  annotate.Config
	Placement placement.Config
	Optimizer preprocess.Optimizer
	// Remover may be nil, which disables background removal.
	Remover preprocess.BackgroundRemover
	// EditorWidth and EditorHeight bound the annotation canvas.
	EditorWidth  int
	EditorHeight int
	// PreviewMaxDim bounds the longest side of the preview canvas.
	PreviewMaxDim int
	// PreloadConcurrency limits parallel product image loads.
	PreloadConcurrency int
	// LocalFiles lets image references name files on the local disk.
	// Leave it off for anything driven by remote clients.
	LocalFiles bool
}

// DefaultConfig returns the settings of the web editor.
func DefaultConfig() Config {
	return Config{
		Loader:             loader.DefaultConfig(),
		Annotate:           annotate.DefaultConfig(),
		Placement:          placement.DefaultConfig(),
		Optimizer:          preprocess.DefaultOptimizer(),
		Remover:            preprocess.NewWhiteKeyRemover(18),
		EditorWidth:        800,
		EditorHeight:       600,
		PreviewMaxDim:      800,
		PreloadConcurrency: 3,
	}
}

// Manager creates, finds and tears down sessions.
type Manager struct {
	cfg        Config
	fonts      *render.FontBook
	logger     *zap.Logger
	httpClient *http.Client

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFonts shares a font book between sessions.
func WithFonts(fonts *render.FontBook) ManagerOption {
	return func(m *Manager) { m.fonts = fonts }
}

// WithHTTPClient sets the client used by every session loader.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

// NewManager returns a Manager with no sessions.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   zap.NewNop(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fonts == nil {
		m.fonts = render.NewFontBook("")
	}
	return m
}

// Open starts a session on tpl. The base image is loaded to learn the native
// size; when it cannot be loaded the stored size is used instead.
func (m *Manager) Open(ctx context.Context, tpl *store.Template) (*Session, error) {
	if tpl == nil {
		return nil, errors.New("nil template")
	}
	lopts := []loader.Option{loader.WithLogger(m.logger), loader.WithLocalFiles(m.cfg.LocalFiles)}
	if m.httpClient != nil {
		lopts = append(lopts, loader.WithHTTPClient(m.httpClient))
	}
	ld := loader.New(m.cfg.Loader, lopts...)

	w, h := tpl.Width, tpl.Height
	if tpl.BaseImageRef != "" {
		base, err := ld.Load(ctx, tpl.BaseImageRef)
		switch {
		case err == nil:
			w, h = base.Bounds().Dx(), base.Bounds().Dy()
		case w > 0 && h > 0:
			m.logger.Warn("template base image unavailable, using stored size",
				zap.String("template", tpl.ID), zap.Error(err))
		default:
			return nil, fmt.Errorf("failed to load template base image: %w", err)
		}
	}
	if w <= 0 || h <= 0 {
		return nil, render.ErrEmptyScene
	}

	set := region.NewSet()
	if tpl.Regions != nil {
		for _, r := range tpl.Regions.All() {
			if err := set.Add(r.Clone()); err != nil {
				return nil, err
			}
		}
	}
	cp := *tpl
	cp.Regions = nil

	s := &Session{
		ID:           uuid.NewString(),
		template:     &cp,
		width:        w,
		height:       h,
		regions:      set,
		annotator:    annotate.New(set, m.cfg.Annotate),
		placer:       placement.NewWithConfig(set, m.cfg.Placement),
		loader:       ld,
		renderer:     render.New(ld, m.fonts, m.logger),
		optimizer:    m.cfg.Optimizer,
		remover:      m.cfg.Remover,
		logger:       m.logger.With(zap.String("template", tpl.ID)),
		editorScale:  render.FitScale(w, h, m.cfg.EditorWidth, m.cfg.EditorHeight),
		previewScale: render.PreviewScale(w, h, m.cfg.PreviewMaxDim),
		preloadLimit: m.cfg.PreloadConcurrency,
		touched:      time.Now(),
	}
	s.logger = s.logger.With(zap.String("session", s.ID))

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session opened",
		zap.String("session", s.ID),
		zap.String("template", tpl.ID),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("regions", set.Len()))
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears down a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return s.Close()
}

// CloseIdle closes sessions untouched for longer than maxIdle and returns
// how many were closed.
func (m *Manager) CloseIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Touched().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		_ = s.Close()
		m.logger.Info("idle session closed", zap.String("session", s.ID))
	}
	return len(idle)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		_ = s.Close()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
