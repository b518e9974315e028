// Package session holds the state of one brochure editing session.
//
// A Session is created from a stored template, owns the region set, the
// floating texts, the annotation and placement engines and the image
// caches, and is torn down explicitly with Close. Nothing here is shared
// between sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/brochure-composer/pkg/annotate"
	"github.com/menta2k/brochure-composer/pkg/geometry"
	"github.com/menta2k/brochure-composer/pkg/loader"
	"github.com/menta2k/brochure-composer/pkg/placement"
	"github.com/menta2k/brochure-composer/pkg/preprocess"
	"github.com/menta2k/brochure-composer/pkg/products"
	"github.com/menta2k/brochure-composer/pkg/region"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/store"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrTextNotFound is returned for unknown floating text ids.
	ErrTextNotFound = errors.New("floating text not found")
	// ErrNoZoomTarget is returned by zoom keys when no region is targeted.
	ErrNoZoomTarget = errors.New("no region selected for zoom")
)

// Session is one editing context over a template. Its methods are safe for
// concurrent use, but events are applied one at a time in arrival order.
type Session struct {
	ID string

	mu        sync.Mutex
	closed    bool
	template  *store.Template
	width     int
	height    int
	regions   *region.Set
	texts     []*region.FloatingText
	annotator *annotate.Engine
	placer    *placement.Engine
	loader    *loader.Loader
	renderer  *render.Renderer
	optimizer preprocess.Optimizer
	remover   preprocess.BackgroundRemover
	logger    *zap.Logger

	products     []products.Product
	zoomTarget   string
	selectedText string
	drag         drag
	editorScale  float64
	previewScale float64
	preloadLimit int
	touched      time.Time
}

// Template returns a copy of the template the session was opened on. Save
// updates its ID and timestamps.
func (s *Session) Template() *store.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl := *s.template
	tpl.AssignedUsers = append([]string(nil), s.template.AssignedUsers...)
	return &tpl
}

// Size returns the native template size.
func (s *Session) Size() (int, int) {
	return s.width, s.height
}

// Scales returns the editor and preview view scales.
func (s *Session) Scales() (editor, preview float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editorScale, s.previewScale
}

// Touched returns the time of the last operation.
func (s *Session) Touched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// lock acquires the session and fails once it is closed.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.touched = time.Now()
	return nil
}

// Regions returns a deep copy of the current regions in insertion order.
func (s *Session) Regions() ([]*region.Region, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	all := s.regions.All()
	out := make([]*region.Region, len(all))
	for i, r := range all {
		out[i] = r.Clone()
	}
	return out, nil
}

// Texts returns copies of the floating texts.
func (s *Session) Texts() ([]region.FloatingText, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]region.FloatingText, len(s.texts))
	for i, t := range s.texts {
		out[i] = *t
	}
	return out, nil
}

// Status is the editor state reported to clients.
type Status struct {
	Mode         annotate.Mode    `json:"mode"`
	State        string           `json:"state"`
	Shape        region.ShapeKind `json:"shape"`
	Kind         region.Kind      `json:"kind"`
	Selected     string           `json:"selected,omitempty"`
	SelectedText string           `json:"selected_text,omitempty"`
	ZoomTarget   string           `json:"zoom_target,omitempty"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	EditorScale  float64          `json:"editor_scale"`
	PreviewScale float64          `json:"preview_scale"`
}

// Status returns the current editor state.
func (s *Session) Status() (Status, error) {
	if err := s.lock(); err != nil {
		return Status{}, err
	}
	defer s.mu.Unlock()
	cfg := s.annotator.Config()
	return Status{
		Mode:         s.annotator.Mode(),
		State:        s.annotator.State().String(),
		Shape:        cfg.Shape,
		Kind:         cfg.Kind,
		Selected:     s.annotator.Selected(),
		SelectedText: s.selectedText,
		ZoomTarget:   s.zoomTarget,
		Width:        s.width,
		Height:       s.height,
		EditorScale:  s.editorScale,
		PreviewScale: s.previewScale,
	}, nil
}

// SetMode switches the editor between annotating and assigning.
func (s *Session) SetMode(m annotate.Mode) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.annotator.SetMode(m)
	return nil
}

// SetShape selects the shape drawn by the next annotation.
func (s *Session) SetShape(shape region.ShapeKind) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.annotator.SetShape(shape)
}

// SetKind selects the content kind of the next annotation.
func (s *Session) SetKind(k region.Kind) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.annotator.SetKind(k)
}

// AssignImage fills an image region with ref and resets its transform.
func (s *Session) AssignImage(id, ref string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.regions.AssignImage(id, loader.NormalizeDriveURL(ref))
}

// AssignText fills a text region.
func (s *Session) AssignText(id, text string, style region.TextStyle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.regions.AssignText(id, text, style)
}

// SetStyle restyles a text region, keeping its text.
func (s *Session) SetStyle(id string, style region.TextStyle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.regions.SetStyle(id, style)
}

// DeleteRegion removes a region and any selection pointing at it.
func (s *Session) DeleteRegion(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.deleteRegion(id)
}

func (s *Session) deleteRegion(id string) error {
	if err := s.regions.Delete(id); err != nil {
		return err
	}
	if s.annotator.Selected() == id {
		s.annotator.ClearSelection()
	}
	if s.zoomTarget == id {
		s.zoomTarget = ""
	}
	if s.drag.region == id {
		s.drag = drag{}
	}
	return nil
}

// AddText places a floating text at a native template point.
func (s *Session) AddText(text string, at geometry.Point, style *region.TextStyle) (region.FloatingText, error) {
	if err := s.lock(); err != nil {
		return region.FloatingText{}, err
	}
	defer s.mu.Unlock()
	t := region.NewFloatingText(text, at)
	if style != nil {
		t.Style = style.Normalized()
	}
	s.texts = append(s.texts, t)
	s.selectedText = t.ID
	return *t, nil
}

// UpdateText changes the string and style of a floating text.
func (s *Session) UpdateText(id, text string, style region.TextStyle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	t, ok := s.text(id)
	if !ok {
		return ErrTextNotFound
	}
	t.Text = text
	t.Style = style.Normalized()
	return nil
}

// DeleteText removes a floating text.
func (s *Session) DeleteText(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.deleteText(id)
}

func (s *Session) deleteText(id string) error {
	for i, t := range s.texts {
		if t.ID == id {
			s.texts = append(s.texts[:i], s.texts[i+1:]...)
			if s.selectedText == id {
				s.selectedText = ""
			}
			if s.drag.text == id {
				s.drag = drag{}
			}
			return nil
		}
	}
	return ErrTextNotFound
}

func (s *Session) text(id string) (*region.FloatingText, bool) {
	for _, t := range s.texts {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// SetZoomTarget chooses the region the zoom keys act on. An empty id clears it.
func (s *Session) SetZoomTarget(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if id != "" {
		if _, err := s.regions.Get(id); err != nil {
			return err
		}
	}
	s.zoomTarget = id
	return nil
}

// ZoomTarget returns the region the zoom keys act on.
func (s *Session) ZoomTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomTarget
}

// ZoomAction names a transform change.
type ZoomAction string

const (
	ZoomIn    ZoomAction = "in"
	ZoomOut   ZoomAction = "out"
	ZoomReset ZoomAction = "reset"
)

// Zoom applies action to region id.
func (s *Session) Zoom(id string, action ZoomAction) (placement.Transform, error) {
	if err := s.lock(); err != nil {
		return placement.Transform{}, err
	}
	defer s.mu.Unlock()
	return s.zoom(id, action)
}

func (s *Session) zoom(id string, action ZoomAction) (placement.Transform, error) {
	switch action {
	case ZoomIn:
		return s.placer.ZoomIn(id)
	case ZoomOut:
		return s.placer.ZoomOut(id)
	case ZoomReset:
		return s.placer.ResetZoom(id)
	}
	return placement.Transform{}, fmt.Errorf("unknown zoom action %q", action)
}

// Pan moves the image of region id by a native-pixel delta.
func (s *Session) Pan(id string, dx, dy float64) (placement.Transform, error) {
	if err := s.lock(); err != nil {
		return placement.Transform{}, err
	}
	defer s.mu.Unlock()
	return s.placer.Pan(id, dx, dy)
}

// Products returns the loaded product list.
func (s *Session) Products() []products.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]products.Product(nil), s.products...)
}

// AvailableTexts returns the product names offered for floating text.
func (s *Session) AvailableTexts() []string {
	return products.Names(s.Products())
}

// PreloadReport summarizes LoadProducts.
type PreloadReport struct {
	Loaded []string
	Failed map[string]error
}

// LoadProducts validates a product batch, fetches every image and caches an
// optimized copy of it. Images that fail to load are reported but do not
// fail the call; the renderer draws placeholders for them later.
func (s *Session) LoadProducts(ctx context.Context, in []products.Product) (*PreloadReport, error) {
	ps, err := products.Validate(in)
	if err != nil {
		return nil, err
	}
	if err := s.lock(); err != nil {
		return nil, err
	}
	s.products = ps
	ld, opt, limit := s.loader, s.optimizer, s.preloadLimit
	s.mu.Unlock()

	refs := products.Images(ps)
	errs := make([]error, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, ref := range refs {
		g.Go(func() error {
			errs[i] = s.preload(gctx, ld, opt, ref)
			return nil
		})
	}
	_ = g.Wait()

	report := &PreloadReport{Failed: make(map[string]error)}
	for i, ref := range refs {
		if errs[i] != nil {
			report.Failed[ref] = errs[i]
			continue
		}
		report.Loaded = append(report.Loaded, ref)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Session) preload(ctx context.Context, ld *loader.Loader, opt preprocess.Optimizer, ref string) error {
	if _, ok := ld.Derived(loader.VariantOptimized, ref); ok {
		return nil
	}
	img, err := ld.Load(ctx, ref)
	if err != nil {
		s.logger.Warn("product image unavailable", zap.String("ref", ref), zap.Error(err))
		return err
	}
	small, err := opt.Optimize(img)
	if err != nil {
		// The original is still usable.
		s.logger.Warn("failed to optimize product image", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	ld.PutDerived(loader.VariantOptimized, ref, small)
	return nil
}

// RemoveBackgrounds produces background-removed copies of the images of the
// given product ids. A product that fails keeps using its previous image.
func (s *Session) RemoveBackgrounds(ctx context.Context, productIDs []string) (*PreloadReport, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	var refs []string
	for _, p := range s.products {
		if want[p.ID] && p.Image != "" {
			refs = append(refs, p.Image)
		}
	}
	ld, remover := s.loader, s.remover
	s.mu.Unlock()

	report := &PreloadReport{Failed: make(map[string]error)}
	if remover == nil {
		for _, ref := range refs {
			report.Failed[ref] = errors.New("background removal is not configured")
		}
		return report, nil
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, ok := ld.Derived(loader.VariantBackgroundRemoved, ref); ok {
			report.Loaded = append(report.Loaded, ref)
			continue
		}
		src, ok := ld.Derived(loader.VariantOptimized, ref)
		if !ok {
			img, err := ld.Load(ctx, ref)
			if err != nil {
				report.Failed[ref] = err
				continue
			}
			src = img
		}
		start := time.Now()
		cut, err := remover.RemoveBackground(ctx, src)
		if err != nil {
			s.logger.Warn("background removal failed", zap.String("ref", ref), zap.Error(err))
			report.Failed[ref] = err
			continue
		}
		ld.PutDerived(loader.VariantBackgroundRemoved, ref, cut)
		s.logger.Debug("background removed", zap.String("ref", ref), zap.Duration("cost", time.Since(start)))
		report.Loaded = append(report.Loaded, ref)
	}
	return report, nil
}

// scene snapshots the drawable state. The caller holds the lock.
func (s *Session) scene() render.Scene {
	set := region.NewSet()
	for _, r := range s.regions.All() {
		_ = set.Add(r.Clone())
	}
	texts := make([]*region.FloatingText, len(s.texts))
	for i, t := range s.texts {
		cp := *t
		texts[i] = &cp
	}
	return render.Scene{
		BaseRef:      s.template.BaseImageRef,
		Width:        s.width,
		Height:       s.height,
		Regions:      set,
		Texts:        texts,
		Preview:      s.annotator.Preview(),
		Selected:     s.annotator.Selected(),
		SelectedText: s.selectedText,
	}
}

// View selects which canvas a render targets.
type View string

const (
	// ViewEditor is the annotation canvas with overlays.
	ViewEditor View = "editor"
	// ViewPreview is the user-facing preview without overlays.
	ViewPreview View = "preview"
)

// Render draws the session at the view's scale. Drawing happens outside the
// session lock on a snapshot, so slow image loads do not block events.
func (s *Session) Render(ctx context.Context, view View) (*render.Result, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	scene := s.scene()
	opts := render.Options{Scale: s.previewScale}
	if view == ViewEditor {
		opts = render.Options{Scale: s.editorScale, Interactive: true}
	}
	r := s.renderer
	s.mu.Unlock()
	return r.Render(ctx, scene, opts)
}

// Export renders the session at an HD factor and encodes it.
func (s *Session) Export(ctx context.Context, opts render.ExportOptions) (*render.Export, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	scene := s.scene()
	r := s.renderer
	s.mu.Unlock()

	start := time.Now()
	out, err := r.Export(ctx, scene, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("brochure exported",
		zap.String("session", s.ID),
		zap.Int("width", out.Width),
		zap.Int("height", out.Height),
		zap.Int("failures", len(out.Failures)),
		zap.Duration("cost", time.Since(start)))
	return out, nil
}

// Save writes the session's regions back to the template store.
func (s *Session) Save(ctx context.Context, st store.Store) (*store.Template, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	tpl := *s.template
	tpl.Width, tpl.Height = s.width, s.height
	tpl.AssignedUsers = append([]string(nil), s.template.AssignedUsers...)
	tpl.Regions = region.NewSet()
	for _, r := range s.regions.All() {
		_ = tpl.Regions.Add(r.Clone())
	}
	s.mu.Unlock()

	if err := st.Save(ctx, &tpl); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.template.ID = tpl.ID
	s.template.CreatedAt = tpl.CreatedAt
	s.template.UpdatedAt = tpl.UpdatedAt
	s.mu.Unlock()
	return &tpl, nil
}

// Close releases the image caches. Further calls fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.loader.Release()
	s.drag = drag{}
	return nil
}
