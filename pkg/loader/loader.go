// Package loader resolves image references to decoded rasters.
//
// Remote references go through a retry ladder of request strategies and
// stop at the first success. Results are cached under the reference the
// caller passed in, and derived images (optimized or background-removed)
// are cached separately and preferred by Resolve.
package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrExhausted is returned when every ladder step failed.
var ErrExhausted = errors.New("all image load attempts failed")

// ErrLocalFile is returned for filesystem references when the loader was
// not built with WithLocalFiles(true).
var ErrLocalFile = errors.New("local file references are disabled")

// Strategy names one step of the retry ladder.
type Strategy string

const (
	// StrategyCORS fetches directly, presenting an Origin as a browser would
	// for a credentialed cross-origin request.
	StrategyCORS Strategy = "cors"
	// StrategyNoCORS fetches directly without any cross-origin headers.
	StrategyNoCORS Strategy = "no-cors"
	// StrategyProxy fetches through the same-origin proxy endpoint.
	StrategyProxy Strategy = "proxy"
	// StrategyRelay fetches through a public relay service.
	StrategyRelay Strategy = "relay"
	// StrategyLocal covers file paths and data URIs, which get one attempt.
	StrategyLocal Strategy = "local"
)

// Ladder is the default attempt order for remote references.
var Ladder = []Strategy{StrategyCORS, StrategyNoCORS, StrategyProxy, StrategyRelay}

// Variant selects a derived image cache.
type Variant int

const (
	VariantOptimized Variant = iota
	VariantBackgroundRemoved
)

func (v Variant) String() string {
	if v == VariantBackgroundRemoved {
		return "background_removed"
	}
	return "optimized"
}

// Config controls remote fetching.
type Config struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	UserAgent  string
	Origin     string
	// ProxyURL is the same-origin proxy prefix; the escaped reference is appended.
	ProxyURL string
	// RelayURL is the public relay prefix for ordinary references.
	RelayURL string
	// DriveRelayURL is the public relay prefix for Google Drive references.
	DriveRelayURL string
	MaxBytes      int64
}

// DefaultConfig returns the settings used by the web client.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryDelay:    100 * time.Millisecond,
		UserAgent:     "Mozilla/5.0 (compatible; BrochureComposer/1.0)",
		Origin:        "http://localhost:8080",
		ProxyURL:      "http://localhost:8080/api/proxy-image?url=",
		RelayURL:      "https://api.allorigins.win/raw?url=",
		DriveRelayURL: "https://images.weserv.nl/?url=",
		MaxBytes:      32 << 20,
	}
}

// AttemptError records one failed ladder step.
type AttemptError struct {
	Attempt  int
	Strategy Strategy
	URL      string
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d (%s) %s: %v", e.Attempt, e.Strategy, e.URL, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Loader fetches, decodes and caches images. It is safe for concurrent use;
// concurrent loads of the same reference share one ladder run.
type Loader struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	group  singleflight.Group
	sleep  func(context.Context, time.Duration) error

	localFiles bool

	mu      sync.RWMutex
	cache   map[string]image.Image
	derived map[Variant]map[string]image.Image
}

// Option customizes a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLocalFiles allows references that are neither URLs nor data URIs to
// be read from the local filesystem. It is off by default.
func WithLocalFiles(enabled bool) Option {
	return func(l *Loader) { l.localFiles = enabled }
}

// New creates a Loader.
func New(cfg Config, opts ...Option) *Loader {
	l := &Loader{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  zap.NewNop(),
		sleep:   sleepCtx,
		cache:   make(map[string]image.Image),
		derived: make(map[Variant]map[string]image.Image),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the image for ref, using the cache when possible.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	if img, ok := l.Cached(ref); ok {
		return img, nil
	}
	// The shared fetch outlives any single caller; each caller only stops
	// waiting when its own context ends.
	ch := l.group.DoChan(ref, func() (interface{}, error) {
		if img, ok := l.Cached(ref); ok {
			return img, nil
		}
		fctx := context.WithoutCancel(ctx)
		if l.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, l.cfg.Timeout)
			defer cancel()
		}
		img, err := l.fetch(fctx, ref)
		if err != nil {
			return nil, err
		}
		l.Put(ref, img)
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Resolve returns the preferred image for ref: background-removed, then
// optimized, then the original.
func (l *Loader) Resolve(ctx context.Context, ref string) (image.Image, error) {
	for _, v := range []Variant{VariantBackgroundRemoved, VariantOptimized} {
		if img, ok := l.Derived(v, ref); ok {
			return img, nil
		}
	}
	return l.Load(ctx, ref)
}

// Cached returns the original image for ref if it is cached.
func (l *Loader) Cached(ref string) (image.Image, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	img, ok := l.cache[ref]
	return img, ok
}

// Put stores img as the original image for ref.
func (l *Loader) Put(ref string, img image.Image) {
	l.mu.Lock()
	l.cache[ref] = img
	l.mu.Unlock()
}

// Derived returns the derived image of variant v for ref.
func (l *Loader) Derived(v Variant, ref string) (image.Image, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	img, ok := l.derived[v][ref]
	return img, ok
}

// PutDerived stores a derived image of variant v for ref.
func (l *Loader) PutDerived(v Variant, ref string, img image.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.derived[v]
	if !ok {
		m = make(map[string]image.Image)
		l.derived[v] = m
	}
	m[ref] = img
}

// Len returns the number of cached originals.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// Release drops every cached image. Call it when the owning session ends.
func (l *Loader) Release() {
	l.mu.Lock()
	l.cache = make(map[string]image.Image)
	l.derived = make(map[Variant]map[string]image.Image)
	l.mu.Unlock()
}

func (l *Loader) fetch(ctx context.Context, ref string) (image.Image, error) {
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	if !IsRemote(ref) {
		if !l.localFiles {
			return nil, ErrLocalFile
		}
		return openFile(ref)
	}

	var errs []error
	for i, strategy := range Ladder {
		if i > 0 {
			if err := l.sleep(ctx, l.cfg.RetryDelay); err != nil {
				return nil, errors.Join(append(errs, err)...)
			}
		}
		target, headers := l.request(strategy, ref)
		if target == "" {
			continue
		}
		img, err := l.get(ctx, target, headers)
		if err == nil {
			l.logger.Debug("image loaded",
				zap.String("ref", ref),
				zap.String("strategy", string(strategy)),
				zap.Int("attempt", i+1))
			return img, nil
		}
		attemptErr := &AttemptError{Attempt: i + 1, Strategy: strategy, URL: target, Err: err}
		l.logger.Warn("image load attempt failed",
			zap.String("ref", ref),
			zap.String("strategy", string(strategy)),
			zap.Int("attempt", i+1),
			zap.Error(err))
		errs = append(errs, attemptErr)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrExhausted, ref, errors.Join(errs...))
}

// request returns the URL and extra headers for one ladder step. An empty
// URL skips the step.
func (l *Loader) request(strategy Strategy, ref string) (string, http.Header) {
	direct := NormalizeDriveURL(ref)
	h := http.Header{}
	switch strategy {
	case StrategyCORS:
		if l.cfg.Origin != "" {
			h.Set("Origin", l.cfg.Origin)
		}
		h.Set("Sec-Fetch-Mode", "cors")
		return direct, h
	case StrategyNoCORS:
		h.Set("Sec-Fetch-Mode", "no-cors")
		return direct, h
	case StrategyProxy:
		if l.cfg.ProxyURL == "" {
			return "", nil
		}
		return l.cfg.ProxyURL + url.QueryEscape(ref), h
	case StrategyRelay:
		prefix := l.cfg.RelayURL
		if IsDriveURL(direct) && l.cfg.DriveRelayURL != "" {
			prefix = l.cfg.DriveRelayURL
		}
		if prefix == "" {
			return "", nil
		}
		return prefix + url.QueryEscape(direct), h
	}
	return "", nil
}

func (l *Loader) get(ctx context.Context, target string, headers http.Header) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if l.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", l.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if l.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, l.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if l.cfg.MaxBytes > 0 && int64(len(data)) > l.cfg.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", l.cfg.MaxBytes)
	}
	return decodeBytes(data)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
