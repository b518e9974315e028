// Package server exposes templates and editing sessions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/brochure-composer/internal/config"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Server wires the HTTP routes to the template store and session manager.
type Server struct {
	cfg      *config.Config
	store    store.Store
	sessions *session.Manager
	logger   *zap.Logger
	client   *http.Client
	build    BuildInfo
	export   render.ExportOptions
}

// Option customizes a Server.
type Option func(*Server)

// WithProxyClient sets the client the image proxy fetches with.
func WithProxyClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithBuildInfo sets what /version reports.
func WithBuildInfo(b BuildInfo) Option {
	return func(s *Server) { s.build = b }
}

// New creates a Server.
func New(cfg *config.Config, st store.Store, sessions *session.Manager, logger *zap.Logger, opts ...Option) (*Server, error) {
	export, err := cfg.ExportOptions()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		logger:   logger,
		client:   &http.Client{Timeout: cfg.Loader.Timeout},
		build:    BuildInfo{Version: "dev", BuildTime: "unknown", GitCommit: "unknown"},
		export:   export,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(s.logger))
	r.Use(CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  s.build.Version,
			"sessions": s.sessions.Len(),
		})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.build)
	})

	// Same-origin image proxy used by the loader's third ladder step.
	r.GET("/api/proxy-image", s.proxyImage)

	api := r.Group("/api/v1")
	{
		api.GET("/templates", s.listTemplates)
		api.POST("/templates", s.createTemplate)
		api.GET("/templates/:id", s.getTemplate)
		api.PUT("/templates/:id", s.putTemplate)
		api.DELETE("/templates/:id", s.deleteTemplate)
		api.POST("/templates/:id/users", s.assignUser)
		api.DELETE("/templates/:id/users/:user", s.unassignUser)

		api.POST("/sessions", s.openSession)
		sess := api.Group("/sessions/:sid")
		{
			sess.GET("", s.sessionState)
			sess.DELETE("", s.closeSession)
			sess.POST("/events", s.dispatch)
			sess.PUT("/editor", s.setEditor)
			sess.PUT("/regions/:rid/image", s.assignImage)
			sess.PUT("/regions/:rid/text", s.assignText)
			sess.PUT("/regions/:rid/style", s.setStyle)
			sess.DELETE("/regions/:rid", s.deleteRegion)
			sess.POST("/regions/:rid/zoom", s.zoom)
			sess.POST("/regions/:rid/pan", s.pan)
			sess.POST("/texts", s.addText)
			sess.PUT("/texts/:tid", s.updateText)
			sess.DELETE("/texts/:tid", s.deleteText)
			sess.POST("/products", s.loadProducts)
			sess.POST("/background-removal", s.removeBackgrounds)
			sess.GET("/render", s.renderView)
			sess.GET("/export", s.exportImage)
			sess.POST("/save", s.save)
		}
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// every session.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(s.cfg.Server.Mode)
	srv := &http.Server{
		Addr:         s.cfg.Server.Port,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go s.reapIdle(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("port", s.cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	s.logger.Info("server stopped")
	return err
}

func (s *Server) reapIdle(ctx context.Context) {
	idle := s.cfg.Server.SessionIdle
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.CloseIdle(idle); n > 0 {
				s.logger.Info("closed idle sessions", zap.Int("count", n))
			}
		}
	}
}
