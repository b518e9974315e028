package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	brochure "github.com/menta2k/brochure-composer"
	"github.com/menta2k/brochure-composer/internal/config"
	"github.com/menta2k/brochure-composer/internal/logging"
	"github.com/menta2k/brochure-composer/internal/server"
	"github.com/menta2k/brochure-composer/internal/utils"
	"github.com/menta2k/brochure-composer/pkg/products"
	"github.com/menta2k/brochure-composer/pkg/render"
	"github.com/menta2k/brochure-composer/pkg/session"
	"github.com/menta2k/brochure-composer/pkg/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// assignments collects repeated -image/-text flags of the form id=value.
type assignments map[string]string

func (a assignments) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (a assignments) Set(s string) error {
	id, value, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return fmt.Errorf("expected region=value, got %q", s)
	}
	a[id] = value
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  serve    run the HTTP editor API")
	fmt.Fprintln(os.Stderr, "  render   fill a template file and export it")
	fmt.Fprintln(os.Stderr, "  version  print build information")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(os.Args[2:])
	case "render":
		err = renderCmd(os.Args[2:])
	case "version":
		fmt.Printf("brochure %s (commit %s, built %s)\n", version, gitCommit, buildTime)
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.Load(path)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default: ./config.yaml, then built-in defaults)")
	port := fs.String("port", "", "listen address, overrides server.port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(cfg.Server.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg, logger)
	defer st.Close()

	sopts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	fonts := render.NewFontBook(cfg.Render.FontDir)
	manager := session.NewManager(sopts, session.WithLogger(logger), session.WithFonts(fonts))

	srv, err := server.New(cfg, st, manager, logger,
		server.WithBuildInfo(server.BuildInfo{Version: version, BuildTime: buildTime, GitCommit: gitCommit}))
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// openStore returns the Redis store when it is enabled and reachable, and
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) store.Store {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory template store")
		return store.NewMemoryStore()
	}
	rs := store.NewRedisStore(cfg.RedisOptions(), logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory template store",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		_ = rs.Close()
		return store.NewMemoryStore()
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	return rs
}

func renderCmd(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	configPath := fs.String("config", "", "config file")
	tplPath := fs.String("template", "", "template JSON file")
	out := fs.String("out", "", "output file (default: <title>_edited.<ext> next to the template)")
	scale := fs.Int("scale", 0, "export scale: 1, 2 or 3 (default from config)")
	format := fs.String("format", "", "output format: jpg|png|webp (default from config)")
	quality := fs.Int("quality", 0, "JPEG/WebP quality 1-100 (default from config)")
	productsPath := fs.String("products", "", "product list JSON to preload")
	images := assignments{}
	texts := assignments{}
	fs.Var(images, "image", "assign an image: region=ref (repeatable)")
	fs.Var(texts, "text", "assign text: region=text (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tplPath == "" {
		fs.Usage()
		return fmt.Errorf("-template is required")
	}
	if !utils.FileExists(*tplPath) {
		return fmt.Errorf("template %s does not exist", *tplPath)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	export, err := cfg.ExportOptions()
	if err != nil {
		return err
	}
	if *scale != 0 {
		export.Scale = *scale
	}
	if *format == "" && *out != "" && utils.IsImageFile(*out) {
		// -out photo.png implies -format png.
		if f, err := render.ParseFormat(utils.GetFileExtension(*out)); err == nil {
			export.Format = f
		}
	}
	if *format != "" {
		if export.Format, err = render.ParseFormat(*format); err != nil {
			return err
		}
	}
	if *quality != 0 {
		export.Quality = *quality
	}

	fill := brochure.Fill{Images: images, Texts: texts}
	if *productsPath != "" {
		f, err := os.Open(*productsPath)
		if err != nil {
			return fmt.Errorf("failed to open products: %w", err)
		}
		fill.Products, err = products.Decode(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	logger, err := logging.New(cfg.Server.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	sopts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	c := brochure.NewWithConfig(sopts, export, logger, session.WithFonts(render.NewFontBook(cfg.Render.FontDir)))
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, err := c.ComposeFile(ctx, *tplPath, *out, fill)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
