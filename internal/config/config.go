package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BROCHURE_SERVER_PORT.
const EnvPrefix = "BROCHURE"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Render     RenderConfig     `mapstructure:"render"`
	Loader     LoaderConfig     `mapstructure:"loader"`
	Annotate   AnnotateConfig   `mapstructure:"annotate"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SessionIdle  time.Duration `mapstructure:"session_idle"`
}

// RedisConfig holds the template store connection. When disabled, templates
// live in memory.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// RenderConfig holds preview and export settings
type RenderConfig struct {
	PreviewMaxDim int    `mapstructure:"preview_max_dim"`
	EditorWidth   int    `mapstructure:"editor_width"`
	EditorHeight  int    `mapstructure:"editor_height"`
	ExportScale   int    `mapstructure:"export_scale"`
	ExportFormat  string `mapstructure:"export_format"`
	Quality       int    `mapstructure:"quality"`
	FontDir       string `mapstructure:"font_dir"`
}

// LoaderConfig holds the image fetch ladder settings
type LoaderConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
	Origin        string        `mapstructure:"origin"`
	ProxyURL      string        `mapstructure:"proxy_url"`
	RelayURL      string        `mapstructure:"relay_url"`
	DriveRelayURL string        `mapstructure:"drive_relay_url"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
	Preload       int           `mapstructure:"preload_concurrency"`
}

// AnnotateConfig holds the annotation defaults
type AnnotateConfig struct {
	MinSize float64 `mapstructure:"min_size"`
	Shape   string  `mapstructure:"shape"`
	Kind    string  `mapstructure:"kind"`
}

// PreprocessConfig holds the derived image settings
type PreprocessConfig struct {
	MaxWidth          int    `mapstructure:"max_width"`
	MaxHeight         int    `mapstructure:"max_height"`
	Quality           int    `mapstructure:"quality"`
	RemovalMethod     string `mapstructure:"removal_method"`
	WhiteTolerance    int    `mapstructure:"white_tolerance"`
	GrabCutIterations int    `mapstructure:"grabcut_iterations"`
	GrabCutBorder     int    `mapstructure:"grabcut_border"`
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
}

// Load reads a YAML file on top of the defaults. Environment variables
// prefixed with EnvPrefix override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New loads config.yaml from the working directory, falling back to the
// defaults when it is missing or invalid.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.session_idle", d.Server.SessionIdle)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("render.preview_max_dim", d.Render.PreviewMaxDim)
	v.SetDefault("render.editor_width", d.Render.EditorWidth)
	v.SetDefault("render.editor_height", d.Render.EditorHeight)
	v.SetDefault("render.export_scale", d.Render.ExportScale)
	v.SetDefault("render.export_format", d.Render.ExportFormat)
	v.SetDefault("render.quality", d.Render.Quality)
	v.SetDefault("render.font_dir", d.Render.FontDir)

	v.SetDefault("loader.timeout", d.Loader.Timeout)
	v.SetDefault("loader.retry_delay", d.Loader.RetryDelay)
	v.SetDefault("loader.user_agent", d.Loader.UserAgent)
	v.SetDefault("loader.origin", d.Loader.Origin)
	v.SetDefault("loader.proxy_url", d.Loader.ProxyURL)
	v.SetDefault("loader.relay_url", d.Loader.RelayURL)
	v.SetDefault("loader.drive_relay_url", d.Loader.DriveRelayURL)
	v.SetDefault("loader.max_bytes", d.Loader.MaxBytes)
	v.SetDefault("loader.preload_concurrency", d.Loader.Preload)

	v.SetDefault("annotate.min_size", d.Annotate.MinSize)
	v.SetDefault("annotate.shape", d.Annotate.Shape)
	v.SetDefault("annotate.kind", d.Annotate.Kind)

	v.SetDefault("preprocess.max_width", d.Preprocess.MaxWidth)
	v.SetDefault("preprocess.max_height", d.Preprocess.MaxHeight)
	v.SetDefault("preprocess.quality", d.Preprocess.Quality)
	v.SetDefault("preprocess.removal_method", d.Preprocess.RemovalMethod)
	v.SetDefault("preprocess.white_tolerance", d.Preprocess.WhiteTolerance)
	v.SetDefault("preprocess.grabcut_iterations", d.Preprocess.GrabCutIterations)
	v.SetDefault("preprocess.grabcut_border", d.Preprocess.GrabCutBorder)
	v.SetDefault("preprocess.max_concurrent", d.Preprocess.MaxConcurrent)
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			SessionIdle:  2 * time.Hour,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "brochure:",
		},
		Render: RenderConfig{
			PreviewMaxDim: 800,
			EditorWidth:   800,
			EditorHeight:  600,
			ExportScale:   2,
			ExportFormat:  "jpg",
			Quality:       90,
		},
		Loader: LoaderConfig{
			Timeout:       30 * time.Second,
			RetryDelay:    100 * time.Millisecond,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			Origin:        "http://localhost:8080",
			ProxyURL:      "http://localhost:8080/api/proxy-image?url=",
			RelayURL:      "https://api.allorigins.win/raw?url=",
			DriveRelayURL: "https://images.weserv.nl/?url=",
			MaxBytes:      32 << 20,
			Preload:       3,
		},
		Annotate: AnnotateConfig{
			MinSize: 10,
			Shape:   "rectangle",
			Kind:    "image",
		},
		Preprocess: PreprocessConfig{
			MaxWidth:          800,
			MaxHeight:         800,
			Quality:           80,
			RemovalMethod:     "white",
			WhiteTolerance:    18,
			GrabCutIterations: 5,
			GrabCutBorder:     10,
			MaxConcurrent:     2,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port cannot be empty")
	}

	if c.Render.PreviewMaxDim < 1 {
		return fmt.Errorf("render.preview_max_dim must be positive")
	}

	if c.Render.EditorWidth < 1 || c.Render.EditorHeight < 1 {
		return fmt.Errorf("render.editor_width and render.editor_height must be positive")
	}

	if c.Render.ExportScale < 1 || c.Render.ExportScale > 3 {
		return fmt.Errorf("render.export_scale must be 1, 2 or 3")
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Render.ExportFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("render.export_format %q is not supported", c.Render.ExportFormat)
	}

	if c.Loader.Timeout <= 0 {
		return fmt.Errorf("loader.timeout must be positive")
	}

	if c.Loader.RetryDelay < 0 {
		return fmt.Errorf("loader.retry_delay cannot be negative")
	}

	if c.Annotate.MinSize < 0 {
		return fmt.Errorf("annotate.min_size cannot be negative")
	}

	if c.Annotate.Shape != "rectangle" && c.Annotate.Shape != "polygon" {
		return fmt.Errorf("annotate.shape must be rectangle or polygon")
	}

	if c.Annotate.Kind != "image" && c.Annotate.Kind != "text" {
		return fmt.Errorf("annotate.kind must be image or text")
	}

	if c.Preprocess.Quality < 1 || c.Preprocess.Quality > 100 {
		return fmt.Errorf("preprocess.quality must be between 1 and 100")
	}

	if c.Preprocess.WhiteTolerance < 0 || c.Preprocess.WhiteTolerance > 255 {
		return fmt.Errorf("preprocess.white_tolerance must be between 0 and 255")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty when redis is enabled")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "brochure", "config.yaml")
}
