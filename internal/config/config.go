package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/photosheet/internal/layout"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultDPI            = 300.0
	defaultJPEGQuality    = 95
	defaultMaxPhotos      = 1000
	defaultMaxUploadMB    = 20
	defaultPaper          = "letter"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int

	Print PrintConfig
}

// PrintConfig holds the physical layout and output settings.
type PrintConfig struct {
	MarginIn     float64
	SpacingIn    float64
	ItemWidthCm  float64
	ItemHeightCm float64
	DPI          float64
	JPEGQuality  int
	MaxPhotos    int
	MaxUploadMB  int
	DefaultPaper string
	Papers       []layout.PaperProfile
}

// Item returns the photo size in inches.
func (p PrintConfig) Item() layout.ItemSize {
	return layout.ItemFromCm(p.ItemWidthCm, p.ItemHeightCm)
}

// Packing returns the margin and spacing used by the planner.
func (p PrintConfig) Packing() layout.PackingConfig {
	return layout.PackingConfig{Margin: p.MarginIn, Spacing: p.SpacingIn}
}

// MaxUploadBytes returns the upload size limit in bytes.
func (p PrintConfig) MaxUploadBytes() int64 {
	return int64(p.MaxUploadMB) << 20
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Print                yamlPrint     `yaml:"print"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlPrint represents the print section in YAML.
type yamlPrint struct {
	MarginIn     *float64              `yaml:"margin_in"`
	SpacingIn    *float64              `yaml:"spacing_in"`
	ItemWidthCm  float64               `yaml:"item_width_cm"`
	ItemHeightCm float64               `yaml:"item_height_cm"`
	DPI          float64               `yaml:"dpi"`
	JPEGQuality  int                   `yaml:"jpeg_quality"`
	MaxPhotos    int                   `yaml:"max_photos"`
	MaxUploadMB  int                   `yaml:"max_upload_mb"`
	DefaultPaper string                `yaml:"default_paper"`
	Papers       []layout.PaperProfile `yaml:"papers"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	DPI            *float64
	MarginIn       *float64
	SpacingIn      *float64
	MaxPhotos      *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables
	applyEnvConfig(&cfg)

	// Load from YAML file if specified (overrides env)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	packing := layout.DefaultPackingConfig()
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         60 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Print: PrintConfig{
			MarginIn:     packing.Margin,
			SpacingIn:    packing.Spacing,
			ItemWidthCm:  2.5,
			ItemHeightCm: 3.0,
			DPI:          defaultDPI,
			JPEGQuality:  defaultJPEGQuality,
			MaxPhotos:    defaultMaxPhotos,
			MaxUploadMB:  defaultMaxUploadMB,
			DefaultPaper: defaultPaper,
		},
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.field = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	applyYAMLPrint(&cfg.Print, yamlCfg.Print)
	return nil
}

func applyYAMLPrint(p *PrintConfig, y yamlPrint) {
	if y.MarginIn != nil {
		p.MarginIn = *y.MarginIn
	}
	if y.SpacingIn != nil {
		p.SpacingIn = *y.SpacingIn
	}
	if y.ItemWidthCm > 0 {
		p.ItemWidthCm = y.ItemWidthCm
	}
	if y.ItemHeightCm > 0 {
		p.ItemHeightCm = y.ItemHeightCm
	}
	if y.DPI > 0 {
		p.DPI = y.DPI
	}
	if y.JPEGQuality > 0 {
		p.JPEGQuality = y.JPEGQuality
	}
	if y.MaxPhotos > 0 {
		p.MaxPhotos = y.MaxPhotos
	}
	if y.MaxUploadMB > 0 {
		p.MaxUploadMB = y.MaxUploadMB
	}
	if y.DefaultPaper != "" {
		p.DefaultPaper = y.DefaultPaper
	}
	if len(y.Papers) > 0 {
		p.Papers = y.Papers
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if dpi := strings.TrimSpace(os.Getenv("PRINT_DPI")); dpi != "" {
		if value, err := strconv.ParseFloat(dpi, 64); err == nil && value > 0 {
			cfg.Print.DPI = value
		}
	}

	if maxPhotos := strings.TrimSpace(os.Getenv("MAX_PHOTOS")); maxPhotos != "" {
		if value, err := strconv.Atoi(maxPhotos); err == nil && value > 0 {
			cfg.Print.MaxPhotos = value
		}
	}

	if quality := strings.TrimSpace(os.Getenv("JPEG_QUALITY")); quality != "" {
		if value, err := strconv.Atoi(quality); err == nil && value > 0 {
			cfg.Print.JPEGQuality = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.DPI != nil && *overrides.DPI > 0 {
		cfg.Print.DPI = *overrides.DPI
	}

	if overrides.MarginIn != nil && *overrides.MarginIn >= 0 {
		cfg.Print.MarginIn = *overrides.MarginIn
	}

	if overrides.SpacingIn != nil && *overrides.SpacingIn >= 0 {
		cfg.Print.SpacingIn = *overrides.SpacingIn
	}

	if overrides.MaxPhotos != nil && *overrides.MaxPhotos > 0 {
		cfg.Print.MaxPhotos = *overrides.MaxPhotos
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}

	p := cfg.Print
	if p.MarginIn < 0 || p.SpacingIn < 0 {
		return fmt.Errorf("margin and spacing must be >= 0")
	}
	if p.ItemWidthCm <= 0 || p.ItemHeightCm <= 0 {
		return fmt.Errorf("photo size must be positive")
	}
	if p.DPI <= 0 || p.DPI > 1200 {
		return fmt.Errorf("dpi must be within (0, 1200], got %g", p.DPI)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be within [1, 100], got %d", p.JPEGQuality)
	}
	if p.MaxPhotos <= 0 {
		return fmt.Errorf("max photos must be positive")
	}
	if p.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if strings.TrimSpace(p.DefaultPaper) == "" {
		return fmt.Errorf("default paper cannot be empty")
	}
	return nil
}
