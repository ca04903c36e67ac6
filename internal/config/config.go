package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlphaMode selects which PNG variant a consumer gets when it does not ask
// for one explicitly.
type AlphaMode string

const (
	AlphaStraight      AlphaMode = "straight"
	AlphaPremultiplied AlphaMode = "premultiplied"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Export  ExportConfig  `yaml:"export"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
	// PublicURL is the externally reachable base used when handing image
	// links to clients and webhooks. Empty means derive from host and port.
	PublicURL string `yaml:"public_url"`
}

type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	OutDir  string `yaml:"out_dir"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	// DefaultAlpha is the variant served and written as <session>.png.
	DefaultAlpha AlphaMode     `yaml:"default_alpha"`
	Debounce     time.Duration `yaml:"debounce"`
	// PinnedSessions lists the session ids enrolled for continuous export.
	// A single "*" entry enrolls every session.
	PinnedSessions []string `yaml:"pinned_sessions"`
	// RenderURL is the page the headless browser loads per session. A %s
	// placeholder receives the session id.
	RenderURL string `yaml:"render_url"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`
	Secret  string        `yaml:"secret"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Export: ExportConfig{
			Enabled:      true,
			OutDir:       "exports",
			Width:        1920,
			Height:       1080,
			DefaultAlpha: AlphaPremultiplied,
			Debounce:     35 * time.Millisecond,
			RenderURL:    "http://127.0.0.1:8080/render/?headless=1&session=%s",
		},
		Webhook: WebhookConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML config at path, filling defaults first so a sparse
// file stays valid. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.validate()
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deploy-time settings that usually come from the unit
// file rather than the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VERSECAST_EXPORT_ENABLED"); v != "" {
		c.Export.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("VERSECAST_EXPORT_DIR"); v != "" {
		c.Export.OutDir = v
	}
	if v := os.Getenv("VERSECAST_EXPORT_SESSIONS"); v != "" {
		c.Export.PinnedSessions = splitList(v)
	}
	if v := os.Getenv("VERSECAST_EXPORT_SIZE"); v != "" {
		if w, h, ok := parseSize(v); ok {
			c.Export.Width, c.Export.Height = w, h
		}
	}
	if v := os.Getenv("VERSECAST_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("VERSECAST_WEBHOOK_TOKEN"); v != "" {
		c.Webhook.Token = v
	}
	if v := os.Getenv("VERSECAST_WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("VERSECAST_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("VERSECAST_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
}

func (c *Config) validate() error {
	switch c.Export.DefaultAlpha {
	case AlphaStraight, AlphaPremultiplied:
	case "":
		c.Export.DefaultAlpha = AlphaPremultiplied
	default:
		return fmt.Errorf("export.default_alpha: unknown mode %q", c.Export.DefaultAlpha)
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export dimensions must be positive, got %dx%d", c.Export.Width, c.Export.Height)
	}
	if c.Export.Debounce <= 0 {
		c.Export.Debounce = 35 * time.Millisecond
	}
	return nil
}

// BaseURL returns the base clients should use to fetch exported images.
func (c *Config) BaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseSize parses "1920x1080".
func parseSize(s string) (w, h int, ok bool) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
