package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the user-facing configuration, typically loaded from YAML.
type Config struct {
	// BrowserType selects the engine: firefox, chromium or webkit.
	BrowserType string `json:"browserType,omitempty" yaml:"browserType,omitempty"`

	// DefaultURL is where freshly created pages navigate.
	DefaultURL string `json:"defaultUrl,omitempty" yaml:"defaultUrl,omitempty"`

	// MaxPages is the tab pool capacity.
	MaxPages int `json:"maxPages,omitempty" yaml:"maxPages,omitempty"`

	// ZoomFactor is applied to newly opened pages.
	ZoomFactor float64 `json:"zoomFactor,omitempty" yaml:"zoomFactor,omitempty"`

	// ViewportSize sets the browsing context viewport.
	ViewportSize *ViewportSize `json:"viewportSize,omitempty" yaml:"viewportSize,omitempty"`

	// Timeout bounds a single navigation, in seconds.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ScreenshotQuality is the JPEG quality, capped at 100.
	ScreenshotQuality int `json:"screenshotQuality,omitempty" yaml:"screenshotQuality,omitempty"`

	// DataDir holds cookies, the screenshot cache and the favorites store.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`

	Supervisor SupervisorConfig `json:"supervisor,omitempty" yaml:"supervisor,omitempty"`

	// DefaultSearchEngine names the favorites entry used by bare searches.
	DefaultSearchEngine string `json:"defaultSearchEngine,omitempty" yaml:"defaultSearchEngine,omitempty"`

	// BannedWords rejects operator input that contains any of them.
	BannedWords []string `json:"bannedWords,omitempty" yaml:"bannedWords,omitempty"`

	// EnableOverlay composites a coordinate ruler onto screenshots.
	EnableOverlay bool `json:"enableOverlay,omitempty" yaml:"enableOverlay,omitempty"`
}

// ViewportSize is the browsing context viewport in CSS pixels.
type ViewportSize struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// SupervisorConfig tunes the resource monitor. All durations are seconds.
type SupervisorConfig struct {
	MaxMemoryPercent int `json:"maxMemoryPercent,omitempty" yaml:"maxMemoryPercent,omitempty"`
	IdleTimeout      int `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	MonitorInterval  int `json:"monitorInterval,omitempty" yaml:"monitorInterval,omitempty"`
}

// ResolvedConfig is the fully resolved configuration used by the package.
type ResolvedConfig struct {
	BrowserType       string
	DefaultURL        string
	MaxPages          int
	ZoomFactor        float64
	ViewportWidth     int
	ViewportHeight    int
	Timeout           time.Duration
	ScreenshotQuality int

	DataDir    string
	CacheDir   string
	CookieFile string

	MaxMemoryPercent float64
	IdleTimeout      time.Duration
	MonitorInterval  time.Duration

	DefaultSearchEngine string
	BannedWords         []string
	EnableOverlay       bool
}

// LoadConfig reads a YAML config file. A missing file yields the zero Config
// so defaults apply.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ResolveConfig applies defaults and validates the engine kind.
func ResolveConfig(cfg Config) (*ResolvedConfig, error) {
	resolved := &ResolvedConfig{
		BrowserType:         cfg.BrowserType,
		DefaultURL:          cfg.DefaultURL,
		MaxPages:            cfg.MaxPages,
		ZoomFactor:          cfg.ZoomFactor,
		ScreenshotQuality:   cfg.ScreenshotQuality,
		DataDir:             cfg.DataDir,
		DefaultSearchEngine: cfg.DefaultSearchEngine,
		BannedWords:         cfg.BannedWords,
		EnableOverlay:       cfg.EnableOverlay,
	}

	if resolved.BrowserType == "" {
		resolved.BrowserType = EngineFirefox
	}
	switch resolved.BrowserType {
	case EngineFirefox, EngineChromium, EngineWebkit:
	default:
		return nil, fmt.Errorf("unsupported browser type: %s", resolved.BrowserType)
	}

	if resolved.DefaultURL == "" {
		resolved.DefaultURL = DefaultURL
	}
	if resolved.MaxPages <= 0 {
		resolved.MaxPages = DefaultMaxPages
	}
	if resolved.ZoomFactor <= 0 {
		resolved.ZoomFactor = DefaultZoomFactor
	}

	resolved.ViewportWidth = DefaultViewportWidth
	resolved.ViewportHeight = DefaultViewportHeight
	if cfg.ViewportSize != nil {
		if cfg.ViewportSize.Width > 0 {
			resolved.ViewportWidth = cfg.ViewportSize.Width
		}
		if cfg.ViewportSize.Height > 0 {
			resolved.ViewportHeight = cfg.ViewportSize.Height
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}
	resolved.Timeout = time.Duration(timeout) * time.Second

	if resolved.ScreenshotQuality <= 0 {
		resolved.ScreenshotQuality = DefaultScreenshotQuality
	}
	if resolved.ScreenshotQuality > 100 {
		resolved.ScreenshotQuality = 100
	}

	if resolved.DataDir == "" {
		resolved.DataDir = defaultDataDir()
	}
	resolved.CacheDir = filepath.Join(resolved.DataDir, "screenshots")
	resolved.CookieFile = filepath.Join(resolved.DataDir, "cookies.json")

	sup := cfg.Supervisor
	if sup.MaxMemoryPercent <= 0 {
		sup.MaxMemoryPercent = DefaultMaxMemoryPercent
	}
	if sup.IdleTimeout <= 0 {
		sup.IdleTimeout = DefaultIdleTimeoutSeconds
	}
	if sup.MonitorInterval <= 0 {
		sup.MonitorInterval = DefaultMonitorIntervalSeconds
	}
	resolved.MaxMemoryPercent = float64(sup.MaxMemoryPercent)
	resolved.IdleTimeout = time.Duration(sup.IdleTimeout) * time.Second
	resolved.MonitorInterval = time.Duration(sup.MonitorInterval) * time.Second

	return resolved, nil
}

func defaultDataDir() string {
	if dir := os.Getenv("TABWRIGHT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tabwright-data")
	}
	return filepath.Join(home, ".config", "tabwright")
}
