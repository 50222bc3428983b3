// Package browser manages a single shared headless browser engine: process
// lifecycle, a bounded tab pool with oldest-first eviction, and a supervisor
// that serializes all access and recovers the engine when it degrades or dies.
package browser

// Supported engine kinds.
const (
	EngineFirefox  = "firefox"
	EngineChromium = "chromium"
	EngineWebkit   = "webkit"
)

// Defaults applied by ResolveConfig.
const (
	// DefaultURL is where a freshly created page navigates.
	DefaultURL = "https://www.bing.com"

	// DefaultMaxPages is the pool capacity; the oldest page is evicted first.
	DefaultMaxPages = 5

	// DefaultZoomFactor is applied to newly opened pages.
	DefaultZoomFactor = 1.0

	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultTimeoutSeconds bounds a single navigation.
	DefaultTimeoutSeconds = 10

	// DefaultScreenshotQuality is the JPEG quality (max 100).
	DefaultScreenshotQuality = 80
)

// Supervisor defaults.
const (
	// DefaultMaxMemoryPercent is the host memory utilization above which the
	// monitor restarts the engine.
	DefaultMaxMemoryPercent = 90

	// DefaultIdleTimeoutSeconds is how long the engine may sit unused before
	// the monitor shuts it down.
	DefaultIdleTimeoutSeconds = 300

	// DefaultMonitorIntervalSeconds is the monitor poll interval.
	DefaultMonitorIntervalSeconds = 10
)
