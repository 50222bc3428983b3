package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// settleDelay gives the page time to react after coordinate clicks and swipes
// before the caller grabs a screenshot.
const settleDelay = 2 * time.Second

// Core owns one engine handle, its page pool and cookie persistence. A Core
// is single-use: once terminated it stays unusable and the supervisor builds
// a fresh one on restart.
type Core struct {
	cfg     *ResolvedConfig
	cookies *CookieStore
	log     *slog.Logger

	engine Engine
	pool   *Pool

	terminated bool

	// launch is swapped out by tests.
	launch func(*ResolvedConfig) (Engine, error)

	// settle is the post-interaction delay; shortened in tests.
	settle time.Duration
}

// NewCore creates an uninitialized core.
func NewCore(cfg *ResolvedConfig) *Core {
	return &Core{
		cfg:     cfg,
		cookies: NewCookieStore(cfg.CookieFile),
		log:     slog.Default().With("component", "browser-core"),
		launch:  launchEngine,
		settle:  settleDelay,
	}
}

// Initialize launches the engine process, opens the shared context, restores
// persisted cookies and opens a first page at the default URL. On failure no
// partial state survives.
func (c *Core) Initialize(ctx context.Context) error {
	if c.terminated {
		return fmt.Errorf("%w: core already terminated", ErrEngineLaunch)
	}

	engine, err := c.launch(c.cfg)
	if err != nil {
		return err
	}

	cookies, err := c.cookies.Load()
	if err != nil {
		c.log.Warn("loading cookies failed, continuing without", "error", err)
	} else if err := engine.AddCookies(cookies); err != nil {
		c.log.Warn("restoring cookies failed, continuing without", "error", err)
	}

	pool := NewPool(engine, c.cfg)
	if _, err := pool.EnsurePage(-1); err != nil {
		_ = engine.Close()
		return fmt.Errorf("%w: %v", ErrEngineLaunch, err)
	}

	c.engine = engine
	c.pool = pool
	c.log.Info("engine started", "browser", c.cfg.BrowserType)
	return nil
}

// Terminate shuts everything down best-effort: cookies are persisted, pages,
// context and process are closed, and the screenshot cache is cleared. It is
// idempotent and never fails; it runs as cleanup on paths that cannot handle
// more errors.
func (c *Core) Terminate() {
	if c.terminated {
		return
	}
	c.terminated = true

	c.saveCookies()

	if c.pool != nil {
		c.pool.CloseAll()
		c.pool = nil
	}
	if c.engine != nil {
		_ = c.engine.Close()
		c.engine = nil
	}

	if c.cfg.CacheDir != "" {
		_ = os.RemoveAll(c.cfg.CacheDir)
		_ = os.MkdirAll(c.cfg.CacheDir, 0o755)
	}

	c.log.Info("engine stopped")
}

// saveCookies persists the context's cookies. Called opportunistically after
// state-mutating operations so a crash loses at most the latest interaction.
func (c *Core) saveCookies() {
	if c.engine == nil {
		return
	}
	cookies, err := c.engine.Cookies()
	if err != nil {
		c.log.Warn("reading cookies failed", "error", err)
		return
	}
	if err := c.cookies.Save(cookies); err != nil {
		c.log.Warn("saving cookies failed", "error", err)
	}
}
