package browser

import (
	"fmt"
	"log/slog"
)

// Page throttling scripts. Background pages keep burning CPU and network if
// left fully live, so switching away pauses media and timers. Best-effort:
// evaluation failures are ignored.
const (
	freezeScript = `
		(() => {
			document.querySelectorAll('video,audio').forEach(v => v.pause());
			if (!window._freeze) {
				window._oldSetInterval = window.setInterval;
				window._oldRequestAnimationFrame = window.requestAnimationFrame;
				window.setInterval = () => 0;
				window.requestAnimationFrame = () => {};
				window._freeze = true;
			}
		})()
	`
	unfreezeScript = `(() => { window._freeze = false; })()`
)

// PoolPage is one pool slot: a live page handle plus its activity flag.
type PoolPage struct {
	Handle PageHandle
	frozen bool
}

// Pool is a bounded, ordered collection of open pages with oldest-first
// eviction and per-page failure isolation. It is not safe for concurrent
// use; the supervisor serializes every operation that reaches it.
type Pool struct {
	engine Engine
	cfg    *ResolvedConfig
	log    *slog.Logger

	pages   []*PoolPage // insertion order = open order
	current int         // index into pages, -1 when empty
}

// NewPool creates an empty pool over the given engine.
func NewPool(engine Engine, cfg *ResolvedConfig) *Pool {
	return &Pool{
		engine:  engine,
		cfg:     cfg,
		log:     slog.Default().With("component", "page-pool"),
		current: -1,
	}
}

// Len returns the number of open pages.
func (pl *Pool) Len() int { return len(pl.pages) }

// CurrentIndex returns the current page index, or -1 when the pool is empty.
func (pl *Pool) CurrentIndex() int { return pl.current }

// EnsurePage returns the page at index, creating a first page navigated to
// the default URL when the pool is empty. A negative index keeps the current
// page. Out-of-range indices are clamped. Switching away freezes the old
// page; the target is unfrozen.
func (pl *Pool) EnsurePage(index int) (*PoolPage, error) {
	if len(pl.pages) == 0 {
		handle, err := pl.engine.NewPage()
		if err != nil {
			return nil, err
		}
		if err := handle.Goto(pl.cfg.DefaultURL, pl.cfg.Timeout); err != nil {
			_ = handle.Close()
			return nil, fmt.Errorf("open default page: %w", err)
		}
		page := &PoolPage{Handle: handle}
		pl.pages = append(pl.pages, page)
		pl.current = 0
		return page, nil
	}

	if index < 0 {
		index = pl.current
	}
	if index >= len(pl.pages) {
		index = len(pl.pages) - 1
	}
	if index < 0 {
		index = 0
	}

	if index != pl.current && pl.current >= 0 {
		pl.freeze(pl.pages[pl.current])
	}
	pl.current = index
	page := pl.pages[index]
	pl.unfreeze(page)
	return page, nil
}

// Discard closes a broken or unwanted page and restores the invariant that a
// non-empty pool always has a valid current page. Close failures are ignored.
func (pl *Pool) Discard(page *PoolPage) error {
	pl.remove(page)
	_, err := pl.EnsurePage(pl.current)
	return err
}

// remove closes and unlinks a page without rebuilding an empty pool. Used by
// capacity eviction, where the caller is about to append a replacement.
func (pl *Pool) remove(page *PoolPage) {
	_ = page.Handle.Close()
	for i, p := range pl.pages {
		if p != page {
			continue
		}
		pl.pages = append(pl.pages[:i], pl.pages[i+1:]...)
		if pl.current > i {
			pl.current--
		} else if pl.current >= len(pl.pages) {
			pl.current = len(pl.pages) - 1
		}
		break
	}
	if len(pl.pages) == 0 {
		pl.current = -1
	}
}

// Open navigates to url. An exact URL match switches to the existing page
// instead of reopening. Otherwise the oldest page is evicted while the pool
// is at capacity, so the pool never transiently exceeds MaxPages. Navigation
// failure discards the half-open page and returns a failure message instead
// of an error.
func (pl *Pool) Open(url string) (*PoolPage, string, error) {
	for i, p := range pl.pages {
		if p.Handle.URL() == url {
			page, err := pl.EnsurePage(i)
			return page, "", err
		}
	}

	for len(pl.pages) > 0 && len(pl.pages) >= pl.cfg.MaxPages {
		pl.remove(pl.pages[0])
	}

	handle, err := pl.engine.NewPage()
	if err != nil {
		return nil, "", err
	}

	navErr := handle.Goto(url, pl.cfg.Timeout)
	if navErr == nil {
		_, navErr = handle.Evaluate(zoomScript(pl.cfg.ZoomFactor))
	}
	if navErr != nil {
		_ = handle.Close()
		pl.log.Warn("navigation failed", "url", url, "error", navErr)
		if len(pl.pages) == 0 {
			if _, err := pl.EnsurePage(-1); err != nil {
				return nil, "", err
			}
		}
		return nil, "navigation failed", nil
	}

	page := &PoolPage{Handle: handle}
	pl.pages = append(pl.pages, page)
	pl.current = len(pl.pages) - 1
	return page, "", nil
}

// Adopt appends a page spawned outside the pool (a pop-up) and makes it
// current.
func (pl *Pool) Adopt(handle PageHandle) *PoolPage {
	page := &PoolPage{Handle: handle}
	pl.pages = append(pl.pages, page)
	pl.current = len(pl.pages) - 1
	return page
}

// SwitchTab makes the page at index current. An out-of-range index returns a
// failure message; tab indices come from untrusted user input.
func (pl *Pool) SwitchTab(index int) (string, error) {
	if index < 0 || index >= len(pl.pages) {
		return fmt.Sprintf("invalid tab index %d", index), nil
	}
	_, err := pl.EnsurePage(index)
	return "", err
}

// CloseTab closes the page at index and returns its prior title. An
// out-of-range index returns a failure message.
func (pl *Pool) CloseTab(index int) (title string, failure string, err error) {
	if index < 0 || index >= len(pl.pages) {
		return "", fmt.Sprintf("invalid tab index %d", index), nil
	}
	page := pl.pages[index]
	title, terr := page.Handle.Title()
	if terr != nil {
		title = page.Handle.URL()
	}
	if err := pl.Discard(page); err != nil {
		return title, "", err
	}
	return title, "", nil
}

// Titles returns the title of every open page in pool order.
func (pl *Pool) Titles() ([]string, error) {
	titles := make([]string, 0, len(pl.pages))
	for _, p := range pl.pages {
		title, err := p.Handle.Title()
		if err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, nil
}

// CloseAll closes every page, ignoring failures. Used during teardown only.
func (pl *Pool) CloseAll() {
	for _, p := range pl.pages {
		_ = p.Handle.Close()
	}
	pl.pages = nil
	pl.current = -1
}

// failPage discards a page after a remote-call failure so one broken page
// never corrupts pool bookkeeping. The original error is returned; discard
// problems are only logged.
func (pl *Pool) failPage(page *PoolPage, err error) error {
	if derr := pl.Discard(page); derr != nil {
		pl.log.Warn("rebuilding pool after page failure also failed", "error", derr)
	}
	return err
}

func (pl *Pool) freeze(page *PoolPage) {
	if page.frozen {
		return
	}
	if _, err := page.Handle.Evaluate(freezeScript); err == nil {
		page.frozen = true
	}
}

func (pl *Pool) unfreeze(page *PoolPage) {
	_, err := page.Handle.Evaluate(unfreezeScript)
	if err == nil {
		page.frozen = false
	}
}

func zoomScript(scale float64) string {
	return fmt.Sprintf("document.body.style.zoom = %g;", scale)
}
