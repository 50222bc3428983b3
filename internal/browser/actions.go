package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ActionResult is the outcome of a dispatched operation. Expected failure
// modes (bad index, element not found, navigation failure) come back as
// Success=false with a short human-readable message; only genuinely
// unexpected engine failures surface as errors.
type ActionResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Path    string   `json:"path,omitempty"`   // screenshot cache file
	Titles  []string `json:"titles,omitempty"` // tab titles, pool order
}

// CallArgs carries the arguments of a dispatched operation. Each verb reads
// only the fields it needs.
type CallArgs struct {
	URL        string
	Coords     []int
	Distance   int
	Direction  string
	Text       string
	Enter      *bool // nil means press enter after typing
	Selector   string
	Scale      float64
	Index      int
	ZoomFactor float64
	FullPage   bool
}

func okResult() *ActionResult {
	return &ActionResult{Success: true}
}

func failResult(format string, args ...any) *ActionResult {
	return &ActionResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Dispatch routes a method name to its operation. Unknown names fail with
// ErrUnsupportedOperation.
func (c *Core) Dispatch(ctx context.Context, method string, args CallArgs) (*ActionResult, error) {
	switch method {
	case "search":
		return c.Search(args.URL)
	case "screenshot":
		return c.Screenshot(args.ZoomFactor, args.FullPage)
	case "clickCoord":
		return c.ClickCoord(args.Coords)
	case "swipe":
		return c.Swipe(args.Coords)
	case "scrollBy":
		return c.ScrollBy(args.Distance, args.Direction)
	case "textInput":
		enter := true
		if args.Enter != nil {
			enter = *args.Enter
		}
		return c.TextInput(args.Text, enter)
	case "textInputBySelector":
		return c.TextInputBySelector(args.Selector, args.Text)
	case "goBack":
		return c.GoBack()
	case "goForward":
		return c.GoForward()
	case "zoomToScale":
		return c.ZoomToScale(args.Scale)
	case "switchTab":
		return c.SwitchTab(args.Index)
	case "closeTab":
		return c.CloseTab(args.Index)
	case "getAllTabsTitles":
		return c.GetAllTabsTitles()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, method)
	}
}

// Search opens url, reusing an already-open page with the same URL. Cookies
// are persisted after a successful navigation.
func (c *Core) Search(url string) (*ActionResult, error) {
	if url == "" {
		return failResult("no url given"), nil
	}
	_, failure, err := c.pool.Open(url)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return failResult("%s", failure), nil
	}
	c.saveCookies()
	return okResult(), nil
}

// Screenshot captures the current page as JPEG and writes it into the cache
// directory. The result carries the file path.
func (c *Core) Screenshot(zoomFactor float64, fullPage bool) (*ActionResult, error) {
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}

	if zoomFactor > 0 {
		if _, err := page.Handle.Evaluate(zoomScript(zoomFactor)); err != nil {
			return nil, c.pool.failPage(page, err)
		}
		if _, err := page.Handle.Evaluate("window.scrollTo(0, 0);"); err != nil {
			return nil, c.pool.failPage(page, err)
		}
	}

	data, err := page.Handle.Screenshot(fullPage, c.cfg.ScreenshotQuality)
	if err != nil {
		return nil, c.pool.failPage(page, err)
	}

	if err := os.MkdirAll(c.cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.jpg", time.Now().Format("20060102_150405"), uuid.New().String()[:6])
	path := filepath.Join(c.cfg.CacheDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}

	result := okResult()
	result.Path = path
	return result, nil
}

// ClickCoord clicks at page coordinates. A pop-up spawned by the click is
// adopted into the pool and becomes the current page. The pop-up listener is
// scoped to this one operation.
func (c *Core) ClickCoord(coords []int) (*ActionResult, error) {
	if len(coords) != 2 {
		return failResult("coordinates must be two integers"), nil
	}

	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}

	var (
		popupMu sync.Mutex
		popup   PageHandle
	)
	disarm := page.Handle.OnPopup(func(p PageHandle) {
		popupMu.Lock()
		popup = p
		popupMu.Unlock()
	})
	defer disarm()

	if err := page.Handle.Click(float64(coords[0]), float64(coords[1])); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	time.Sleep(c.settle)

	// Adopt on the dispatch goroutine so the pool is never mutated from the
	// driver's event goroutine.
	popupMu.Lock()
	spawned := popup
	popupMu.Unlock()
	if spawned != nil {
		c.pool.Adopt(spawned)
	}

	c.saveCookies()
	return okResult(), nil
}

// Swipe drags the mouse from (x1,y1) to (x2,y2).
func (c *Core) Swipe(coords []int) (*ActionResult, error) {
	if len(coords) != 4 {
		return failResult("swipe needs four integers: startX startY endX endY"), nil
	}
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}
	if err := page.Handle.Drag(
		float64(coords[0]), float64(coords[1]),
		float64(coords[2]), float64(coords[3]),
	); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	time.Sleep(c.settle / 2)
	return okResult(), nil
}

// ScrollBy scrolls the current page by distance pixels in the given
// direction (up, down, left, right).
func (c *Core) ScrollBy(distance int, direction string) (*ActionResult, error) {
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}

	var dx, dy int
	switch direction {
	case "up":
		dy = -distance
	case "down":
		dy = distance
	case "left":
		dx = -distance
	case "right":
		dx = distance
	default:
		return failResult("invalid scroll direction %q", direction), nil
	}

	if _, err := page.Handle.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d);", dx, dy)); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	return okResult(), nil
}

// TextInput fills the first visible enabled input on the current page and
// optionally presses enter.
func (c *Core) TextInput(text string, enter bool) (*ActionResult, error) {
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}
	if err := page.Handle.WaitForLoad(); err != nil {
		return nil, c.pool.failPage(page, err)
	}

	found, err := page.Handle.FillFirstInput(text)
	if err != nil {
		return nil, c.pool.failPage(page, err)
	}
	if !found {
		return failResult("no usable input field on the page"), nil
	}
	if enter {
		if err := page.Handle.Press("Enter"); err != nil {
			return nil, c.pool.failPage(page, err)
		}
	}
	return okResult(), nil
}

// TextInputBySelector fills the element matching selector.
func (c *Core) TextInputBySelector(selector, text string) (*ActionResult, error) {
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}
	if err := page.Handle.WaitForLoad(); err != nil {
		return nil, c.pool.failPage(page, err)
	}

	found, err := page.Handle.FillSelector(selector, text)
	if err != nil {
		return nil, c.pool.failPage(page, err)
	}
	if !found {
		return failResult("no element matches selector %q", selector), nil
	}
	return okResult(), nil
}

// GoBack navigates the current page back in history.
func (c *Core) GoBack() (*ActionResult, error) {
	return c.historyStep(func(h PageHandle) error { return h.GoBack() })
}

// GoForward navigates the current page forward in history.
func (c *Core) GoForward() (*ActionResult, error) {
	return c.historyStep(func(h PageHandle) error { return h.GoForward() })
}

func (c *Core) historyStep(step func(PageHandle) error) (*ActionResult, error) {
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}
	if err := step(page.Handle); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	if err := page.Handle.WaitForLoad(); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	return okResult(), nil
}

// ZoomToScale sets the current page's zoom.
func (c *Core) ZoomToScale(scale float64) (*ActionResult, error) {
	if scale <= 0 {
		return failResult("zoom scale must be positive"), nil
	}
	page, err := c.pool.EnsurePage(-1)
	if err != nil {
		return nil, err
	}
	if _, err := page.Handle.Evaluate(zoomScript(scale)); err != nil {
		return nil, c.pool.failPage(page, err)
	}
	return okResult(), nil
}

// SwitchTab makes the page at index current.
func (c *Core) SwitchTab(index int) (*ActionResult, error) {
	failure, err := c.pool.SwitchTab(index)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return failResult("%s", failure), nil
	}
	return okResult(), nil
}

// CloseTab closes the page at index; the result message carries the closed
// tab's title.
func (c *Core) CloseTab(index int) (*ActionResult, error) {
	title, failure, err := c.pool.CloseTab(index)
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return failResult("%s", failure), nil
	}
	result := okResult()
	result.Message = fmt.Sprintf("closed tab %q", title)
	return result, nil
}

// GetAllTabsTitles lists the titles of all open pages in pool order.
func (c *Core) GetAllTabsTitles() (*ActionResult, error) {
	titles, err := c.pool.Titles()
	if err != nil {
		return nil, err
	}
	result := okResult()
	result.Titles = titles
	return result, nil
}
