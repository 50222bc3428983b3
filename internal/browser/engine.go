package browser

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Engine owns the external engine process and its single browsing context.
// It is not safe for unsynchronized concurrent use; the supervisor serializes
// all access.
type Engine interface {
	// NewPage opens a blank page in the shared context.
	NewPage() (PageHandle, error)

	// Cookies returns the context's current cookies.
	Cookies() ([]Cookie, error)

	// AddCookies loads persisted cookies into the context.
	AddCookies(cookies []Cookie) error

	// Close tears down the context, the browser and the driver. Best-effort:
	// sub-step failures are swallowed so later steps still run.
	Close() error
}

// PageHandle is one open document inside the shared browsing context. Every
// method is a remote call that can fail or time out.
type PageHandle interface {
	URL() string
	Title() (string, error)
	Goto(url string, timeout time.Duration) error
	GoBack() error
	GoForward() error
	WaitForLoad() error
	Evaluate(script string) (any, error)
	Click(x, y float64) error
	Drag(startX, startY, endX, endY float64) error
	Press(key string) error

	// FillFirstInput fills the first visible, enabled input on the page.
	// Reports whether such an input was found.
	FillFirstInput(text string) (bool, error)

	// FillSelector fills the element matching the selector. Reports whether
	// the element exists.
	FillSelector(selector, text string) (bool, error)

	Screenshot(fullPage bool, quality int) ([]byte, error)

	// OnPopup registers a listener for pages spawned by this one. The
	// returned function disarms the listener.
	OnPopup(fn func(PageHandle)) func()

	Close() error
}

type playwrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
}

// launchEngine starts the engine process and opens the shared context.
func launchEngine(cfg *ResolvedConfig) (Engine, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: start driver: %v", ErrEngineLaunch, err)
	}

	browserType, err := browserTypeFor(pw, cfg.BrowserType)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	b, err := browserType.Launch(launchOptions(cfg.BrowserType))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: launch %s: %v", ErrEngineLaunch, cfg.BrowserType, err)
	}

	context, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
		Locale: playwright.String("en-US"),
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: open context: %v", ErrEngineLaunch, err)
	}

	return &playwrightEngine{pw: pw, browser: b, context: context}, nil
}

func browserTypeFor(pw *playwright.Playwright, kind string) (playwright.BrowserType, error) {
	switch kind {
	case EngineFirefox:
		return pw.Firefox, nil
	case EngineChromium:
		return pw.Chromium, nil
	case EngineWebkit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser type: %s", kind)
	}
}

func launchOptions(kind string) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--mute-audio",
			"--disable-gpu",
			"--disable-dev-shm-usage",
			"--disable-background-networking",
			"--disable-extensions",
		},
	}
	if kind == EngineFirefox {
		opts.FirefoxUserPrefs = map[string]interface{}{
			"intl.accept_languages":         "en-US,en",
			"media.autoplay.default":        5,
			"dom.ipc.processCount":          1,
			"browser.tabs.remote.autostart": false,
		}
	}
	return opts
}

func (e *playwrightEngine) NewPage() (PageHandle, error) {
	page, err := e.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (e *playwrightEngine) Cookies() ([]Cookie, error) {
	pwCookies, err := e.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return fromPlaywrightCookies(pwCookies), nil
}

func (e *playwrightEngine) AddCookies(cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	if err := e.context.AddCookies(toPlaywrightCookies(cookies)); err != nil {
		return fmt.Errorf("add cookies: %w", err)
	}
	return nil
}

func (e *playwrightEngine) Close() error {
	if e.context != nil {
		_ = e.context.Close()
		e.context = nil
	}
	if e.browser != nil {
		_ = e.browser.Close()
		e.browser = nil
	}
	if e.pw != nil {
		_ = e.pw.Stop()
		e.pw = nil
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *playwrightPage) GoBack() error {
	_, err := p.page.GoBack()
	return err
}

func (p *playwrightPage) GoForward() error {
	_, err := p.page.GoForward()
	return err
}

func (p *playwrightPage) WaitForLoad() error {
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	})
}

func (p *playwrightPage) Evaluate(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *playwrightPage) Click(x, y float64) error {
	return p.page.Mouse().Click(x, y, playwright.MouseClickOptions{
		Delay: playwright.Float(100),
	})
}

func (p *playwrightPage) Drag(startX, startY, endX, endY float64) error {
	mouse := p.page.Mouse()
	if err := mouse.Move(startX, startY); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	if err := mouse.Move(endX, endY, playwright.MouseMoveOptions{
		Steps: playwright.Int(5),
	}); err != nil {
		return err
	}
	return mouse.Up()
}

func (p *playwrightPage) Press(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *playwrightPage) FillFirstInput(text string) (bool, error) {
	inputs, err := p.page.QuerySelectorAll("input:not([disabled]):not([readonly])")
	if err != nil {
		return false, err
	}
	for _, el := range inputs {
		visible, err := el.IsVisible()
		if err != nil || !visible {
			continue
		}
		if err := el.Fill(text); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

func (p *playwrightPage) FillSelector(selector, text string) (bool, error) {
	el, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	if err := el.Fill(text); err != nil {
		return true, err
	}
	return true, nil
}

func (p *playwrightPage) Screenshot(fullPage bool, quality int) ([]byte, error) {
	if quality > 100 {
		quality = 100
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(quality),
	})
}

func (p *playwrightPage) OnPopup(fn func(PageHandle)) func() {
	// The listener is disarmed rather than detached; playwright-go offers no
	// symmetric removal for typed event handlers.
	var armed atomic.Bool
	armed.Store(true)
	p.page.OnPopup(func(popup playwright.Page) {
		if armed.Swap(false) {
			fn(&playwrightPage{page: popup})
		}
	})
	return func() { armed.Store(false) }
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}
