package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// fakePage is an in-memory PageHandle. Error fields inject failures into the
// matching method; everything else records the call.
type fakePage struct {
	url    string
	title  string
	closed bool

	evals   []string
	clicks  [][2]float64
	pressed []string
	filled  []string

	gotoErr   error
	clickErr  error
	evalErr   error
	titleErr  error
	fillErr   error
	fillMiss  bool
	shotErr   error
	shotData  []byte
	popupFn   func(PageHandle)
	popupDead bool

	// popupOnClick, when set, is delivered to the armed popup listener from
	// inside Click, the way the driver fires the event mid-interaction.
	popupOnClick PageHandle
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Title() (string, error) {
	if p.titleErr != nil {
		return "", p.titleErr
	}
	return p.title, nil
}

func (p *fakePage) Goto(url string, timeout time.Duration) error {
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.url = url
	return nil
}

func (p *fakePage) GoBack() error    { return nil }
func (p *fakePage) GoForward() error { return nil }
func (p *fakePage) WaitForLoad() error {
	return nil
}

func (p *fakePage) Evaluate(script string) (any, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	p.evals = append(p.evals, script)
	return nil, nil
}

func (p *fakePage) Click(x, y float64) error {
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, [2]float64{x, y})
	if p.popupOnClick != nil && p.popupFn != nil && !p.popupDead {
		p.popupFn(p.popupOnClick)
	}
	return nil
}

func (p *fakePage) Drag(startX, startY, endX, endY float64) error { return nil }

func (p *fakePage) Press(key string) error {
	p.pressed = append(p.pressed, key)
	return nil
}

func (p *fakePage) FillFirstInput(text string) (bool, error) {
	if p.fillErr != nil {
		return false, p.fillErr
	}
	if p.fillMiss {
		return false, nil
	}
	p.filled = append(p.filled, text)
	return true, nil
}

func (p *fakePage) FillSelector(selector, text string) (bool, error) {
	if p.fillErr != nil {
		return false, p.fillErr
	}
	if p.fillMiss {
		return false, nil
	}
	p.filled = append(p.filled, selector+"="+text)
	return true, nil
}

func (p *fakePage) Screenshot(fullPage bool, quality int) ([]byte, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	if p.shotData != nil {
		return p.shotData, nil
	}
	return []byte("jpeg-bytes"), nil
}

func (p *fakePage) OnPopup(fn func(PageHandle)) func() {
	p.popupFn = fn
	return func() { p.popupDead = true }
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func (p *fakePage) frozen() bool {
	for i := len(p.evals) - 1; i >= 0; i-- {
		if strings.Contains(p.evals[i], "window._freeze = false") {
			return false
		}
		if strings.Contains(p.evals[i], "window._freeze = true") {
			return true
		}
	}
	return false
}

// fakeEngine hands out fakePages and remembers them in creation order.
type fakeEngine struct {
	pages   []*fakePage
	closed  bool
	newErr  error
	cookies []Cookie
	nextErr error // applied to the next created page's Goto
}

func (e *fakeEngine) NewPage() (PageHandle, error) {
	if e.newErr != nil {
		return nil, e.newErr
	}
	p := &fakePage{title: "blank", gotoErr: e.nextErr}
	e.nextErr = nil
	e.pages = append(e.pages, p)
	return p, nil
}

func (e *fakeEngine) Cookies() ([]Cookie, error)  { return e.cookies, nil }
func (e *fakeEngine) AddCookies(c []Cookie) error { e.cookies = append(e.cookies, c...); return nil }
func (e *fakeEngine) Close() error                { e.closed = true; return nil }

// newTestPool builds a pool over a fresh fake engine with the given capacity.
func newTestPool(t interface{ TempDir() string }, maxPages int) (*Pool, *fakeEngine) {
	engine := &fakeEngine{}
	cfg := testConfig(t.TempDir())
	cfg.MaxPages = maxPages
	return NewPool(engine, cfg), engine
}

func testConfig(dataDir string) *ResolvedConfig {
	cfg, err := ResolveConfig(Config{DataDir: dataDir})
	if err != nil {
		panic(err)
	}
	return cfg
}

// newTestCore wires a Core to a fake engine with no settle delay.
func newTestCore(dataDir string) (*Core, *fakeEngine) {
	engine := &fakeEngine{}
	core := NewCore(testConfig(dataDir))
	core.launch = func(*ResolvedConfig) (Engine, error) { return engine, nil }
	core.settle = 0
	if err := core.Initialize(context.Background()); err != nil {
		panic(err)
	}
	return core, engine
}

// fakeCore is a browserCore for supervisor tests.
type fakeCore struct {
	initErr    error
	inits      int
	terminated int
	dispatched []string
}

func (c *fakeCore) Initialize(ctx context.Context) error {
	c.inits++
	return c.initErr
}

func (c *fakeCore) Terminate() { c.terminated++ }

func (c *fakeCore) Dispatch(ctx context.Context, method string, args CallArgs) (*ActionResult, error) {
	c.dispatched = append(c.dispatched, method)
	if method == "boom" {
		return nil, errors.New("boom")
	}
	return okResult(), nil
}
