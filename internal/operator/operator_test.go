package operator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabwright/tabwright/internal/browser"
	"github.com/tabwright/tabwright/internal/favorites"
)

// fakeCaller records calls and returns canned results per method.
type fakeCaller struct {
	calls   []string
	args    []browser.CallArgs
	results map[string]*browser.ActionResult
	err     error
	stops   int
}

func (f *fakeCaller) StopEngine() { f.stops++ }

func (f *fakeCaller) Call(ctx context.Context, method string, args browser.CallArgs) (*browser.ActionResult, error) {
	f.calls = append(f.calls, method)
	f.args = append(f.args, args)
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[method]; ok {
		return r, nil
	}
	return &browser.ActionResult{Success: true}, nil
}

type fakeResponder struct {
	texts  []string
	images [][]byte
}

func (f *fakeResponder) SendText(text string) error  { f.texts = append(f.texts, text); return nil }
func (f *fakeResponder) SendImage(data []byte) error { f.images = append(f.images, data); return nil }

func newTestOperator(t *testing.T, mutate func(*browser.Config)) (*Operator, *fakeCaller, *fakeResponder) {
	t.Helper()
	raw := browser.Config{DataDir: t.TempDir()}
	if mutate != nil {
		mutate(&raw)
	}
	cfg, err := browser.ResolveConfig(raw)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	store, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.db"))
	if err != nil {
		t.Fatalf("open favorites: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	caller := &fakeCaller{results: map[string]*browser.ActionResult{}}
	responder := &fakeResponder{}
	return New(caller, responder, store, cfg), caller, responder
}

// stubScreenshot makes the screenshot verb return a real file.
func stubScreenshot(t *testing.T, caller *fakeCaller) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write stub screenshot: %v", err)
	}
	caller.results["screenshot"] = &browser.ActionResult{Success: true, Path: path}
}

func handle(t *testing.T, op *Operator, line string) {
	t.Helper()
	if err := op.Handle(context.Background(), line); err != nil {
		t.Fatalf("handle %q: %v", line, err)
	}
}

func TestVisitOpensURLAndSendsScreenshot(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)
	stubScreenshot(t, caller)

	handle(t, op, "visit https://a.test/")

	if len(caller.calls) != 2 || caller.calls[0] != "search" || caller.calls[1] != "screenshot" {
		t.Fatalf("calls=%v", caller.calls)
	}
	if caller.args[0].URL != "https://a.test/" {
		t.Fatalf("url=%q", caller.args[0].URL)
	}
	if len(responder.images) != 1 {
		t.Fatalf("images=%d, want 1", len(responder.images))
	}
}

func TestSearchUsesDefaultEngineTemplate(t *testing.T) {
	op, caller, _ := newTestOperator(t, func(cfg *browser.Config) {
		cfg.DefaultSearchEngine = "bing"
	})
	stubScreenshot(t, caller)
	if err := op.favorites.Set("bing", "https://www.bing.com/search?q={keyword}"); err != nil {
		t.Fatalf("seed favorite: %v", err)
	}

	handle(t, op, "search hello world")

	if caller.args[0].URL != "https://www.bing.com/search?q=hello+world" {
		t.Fatalf("url=%q", caller.args[0].URL)
	}
}

func TestNamedEngineSearch(t *testing.T) {
	op, caller, _ := newTestOperator(t, nil)
	stubScreenshot(t, caller)
	if err := op.favorites.Set("baidu", "https://www.baidu.com/s?wd={keyword}"); err != nil {
		t.Fatalf("seed favorite: %v", err)
	}

	handle(t, op, "baidu golang")

	if caller.args[0].URL != "https://www.baidu.com/s?wd=golang" {
		t.Fatalf("url=%q", caller.args[0].URL)
	}
}

func TestUnknownCommand(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)

	handle(t, op, "teleport home")

	if len(caller.calls) != 0 {
		t.Fatalf("calls=%v, want none", caller.calls)
	}
	if len(responder.texts) != 1 || !strings.Contains(responder.texts[0], "unknown command") {
		t.Fatalf("texts=%v", responder.texts)
	}
}

func TestBannedWordBlocksCommand(t *testing.T) {
	op, caller, responder := newTestOperator(t, func(cfg *browser.Config) {
		cfg.BannedWords = []string{"forbidden"}
	})

	handle(t, op, "visit https://forbidden.test/")

	if len(caller.calls) != 0 {
		t.Fatalf("calls=%v, banned input reached the browser", caller.calls)
	}
	if len(responder.texts) != 1 || !strings.Contains(responder.texts[0], "banned word") {
		t.Fatalf("texts=%v", responder.texts)
	}
}

func TestClickParsesCoordinates(t *testing.T) {
	op, caller, _ := newTestOperator(t, nil)
	stubScreenshot(t, caller)

	handle(t, op, "click 100 250")

	if caller.calls[0] != "clickCoord" {
		t.Fatalf("calls=%v", caller.calls)
	}
	got := caller.args[0].Coords
	if len(got) != 2 || got[0] != 100 || got[1] != 250 {
		t.Fatalf("coords=%v", got)
	}
}

func TestClickRejectsBadArguments(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)

	handle(t, op, "click here")

	if len(caller.calls) != 0 {
		t.Fatalf("calls=%v", caller.calls)
	}
	if len(responder.texts) != 1 || !strings.HasPrefix(responder.texts[0], "usage:") {
		t.Fatalf("texts=%v", responder.texts)
	}
}

func TestScrollDefaultsDistance(t *testing.T) {
	op, caller, _ := newTestOperator(t, nil)
	stubScreenshot(t, caller)

	handle(t, op, "scroll down")

	if caller.args[0].Direction != "down" || caller.args[0].Distance != 400 {
		t.Fatalf("args=%+v", caller.args[0])
	}
}

func TestTabNumbersAreOneBased(t *testing.T) {
	op, caller, _ := newTestOperator(t, nil)
	stubScreenshot(t, caller)

	handle(t, op, "tab 1")

	if caller.calls[0] != "switchTab" || caller.args[0].Index != 0 {
		t.Fatalf("calls=%v args=%+v", caller.calls, caller.args[0])
	}
}

func TestCloseTabAcceptsMultipleIndices(t *testing.T) {
	op, caller, _ := newTestOperator(t, nil)
	stubScreenshot(t, caller)

	handle(t, op, "closetab 2 3")

	// Highest pool index first, so the second close still hits the right tab.
	if len(caller.calls) != 3 || caller.calls[0] != "closeTab" || caller.calls[1] != "closeTab" {
		t.Fatalf("calls=%v", caller.calls)
	}
	if caller.args[0].Index != 2 || caller.args[1].Index != 1 {
		t.Fatalf("indices=%d,%d, want 2,1", caller.args[0].Index, caller.args[1].Index)
	}
	if caller.calls[2] != "screenshot" {
		t.Fatalf("calls=%v, want trailing screenshot", caller.calls)
	}
}

func TestCloseTabRejectsNonNumericIndices(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)

	handle(t, op, "closetab one")

	if len(caller.calls) != 0 {
		t.Fatalf("calls=%v", caller.calls)
	}
	if len(responder.texts) != 1 || !strings.HasPrefix(responder.texts[0], "usage:") {
		t.Fatalf("texts=%v", responder.texts)
	}
}

func TestCloseShutsBrowserDown(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)

	handle(t, op, "close")

	if caller.stops != 1 {
		t.Fatalf("stops=%d, want 1", caller.stops)
	}
	if len(caller.calls) != 0 {
		t.Fatalf("calls=%v, close should not dispatch", caller.calls)
	}
	if len(responder.texts) != 1 || responder.texts[0] != "browser closed" {
		t.Fatalf("texts=%v", responder.texts)
	}
}

func TestTabsListsTitles(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)
	caller.results["getAllTabsTitles"] = &browser.ActionResult{
		Success: true,
		Titles:  []string{"First", "Second"},
	}

	handle(t, op, "tabs")

	if len(responder.texts) != 1 {
		t.Fatalf("texts=%v", responder.texts)
	}
	if !strings.Contains(responder.texts[0], "1. First") || !strings.Contains(responder.texts[0], "2. Second") {
		t.Fatalf("text=%q", responder.texts[0])
	}
}

func TestOperationFailureGoesToResponder(t *testing.T) {
	op, caller, responder := newTestOperator(t, nil)
	caller.results["goBack"] = &browser.ActionResult{Success: false, Message: "nothing to go back to"}

	handle(t, op, "back")

	if len(responder.texts) != 1 || responder.texts[0] != "nothing to go back to" {
		t.Fatalf("texts=%v", responder.texts)
	}
	if len(responder.images) != 0 {
		t.Fatal("failed operation still produced a screenshot")
	}
}

func TestFavLifecycle(t *testing.T) {
	op, _, responder := newTestOperator(t, nil)

	handle(t, op, "fav add docs https://pkg.go.dev/")
	handle(t, op, "fav list")
	handle(t, op, "fav rm docs")
	handle(t, op, "fav list")

	if len(responder.texts) != 4 {
		t.Fatalf("texts=%v", responder.texts)
	}
	if !strings.Contains(responder.texts[1], "docs: https://pkg.go.dev/") {
		t.Fatalf("list=%q", responder.texts[1])
	}
	if responder.texts[3] != "no favorites" {
		t.Fatalf("list after rm=%q", responder.texts[3])
	}
}

func TestExpandURLPlaceholders(t *testing.T) {
	got := expandURL("https://e.test/?q={keyword}", "a b&c")
	if got != "https://e.test/?q=a+b%26c" {
		t.Fatalf("got %q", got)
	}

	got = expandURL("https://e.test/?t={timestamp_s}", "")
	if strings.Contains(got, "{timestamp_s}") {
		t.Fatalf("timestamp not expanded: %q", got)
	}
}
