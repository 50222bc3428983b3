// Package operator turns text commands into browser operations and sends the
// outcome, usually a screenshot, back through a Responder.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tabwright/tabwright/internal/browser"
	"github.com/tabwright/tabwright/internal/favorites"
	"github.com/tabwright/tabwright/internal/overlay"
)

// Caller dispatches browser operations and can tear the engine down on
// demand. *browser.Supervisor implements it.
type Caller interface {
	Call(ctx context.Context, method string, args browser.CallArgs) (*browser.ActionResult, error)
	StopEngine()
}

// Responder delivers command output to whoever is driving the session.
type Responder interface {
	SendText(text string) error
	SendImage(data []byte) error
}

// Operator is the command front end over one supervised browser.
type Operator struct {
	caller    Caller
	responder Responder
	favorites *favorites.Store
	cfg       *browser.ResolvedConfig
	log       *slog.Logger
	ruler     *overlay.Ruler
}

// New creates an operator. The favorites store may be nil, which disables the
// fav commands and named search engines.
func New(caller Caller, responder Responder, favs *favorites.Store, cfg *browser.ResolvedConfig) *Operator {
	return &Operator{
		caller:    caller,
		responder: responder,
		favorites: favs,
		cfg:       cfg,
		log:       slog.Default().With("component", "operator"),
		ruler:     overlay.NewRuler(overlay.DefaultStep),
	}
}

const helpText = `commands:
  visit <url>            open a page
  search <keyword>       search with the default engine
  <engine> <keyword>     search with a named favorite
  click <x> <y>          click page coordinates
  swipe <x1> <y1> <x2> <y2>
  scroll <up|down|left|right> [pixels]
  input <text>           type into the first input and press enter
  zoom <scale>           set page zoom
  tabs                   list open tabs
  tab <n>                switch to tab n (1-based)
  closetab <n> [m ...]   close one or more tabs
  close                  shut the browser down now
  back / forward         history navigation
  page / fullpage        screenshot (viewport / full page)
  fav add <name> <url>   manage favorites
  fav rm <name>
  fav list
  fav clear
  help`

// Handle parses and executes one command line. Parse problems and expected
// operation failures go to the responder; only infrastructure errors return.
func (o *Operator) Handle(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	if banned := o.screen(line); banned != "" {
		return o.sendText(fmt.Sprintf("input contains a banned word: %s", banned))
	}

	switch cmd {
	case "help":
		return o.sendText(helpText)
	case "visit":
		if len(args) != 1 {
			return o.sendText("usage: visit <url>")
		}
		return o.visit(ctx, args[0])
	case "search":
		if len(args) == 0 {
			return o.sendText("usage: search <keyword>")
		}
		return o.searchWith(ctx, o.cfg.DefaultSearchEngine, strings.Join(args, " "))
	case "click":
		coords, ok := parseInts(args, 2)
		if !ok {
			return o.sendText("usage: click <x> <y>")
		}
		return o.run(ctx, "clickCoord", browser.CallArgs{Coords: coords}, true)
	case "swipe":
		coords, ok := parseInts(args, 4)
		if !ok {
			return o.sendText("usage: swipe <x1> <y1> <x2> <y2>")
		}
		return o.run(ctx, "swipe", browser.CallArgs{Coords: coords}, true)
	case "scroll":
		return o.scroll(ctx, args)
	case "input":
		if len(args) == 0 {
			return o.sendText("usage: input <text>")
		}
		return o.run(ctx, "textInput", browser.CallArgs{Text: strings.Join(args, " ")}, true)
	case "zoom":
		if len(args) != 1 {
			return o.sendText("usage: zoom <scale>")
		}
		scale, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return o.sendText("zoom scale must be a number")
		}
		return o.run(ctx, "zoomToScale", browser.CallArgs{Scale: scale}, true)
	case "tabs":
		return o.listTabs(ctx)
	case "tab":
		index, ok := parseTabIndex(args)
		if !ok {
			return o.sendText("usage: tab <n>")
		}
		return o.run(ctx, "switchTab", browser.CallArgs{Index: index}, true)
	case "closetab":
		indices, ok := parseTabIndices(args)
		if !ok {
			return o.sendText("usage: closetab <n> [m ...]")
		}
		return o.closeTabs(ctx, indices)
	case "close":
		o.caller.StopEngine()
		return o.sendText("browser closed")
	case "back":
		return o.run(ctx, "goBack", browser.CallArgs{}, true)
	case "forward":
		return o.run(ctx, "goForward", browser.CallArgs{}, true)
	case "page":
		return o.screenshot(ctx, false)
	case "fullpage":
		return o.screenshot(ctx, true)
	case "fav":
		return o.fav(args)
	}

	// Anything else is treated as "<engine> <keyword>" against a favorite.
	if len(args) > 0 && o.favorites != nil {
		if _, ok, err := o.favorites.Get(cmd); err != nil {
			return err
		} else if ok {
			return o.searchWith(ctx, cmd, strings.Join(args, " "))
		}
	}
	return o.sendText(fmt.Sprintf("unknown command %q, try help", cmd))
}

func (o *Operator) visit(ctx context.Context, target string) error {
	return o.run(ctx, "search", browser.CallArgs{URL: expandURL(target, "")}, true)
}

func (o *Operator) searchWith(ctx context.Context, engine, keyword string) error {
	if o.favorites == nil || engine == "" {
		return o.sendText("no search engine configured")
	}
	template, ok, err := o.favorites.Get(engine)
	if err != nil {
		return err
	}
	if !ok {
		return o.sendText(fmt.Sprintf("unknown search engine %q", engine))
	}
	return o.run(ctx, "search", browser.CallArgs{URL: expandURL(template, keyword)}, true)
}

func (o *Operator) scroll(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return o.sendText("usage: scroll <up|down|left|right> [pixels]")
	}
	distance := 400
	if len(args) > 1 {
		d, err := strconv.Atoi(args[1])
		if err != nil || d <= 0 {
			return o.sendText("scroll distance must be a positive integer")
		}
		distance = d
	}
	return o.run(ctx, "scrollBy", browser.CallArgs{Direction: args[0], Distance: distance}, true)
}

// closeTabs closes the given pool indices highest first, so earlier closes do
// not shift the indices still pending. Bad indices are reported and skipped.
func (o *Operator) closeTabs(ctx context.Context, indices []int) error {
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	for _, index := range indices {
		result, err := o.caller.Call(ctx, "closeTab", browser.CallArgs{Index: index})
		if err != nil {
			o.log.Error("operation failed", "method", "closeTab", "error", err)
			return o.sendText(fmt.Sprintf("operation failed: %v", err))
		}
		if result.Message != "" {
			if err := o.sendText(result.Message); err != nil {
				return err
			}
		}
	}
	return o.screenshot(ctx, false)
}

func (o *Operator) listTabs(ctx context.Context) error {
	result, err := o.caller.Call(ctx, "getAllTabsTitles", browser.CallArgs{})
	if err != nil {
		return err
	}
	if !result.Success {
		return o.sendText(result.Message)
	}
	if len(result.Titles) == 0 {
		return o.sendText("no open tabs")
	}
	var b strings.Builder
	for i, title := range result.Titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	return o.sendText(strings.TrimRight(b.String(), "\n"))
}

func (o *Operator) fav(args []string) error {
	if o.favorites == nil {
		return o.sendText("favorites are not available")
	}
	if len(args) == 0 {
		return o.sendText("usage: fav <add|rm|list|clear>")
	}
	switch args[0] {
	case "add":
		if len(args) != 3 {
			return o.sendText("usage: fav add <name> <url>")
		}
		if err := o.favorites.Set(args[1], args[2]); err != nil {
			return err
		}
		return o.sendText(fmt.Sprintf("saved %s", args[1]))
	case "rm":
		if len(args) != 2 {
			return o.sendText("usage: fav rm <name>")
		}
		removed, err := o.favorites.Remove(args[1])
		if err != nil {
			return err
		}
		if !removed {
			return o.sendText(fmt.Sprintf("no favorite named %q", args[1]))
		}
		return o.sendText(fmt.Sprintf("removed %s", args[1]))
	case "list":
		list, err := o.favorites.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return o.sendText("no favorites")
		}
		var b strings.Builder
		for _, f := range list {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.URL)
		}
		return o.sendText(strings.TrimRight(b.String(), "\n"))
	case "clear":
		if err := o.favorites.Clear(); err != nil {
			return err
		}
		return o.sendText("favorites cleared")
	default:
		return o.sendText("usage: fav <add|rm|list|clear>")
	}
}

// run executes one operation and, when it succeeds and shot is set, follows
// up with a screenshot so the operator sees the page state.
func (o *Operator) run(ctx context.Context, method string, args browser.CallArgs, shot bool) error {
	result, err := o.caller.Call(ctx, method, args)
	if err != nil {
		o.log.Error("operation failed", "method", method, "error", err)
		return o.sendText(fmt.Sprintf("operation failed: %v", err))
	}
	if !result.Success {
		return o.sendText(result.Message)
	}
	if result.Message != "" {
		if err := o.sendText(result.Message); err != nil {
			return err
		}
	}
	if shot {
		return o.screenshot(ctx, false)
	}
	return nil
}

func (o *Operator) screenshot(ctx context.Context, fullPage bool) error {
	result, err := o.caller.Call(ctx, "screenshot", browser.CallArgs{
		ZoomFactor: o.cfg.ZoomFactor,
		FullPage:   fullPage,
	})
	if err != nil {
		return o.sendText(fmt.Sprintf("screenshot failed: %v", err))
	}
	if !result.Success {
		return o.sendText(result.Message)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		return fmt.Errorf("read screenshot: %w", err)
	}
	if o.cfg.EnableOverlay {
		composed, err := o.ruler.Compose(data)
		if err != nil {
			o.log.Warn("overlay failed, sending plain screenshot", "error", err)
		} else {
			data = composed
		}
	}
	return o.respondImage(data)
}

func (o *Operator) respondImage(data []byte) error {
	return o.responder.SendImage(data)
}

func (o *Operator) sendText(text string) error {
	return o.responder.SendText(text)
}

// screen returns the first banned word found in the input, or "".
func (o *Operator) screen(line string) string {
	lower := strings.ToLower(line)
	for _, word := range o.cfg.BannedWords {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return word
		}
	}
	return ""
}

// expandURL fills the placeholders a favorite template may carry.
func expandURL(template, keyword string) string {
	now := time.Now()
	replacer := strings.NewReplacer(
		"{keyword}", url.QueryEscape(keyword),
		"{timestamp_s}", strconv.FormatInt(now.Unix(), 10),
		"{timestamp_ms}", strconv.FormatInt(now.UnixMilli(), 10),
	)
	return replacer.Replace(template)
}

func parseInts(args []string, n int) ([]int, bool) {
	if len(args) != n {
		return nil, false
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// parseTabIndex converts the user's 1-based tab number to a pool index.
func parseTabIndex(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

// parseTabIndices converts one or more 1-based tab numbers to pool indices.
func parseTabIndices(args []string) ([]int, bool) {
	if len(args) == 0 {
		return nil, false
	}
	out := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 {
			return nil, false
		}
		out = append(out, n-1)
	}
	return out, true
}
