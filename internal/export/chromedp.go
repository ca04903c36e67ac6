package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/versecast/backend/internal/session"
)

// renderTimeout bounds one navigation+apply+capture cycle.
const renderTimeout = 15 * time.Second

// settleJS waits for webfonts plus two animation-frame ticks so the capture
// is never a partially painted frame.
const settleJS = `document.fonts.ready.then(() => new Promise(resolve =>
	requestAnimationFrame(() => requestAnimationFrame(resolve))))`

// ChromeEngine drives one headless Chrome with a lazily created tab per
// exporting session. The tab stays loaded between renders so a capture only
// costs state injection and a screenshot, not a navigation.
type ChromeEngine struct {
	renderURL string // %s receives the session id
	width     int
	height    int

	mu       sync.Mutex
	allocCtx context.Context
	allocCan context.CancelFunc
	tabs     map[string]*tab
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewChromeEngine(renderURL string, width, height int) *ChromeEngine {
	return &ChromeEngine{
		renderURL: renderURL,
		width:     width,
		height:    height,
		tabs:      make(map[string]*tab),
	}
}

// Render implements Engine. Tab creation failures surface as ErrUnavailable
// so the pipeline can fall back to the placeholder; failures against an
// established tab are ordinary render errors and keep the previous artifact.
func (e *ChromeEngine) Render(ctx context.Context, id string, snap session.Snapshot) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	t, err := e.ensureTab(id)
	if err != nil {
		return nil, err
	}

	frames := renderFrames(snap)
	actions := make([]chromedp.Action, 0, len(frames)+4)
	for _, frame := range frames {
		// The page routes live WebSocket traffic through the same entry
		// point, so export and on-air rendering cannot drift apart.
		actions = append(actions, chromedp.Evaluate(fmt.Sprintf("window.versecast.apply(%s)", frame), nil))
	}
	actions = append(actions,
		chromedp.Evaluate(settleJS, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)

	var buf []byte
	actions = append(actions,
		// Alpha 0 background: the capture keeps a true alpha channel
		// instead of compositing onto white.
		emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}),
		chromedp.CaptureScreenshot(&buf),
		emulation.SetDefaultBackgroundColorOverride(),
	)

	if err := runWithDeadline(ctx, t.ctx, actions...); err != nil {
		return nil, fmt.Errorf("render %s: %w", id, err)
	}
	return buf, nil
}

// runWithDeadline runs actions on the tab's context but honors the render
// deadline: the tab context is long-lived, the deadline is per render.
func runWithDeadline(deadline, tabCtx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-deadline.Done():
		return deadline.Err()
	}
}

func (e *ChromeEngine) ensureTab(id string) (*tab, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.tabs[id]; ok {
		return t, nil
	}

	if e.allocCtx == nil {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("force-color-profile", "srgb"),
		)
		e.allocCtx, e.allocCan = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	tabCtx, cancel := chromedp.NewContext(e.allocCtx)
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(e.width), int64(e.height)),
		chromedp.Navigate(fmt.Sprintf(e.renderURL, id)),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		cancel()
		// Launch failures poison the allocator; drop it so the next
		// trigger retries from scratch instead of failing forever.
		e.allocCan()
		e.allocCtx, e.allocCan = nil, nil
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	t := &tab{ctx: tabCtx, cancel: cancel}
	e.tabs[id] = t
	log.Printf("export: render page ready for session %s", id)
	return t, nil
}

// Release implements Engine.
func (e *ChromeEngine) Release(id string) {
	e.mu.Lock()
	t, ok := e.tabs[id]
	delete(e.tabs, id)
	e.mu.Unlock()
	if ok {
		t.cancel()
		log.Printf("export: render page closed for session %s", id)
	}
}

// Close implements Engine.
func (e *ChromeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.tabs {
		t.cancel()
		delete(e.tabs, id)
	}
	if e.allocCan != nil {
		e.allocCan()
		e.allocCtx, e.allocCan = nil, nil
	}
}

// renderFrames converts a snapshot into the ordered message sequence a
// render applies: settings with animations forced off, then overlay show or
// clear, then ticker show or clear.
func renderFrames(snap session.Snapshot) [][]byte {
	frames := make([][]byte, 0, 3)

	frames = append(frames, wireFrame("settings", nil, disableAnimation(snap.EffectiveSettings())))

	if snap.OverlayVisible && len(snap.Overlay) > 0 {
		frames = append(frames, wireFrame("show", snap.Overlay, nil))
	} else {
		frames = append(frames, wireFrame("clear", nil, nil))
	}

	if snap.TickerVisible && len(snap.Ticker) > 0 {
		frames = append(frames, wireFrame("show-ticker", snap.Ticker, nil))
	} else {
		frames = append(frames, wireFrame("clear-ticker", nil, nil))
	}

	return frames
}

func wireFrame(action string, data, settings json.RawMessage) []byte {
	msg := struct {
		Action   string          `json:"action"`
		Data     json.RawMessage `json:"data,omitempty"`
		Settings json.RawMessage `json:"settings,omitempty"`
	}{action, data, settings}
	out, _ := json.Marshal(msg)
	return out
}

// disableAnimation forces the styling document's animation mode off so a
// capture is always the final frame, never mid-transition. Unparseable
// documents are replaced outright; a broken style should not break export.
func disableAnimation(settings json.RawMessage) json.RawMessage {
	doc := make(map[string]any)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &doc); err != nil {
			doc = make(map[string]any)
		}
	}
	doc["animation"] = "none"
	out, _ := json.Marshal(doc)
	return out
}
