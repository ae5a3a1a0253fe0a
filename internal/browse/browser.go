/*
Package browse wraps a headless Chrome session. One Browser lives for a whole
run; each announcement gets a short-lived Tab that is closed as soon as the
item is done, keeping memory flat across long batches.
*/
package browse

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// userAgent matches what the exchange serves full pages to.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// defaultOpTimeout bounds tab operations whose caller context carries no
// deadline of its own.
const defaultOpTimeout = 60 * time.Second

// Browser owns one headless Chrome process.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// New launches Chrome. The launch happens eagerly so the first navigation
// does not pay the startup cost inside its own timeout.
func New(ctx context.Context) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, eris.Wrap(err, "browse: launch chrome")
	}

	return &Browser{ctx: browserCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

// Close shuts down the browser process.
func (b *Browser) Close() {
	b.cancel()
	b.allocCancel()
}

// Tab is a lightweight page session inside the shared browser.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTab opens a fresh tab.
func (b *Browser) NewTab() *Tab {
	ctx, cancel := chromedp.NewContext(b.ctx)
	return &Tab{ctx: ctx, cancel: cancel}
}

// Close releases the tab.
func (t *Tab) Close() {
	t.cancel()
}

// Navigate loads pageURL and, when waitSelector is non-empty, blocks until
// that element is ready.
func (t *Tab) Navigate(ctx context.Context, pageURL, waitSelector string) error {
	actions := []chromedp.Action{chromedp.Navigate(pageURL)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
	}

	if err := t.run(ctx, actions...); err != nil {
		return eris.Wrapf(err, "browse: navigate %s", pageURL)
	}
	return nil
}

// HTML returns the rendered document markup.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	var out string
	if err := t.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browse: capture html")
	}
	return out, nil
}

// ElementScreenshot captures a PNG of the first element matching selector.
func (t *Tab) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible)); err != nil {
		return nil, eris.Wrapf(err, "browse: screenshot %s", selector)
	}
	return buf, nil
}

// run executes actions on the tab's own context chain (chromedp requires it),
// honoring the caller's deadline and cancellation. Each call is individually
// bounded; no operation can hang past its deadline.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := opContext(ctx, t.ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// opContext derives the per-operation context from the tab's chain, carrying
// over the caller's deadline (or the default op timeout) and its cancellation.
func opContext(caller, tab context.Context) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc

	if deadline, ok := caller.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(tab, deadline)
	} else {
		runCtx, cancel = context.WithTimeout(tab, defaultOpTimeout)
	}

	stop := context.AfterFunc(caller, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
