package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"CatalogScanner/internal/ports"
)

// DefaultUserAgent is a current desktop Chrome on Windows.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// ChromeOptions configure the real browser.
type ChromeOptions struct {
	// Headless should stay false against the live site: the challenge
	// rejects headless Chrome.
	Headless     bool
	ExecPath     string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// NoSandbox is needed when Chrome runs as root, e.g. in a container.
	NoSandbox bool
}

// ChromeLauncher starts a Chrome instance over the DevTools protocol.
type ChromeLauncher struct {
	opts ChromeOptions
}

var _ ports.BrowserLauncher = (*ChromeLauncher)(nil)

// NewChromeLauncher fills defaults for zero options.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1366, 900
	}
	return &ChromeLauncher{opts: opts}
}

// Launch starts Chrome and opens one tab. The browser outlives ctx; it is
// torn down by Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (ports.Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "pt-PT"),
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
	)
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	if err := startTab(ctx, tabCtx, cancelTab, firstRun); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromeBrowser{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

type chromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	if err := runWithin(ctx, b.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (b *chromeBrowser) Snapshot(ctx context.Context) (ports.Page, error) {
	var page ports.Page
	err := runWithin(ctx, b.ctx,
		chromedp.Location(&page.URL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return ports.Page{}, fmt.Errorf("snapshot: %w", err)
	}
	return page, nil
}

func (b *chromeBrowser) Close() error {
	b.cancel()
	return nil
}

// firstRun allocates the browser. chromedp binds the Chrome process to the
// context of the first Run, so it must receive the long-lived tab context
// and never a derived one that is cancelled afterwards.
func firstRun(tab context.Context) error {
	return chromedp.Run(tab)
}

// startTab runs the allocation on tab itself and aborts it through abort
// if caller is done first.
func startTab(caller, tab context.Context, abort context.CancelFunc, run func(context.Context) error) error {
	stop := context.AfterFunc(caller, abort)
	err := run(tab)
	if !stop() {
		return caller.Err()
	}
	return err
}

// runWithin executes actions on an already started tab while honouring the
// caller's cancellation and deadline.
func runWithin(caller, tab context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if caller.Err() != nil {
			return caller.Err()
		}
		return err
	}
	return nil
}
