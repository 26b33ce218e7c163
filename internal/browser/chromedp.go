package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"meetcap/internal/config"
)

const (
	defaultLaunchTimeout = 60 * time.Second
	findTimeout          = 3 * time.Second
	visibleTextScript    = `document.body ? document.body.innerText : ""`
)

// ChromeOptions controls how Chrome is started.
type ChromeOptions struct {
	ExecPath      string
	Headless      bool
	Width         int
	Height        int
	Display       string
	LaunchTimeout time.Duration
}

// ChromeOptionsFromConfig maps configuration onto ChromeOptions.
func ChromeOptionsFromConfig(cfg *config.Config) ChromeOptions {
	if cfg == nil {
		return ChromeOptions{}
	}
	return ChromeOptions{
		ExecPath:      cfg.ChromeBinary(),
		Headless:      cfg.Browser.Headless,
		Width:         cfg.Browser.WindowWidth,
		Height:        cfg.Browser.WindowHeight,
		Display:       cfg.Capture.Display,
		LaunchTimeout: time.Duration(cfg.Browser.LaunchTimeout) * time.Second,
	}
}

// ChromeLauncher starts Chrome through chromedp.
type ChromeLauncher struct {
	opts ChromeOptions
}

// NewChromeLauncher returns a launcher for opts.
func NewChromeLauncher(opts ChromeOptions) *ChromeLauncher {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = defaultLaunchTimeout
	}
	return &ChromeLauncher{opts: opts}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(l.opts.Width, l.opts.Height),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.DisableGPU,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-application-cache", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
	}
	if l.opts.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.Display != "" {
		opts = append(opts, chromedp.Env("DISPLAY="+l.opts.Display))
	}
	return opts
}

// Launch starts Chrome and opens the first tab. The browser outlives ctx; it
// is released by Driver.Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Driver, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(l.opts.LaunchTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-started:
	case <-timer.C:
		err = fmt.Errorf("chrome did not start within %s", l.opts.LaunchTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	return &chromeDriver{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}, nil
}

type chromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// run executes actions on the tab while honoring the caller's ctx.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (d *chromeDriver) Open(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) GrantPermissions(ctx context.Context, origin string, perms []Permission) error {
	types := make([]cdpbrowser.PermissionType, 0, len(perms))
	for _, p := range perms {
		types = append(types, cdpbrowser.PermissionType(p))
	}
	return d.run(ctx, cdpbrowser.GrantPermissions(types).WithOrigin(origin))
}

func (d *chromeDriver) FindVisible(ctx context.Context, q Query) (Element, bool, error) {
	sel, opts := chromeSelector(q)
	opts = append(opts, chromedp.AtLeast(0))

	findCtx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()

	var nodes []*cdp.Node
	var visible *cdp.Node
	err := d.run(findCtx,
		chromedp.Nodes(sel, &nodes, opts...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, n := range nodes {
				box, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
				if err != nil || box == nil {
					continue
				}
				if box.Width > 0 && box.Height > 0 {
					visible = n
					return nil
				}
			}
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return Element{}, false, nil
		}
		return Element{}, false, err
	}
	if visible == nil {
		return Element{}, false, nil
	}
	return Element{Query: q, Handle: visible}, true, nil
}

func (d *chromeDriver) Click(ctx context.Context, el Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.MouseClickNode(node))
}

func (d *chromeDriver) Type(ctx context.Context, el Element, text string) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.SendKeys([]cdp.NodeID{node.NodeID}, text, chromedp.ByNodeID))
}

func (d *chromeDriver) Submit(ctx context.Context, el Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.SendKeys([]cdp.NodeID{node.NodeID}, kb.Enter, chromedp.ByNodeID))
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *chromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := d.run(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (d *chromeDriver) VisibleText(ctx context.Context) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Evaluate(visibleTextScript, &text)); err != nil {
		return "", err
	}
	return text, nil
}

func (d *chromeDriver) Close() error {
	err := chromedp.Cancel(d.ctx)
	d.cancel()
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func chromeSelector(q Query) (string, []chromedp.QueryOption) {
	switch q.Strategy {
	case ByXPath:
		return q.Selector, []chromedp.QueryOption{chromedp.BySearch}
	case ByName:
		return fmt.Sprintf("[name=%q]", q.Selector), []chromedp.QueryOption{chromedp.ByQueryAll}
	case ByID:
		return fmt.Sprintf("[id=%q]", q.Selector), []chromedp.QueryOption{chromedp.ByQueryAll}
	default:
		return strings.TrimSpace(q.Selector), []chromedp.QueryOption{chromedp.ByQueryAll}
	}
}

func nodeOf(el Element) (*cdp.Node, error) {
	node, ok := el.Handle.(*cdp.Node)
	if !ok || node == nil {
		return nil, ErrForeignElement
	}
	return node, nil
}
