package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/types"
)

// Chrome starts a fresh browser process for every page and tears it down on Close.
type Chrome struct {
	logger      types.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	mu          sync.Mutex
	closed      bool
}

func NewChrome(ctx context.Context, config *types.BrowserConfig, userAgent string, logger types.Logger) *Chrome {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", config.Headless))

	if config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Chrome{
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: cancel,
	}
}

func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, types.NewErrorf("browser is closed")
	}

	tabCtx, cancel := chromedp.NewContext(c.allocCtx)
	stop := context.AfterFunc(ctx, cancel)

	// Run with no actions allocates the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		stop()
		cancel()
		return nil, types.WrapError(err, "failed to open browser tab")
	}

	return &chromePage{ctx: tabCtx, cancel: cancel, stop: stop, logger: c.logger}, nil
}

func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.allocCancel()
	}
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	logger types.Logger
}

func (p *chromePage) Navigate(url string) error {
	p.logger.Debug("Browser navigate", zap.String("url", url))
	return chromedp.Run(p.ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(selector string, timeout time.Duration) error {
	ctx := p.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, timeout)
		defer cancel()
	}
	return chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Click(selector string) error {
	return chromedp.Run(p.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Reload() error {
	return chromedp.Run(p.ctx, chromedp.Reload())
}

func (p *chromePage) Evaluate(script string, res interface{}) error {
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, res))
}

func (p *chromePage) Close() error {
	p.stop()
	p.cancel()
	return nil
}
