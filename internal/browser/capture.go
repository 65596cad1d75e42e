package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one capture when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// RetryableError indicates a transient capture failure that can be retried.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable browser error (%s): %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Options configures a Capturer.
type Options struct {
	// ControlURL is the DevTools websocket of a running browser. Empty
	// launches a local one.
	ControlURL string
	Headless   bool
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Capturer turns URLs into element trees. It holds one browser connection,
// opened on first use, and is safe for concurrent use.
type Capturer struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewCapturer creates a Capturer. No browser is started until Capture.
func NewCapturer(opts Options) *Capturer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Capturer{opts: opts, log: log}
}

func (c *Capturer) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}

	wsURL := c.opts.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(c.opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch: %w", err)
		}
		wsURL = u
		c.lnch = l
		c.log.Info("launched local browser", zap.String("url", wsURL))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if c.lnch != nil {
			c.lnch.Cleanup()
			c.lnch = nil
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.browser = b
	return b, nil
}

// Capture loads url and converts its accessibility tree.
func (c *Capturer) Capture(ctx context.Context, url string) (*element.Tree, error) {
	b, err := c.connect()
	if err != nil {
		return nil, &RetryableError{Op: "connect", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		c.reset()
		return nil, &RetryableError{Op: "open page", Err: err}
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return nil, navigationError("navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, navigationError("wait load", err)
	}

	res, err := proto.AccessibilityGetFullAXTree{}.Call(p)
	if err != nil {
		return nil, navigationError("accessibility tree", err)
	}

	title := url
	if info, err := p.Info(); err == nil && info.Title != "" {
		title = info.Title
	}

	tree := FromAXNodes(title, res.Nodes, func(id proto.DOMBackendNodeID) (element.Rect, bool) {
		box, err := proto.DOMGetBoxModel{BackendNodeID: id}.Call(p)
		if err != nil || box.Model == nil {
			return element.Rect{}, false
		}
		return quadRect(box.Model.Border, box.Model.Width, box.Model.Height), true
	})

	c.log.Debug("page captured",
		zap.String("url", url),
		zap.Int("ax_nodes", len(res.Nodes)),
		zap.Int("elements", tree.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return tree, nil
}

// navigationError marks timeouts and page failures as retryable; a cancelled
// caller is not.
func navigationError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &RetryableError{Op: op, Err: err}
}

// reset drops a connection that stopped answering so the next capture
// reconnects.
func (c *Capturer) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Close shuts the browser down.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Capturer) closeLocked() {
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
}
