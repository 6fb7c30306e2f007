package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"dev/bravebird/page-verifier/pkg/verifier"
)

// ChromedpDriver opens sessions with chromedp
type ChromedpDriver struct {
	opts Options
}

// NewChromedpDriver creates a chromedp driver
func NewChromedpDriver(opts Options) *ChromedpDriver {
	opts.defaults()
	return &ChromedpDriver{opts: opts}
}

// Open starts a browser through an allocator and runs an empty action to
// force the launch, so failures surface here rather than on navigation.
func (d *ChromedpDriver) Open(ctx context.Context) (verifier.Session, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)

	if d.opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), d.opts.RemoteURL)
	} else {
		allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		allocOpts = append(allocOpts, chromedp.Flag("headless", d.opts.Headless))
		for _, f := range chromeFlags {
			allocOpts = append(allocOpts, chromedp.Flag(f, true))
		}
		if d.opts.Bin != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(d.opts.Bin))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		ctx:        browserCtx,
		navTimeout: d.opts.NavigationTimeout,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	// Bound the launch by the caller's context
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return s, nil
}

type chromedpSession struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration

	closeOnce sync.Once
}

// run executes actions on the session's tab, bounded by both timeout and ctx
func (s *chromedpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) SetViewport(ctx context.Context, width, height int) error {
	return s.run(ctx, s.navTimeout, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

func (s *chromedpSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (s *chromedpSession) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, timeout, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", verifier.ErrElementNotFound, selector)
		}
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", verifier.ErrAttributeMissing, name)
	}
	return value, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 produces PNG
	if err := s.run(ctx, s.navTimeout, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
