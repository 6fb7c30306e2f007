package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"dev/bravebird/page-verifier/pkg/verifier"
)

// RodDriver opens sessions with go-rod
type RodDriver struct {
	opts Options
}

// NewRodDriver creates a rod driver
func NewRodDriver(opts Options) *RodDriver {
	opts.defaults()
	return &RodDriver{opts: opts}
}

// Open launches a browser (or connects to RemoteURL) and creates one page
func (d *RodDriver) Open(ctx context.Context) (verifier.Session, error) {
	var (
		controlURL string
		l          *launcher.Launcher
		err        error
	)

	if d.opts.RemoteURL != "" {
		controlURL, err = launcher.ResolveURL(d.opts.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve remote browser: %w", err)
		}
	} else {
		l = launcher.New().Headless(d.opts.Headless)
		if d.opts.Bin != "" {
			l = l.Bin(d.opts.Bin)
		}
		for _, f := range chromeFlags {
			l = l.Set(flags.Flag(f))
		}

		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s := &rodSession{browser: browser, launcher: l, navTimeout: d.opts.NavigationTimeout}

	if d.opts.Stealth {
		s.page, err = stealth.Page(browser)
	} else {
		s.page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if len(d.opts.BlockResources) > 0 {
		s.router = blockResources(s.page, d.opts.BlockResources)
	}

	return s, nil
}

type rodSession struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) SetViewport(ctx context.Context, width, height int) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	page := s.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	// A page that never fires load is still verified
	if err := page.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *rodSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.page.Context(waitCtx).Element(selector)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (s *rodSession) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := s.page.Context(lookupCtx).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", verifier.ErrElementNotFound, selector)
		}
		return "", err
	}

	value, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("%w: %s", verifier.ErrAttributeMissing, name)
	}
	return *value, nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.closeErr = s.browser.Close()
		if s.launcher != nil {
			if s.closeErr != nil {
				s.launcher.Kill()
			}
			s.launcher.Cleanup()
		}
	})
	return s.closeErr
}

// blockResources intercepts requests and fails the listed resource types
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return router
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	default:
		return blockSet[lower]
	}
}
