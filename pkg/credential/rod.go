package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type browserPage interface {
	Cookies() ([]*proto.NetworkCookie, error)
	Close() error
}

type opener func(ctx context.Context, opts Options) (browserPage, error)

// RodAcquirer reads a cookie from a page loaded in a headless Chrome.
type RodAcquirer struct {
	opts   Options
	logger *slog.Logger
	open   opener
}

func NewRodAcquirer(opts Options, logger *slog.Logger) *RodAcquirer {
	return &RodAcquirer{
		opts:   opts,
		logger: logger,
		open:   openRod,
	}
}

// Acquire runs under opts.Timeout. The browser is torn down on every path.
func (a *RodAcquirer) Acquire(ctx context.Context) (string, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	page, err := a.open(ctx, a.opts)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", a.opts.URL, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			a.logger.Warn("browser close", "error", err)
		}
	}()

	// cookies are set by scripts after load
	timer := time.NewTimer(a.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	cookies, err := page.Cookies()
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}

	for _, c := range cookies {
		if c.Name == a.opts.CookieName && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNotFound
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	url      string
}

func openRod(ctx context.Context, opts Options) (browserPage, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-gpu")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	s := &rodSession{launcher: l, url: opts.URL}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.URL})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page

	if err := page.WaitLoad(); err != nil {
		s.Close()
		return nil, fmt.Errorf("wait load: %w", err)
	}

	return s, nil
}

func (s *rodSession) Cookies() ([]*proto.NetworkCookie, error) {
	return s.page.Cookies([]string{s.url})
}

// Close kills the browser process even when the CDP close fails, e.g. after
// the context deadline passed.
func (s *rodSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
