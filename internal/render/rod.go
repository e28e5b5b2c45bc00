package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arzwatch/arzwatch/pkg/logger"
)

const defaultWaitTimeout = 10 * time.Second

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

// RodEngine renders pages with a shared headless Chromium instance. Each
// render runs in its own page (tab); concurrency is bounded by a semaphore so
// a burst of scrape triggers cannot exhaust the host.
type RodEngine struct {
	log      *logger.Logger
	browser  *rod.Browser
	sessions chan struct{}

	// minFreeMemory refuses new sessions when available memory drops below
	// this many bytes. Zero disables the guard.
	minFreeMemory uint64
}

// RodConfig controls the browser pool.
type RodConfig struct {
	MaxSessions   int
	MinFreeMemory uint64
}

// NewRod launches a headless browser and returns an Engine backed by it.
func NewRod(cfg RodConfig, log *logger.Logger) (*RodEngine, error) {
	if log == nil {
		log = logger.NewDefault("render")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 3
	}

	controlURL, err := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RodEngine{
		log:           log,
		browser:       browser,
		sessions:      make(chan struct{}, cfg.MaxSessions),
		minFreeMemory: cfg.MinFreeMemory,
	}, nil
}

// Render loads req.URL in a fresh page, waits for the ready selector and
// returns the rendered markup. The page is closed on all paths.
func (e *RodEngine) Render(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	select {
	case e.sessions <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: acquire session: %v", ErrEngine, ctx.Err())
	}
	defer func() { <-e.sessions }()

	if err := e.checkMemory(); err != nil {
		return "", err
	}

	page, err := e.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("%w: open page: %v", ErrEngine, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.log.WithError(err).Warn("closing render session failed")
		}
	}()

	page = page.Context(ctx)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		return "", fmt.Errorf("%w: set user agent: %v", ErrEngine, err)
	}

	if err := page.Navigate(req.URL); err != nil {
		return "", fmt.Errorf("%w: navigate %s: %v", ErrEngine, req.URL, err)
	}

	if _, err := page.Timeout(timeout).Element(req.WaitSelector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s on %s", ErrTimeout, req.WaitSelector, req.URL)
		}
		return "", fmt.Errorf("%w: wait %s: %v", ErrEngine, req.WaitSelector, err)
	}

	if req.Settle > 0 {
		select {
		case <-time.After(req.Settle):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: settle: %v", ErrEngine, ctx.Err())
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("%w: capture markup: %v", ErrEngine, err)
	}
	return html, nil
}

// Close terminates the shared browser. In-flight renders fail with an engine
// error rather than hang.
func (e *RodEngine) Close() error {
	return e.browser.Close()
}

func (e *RodEngine) checkMemory() error {
	if e.minFreeMemory == 0 {
		return nil
	}
	stat, err := mem.VirtualMemory()
	if err != nil {
		e.log.WithError(err).Warn("memory probe failed; allowing session")
		return nil
	}
	if stat.Available < e.minFreeMemory {
		return fmt.Errorf("%w: available memory %d below floor %d", ErrEngine, stat.Available, e.minFreeMemory)
	}
	return nil
}
