// Package browser provides a long-lived headless Chrome session used to drive
// the registry search pages.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is sent by the browser unless Config.UserAgent is set.
const DefaultUserAgent = "Mozilla/5.0 (compatible; RegistryWorker/1.0)"

// DefaultNavigationsPerSecond is the per-host navigation rate used by the CLI.
const DefaultNavigationsPerSecond = 1.0

// ErrNotInitialized is returned when the session is used before Init or after Close.
var ErrNotInitialized = errors.New("browser session is not initialized")

// Config configures the headless browser.
type Config struct {
	Headless  bool
	UserAgent string
	// NavigationsPerSecond throttles navigations per host. Zero disables throttling.
	NavigationsPerSecond float64
	Verbose              bool
}

// Session owns one browser tab that is reused serially across jobs.
type Session struct {
	cfg     Config
	limiter *HostLimiter

	mu            sync.Mutex
	tabCtx        context.Context
	mainFrame     cdp.FrameID
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// NewSession creates an uninitialized session.
func NewSession(cfg Config) *Session {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	var limiter *HostLimiter
	if cfg.NavigationsPerSecond > 0 {
		limiter = NewHostLimiter(cfg.NavigationsPerSecond, 1)
	}
	return &Session{cfg: cfg, limiter: limiter}
}

// Init starts the browser and opens the tab. Requires Chrome/Chromium on the system.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tabCtx != nil {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", s.cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(s.cfg.UserAgent),
		)...,
	)
	tabCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser.
	var mainFrame cdp.FrameID
	err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			mainFrame = tree.Frame.ID
			return nil
		}),
	)
	if err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	s.tabCtx = tabCtx
	s.mainFrame = mainFrame
	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	if s.cfg.Verbose {
		log.Printf("[browser] Session initialized (headless=%v)", s.cfg.Headless)
	}
	return nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tabCtx == nil {
		return nil
	}
	s.browserCancel()
	s.allocCancel()
	s.tabCtx = nil
	log.Printf("[browser] Session closed")
	return nil
}

// runContext returns a context bound to the tab that is also cancelled with ctx.
func (s *Session) runContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	tabCtx := s.tabCtx
	s.mu.Unlock()

	if tabCtx == nil {
		return nil, nil, ErrNotInitialized
	}

	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}, nil
}

// Navigate loads url and waits for the page's networkIdle lifecycle event.
// There is no navigation timeout beyond ctx.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.WaitURL(ctx, url); err != nil {
			return err
		}
	}

	runCtx, cancel, err := s.runContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	s.mu.Lock()
	watcher := &idleWatcher{frame: s.mainFrame}
	s.mu.Unlock()

	idle := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(runCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		if watcher.observe(e) {
			once.Do(func() { close(idle) })
		}
	})

	if s.cfg.Verbose {
		log.Printf("[browser] Navigating to %s", url)
	}
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	select {
	case <-idle:
		return nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("browser closed while loading %s: %w", url, runCtx.Err())
	}
}

// Evaluate runs script in the current page and decodes its result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	runCtx, cancel, err := s.runContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// idleWatcher follows lifecycle events of the main frame and reports when the
// navigation that frame started reaches networkIdle. Child frames are ignored.
type idleWatcher struct {
	frame  cdp.FrameID
	loader cdp.LoaderID
}

func (w *idleWatcher) observe(e *page.EventLifecycleEvent) bool {
	if e.FrameID != w.frame {
		return false
	}
	switch {
	case e.Name == "init" && w.loader == "":
		w.loader = e.LoaderID
	case e.Name == "networkIdle" && w.loader != "" && e.LoaderID == w.loader:
		return true
	}
	return false
}
