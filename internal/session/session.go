// internal/session/session.go
// Package session owns the chromedp attachment to one page: the CDP contexts,
// the navigation epoch counter, and the event wiring that tells the rest of
// the engine when the document changed underneath it.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/internal/config"
)

// Session is the explicit per-attachment context object. Exactly one Session
// drives a page at a time; every CDP operation in the engine flows through
// Run so it inherits the session's lifecycle.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	allocCancel context.CancelFunc

	// epoch counts committed main-frame navigations. Element handles are
	// only meaningful within the epoch they were captured in.
	epoch atomic.Uint64

	mu         sync.RWMutex
	currentURL string
	onNavigate []func()
	onLoad     []func(ctx context.Context)

	closeOnce sync.Once
}

// New attaches to a browser and returns the session. With a remote URL
// configured it attaches over the DevTools websocket; otherwise it launches a
// local browser process.
func New(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.NewString()
	log := logger.Named("session").With(zap.String("session_id", sessionID))

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parentCtx, cfg.RemoteURL)
		log.Info("Attaching to remote browser.", zap.String("remote_url", cfg.RemoteURL))
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
		)
		for _, arg := range cfg.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parentCtx, opts...)
		log.Info("Launching local browser.", zap.Bool("headless", cfg.Headless))
	}

	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:          sessionID,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
	}

	// Materialize the browser before anything depends on it.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}

	chromedp.ListenTarget(ctx, s.handleEvent)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Epoch returns the current navigation epoch.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

// CurrentURL returns the last committed main-frame URL.
func (s *Session) CurrentURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentURL
}

// OnNavigate registers a hook invoked synchronously when a main-frame
// navigation commits, after the epoch has been bumped. Used to reset the
// snapshot lineage.
func (s *Session) OnNavigate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNavigate = append(s.onNavigate, fn)
}

// OnLoad registers a hook invoked on its own goroutine when the page's load
// event fires. Used to resume pending intents.
func (s *Session) OnLoad(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = append(s.onLoad, fn)
}

// Run executes CDP actions under the combined session and caller contexts.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Close detaches from the browser regardless of in-flight plan state. Safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.", zap.Uint64("epoch", s.Epoch()))
		s.cancel()
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return nil
}

// handleEvent dispatches target events. Callbacks from chromedp must not
// block, so the load hooks run on their own goroutines.
func (s *Session) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" {
			return
		}
		epoch := s.epoch.Add(1)
		s.mu.Lock()
		s.currentURL = e.Frame.URL
		hooks := make([]func(), len(s.onNavigate))
		copy(hooks, s.onNavigate)
		s.mu.Unlock()

		s.logger.Debug("Main frame navigated.",
			zap.String("url", e.Frame.URL), zap.Uint64("epoch", epoch))
		for _, fn := range hooks {
			fn()
		}

	case *page.EventLoadEventFired:
		s.mu.RLock()
		hooks := make([]func(ctx context.Context), len(s.onLoad))
		copy(hooks, s.onLoad)
		s.mu.RUnlock()

		s.logger.Debug("Load event fired.", zap.Uint64("epoch", s.Epoch()))
		for _, fn := range hooks {
			go fn(s.ctx)
		}
	}
}
