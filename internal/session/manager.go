package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

const (
	defaultChallengeTimeout = 30 * time.Second
	defaultPollInterval     = 500 * time.Millisecond
)

// Options tune the warm-up visit made right after launch.
type Options struct {
	HomeURL          string
	ChallengeTimeout time.Duration
	PollInterval     time.Duration
}

// Manager owns the lifecycle of the single browsing session: launched on
// first use, reused afterwards, closed by Release.
type Manager struct {
	launcher ports.BrowserLauncher
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	session  *Session
	startErr error
}

// NewManager wires a launcher. Nothing is started until Acquire.
func NewManager(launcher ports.BrowserLauncher, opts Options, log *slog.Logger) *Manager {
	if opts.ChallengeTimeout <= 0 {
		opts.ChallengeTimeout = defaultChallengeTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{launcher: launcher, opts: opts, logger: log}
}

// Acquire returns the live session, launching the browser on first call.
// A launch failure is returned as *domain.SessionStartError and repeated
// until Release. A launch cut short by ctx returns the context error and is
// not remembered.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.session != nil {
		return m.session, nil
	}
	if m.launcher == nil {
		m.startErr = &domain.SessionStartError{Err: errors.New("browser launcher is not configured")}
		return nil, m.startErr
	}

	m.logger.Info("launching browser session")
	browser, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, m.failStart(ctx, err)
	}

	if err := m.warmUp(ctx, browser); err != nil {
		_ = browser.Close()
		return nil, m.failStart(ctx, err)
	}

	m.session = newSession(browser)
	return m.session, nil
}

func (m *Manager) failStart(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("browser launch interrupted: %w", ctxErr)
	}
	m.startErr = &domain.SessionStartError{Err: err}
	return m.startErr
}

// warmUp visits the home page so challenge cookies are in place before the
// first search. A challenge that does not clear is only logged; resolvers
// deal with it per product.
func (m *Manager) warmUp(ctx context.Context, browser ports.Browser) error {
	if m.opts.HomeURL == "" {
		return nil
	}

	if err := browser.Navigate(ctx, m.opts.HomeURL); err != nil {
		return fmt.Errorf("open %s: %w", m.opts.HomeURL, err)
	}

	cleared, err := WaitForClearance(ctx, browser, m.opts.ChallengeTimeout, m.opts.PollInterval)
	if err != nil {
		return err
	}
	if !cleared {
		m.logger.Warn("challenge page did not clear during warm-up", "timeout", m.opts.ChallengeTimeout)
		return nil
	}

	m.logger.Debug("browser session ready", "home", m.opts.HomeURL)
	return nil
}

// Release closes the browser if one is open and forgets a failed launch, so
// the next Acquire tries again. Safe to call repeatedly.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startErr = nil
	if m.session == nil {
		return nil
	}

	err := m.session.browser.Close()
	m.session = nil
	if err != nil {
		m.logger.Warn("close browser session", "error", err)
		return fmt.Errorf("close browser: %w", err)
	}
	m.logger.Info("browser session closed")
	return nil
}

// Run acquires the session, calls fn and releases the session however fn
// returns. A failed launch is scoped to this call.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	s, err := m.Acquire(ctx)
	if err != nil {
		_ = m.Release()
		return err
	}
	defer func() {
		if relErr := m.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()

	return fn(ctx, s)
}

// WaitForClearance polls the browser until the current page is no longer a
// challenge page. It returns false when timeout elapses first and an error
// only when ctx is done or a snapshot fails.
func WaitForClearance(ctx context.Context, browser ports.Browser, timeout, poll time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		page, err := browser.Snapshot(ctx)
		if err != nil {
			return false, fmt.Errorf("snapshot: %w", err)
		}
		if !IsChallenge(page) {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
