package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// State describes the guard's view of the client session after a check.
type State int

const (
	StateFresh State = iota
	StateNearExpiry
	StateExpired
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateNearExpiry:
		return "near_expiry"
	case StateExpired:
		return "expired"
	default:
		return "invalidated"
	}
}

// Session is the client-held credential the guard keeps alive.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Provider is the identity-provider surface the guard runs against.
// Current returns (nil, nil) when no session exists. Refresh is assumed
// idempotent per current token, so overlapping refresh attempts are safe.
type Provider interface {
	Current(ctx context.Context) (*Session, error)
	Refresh(ctx context.Context, current *Session) (*Session, error)
	SignOut(ctx context.Context) error
}

// ExpiredNotice is shown to the user when the guard forces a sign-out.
// Silent logout is disallowed.
const ExpiredNotice = "Your session has expired. Please sign in again."

type Config struct {
	CheckInterval time.Duration // cadence of the periodic check
	RefreshWindow time.Duration // refresh when less than this remains
	CallTimeout   time.Duration // bound on each provider round trip
	Notify        func(message string)
}

// Guard re-validates the active session on a fixed cadence and whenever
// Wake is called (the client regaining focus or visibility). It refreshes
// proactively near expiry and forces a sign-out, with a single user-visible
// notice, when refresh is no longer possible.
type Guard struct {
	provider Provider
	cfg      Config

	mu    sync.Mutex
	state State

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewGuard(provider Provider, cfg Config) *Guard {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 10 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.Notify == nil {
		cfg.Notify = func(message string) { log.Printf("session: %s", message) }
	}
	return &Guard{
		provider: provider,
		cfg:      cfg,
		state:    StateFresh,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Run drives the periodic checks until Stop is called or ctx is cancelled.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-ticker.C:
		case <-g.wake:
		}
		g.Check(ctx)
	}
}

// Wake requests an immediate check. Non-blocking; a pending wake absorbs
// any further ones, so a burst of focus/visibility events coalesces.
func (g *Guard) Wake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Stop tears the guard down. After Stop returns no further checks run.
func (g *Guard) Stop() {
	g.stopOnce.Do(func() { close(g.done) })
}

// State returns the result of the most recent check.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check runs one validation pass. It is safe to call concurrently with the
// Run loop: provider calls happen outside the lock and only the recorded
// state is guarded, so racing refresh responses cannot corrupt it.
func (g *Guard) Check(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	sess, err := g.provider.Current(ctx)
	if err != nil {
		// Transient provider failure: keep the last known state and let
		// the next trigger retry.
		log.Printf("session: fetch failed: %v", err)
		return g.State()
	}
	if sess == nil {
		return g.setState(StateInvalidated)
	}

	if time.Until(sess.ExpiresAt) >= g.cfg.RefreshWindow {
		return g.setState(StateFresh)
	}

	g.setState(StateNearExpiry)
	if _, err := g.provider.Refresh(ctx, sess); err != nil {
		log.Printf("session: refresh failed, signing out: %v", err)
		if signOutErr := g.provider.SignOut(ctx); signOutErr != nil {
			log.Printf("session: sign-out failed: %v", signOutErr)
		}
		g.cfg.Notify(ExpiredNotice)
		return g.setState(StateExpired)
	}
	return g.setState(StateFresh)
}

func (g *Guard) setState(s State) State {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
	return s
}
