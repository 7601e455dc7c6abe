package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProvider struct {
	mu         sync.Mutex
	session    *Session
	refreshErr error
	currentErr error
	refreshes  int
	signOuts   int
	extendBy   time.Duration
}

func (p *fakeProvider) Current(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return nil, p.currentErr
	}
	if p.session == nil {
		return nil, nil
	}
	copy := *p.session
	return &copy, nil
}

func (p *fakeProvider) Refresh(ctx context.Context, current *Session) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	p.session = &Session{
		AccessToken: current.AccessToken,
		ExpiresAt:   time.Now().Add(p.extendBy),
	}
	copy := *p.session
	return &copy, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.session = nil
	return nil
}

func TestCheckFreshSessionNoRefresh(t *testing.T) {
	p := &fakeProvider{session: &Session{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}}
	g := NewGuard(p, Config{RefreshWindow: 10 * time.Minute, Notify: func(string) {}})

	if got := g.Check(context.Background()); got != StateFresh {
		t.Fatalf("want fresh, got %v", got)
	}
	if p.refreshes != 0 {
		t.Fatalf("expected no refresh, got %d", p.refreshes)
	}
}

func TestCheckNearExpiryRefreshes(t *testing.T) {
	p := &fakeProvider{
		session:  &Session{AccessToken: "t", ExpiresAt: time.Now().Add(8 * time.Minute)},
		extendBy: time.Hour,
	}
	g := NewGuard(p, Config{RefreshWindow: 10 * time.Minute, Notify: func(string) {}})

	if got := g.Check(context.Background()); got != StateFresh {
		t.Fatalf("want fresh after refresh, got %v", got)
	}
	if p.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", p.refreshes)
	}
	sess, _ := p.Current(context.Background())
	if time.Until(sess.ExpiresAt) < 30*time.Minute {
		t.Fatalf("expected expiry to advance, got %v", sess.ExpiresAt)
	}
	if p.signOuts != 0 {
		t.Fatalf("no sign-out expected, got %d", p.signOuts)
	}
}

func TestCheckRefreshFailureSignsOutWithOneNotice(t *testing.T) {
	p := &fakeProvider{
		session:    &Session{AccessToken: "t", ExpiresAt: time.Now().Add(8 * time.Minute)},
		refreshErr: errors.New("refresh rejected"),
	}
	var notices int32
	g := NewGuard(p, Config{
		RefreshWindow: 10 * time.Minute,
		Notify: func(msg string) {
			if msg != ExpiredNotice {
				t.Errorf("unexpected notice %q", msg)
			}
			atomic.AddInt32(&notices, 1)
		},
	})

	if got := g.Check(context.Background()); got != StateExpired {
		t.Fatalf("want expired, got %v", got)
	}
	if p.signOuts != 1 {
		t.Fatalf("expected sign-out, got %d", p.signOuts)
	}

	// Session is gone now; further ticks are no-ops with no repeat notice.
	for range 3 {
		if got := g.Check(context.Background()); got != StateInvalidated {
			t.Fatalf("want invalidated after sign-out, got %v", got)
		}
	}
	if n := atomic.LoadInt32(&notices); n != 1 {
		t.Fatalf("expected exactly one notice, got %d", n)
	}
}

func TestCheckNoSessionIsNoOp(t *testing.T) {
	p := &fakeProvider{}
	g := NewGuard(p, Config{Notify: func(string) { t.Error("unexpected notice") }})

	if got := g.Check(context.Background()); got != StateInvalidated {
		t.Fatalf("want invalidated, got %v", got)
	}
	if p.refreshes != 0 || p.signOuts != 0 {
		t.Fatalf("expected no provider mutations, got %+v", p)
	}
}

func TestCheckTransientFetchFailureKeepsState(t *testing.T) {
	p := &fakeProvider{session: &Session{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}}
	g := NewGuard(p, Config{Notify: func(string) { t.Error("unexpected notice") }})
	g.Check(context.Background())

	p.mu.Lock()
	p.currentErr = errors.New("network down")
	p.mu.Unlock()

	if got := g.Check(context.Background()); got != StateFresh {
		t.Fatalf("transient failure should keep last state, got %v", got)
	}
}

func TestConcurrentWakesAreSafe(t *testing.T) {
	p := &fakeProvider{
		session:  &Session{AccessToken: "t", ExpiresAt: time.Now().Add(5 * time.Minute)},
		extendBy: time.Hour,
	}
	g := NewGuard(p, Config{
		CheckInterval: time.Hour, // only wakes drive this test
		RefreshWindow: 10 * time.Minute,
		Notify:        func(string) {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Wake()
			g.Check(ctx)
		}()
	}
	wg.Wait()
	g.Stop()

	if p.signOuts != 0 {
		t.Fatalf("no sign-out expected, got %d", p.signOuts)
	}
	if got := g.State(); got != StateFresh {
		t.Fatalf("want fresh, got %v", got)
	}
}

func TestStopTearsDownRunLoop(t *testing.T) {
	p := &fakeProvider{}
	g := NewGuard(p, Config{CheckInterval: time.Millisecond, Notify: func(string) {}})

	done := make(chan struct{})
	go func() {
		g.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	g.Stop()
	g.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Stop")
	}

	// No dangling triggers: a wake after Stop must not run a check.
	p.mu.Lock()
	p.session = &Session{AccessToken: "t", ExpiresAt: time.Now()}
	p.refreshErr = errors.New("should not be called")
	p.mu.Unlock()
	g.Wake()
	time.Sleep(10 * time.Millisecond)
	if p.refreshes != 0 {
		t.Fatalf("check ran after Stop")
	}
}
