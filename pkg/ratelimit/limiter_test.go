package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xHoneyJar/arrakis-sub001/pkg/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewDefaults(t *testing.T) {
	l := New(Options{Clock: clock.Fake(epoch)})
	st := l.State()

	if st.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %v, want %v", st.MaxTokens, DefaultMaxTokens)
	}
	if st.RefillRate != DefaultMaxTokens {
		t.Errorf("RefillRate = %v, want %v", st.RefillRate, DefaultMaxTokens)
	}
	if st.Tokens != DefaultMaxTokens {
		t.Errorf("Tokens = %v, want full bucket", st.Tokens)
	}
	if st.IsRateLimited {
		t.Error("new limiter should not be rate limited")
	}
	if st.TimeSinceLastCreate != NeverCreated {
		t.Errorf("TimeSinceLastCreate = %v, want NeverCreated", st.TimeSinceLastCreate)
	}
}

func TestWaitConsumesTokens(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{MaxTokens: 5, RefillRate: 1, Clock: fc})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !l.CanRequest(KindGeneric) {
			t.Fatalf("request %d: expected capacity", i)
		}
		if err := l.Wait(ctx, KindGeneric); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	if l.CanRequest(KindGeneric) {
		t.Error("expected bucket to be exhausted")
	}
	if got := l.State().Tokens; got > 0.0001 {
		t.Errorf("Tokens = %v, want 0", got)
	}

	fc.Advance(time.Second)
	if !l.CanRequest(KindGeneric) {
		t.Error("expected one token after one second of refill")
	}
}

func TestTokensNeverExceedCapacity(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{MaxTokens: 3, RefillRate: 10, Clock: fc})

	if err := l.Wait(context.Background(), KindUpdate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fc.Advance(time.Hour)

	st := l.State()
	if st.Tokens < 0 || st.Tokens > st.MaxTokens {
		t.Errorf("Tokens = %v, want within [0, %v]", st.Tokens, st.MaxTokens)
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{MaxTokens: 1, RefillRate: 2, Clock: fc})
	ctx := context.Background()

	if err := l.Wait(ctx, KindGeneric); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, KindGeneric) }()

	fc.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("second request should wait for refill")
	default:
	}

	fc.Advance(500 * time.Millisecond)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second request did not proceed after refill")
	}
}

func TestCreateCooldown(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{CreateCooldown: 10 * time.Second, Clock: fc})
	ctx := context.Background()

	if err := l.Wait(ctx, KindCreate); err != nil {
		t.Fatalf("first create: %v", err)
	}
	firstAt := fc.Now()

	if l.CanRequest(KindCreate) {
		t.Error("second create should be held by the cooldown")
	}
	if !l.CanRequest(KindUpdate) {
		t.Error("updates are not subject to the create cooldown")
	}

	admitted := make(chan time.Time, 1)
	go func() {
		if err := l.Wait(ctx, KindCreate); err != nil {
			t.Errorf("second create: %v", err)
		}
		admitted <- fc.Now()
	}()

	fc.WaitForTimers(1)
	fc.Advance(9 * time.Second)
	select {
	case <-admitted:
		t.Fatal("second create admitted before cooldown elapsed")
	default:
	}

	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	select {
	case at := <-admitted:
		if gap := at.Sub(firstAt); gap < 10*time.Second {
			t.Errorf("creates spaced %v apart, want >= 10s", gap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second create was never admitted")
	}

	if got := l.State().TimeSinceLastCreate; got != 0 {
		t.Errorf("TimeSinceLastCreate = %v, want 0", got)
	}
}

func TestMinRequestInterval(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{MinRequestInterval: 100 * time.Millisecond, Clock: fc})

	if err := l.Wait(context.Background(), KindDelete); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.CanRequest(KindGeneric) {
		t.Error("request inside minimum interval should be held")
	}
	fc.Advance(100 * time.Millisecond)
	if !l.CanRequest(KindGeneric) {
		t.Error("request after minimum interval should be allowed")
	}
}

func TestHandleRateLimit(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{Clock: fc})

	if !l.CanRequest(KindGeneric) {
		t.Fatal("expected capacity before rate limit")
	}

	l.HandleRateLimit(2 * time.Second)

	st := l.State()
	if st.Tokens != 0 {
		t.Errorf("Tokens = %v, want 0 after rate limit", st.Tokens)
	}
	if !st.IsRateLimited {
		t.Error("expected IsRateLimited")
	}
	if st.RateLimitedFor != 2*time.Second {
		t.Errorf("RateLimitedFor = %v, want 2s", st.RateLimitedFor)
	}

	for _, kind := range []Kind{KindCreate, KindUpdate, KindDelete, KindGeneric} {
		if l.CanRequest(kind) {
			t.Errorf("%s request should be blocked while rate limited", kind)
		}
	}

	fc.Advance(1500 * time.Millisecond)
	if st := l.State(); st.Tokens != 0 || !st.IsRateLimited {
		t.Errorf("State() inside the window = %+v, want no tokens and rate limited", st)
	}

	fc.Advance(500 * time.Millisecond)
	if l.State().IsRateLimited {
		t.Error("rate limit window should have expired")
	}
	if !l.CanRequest(KindGeneric) {
		t.Error("expected capacity after window expired")
	}
}

func TestHandleRateLimitKeepsLongerWindow(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{Clock: fc})

	l.HandleRateLimit(5 * time.Second)
	l.HandleRateLimit(time.Second)

	if got := l.State().RateLimitedFor; got != 5*time.Second {
		t.Errorf("RateLimitedFor = %v, want 5s", got)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{Clock: fc})
	l.HandleRateLimit(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, KindGeneric) }()

	fc.WaitForTimers(1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestReset(t *testing.T) {
	fc := clock.Fake(epoch)
	l := New(Options{MaxTokens: 2, CreateCooldown: time.Minute, Clock: fc})
	ctx := context.Background()

	_ = l.Wait(ctx, KindCreate)
	l.HandleRateLimit(time.Minute)

	l.Reset()

	st := l.State()
	if st.Tokens != 2 {
		t.Errorf("Tokens = %v, want 2", st.Tokens)
	}
	if st.IsRateLimited {
		t.Error("Reset should clear the rate limit window")
	}
	if st.TimeSinceLastCreate != NeverCreated {
		t.Error("Reset should clear the create cooldown")
	}
	if !l.CanRequest(KindCreate) {
		t.Error("create should be allowed after Reset")
	}
}

func TestDefaultSingleton(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	a := Default()
	b := Default()
	if a != b {
		t.Error("Default should return the same limiter")
	}

	ResetDefault()
	if Default() == a {
		t.Error("ResetDefault should discard the shared limiter")
	}
}
