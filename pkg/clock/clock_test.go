package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	late := c.After(2 * time.Second)
	early := c.After(time.Second)

	if c.PendingCount() != 2 {
		t.Fatalf("expected 2 pending waiters, got %d", c.PendingCount())
	}

	c.Advance(time.Second)
	select {
	case got := <-early:
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("early fired at %v", got)
		}
	default:
		t.Fatal("expected early waiter to fire")
	}

	select {
	case <-late:
		t.Fatal("late waiter fired too soon")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-late:
	default:
		t.Fatal("expected late waiter to fire")
	}

	if c.PendingCount() != 0 {
		t.Errorf("expected no pending waiters, got %d", c.PendingCount())
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	done := make(chan struct{})

	go func() {
		<-c.After(5 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(5 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter goroutine did not wake")
	}
}
