package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() {
		fired = append(fired, "a")
		c.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "late") })

	c.Advance(2 * time.Second)

	want := []string{"a", "a2", "b"}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired %v, want %v", fired, want)
		}
	}
	if got := c.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Errorf("Now() = %v", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Now())
	ran := false
	s := c.AfterFunc(time.Second, func() { ran = true })
	if !s.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}
	if s.Stop() {
		t.Error("second Stop should report false")
	}
	c.Advance(time.Minute)
	if ran {
		t.Error("stopped callback ran")
	}
}

func TestFakeNowDuringCallback(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)
	var seen time.Time
	c.AfterFunc(3*time.Second, func() { seen = c.Now() })
	c.Advance(10 * time.Second)
	if !seen.Equal(start.Add(3 * time.Second)) {
		t.Errorf("callback saw %v, want %v", seen, start.Add(3*time.Second))
	}
}
