package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes []time.Time
	err    error
	gate   chan struct{} // when non-nil, WriteLastSeen blocks until closed
}

func (w *recordingWriter) WriteLastSeen(ctx context.Context, userID string, at time.Time) error {
	w.mu.Lock()
	gate := w.gate
	w.mu.Unlock()
	if gate != nil {
		<-gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, at)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(w PresenceWriter) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(w, nil, PresenceConfig{})
	tr.now = clock.Now
	return tr, clock
}

func TestHeartbeatThrottle(t *testing.T) {
	w := &recordingWriter{}
	tr, clock := newTestTracker(w)
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	defer tr.StopSession(ctx, "u1")
	if w.count() != 1 {
		t.Fatalf("writes after start = %d, want 1 immediate forced write", w.count())
	}

	// two touches inside the 60s window: zero additional writes
	clock.Advance(10 * time.Second)
	tr.Touch(ctx, "u1")
	clock.Advance(10 * time.Second)
	tr.Touch(ctx, "u1")
	if w.count() != 1 {
		t.Fatalf("writes after throttled touches = %d, want 1", w.count())
	}

	// past the throttle the next touch lands
	clock.Advance(50 * time.Second)
	tr.Touch(ctx, "u1")
	if w.count() != 2 {
		t.Fatalf("writes after throttle expiry = %d, want 2", w.count())
	}
}

func TestForcedWriteBypassesThrottle(t *testing.T) {
	w := &recordingWriter{}
	tr, clock := newTestTracker(w)
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	clock.Advance(time.Second)
	tr.Flush(ctx, "u1")
	if w.count() != 2 {
		t.Fatalf("writes = %d, want forced flush to bypass throttle", w.count())
	}
	tr.StopSession(ctx, "u1")
	if w.count() != 3 {
		t.Fatalf("writes = %d, want final forced write on stop", w.count())
	}
	if tr.Active("u1") {
		t.Fatal("session still active after stop")
	}
}

func TestInFlightGuardDropsConcurrentWrite(t *testing.T) {
	w := &recordingWriter{}
	tr, clock := newTestTracker(w)
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	defer tr.StopSession(ctx, "u1")
	clock.Advance(time.Second)

	gate := make(chan struct{})
	w.mu.Lock()
	w.gate = gate
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tr.Flush(ctx, "u1") // blocks inside the writer
		close(done)
	}()

	// wait until the first flush is actually in flight
	deadline := time.After(2 * time.Second)
	for !func() bool {
		s := tr.session("u1")
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inFlight
	}() {
		select {
		case <-deadline:
			t.Fatal("first flush never became in-flight")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	tr.Flush(ctx, "u1") // must be dropped, not queued
	w.mu.Lock()
	w.gate = nil
	w.mu.Unlock()
	close(gate)
	<-done

	if got := w.count(); got != 2 { // start + first flush only
		t.Fatalf("writes = %d, want 2 (concurrent flush dropped)", got)
	}
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	w := &recordingWriter{err: errors.New("boom")}
	tr, clock := newTestTracker(w)
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	defer tr.StopSession(ctx, "u1")

	// a failed write must not update the throttle clock: the next touch
	// past the window tries again
	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	clock.Advance(61 * time.Second)
	tr.Touch(ctx, "u1")
	if w.count() != 1 {
		t.Fatalf("writes = %d, want retry on next natural tick", w.count())
	}
}

func TestRestartReplacesSession(t *testing.T) {
	w := &recordingWriter{}
	tr, _ := newTestTracker(w)
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	tr.StartSession(ctx, "u1")
	defer tr.StopSession(ctx, "u1")
	if !tr.Active("u1") {
		t.Fatal("session not active after restart")
	}
	if w.count() != 2 {
		t.Fatalf("writes = %d, want one forced write per start", w.count())
	}
}

func TestBeaconStopsPeriodicWrites(t *testing.T) {
	w := &recordingWriter{}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(w, nil, PresenceConfig{Interval: 10 * time.Millisecond})
	tr.now = clock.Now
	ctx := context.Background()

	tr.StartSession(ctx, "u1")
	clock.Advance(time.Second)
	tr.Beacon(ctx, "u1") // unload: final write + teardown
	if tr.Active("u1") {
		t.Fatal("session still active after beacon")
	}
	got := w.count() // start + final (a ticker write may sneak in between)
	if got < 2 {
		t.Fatalf("writes = %d, want start plus final departure write", got)
	}

	// many intervals later the server must not have written on the departed
	// client's behalf
	time.Sleep(120 * time.Millisecond)
	if w.count() != got {
		t.Fatalf("writes grew to %d after departure, want %d", w.count(), got)
	}
}

func TestBeaconWithoutSession(t *testing.T) {
	w := &recordingWriter{}
	tr, _ := newTestTracker(w)
	tr.Beacon(context.Background(), "u1")
	if w.count() != 1 {
		t.Fatalf("writes = %d, want the departure recorded anyway", w.count())
	}
	if tr.Active("u1") {
		t.Fatal("beacon created a session")
	}
}

func TestTouchWithoutSession(t *testing.T) {
	w := &recordingWriter{}
	tr, _ := newTestTracker(w)
	if tr.Touch(context.Background(), "ghost") {
		t.Fatal("touch without session reported success")
	}
	if w.count() != 0 {
		t.Fatalf("writes = %d, want 0", w.count())
	}
}

func TestOnlineClassification(t *testing.T) {
	cfg := PresenceConfig{}.withDefaults()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	threeMin := now.Add(-3 * time.Minute)
	tenMin := now.Add(-10 * time.Minute)

	if !cfg.Online(&threeMin, now) {
		t.Fatal("3 minutes ago should be online")
	}
	if cfg.Online(&tenMin, now) {
		t.Fatal("10 minutes ago should be offline")
	}
	if cfg.Online(nil, now) {
		t.Fatal("never-seen user should be offline")
	}
}

func TestLastSeenLabel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	cases := []struct {
		lastSeen *time.Time
		want     string
	}{
		{nil, "never seen"},
		{at(20 * time.Second), "just now"},
		{at(1 * time.Minute), "1 minute ago"},
		{at(10 * time.Minute), "10 minutes ago"},
		{at(90 * time.Minute), "1 hour ago"},
		{at(5 * time.Hour), "5 hours ago"},
		{at(26 * time.Hour), "1 day ago"},
		{at(73 * time.Hour), "3 days ago"},
	}
	for _, tc := range cases {
		if got := LastSeenLabel(tc.lastSeen, now); got != tc.want {
			t.Fatalf("LastSeenLabel(%v) = %q, want %q", tc.lastSeen, got, tc.want)
		}
	}
}
