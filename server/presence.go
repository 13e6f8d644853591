package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PresenceWriter persists a user's last-seen timestamp. Write failures are
// advisory: the tracker logs them and waits for the next natural tick.
type PresenceWriter interface {
	WriteLastSeen(ctx context.Context, userID string, at time.Time) error
}

type PresenceConfig struct {
	// Interval between periodic heartbeat writes (default 2m)
	Interval time.Duration
	// Throttle is the minimum gap between non-forced writes (default 60s)
	Throttle time.Duration
	// Freshness is the online threshold (default 5m)
	Freshness time.Duration
}

func (c PresenceConfig) withDefaults() PresenceConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Throttle <= 0 {
		c.Throttle = time.Minute
	}
	if c.Freshness <= 0 {
		c.Freshness = 5 * time.Minute
	}
	return c
}

// Online reports whether lastSeen falls within the freshness window. A user
// with no recorded timestamp is never online.
func (c PresenceConfig) Online(lastSeen *time.Time, now time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) < c.Freshness
}

// LastSeenLabel renders the human-readable "last seen X ago" string.
func LastSeenLabel(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return "never seen"
	}
	d := now.Sub(*lastSeen)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Tracker maintains throttled last-seen heartbeats for active sessions. Each
// session runs Idle -> Heartbeating -> Idle: StartSession issues an immediate
// forced write and schedules periodic writes; StopSession cancels the ticker
// and records a final best-effort forced write. Activity touches in between
// share the session throttle.
type Tracker struct {
	cfg    PresenceConfig
	writer PresenceWriter
	log    *slog.Logger
	now    func() time.Time // injectable clock for tests

	mu       sync.Mutex
	sessions map[string]*presenceSession
}

type presenceSession struct {
	userID string
	cancel context.CancelFunc

	mu        sync.Mutex
	lastWrite time.Time
	inFlight  bool
}

func NewTracker(writer PresenceWriter, log *slog.Logger, cfg PresenceConfig) *Tracker {
	return &Tracker{
		cfg:      cfg.withDefaults(),
		writer:   writer,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*presenceSession),
	}
}

func (t *Tracker) Config() PresenceConfig { return t.cfg }

// StartSession moves the user into the heartbeating state. An existing
// session for the same user is replaced so a stale ticker never writes on
// behalf of an old login.
func (t *Tracker) StartSession(ctx context.Context, userID string) {
	t.mu.Lock()
	if old, ok := t.sessions[userID]; ok {
		old.cancel()
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &presenceSession{userID: userID, cancel: cancel}
	t.sessions[userID] = s
	t.mu.Unlock()

	t.write(ctx, s, true)
	go t.heartbeatLoop(sctx, s)
}

// StopSession cancels the periodic heartbeat and records one final forced
// write. Failure of that write is swallowed like any other.
func (t *Tracker) StopSession(ctx context.Context, userID string) {
	t.mu.Lock()
	s, ok := t.sessions[userID]
	if ok {
		delete(t.sessions, userID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	t.write(ctx, s, true)
}

// Touch records user activity (focus, visibility, input). Subject to the
// session throttle; safe to call at any rate. Returns false when the user has
// no active session.
func (t *Tracker) Touch(ctx context.Context, userID string) bool {
	s := t.session(userID)
	if s == nil {
		return false
	}
	t.write(ctx, s, false)
	return true
}

// Flush issues an unconditional forced write without ending the session.
func (t *Tracker) Flush(ctx context.Context, userID string) bool {
	s := t.session(userID)
	if s == nil {
		return false
	}
	t.write(ctx, s, true)
	return true
}

// Beacon handles a client departure (unload beacon): one final write and full
// session teardown, so the periodic heartbeat never keeps writing on behalf of
// a tab that is gone. Works with or without a surviving session.
func (t *Tracker) Beacon(ctx context.Context, userID string) {
	if t.Active(userID) {
		t.StopSession(ctx, userID)
		return
	}
	if err := t.writer.WriteLastSeen(ctx, userID, t.now()); err != nil && t.log != nil {
		t.log.Debug("presence write failed", "user", userID, "err", err)
	}
}

func (t *Tracker) Active(userID string) bool { return t.session(userID) != nil }

func (t *Tracker) session(userID string) *presenceSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[userID]
}

func (t *Tracker) heartbeatLoop(ctx context.Context, s *presenceSession) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.write(ctx, s, false)
		}
	}
}

// write serializes attempts through the in-flight guard: a request arriving
// while another is outstanding is dropped, not queued. Non-forced writes also
// honor the throttle against the last successful write.
func (t *Tracker) write(ctx context.Context, s *presenceSession, forced bool) {
	now := t.now()
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	if !forced && !s.lastWrite.IsZero() && now.Sub(s.lastWrite) < t.cfg.Throttle {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	err := t.writer.WriteLastSeen(ctx, s.userID, now)

	s.mu.Lock()
	s.inFlight = false
	if err == nil {
		s.lastWrite = now
	}
	s.mu.Unlock()

	if err != nil && t.log != nil {
		// staleness is cosmetic; never surfaced to the caller
		t.log.Debug("presence write failed", "user", s.userID, "err", err)
	}
}
