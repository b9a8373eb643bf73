package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxIdle is how long a session may sit without recorded activity
// before it is considered stale.
const DefaultMaxIdle = 24 * time.Hour

// ActivityTracker records the last user interaction per session in Redis.
//
// The timestamp is a level-triggered shared fact (the heartbeat), distinct
// from the edge-triggered logout signal in broadcast.go. It is consulted
// only to decide staleness; authorization is solely a function of the auth
// snapshot and the route policy, never of this record.
type ActivityTracker struct {
	client  *redis.Client
	logger  *slog.Logger
	maxIdle time.Duration
	now     func() time.Time
}

// NewActivityTracker constructs an ActivityTracker. maxIdle <= 0 selects
// the default of 24 hours.
func NewActivityTracker(client *redis.Client, logger *slog.Logger, maxIdle time.Duration) *ActivityTracker {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &ActivityTracker{
		client:  client,
		logger:  logger,
		maxIdle: maxIdle,
		now:     time.Now,
	}
}

// UpdateLastActivity overwrites the stored timestamp for the session.
// Storage failures are logged and swallowed; the tracker fails open.
func (t *ActivityTracker) UpdateLastActivity(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	value := t.now().UTC().Format(time.RFC3339Nano)
	if err := t.client.Set(ctx, t.key(sessionID), value, t.maxIdle*2).Err(); err != nil {
		t.warn("update last activity", err)
	}
}

// LastActivity reads the stored timestamp back. Missing, corrupt or
// unreadable values all report no recorded activity.
func (t *ActivityTracker) LastActivity(ctx context.Context, sessionID string) (time.Time, bool) {
	raw, err := t.client.Get(ctx, t.key(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			t.warn("read last activity", err)
		}
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t.warn("parse last activity", err)
		return time.Time{}, false
	}
	return ts, true
}

// IsSessionExpired reports whether recorded activity has gone stale.
// Sessions with no recorded activity are NOT expired: expiry is only
// declared once activity has been seen and then aged out.
func (t *ActivityTracker) IsSessionExpired(last time.Time, recorded bool) bool {
	if !recorded {
		return false
	}
	return t.now().Sub(last) > t.maxIdle
}

// ClearAuthStorage removes the activity record for the session. Called on
// logout and on forced expiry handling.
func (t *ActivityTracker) ClearAuthStorage(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := t.client.Del(ctx, t.key(sessionID)).Err(); err != nil && err != redis.Nil {
		t.warn("clear auth storage", err)
	}
}

// MaxIdle exposes the configured staleness window.
func (t *ActivityTracker) MaxIdle() time.Duration {
	return t.maxIdle
}

func (t *ActivityTracker) key(sessionID string) string {
	return "activity:" + sessionID
}

func (t *ActivityTracker) warn(msg string, err error) {
	if t.logger != nil {
		t.logger.Warn(msg, slog.Any("error", err))
	}
}
