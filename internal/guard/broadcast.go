package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirim-crm/kirim-crm/internal/auth"
	"github.com/kirim-crm/kirim-crm/internal/shared"
)

const (
	logoutChannel   = "auth:logout"
	logoutSignalKey = "auth:logout:last"
)

// Broadcaster publishes the one-shot logout signal every sibling session
// observes. The signal is an edge-triggered event: the key is written and
// immediately deleted, so it behaves as a broadcast, not persisted state.
// Contrast with the activity heartbeat, which is a level-triggered fact.
type Broadcaster struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(client *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{client: client, logger: logger}
}

// SignalLogout broadcasts that the user signed out somewhere. Failures are
// logged but not returned: the local sign-out must not be blocked by a
// broken broadcast, and disconnected listeners converge on their own.
func (b *Broadcaster) SignalLogout(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	if err := b.client.Set(ctx, logoutSignalKey, userID, 30*time.Second).Err(); err != nil {
		b.warn("write logout signal", err)
	}
	if err := b.client.Publish(ctx, logoutChannel, userID).Err(); err != nil {
		b.warn("publish logout signal", err)
	}
	if err := b.client.Del(ctx, logoutSignalKey).Err(); err != nil {
		b.warn("delete logout signal", err)
	}
}

func (b *Broadcaster) warn(msg string, err error) {
	if b.logger != nil {
		b.logger.Warn(msg, slog.Any("error", err))
	}
}

// Subscriber reacts to logout signals by performing the same cleanup a
// local sign-out does: revoke the user's sessions, clear their activity
// records and invalidate store entries. Sessions not reachable at signal
// time converge via their own provider fetch or next guarded navigation.
type Subscriber struct {
	client   *redis.Client
	sessions *shared.SessionManager
	store    *auth.Store
	activity *ActivityTracker
	logger   *slog.Logger
}

// NewSubscriber constructs a Subscriber.
func NewSubscriber(client *redis.Client, sessions *shared.SessionManager, store *auth.Store, activity *ActivityTracker, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		client:   client,
		sessions: sessions,
		store:    store,
		activity: activity,
		logger:   logger,
	}
}

// Run listens for logout signals until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, logoutChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleLogout(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handleLogout(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	revoked, err := s.sessions.RevokeUserSessions(ctx, userID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("revoke sessions on logout signal", slog.Any("error", err))
		}
	}
	for _, sessionID := range revoked {
		s.activity.ClearAuthStorage(ctx, sessionID)
		s.store.Forget(sessionID)
	}
	s.store.InvalidateUser(userID)
	if s.logger != nil {
		s.logger.Info("logout signal applied",
			slog.String("user", userID),
			slog.Int("sessions", len(revoked)))
	}
}
