package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNoSession is returned for operations that need a signed-in session.
var ErrNoSession = errors.New("no authenticated session")

// State enumerates the lifecycle of a session's authentication.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Snapshot is an immutable view of one session's auth state.
type Snapshot struct {
	State   State
	User    *User
	Message string
	Seq     uint64
}

// IsAuthenticated reports whether the snapshot carries a signed-in user.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Store tracks authentication state per session. Two asynchronous sources
// feed each entry: the initial user fetch and the provider's push
// notifications. Every applied update bumps a per-entry sequence number and
// a fetch that started before the latest update is discarded on completion,
// so a slow initial fetch can never clobber a newer push event.
type Store struct {
	provider Provider
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry

	unsubscribe func()
}

type entry struct {
	state   State
	user    *User
	message string
	seq     uint64
	// inflight counts provider calls started by this session, the initial
	// fetch included. The guard blocks rendering while any are pending;
	// each call releases only its own slot on completion, so a landing
	// fetch cannot unmask a concurrent sign-in.
	inflight int
}

func (e *entry) endOp() {
	if e.inflight > 0 {
		e.inflight--
	}
}

// NewStore constructs a Store over the given provider.
func NewStore(provider Provider, logger *slog.Logger) *Store {
	return &Store{
		provider: provider,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Start subscribes to provider push notifications. Call Stop on shutdown.
func (s *Store) Start() {
	s.unsubscribe = s.provider.OnAuthStateChange(s.handleChange)
}

// Stop detaches the provider subscription.
func (s *Store) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Resolve returns the current snapshot for the session, kicking off the
// initial user fetch when the session has not been seen before. The fetch
// runs in the background; callers observe StateLoading until it lands.
func (s *Store) Resolve(ctx context.Context, sessionID, userRef string) Snapshot {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{state: StateUninitialized}
		s.entries[sessionID] = e
	}
	if e.state == StateUninitialized {
		e.state = StateLoading
		e.inflight++
		startSeq := e.seq
		go s.fetchUser(sessionID, userRef, startSeq)
	}
	snap := e.snapshot()
	s.mu.Unlock()
	return snap
}

// Snapshot returns the state for a session without side effects.
func (s *Store) Snapshot(sessionID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[sessionID]; ok {
		return e.snapshot()
	}
	return Snapshot{State: StateUninitialized}
}

func (s *Store) fetchUser(sessionID, userRef string, startSeq uint64) {
	user, err := s.provider.GetCurrentUser(context.Background(), userRef)

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return
	}
	e.endOp()
	if e.seq != startSeq {
		// A push update landed while the fetch was in flight; the fetch
		// result is stale and must not overwrite it.
		if s.logger != nil {
			s.logger.Debug("discarding stale auth fetch", slog.String("session", sessionID))
		}
		return
	}
	e.seq++
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("initial auth fetch failed", slog.Any("error", err))
		}
		e.state = StateUnauthenticated
		e.user = nil
		return
	}
	if user == nil {
		e.state = StateUnauthenticated
		e.user = nil
		return
	}
	e.state = StateAuthenticated
	e.user = user
}

// SignIn authenticates the session. The returned message is empty on
// success and a localized error otherwise.
func (s *Store) SignIn(ctx context.Context, sessionID string, creds Credentials) (*User, string) {
	s.begin(sessionID)
	user, err := s.provider.SignIn(ctx, creds)
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(sessionID)
	e.endOp()
	e.seq++
	if err != nil {
		e.state = StateUnauthenticated
		e.user = nil
		e.message = TranslateError(err)
		return nil, e.message
	}
	e.state = StateAuthenticated
	e.user = user
	e.message = ""
	return user, ""
}

// SignUp registers a new account and signs the session in.
func (s *Store) SignUp(ctx context.Context, sessionID string, params SignUpParams) (*User, string) {
	s.begin(sessionID)
	user, err := s.provider.SignUp(ctx, params)
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(sessionID)
	e.endOp()
	e.seq++
	if err != nil {
		e.state = StateUnauthenticated
		e.user = nil
		e.message = TranslateError(err)
		return nil, e.message
	}
	e.state = StateAuthenticated
	e.user = user
	e.message = ""
	return user, ""
}

// SignOut ends the session's authentication. On provider failure the user
// is kept and a message recorded; callers force navigation regardless.
func (s *Store) SignOut(ctx context.Context, sessionID string) string {
	s.mu.Lock()
	e := s.ensureLocked(sessionID)
	e.inflight++
	userID := ""
	if e.user != nil {
		userID = e.user.ID
	}
	s.mu.Unlock()

	err := s.provider.SignOut(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.ensureLocked(sessionID)
	e.endOp()
	e.seq++
	if err != nil {
		e.message = TranslateError(err)
		return e.message
	}
	e.state = StateUnauthenticated
	e.user = nil
	e.message = ""
	return ""
}

// ResetPassword asks the provider to start a password reset.
func (s *Store) ResetPassword(ctx context.Context, email string) string {
	if err := s.provider.ResetPassword(ctx, email); err != nil {
		return TranslateError(err)
	}
	return ""
}

// UpdateProfile applies a partial profile change, replacing the cached user
// wholesale with the provider's fresh value.
func (s *Store) UpdateProfile(ctx context.Context, sessionID string, update ProfileUpdate) (*User, string) {
	s.mu.Lock()
	e := s.ensureLocked(sessionID)
	if e.user == nil {
		s.mu.Unlock()
		return nil, TranslateError(ErrNoSession)
	}
	userID := e.user.ID
	e.inflight++
	s.mu.Unlock()

	user, err := s.provider.UpdateProfile(ctx, userID, update)

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.ensureLocked(sessionID)
	e.endOp()
	e.seq++
	if err != nil {
		e.message = TranslateError(err)
		return nil, e.message
	}
	e.user = user
	e.message = ""
	return user, ""
}

// Forget drops the entry for a destroyed session.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}

// InvalidateUser marks every session of the user unauthenticated. Used by
// the logout broadcast so sibling sessions converge without a provider
// round trip.
func (s *Store) InvalidateUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.user != nil && e.user.ID == userID {
			e.seq++
			e.state = StateUnauthenticated
			e.user = nil
			e.message = ""
		}
	}
}

func (s *Store) handleChange(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.user == nil || e.user.ID != ev.UserID {
			continue
		}
		e.seq++
		if ev.User == nil {
			e.state = StateUnauthenticated
			e.user = nil
		} else {
			e.state = StateAuthenticated
			e.user = ev.User
		}
	}
}

func (s *Store) begin(sessionID string) {
	s.mu.Lock()
	e := s.ensureLocked(sessionID)
	e.inflight++
	e.message = ""
	s.mu.Unlock()
}

func (s *Store) ensureLocked(sessionID string) *entry {
	e, ok := s.entries[sessionID]
	if !ok {
		e = &entry{state: StateUnauthenticated}
		s.entries[sessionID] = e
	}
	return e
}

func (e *entry) snapshot() Snapshot {
	state := e.state
	if e.inflight > 0 {
		state = StateLoading
	}
	return Snapshot{State: state, User: e.user, Message: e.message, Seq: e.seq}
}
