package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// Service is the bundled Provider implementation: Postgres accounts with
// bcrypt credentials. Push notifications fan out to registered listeners,
// which covers sign-ins and sign-outs from any session of the same user.
type Service struct {
	repo Repository

	mu        sync.Mutex
	listeners map[int]func(ChangeEvent)
	nextID    int
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{
		repo:      repo,
		listeners: make(map[int]func(ChangeEvent)),
	}
}

var _ Provider = (*Service)(nil)

// SignIn validates email/password credentials.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, creds.Email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	s.notify(ChangeEvent{UserID: user.ID, User: user})
	return user, nil
}

// SignUp registers a new account. Role defaults to operator.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*User, error) {
	if !params.Role.Valid() {
		params.Role = RoleOperator
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.Create(ctx, User{
		Email:        params.Email,
		Name:         params.Name,
		Role:         params.Role,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	s.notify(ChangeEvent{UserID: user.ID, User: user})
	return user, nil
}

// SignOut records the sign-out and notifies listeners.
func (s *Service) SignOut(ctx context.Context, userID string) error {
	if userID != "" {
		s.notify(ChangeEvent{UserID: userID, User: nil})
	}
	return nil
}

// GetCurrentUser resolves the account a session refers to. Unknown or blank
// references resolve to unauthenticated rather than an error.
func (s *Service) GetCurrentUser(ctx context.Context, userRef string) (*User, error) {
	if userRef == "" {
		return nil, nil
	}
	user, err := s.repo.FindByID(ctx, userRef)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// OnAuthStateChange registers a push listener.
func (s *Service) OnAuthStateChange(fn func(ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ResetPassword issues a reset token for the account. Delivery happens out
// of band (worker queue); unknown emails are reported so the UI can say so.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if _, err := s.repo.FindByEmail(ctx, email); err != nil {
		return err
	}
	return s.repo.CreatePasswordReset(ctx, email)
}

// UpdateProfile applies a partial change and returns the fresh record.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*User, error) {
	user, err := s.repo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	s.notify(ChangeEvent{UserID: user.ID, User: user})
	return user, nil
}

// NotifySignedOut lets out-of-process triggers (the logout broadcast) reuse
// the provider's push channel.
func (s *Service) NotifySignedOut(userID string) {
	if userID == "" {
		return
	}
	s.notify(ChangeEvent{UserID: userID, User: nil})
}

func (s *Service) notify(ev ChangeEvent) {
	s.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
