package auth

import "context"

// Credentials carries a sign-in request.
type Credentials struct {
	Email    string
	Password string
}

// SignUpParams carries a registration request.
type SignUpParams struct {
	Email    string
	Password string
	Name     string
	Role     Role
}

// ProfileUpdate carries a partial profile change. Nil fields are untouched.
type ProfileUpdate struct {
	Name *string
	Role *Role
}

// ChangeEvent is pushed by the provider whenever a user's authentication
// state changes, whatever the trigger. User is nil on sign-out.
type ChangeEvent struct {
	UserID string
	User   *User
}

// Provider is the external authentication boundary. The rest of the system
// treats it as an opaque asynchronous service; the bundled implementation
// is Postgres backed but nothing outside this package may assume that.
type Provider interface {
	SignIn(ctx context.Context, creds Credentials) (*User, error)
	SignUp(ctx context.Context, params SignUpParams) (*User, error)
	SignOut(ctx context.Context, userID string) error
	// GetCurrentUser resolves the user a session refers to. A blank userRef
	// or an unknown account yields (nil, nil): unauthenticated, not an error.
	GetCurrentUser(ctx context.Context, userRef string) (*User, error)
	// OnAuthStateChange registers a push listener. The returned function
	// unsubscribes it.
	OnAuthStateChange(fn func(ChangeEvent)) (unsubscribe func())
	ResetPassword(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*User, error)
}
