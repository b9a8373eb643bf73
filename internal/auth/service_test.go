package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

type memoryRepo struct {
	byEmail map[string]*User
	byID    map[string]*User
	resets  []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byEmail: map[string]*User{}, byID: map[string]*User{}}
}

func (r *memoryRepo) add(u *User) {
	r.byEmail[u.Email] = u
	r.byID[u.ID] = u
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, user User) (*User, error) {
	if _, ok := r.byEmail[user.Email]; ok {
		return nil, shared.ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = "generated-id"
	}
	r.add(&user)
	return &user, nil
}

func (r *memoryRepo) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Role != nil && update.Role.Valid() {
		u.Role = *update.Role
	}
	return u, nil
}

func (r *memoryRepo) CreatePasswordReset(ctx context.Context, email string) error {
	r.resets = append(r.resets, email)
	return nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestServiceSignIn(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&User{ID: "u-1", Email: "op@kirim.id", Name: "Op", Role: RoleOperator, PasswordHash: hashOf(t, "rahasia1"), IsActive: true})
	svc := NewService(repo)

	user, err := svc.SignIn(context.Background(), Credentials{Email: "op@kirim.id", Password: "rahasia1"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	_, err = svc.SignIn(context.Background(), Credentials{Email: "op@kirim.id", Password: "salah"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), Credentials{Email: "ghost@kirim.id", Password: "rahasia1"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials, "unknown email must not be distinguishable")
}

func TestServiceSignInInactiveAccount(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&User{ID: "u-2", Email: "off@kirim.id", PasswordHash: hashOf(t, "rahasia1"), IsActive: false})
	svc := NewService(repo)

	_, err := svc.SignIn(context.Background(), Credentials{Email: "off@kirim.id", Password: "rahasia1"})
	assert.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestServiceSignUp(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	user, err := svc.SignUp(context.Background(), SignUpParams{
		Name:     "Baru",
		Email:    "baru@kirim.id",
		Password: "rahasia1",
		Role:     Role("bogus"),
	})
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, user.Role, "invalid roles fall back to operator")
	assert.True(t, user.IsActive)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("rahasia1")))

	_, err = svc.SignUp(context.Background(), SignUpParams{Name: "Dua", Email: "baru@kirim.id", Password: "rahasia1"})
	assert.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestServiceGetCurrentUser(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&User{ID: "u-1", Email: "op@kirim.id", IsActive: true})
	repo.add(&User{ID: "u-2", Email: "off@kirim.id", IsActive: false})
	svc := NewService(repo)

	user, err := svc.GetCurrentUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	// Blank, unknown and deactivated references all resolve to anonymous.
	for _, ref := range []string{"", "ghost", "u-2"} {
		user, err := svc.GetCurrentUser(context.Background(), ref)
		require.NoError(t, err)
		assert.Nil(t, user, "ref %q", ref)
	}
}

func TestServiceNotifiesListeners(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&User{ID: "u-1", Email: "op@kirim.id", PasswordHash: hashOf(t, "rahasia1"), IsActive: true})
	svc := NewService(repo)

	var events []ChangeEvent
	unsubscribe := svc.OnAuthStateChange(func(ev ChangeEvent) {
		events = append(events, ev)
	})

	_, err := svc.SignIn(context.Background(), Credentials{Email: "op@kirim.id", Password: "rahasia1"})
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(context.Background(), "u-1"))

	require.Len(t, events, 2)
	assert.NotNil(t, events[0].User)
	assert.Nil(t, events[1].User)
	assert.Equal(t, "u-1", events[1].UserID)

	unsubscribe()
	svc.NotifySignedOut("u-1")
	assert.Len(t, events, 2, "unsubscribed listener must not fire")
}

func TestServiceResetPassword(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(&User{ID: "u-1", Email: "op@kirim.id", IsActive: true})
	svc := NewService(repo)

	require.NoError(t, svc.ResetPassword(context.Background(), "op@kirim.id"))
	assert.Equal(t, []string{"op@kirim.id"}, repo.resets)

	err := svc.ResetPassword(context.Background(), "ghost@kirim.id")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
