package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

var testMeta = RequestMeta{IP: "203.0.113.7", UserAgent: "test-agent"}

func newTestCredentials(t *testing.T) (*CredentialService, *fakeUserStore, <-chan event.Event) {
	t.Helper()

	users := newFakeUserStore()
	bus := event.NewBus()
	ch, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	return NewCredentialService(users, bus, 5, 15*time.Minute), users, ch
}

func registerTestUser(t *testing.T, svc *CredentialService) model.User {
	t.Helper()

	user, err := svc.Register(context.Background(), model.RegisterRequest{
		Email:     "alice@example.com",
		Password:  "Passw0rd!",
		FirstName: "Alice",
		LastName:  "Smith",
	}, testMeta)
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	svc, _, ch := newTestCredentials(t)

	user := registerTestUser(t, svc)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, []model.Role{model.RoleCustomer}, user.Roles)
	assert.True(t, user.Active)
	assert.False(t, user.EmailVerified)

	// Stored as a bcrypt hash, never the raw password.
	assert.NotEqual(t, "Passw0rd!", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Passw0rd!")))

	assert.True(t, hasEvent(drainEvents(ch), event.TypeRegistered))
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, _, _ := newTestCredentials(t)

	user, err := svc.Register(context.Background(), model.RegisterRequest{
		Email:     "  Alice@EXAMPLE.com ",
		Password:  "Passw0rd!",
		FirstName: "Alice",
	}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	// The mixed-case variant now collides.
	_, err = svc.Register(context.Background(), model.RegisterRequest{
		Email:    "ALICE@example.COM",
		Password: "Passw0rd!",
	}, testMeta)
	assert.ErrorIs(t, err, model.ErrEmailTaken)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTestCredentials(t)

	_, err := svc.Register(context.Background(), model.RegisterRequest{
		Email:    "not-an-email",
		Password: "Passw0rd!",
	}, testMeta)

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.HTTPStatus)
}

func TestRegisterEnforcesPasswordPolicy(t *testing.T) {
	svc, _, _ := newTestCredentials(t)

	cases := []struct {
		name     string
		password string
	}{
		{"too short", "Ab1!"},
		{"no uppercase", "passw0rd!"},
		{"no lowercase", "PASSW0RD!"},
		{"no digit", "Password!"},
		{"no symbol", "Passw0rd1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), model.RegisterRequest{
				Email:    "bob@example.com",
				Password: tc.password,
			}, testMeta)

			var apiErr *apierror.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 400, apiErr.HTTPStatus)
			assert.NotEmpty(t, apiErr.Errors)
		})
	}
}

func TestVerifyCredentials(t *testing.T) {
	svc, _, ch := newTestCredentials(t)
	registerTestUser(t, svc)

	user, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeLoginSucceeded))
}

func TestVerifyCredentialsWrongPassword(t *testing.T) {
	svc, _, ch := newTestCredentials(t)
	registerTestUser(t, svc)

	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "WrongPass1!", testMeta)
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeLoginFailed))
}

func TestVerifyCredentialsUnknownEmail(t *testing.T) {
	svc, _, _ := newTestCredentials(t)

	// Unknown email and wrong password must be indistinguishable.
	_, err := svc.VerifyCredentials(context.Background(), "nobody@example.com", "Passw0rd!", testMeta)
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestVerifyCredentialsInactiveAccount(t *testing.T) {
	svc, users, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	require.NoError(t, users.SetActive(context.Background(), user.ID, false))

	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	assert.ErrorIs(t, err, model.ErrAccountInactive)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	svc, users, ch := newTestCredentials(t)
	user := registerTestUser(t, svc)

	for i := 0; i < 5; i++ {
		_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "WrongPass1!", testMeta)
		assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	}

	// Even the correct password is refused while the window is open.
	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	assert.ErrorIs(t, err, model.ErrAccountLocked)

	stored, err := users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *stored.LockedUntil, 5*time.Second)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeAccountLocked))
}

func TestLockoutExpires(t *testing.T) {
	svc, users, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	for i := 0; i < 5; i++ {
		_, _ = svc.VerifyCredentials(context.Background(), "alice@example.com", "WrongPass1!", testMeta)
	}

	svc.WithClock(func() time.Time { return time.Now().Add(16 * time.Minute) })

	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	require.NoError(t, err)

	stored, err := users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestUnlockClearsLockout(t *testing.T) {
	svc, _, ch := newTestCredentials(t)
	user := registerTestUser(t, svc)

	for i := 0; i < 5; i++ {
		_, _ = svc.VerifyCredentials(context.Background(), "alice@example.com", "WrongPass1!", testMeta)
	}

	require.NoError(t, svc.Unlock(context.Background(), user.ID, testMeta))

	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	assert.NoError(t, err)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeAccountUnlocked))
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	svc, users, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	for i := 0; i < 3; i++ {
		_, _ = svc.VerifyCredentials(context.Background(), "alice@example.com", "WrongPass1!", testMeta)
	}

	_, err := svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	require.NoError(t, err)

	stored, err := users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestChangePassword(t *testing.T) {
	svc, _, ch := newTestCredentials(t)
	user := registerTestUser(t, svc)

	err := svc.ChangePassword(context.Background(), user.ID, "Passw0rd!", "N3wPassw0rd!", testMeta)
	require.NoError(t, err)

	_, err = svc.VerifyCredentials(context.Background(), "alice@example.com", "Passw0rd!", testMeta)
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	_, err = svc.VerifyCredentials(context.Background(), "alice@example.com", "N3wPassw0rd!", testMeta)
	assert.NoError(t, err)

	assert.True(t, hasEvent(drainEvents(ch), event.TypePasswordChanged))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	svc, _, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	err := svc.ChangePassword(context.Background(), user.ID, "WrongPass1!", "N3wPassw0rd!", testMeta)
	assert.ErrorIs(t, err, model.ErrWrongOldPassword)
}

func TestChangePasswordEnforcesPolicy(t *testing.T) {
	svc, _, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	err := svc.ChangePassword(context.Background(), user.ID, "Passw0rd!", "weak", testMeta)

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.HTTPStatus)
}

func TestAssignRoles(t *testing.T) {
	svc, _, ch := newTestCredentials(t)
	user := registerTestUser(t, svc)

	updated, err := svc.AssignRoles(context.Background(), user.ID, []string{"manager", "ADMIN"}, testMeta)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleManager, model.RoleAdmin}, updated.Roles)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeRolesChanged))
}

func TestAssignRolesRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestCredentials(t)
	user := registerTestUser(t, svc)

	_, err := svc.AssignRoles(context.Background(), user.ID, []string{"superuser"}, testMeta)

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.HTTPStatus)
}

func TestDeactivate(t *testing.T) {
	svc, users, ch := newTestCredentials(t)
	user := registerTestUser(t, svc)

	require.NoError(t, svc.Deactivate(context.Background(), user.ID, testMeta))

	stored, err := users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	assert.True(t, hasEvent(drainEvents(ch), event.TypeAccountDisabled))
}
