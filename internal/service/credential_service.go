package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
)

const bcryptCost = 12

// dummyHash keeps the bcrypt cost on the not-found path identical to the
// wrong-password path, so response timing does not reveal whether an email
// is registered.
var dummyHash = []byte("$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW")

// UserStore is the persistence contract the credential layer needs. Declared
// here so tests can swap in an in-memory store.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	UpdateRoles(ctx context.Context, userID string, roles []model.Role) error
	SetActive(ctx context.Context, userID string, active bool) error
	MarkEmailVerified(ctx context.Context, userID string) error
	RecordLogin(ctx context.Context, userID string) error
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	LockAccount(ctx context.Context, userID string, until time.Time) error
	Unlock(ctx context.Context, userID string) error
	List(ctx context.Context) ([]model.User, error)
}

// RequestMeta carries the client context every security event records.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (m RequestMeta) actor(userID string, email string) event.Actor {
	return event.Actor{UserID: userID, Email: email, IP: m.IP, UserAgent: m.UserAgent}
}

func newEvent(t event.Type, actor event.Actor, status string, detail string) event.Event {
	return event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Actor:     actor,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// CredentialService owns user accounts: registration, password verification
// with lockout, password changes and administrative account actions.
type CredentialService struct {
	users       UserStore
	bus         event.Bus
	maxAttempts int
	lockoutFor  time.Duration
	now         func() time.Time
}

func NewCredentialService(users UserStore, bus event.Bus, maxAttempts int, lockoutFor time.Duration) *CredentialService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockoutFor <= 0 {
		lockoutFor = 15 * time.Minute
	}

	return &CredentialService{
		users:       users,
		bus:         bus,
		maxAttempts: maxAttempts,
		lockoutFor:  lockoutFor,
		now:         time.Now,
	}
}

func (s *CredentialService) WithClock(now func() time.Time) *CredentialService {
	s.now = now
	return s
}

func (s *CredentialService) Register(ctx context.Context, req model.RegisterRequest, meta RequestMeta) (model.User, error) {
	email := NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return model.User{}, apierror.Validation("invalid registration payload", []string{"email is not a valid address"})
	}

	if violations := passwordViolations(req.Password); len(violations) > 0 {
		return model.User{}, apierror.Validation("password does not meet the policy", violations)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Roles:        []model.Role{model.RoleCustomer},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return model.User{}, err
	}

	s.bus.Publish(newEvent(event.TypeRegistered, meta.actor(user.ID, user.Email), "success", ""))
	return user, nil
}

// VerifyCredentials checks an email/password pair, enforcing the lockout
// policy. Every failure surfaces as ErrInvalidCredentials or ErrAccountLocked;
// callers never learn whether the email exists.
func (s *CredentialService) VerifyCredentials(ctx context.Context, email string, password string, meta RequestMeta) (model.User, error) {
	user, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.bus.Publish(newEvent(event.TypeLoginFailed, meta.actor("", NormalizeEmail(email)), "failure", "unknown email"))
			return model.User{}, model.ErrInvalidCredentials
		}
		return model.User{}, err
	}

	actor := meta.actor(user.ID, user.Email)

	if user.Locked(s.now()) {
		s.bus.Publish(newEvent(event.TypeLoginFailed, actor, "failure", "account locked"))
		return model.User{}, model.ErrAccountLocked
	}

	if !user.Active {
		s.bus.Publish(newEvent(event.TypeLoginFailed, actor, "failure", "account deactivated"))
		return model.User{}, model.ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, user, actor)
		return model.User{}, model.ErrInvalidCredentials
	}

	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return model.User{}, err
	}

	s.bus.Publish(newEvent(event.TypeLoginSucceeded, actor, "success", ""))
	return user, nil
}

func (s *CredentialService) recordFailure(ctx context.Context, user model.User, actor event.Actor) {
	attempts, err := s.users.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		s.bus.Publish(newEvent(event.TypeLoginFailed, actor, "failure", "bad password"))
		return
	}

	if attempts >= s.maxAttempts {
		until := s.now().Add(s.lockoutFor)
		if err := s.users.LockAccount(ctx, user.ID, until); err == nil {
			s.bus.Publish(newEvent(event.TypeAccountLocked, actor, "locked",
				"failed login threshold reached"))
		}
	}

	s.bus.Publish(newEvent(event.TypeLoginFailed, actor, "failure", "bad password"))
}

func (s *CredentialService) ChangePassword(ctx context.Context, userID string, currentPassword string, newPassword string, meta RequestMeta) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return model.ErrWrongOldPassword
	}

	if violations := passwordViolations(newPassword); len(violations) > 0 {
		return apierror.Validation("new password does not meet the policy", violations)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypePasswordChanged, meta.actor(user.ID, user.Email), "success", ""))
	return nil
}

// Deactivate soft-disables an account. Users are never hard-deleted.
func (s *CredentialService) Deactivate(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypeAccountDisabled, meta.actor(userID, ""), "success", ""))
	return nil
}

func (s *CredentialService) Unlock(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.users.Unlock(ctx, userID); err != nil {
		return err
	}

	s.bus.Publish(newEvent(event.TypeAccountUnlocked, meta.actor(userID, ""), "success", ""))
	return nil
}

func (s *CredentialService) AssignRoles(ctx context.Context, userID string, raw []string, meta RequestMeta) (model.User, error) {
	roles, err := model.ParseRoles(raw)
	if err != nil {
		return model.User{}, apierror.Validation("invalid roles", []string{err.Error()})
	}
	if len(roles) == 0 {
		return model.User{}, apierror.Validation("invalid roles", []string{"at least one role is required"})
	}

	if err := s.users.UpdateRoles(ctx, userID, roles); err != nil {
		return model.User{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}

	s.bus.Publish(newEvent(event.TypeRolesChanged, meta.actor(userID, user.Email), "success",
		strings.Join(model.RoleStrings(roles), ",")))
	return user, nil
}

func (s *CredentialService) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *CredentialService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// passwordViolations enforces the policy: length >= 8, mixed case, a digit
// and a symbol.
func passwordViolations(password string) []string {
	violations := make([]string, 0, 5)
	if len(password) < 8 {
		violations = append(violations, "must be at least 8 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	if !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !digit {
		violations = append(violations, "must contain a digit")
	}
	if !symbol {
		violations = append(violations, "must contain a symbol")
	}

	return violations
}
