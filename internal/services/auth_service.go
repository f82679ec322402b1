package services

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthStore is the storage surface for registration and login.
// FindUserByEmail returns (nil, nil) when no such user exists.
type AuthStore interface {
	FindUserByEmail(email string) (*User, error)
	AddUser(u *User) error
	SaveProfile(p *Profile) error
}

// TokenSigner issues an auth token for the given identity. Injected so the
// services package stays free of JWT details.
type TokenSigner func(uid, email string, admin bool, ttl time.Duration) (string, error)

type AuthService struct {
	store       AuthStore
	now         func() time.Time
	idGen       func(prefix string, n int) string
	signToken   TokenSigner
	tokenTTL    time.Duration
	adminEmails map[string]bool
}

type AuthResult struct {
	Token  string
	UserID string
	Email  string
	Admin  bool
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGen:       func(prefix string, n int) string { return prefix + shortID(n) },
		signToken:   signer,
		tokenTTL:    30 * 24 * time.Hour,
		adminEmails: map[string]bool{},
	}
}

// SetTokenTTL overrides the default token lifetime.
func (s *AuthService) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
}

// SetAdminEmails marks addresses that register as admins. There is no
// in-band promotion path; operators configure admins up front.
func (s *AuthService) SetAdminEmails(emails []string) {
	s.adminEmails = make(map[string]bool, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e != "" {
			s.adminEmails[e] = true
		}
	}
}

// Register creates the user with a default profile and returns a signed
// token.
func (s *AuthService) Register(email, password, name string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	existing, err := s.store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	userID := s.idGen("usr_", 12)
	admin := s.adminEmails[email]
	now := s.now()
	u := &User{
		ID:        userID,
		Email:     email,
		PassHash:  hash,
		Name:      strings.TrimSpace(name),
		Admin:     admin,
		CreatedAt: now,
	}
	if err := s.store.AddUser(u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, NewConflictError("email exists")
		}
		return nil, err
	}
	profile := &Profile{
		UserID:         userID,
		Timezone:       DefaultTimezone,
		DailyReminder:  true,
		WeeklyReminder: true,
	}
	if err := s.store.SaveProfile(profile); err != nil {
		return nil, err
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(userID, email, admin, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: userID, Email: email, Admin: admin}, nil
}

func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, u.Admin, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Email: u.Email, Admin: u.Admin}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
