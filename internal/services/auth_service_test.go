package services

import (
	"testing"
	"time"
)

type authStubStore struct {
	users    map[string]*User
	profiles map[string]*Profile
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{users: map[string]*User{}, profiles: map[string]*Profile{}}
}

func (s *authStubStore) FindUserByEmail(email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) AddUser(u *User) error {
	if _, ok := s.users[u.Email]; ok {
		return ErrEmailTaken
	}
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func (s *authStubStore) SaveProfile(p *Profile) error {
	copy := *p
	s.profiles[p.UserID] = &copy
	return nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, admin bool, ttl time.Duration) (string, error) {
		return "token:" + uid, nil
	})
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGen = func(prefix string, n int) string { return prefix + "123456789abc" }

	res, err := svc.Register("user@example.com", "Secret123", "Sam")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.UserID == "" {
		t.Fatalf("expected id in result: %+v", res)
	}
	if res.Token != "token:"+res.UserID {
		t.Fatalf("unexpected token %q", res.Token)
	}
	profile, ok := store.profiles[res.UserID]
	if !ok {
		t.Fatalf("registration did not create a profile")
	}
	if profile.Timezone != "UTC" || !profile.DailyReminder {
		t.Fatalf("default profile = %+v", profile)
	}

	if _, err = svc.Register("user@example.com", "Secret123", "Sam"); err == nil {
		t.Fatalf("expected conflict error on duplicate registration")
	}

	loginRes, err := svc.Login("user@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("expected token in login response")
	}

	if _, err := svc.Login("user@example.com", "wrong"); err == nil {
		t.Fatalf("expected error for wrong password")
	}
	if _, err := svc.Login("missing@example.com", "Secret123"); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestAuthNormalizesEmail(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, admin bool, ttl time.Duration) (string, error) {
		return "tok", nil
	})

	if _, err := svc.Register("  User@Example.COM ", "Secret123", ""); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, ok := store.users["user@example.com"]; !ok {
		t.Fatalf("email was not normalized: %v", store.users)
	}
	if _, err := svc.Login("USER@example.com", "Secret123"); err != nil {
		t.Fatalf("Login with differently cased email: %v", err)
	}
}

func TestAuthAdminEmails(t *testing.T) {
	store := newAuthStubStore()
	var signedAdmin bool
	svc := NewAuthService(store, func(uid, email string, admin bool, ttl time.Duration) (string, error) {
		signedAdmin = admin
		return "tok", nil
	})
	svc.SetAdminEmails([]string{"Coach@Example.com"})

	res, err := svc.Register("coach@example.com", "Secret123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !res.Admin || !signedAdmin {
		t.Fatalf("configured admin email did not register as admin")
	}

	res, err = svc.Register("member@example.com", "Secret123", "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.Admin {
		t.Fatalf("regular email registered as admin")
	}
}

func TestAuthValidation(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, admin bool, ttl time.Duration) (string, error) {
		return "tok", nil
	})

	if _, err := svc.Register("", "", ""); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := svc.Login("", ""); err == nil {
		t.Fatalf("expected validation error on login")
	}
}
