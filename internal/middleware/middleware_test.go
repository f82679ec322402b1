package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := SignToken("usr_1", "ada@example.com", true, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}

	var got *Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	WithAuth(inner).ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("claims not attached to context")
	}
	if got.UID != "usr_1" || got.Email != "ada@example.com" || !got.Admin {
		t.Errorf("claims = %+v", got)
	}
}

func TestWithAuthIgnoresBadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := ClaimsFromContext(r.Context()); ok {
			t.Error("claims attached from an invalid token")
		}
	})
	WithAuth(inner).ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("handler not reached")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := SignToken("usr_1", "ada@example.com", false, -time.Minute)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	WithAuth(RequireAuth(okHandler())).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for expired token", rec.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAuth(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	member, err := SignToken("usr_1", "member@example.com", false, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}
	admin, err := SignToken("usr_2", "coach@example.com", true, time.Hour)
	if err != nil {
		t.Fatalf("SignToken() error = %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"member", member, http.StatusForbidden},
		{"admin", admin, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		rec := httptest.NewRecorder()
		WithAuth(RequireAdmin(okHandler())).ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestPerIPLimiter(t *testing.T) {
	l := NewPerIPLimiter(1, 2)
	h := l.Limit(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("first request = %d", got)
	}
	if got := send("10.0.0.1:1234"); got != http.StatusOK {
		t.Fatalf("second request = %d", got)
	}
	if got := send("10.0.0.1:5678"); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429 (burst exhausted)", got)
	}
	// A different client has its own bucket.
	if got := send("10.0.0.2:1234"); got != http.StatusOK {
		t.Fatalf("other client = %d, want 200", got)
	}
}

func TestPerIPLimiterEvictsIdleClients(t *testing.T) {
	l := NewPerIPLimiter(1, 1)
	base := time.Now()
	current := base
	l.now = func() time.Time { return current }

	if !l.allow("10.0.0.1") {
		t.Fatal("first call denied")
	}
	current = base.Add(visitorTTL + time.Minute)
	l.allow("10.0.0.2")

	l.mu.Lock()
	_, stale := l.visitors["10.0.0.1"]
	l.mu.Unlock()
	if stale {
		t.Error("idle visitor not evicted after TTL")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4321"
	if got := ClientIP(req); got != "192.0.2.9" {
		t.Errorf("ClientIP = %q, want 192.0.2.9", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.9")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("ClientIP with XFF = %q, want 203.0.113.7", got)
	}
}
