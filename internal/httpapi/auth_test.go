package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gympro/backend/internal/domain"
)

type directoryStub struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func (s *directoryStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func newDirectoryStub(t *testing.T) *directoryStub {
	t.Helper()
	return &directoryStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  hashPassword(t, "admin123"),
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
			"staff": {
				Username:  "staff",
				Password:  hashPassword(t, "staff123"),
				Role:      "staff",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
			"former": {
				Username:  "former",
				Password:  hashPassword(t, "former123"),
				Role:      "staff",
				Active:    false,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerLoginAndParseToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newDirectoryStub(t))

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %q, want admin", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestAuthManagerRejectsWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newDirectoryStub(t))

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "nope"}); err == nil {
		t.Fatal("expected login with wrong password to fail")
	}
}

func TestAuthManagerRejectsInactiveAccount(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newDirectoryStub(t))

	if _, err := manager.Login(domain.LoginRequest{Username: "former", Password: "former123"}); err == nil {
		t.Fatal("expected login to inactive account to fail")
	}
}

func TestAuthManagerSkipsPlainTextPasswords(t *testing.T) {
	directory := &directoryStub{
		users: map[string]domain.UserAccount{
			"legacy": {
				Username: "legacy",
				Password: "plain-text",
				Role:     "staff",
				Active:   true,
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, directory)

	if _, err := manager.Login(domain.LoginRequest{Username: "legacy", Password: "plain-text"}); err == nil {
		t.Fatal("expected login against a non-hashed stored password to fail")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newDirectoryStub(t))

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := manager.ParseToken(token); err == nil {
			t.Fatalf("expected ParseToken(%q) to fail", token)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one", time.Hour, newDirectoryStub(t))
	verifier := NewAuthManager("secret-two", time.Hour, newDirectoryStub(t))

	resp, err := issuer.Login(domain.LoginRequest{Username: "staff", Password: "staff123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}
