package auth

import (
	"errors"
	"testing"
	"time"

	"examboard/pkg/interfaces"
)

func TestTokenRoundTrip(t *testing.T) {
	tm, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}

	token, err := tm.IssueToken("proctor")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	username, err := tm.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if username != "proctor" {
		t.Errorf("expected username %q, got %q", "proctor", username)
	}
}

func TestVerifyTokenRejectsForgeries(t *testing.T) {
	tm, _ := NewTokenManager("test-secret", time.Hour)
	other, _ := NewTokenManager("other-secret", time.Hour)

	forged, err := other.IssueToken("proctor")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	cases := []string{
		forged,
		"",
		"not.a.token",
		"garbage",
	}
	for _, token := range cases {
		if _, err := tm.VerifyToken(token); !errors.Is(err, interfaces.ErrUnauthorized) {
			t.Errorf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	tm, _ := NewTokenManager("test-secret", time.Millisecond)
	token, err := tm.IssueToken("proctor")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := tm.VerifyToken(token); !errors.Is(err, interfaces.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestNewTokenManagerValidation(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Error("empty secret accepted")
	}
	if _, err := NewTokenManager("secret", 0); err == nil {
		t.Error("zero TTL accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "hunter2" {
		t.Error("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "hunter2"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, interfaces.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := HashPassword(""); err == nil {
		t.Error("empty password accepted")
	}
}
