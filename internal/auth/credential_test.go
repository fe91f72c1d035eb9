package auth

import (
	"testing"
	"time"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	if len(salt) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(salt))
	}
	a := DeriveKey("s3cret", salt)
	b := DeriveKey("s3cret", salt)
	if a != b {
		t.Fatal("same password and salt must derive the same key")
	}
	if len(a) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(a))
	}
	if DeriveKey("other", salt) == a {
		t.Fatal("different passwords must not collide")
	}
}

func TestSetPasswordRotatesSalt(t *testing.T) {
	now := time.Now()
	s := &Subject{ActiveAt: &now}
	if err := SetPassword(s, "first-password"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	oldSalt := s.Salt
	if !VerifyPassword(s, "first-password") {
		t.Fatal("fresh password must verify")
	}
	if err := SetPassword(s, "second-password"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if s.Salt == oldSalt {
		t.Fatal("salt must rotate on password change")
	}
	if VerifyPassword(s, "first-password") {
		t.Fatal("old password must stop verifying")
	}
	if !VerifyPassword(s, "second-password") {
		t.Fatal("new password must verify")
	}
}

func TestSetPasswordRejectsEmpty(t *testing.T) {
	if err := SetPassword(&Subject{}, ""); KindOf(err) != KindBadRequest {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestVerifyPasswordRequiresActivation(t *testing.T) {
	s := &Subject{}
	if err := SetPassword(s, "s3cret"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	// credential installed but activation never happened
	if VerifyPassword(s, "s3cret") {
		t.Fatal("unactivated subject must not verify")
	}
	now := time.Now()
	s.ActiveAt = &now
	if !VerifyPassword(s, "s3cret") {
		t.Fatal("activated subject must verify")
	}
}

func TestVerifyPasswordMissingMaterial(t *testing.T) {
	now := time.Now()
	cases := []*Subject{
		nil,
		{ActiveAt: &now},
		{ActiveAt: &now, HashedPassword: "deadbeef"},
		{ActiveAt: &now, Salt: "deadbeef"},
	}
	for i, s := range cases {
		if VerifyPassword(s, "anything") {
			t.Fatalf("case %d: subject without full credential must not verify", i)
		}
	}
}
