package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testSecret = "test-secret-0123456789"

func testIssuer(t *testing.T, store TokenStore, now func() time.Time) *Issuer {
	t.Helper()
	opts := []IssuerOption{}
	if now != nil {
		opts = append(opts, WithIssuerClock(now))
	}
	iss, err := NewIssuer(testSecret, "HS256", store, opts...)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func TestIssuePersistsEveryIssuance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	iss := testIssuer(t, store.Tokens(ctx), nil)

	t1, err := iss.Issue(ctx, "subj-1", ScopeAccess, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	t2, err := iss.Issue(ctx, "subj-1", ScopeAccess, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, signed := range []string{t1, t2} {
		rec, err := store.Tokens(ctx).Find(ctx, signed)
		if err != nil {
			t.Fatalf("issuance not recorded: %v", err)
		}
		if rec.Scope != ScopeAccess || rec.SubjectID != "subj-1" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	iss := testIssuer(t, store.Tokens(ctx), nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeReset, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "subj-1" || claims.Scope != ScopeReset {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := testIssuer(t, store.Tokens(ctx), func() time.Time { return clock })

	signed, err := iss.Issue(ctx, "subj-1", ScopeAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	_, err = iss.Verify(signed)
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("expected Unauthorized for expired token, got %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	iss := testIssuer(t, store.Tokens(ctx), nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeAccess, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := iss.Verify(tampered); KindOf(err) != KindUnauthorized {
		t.Fatalf("expected Unauthorized for tampered token, got %v", err)
	}

	other, err := NewIssuer("other-secret-0123456789", "HS256", store.Tokens(ctx))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	if _, err := other.Verify(signed); KindOf(err) != KindUnauthorized {
		t.Fatalf("expected Unauthorized across secrets, got %v", err)
	}
}

func TestVerifyScopeMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	iss := testIssuer(t, store.Tokens(ctx), nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeActivate, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.VerifyScope(signed, ScopeAccess); KindOf(err) != KindUnauthorized {
		t.Fatalf("expected Unauthorized for scope mismatch, got %v", err)
	}
	if _, err := iss.VerifyScope(signed, ScopeActivate); err != nil {
		t.Fatalf("matching scope must verify: %v", err)
	}
}

func TestRedeemSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tokens := store.Tokens(ctx)
	iss := testIssuer(t, tokens, nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeActivate, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := tokens.Redeem(ctx, signed); err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if err := tokens.Redeem(ctx, signed); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("second redemption must fail as consumed, got %v", err)
	}
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tokens := store.Tokens(ctx)
	iss := testIssuer(t, tokens, nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeActivate, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 64
	var wins atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := tokens.Redeem(ctx, signed); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestRevokedTokenCannotBeRedeemed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tokens := store.Tokens(ctx)
	iss := testIssuer(t, tokens, nil)

	signed, err := iss.Issue(ctx, "subj-1", ScopeReset, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := tokens.Revoke(ctx, signed); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := tokens.Redeem(ctx, signed); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("revoked token must not redeem, got %v", err)
	}
}

func TestIssuerRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := NewIssuer(testSecret, "RS256", NewMemoryStore().Tokens(context.Background())); err == nil {
		t.Fatal("expected error for non-HMAC algorithm")
	}
}
