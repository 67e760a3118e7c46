package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/vault-room-service/internal/domain"
)

func TestToken_IssueVerifyConsume(t *testing.T) {
	svc := NewTokenService("tok-secret", 10*time.Minute)

	token, err := svc.Issue("roomA", "userX")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Verify(token, "roomA", "userX"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Verify сам по себе токен не гасит
	if err := svc.Verify(token, "roomA", "userX"); err != nil {
		t.Fatalf("second Verify before Consume: %v", err)
	}

	svc.Consume(token)
	if err := svc.Verify(token, "roomA", "userX"); !errors.Is(err, domain.ErrTokenUsed) {
		t.Fatalf("after Consume: expected ErrTokenUsed, got %v", err)
	}
	if domain.TokenReason(domain.ErrTokenUsed) != "already-used" {
		t.Fatalf("reason mapping: %s", domain.TokenReason(domain.ErrTokenUsed))
	}
}

func TestToken_PairBinding(t *testing.T) {
	svc := NewTokenService("tok-secret", 10*time.Minute)
	token, _ := svc.Issue("roomA", "userX")

	if err := svc.Verify(token, "roomA", "userY"); !errors.Is(err, domain.ErrTokenWrongIdentity) {
		t.Fatalf("wrong identity: expected ErrTokenWrongIdentity, got %v", err)
	}
	if err := svc.Verify(token, "roomB", "userX"); !errors.Is(err, domain.ErrTokenWrongRoom) {
		t.Fatalf("wrong room: expected ErrTokenWrongRoom, got %v", err)
	}
}

func TestToken_Expiry(t *testing.T) {
	svc := NewTokenService("tok-secret", 10*time.Minute)
	base := time.Now()
	svc.now = func() time.Time { return base }

	token, _ := svc.Issue("r", "u")

	svc.now = func() time.Time { return base.Add(9 * time.Minute) }
	if err := svc.Verify(token, "r", "u"); err != nil {
		t.Fatalf("9 minutes in: %v", err)
	}

	svc.now = func() time.Time { return base.Add(11 * time.Minute) }
	if err := svc.Verify(token, "r", "u"); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("11 minutes in: expected ErrTokenExpired, got %v", err)
	}
}

func TestToken_MalformedAndForged(t *testing.T) {
	svc := NewTokenService("tok-secret", 10*time.Minute)

	if err := svc.Verify("", "r", "u"); !errors.Is(err, domain.ErrTokenMissing) {
		t.Fatalf("empty: expected ErrTokenMissing, got %v", err)
	}
	if err := svc.Verify("no-dot-here", "r", "u"); !errors.Is(err, domain.ErrTokenMalformed) {
		t.Fatalf("no dot: expected ErrTokenMalformed, got %v", err)
	}

	token, _ := svc.Issue("r", "u")
	payload, _, _ := strings.Cut(token, ".")
	if err := svc.Verify(payload+".forged-signature", "r", "u"); !errors.Is(err, domain.ErrTokenBadSignature) {
		t.Fatalf("forged sig: expected ErrTokenBadSignature, got %v", err)
	}

	// токен, подписанный другим секретом
	other := NewTokenService("other-secret", 10*time.Minute)
	foreign, _ := other.Issue("r", "u")
	if err := svc.Verify(foreign, "r", "u"); !errors.Is(err, domain.ErrTokenBadSignature) {
		t.Fatalf("foreign token: expected ErrTokenBadSignature, got %v", err)
	}
}

func TestToken_UsedSetSweep(t *testing.T) {
	svc := NewTokenService("tok-secret", time.Minute)
	base := time.Now()
	svc.now = func() time.Time { return base }

	token, _ := svc.Issue("r", "u")
	svc.Consume(token)

	svc.mu.Lock()
	buckets := len(svc.used)
	svc.mu.Unlock()
	if buckets == 0 {
		t.Fatal("consume did not record the signature")
	}

	// после истечения TTL корзина выметается при следующем обращении
	svc.now = func() time.Time { return base.Add(3 * time.Minute) }
	svc.Consume("x.y")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for bucket := range svc.used {
		if bucket < base.Add(3*time.Minute).Unix()/60 {
			t.Fatalf("stale bucket %d survived sweep", bucket)
		}
	}
}
