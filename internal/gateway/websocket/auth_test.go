package websocket

import (
	"strconv"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	a := NewAuthenticator("secret", 5*time.Minute, true)
	now := time.Now()
	token := a.Sign("agent-1", now)

	err := a.Verify("agent-1", strconv.FormatInt(now.Unix(), 10), token)
	if err != nil {
		t.Fatalf("Verify rejected a valid token: %v", err)
	}
}

func TestVerifyRejectsWrongAgent(t *testing.T) {
	a := NewAuthenticator("secret", 5*time.Minute, true)
	now := time.Now()
	token := a.Sign("agent-1", now)

	if err := a.Verify("agent-2", strconv.FormatInt(now.Unix(), 10), token); err == nil {
		t.Error("expected rejection for mismatched agent id")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := NewAuthenticator("secret", 5*time.Minute, true)
	b := NewAuthenticator("other", 5*time.Minute, true)
	now := time.Now()
	token := b.Sign("agent-1", now)

	if err := a.Verify("agent-1", strconv.FormatInt(now.Unix(), 10), token); err == nil {
		t.Error("expected rejection for token from a different secret")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	a := NewAuthenticator("secret", time.Minute, true)
	stale := time.Now().Add(-10 * time.Minute)
	token := a.Sign("agent-1", stale)

	if err := a.Verify("agent-1", strconv.FormatInt(stale.Unix(), 10), token); err == nil {
		t.Error("expected rejection for timestamp outside the skew window")
	}
}

func TestVerifyRejectsMissingParams(t *testing.T) {
	a := NewAuthenticator("secret", time.Minute, true)
	if err := a.Verify("", "", ""); err == nil {
		t.Error("expected rejection for missing parameters")
	}
	if err := a.Verify("agent-1", "not-a-number", "deadbeef"); err == nil {
		t.Error("expected rejection for malformed timestamp")
	}
}

func TestVerifyDisabled(t *testing.T) {
	a := NewAuthenticator("", time.Minute, false)
	if err := a.Verify("", "", ""); err != nil {
		t.Errorf("expected disabled verifier to accept anything, got %v", err)
	}
}
