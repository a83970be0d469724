package websocket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Authenticator verifies the HMAC handshake token presented on connect. The
// token is hex(HMAC-SHA256(secret, "{agent_id}:{unix_ts}")); a timestamp
// outside the skew window is rejected even with a valid signature.
type Authenticator struct {
	secret   []byte
	skew     time.Duration
	required bool
}

// NewAuthenticator creates a handshake verifier. required=false disables
// verification entirely and is meant for development only.
func NewAuthenticator(secret string, skew time.Duration, required bool) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		skew:     skew,
		required: required,
	}
}

// Required reports whether connections must authenticate.
func (a *Authenticator) Required() bool { return a.required }

// Sign produces a token for the canonical string. Exported for clients and
// tests.
func (a *Authenticator) Sign(agentID string, ts time.Time) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%d", agentID, ts.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks agent id, timestamp, and signature. The timestamp arrives as
// a unix-seconds string.
func (a *Authenticator) Verify(agentID, timestamp, token string) error {
	if !a.required {
		return nil
	}
	if agentID == "" || timestamp == "" || token == "" {
		return fmt.Errorf("missing authentication parameters")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp")
	}
	issued := time.Unix(ts, 0)
	now := time.Now()
	if issued.Before(now.Add(-a.skew)) || issued.After(now.Add(a.skew)) {
		return fmt.Errorf("timestamp outside accepted window")
	}

	expected := a.Sign(agentID, issued)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
