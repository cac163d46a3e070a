// Package nonce issues and validates the time-bound login nonces that
// anchor a SIWE exchange, and tracks consumed nonces for single use.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// DefaultLifespan is how long an issued nonce stays valid.
	DefaultLifespan = 6000 * time.Second

	// tokenLen is the number of hex characters exposed to the client.
	tokenLen = 10

	actionKey = "siwe-login-nonce"
)

// Issuer mints keyed-MAC nonce tokens bound to a coarse time tick.
// Validation is a pure function of (token, secret, clock): no state is
// stored at issuance, so concurrent requests need no coordination.
type Issuer struct {
	secret   []byte
	lifespan time.Duration
	now      func() time.Time
}

// NewIssuer creates an issuer with the given secret and lifespan.
// A non-positive lifespan falls back to DefaultLifespan.
func NewIssuer(secret []byte, lifespan time.Duration) *Issuer {
	if lifespan <= 0 {
		lifespan = DefaultLifespan
	}
	return &Issuer{
		secret:   secret,
		lifespan: lifespan,
		now:      time.Now,
	}
}

// WithClock overrides the issuer's clock. Tests only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue produces a fresh nonce token bound to the current time tick.
func (i *Issuer) Issue() string {
	return i.tokenAt(i.tick(0))
}

// Validate recomputes the MAC for the current and previous tick and
// reports whether the token matches either. Tokens survive at most one
// full lifespan; half a lifespan is guaranteed. Malformed input simply
// fails the comparison.
func (i *Issuer) Validate(token string) bool {
	if len(token) != tokenLen {
		return false
	}
	current := i.tokenAt(i.tick(0))
	if hmac.Equal([]byte(token), []byte(current)) {
		return true
	}
	previous := i.tokenAt(i.tick(-1))
	return hmac.Equal([]byte(token), []byte(previous))
}

// Lifespan returns the configured validity window.
func (i *Issuer) Lifespan() time.Duration {
	return i.lifespan
}

// tick returns the current half-life counter, offset by delta ticks.
// Two ticks span one lifespan, which is what gives Validate its
// previous-tick grace window.
func (i *Issuer) tick(delta int64) int64 {
	half := int64(i.lifespan/time.Second) / 2
	if half < 1 {
		half = 1
	}
	now := i.now().Unix()
	return (now+half-1)/half + delta
}

// tokenAt derives the token for a tick: the tail of the hex HMAC,
// truncated to tokenLen characters.
func (i *Issuer) tokenAt(tick int64) string {
	mac := hmac.New(sha256.New, i.secret)
	fmt.Fprintf(mac, "%d|%s", tick, actionKey)
	sum := hex.EncodeToString(mac.Sum(nil))
	return sum[len(sum)-tokenLen-2 : len(sum)-2]
}
