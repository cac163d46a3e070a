// Package siwe renders and verifies Sign-In with Ethereum (EIP-4361
// style) personal-sign messages.
package siwe

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrMissingField   = errors.New("missing required payload field")
	ErrInvalidChainID = errors.New("chain id must be a positive integer")
)

// Payload is the structured sign-in request a wallet signs. All eight
// fields are required for the payload to be well-formed; Validate is
// the authority on that, so the fields carry no binding tags.
type Payload struct {
	Address   string `json:"address" example:"0xfe15a1eC58947149F81c33d5f5B6D74d952bc0F2"`
	ChainID   int64  `json:"chainId" example:"1"`
	Domain    string `json:"domain" example:"example.com"`
	IssuedAt  string `json:"issuedAt" example:"2022-03-22T22:52:03.693Z"`
	Nonce     string `json:"nonce" example:"5761ec5dfe"`
	Statement string `json:"statement" example:"Log In with Ethereum"`
	URI       string `json:"uri" example:"https://example.com"`
	Version   string `json:"version" example:"1"`
}

// Validate reports the first missing field, in the canonical field
// order used by the message template's originating implementation.
func (p Payload) Validate() error {
	checks := []struct {
		name  string
		empty bool
	}{
		{"address", p.Address == ""},
		{"chainId", p.ChainID == 0},
		{"domain", p.Domain == ""},
		{"issuedAt", p.IssuedAt == ""},
		{"nonce", p.Nonce == ""},
		{"statement", p.Statement == ""},
		{"uri", p.URI == ""},
		{"version", p.Version == ""},
	}
	for _, c := range checks {
		if c.empty {
			return fmt.Errorf("%w: %s", ErrMissingField, c.name)
		}
	}
	if p.ChainID < 0 {
		return ErrInvalidChainID
	}
	return nil
}

// Message renders the canonical SIWE text. The rendering is plain
// substitution with no escaping; whitespace and line breaks are
// byte-exact because the wallet signs this exact string.
func (p Payload) Message() string {
	return fmt.Sprintf(`%s wants you to sign in with your Ethereum account:
%s

%s

URI: %s
Version: %s
Chain ID: %d
Nonce: %s
Issued At: %s`,
		p.Domain, p.Address, p.Statement, p.URI, p.Version, p.ChainID, p.Nonce, p.IssuedAt)
}
