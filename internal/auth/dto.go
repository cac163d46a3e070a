package auth

import (
	"github.com/davisshaver/siwe-login/pkg/siwe"
)

// LoginRequest is the body of POST /api/v1/auth/login. Presence checks
// are done by the service so that missing fields map to the right error
// code instead of a generic binding failure.
type LoginRequest struct {
	Address     string            `json:"address" example:"0xfe15a1eC58947149F81c33d5f5B6D74d952bc0F2"`
	Signature   string            `json:"signature" example:"0x649726..."`
	Nonce       string            `json:"nonce" example:"5761ec5dfe"`
	DisplayName string            `json:"displayName" example:"vitalik.eth"`
	Payload     siwe.Payload      `json:"siwePayload"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// LoginResponse is the success body of POST /api/v1/auth/login. The
// redirect outcome carries Type "redirect" so clients can tell it from
// a completed login without probing for fields.
type LoginResponse struct {
	OK          bool   `json:"ok"`
	Type        string `json:"type,omitempty"`
	Token       string `json:"token,omitempty"`
	Address     string `json:"address,omitempty"`
	Role        string `json:"role,omitempty"`
	Created     bool   `json:"created,omitempty"`
	RedirectURL string `json:"redirectURL,omitempty"`
}

// LoginResult is what the service hands back to the transport layer.
// A non-empty RedirectURL means the signer was authenticated but holds
// none of the mapped tokens, and should be sent elsewhere instead of
// receiving a session.
type LoginResult struct {
	Token       string
	Address     string
	Role        string
	Created     bool
	RedirectURL string
}
