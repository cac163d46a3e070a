// Package user defines the user store the login pipeline provisions
// into, keyed by Ethereum address.
package user

import (
	"context"
	"errors"
	"time"
)

// Meta keys with dedicated profile columns. Everything else lands in
// generic user meta.
const (
	MetaKeyEmail = "email"
	MetaKeyURL   = "url"

	// WalletProvisionedMeta marks accounts created by wallet login,
	// as opposed to pre-existing accounts that later linked a wallet.
	WalletProvisionedMeta = "siwe_user"
)

// Error definitions
var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// User is an account keyed by its Ethereum address.
type User struct {
	Address           string
	DisplayName       string
	Role              string
	Email             string
	URL               string
	WalletProvisioned bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store is the persistence collaborator of the authorization engine.
// Create must enforce address uniqueness; concurrent logins for a new
// address race on it and the losers retry as a lookup.
type Store interface {
	FindByAddress(ctx context.Context, address string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateDisplayName(ctx context.Context, address, displayName string) error
	UpdateRole(ctx context.Context, address, role string) error

	// UpdateProfileField sets one of the dedicated profile columns
	// (MetaKeyEmail, MetaKeyURL).
	UpdateProfileField(ctx context.Context, address, field, value string) error

	SetMeta(ctx context.Context, address, key, value string) error
	GetMeta(ctx context.Context, address, key string) (string, error)
}
