package nonce

import (
	"context"
	"errors"
)

// Store tracks consumed login nonces so that a captured nonce and
// signature pair cannot be replayed inside the MAC validity window.
// Implementations can use Redis, in-memory, or other backends.
type Store interface {
	// Reserve attempts to reserve a nonce for a login attempt.
	// Returns ErrAlreadyUsed if the nonce is already used or reserved.
	Reserve(ctx context.Context, token, address string) error

	// MarkUsed marks a reserved nonce as consumed (after successful login)
	MarkUsed(ctx context.Context, token, address string) error

	// Release releases a reserved nonce (on pipeline failure, allows retry)
	Release(ctx context.Context, token, address string) error
}

// Error definitions
var (
	ErrAlreadyUsed = errors.New("nonce already used or reserved")
)
