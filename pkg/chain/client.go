// Package chain provides the read-only contract queries the login
// pipeline needs: ERC-20/721 and ERC-1155 balance lookups.
package chain

import (
	"context"
	"math/big"
)

// Client is the read-only RPC surface used for token gating and
// ERC-1155 role mapping. Implementations must honor the context
// deadline and fail rather than guess on malformed responses.
type Client interface {
	// BalanceOf returns the ERC-20/721 balanceOf(account) value on the
	// given token contract.
	BalanceOf(ctx context.Context, contract, account string) (*big.Int, error)

	// BalanceOf1155 returns the ERC-1155 balanceOf(account, tokenID)
	// value on the given contract.
	BalanceOf1155(ctx context.Context, contract, account string, tokenID *big.Int) (*big.Int, error)
}
