package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	// DefaultCallTimeout bounds a single eth_call round trip.
	DefaultCallTimeout = 8 * time.Second

	balanceOfABI = `[{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

	balanceOf1155ABI = `[{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}]`
)

// contractCaller is the slice of the RPC client the balance queries
// need. Satisfied by *ethclient.Client.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthClient implements Client over a JSON-RPC Ethereum node. Calls are
// bounded by a per-call timeout and retried once on failure; the login
// pipeline treats any remaining error as a closed gate.
type EthClient struct {
	caller  contractCaller
	conn    *ethclient.Client
	timeout time.Duration
	logger  *zap.Logger

	erc20ABI   abi.ABI
	erc1155ABI abi.ABI
}

// Compile-time interface compliance check
var _ Client = (*EthClient)(nil)

// Dial connects to the RPC endpoint and prepares the balanceOf call ABIs.
func Dial(rpcURL string, timeout time.Duration, logger *zap.Logger) (*EthClient, error) {
	conn, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	client, err := newEthClient(conn, timeout, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newEthClient(caller contractCaller, timeout time.Duration, logger *zap.Logger) (*EthClient, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	erc20, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	erc1155, err := abi.JSON(strings.NewReader(balanceOf1155ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc1155 abi: %w", err)
	}

	return &EthClient{
		caller:     caller,
		timeout:    timeout,
		logger:     logger,
		erc20ABI:   erc20,
		erc1155ABI: erc1155,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *EthClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// BalanceOf queries ERC-20/721 balanceOf(account) on the token contract.
func (c *EthClient) BalanceOf(ctx context.Context, contract, account string) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return c.callBalance(ctx, c.erc20ABI, contract, data)
}

// BalanceOf1155 queries ERC-1155 balanceOf(account, tokenID).
func (c *EthClient) BalanceOf1155(ctx context.Context, contract, account string, tokenID *big.Int) (*big.Int, error) {
	data, err := c.erc1155ABI.Pack("balanceOf", common.HexToAddress(account), tokenID)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return c.callBalance(ctx, c.erc1155ABI, contract, data)
}

// callBalance performs the eth_call and unpacks the single uint256
// output, retrying once. Balance queries are idempotent, so a single
// retry is safe; more would stall the login request.
func (c *EthClient) callBalance(ctx context.Context, contractABI abi.ABI, contract string, data []byte) (*big.Int, error) {
	to := common.HexToAddress(contract)
	msg := ethereum.CallMsg{To: &to, Data: data}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		raw, err := c.caller.CallContract(callCtx, msg, nil)
		cancel()
		if err != nil {
			lastErr = err
			c.logger.Warn("balance call failed",
				zap.String("contract", contract),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		out, err := contractABI.Unpack("balanceOf", raw)
		if err != nil {
			return nil, fmt.Errorf("unpack balanceOf: %w", err)
		}
		balance, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected balanceOf output type %T", out[0])
		}
		return balance, nil
	}

	return nil, fmt.Errorf("balance call failed: %w", lastErr)
}
