package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testContract = "0x00000000000000000000000000000000000000aa"
	testAccount  = "0x00000000000000000000000000000000000000bb"
)

// Canonical 4-byte selectors for the two balanceOf signatures.
var (
	selectorBalanceOf     = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	selectorBalanceOf1155 = []byte{0x00, 0xfd, 0xd5, 0x8e} // balanceOf(address,uint256)
)

// stubCaller replays canned responses per attempt and records every
// call message for inspection.
type stubCaller struct {
	calls   []ethereum.CallMsg
	results [][]byte
	errs    []error
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	i := len(s.calls)
	s.calls = append(s.calls, msg)

	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var out []byte
	if i < len(s.results) {
		out = s.results[i]
	}
	return out, err
}

func uint256Word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func newStubClient(t *testing.T, stub *stubCaller) *EthClient {
	t.Helper()
	client, err := newEthClient(stub, 0, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestBalanceOf(t *testing.T) {
	stub := &stubCaller{results: [][]byte{uint256Word(7)}}
	client := newStubClient(t, stub)

	balance, err := client.BalanceOf(context.Background(), testContract, testAccount)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7), balance)

	require.Len(t, stub.calls, 1)
	msg := stub.calls[0]
	assert.Equal(t, common.HexToAddress(testContract), *msg.To)
	require.Len(t, msg.Data, 4+32)
	assert.Equal(t, selectorBalanceOf, msg.Data[:4])
	assert.Equal(t, common.HexToAddress(testAccount).Bytes(), msg.Data[16:36])
}

func TestBalanceOf1155(t *testing.T) {
	stub := &stubCaller{results: [][]byte{uint256Word(1)}}
	client := newStubClient(t, stub)

	tokenID := big.NewInt(42)
	balance, err := client.BalanceOf1155(context.Background(), testContract, testAccount, tokenID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), balance)

	require.Len(t, stub.calls, 1)
	msg := stub.calls[0]
	require.Len(t, msg.Data, 4+64)
	assert.Equal(t, selectorBalanceOf1155, msg.Data[:4])
	assert.Equal(t, common.HexToAddress(testAccount).Bytes(), msg.Data[16:36])
	assert.Equal(t, uint256Word(42), msg.Data[36:68])
}

func TestBalanceOfRetriesOnce(t *testing.T) {
	stub := &stubCaller{
		errs:    []error{errors.New("connection reset")},
		results: [][]byte{nil, uint256Word(3)},
	}
	client := newStubClient(t, stub)

	balance, err := client.BalanceOf(context.Background(), testContract, testAccount)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3), balance)
	assert.Len(t, stub.calls, 2)
}

func TestBalanceOfFailsAfterRetry(t *testing.T) {
	rpcErr := errors.New("connection refused")
	stub := &stubCaller{errs: []error{rpcErr, rpcErr}}
	client := newStubClient(t, stub)

	_, err := client.BalanceOf(context.Background(), testContract, testAccount)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcErr)
	assert.Len(t, stub.calls, 2)
}

func TestBalanceOfRejectsEmptyReturnData(t *testing.T) {
	// A contract without the method (or a selfdestructed one) returns
	// no data; that must surface as an error, not a zero balance.
	stub := &stubCaller{results: [][]byte{{}}}
	client := newStubClient(t, stub)

	_, err := client.BalanceOf(context.Background(), testContract, testAccount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unpack balanceOf")
	assert.Len(t, stub.calls, 1)
}

func TestBalanceOfStopsRetryingOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubCaller{errs: []error{context.Canceled, context.Canceled}}
	client := newStubClient(t, stub)

	_, err := client.BalanceOf(ctx, testContract, testAccount)
	require.Error(t, err)
	assert.Len(t, stub.calls, 1, "a dead context must not trigger the retry")
}
