package siwe

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davisshaver/siwe-login/pkg/ethaddr"
)

// Known-good signature captured from a RainbowKit login session.
const (
	vectorAddress   = "0xfe15a1eC58947149F81c33d5f5B6D74d952bc0F2"
	vectorSignature = "0x649726d97a8ebd2b67fcf867a08e504a8fbd7c9fe3af582f8b3f05dffdda6375717e1a69e7eddd9af2c5b6e92ad40402a2361b19652e1264d146c65e1110b6761c"
)

func TestVerifyKnownVector(t *testing.T) {
	v := NewVerifier()

	ok, err := v.Verify(testPayload().Message(), vectorSignature, vectorAddress)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyKnownVectorLowercaseClaim(t *testing.T) {
	v := NewVerifier()

	// The claimed address is checksummed before comparison, so a
	// lowercase claim from a sloppy client still verifies.
	ok, err := v.Verify(testPayload().Message(), vectorSignature, "0xfe15a1ec58947149f81c33d5f5b6d74d952bc0f2")
	require.NoError(t, err)
	assert.True(t, ok)
}

// signMessage signs the personal-message digest with a fresh key and
// returns the wallet wire format (r || s || v, v in {27, 28}) plus the
// signer's checksummed address.
func signMessage(t *testing.T, message string) (string, string) {
	t.Helper()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(PersonalHash(message), priv)
	require.NoError(t, err)
	sig[64] += 27

	return "0x" + hex.EncodeToString(sig), ethaddr.FromPubkey(&priv.PublicKey)
}

func TestVerifyGeneratedKeypair(t *testing.T) {
	v := NewVerifier()
	message := testPayload().Message()

	sigHex, address := signMessage(t, message)

	ok, err := v.Verify(message, sigHex, address)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong claimed address must not verify.
	ok, err = v.Verify(message, sigHex, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)

	// Different message must not verify.
	ok, err = v.Verify(message+".", sigHex, address)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyRejectsBitFlips(t *testing.T) {
	v := NewVerifier()
	message := testPayload().Message()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(PersonalHash(message), priv)
	require.NoError(t, err)
	sig[64] += 27
	address := ethaddr.FromPubkey(&priv.PublicKey)

	// Sanity: the unmodified signature verifies.
	ok, err := v.Verify(message, "0x"+hex.EncodeToString(sig), address)
	require.NoError(t, err)
	require.True(t, ok)

	// Flip one bit at a time across r, s, and the recovery byte.
	for _, byteIdx := range []int{0, 15, 31, 32, 47, 63, 64} {
		for _, bit := range []uint{0, 3, 7} {
			mutated := make([]byte, len(sig))
			copy(mutated, sig)
			mutated[byteIdx] ^= 1 << bit

			ok, err := v.Verify(message, "0x"+hex.EncodeToString(mutated), address)
			require.NoError(t, err)
			assert.False(t, ok, "flipped bit %d of byte %d must invalidate the signature", bit, byteIdx)
		}
	}
}

func TestVerifyRejectsBadRecoveryID(t *testing.T) {
	v := NewVerifier()
	message := testPayload().Message()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(PersonalHash(message), priv)
	require.NoError(t, err)
	address := ethaddr.FromPubkey(&priv.PublicKey)

	// 27 and 28 normalize to 0 and 1; everything else is invalid,
	// including raw 0/1 which a compliant wallet never emits.
	for _, vByte := range []byte{0, 1, 2, 26, 29, 31, 255} {
		mutated := make([]byte, len(sig))
		copy(mutated, sig)
		mutated[64] = vByte

		ok, err := v.Verify(message, "0x"+hex.EncodeToString(mutated), address)
		require.NoError(t, err)
		assert.False(t, ok, "recovery byte %d must be rejected", vByte)
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	v := NewVerifier()
	message := testPayload().Message()

	for _, sigHex := range []string{
		"",
		"0x",
		"0xdeadbeef",
		"0x" + vectorSignature[2:len(vectorSignature)-2], // truncated
		vectorSignature + "00",                           // extended
		"0x" + "zz" + vectorSignature[4:],                // non-hex
	} {
		ok, err := v.Verify(message, sigHex, vectorAddress)
		require.NoError(t, err)
		assert.False(t, ok, "signature %q must be rejected", sigHex)
	}
}
