package siwe

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/davisshaver/siwe-login/pkg/ethaddr"
)

const (
	// personalMessagePrefix is the EIP-191 personal-sign prefix. The
	// message's byte length follows as decimal ASCII, unpadded.
	personalMessagePrefix = "\x19Ethereum Signed Message:\n"

	signatureHexLen = 130 // 65 bytes: r (32) || s (32) || v (1)
)

// Verifier recovers the signer of a personal-sign message and compares
// it against a claimed address. The zero value is ready to use.
type Verifier struct{}

// NewVerifier creates a new signature verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether signature over message was produced by the
// claimed address. Structurally invalid input returns (false, nil);
// the error return is reserved for internal failures that indicate
// misconfiguration rather than a bad login attempt.
func (v *Verifier) Verify(message, signature, claimedAddress string) (bool, error) {
	sig, ok := parseSignature(signature)
	if !ok {
		return false, nil
	}

	// Recovery byte is 27/28 on the wire; geth wants 0/1. Anything
	// else after normalization is not a valid recovery id.
	recid := int(sig[64]) - 27
	if recid&1 != recid {
		return false, nil
	}
	sig[64] = byte(recid)

	digest := PersonalHash(message)

	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, nil
	}

	recovered := ethaddr.FromPubkey(pubkey)

	// Checksum both sides so a caller-supplied lowercase or
	// wrong-case address cannot produce a false negative.
	claimed, err := ethaddr.Checksum(claimedAddress)
	if err != nil {
		return false, nil
	}

	return recovered == claimed, nil
}

// PersonalHash computes the EIP-191 personal-message digest:
// Keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalHash(message string) []byte {
	prefixed := fmt.Sprintf("%s%d%s", personalMessagePrefix, len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// parseSignature decodes a 65-byte hex signature, tolerating a 0x prefix.
func parseSignature(signature string) ([]byte, bool) {
	s := strings.TrimPrefix(signature, "0x")
	if len(s) != signatureHexLen {
		return nil, false
	}
	sig, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return sig, true
}
