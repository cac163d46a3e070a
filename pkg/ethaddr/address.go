// Package ethaddr formats Ethereum addresses with EIP-55 checksums.
package ethaddr

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const hexAddressLen = 40

// Error definitions
var (
	ErrInvalidAddress = errors.New("address must be 40 hex characters")
)

// Checksum returns the EIP-55 checksummed form of an address.
// The input may be any mix of cases, with or without the 0x prefix.
// The case map comes from the Keccak-256 hash of the lowercase hex
// string hashed as ASCII text: character i is uppercased iff hex
// digit i of the hash is greater than 7.
func Checksum(address string) (string, error) {
	addr := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(addr) != hexAddressLen {
		return "", ErrInvalidAddress
	}

	lower := strings.ToLower(addr)
	if _, err := hex.DecodeString(lower); err != nil {
		return "", ErrInvalidAddress
	}

	hash := hex.EncodeToString(crypto.Keccak256([]byte(lower)))

	var b strings.Builder
	b.Grow(2 + hexAddressLen)
	b.WriteString("0x")
	for i := 0; i < hexAddressLen; i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hexDigit(hash[i]) > 7 {
			c = c - 'a' + 'A'
		}
		b.WriteByte(c)
	}

	return b.String(), nil
}

// FromPubkey derives the checksummed address for a secp256k1 public key:
// Keccak-256 over the uncompressed point minus its format byte, last
// 20 bytes of the digest.
func FromPubkey(pub *ecdsa.PublicKey) string {
	encoded := crypto.FromECDSAPub(pub)
	digest := crypto.Keccak256(encoded[1:])

	checksummed, err := Checksum(hex.EncodeToString(digest[12:]))
	if err != nil {
		// The digest slice is always 20 bytes, so this cannot happen.
		panic(err)
	}
	return checksummed
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return 0
	}
}
