package types

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Hash is a 32-byte Keccak-256 digest.
type Hash [32]byte

// ErrInvalidHash indicates a hash string that is not 32-byte hex.
var ErrInvalidHash = errors.New("invalid hash")

// ParseHash parses a 64-character hex digest, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var out Hash
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, ErrInvalidHash
	}
	copy(out[:], b)
	return out, nil
}

// Hex returns the 64-character lowercase hex form without a 0x prefix.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return "0x" + h.Hex()
}
