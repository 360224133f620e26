package types

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte account address.
type Pubkey [32]byte

var (
	// ErrInvalidPubkey indicates a pubkey string that is neither 32-byte hex
	// nor base58.
	ErrInvalidPubkey = errors.New("invalid pubkey")
)

// ParsePubkey parses a pubkey from base58 or 64-character hex (with or
// without a 0x prefix).
func ParsePubkey(s string) (Pubkey, error) {
	var out Pubkey
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return out, ErrInvalidPubkey
	}

	if len(s) == 64 {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 32 {
			return out, ErrInvalidPubkey
		}
		copy(out[:], b)
		return out, nil
	}

	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		return out, ErrInvalidPubkey
	}
	copy(out[:], b)
	return out, nil
}

// MustParsePubkey parses a pubkey and panics on failure. Intended for
// compile-time constants such as program ids.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic("types: invalid pubkey literal: " + s)
	}
	return pk
}

// Base58 returns the canonical base58 text form.
func (k Pubkey) Base58() string {
	return base58.Encode(k[:])
}

// Hex returns the 64-character lowercase hex form without a 0x prefix.
func (k Pubkey) Hex() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the pubkey is the all-zero address.
func (k Pubkey) IsZero() bool {
	return k == Pubkey{}
}

func (k Pubkey) String() string {
	return k.Base58()
}
