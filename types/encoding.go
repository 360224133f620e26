package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical ABI-style encodings for Route and Reward. The layout is
// word-aligned so that an EVM counterpart can reproduce route_hash and
// reward_hash from equivalent structs:
//
//	Route head:  salt, deadline, portal, native_amount, tokens_offset, calls_offset
//	Reward head: creator, prover, deadline, native_amount, tokens_offset
//
// Token arrays are a length word followed by (token, amount) word pairs.
// Call arrays are a length word, per-call head offsets (relative to the array
// data area), then per-call tails (target, 0x60, 0, data_len, data padded).
//
// intent_hash = Keccak256(destination_chain as 32-byte BE word ‖ route_hash ‖
// reward_hash). Golden vectors in encoding_test.go lock all three layouts.

const wordSize = 32

const (
	routeHeadSize  = 6 * wordSize
	rewardHeadSize = 5 * wordSize
	callTailHead   = 4 * wordSize
)

func word(v uint64) [wordSize]byte {
	var out [wordSize]byte
	binary.BigEndian.PutUint64(out[wordSize-8:], v)
	return out
}

func pad32(n int) int {
	return (n + wordSize - 1) / wordSize * wordSize
}

func appendWord(dst []byte, v uint64) []byte {
	w := word(v)
	return append(dst, w[:]...)
}

func appendTokens(dst []byte, tokens []TokenAmount) []byte {
	dst = appendWord(dst, uint64(len(tokens)))
	for _, t := range tokens {
		dst = append(dst, t.Token[:]...)
		dst = appendWord(dst, t.Amount)
	}
	return dst
}

func tokensSize(tokens []TokenAmount) int {
	return wordSize + len(tokens)*2*wordSize
}

func callTailSize(c Call) int {
	return callTailHead + pad32(len(c.Data))
}

func appendCalls(dst []byte, calls []Call) []byte {
	dst = appendWord(dst, uint64(len(calls)))

	// Head offsets are relative to the start of the array data area, i.e.
	// immediately after the length word.
	offset := len(calls) * wordSize
	for _, c := range calls {
		dst = appendWord(dst, uint64(offset))
		offset += callTailSize(c)
	}

	for _, c := range calls {
		dst = append(dst, c.Target[:]...)
		dst = appendWord(dst, 0x60)
		dst = appendWord(dst, 0)
		dst = appendWord(dst, uint64(len(c.Data)))
		dst = append(dst, c.Data...)
		if rem := pad32(len(c.Data)) - len(c.Data); rem > 0 {
			dst = append(dst, make([]byte, rem)...)
		}
	}
	return dst
}

// Encode returns the canonical byte encoding of the route.
func (r *Route) Encode() []byte {
	tokensOffset := routeHeadSize
	callsOffset := tokensOffset + tokensSize(r.Tokens)

	out := make([]byte, 0, callsOffset+wordSize)
	out = append(out, r.Salt[:]...)
	out = appendWord(out, r.Deadline)
	out = append(out, r.Portal[:]...)
	out = appendWord(out, r.NativeAmount)
	out = appendWord(out, uint64(tokensOffset))
	out = appendWord(out, uint64(callsOffset))
	out = appendTokens(out, r.Tokens)
	out = appendCalls(out, r.Calls)
	return out
}

// Hash returns the Keccak-256 digest of the route's canonical encoding.
func (r *Route) Hash() Hash {
	return Hash(crypto.Keccak256Hash(r.Encode()))
}

// Encode returns the canonical byte encoding of the reward.
func (r *Reward) Encode() []byte {
	out := make([]byte, 0, rewardHeadSize+tokensSize(r.Tokens))
	out = append(out, r.Creator[:]...)
	out = append(out, r.Prover[:]...)
	out = appendWord(out, r.Deadline)
	out = appendWord(out, r.NativeAmount)
	out = appendWord(out, uint64(rewardHeadSize))
	out = appendTokens(out, r.Tokens)
	return out
}

// Hash returns the Keccak-256 digest of the reward's canonical encoding.
func (r *Reward) Hash() Hash {
	return Hash(crypto.Keccak256Hash(r.Encode()))
}

// RouteHashFromBytes hashes raw route bytes as supplied to publish. The
// portal never re-encodes published routes; the published bytes are the
// identity.
func RouteHashFromBytes(routeBytes []byte) Hash {
	return Hash(crypto.Keccak256Hash(routeBytes))
}

// IntentHash combines the destination chain and the two component digests
// into the canonical intent identity.
func IntentHash(destinationChain uint64, routeHash, rewardHash Hash) Hash {
	buf := make([]byte, 0, 3*wordSize)
	buf = appendWord(buf, destinationChain)
	buf = append(buf, routeHash[:]...)
	buf = append(buf, rewardHash[:]...)
	return Hash(crypto.Keccak256Hash(buf))
}
