package types

import (
	"encoding/binary"
	"errors"
)

// Compact little-endian wire codec for instruction transport. This is
// distinct from the canonical ABI-style encoding used for hashing: transport
// favors density, identity favors cross-chain reproducibility.

// ErrMalformedWire indicates wire bytes that do not decode cleanly.
var ErrMalformedWire = errors.New("malformed wire encoding")

type wireReader struct {
	buf []byte
}

func (r *wireReader) u8() (byte, error) {
	if len(r.buf) < 1 {
		return 0, ErrMalformedWire
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

func (r *wireReader) u32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, ErrMalformedWire
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v, nil
}

func (r *wireReader) u64() (uint64, error) {
	if len(r.buf) < 8 {
		return 0, ErrMalformedWire
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v, nil
}

func (r *wireReader) pubkey() (Pubkey, error) {
	var out Pubkey
	if len(r.buf) < 32 {
		return out, ErrMalformedWire
	}
	copy(out[:], r.buf[:32])
	r.buf = r.buf[32:]
	return out, nil
}

func (r *wireReader) hash() (Hash, error) {
	var out Hash
	if len(r.buf) < 32 {
		return out, ErrMalformedWire
	}
	copy(out[:], r.buf[:32])
	r.buf = r.buf[32:]
	return out, nil
}

func (r *wireReader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)) < uint64(n) {
		return nil, ErrMalformedWire
	}
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out, nil
}

func (r *wireReader) done() error {
	if len(r.buf) != 0 {
		return ErrMalformedWire
	}
	return nil
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendTokensWire(dst []byte, tokens []TokenAmount) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(tokens)))
	for _, t := range tokens {
		dst = append(dst, t.Token[:]...)
		dst = binary.LittleEndian.AppendUint64(dst, t.Amount)
	}
	return dst
}

func readTokensWire(r *wireReader) ([]TokenAmount, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)) < uint64(n)*40 {
		return nil, ErrMalformedWire
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]TokenAmount, n)
	for i := range out {
		if out[i].Token, err = r.pubkey(); err != nil {
			return nil, err
		}
		if out[i].Amount, err = r.u64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarshalWire returns the transport encoding of the route.
func (r *Route) MarshalWire() []byte {
	out := make([]byte, 0, 128)
	out = binary.LittleEndian.AppendUint64(out, r.Deadline)
	out = append(out, r.Salt[:]...)
	out = append(out, r.Portal[:]...)
	out = binary.LittleEndian.AppendUint64(out, r.NativeAmount)
	out = appendTokensWire(out, r.Tokens)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(r.Calls)))
	for _, c := range r.Calls {
		out = append(out, c.Target[:]...)
		out = appendBytes(out, c.Data)
	}
	return out
}

func readRoute(r *wireReader) (Route, error) {
	var out Route
	var err error
	if out.Deadline, err = r.u64(); err != nil {
		return out, err
	}
	var salt Pubkey
	if salt, err = r.pubkey(); err != nil {
		return out, err
	}
	out.Salt = [32]byte(salt)
	if out.Portal, err = r.pubkey(); err != nil {
		return out, err
	}
	if out.NativeAmount, err = r.u64(); err != nil {
		return out, err
	}
	if out.Tokens, err = readTokensWire(r); err != nil {
		return out, err
	}
	callCount, err := r.u32()
	if err != nil {
		return out, err
	}
	if uint64(len(r.buf)) < uint64(callCount)*36 {
		return out, ErrMalformedWire
	}
	if callCount > 0 {
		out.Calls = make([]Call, callCount)
		for i := range out.Calls {
			if out.Calls[i].Target, err = r.pubkey(); err != nil {
				return out, err
			}
			if out.Calls[i].Data, err = r.bytes(); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// UnmarshalWire parses the transport encoding of a route. Trailing bytes are
// rejected.
func (r *Route) UnmarshalWire(b []byte) error {
	rd := &wireReader{buf: b}
	route, err := readRoute(rd)
	if err != nil {
		return err
	}
	if err := rd.done(); err != nil {
		return err
	}
	*r = route
	return nil
}

// MarshalWire returns the transport encoding of the reward.
func (r *Reward) MarshalWire() []byte {
	out := make([]byte, 0, 96)
	out = binary.LittleEndian.AppendUint64(out, r.Deadline)
	out = append(out, r.Creator[:]...)
	out = append(out, r.Prover[:]...)
	out = binary.LittleEndian.AppendUint64(out, r.NativeAmount)
	return appendTokensWire(out, r.Tokens)
}

func readReward(r *wireReader) (Reward, error) {
	var out Reward
	var err error
	if out.Deadline, err = r.u64(); err != nil {
		return out, err
	}
	if out.Creator, err = r.pubkey(); err != nil {
		return out, err
	}
	if out.Prover, err = r.pubkey(); err != nil {
		return out, err
	}
	if out.NativeAmount, err = r.u64(); err != nil {
		return out, err
	}
	out.Tokens, err = readTokensWire(r)
	return out, err
}

// UnmarshalWire parses the transport encoding of a reward. Trailing bytes
// are rejected.
func (r *Reward) UnmarshalWire(b []byte) error {
	rd := &wireReader{buf: b}
	reward, err := readReward(rd)
	if err != nil {
		return err
	}
	if err := rd.done(); err != nil {
		return err
	}
	*r = reward
	return nil
}

// WireReader exposes the primitive decoder for instruction codecs built on
// the same conventions.
type WireReader = wireReader

// NewWireReader wraps a buffer for decoding.
func NewWireReader(b []byte) *WireReader {
	return &wireReader{buf: b}
}

// ReadU8 reads one byte.
func (r *wireReader) ReadU8() (byte, error) { return r.u8() }

// ReadU32 reads a little-endian u32.
func (r *wireReader) ReadU32() (uint32, error) { return r.u32() }

// ReadU64 reads a little-endian u64.
func (r *wireReader) ReadU64() (uint64, error) { return r.u64() }

// ReadPubkey reads a raw 32-byte pubkey.
func (r *wireReader) ReadPubkey() (Pubkey, error) { return r.pubkey() }

// ReadHash reads a raw 32-byte hash.
func (r *wireReader) ReadHash() (Hash, error) { return r.hash() }

// ReadBytes reads a u32-LE length-prefixed byte string.
func (r *wireReader) ReadBytes() ([]byte, error) { return r.bytes() }

// ReadRoute reads a wire-encoded route.
func (r *wireReader) ReadRoute() (Route, error) { return readRoute(r) }

// ReadReward reads a wire-encoded reward.
func (r *wireReader) ReadReward() (Reward, error) { return readReward(r) }

// Done verifies the buffer was fully consumed.
func (r *wireReader) Done() error { return r.done() }

// AppendBytes appends a u32-LE length-prefixed byte string.
func AppendBytes(dst, b []byte) []byte { return appendBytes(dst, b) }
