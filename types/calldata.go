package types

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedCalldata indicates calldata bytes that do not round-trip the
// wire layout exactly.
var ErrMalformedCalldata = errors.New("malformed calldata")

// SerializedAccountMeta is the wire form of one account reference in a
// downstream call.
type SerializedAccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Calldata is the pre-execution payload of a downstream call: the raw
// instruction data plus the number of accounts the call consumes from the
// caller-supplied account window.
type Calldata struct {
	Data         []byte `json:"data"`
	AccountCount uint8  `json:"account_count"`
}

// CalldataWithAccounts is the post-execution payload: the calldata repacked
// together with the exact account metas it executed with. Fulfillment
// rewrites every call into this form before hashing the route, which is what
// binds the resolved accounts into the intent identity.
type CalldataWithAccounts struct {
	Calldata Calldata                `json:"calldata"`
	Accounts []SerializedAccountMeta `json:"accounts"`
}

// Encode returns the wire form: u32-LE data length, data, account count.
func (c Calldata) Encode() []byte {
	out := make([]byte, 0, 4+len(c.Data)+1)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.Data)))
	out = append(out, c.Data...)
	out = append(out, c.AccountCount)
	return out
}

// DecodeCalldata parses a Calldata blob. Trailing bytes are rejected.
func DecodeCalldata(b []byte) (Calldata, error) {
	if len(b) < 5 {
		return Calldata{}, ErrMalformedCalldata
	}
	n := binary.LittleEndian.Uint32(b[:4])
	if uint64(len(b)) != uint64(n)+5 {
		return Calldata{}, ErrMalformedCalldata
	}
	out := Calldata{AccountCount: b[4+n]}
	if n > 0 {
		out.Data = make([]byte, n)
		copy(out.Data, b[4:4+n])
	}
	return out, nil
}

// Encode returns the wire form: the embedded calldata blob followed by a
// u32-LE account count and fixed 34-byte account entries.
func (c CalldataWithAccounts) Encode() []byte {
	inner := c.Calldata.Encode()
	out := make([]byte, 0, len(inner)+4+len(c.Accounts)*34)
	out = append(out, inner...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.Accounts)))
	for _, a := range c.Accounts {
		out = append(out, a.Pubkey[:]...)
		out = append(out, boolByte(a.IsSigner), boolByte(a.IsWritable))
	}
	return out
}

// DecodeCalldataWithAccounts parses a CalldataWithAccounts blob. Trailing
// bytes are rejected.
func DecodeCalldataWithAccounts(b []byte) (CalldataWithAccounts, error) {
	if len(b) < 5 {
		return CalldataWithAccounts{}, ErrMalformedCalldata
	}
	n := binary.LittleEndian.Uint32(b[:4])
	innerLen := uint64(n) + 5
	if uint64(len(b)) < innerLen+4 {
		return CalldataWithAccounts{}, ErrMalformedCalldata
	}
	cd, err := DecodeCalldata(b[:innerLen])
	if err != nil {
		return CalldataWithAccounts{}, err
	}

	rest := b[innerLen:]
	count := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint64(len(rest)) != uint64(count)*34 {
		return CalldataWithAccounts{}, ErrMalformedCalldata
	}

	out := CalldataWithAccounts{Calldata: cd}
	if count > 0 {
		out.Accounts = make([]SerializedAccountMeta, count)
		for i := range out.Accounts {
			entry := rest[i*34 : (i+1)*34]
			copy(out.Accounts[i].Pubkey[:], entry[:32])
			out.Accounts[i].IsSigner = entry[32] != 0
			out.Accounts[i].IsWritable = entry[33] != 0
		}
	}
	return out, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
