package runtime

import (
	"encoding/binary"

	"github.com/intentnet/portal/types"
)

// Account is one ledger entry: lamport balance plus data owned by a program.
type Account struct {
	Owner    types.Pubkey
	Lamports uint64
	Data     []byte
}

const (
	// accountStorageOverhead mirrors the fixed per-account footprint charged
	// in addition to the data body.
	accountStorageOverhead = 128

	lamportsPerByte = 6960
)

// RentExemptLamports returns the minimum balance an account with dataLen
// bytes of data must carry.
func RentExemptLamports(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByte
}

var accountKeyPrefix = []byte("acct/")

func accountKey(pk types.Pubkey) []byte {
	key := make([]byte, 0, len(accountKeyPrefix)+32)
	key = append(key, accountKeyPrefix...)
	return append(key, pk[:]...)
}

func encodeAccount(a *Account) []byte {
	out := make([]byte, 0, 32+8+4+len(a.Data))
	out = append(out, a.Owner[:]...)
	out = binary.LittleEndian.AppendUint64(out, a.Lamports)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(a.Data)))
	return append(out, a.Data...)
}

func decodeAccount(b []byte) (*Account, error) {
	if len(b) < 44 {
		return nil, errCorruptAccount
	}
	a := &Account{}
	copy(a.Owner[:], b[:32])
	a.Lamports = binary.LittleEndian.Uint64(b[32:40])
	n := binary.LittleEndian.Uint32(b[40:44])
	if uint64(len(b)) != 44+uint64(n) {
		return nil, errCorruptAccount
	}
	if n > 0 {
		a.Data = make([]byte, n)
		copy(a.Data, b[44:])
	}
	return a, nil
}

func cloneAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	out := &Account{Owner: a.Owner, Lamports: a.Lamports}
	if a.Data != nil {
		out.Data = make([]byte, len(a.Data))
		copy(out.Data, a.Data)
	}
	return out
}
