package types

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalldataWire(t *testing.T) {
	cd := Calldata{Data: []byte{0xde, 0xad, 0xbe, 0xef, 0x01}, AccountCount: 2}

	enc := cd.Encode()
	assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}, enc)

	decoded, err := DecodeCalldata(enc)
	require.NoError(t, err)
	assert.Equal(t, cd, decoded)
}

func TestCalldataWithAccountsWire(t *testing.T) {
	payload := CalldataWithAccounts{
		Calldata: Calldata{Data: []byte{0xde, 0xad, 0xbe, 0xef, 0x01}, AccountCount: 2},
		Accounts: []SerializedAccountMeta{
			{Pubkey: Pubkey(repeatByte32(0x31)), IsSigner: true},
			{Pubkey: Pubkey(repeatByte32(0x32)), IsWritable: true},
		},
	}

	enc := payload.Encode()
	assert.Equal(t,
		"05000000deadbeef010202000000"+
			"3131313131313131313131313131313131313131313131313131313131313131"+"0100"+
			"3232323232323232323232323232323232323232323232323232323232323232"+"0001",
		hex.EncodeToString(enc))

	decoded, err := DecodeCalldataWithAccounts(enc)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestCalldataRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		bytes []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x01, 0x00}},
		{"length overruns", []byte{0x10, 0x00, 0x00, 0x00, 0x01}},
		{"trailing bytes", append(Calldata{Data: []byte{1}}.Encode(), 0x00)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCalldata(tc.bytes)
			assert.ErrorIs(t, err, ErrMalformedCalldata)
		})
	}
}

func TestCalldataWithAccountsRejectsMalformed(t *testing.T) {
	good := CalldataWithAccounts{
		Calldata: Calldata{Data: []byte{1, 2, 3}, AccountCount: 1},
		Accounts: []SerializedAccountMeta{{Pubkey: Pubkey(repeatByte32(0x01))}},
	}
	enc := good.Encode()

	_, err := DecodeCalldataWithAccounts(enc[:len(enc)-1])
	assert.ErrorIs(t, err, ErrMalformedCalldata)

	_, err = DecodeCalldataWithAccounts(append(enc, 0x00))
	assert.ErrorIs(t, err, ErrMalformedCalldata)

	_, err = DecodeCalldataWithAccounts(nil)
	assert.ErrorIs(t, err, ErrMalformedCalldata)
}
