package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/types"
)

// FulfillMarker is the account body recording a one-shot fulfillment: the
// claimant the reward is owed to and the marker PDA's bump.
type FulfillMarker struct {
	Claimant types.Pubkey
	Bump     uint8
}

var errCorruptMarker = errors.New("corrupt fulfill marker")

// Encode returns the marker account data body.
func (m *FulfillMarker) Encode() []byte {
	out := make([]byte, 0, 33)
	out = append(out, m.Claimant[:]...)
	return append(out, m.Bump)
}

// DecodeFulfillMarker parses a marker account data body.
func DecodeFulfillMarker(b []byte) (*FulfillMarker, error) {
	if len(b) != 33 {
		return nil, errCorruptMarker
	}
	out := &FulfillMarker{Bump: b[32]}
	copy(out.Claimant[:], b[:32])
	return out, nil
}

// The withdrawn marker has a zero-length data body; its existence is the
// entire record.
