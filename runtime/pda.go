package runtime

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"

	"github.com/intentnet/portal/types"
)

var (
	// ErrInvalidSeeds indicates too many seeds or an oversized seed.
	ErrInvalidSeeds = errors.New("invalid seeds")

	// ErrOnCurve indicates the derived address falls on the ed25519 curve
	// and therefore cannot be a program address.
	ErrOnCurve = errors.New("derived address is on-curve")
)

// FindProgramAddress derives the canonical program address for a seed set,
// searching bump bytes from 255 downward until an off-curve point is found.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	for bump := uint8(255); ; bump-- {
		pda, err := CreateProgramAddress(append(seeds, []byte{bump}), programID)
		if err == nil {
			return pda, bump, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return types.Pubkey{}, 0, err
		}
		if bump == 0 {
			return types.Pubkey{}, 0, errors.New("no viable program address found")
		}
	}
}

// CreateProgramAddress derives a program address for an explicit seed set,
// failing if the result lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > 16 {
		return types.Pubkey{}, ErrInvalidSeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return types.Pubkey{}, ErrInvalidSeeds
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))

	var out types.Pubkey
	copy(out[:], h.Sum(nil))
	if isOnCurve(out) {
		return types.Pubkey{}, ErrOnCurve
	}
	return out, nil
}

func isOnCurve(pk types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}
