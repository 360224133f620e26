package portal

import (
	"crypto/sha256"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// ProgramID is the portal's address.
var ProgramID = func() types.Pubkey {
	sum := sha256.Sum256([]byte("portal-program/v1"))
	return types.Pubkey(sum)
}()

// PDA seed literals.
const (
	VaultSeed           = "vault"
	FulfillMarkerSeed   = "fulfill_marker"
	WithdrawnMarkerSeed = "withdrawn_marker"
	ExecutorSeed        = "executor"
	DispatcherSeed      = "dispatcher"
	ProofCloserSeed     = "proof_closer"
)

// VaultAddress derives the per-intent escrow address.
func VaultAddress(intentHash types.Hash) (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(VaultSeed), intentHash[:]}, ProgramID)
	return pda, err
}

// FulfillMarkerAddress derives the per-intent fulfill marker address.
func FulfillMarkerAddress(intentHash types.Hash) (types.Pubkey, uint8, error) {
	return runtime.FindProgramAddress(
		[][]byte{[]byte(FulfillMarkerSeed), intentHash[:]}, ProgramID)
}

// WithdrawnMarkerAddress derives the per-intent withdrawn marker address.
func WithdrawnMarkerAddress(intentHash types.Hash) (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(WithdrawnMarkerSeed), intentHash[:]}, ProgramID)
	return pda, err
}

// ExecutorAddress derives the singleton executor authority.
func ExecutorAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(ExecutorSeed)}, ProgramID)
	return pda, err
}

// DispatcherAddress derives the singleton prover-dispatch authority.
func DispatcherAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(DispatcherSeed)}, ProgramID)
	return pda, err
}

// ProofCloserAddress derives the singleton proof-closing authority.
func ProofCloserAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(ProofCloserSeed)}, ProgramID)
	return pda, err
}
