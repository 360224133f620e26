package runtime

import "github.com/intentnet/portal/types"

// AccountMeta references one account in an instruction. Flags follow the
// caller-declared account-list convention: the runtime verifies signer flags
// against the transaction's signer set before a program runs.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Meta constructs a non-signer, read-only account reference.
func Meta(pk types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk}
}

// WritableMeta constructs a writable account reference.
func WritableMeta(pk types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsWritable: true}
}

// SignerMeta constructs a writable signer reference.
func SignerMeta(pk types.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: true}
}

// Instruction is one entry-point invocation: a target program, a positional
// account list, and opaque instruction data.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Program is a registered state-transition module.
type Program interface {
	// ID returns the program's address.
	ID() types.Pubkey

	// Execute runs one instruction against the transaction's staged view.
	// Returning an error aborts the whole transaction.
	Execute(tx *Tx, ix Instruction) error
}

// Event is a structured record emitted by a program. Events surface to
// subscribers only when the transaction commits.
type Event interface {
	EventName() string
}
