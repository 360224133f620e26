// Package localprover implements the same-chain prover backend: prove
// writes the proof account synchronously in the same transaction as the
// portal's dispatch.
package localprover

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// ProgramID is the local prover's address. It carries the reserved prover
// prefix.
var ProgramID = prover.ProgramID("local")

// ErrInvalidSource indicates a prove for a source chain other than this
// one; the local prover only attests same-chain intents.
var ErrInvalidSource = errors.New("InvalidSource: local prover requires source chain == this chain")

// Program is the local prover state-transition module.
type Program struct{}

// New returns the local prover program.
func New() *Program {
	return &Program{}
}

// ID returns the prover's address.
func (p *Program) ID() types.Pubkey { return ProgramID }

// Execute dispatches one instruction.
func (p *Program) Execute(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Data) == 0 {
		return prover.ErrMalformedInstruction
	}
	switch ix.Data[0] {
	case prover.IxProve:
		return p.prove(tx, ix)
	case prover.IxCloseProof:
		return p.closeProof(tx, ix)
	default:
		return prover.ErrMalformedInstruction
	}
}

// prove opens the proof account for an intent fulfilled on this chain.
//
// Accounts: [dispatcher (signer), payer (signer, writable)].
func (p *Program) prove(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := prover.DecodeProveArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 2 {
		return prover.ErrMalformedInstruction
	}
	dispatcher := ix.Accounts[0].Pubkey
	payer := ix.Accounts[1].Pubkey

	portalDispatcher, err := portal.DispatcherAddress()
	if err != nil {
		return err
	}
	if dispatcher != portalDispatcher || !tx.IsSigner(dispatcher) {
		return errors.Wrapf(prover.ErrInvalidPortalDispatcher, "%s", dispatcher)
	}
	if args.SourceChain != tx.ChainID() {
		return errors.Wrapf(ErrInvalidSource, "source %d, chain %d", args.SourceChain, tx.ChainID())
	}

	proofPk, err := prover.ProofAddress(ProgramID, args.IntentHash)
	if err != nil {
		return err
	}
	body := prover.Proof{DestinationChain: tx.ChainID(), Claimant: args.Claimant}
	if err := tx.CreateAccount(proofPk, ProgramID, body.Encode(), payer); err != nil {
		if errors.Is(err, runtime.ErrAccountExists) {
			return errors.Wrapf(prover.ErrIntentAlreadyProven, "%s", args.IntentHash)
		}
		return err
	}
	return nil
}

// closeProof closes a consumed proof account, refunding rent. Only the
// portal's proof closer may call it; withdraw is the sole consumer.
//
// Accounts: [proof closer (signer), proof (writable), rent recipient
// (writable)].
func (p *Program) closeProof(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := prover.DecodeCloseProofArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 3 {
		return prover.ErrMalformedInstruction
	}
	closer := ix.Accounts[0].Pubkey
	proofPk := ix.Accounts[1].Pubkey
	rentRecipient := ix.Accounts[2].Pubkey

	portalCloser, err := portal.ProofCloserAddress()
	if err != nil {
		return err
	}
	if closer != portalCloser || !tx.IsSigner(closer) {
		return errors.Wrapf(prover.ErrInvalidPortalProofCloser, "%s", closer)
	}
	expected, err := prover.ProofAddress(ProgramID, args.IntentHash)
	if err != nil {
		return err
	}
	if proofPk != expected {
		return errors.Wrapf(prover.ErrInvalidProofAccount, "%s", proofPk)
	}
	return tx.CloseAccount(proofPk, rentRecipient)
}
