// Package portal implements the central settlement program: it publishes
// intents, escrows rewards in per-intent vaults, executes fulfillment on the
// destination chain, routes attestations to prover programs, and pays out on
// withdraw or refund.
package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// Program is the portal state-transition module.
type Program struct{}

// New returns the portal program.
func New() *Program {
	return &Program{}
}

// ID returns the portal's address.
func (p *Program) ID() types.Pubkey { return ProgramID }

// Execute dispatches one instruction.
func (p *Program) Execute(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Data) == 0 {
		return ErrMalformedInstruction
	}
	switch ix.Data[0] {
	case IxPublish:
		return p.publish(tx, ix)
	case IxFund:
		return p.fund(tx, ix)
	case IxFulfill:
		return p.fulfill(tx, ix)
	case IxProve:
		return p.prove(tx, ix)
	case IxWithdraw:
		return p.withdraw(tx, ix)
	case IxRefund:
		return p.refund(tx, ix)
	default:
		return errors.Wrapf(ErrMalformedInstruction, "discriminator %d", ix.Data[0])
	}
}
