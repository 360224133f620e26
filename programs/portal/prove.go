package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
)

// prove hands fulfillment attestations to the chosen prover program,
// signing as the dispatcher. The portal does not interpret the opaque data;
// each prover does. One CPI is issued per intent hash.
//
// Accounts: [dispatcher, then one fulfill marker per intent hash in args
// order, then accounts forwarded untouched to the prover].
func (p *Program) prove(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodeProveArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(args.IntentHashes) == 0 {
		return ErrEmptyIntentHashes
	}
	if !prover.HasProverPrefix(args.Prover) {
		return errors.Wrapf(ErrInvalidProver, "%s", args.Prover)
	}
	if len(ix.Accounts) < 1+len(args.IntentHashes) {
		return ErrInvalidFulfillMarker
	}

	dispatcher := ix.Accounts[0].Pubkey
	expectedDispatcher, err := DispatcherAddress()
	if err != nil {
		return err
	}
	if dispatcher != expectedDispatcher {
		return errors.Wrapf(ErrInvalidDispatcher, "%s", dispatcher)
	}

	remaining := ix.Accounts[1+len(args.IntentHashes):]
	dispatcherSeeds := [][]byte{[]byte(DispatcherSeed)}

	for i, intentHash := range args.IntentHashes {
		markerPk := ix.Accounts[1+i].Pubkey
		expectedMarker, _, err := FulfillMarkerAddress(intentHash)
		if err != nil {
			return err
		}
		if markerPk != expectedMarker {
			return errors.Wrapf(ErrInvalidFulfillMarker, "%s", markerPk)
		}
		exists, err := tx.Exists(markerPk)
		if err != nil {
			return err
		}
		if !exists {
			return errors.Wrapf(ErrIntentNotFulfilled, "%s", intentHash)
		}
		acct, err := tx.Account(markerPk)
		if err != nil {
			return err
		}
		marker, err := DecodeFulfillMarker(acct.Data)
		if err != nil {
			return err
		}

		cpi := prover.NewProveInstruction(args.Prover, dispatcher, &prover.ProveArgs{
			SourceChain: args.SourceChain,
			IntentHash:  intentHash,
			Claimant:    marker.Claimant,
			Data:        args.Data,
		}, remaining)
		if err := tx.Invoke(cpi, dispatcherSeeds); err != nil {
			return err
		}

		tx.Emit(IntentProven{
			IntentHash:       intentHash,
			SourceChain:      args.SourceChain,
			DestinationChain: tx.ChainID(),
		})
	}
	return nil
}
