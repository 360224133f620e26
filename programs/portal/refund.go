package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// refund returns vault value to the creator after the reward deadline. A
// proof for the expected destination blocks it until the claimant has
// withdrawn; a missing proof, or one recorded for an unrelated destination,
// does not. After a withdraw, refund sweeps whatever over-funding remains.
//
// Accounts: [creator (writable), vault (writable), payer (signer, writable),
// token program, then (vault ATA, creator token account, mint) per swept
// token].
func (p *Program) refund(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodeRefundArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 4 || (len(ix.Accounts)-4)%3 != 0 {
		return ErrInvalidTokenTransferAccounts
	}
	creator := ix.Accounts[0].Pubkey
	vault := ix.Accounts[1].Pubkey
	payer := ix.Accounts[2].Pubkey
	tokenProgram := ix.Accounts[3].Pubkey
	legs := ix.Accounts[4:]
	reward := args.Reward

	if creator != reward.Creator {
		return errors.Wrapf(ErrInvalidCreator, "%s", creator)
	}
	if tx.Now() <= reward.Deadline {
		return errors.Wrapf(ErrRewardNotExpired, "deadline %d, now %d", reward.Deadline, tx.Now())
	}

	intentHash := types.IntentHash(args.DestinationChain, args.RouteHash, reward.Hash())
	if err := p.checkVault(vault, intentHash); err != nil {
		return err
	}
	if len(legs) > 0 && !runtime.IsTokenProgram(tokenProgram) {
		return errors.Wrapf(ErrInvalidTokenProgram, "%s", tokenProgram)
	}

	// A proof recorded for the expected destination means the intent was
	// fulfilled: the creator must wait for the claimant to withdraw. A
	// proof for any other destination is spurious and does not block.
	if prover.HasProverPrefix(reward.Prover) {
		proofPk, err := prover.ProofAddress(reward.Prover, intentHash)
		if err != nil {
			return err
		}
		exists, err := tx.Exists(proofPk)
		if err != nil {
			return err
		}
		if exists {
			acct, err := tx.Account(proofPk)
			if err != nil {
				return err
			}
			proof, err := prover.DecodeProof(acct.Data)
			if err == nil && proof.DestinationChain == args.DestinationChain {
				markerPk, err := WithdrawnMarkerAddress(intentHash)
				if err != nil {
					return err
				}
				withdrawn, err := tx.Exists(markerPk)
				if err != nil {
					return err
				}
				if !withdrawn {
					return errors.Wrapf(ErrIntentFulfilledAndNotWithdrawn, "%s", intentHash)
				}
			}
		}
	}

	if _, err := tx.SignPDA([][]byte{[]byte(VaultSeed), intentHash[:]}); err != nil {
		return err
	}

	vaultLamports, err := tx.Lamports(vault)
	if err != nil {
		return err
	}
	if err := tx.Transfer(vault, creator, vaultLamports); err != nil {
		return err
	}

	for i := 0; i+2 < len(legs); i += 3 {
		vaultAta := legs[i].Pubkey
		creatorToken := legs[i+1].Pubkey
		mint := legs[i+2].Pubkey

		if _, ok := reward.AmountForToken(mint); !ok {
			return errors.Wrapf(ErrInvalidMint, "%s", mint)
		}
		expectedAta, err := runtime.DeriveATA(vault, tokenProgram, mint)
		if err != nil {
			return err
		}
		if vaultAta != expectedAta {
			return errors.Wrapf(ErrInvalidVaultAta, "%s", vaultAta)
		}
		exists, err := tx.Exists(vaultAta)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := checkTokenOwner(tx, creatorToken, creator, ErrInvalidCreatorToken); err != nil {
			return err
		}

		held, err := tokenBalance(tx, vaultAta)
		if err != nil {
			return err
		}
		if held > 0 {
			transfer := runtime.NewTokenTransferInstruction(tokenProgram, vaultAta, creatorToken, vault, held)
			if err := tx.Invoke(transfer); err != nil {
				return err
			}
		}
		closeIx := runtime.NewCloseTokenAccountInstruction(tokenProgram, vaultAta, payer, vault)
		if err := tx.Invoke(closeIx); err != nil {
			return err
		}
	}

	tx.Emit(IntentRefunded{IntentHash: intentHash, Creator: creator})
	return nil
}
