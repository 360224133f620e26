package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// fund deposits native value and reward tokens into the intent's vault.
//
// Accounts: [funder (signer, writable), vault (writable), token program,
// then (mint, funder token account, vault ATA) per deposited token].
func (p *Program) fund(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodeFundArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 3 || (len(ix.Accounts)-3)%3 != 0 {
		return ErrInvalidTokenTransferAccounts
	}
	funder := ix.Accounts[0].Pubkey
	vault := ix.Accounts[1].Pubkey
	tokenProgram := ix.Accounts[2].Pubkey
	legs := ix.Accounts[3:]

	intentHash := types.IntentHash(args.DestinationChain, args.RouteHash, args.Reward.Hash())
	expectedVault, err := VaultAddress(intentHash)
	if err != nil {
		return err
	}
	if vault != expectedVault {
		return errors.Wrapf(ErrInvalidVault, "%s", vault)
	}
	if len(args.Reward.Tokens) > 0 && !runtime.IsTokenProgram(tokenProgram) {
		return errors.Wrapf(ErrInvalidTokenProgram, "%s", tokenProgram)
	}

	// Native leg: top up to the reward amount, capped by the funder's
	// balance. Already-full legs take nothing.
	vaultLamports, err := tx.Lamports(vault)
	if err != nil {
		return err
	}
	if vaultLamports < args.Reward.NativeAmount {
		short := args.Reward.NativeAmount - vaultLamports
		funderLamports, err := tx.Lamports(funder)
		if err != nil {
			return err
		}
		if err := tx.Transfer(funder, vault, minU64(short, funderLamports)); err != nil {
			return err
		}
	}

	for i := 0; i+2 < len(legs); i += 3 {
		mint := legs[i].Pubkey
		funderToken := legs[i+1].Pubkey
		vaultAta := legs[i+2].Pubkey

		rewardAmount, ok := args.Reward.AmountForToken(mint)
		if !ok {
			return errors.Wrapf(ErrInvalidMint, "%s", mint)
		}
		expectedAta, err := runtime.DeriveATA(vault, tokenProgram, mint)
		if err != nil {
			return err
		}
		if vaultAta != expectedAta {
			return errors.Wrapf(ErrInvalidVaultAta, "%s", vaultAta)
		}
		if err := tx.Invoke(runtime.NewCreateATAInstruction(funder, vaultAta, vault, mint, tokenProgram)); err != nil {
			return err
		}

		held, err := tokenBalance(tx, vaultAta)
		if err != nil {
			return err
		}
		if held >= rewardAmount {
			continue
		}
		available, err := tokenBalance(tx, funderToken)
		if err != nil {
			return err
		}
		amount := minU64(rewardAmount-held, available)
		if amount == 0 {
			continue
		}
		transfer := runtime.NewTokenTransferInstruction(tokenProgram, funderToken, vaultAta, funder, amount)
		if err := tx.Invoke(transfer); err != nil {
			return err
		}
	}

	complete, err := p.vaultComplete(tx, vault, tokenProgram, &args.Reward)
	if err != nil {
		return err
	}
	if !complete && !args.AllowPartial {
		return errors.Wrapf(ErrInsufficientFunds, "intent %s", intentHash)
	}

	tx.Emit(IntentFunded{IntentHash: intentHash, Funder: funder, Complete: complete})
	return nil
}

// vaultComplete reports whether every reward leg is fully covered.
func (p *Program) vaultComplete(tx *runtime.Tx, vault, tokenProgram types.Pubkey, reward *types.Reward) (bool, error) {
	lamports, err := tx.Lamports(vault)
	if err != nil {
		return false, err
	}
	if lamports < reward.NativeAmount {
		return false, nil
	}
	for _, mint := range types.MintSet(reward.Tokens) {
		ata, err := runtime.DeriveATA(vault, tokenProgram, mint)
		if err != nil {
			return false, err
		}
		held, err := tokenBalance(tx, ata)
		if err != nil {
			return false, err
		}
		required, _ := reward.AmountForToken(mint)
		if held < required {
			return false, nil
		}
	}
	return true, nil
}

// tokenBalance reads a token account's balance; a missing account reads as
// zero.
func tokenBalance(tx *runtime.Tx, pk types.Pubkey) (uint64, error) {
	exists, err := tx.Exists(pk)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	acct, err := tx.Account(pk)
	if err != nil {
		return 0, err
	}
	body, err := runtime.DecodeTokenAccount(acct.Data)
	if err != nil {
		return 0, err
	}
	return body.Amount, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
