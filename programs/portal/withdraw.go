package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// withdraw pays the proven claimant out of the vault, consumes the proof,
// and records the withdrawn marker. The marker init is the at-most-once
// guard; the proof is destroyed so a stale attestation cannot be replayed
// against a later vault top-up.
//
// Accounts: [claimant (writable), vault (writable), withdrawn marker
// (writable), payer (signer, writable), proof closer, rent recipient
// (writable), token program, then (vault ATA, claimant token account, mint)
// per reward token].
func (p *Program) withdraw(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodeWithdrawArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 7 || (len(ix.Accounts)-7)%3 != 0 {
		return ErrInvalidTokenTransferAccounts
	}
	claimant := ix.Accounts[0].Pubkey
	vault := ix.Accounts[1].Pubkey
	marker := ix.Accounts[2].Pubkey
	payer := ix.Accounts[3].Pubkey
	proofCloser := ix.Accounts[4].Pubkey
	rentRecipient := ix.Accounts[5].Pubkey
	tokenProgram := ix.Accounts[6].Pubkey
	legs := ix.Accounts[7:]
	reward := args.Reward

	intentHash := types.IntentHash(args.DestinationChain, args.RouteHash, reward.Hash())
	if err := p.checkVault(vault, intentHash); err != nil {
		return err
	}
	expectedMarker, err := WithdrawnMarkerAddress(intentHash)
	if err != nil {
		return err
	}
	if marker != expectedMarker {
		return errors.Wrapf(ErrInvalidWithdrawnMarker, "%s", marker)
	}
	expectedCloser, err := ProofCloserAddress()
	if err != nil {
		return err
	}
	if proofCloser != expectedCloser {
		return errors.Wrapf(ErrInvalidProofCloser, "%s", proofCloser)
	}
	if !prover.HasProverPrefix(reward.Prover) {
		return errors.Wrapf(ErrInvalidProver, "%s", reward.Prover)
	}
	if len(reward.Tokens) > 0 && !runtime.IsTokenProgram(tokenProgram) {
		return errors.Wrapf(ErrInvalidTokenProgram, "%s", tokenProgram)
	}

	proofPk, err := prover.ProofAddress(reward.Prover, intentHash)
	if err != nil {
		return err
	}
	proofAcct, err := tx.Account(proofPk)
	if err != nil {
		if errors.Is(err, runtime.ErrAccountNotFound) {
			return errors.Wrapf(ErrIntentNotFulfilled, "%s", intentHash)
		}
		return err
	}
	proof, err := prover.DecodeProof(proofAcct.Data)
	if err != nil {
		return errors.Wrapf(ErrInvalidProof, "%s", proofPk)
	}
	if proof.DestinationChain != args.DestinationChain {
		return errors.Wrapf(ErrIntentNotFulfilled, "proof destination %d, expected %d", proof.DestinationChain, args.DestinationChain)
	}
	if proof.Claimant != claimant {
		return errors.Wrapf(ErrInvalidProof, "claimant %s, proof records %s", claimant, proof.Claimant)
	}

	// Vault signs its own debits for the rest of the transaction.
	if _, err := tx.SignPDA([][]byte{[]byte(VaultSeed), intentHash[:]}); err != nil {
		return err
	}

	vaultLamports, err := tx.Lamports(vault)
	if err != nil {
		return err
	}
	if err := tx.Transfer(vault, claimant, minU64(reward.NativeAmount, vaultLamports)); err != nil {
		return err
	}

	covered := make(map[types.Pubkey]bool, len(legs)/3)
	for i := 0; i+2 < len(legs); i += 3 {
		vaultAta := legs[i].Pubkey
		claimantToken := legs[i+1].Pubkey
		mint := legs[i+2].Pubkey

		rewardAmount, ok := reward.AmountForToken(mint)
		if !ok {
			return errors.Wrapf(ErrInvalidMint, "%s", mint)
		}
		expectedAta, err := runtime.DeriveATA(vault, tokenProgram, mint)
		if err != nil {
			return err
		}
		if vaultAta != expectedAta {
			return errors.Wrapf(ErrInvalidAta, "%s", vaultAta)
		}
		if err := checkTokenOwner(tx, claimantToken, claimant, ErrInvalidClaimantToken); err != nil {
			return err
		}
		covered[mint] = true

		held, err := tokenBalance(tx, vaultAta)
		if err != nil {
			return err
		}
		amount := minU64(rewardAmount, held)
		if amount > 0 {
			transfer := runtime.NewTokenTransferInstruction(tokenProgram, vaultAta, claimantToken, vault, amount)
			if err := tx.Invoke(transfer); err != nil {
				return err
			}
		}
		if held == amount {
			closeIx := runtime.NewCloseTokenAccountInstruction(tokenProgram, vaultAta, payer, vault)
			if err := tx.Invoke(closeIx); err != nil {
				return err
			}
		}
	}
	for _, mint := range types.MintSet(reward.Tokens) {
		if !covered[mint] {
			return errors.Wrapf(ErrInvalidMint, "missing leg for %s", mint)
		}
	}

	closeProof := prover.NewCloseProofInstruction(reward.Prover, proofCloser, proofPk, rentRecipient, intentHash)
	if err := tx.Invoke(closeProof, [][]byte{[]byte(ProofCloserSeed)}); err != nil {
		return err
	}

	if err := tx.CreateAccount(marker, ProgramID, nil, payer); err != nil {
		if errors.Is(err, runtime.ErrAccountExists) {
			return errors.Wrapf(ErrIntentAlreadyWithdrawn, "%s", intentHash)
		}
		return err
	}

	tx.Emit(IntentWithdrawn{IntentHash: intentHash, Claimant: claimant})
	return nil
}

func (p *Program) checkVault(vault types.Pubkey, intentHash types.Hash) error {
	expected, err := VaultAddress(intentHash)
	if err != nil {
		return err
	}
	if vault != expected {
		return errors.Wrapf(ErrInvalidVault, "%s", vault)
	}
	return nil
}

// checkTokenOwner verifies a token account's recorded owner.
func checkTokenOwner(tx *runtime.Tx, pk, owner types.Pubkey, mismatch error) error {
	acct, err := tx.Account(pk)
	if err != nil {
		return err
	}
	body, err := runtime.DecodeTokenAccount(acct.Data)
	if err != nil {
		return err
	}
	if body.Owner != owner {
		return errors.Wrapf(mismatch, "%s owned by %s", pk, body.Owner)
	}
	return nil
}
