package portal

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// fulfill executes an intent's route on the destination chain: it pulls the
// route tokens from the solver into the executor, runs every route call with
// the executor as a derived signer, and records the fulfill marker. The
// marker init is the at-most-once guard.
//
// Accounts: [solver (signer, writable), executor (writable), fulfill marker
// (writable), token program, then (mint, solver token account, executor ATA)
// per route token, then each call's account window in route-call order].
func (p *Program) fulfill(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := DecodeFulfillArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 4 {
		return ErrInvalidTokenTransferAccounts
	}
	solver := ix.Accounts[0].Pubkey
	executor := ix.Accounts[1].Pubkey
	marker := ix.Accounts[2].Pubkey
	tokenProgram := ix.Accounts[3].Pubkey
	route := args.Route

	if route.Portal != ProgramID {
		return errors.Wrapf(ErrInvalidPortal, "%s", route.Portal)
	}
	if tx.Now() > route.Deadline {
		return errors.Wrapf(ErrRouteExpired, "deadline %d, now %d", route.Deadline, tx.Now())
	}
	expectedExecutor, err := ExecutorAddress()
	if err != nil {
		return err
	}
	if executor != expectedExecutor {
		return errors.Wrapf(ErrInvalidExecutor, "%s", executor)
	}
	expectedMarker, bump, err := FulfillMarkerAddress(args.IntentHash)
	if err != nil {
		return err
	}
	if marker != expectedMarker {
		return errors.Wrapf(ErrInvalidFulfillMarker, "%s", marker)
	}
	if len(route.Tokens) > 0 && !runtime.IsTokenProgram(tokenProgram) {
		return errors.Wrapf(ErrInvalidTokenProgram, "%s", tokenProgram)
	}

	rest := ix.Accounts[4:]
	if len(rest) < 3*len(route.Tokens) {
		return ErrInvalidTokenTransferAccounts
	}
	legs := rest[:3*len(route.Tokens)]
	callAccounts := rest[3*len(route.Tokens):]

	for i, want := range route.Tokens {
		mint := legs[3*i].Pubkey
		solverToken := legs[3*i+1].Pubkey
		executorAta := legs[3*i+2].Pubkey
		if mint != want.Token {
			return errors.Wrapf(ErrInvalidMint, "%s", mint)
		}
		expectedAta, err := runtime.DeriveATA(executor, tokenProgram, mint)
		if err != nil {
			return err
		}
		if executorAta != expectedAta {
			return errors.Wrapf(ErrInvalidAta, "%s", executorAta)
		}
		if err := tx.Invoke(runtime.NewCreateATAInstruction(solver, executorAta, executor, mint, tokenProgram)); err != nil {
			return err
		}
		transfer := runtime.NewTokenTransferInstruction(tokenProgram, solverToken, executorAta, solver, want.Amount)
		if err := tx.Invoke(transfer); err != nil {
			return err
		}
	}

	if route.NativeAmount > 0 {
		if err := tx.Transfer(solver, executor, route.NativeAmount); err != nil {
			return err
		}
	}

	executorSeeds := [][]byte{[]byte(ExecutorSeed)}
	for i := range route.Calls {
		call := &route.Calls[i]
		if prover.HasProverPrefix(call.Target) {
			return errors.Wrapf(ErrInvalidFulfillTarget, "%s", call.Target)
		}
		cd, err := types.DecodeCalldata(call.Data)
		if err != nil {
			return errors.Wrapf(ErrInvalidCalldata, "call %d", i)
		}
		if len(callAccounts) < int(cd.AccountCount) {
			return errors.Wrapf(ErrInvalidCalldata, "call %d wants %d accounts, %d left", i, cd.AccountCount, len(callAccounts))
		}
		window := callAccounts[:cd.AccountCount]
		callAccounts = callAccounts[cd.AccountCount:]

		metas := make([]runtime.AccountMeta, len(window))
		for j, meta := range window {
			metas[j] = meta
			if meta.Pubkey == executor {
				metas[j].IsSigner = true
			}
		}
		inner := runtime.Instruction{ProgramID: call.Target, Accounts: metas, Data: cd.Data}
		if err := tx.Invoke(inner, executorSeeds); err != nil {
			return err
		}

		// Rebind the call's bytes to the exact accounts it resolved to, so
		// the post-execution route hash commits to what actually ran.
		resolved := make([]types.SerializedAccountMeta, len(metas))
		for j, meta := range metas {
			resolved[j] = types.SerializedAccountMeta{
				Pubkey:     meta.Pubkey,
				IsSigner:   meta.IsSigner,
				IsWritable: meta.IsWritable,
			}
		}
		cwa := types.CalldataWithAccounts{Calldata: cd, Accounts: resolved}
		call.Data = cwa.Encode()
	}

	recomputed := types.IntentHash(tx.ChainID(), route.Hash(), args.RewardHash)
	if recomputed != args.IntentHash {
		return errors.Wrapf(ErrInvalidIntentHash, "recomputed %s, claimed %s", recomputed, args.IntentHash)
	}

	body := FulfillMarker{Claimant: args.Claimant, Bump: bump}
	if err := tx.CreateAccount(marker, ProgramID, body.Encode(), solver); err != nil {
		if errors.Is(err, runtime.ErrAccountExists) {
			return errors.Wrapf(ErrIntentAlreadyFulfilled, "%s", args.IntentHash)
		}
		return err
	}

	tx.Emit(IntentFulfilled{IntentHash: args.IntentHash, Claimant: args.Claimant})
	return nil
}
