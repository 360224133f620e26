package portal

import "github.com/pkg/errors"

// Typed protocol errors. Each aborts the whole transaction; nothing is
// caught and swallowed internally.
var (
	// Identity and derivation.
	ErrInvalidPortal          = errors.New("InvalidPortal: route portal does not match this program")
	ErrInvalidVault           = errors.New("InvalidVault: vault account does not match derivation")
	ErrInvalidProof           = errors.New("InvalidProof: proof account invalid for this intent")
	ErrInvalidFulfillMarker   = errors.New("InvalidFulfillMarker: marker account does not match derivation")
	ErrInvalidWithdrawnMarker = errors.New("InvalidWithdrawnMarker: marker account does not match derivation")
	ErrInvalidExecutor        = errors.New("InvalidExecutor: executor account does not match derivation")
	ErrInvalidDispatcher      = errors.New("InvalidDispatcher: dispatcher account does not match derivation")
	ErrInvalidProofCloser     = errors.New("InvalidProofCloser: proof closer account does not match derivation")
	ErrInvalidAta             = errors.New("InvalidAta: associated token account does not match derivation")
	ErrInvalidVaultAta        = errors.New("InvalidVaultAta: vault token account does not match derivation")
	ErrInvalidIntentHash      = errors.New("InvalidIntentHash: recomputed intent hash mismatch")
	ErrInvalidCreator         = errors.New("InvalidCreator: creator does not match reward")

	// Resource validity.
	ErrInvalidMint                  = errors.New("InvalidMint: mint not part of the intent's token set")
	ErrInvalidTokenTransferAccounts = errors.New("InvalidTokenTransferAccounts: malformed token transfer account list")
	ErrInvalidCreatorToken          = errors.New("InvalidCreatorToken: token account not owned by creator")
	ErrInvalidClaimantToken         = errors.New("InvalidClaimantToken: token account not owned by claimant")
	ErrInvalidTokenProgram          = errors.New("InvalidTokenProgram: unknown token program")
	ErrInvalidFulfillTarget         = errors.New("InvalidFulfillTarget: call target is a prover program")
	ErrInvalidCalldata              = errors.New("InvalidCalldata: calldata does not decode")
	ErrInvalidProver                = errors.New("InvalidProver: prover account is not an executable prover program")

	// Lifecycle.
	ErrIntentAlreadyFulfilled         = errors.New("IntentAlreadyFulfilled: fulfill marker exists")
	ErrIntentAlreadyWithdrawn         = errors.New("IntentAlreadyWithdrawn: withdrawn marker exists")
	ErrIntentNotFulfilled             = errors.New("IntentNotFulfilled: no valid proof for this intent")
	ErrIntentFulfilledAndNotWithdrawn = errors.New("IntentFulfilledAndNotWithdrawn: claimant has not withdrawn")
	ErrRouteExpired                   = errors.New("RouteExpired: route deadline passed")
	ErrRewardNotExpired               = errors.New("RewardNotExpired: reward deadline not reached")
	ErrInsufficientFunds              = errors.New("InsufficientFunds: funder balance short of a reward leg")
	ErrEmptyIntentHashes              = errors.New("EmptyIntentHashes: prove called with no intent hashes")
)
