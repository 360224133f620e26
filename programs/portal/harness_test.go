package portal_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/intentnet/portal/programs/hyperprover"
	"github.com/intentnet/portal/programs/localprover"
	"github.com/intentnet/portal/programs/mailbox"
	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

const chainID uint64 = 1399811149

// testChain is one deployed chain: a runtime with the portal, both
// provers, and the mailbox registered, plus a controllable clock.
type testChain struct {
	t   *testing.T
	rt  *runtime.Runtime
	now uint64
}

func newTestChain(t *testing.T, chain uint64) *testChain {
	t.Helper()
	store, err := runtime.OpenPebble(t.TempDir() + "/ledger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	rt := runtime.New(chain, store, logger)
	rt.Register(portal.New())
	rt.Register(localprover.New())
	rt.Register(hyperprover.New())
	rt.Register(mailbox.New())

	c := &testChain{t: t, rt: rt, now: 1_756_000_000}
	rt.SetClock(func() uint64 { return c.now })
	return c
}

func (c *testChain) advance(seconds uint64) {
	c.now += seconds
}

func (c *testChain) exec(ix runtime.Instruction, signers ...types.Pubkey) (*runtime.Result, error) {
	return c.rt.Execute(context.Background(), ix, signers...)
}

func (c *testChain) mustExec(ix runtime.Instruction, signers ...types.Pubkey) *runtime.Result {
	c.t.Helper()
	res, err := c.exec(ix, signers...)
	require.NoError(c.t, err)
	return res
}

func (c *testChain) airdrop(pk types.Pubkey, lamports uint64) {
	c.t.Helper()
	require.NoError(c.t, c.rt.Airdrop(pk, lamports))
}

func (c *testChain) lamports(pk types.Pubkey) uint64 {
	c.t.Helper()
	balance, err := c.rt.Lamports(pk)
	require.NoError(c.t, err)
	return balance
}

func (c *testChain) exists(pk types.Pubkey) bool {
	c.t.Helper()
	_, err := c.rt.Account(pk)
	return err == nil
}

// createMint initializes a classic token mint governed by authority.
func (c *testChain) createMint(mint, payer, authority types.Pubkey) {
	c.t.Helper()
	c.airdrop(payer, 10_000_000)
	ix := runtime.NewInitializeMintInstruction(runtime.TokenProgramID, mint, payer, authority, 6)
	c.mustExec(ix, payer)
}

// createAta creates owner's associated token account and returns it.
func (c *testChain) createAta(owner, mint, payer types.Pubkey) types.Pubkey {
	c.t.Helper()
	ata, err := runtime.DeriveATA(owner, runtime.TokenProgramID, mint)
	require.NoError(c.t, err)
	c.airdrop(payer, 10_000_000)
	c.mustExec(runtime.NewCreateATAInstruction(payer, ata, owner, mint, runtime.TokenProgramID), payer)
	return ata
}

func (c *testChain) mintTo(mint, dest, authority types.Pubkey, amount uint64) {
	c.t.Helper()
	c.mustExec(runtime.NewMintToInstruction(runtime.TokenProgramID, mint, dest, authority, amount), authority)
}

func (c *testChain) tokenBalance(pk types.Pubkey) uint64 {
	c.t.Helper()
	acct, err := c.rt.Account(pk)
	if err != nil {
		return 0
	}
	body, err := runtime.DecodeTokenAccount(acct.Data)
	require.NoError(c.t, err)
	return body.Amount
}

func key(b byte) types.Pubkey {
	var out types.Pubkey
	for i := range out {
		out[i] = b
	}
	return out
}

// intentFixture holds one intent and its derived identities.
type intentFixture struct {
	destChain uint64
	route     types.Route
	reward    types.Reward
}

// nativeIntent builds a token-free intent: the route owes routeNative to
// the executor, the reward owes rewardNative to the claimant.
func nativeIntent(c *testChain, creator, proverID types.Pubkey, routeNative, rewardNative uint64) *intentFixture {
	return &intentFixture{
		destChain: c.rt.ChainID(),
		route: types.Route{
			Deadline:     c.now + 1800,
			Portal:       portal.ProgramID,
			NativeAmount: routeNative,
		},
		reward: types.Reward{
			Deadline:     c.now + 3600,
			Creator:      creator,
			Prover:       proverID,
			NativeAmount: rewardNative,
		},
	}
}

func (f *intentFixture) routeHash() types.Hash  { return f.route.Hash() }
func (f *intentFixture) rewardHash() types.Hash { return f.reward.Hash() }

func (f *intentFixture) intentHash() types.Hash {
	return types.IntentHash(f.destChain, f.routeHash(), f.rewardHash())
}

func (f *intentFixture) vault(t *testing.T) types.Pubkey {
	t.Helper()
	pk, err := portal.VaultAddress(f.intentHash())
	require.NoError(t, err)
	return pk
}

func (f *intentFixture) fulfillMarker(t *testing.T) types.Pubkey {
	t.Helper()
	pk, _, err := portal.FulfillMarkerAddress(f.intentHash())
	require.NoError(t, err)
	return pk
}

func (f *intentFixture) withdrawnMarker(t *testing.T) types.Pubkey {
	t.Helper()
	pk, err := portal.WithdrawnMarkerAddress(f.intentHash())
	require.NoError(t, err)
	return pk
}

func mustExecutor(t *testing.T) types.Pubkey {
	t.Helper()
	pk, err := portal.ExecutorAddress()
	require.NoError(t, err)
	return pk
}

func mustDispatcher(t *testing.T) types.Pubkey {
	t.Helper()
	pk, err := portal.DispatcherAddress()
	require.NoError(t, err)
	return pk
}

func mustProofCloser(t *testing.T) types.Pubkey {
	t.Helper()
	pk, err := portal.ProofCloserAddress()
	require.NoError(t, err)
	return pk
}

// fundNative funds a token-free intent in full from a fresh funder.
func fundNative(c *testChain, f *intentFixture, funder types.Pubkey) {
	c.t.Helper()
	c.airdrop(funder, f.reward.NativeAmount+10_000_000)
	args := &portal.FundArgs{
		DestinationChain: f.destChain,
		RouteHash:        f.routeHash(),
		Reward:           f.reward,
	}
	ix := portal.NewFundInstruction(args, funder, f.vault(c.t), runtime.TokenProgramID, nil)
	c.mustExec(ix, funder)
}

// fulfillNative fulfills a token-free, call-free intent.
func fulfillNative(c *testChain, f *intentFixture, solver, claimant types.Pubkey) (*runtime.Result, error) {
	c.t.Helper()
	args := &portal.FulfillArgs{
		IntentHash: f.intentHash(),
		RewardHash: f.rewardHash(),
		Claimant:   claimant,
		Route:      f.route,
	}
	ix := portal.NewFulfillInstruction(
		args, solver, mustExecutor(c.t), f.fulfillMarker(c.t), runtime.TokenProgramID, nil, nil)
	return c.exec(ix, solver)
}

// proveLocal routes the fulfillment through the local prover.
func proveLocal(c *testChain, f *intentFixture, payer types.Pubkey) (*runtime.Result, error) {
	c.t.Helper()
	args := &portal.ProveArgs{
		SourceChain:  c.rt.ChainID(),
		Prover:       localprover.ProgramID,
		IntentHashes: []types.Hash{f.intentHash()},
	}
	ix := portal.NewProveInstruction(args, mustDispatcher(c.t), []types.Pubkey{f.fulfillMarker(c.t)},
		[]runtime.AccountMeta{runtime.SignerMeta(payer)})
	return c.exec(ix, payer)
}

// withdrawNative withdraws a token-free reward.
func withdrawNative(c *testChain, f *intentFixture, claimant, payer types.Pubkey) (*runtime.Result, error) {
	c.t.Helper()
	args := &portal.WithdrawArgs{
		DestinationChain: f.destChain,
		RouteHash:        f.routeHash(),
		Reward:           f.reward,
	}
	ix := portal.NewWithdrawInstruction(
		args, claimant, f.vault(c.t), f.withdrawnMarker(c.t),
		payer, mustProofCloser(c.t), payer, runtime.TokenProgramID, nil)
	return c.exec(ix, payer)
}
