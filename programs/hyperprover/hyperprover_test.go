package hyperprover_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentnet/portal/programs/hyperprover"
	"github.com/intentnet/portal/programs/mailbox"
	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/relayer"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

const (
	sourceChainID uint64 = 1399811149
	destChainID   uint64 = 8453

	sourceDomain uint32 = 1
	destDomain   uint32 = 2
)

type chain struct {
	t   *testing.T
	rt  *runtime.Runtime
	now uint64
}

func key(b byte) types.Pubkey {
	var out types.Pubkey
	for i := range out {
		out[i] = b
	}
	return out
}

func mustPk(t *testing.T, derive func() (types.Pubkey, error)) types.Pubkey {
	t.Helper()
	pk, err := derive()
	require.NoError(t, err)
	return pk
}

// newChain deploys one chain: mailbox initialized with its local domain,
// hyper prover configured with the shared whitelist and domain table, pda
// payer pre-funded.
func newChain(t *testing.T, chainID uint64, localDomain uint32) *chain {
	t.Helper()
	store, err := runtime.OpenPebble(t.TempDir() + "/ledger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	rt := runtime.New(chainID, store, logger)
	rt.Register(portal.New())
	rt.Register(hyperprover.New())
	rt.Register(mailbox.New())

	c := &chain{t: t, rt: rt, now: 1_756_000_000}
	rt.SetClock(func() uint64 { return c.now })

	deployer := key(0xDE)
	require.NoError(t, rt.Airdrop(deployer, 100_000_000))
	ctx := context.Background()
	_, err = rt.Execute(ctx, mailbox.NewInitInstruction(deployer, localDomain), deployer)
	require.NoError(t, err)

	hyperDispatcher := mustPk(t, hyperprover.DispatcherAddress)
	cfg := &hyperprover.Config{
		Mailbox:            mailbox.ProgramID,
		WhitelistedSenders: []types.Pubkey{hyperDispatcher},
		Routes: []hyperprover.DomainRoute{
			{Domain: sourceDomain, Chain: sourceChainID},
			{Domain: destDomain, Chain: destChainID},
		},
	}
	_, err = rt.Execute(ctx, hyperprover.NewInitInstruction(deployer, cfg), deployer)
	require.NoError(t, err)

	require.NoError(t, rt.Airdrop(mustPk(t, hyperprover.PdaPayerAddress), 10_000_000))
	return c
}

func (c *chain) exec(ix runtime.Instruction, signers ...types.Pubkey) (*runtime.Result, error) {
	return c.rt.Execute(context.Background(), ix, signers...)
}

func (c *chain) lamports(pk types.Pubkey) uint64 {
	c.t.Helper()
	balance, err := c.rt.Lamports(pk)
	require.NoError(c.t, err)
	return balance
}

// The full cross-chain lifecycle: fund on source, fulfill and prove on
// destination, relay the attestation back, withdraw on source.
func TestCrossChainLifecycle(t *testing.T) {
	src := newChain(t, sourceChainID, sourceDomain)
	dst := newChain(t, destChainID, destDomain)
	ctx := context.Background()

	creator, funder, solver := key(0xC1), key(0xF1), key(0x51)
	claimant, payer := key(0x11), key(0xAA)

	route := types.Route{Deadline: src.now + 1800, Portal: portal.ProgramID}
	reward := types.Reward{
		Deadline:     src.now + 3600,
		Creator:      creator,
		Prover:       hyperprover.ProgramID,
		NativeAmount: 1_000_000_000,
	}
	intentHash := types.IntentHash(destChainID, route.Hash(), reward.Hash())
	vault, err := portal.VaultAddress(intentHash)
	require.NoError(t, err)

	require.NoError(t, src.rt.Airdrop(funder, 1_100_000_000))
	fundArgs := &portal.FundArgs{DestinationChain: destChainID, RouteHash: route.Hash(), Reward: reward}
	_, err = src.exec(portal.NewFundInstruction(fundArgs, funder, vault, runtime.TokenProgramID, nil), funder)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), src.lamports(vault))

	marker, _, err := portal.FulfillMarkerAddress(intentHash)
	require.NoError(t, err)
	require.NoError(t, dst.rt.Airdrop(solver, 10_000_000))
	fulfillArgs := &portal.FulfillArgs{
		IntentHash: intentHash,
		RewardHash: reward.Hash(),
		Claimant:   claimant,
		Route:      route,
	}
	_, err = dst.exec(portal.NewFulfillInstruction(
		fulfillArgs, solver, mustPk(t, portal.ExecutorAddress), marker, runtime.TokenProgramID, nil, nil), solver)
	require.NoError(t, err)

	dispatcher := mustPk(t, portal.DispatcherAddress)
	proveArgs := &portal.ProveArgs{
		SourceChain:  sourceChainID,
		Prover:       hyperprover.ProgramID,
		IntentHashes: []types.Hash{intentHash},
		Data:         hyperprover.ProgramID[:],
	}

	t.Run("unrouted source chain rejected", func(t *testing.T) {
		bad := *proveArgs
		bad.SourceChain = 555
		_, err := dst.exec(portal.NewProveInstruction(&bad, dispatcher, []types.Pubkey{marker}, nil))
		assert.ErrorIs(t, err, hyperprover.ErrInvalidChainID)
	})

	res, err := dst.exec(portal.NewProveInstruction(proveArgs, dispatcher, []types.Pubkey{marker}, nil))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	dispatched, ok := res.Events[0].(mailbox.DispatchEvent)
	require.True(t, ok)
	assert.Equal(t, sourceDomain, dispatched.Message.DestinationDomain)
	assert.Equal(t, destDomain, dispatched.Message.OriginDomain)
	require.Len(t, dispatched.Message.Body, 64)

	r := relayer.New(zerolog.New(os.Stderr).Level(zerolog.Disabled), 16)
	relayerPayer := key(0xEE)
	require.NoError(t, src.rt.Airdrop(relayerPayer, 10_000_000))
	r.Attach(&relayer.Chain{Domain: sourceDomain, Runtime: src.rt, Payer: relayerPayer})
	r.Attach(&relayer.Chain{Domain: destDomain, Runtime: dst.rt, Payer: relayerPayer})

	pdaPayer := mustPk(t, hyperprover.PdaPayerAddress)
	payerBefore := src.lamports(pdaPayer)
	require.NoError(t, r.Deliver(ctx, &dispatched.Message))

	proofPk, err := prover.ProofAddress(hyperprover.ProgramID, intentHash)
	require.NoError(t, err)
	acct, err := src.rt.Account(proofPk)
	require.NoError(t, err)
	proof, err := prover.DecodeProof(acct.Data)
	require.NoError(t, err)
	assert.Equal(t, destChainID, proof.DestinationChain)
	assert.Equal(t, claimant, proof.Claimant)
	assert.Less(t, src.lamports(pdaPayer), payerBefore, "pda payer fronts the proof rent")

	t.Run("replay rejected", func(t *testing.T) {
		err := r.Deliver(ctx, &dispatched.Message)
		assert.ErrorIs(t, err, mailbox.ErrAlreadyDelivered)
	})

	require.NoError(t, src.rt.Airdrop(payer, 10_000_000))
	withdrawArgs := &portal.WithdrawArgs{
		DestinationChain: destChainID,
		RouteHash:        route.Hash(),
		Reward:           reward,
	}
	withdrawnMarker, err := portal.WithdrawnMarkerAddress(intentHash)
	require.NoError(t, err)
	proofCloser := mustPk(t, portal.ProofCloserAddress)
	_, err = src.exec(portal.NewWithdrawInstruction(
		withdrawArgs, claimant, vault, withdrawnMarker,
		payer, proofCloser, pdaPayer, runtime.TokenProgramID, nil), payer)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000_000), src.lamports(claimant))
	assert.Equal(t, payerBefore, src.lamports(pdaPayer), "proof rent returns to the pda payer")
	_, err = src.rt.Account(proofPk)
	assert.ErrorIs(t, err, runtime.ErrAccountNotFound)
}

func TestHandleRejectsUnlistedSender(t *testing.T) {
	src := newChain(t, sourceChainID, sourceDomain)
	relayerPayer := key(0xEE)
	require.NoError(t, src.rt.Airdrop(relayerPayer, 10_000_000))
	r := relayer.New(zerolog.New(os.Stderr).Level(zerolog.Disabled), 16)
	r.Attach(&relayer.Chain{Domain: sourceDomain, Runtime: src.rt, Payer: relayerPayer})

	intentHash := types.Hash(key(0x01))
	claimant := key(0x11)
	body := append(append([]byte{}, claimant[:]...), intentHash[:]...)
	msg := mailbox.Message{
		Nonce:             9,
		OriginDomain:      destDomain,
		Sender:            key(0xBB),
		DestinationDomain: sourceDomain,
		Recipient:         hyperprover.ProgramID,
		Body:              body,
	}

	pdaPayer := mustPk(t, hyperprover.PdaPayerAddress)
	before := src.lamports(pdaPayer)
	err := r.Deliver(context.Background(), &msg)
	assert.ErrorIs(t, err, hyperprover.ErrInvalidSender)
	assert.Equal(t, before, src.lamports(pdaPayer))

	proofPk, err := prover.ProofAddress(hyperprover.ProgramID, intentHash)
	require.NoError(t, err)
	_, err = src.rt.Account(proofPk)
	assert.ErrorIs(t, err, runtime.ErrAccountNotFound)
}

func TestHandleRejectsMalformedInbound(t *testing.T) {
	src := newChain(t, sourceChainID, sourceDomain)
	relayerPayer := key(0xEE)
	require.NoError(t, src.rt.Airdrop(relayerPayer, 20_000_000))
	r := relayer.New(zerolog.New(os.Stderr).Level(zerolog.Disabled), 16)
	r.Attach(&relayer.Chain{Domain: sourceDomain, Runtime: src.rt, Payer: relayerPayer})
	sender := mustPk(t, hyperprover.DispatcherAddress)

	t.Run("short body", func(t *testing.T) {
		msg := mailbox.Message{
			Nonce:             1,
			OriginDomain:      destDomain,
			Sender:            sender,
			DestinationDomain: sourceDomain,
			Recipient:         hyperprover.ProgramID,
			Body:              make([]byte, 63),
		}
		err := r.Deliver(context.Background(), &msg)
		assert.ErrorIs(t, err, hyperprover.ErrInvalidData)
	})

	t.Run("unknown origin domain", func(t *testing.T) {
		msg := mailbox.Message{
			Nonce:             2,
			OriginDomain:      42,
			Sender:            sender,
			DestinationDomain: sourceDomain,
			Recipient:         hyperprover.ProgramID,
			Body:              make([]byte, 64),
		}
		err := r.Deliver(context.Background(), &msg)
		assert.ErrorIs(t, err, hyperprover.ErrInvalidChainID)
	})
}

func TestSimulationEndpoints(t *testing.T) {
	src := newChain(t, sourceChainID, sourceDomain)
	ctx := context.Background()

	res, err := src.rt.Simulate(ctx, runtime.Instruction{
		ProgramID: hyperprover.ProgramID,
		Data:      []byte{mailbox.IxHandleAccountMetas},
	})
	require.NoError(t, err)
	metas, err := mailbox.DecodeAccountMetas(res.ReturnData)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, mustPk(t, hyperprover.ConfigAddress), metas[0].Pubkey)
	assert.Equal(t, mustPk(t, hyperprover.PdaPayerAddress), metas[1].Pubkey)
	assert.True(t, metas[1].IsWritable)

	res, err = src.rt.Simulate(ctx, runtime.Instruction{
		ProgramID: hyperprover.ProgramID,
		Data:      []byte{hyperprover.IxIsm},
	})
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), res.ReturnData, "no ISM configured")
}

func TestConfigCodec(t *testing.T) {
	cfg := &hyperprover.Config{
		Mailbox:            mailbox.ProgramID,
		WhitelistedSenders: []types.Pubkey{key(0x01), key(0x02)},
		Routes:             []hyperprover.DomainRoute{{Domain: 1, Chain: 10}, {Domain: 2, Chain: 20}},
	}
	got, err := hyperprover.DecodeConfig(cfg.Encode())
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	assert.True(t, got.SenderWhitelisted(key(0x01)))
	assert.False(t, got.SenderWhitelisted(key(0x03)))

	domain, ok := got.DomainForChain(20)
	require.True(t, ok)
	assert.Equal(t, uint32(2), domain)
	_, ok = got.DomainForChain(30)
	assert.False(t, ok)

	chainID, ok := got.ChainForDomain(1)
	require.True(t, ok)
	assert.Equal(t, uint64(10), chainID)
	_, ok = got.ChainForDomain(9)
	assert.False(t, ok)

	t.Run("oversized whitelist rejected", func(t *testing.T) {
		big := &hyperprover.Config{Mailbox: mailbox.ProgramID}
		for i := 0; i <= hyperprover.MaxWhitelistedSenders; i++ {
			big.WhitelistedSenders = append(big.WhitelistedSenders, key(byte(i+1)))
		}
		_, err := hyperprover.DecodeConfig(big.Encode())
		assert.ErrorIs(t, err, hyperprover.ErrInvalidConfig)
	})
}

func TestInitRejectsForeignMailbox(t *testing.T) {
	store, err := runtime.OpenPebble(t.TempDir() + "/ledger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	rt := runtime.New(sourceChainID, store, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	rt.Register(hyperprover.New())

	deployer := key(0xDE)
	require.NoError(t, rt.Airdrop(deployer, 100_000_000))
	cfg := &hyperprover.Config{Mailbox: key(0x99)}
	_, err = rt.Execute(context.Background(), hyperprover.NewInitInstruction(deployer, cfg), deployer)
	assert.ErrorIs(t, err, hyperprover.ErrInvalidMailbox)
}
