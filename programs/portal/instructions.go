package portal

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// Instruction discriminators.
const (
	IxPublish  byte = 1
	IxFund     byte = 2
	IxFulfill  byte = 3
	IxProve    byte = 4
	IxWithdraw byte = 5
	IxRefund   byte = 6
)

// ErrMalformedInstruction indicates portal instruction data that does not
// decode.
var ErrMalformedInstruction = errors.New("malformed portal instruction")

// PublishArgs announces an intent. RouteBytes is the route's canonical
// encoding; the portal hashes it without interpreting it, so a route built
// for a foreign destination can be published here byte-for-byte.
type PublishArgs struct {
	DestinationChain uint64
	RouteBytes       []byte
	Reward           types.Reward
}

// Encode returns the publish instruction data.
func (a *PublishArgs) Encode() []byte {
	out := make([]byte, 0, 1+8+4+len(a.RouteBytes)+96)
	out = append(out, IxPublish)
	out = binary.LittleEndian.AppendUint64(out, a.DestinationChain)
	out = types.AppendBytes(out, a.RouteBytes)
	return append(out, a.Reward.MarshalWire()...)
}

// DecodePublishArgs parses publish instruction data, discriminator included.
func DecodePublishArgs(data []byte) (*PublishArgs, error) {
	if len(data) == 0 || data[0] != IxPublish {
		return nil, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	out := &PublishArgs{}
	var err error
	if out.DestinationChain, err = r.ReadU64(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.RouteBytes, err = r.ReadBytes(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Reward, err = r.ReadReward(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedInstruction
	}
	return out, nil
}

// FundArgs deposits reward value into the vault. The intent hash is
// recomputed from (DestinationChain, RouteHash, Reward), so a funder cannot
// target a vault the reward does not belong to.
type FundArgs struct {
	DestinationChain uint64
	RouteHash        types.Hash
	AllowPartial     bool
	Reward           types.Reward
}

// Encode returns the fund instruction data.
func (a *FundArgs) Encode() []byte {
	out := make([]byte, 0, 1+8+32+1+96)
	out = append(out, IxFund)
	out = binary.LittleEndian.AppendUint64(out, a.DestinationChain)
	out = append(out, a.RouteHash[:]...)
	if a.AllowPartial {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return append(out, a.Reward.MarshalWire()...)
}

// DecodeFundArgs parses fund instruction data.
func DecodeFundArgs(data []byte) (*FundArgs, error) {
	if len(data) == 0 || data[0] != IxFund {
		return nil, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	out := &FundArgs{}
	var err error
	if out.DestinationChain, err = r.ReadU64(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.RouteHash, err = r.ReadHash(); err != nil {
		return nil, ErrMalformedInstruction
	}
	flag, err := r.ReadU8()
	if err != nil || flag > 1 {
		return nil, ErrMalformedInstruction
	}
	out.AllowPartial = flag == 1
	if out.Reward, err = r.ReadReward(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedInstruction
	}
	return out, nil
}

// FulfillArgs executes an intent's route on the destination chain. The
// route travels in full; the reward only as its hash, since fulfillment
// never touches reward value.
type FulfillArgs struct {
	IntentHash types.Hash
	RewardHash types.Hash
	Claimant   types.Pubkey
	Route      types.Route
}

// Encode returns the fulfill instruction data.
func (a *FulfillArgs) Encode() []byte {
	out := make([]byte, 0, 1+32+32+32+128)
	out = append(out, IxFulfill)
	out = append(out, a.IntentHash[:]...)
	out = append(out, a.RewardHash[:]...)
	out = append(out, a.Claimant[:]...)
	return append(out, a.Route.MarshalWire()...)
}

// DecodeFulfillArgs parses fulfill instruction data.
func DecodeFulfillArgs(data []byte) (*FulfillArgs, error) {
	if len(data) == 0 || data[0] != IxFulfill {
		return nil, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	out := &FulfillArgs{}
	var err error
	if out.IntentHash, err = r.ReadHash(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.RewardHash, err = r.ReadHash(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Claimant, err = r.ReadPubkey(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Route, err = r.ReadRoute(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedInstruction
	}
	return out, nil
}

// ProveArgs routes fulfillment attestations to a prover program. Data is
// opaque to the portal; each prover interprets it.
type ProveArgs struct {
	SourceChain  uint64
	Prover       types.Pubkey
	IntentHashes []types.Hash
	Data         []byte
}

// Encode returns the prove instruction data.
func (a *ProveArgs) Encode() []byte {
	out := make([]byte, 0, 1+8+32+4+32*len(a.IntentHashes)+4+len(a.Data))
	out = append(out, IxProve)
	out = binary.LittleEndian.AppendUint64(out, a.SourceChain)
	out = append(out, a.Prover[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(a.IntentHashes)))
	for _, h := range a.IntentHashes {
		out = append(out, h[:]...)
	}
	return types.AppendBytes(out, a.Data)
}

// DecodeProveArgs parses prove instruction data.
func DecodeProveArgs(data []byte) (*ProveArgs, error) {
	if len(data) == 0 || data[0] != IxProve {
		return nil, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	out := &ProveArgs{}
	var err error
	if out.SourceChain, err = r.ReadU64(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Prover, err = r.ReadPubkey(); err != nil {
		return nil, ErrMalformedInstruction
	}
	count, err := r.ReadU32()
	if err != nil {
		return nil, ErrMalformedInstruction
	}
	if count > 0 {
		out.IntentHashes = make([]types.Hash, count)
		for i := range out.IntentHashes {
			if out.IntentHashes[i], err = r.ReadHash(); err != nil {
				return nil, ErrMalformedInstruction
			}
		}
	}
	if out.Data, err = r.ReadBytes(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedInstruction
	}
	return out, nil
}

// WithdrawArgs pays the proven claimant out of the vault.
type WithdrawArgs struct {
	DestinationChain uint64
	RouteHash        types.Hash
	Reward           types.Reward
}

// Encode returns the withdraw instruction data.
func (a *WithdrawArgs) Encode() []byte {
	return encodeSettleArgs(IxWithdraw, a.DestinationChain, a.RouteHash, &a.Reward)
}

// DecodeWithdrawArgs parses withdraw instruction data.
func DecodeWithdrawArgs(data []byte) (*WithdrawArgs, error) {
	chain, routeHash, reward, err := decodeSettleArgs(IxWithdraw, data)
	if err != nil {
		return nil, err
	}
	return &WithdrawArgs{DestinationChain: chain, RouteHash: routeHash, Reward: reward}, nil
}

// RefundArgs returns vault value to the creator after reward expiry.
type RefundArgs struct {
	DestinationChain uint64
	RouteHash        types.Hash
	Reward           types.Reward
}

// Encode returns the refund instruction data.
func (a *RefundArgs) Encode() []byte {
	return encodeSettleArgs(IxRefund, a.DestinationChain, a.RouteHash, &a.Reward)
}

// DecodeRefundArgs parses refund instruction data.
func DecodeRefundArgs(data []byte) (*RefundArgs, error) {
	chain, routeHash, reward, err := decodeSettleArgs(IxRefund, data)
	if err != nil {
		return nil, err
	}
	return &RefundArgs{DestinationChain: chain, RouteHash: routeHash, Reward: reward}, nil
}

// Withdraw and refund identify the intent the same way.
func encodeSettleArgs(disc byte, chain uint64, routeHash types.Hash, reward *types.Reward) []byte {
	out := make([]byte, 0, 1+8+32+96)
	out = append(out, disc)
	out = binary.LittleEndian.AppendUint64(out, chain)
	out = append(out, routeHash[:]...)
	return append(out, reward.MarshalWire()...)
}

func decodeSettleArgs(disc byte, data []byte) (uint64, types.Hash, types.Reward, error) {
	var chain uint64
	var routeHash types.Hash
	var reward types.Reward
	if len(data) == 0 || data[0] != disc {
		return 0, routeHash, reward, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	var err error
	if chain, err = r.ReadU64(); err != nil {
		return 0, routeHash, reward, ErrMalformedInstruction
	}
	if routeHash, err = r.ReadHash(); err != nil {
		return 0, routeHash, reward, ErrMalformedInstruction
	}
	if reward, err = r.ReadReward(); err != nil {
		return 0, routeHash, reward, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return 0, routeHash, reward, ErrMalformedInstruction
	}
	return chain, routeHash, reward, nil
}

// NewPublishInstruction builds a publish instruction. Publish writes no
// state and needs no accounts.
func NewPublishInstruction(args *PublishArgs) runtime.Instruction {
	return runtime.Instruction{ProgramID: ProgramID, Data: args.Encode()}
}

// FundLeg names the accounts of one token deposit: the mint, the funder's
// source token account, and the vault's associated token account.
type FundLeg struct {
	Mint        types.Pubkey
	FunderToken types.Pubkey
	VaultAta    types.Pubkey
}

// NewFundInstruction builds a fund instruction.
func NewFundInstruction(args *FundArgs, funder, vault, tokenProgram types.Pubkey, legs []FundLeg) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 3+3*len(legs))
	accounts = append(accounts,
		runtime.SignerMeta(funder),
		runtime.WritableMeta(vault),
		runtime.Meta(tokenProgram),
	)
	for _, leg := range legs {
		accounts = append(accounts,
			runtime.Meta(leg.Mint),
			runtime.WritableMeta(leg.FunderToken),
			runtime.WritableMeta(leg.VaultAta),
		)
	}
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: args.Encode()}
}

// FulfillLeg names the accounts of one token pull into the executor: the
// mint, the solver's source token account, and the executor's associated
// token account.
type FulfillLeg struct {
	Mint        types.Pubkey
	SolverToken types.Pubkey
	ExecutorAta types.Pubkey
}

// NewFulfillInstruction builds a fulfill instruction. callAccounts is the
// concatenation of every call's account window, in route-call order.
func NewFulfillInstruction(
	args *FulfillArgs,
	solver, executor, fulfillMarker, tokenProgram types.Pubkey,
	legs []FulfillLeg,
	callAccounts []runtime.AccountMeta,
) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 4+3*len(legs)+len(callAccounts))
	accounts = append(accounts,
		runtime.SignerMeta(solver),
		runtime.WritableMeta(executor),
		runtime.WritableMeta(fulfillMarker),
		runtime.Meta(tokenProgram),
	)
	for _, leg := range legs {
		accounts = append(accounts,
			runtime.Meta(leg.Mint),
			runtime.WritableMeta(leg.SolverToken),
			runtime.WritableMeta(leg.ExecutorAta),
		)
	}
	accounts = append(accounts, callAccounts...)
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: args.Encode()}
}

// NewProveInstruction builds a prove instruction. markers carries one
// fulfill-marker account per intent hash, in args order; remaining is
// forwarded untouched to the prover.
func NewProveInstruction(
	args *ProveArgs,
	dispatcher types.Pubkey,
	markers []types.Pubkey,
	remaining []runtime.AccountMeta,
) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 1+len(markers)+len(remaining))
	accounts = append(accounts, runtime.Meta(dispatcher))
	for _, m := range markers {
		accounts = append(accounts, runtime.Meta(m))
	}
	accounts = append(accounts, remaining...)
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: args.Encode()}
}

// WithdrawLeg names the accounts of one token payout: the vault's
// associated token account, the claimant's destination token account, and
// the mint.
type WithdrawLeg struct {
	VaultAta      types.Pubkey
	ClaimantToken types.Pubkey
	Mint          types.Pubkey
}

// NewWithdrawInstruction builds a withdraw instruction.
func NewWithdrawInstruction(
	args *WithdrawArgs,
	claimant, vault, withdrawnMarker, payer, proofCloser, rentRecipient, tokenProgram types.Pubkey,
	legs []WithdrawLeg,
) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 7+3*len(legs))
	accounts = append(accounts,
		runtime.WritableMeta(claimant),
		runtime.WritableMeta(vault),
		runtime.WritableMeta(withdrawnMarker),
		runtime.SignerMeta(payer),
		runtime.Meta(proofCloser),
		runtime.WritableMeta(rentRecipient),
		runtime.Meta(tokenProgram),
	)
	for _, leg := range legs {
		accounts = append(accounts,
			runtime.WritableMeta(leg.VaultAta),
			runtime.WritableMeta(leg.ClaimantToken),
			runtime.Meta(leg.Mint),
		)
	}
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: args.Encode()}
}

// RefundLeg names the accounts of one token sweep back to the creator.
type RefundLeg struct {
	VaultAta     types.Pubkey
	CreatorToken types.Pubkey
	Mint         types.Pubkey
}

// NewRefundInstruction builds a refund instruction.
func NewRefundInstruction(
	args *RefundArgs,
	creator, vault, payer, tokenProgram types.Pubkey,
	legs []RefundLeg,
) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 4+3*len(legs))
	accounts = append(accounts,
		runtime.WritableMeta(creator),
		runtime.WritableMeta(vault),
		runtime.SignerMeta(payer),
		runtime.Meta(tokenProgram),
	)
	for _, leg := range legs {
		accounts = append(accounts,
			runtime.WritableMeta(leg.VaultAta),
			runtime.WritableMeta(leg.CreatorToken),
			runtime.Meta(leg.Mint),
		)
	}
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: args.Encode()}
}
