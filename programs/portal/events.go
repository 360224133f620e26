package portal

import "github.com/intentnet/portal/types"

// IntentPublished is emitted by publish; discovery is carried entirely by
// off-chain indexing of this event.
type IntentPublished struct {
	IntentHash       types.Hash
	DestinationChain uint64
	RouteBytes       []byte
	Reward           types.Reward
}

// IntentFunded is emitted by fund. Complete reports whether every reward leg
// is fully covered after this call.
type IntentFunded struct {
	IntentHash types.Hash
	Funder     types.Pubkey
	Complete   bool
}

// IntentFulfilled is emitted by fulfill on the destination chain.
type IntentFulfilled struct {
	IntentHash types.Hash
	Claimant   types.Pubkey
}

// IntentProven is emitted by prove when the attestation is handed to the
// chosen prover.
type IntentProven struct {
	IntentHash       types.Hash
	SourceChain      uint64
	DestinationChain uint64
}

// IntentWithdrawn is emitted by withdraw.
type IntentWithdrawn struct {
	IntentHash types.Hash
	Claimant   types.Pubkey
}

// IntentRefunded is emitted by refund.
type IntentRefunded struct {
	IntentHash types.Hash
	Creator    types.Pubkey
}

func (IntentPublished) EventName() string { return "IntentPublished" }
func (IntentFunded) EventName() string    { return "IntentFunded" }
func (IntentFulfilled) EventName() string { return "IntentFulfilled" }
func (IntentProven) EventName() string    { return "IntentProven" }
func (IntentWithdrawn) EventName() string { return "IntentWithdrawn" }
func (IntentRefunded) EventName() string  { return "IntentRefunded" }
