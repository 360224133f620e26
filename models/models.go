// Package models holds the persisted and API-facing records derived from
// the on-chain event feed.
package models

import (
	"time"
)

// IntentStatus tracks an intent through its lifecycle. Statuses observed on
// the destination chain (fulfilled) and the source chain (everything else)
// are folded into one record keyed by intent hash.
type IntentStatus string

const (
	IntentStatusPublished IntentStatus = "published"
	IntentStatusFunded    IntentStatus = "funded"
	IntentStatusFulfilled IntentStatus = "fulfilled"
	IntentStatusProven    IntentStatus = "proven"
	IntentStatusWithdrawn IntentStatus = "withdrawn"
	IntentStatusRefunded  IntentStatus = "refunded"
)

// rank orders statuses so out-of-order event delivery never regresses an
// intent record. Withdrawn and refunded are both terminal.
var statusRank = map[IntentStatus]int{
	IntentStatusPublished: 0,
	IntentStatusFunded:    1,
	IntentStatusFulfilled: 2,
	IntentStatusProven:    3,
	IntentStatusWithdrawn: 4,
	IntentStatusRefunded:  4,
}

// Supersedes reports whether moving to next from current is forward progress.
func (current IntentStatus) Supersedes(next IntentStatus) bool {
	return statusRank[current] > statusRank[next]
}

// Intent is one cross-chain order as seen from the event feed.
type Intent struct {
	Hash             string       `json:"hash"`
	SourceChain      uint64       `json:"source_chain"`
	DestinationChain uint64       `json:"destination_chain"`
	Creator          string       `json:"creator"`
	Prover           string       `json:"prover"`
	NativeReward     string       `json:"native_reward"`
	Status           IntentStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Fulfillment records who filled an intent on its destination chain.
type Fulfillment struct {
	IntentHash string    `json:"intent_hash"`
	Claimant   string    `json:"claimant"`
	ChainID    uint64    `json:"chain_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Proof records a prover attestation landing on the source chain.
type Proof struct {
	IntentHash       string    `json:"intent_hash"`
	SourceChain      uint64    `json:"source_chain"`
	DestinationChain uint64    `json:"destination_chain"`
	CreatedAt        time.Time `json:"created_at"`
}

// SettlementKind distinguishes the two ways a vault is emptied.
type SettlementKind string

const (
	SettlementWithdrawal SettlementKind = "withdrawal"
	SettlementRefund     SettlementKind = "refund"
)

// Settlement records the terminal payout of an intent's reward.
type Settlement struct {
	IntentHash string         `json:"intent_hash"`
	Kind       SettlementKind `json:"kind"`
	ChainID    uint64         `json:"chain_id"`
	CreatedAt  time.Time      `json:"created_at"`
}
