package types

// TokenAmount pairs a token mint with an amount.
type TokenAmount struct {
	Token  Pubkey `json:"token"`
	Amount uint64 `json:"amount"`
}

// Call is one downstream instruction executed during fulfillment. Data holds
// the call's serialized calldata: before execution a Calldata blob, after
// execution a CalldataWithAccounts blob binding the resolved account metas.
type Call struct {
	Target Pubkey `json:"target"`
	Data   []byte `json:"data"`
}

// Route describes the destination-side effects of an intent: a deadline, the
// tokens delivered to the executor before the calls, and the calls themselves.
type Route struct {
	Deadline     uint64        `json:"deadline"`
	Salt         [32]byte      `json:"salt"`
	Portal       Pubkey        `json:"portal"`
	NativeAmount uint64        `json:"native_amount"`
	Tokens       []TokenAmount `json:"tokens"`
	Calls        []Call        `json:"calls"`
}

// Reward describes the source-side payment: native plus tokens, with a
// deadline, a creator, and the prover pinned to attest fulfillment.
type Reward struct {
	Deadline     uint64        `json:"deadline"`
	Creator      Pubkey        `json:"creator"`
	Prover       Pubkey        `json:"prover"`
	NativeAmount uint64        `json:"native_amount"`
	Tokens       []TokenAmount `json:"tokens"`
}

// Intent is the logical (destination chain, route, reward) triple. It is
// never persisted; everything downstream is keyed by its hash.
type Intent struct {
	DestinationChain uint64 `json:"destination_chain"`
	Route            Route  `json:"route"`
	Reward           Reward `json:"reward"`
}

// Hash returns the intent hash of the triple.
func (i *Intent) Hash() Hash {
	return IntentHash(i.DestinationChain, i.Route.Hash(), i.Reward.Hash())
}

// AmountForToken returns the reward amount for a mint and whether the mint is
// part of the reward at all. Duplicate entries accumulate.
func (r *Reward) AmountForToken(mint Pubkey) (uint64, bool) {
	var total uint64
	found := false
	for _, t := range r.Tokens {
		if t.Token == mint {
			total += t.Amount
			found = true
		}
	}
	return total, found
}

// AmountForToken returns the route amount for a mint and whether the mint is
// part of the route's token set. Duplicate entries accumulate.
func (r *Route) AmountForToken(mint Pubkey) (uint64, bool) {
	var total uint64
	found := false
	for _, t := range r.Tokens {
		if t.Token == mint {
			total += t.Amount
			found = true
		}
	}
	return total, found
}

// MintSet returns the distinct mints of a token list, preserving first-seen
// order.
func MintSet(tokens []TokenAmount) []Pubkey {
	seen := make(map[Pubkey]struct{}, len(tokens))
	out := make([]Pubkey, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.Token]; ok {
			continue
		}
		seen[t.Token] = struct{}{}
		out = append(out, t.Token)
	}
	return out
}
