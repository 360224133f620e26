package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/intentnet/portal/types"
)

// Well-known built-in program ids.
var (
	SystemProgramID          = types.MustParsePubkey("11111111111111111111111111111111")
	TokenProgramID           = types.MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID       = types.MustParsePubkey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgramID = types.MustParsePubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Result is the observable outcome of a committed transaction.
type Result struct {
	Events     []Event
	ReturnData []byte
}

// Runtime hosts registered programs over a persistent account ledger. Each
// Execute call runs one instruction to completion and commits, or discards
// every staged mutation. Transactions serialize on an internal lock, which
// models the single-threaded-per-transaction scheduling of the source
// environment.
type Runtime struct {
	chainID  uint64
	store    KVStore
	programs map[types.Pubkey]Program
	clock    func() uint64
	logger   zerolog.Logger
	sinks    []func(Event)

	mu sync.Mutex
}

// New creates a runtime for a chain id over the given store.
func New(chainID uint64, store KVStore, logger zerolog.Logger) *Runtime {
	rt := &Runtime{
		chainID:  chainID,
		store:    store,
		programs: make(map[types.Pubkey]Program),
		clock:    func() uint64 { return uint64(time.Now().Unix()) },
		logger:   logger.With().Uint64("chain", chainID).Logger(),
	}
	rt.Register(tokenProgram{id: TokenProgramID})
	rt.Register(tokenProgram{id: Token2022ProgramID})
	rt.Register(ataProgram{})
	return rt
}

// ChainID returns the chain id the runtime was created with.
func (rt *Runtime) ChainID() uint64 {
	return rt.chainID
}

// Register adds a program to the registry. Registering over an existing id
// replaces it.
func (rt *Runtime) Register(p Program) {
	rt.programs[p.ID()] = p
}

// Lookup reports whether a program id is registered.
func (rt *Runtime) Lookup(id types.Pubkey) bool {
	_, ok := rt.programs[id]
	return ok
}

// SetClock overrides the transaction timestamp source.
func (rt *Runtime) SetClock(clock func() uint64) {
	rt.clock = clock
}

// OnEvent installs a sink invoked for every event of every committed
// transaction, in emission order. Sinks accumulate; each one sees the
// full feed.
func (rt *Runtime) OnEvent(sink func(Event)) {
	rt.sinks = append(rt.sinks, sink)
}

// Airdrop credits lamports outside any transaction. Genesis and test
// tooling use it; programs cannot.
func (rt *Runtime) Airdrop(pk types.Pubkey, lamports uint64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	tx := newTx(rt, nil)
	if err := tx.credit(pk, lamports); err != nil {
		return err
	}
	return tx.commit()
}

// Account reads one account outside any transaction, or ErrAccountNotFound.
func (rt *Runtime) Account(pk types.Pubkey) (*Account, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	raw, err := rt.store.Get(accountKey(pk))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(ErrAccountNotFound, "%s", pk)
		}
		return nil, err
	}
	return decodeAccount(raw)
}

// Lamports reads a balance outside any transaction; missing accounts read
// as zero.
func (rt *Runtime) Lamports(pk types.Pubkey) (uint64, error) {
	acct, err := rt.Account(pk)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Lamports, nil
}

// Execute runs one top-level instruction signed by the given keys. On
// success the staged state is committed and events are delivered; on error
// nothing is retained.
func (rt *Runtime) Execute(ctx context.Context, ix Instruction, signers ...types.Pubkey) (*Result, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	program, ok := rt.programs[ix.ProgramID]
	if !ok {
		return nil, errors.Wrapf(ErrProgramNotFound, "%s", ix.ProgramID)
	}

	tx := newTx(rt, signers)
	if err := tx.run(program, ix); err != nil {
		rt.logger.Debug().
			Err(err).
			Str("program", ix.ProgramID.Base58()).
			Msg("transaction aborted")
		return nil, err
	}
	if err := tx.commit(); err != nil {
		return nil, err
	}

	for _, sink := range rt.sinks {
		for _, ev := range tx.events {
			sink(ev)
		}
	}
	return &Result{Events: tx.events, ReturnData: tx.returnData}, nil
}

// Simulate runs one top-level instruction without committing. Simulation
// endpoints (account-meta discovery, ISM queries) use it to read return data.
func (rt *Runtime) Simulate(ctx context.Context, ix Instruction, signers ...types.Pubkey) (*Result, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	program, ok := rt.programs[ix.ProgramID]
	if !ok {
		return nil, errors.Wrapf(ErrProgramNotFound, "%s", ix.ProgramID)
	}

	tx := newTx(rt, signers)
	if err := tx.run(program, ix); err != nil {
		return nil, err
	}
	return &Result{Events: tx.events, ReturnData: tx.returnData}, nil
}
