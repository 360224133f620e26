package runtime

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/types"
)

// maxInvokeDepth bounds cross-program invocation nesting.
const maxInvokeDepth = 4

// Tx is the staged view of one transaction. All account reads and writes go
// through the stage; nothing reaches the store unless the whole transaction
// succeeds and commits.
type Tx struct {
	rt         *Runtime
	staged     map[types.Pubkey]*Account // nil entry = deleted
	loaded     map[types.Pubkey]bool
	signers    map[types.Pubkey]struct{}
	stack      []types.Pubkey
	events     []Event
	returnData []byte
	now        uint64
}

func newTx(rt *Runtime, signers []types.Pubkey) *Tx {
	tx := &Tx{
		rt:      rt,
		staged:  make(map[types.Pubkey]*Account),
		loaded:  make(map[types.Pubkey]bool),
		signers: make(map[types.Pubkey]struct{}, len(signers)),
		now:     rt.clock(),
	}
	for _, s := range signers {
		tx.signers[s] = struct{}{}
	}
	return tx
}

// ChainID returns the id of the chain this runtime represents.
func (tx *Tx) ChainID() uint64 {
	return tx.rt.chainID
}

// Now returns the transaction's timestamp in unix seconds. It is fixed for
// the lifetime of the transaction.
func (tx *Tx) Now() uint64 {
	return tx.now
}

// IsSigner reports whether the transaction carries a signature (external or
// PDA-derived) for the address.
func (tx *Tx) IsSigner(pk types.Pubkey) bool {
	_, ok := tx.signers[pk]
	return ok
}

// CurrentProgram returns the id of the executing program.
func (tx *Tx) CurrentProgram() types.Pubkey {
	if len(tx.stack) == 0 {
		return types.Pubkey{}
	}
	return tx.stack[len(tx.stack)-1]
}

// Emit records an event. Events are delivered only on commit.
func (tx *Tx) Emit(ev Event) {
	tx.events = append(tx.events, ev)
}

// SetReturnData records data returned to the top-level caller. Simulation
// endpoints such as handle_account_metas use it.
func (tx *Tx) SetReturnData(b []byte) {
	tx.returnData = append([]byte(nil), b...)
}

// load pulls an account into the stage, returning the staged pointer. A nil
// pointer with a nil error means the address has no ledger entry.
func (tx *Tx) load(pk types.Pubkey) (*Account, error) {
	if tx.loaded[pk] {
		return tx.staged[pk], nil
	}
	raw, err := tx.rt.store.Get(accountKey(pk))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			tx.loaded[pk] = true
			tx.staged[pk] = nil
			return nil, nil
		}
		return nil, err
	}
	acct, err := decodeAccount(raw)
	if err != nil {
		return nil, err
	}
	tx.loaded[pk] = true
	tx.staged[pk] = acct
	return acct, nil
}

// Exists reports whether the address has a ledger entry.
func (tx *Tx) Exists(pk types.Pubkey) (bool, error) {
	acct, err := tx.load(pk)
	return acct != nil, err
}

// Account returns a copy of the account at pk, or ErrAccountNotFound.
func (tx *Tx) Account(pk types.Pubkey) (*Account, error) {
	acct, err := tx.load(pk)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", pk)
	}
	return cloneAccount(acct), nil
}

// Lamports returns the balance at pk; missing accounts read as zero.
func (tx *Tx) Lamports(pk types.Pubkey) (uint64, error) {
	acct, err := tx.load(pk)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, nil
	}
	return acct.Lamports, nil
}

// CreateAccount initializes a new account owned by owner, funding its rent
// from payer. The init is the at-most-once guard: an existing entry at pk
// fails with ErrAccountExists.
func (tx *Tx) CreateAccount(pk, owner types.Pubkey, data []byte, payer types.Pubkey) error {
	existing, err := tx.load(pk)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Wrapf(ErrAccountExists, "%s", pk)
	}

	rent := RentExemptLamports(len(data))
	if err := tx.debit(payer, rent); err != nil {
		return err
	}

	tx.loaded[pk] = true
	tx.staged[pk] = &Account{
		Owner:    owner,
		Lamports: rent,
		Data:     append([]byte(nil), data...),
	}
	return nil
}

// SetData rewrites the data body of an account owned by the executing
// program.
func (tx *Tx) SetData(pk types.Pubkey, data []byte) error {
	acct, err := tx.load(pk)
	if err != nil {
		return err
	}
	if acct == nil {
		return errors.Wrapf(ErrAccountNotFound, "%s", pk)
	}
	if acct.Owner != tx.CurrentProgram() {
		return errors.Wrapf(ErrNotOwner, "%s", pk)
	}
	acct.Data = append([]byte(nil), data...)
	return nil
}

// CloseAccount deletes an account owned by the executing program, refunding
// its full balance to refundTo.
func (tx *Tx) CloseAccount(pk, refundTo types.Pubkey) error {
	acct, err := tx.load(pk)
	if err != nil {
		return err
	}
	if acct == nil {
		return errors.Wrapf(ErrAccountNotFound, "%s", pk)
	}
	if acct.Owner != tx.CurrentProgram() {
		return errors.Wrapf(ErrNotOwner, "%s", pk)
	}
	if err := tx.credit(refundTo, acct.Lamports); err != nil {
		return err
	}
	tx.staged[pk] = nil
	return nil
}

// Transfer moves lamports. The debit side must either carry a signature
// (external or PDA) or be owned by the executing program.
func (tx *Tx) Transfer(from, to types.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := tx.debit(from, amount); err != nil {
		return err
	}
	return tx.credit(to, amount)
}

func (tx *Tx) debit(from types.Pubkey, amount uint64) error {
	acct, err := tx.load(from)
	if err != nil {
		return err
	}
	if acct == nil {
		return errors.Wrapf(ErrInsufficientLamports, "%s", from)
	}
	if !tx.IsSigner(from) && acct.Owner != tx.CurrentProgram() {
		return errors.Wrapf(ErrMissingSigner, "debit %s", from)
	}
	if acct.Lamports < amount {
		return errors.Wrapf(ErrInsufficientLamports, "%s has %d, need %d", from, acct.Lamports, amount)
	}
	acct.Lamports -= amount
	return nil
}

func (tx *Tx) credit(to types.Pubkey, amount uint64) error {
	acct, err := tx.load(to)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &Account{Owner: SystemProgramID}
		tx.loaded[to] = true
		tx.staged[to] = acct
	}
	acct.Lamports += amount
	return nil
}

// SignPDA derives a program address from the executing program and the seed
// set, and marks it as a signer for the remainder of the transaction.
func (tx *Tx) SignPDA(seeds [][]byte) (types.Pubkey, error) {
	pda, _, err := FindProgramAddress(seeds, tx.CurrentProgram())
	if err != nil {
		return types.Pubkey{}, err
	}
	tx.signers[pda] = struct{}{}
	return pda, nil
}

// Invoke executes an inner instruction. Each seed set derives a PDA of the
// calling program which signs the inner instruction; PDA signatures are
// scoped to the inner call.
func (tx *Tx) Invoke(ix Instruction, seedSets ...[][]byte) error {
	if len(tx.stack) >= maxInvokeDepth {
		return ErrInvokeDepth
	}

	program, ok := tx.rt.programs[ix.ProgramID]
	if !ok {
		return errors.Wrapf(ErrProgramNotFound, "%s", ix.ProgramID)
	}

	caller := tx.CurrentProgram()
	var derived []types.Pubkey
	for _, seeds := range seedSets {
		pda, _, err := FindProgramAddress(seeds, caller)
		if err != nil {
			return err
		}
		if _, already := tx.signers[pda]; !already {
			tx.signers[pda] = struct{}{}
			derived = append(derived, pda)
		}
	}

	err := tx.run(program, ix)

	for _, pda := range derived {
		delete(tx.signers, pda)
	}
	return err
}

func (tx *Tx) run(program Program, ix Instruction) error {
	for _, meta := range ix.Accounts {
		if meta.IsSigner && !tx.IsSigner(meta.Pubkey) {
			return errors.Wrapf(ErrMissingSigner, "%s", meta.Pubkey)
		}
	}

	tx.stack = append(tx.stack, ix.ProgramID)
	err := program.Execute(tx, ix)
	tx.stack = tx.stack[:len(tx.stack)-1]
	return err
}

func (tx *Tx) commit() error {
	batch := tx.rt.store.NewBatch()
	for pk, acct := range tx.staged {
		if !tx.loaded[pk] {
			continue
		}
		if acct == nil {
			if err := batch.Delete(accountKey(pk)); err != nil {
				batch.Discard()
				return err
			}
			continue
		}
		if err := batch.Set(accountKey(pk), encodeAccount(acct)); err != nil {
			batch.Discard()
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
