package runtime

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentnet/portal/types"
)

func testRuntime(t *testing.T) *Runtime {
	t.Helper()
	store, err := OpenPebble(t.TempDir() + "/ledger")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return New(1399811149, store, logger)
}

func key(b byte) types.Pubkey {
	var out types.Pubkey
	for i := range out {
		out[i] = b
	}
	return out
}

// fundAccount seeds a system account with lamports directly in the store.
func fundAccount(t *testing.T, rt *Runtime, pk types.Pubkey, lamports uint64) {
	t.Helper()
	batch := rt.store.NewBatch()
	acct := &Account{Owner: SystemProgramID, Lamports: lamports}
	require.NoError(t, batch.Set(accountKey(pk), encodeAccount(acct)))
	require.NoError(t, batch.Commit())
}

func accountAt(t *testing.T, rt *Runtime, pk types.Pubkey) *Account {
	t.Helper()
	raw, err := rt.store.Get(accountKey(pk))
	require.NoError(t, err)
	acct, err := decodeAccount(raw)
	require.NoError(t, err)
	return acct
}

// testProgram lets tests drive Tx methods from inside a registered program.
type testProgram struct {
	id types.Pubkey
	fn func(tx *Tx, ix Instruction) error
}

func (p testProgram) ID() types.Pubkey                   { return p.id }
func (p testProgram) Execute(tx *Tx, ix Instruction) error { return p.fn(tx, ix) }

func TestPebbleStoreRoundTrip(t *testing.T) {
	store, err := OpenPebble(t.TempDir() + "/ledger")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	batch := store.NewBatch()
	require.NoError(t, batch.Set([]byte("k"), []byte("v")))
	require.NoError(t, batch.Commit())

	got, err := store.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestAccountCodecRoundTrip(t *testing.T) {
	in := &Account{Owner: key(0x01), Lamports: 12345, Data: []byte{1, 2, 3}}
	out, err := decodeAccount(encodeAccount(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeAccount([]byte{1, 2})
	assert.Error(t, err)
}

func TestCreateProgramAddressDeterministic(t *testing.T) {
	program := key(0x42)
	key01 := key(0x01)
	key02 := key(0x02)

	a, bumpA, err := FindProgramAddress([][]byte{[]byte("vault"), key01[:]}, program)
	require.NoError(t, err)
	b, bumpB, err := FindProgramAddress([][]byte{[]byte("vault"), key01[:]}, program)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, bumpA, bumpB)

	c, _, err := FindProgramAddress([][]byte{[]byte("vault"), key02[:]}, program)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCreateProgramAddressRejectsBadSeeds(t *testing.T) {
	program := key(0x42)

	_, err := CreateProgramAddress([][]byte{make([]byte, 33)}, program)
	assert.ErrorIs(t, err, ErrInvalidSeeds)

	seeds := make([][]byte, 17)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, err = CreateProgramAddress(seeds, program)
	assert.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestCreateAccountGuard(t *testing.T) {
	rt := testRuntime(t)
	payer := key(0x10)
	target := key(0x20)
	fundAccount(t, rt, payer, 100_000_000)

	prog := testProgram{id: key(0x77), fn: func(tx *Tx, ix Instruction) error {
		return tx.CreateAccount(target, tx.CurrentProgram(), []byte{1}, payer)
	}}
	rt.Register(prog)

	ix := Instruction{ProgramID: prog.id}
	_, err := rt.Execute(context.Background(), ix, payer)
	require.NoError(t, err)

	// The second init must fail atomically.
	_, err = rt.Execute(context.Background(), ix, payer)
	assert.ErrorIs(t, err, ErrAccountExists)

	created := accountAt(t, rt, target)
	assert.Equal(t, prog.id, created.Owner)
	assert.Equal(t, RentExemptLamports(1), created.Lamports)
}

func TestTransferRequiresSignerOrOwner(t *testing.T) {
	rt := testRuntime(t)
	from := key(0x10)
	to := key(0x20)
	fundAccount(t, rt, from, 1000)

	prog := testProgram{id: key(0x77), fn: func(tx *Tx, ix Instruction) error {
		return tx.Transfer(from, to, 400)
	}}
	rt.Register(prog)

	// Without the from signature the debit is rejected.
	_, err := rt.Execute(context.Background(), Instruction{ProgramID: prog.id})
	assert.ErrorIs(t, err, ErrMissingSigner)

	_, err = rt.Execute(context.Background(), Instruction{ProgramID: prog.id}, from)
	require.NoError(t, err)

	assert.Equal(t, uint64(600), accountAt(t, rt, from).Lamports)
	assert.Equal(t, uint64(400), accountAt(t, rt, to).Lamports)
}

func TestFailedTransactionStagesNothing(t *testing.T) {
	rt := testRuntime(t)
	from := key(0x10)
	to := key(0x20)
	fundAccount(t, rt, from, 1000)

	prog := testProgram{id: key(0x77), fn: func(tx *Tx, ix Instruction) error {
		if err := tx.Transfer(from, to, 400); err != nil {
			return err
		}
		// Fail after the credit: nothing may survive.
		return ErrInsufficientLamports
	}}
	rt.Register(prog)

	_, err := rt.Execute(context.Background(), Instruction{ProgramID: prog.id}, from)
	assert.Error(t, err)

	assert.Equal(t, uint64(1000), accountAt(t, rt, from).Lamports)
	_, err = rt.store.Get(accountKey(to))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvokePDASignerScoping(t *testing.T) {
	rt := testRuntime(t)
	caller := testProgram{id: key(0x70)}
	seeds := [][]byte{[]byte("authority")}
	pda, _, err := FindProgramAddress(seeds, caller.id)
	require.NoError(t, err)

	var sawSigner, signerAfter bool
	inner := testProgram{id: key(0x71), fn: func(tx *Tx, ix Instruction) error {
		sawSigner = tx.IsSigner(pda)
		return nil
	}}

	caller.fn = func(tx *Tx, ix Instruction) error {
		if err := tx.Invoke(Instruction{ProgramID: inner.id}, seeds); err != nil {
			return err
		}
		signerAfter = tx.IsSigner(pda)
		return nil
	}
	rt.Register(caller)
	rt.Register(inner)

	_, err = rt.Execute(context.Background(), Instruction{ProgramID: caller.id})
	require.NoError(t, err)
	assert.True(t, sawSigner, "PDA must sign the inner instruction")
	assert.False(t, signerAfter, "PDA signature must not outlive the invoke")
}

func TestInvokeUnknownProgram(t *testing.T) {
	rt := testRuntime(t)
	prog := testProgram{id: key(0x70), fn: func(tx *Tx, ix Instruction) error {
		return tx.Invoke(Instruction{ProgramID: key(0x99)})
	}}
	rt.Register(prog)

	_, err := rt.Execute(context.Background(), Instruction{ProgramID: prog.id})
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestTokenLifecycle(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()

	payer := key(0x10)
	mintAuthority := key(0x11)
	alice := key(0x12)
	bob := key(0x13)
	mint := key(0x55)
	fundAccount(t, rt, payer, 10_000_000_000)

	_, err := rt.Execute(ctx, NewInitializeMintInstruction(TokenProgramID, mint, payer, mintAuthority, 6), payer)
	require.NoError(t, err)

	aliceAta, err := DeriveATA(alice, TokenProgramID, mint)
	require.NoError(t, err)
	bobAta, err := DeriveATA(bob, TokenProgramID, mint)
	require.NoError(t, err)

	_, err = rt.Execute(ctx, NewCreateATAInstruction(payer, aliceAta, alice, mint, TokenProgramID), payer)
	require.NoError(t, err)
	_, err = rt.Execute(ctx, NewCreateATAInstruction(payer, bobAta, bob, mint, TokenProgramID), payer)
	require.NoError(t, err)

	// ATA creation is idempotent.
	_, err = rt.Execute(ctx, NewCreateATAInstruction(payer, aliceAta, alice, mint, TokenProgramID), payer)
	require.NoError(t, err)

	_, err = rt.Execute(ctx, NewMintToInstruction(TokenProgramID, mint, aliceAta, mintAuthority, 1000), mintAuthority)
	require.NoError(t, err)

	_, err = rt.Execute(ctx, NewTokenTransferInstruction(TokenProgramID, aliceAta, bobAta, alice, 300), alice)
	require.NoError(t, err)

	aliceAcct, err := DecodeTokenAccount(accountAt(t, rt, aliceAta).Data)
	require.NoError(t, err)
	bobAcct, err := DecodeTokenAccount(accountAt(t, rt, bobAta).Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), aliceAcct.Amount)
	assert.Equal(t, uint64(300), bobAcct.Amount)

	// Transfers need the owner's signature.
	_, err = rt.Execute(ctx, NewTokenTransferInstruction(TokenProgramID, aliceAta, bobAta, bob, 1), bob)
	assert.ErrorIs(t, err, ErrInvalidTokenAuthority)

	// Overdrafts are rejected.
	_, err = rt.Execute(ctx, NewTokenTransferInstruction(TokenProgramID, aliceAta, bobAta, alice, 10_000), alice)
	assert.ErrorIs(t, err, ErrInsufficientTokenBalance)

	// Closing a non-empty account is rejected.
	_, err = rt.Execute(ctx, NewCloseTokenAccountInstruction(TokenProgramID, bobAta, payer, bob), bob)
	assert.ErrorIs(t, err, ErrNonEmptyTokenAccount)

	_, err = rt.Execute(ctx, NewTokenTransferInstruction(TokenProgramID, bobAta, aliceAta, bob, 300), bob)
	require.NoError(t, err)
	_, err = rt.Execute(ctx, NewCloseTokenAccountInstruction(TokenProgramID, bobAta, payer, bob), bob)
	require.NoError(t, err)

	_, err = rt.store.Get(accountKey(bobAta))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEventsDeliveredOnCommitOnly(t *testing.T) {
	rt := testRuntime(t)

	var delivered int
	rt.OnEvent(func(ev Event) { delivered++ })

	ok := testProgram{id: key(0x70), fn: func(tx *Tx, ix Instruction) error {
		tx.Emit(testEvent{})
		return nil
	}}
	fail := testProgram{id: key(0x71), fn: func(tx *Tx, ix Instruction) error {
		tx.Emit(testEvent{})
		return ErrAccountExists
	}}
	rt.Register(ok)
	rt.Register(fail)

	res, err := rt.Execute(context.Background(), Instruction{ProgramID: ok.id})
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, 1, delivered)

	_, err = rt.Execute(context.Background(), Instruction{ProgramID: fail.id})
	assert.Error(t, err)
	assert.Equal(t, 1, delivered)
}

type testEvent struct{}

func (testEvent) EventName() string { return "Test" }
