package runtime

import "github.com/pkg/errors"

var (
	// ErrAccountExists indicates an init of an address that is already in
	// use. Marker-account guards rely on this being atomic with the init.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound indicates a read of an address with no ledger entry.
	ErrAccountNotFound = errors.New("account not found")

	// ErrMissingSigner indicates an instruction declared a signer account
	// whose signature the transaction does not carry.
	ErrMissingSigner = errors.New("missing signer")

	// ErrNotOwner indicates a program attempted to mutate an account it does
	// not own.
	ErrNotOwner = errors.New("program does not own account")

	// ErrInsufficientLamports indicates a debit past the account balance.
	ErrInsufficientLamports = errors.New("insufficient lamports")

	// ErrProgramNotFound indicates an invoke of an unregistered program id.
	ErrProgramNotFound = errors.New("program not found")

	// ErrInvokeDepth indicates the cross-program invoke stack limit was hit.
	ErrInvokeDepth = errors.New("max invoke depth exceeded")

	errCorruptAccount = errors.New("corrupt account record")
)
