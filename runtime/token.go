package runtime

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/intentnet/portal/types"
)

// Built-in token programs. Two ids (classic and the 2022 successor) share one
// implementation; route and reward legs declare which one governs a mint.

// Token instruction discriminators.
const (
	tokenIxInitializeMint byte = 1
	tokenIxTransfer       byte = 2
	tokenIxMintTo         byte = 3
	tokenIxCloseAccount   byte = 4

	ataIxCreate byte = 1
)

var (
	// ErrInvalidTokenAccount indicates data that does not decode as a token
	// account, or an account owned by the wrong token program.
	ErrInvalidTokenAccount = errors.New("invalid token account")

	// ErrMintMismatch indicates a transfer between accounts of different
	// mints.
	ErrMintMismatch = errors.New("token account mint mismatch")

	// ErrInvalidTokenAuthority indicates a token mutation not signed by the
	// account's owner (or the mint's authority for mint_to).
	ErrInvalidTokenAuthority = errors.New("invalid token authority")

	// ErrInsufficientTokenBalance indicates a transfer past the source
	// balance.
	ErrInsufficientTokenBalance = errors.New("insufficient token balance")

	// ErrNonEmptyTokenAccount indicates a close of an account still holding
	// tokens.
	ErrNonEmptyTokenAccount = errors.New("token account not empty")

	// ErrInvalidAta indicates an associated token address that does not
	// match its derivation.
	ErrInvalidAta = errors.New("invalid associated token address")

	errMalformedTokenIx = errors.New("malformed token instruction")
)

// TokenAccount is the decoded form of a token account's data body.
type TokenAccount struct {
	Mint   types.Pubkey
	Owner  types.Pubkey
	Amount uint64
}

// Mint is the decoded form of a mint account's data body.
type Mint struct {
	Authority types.Pubkey
	Decimals  uint8
}

func (a *TokenAccount) encode() []byte {
	out := make([]byte, 0, 72)
	out = append(out, a.Mint[:]...)
	out = append(out, a.Owner[:]...)
	return binary.LittleEndian.AppendUint64(out, a.Amount)
}

// DecodeTokenAccount parses a token account data body.
func DecodeTokenAccount(b []byte) (*TokenAccount, error) {
	if len(b) != 72 {
		return nil, ErrInvalidTokenAccount
	}
	out := &TokenAccount{}
	copy(out.Mint[:], b[:32])
	copy(out.Owner[:], b[32:64])
	out.Amount = binary.LittleEndian.Uint64(b[64:72])
	return out, nil
}

func (m *Mint) encode() []byte {
	out := make([]byte, 0, 33)
	out = append(out, m.Authority[:]...)
	return append(out, m.Decimals)
}

// DecodeMint parses a mint account data body.
func DecodeMint(b []byte) (*Mint, error) {
	if len(b) != 33 {
		return nil, ErrInvalidTokenAccount
	}
	out := &Mint{Decimals: b[32]}
	copy(out.Authority[:], b[:32])
	return out, nil
}

// IsTokenProgram reports whether id is one of the built-in token programs.
func IsTokenProgram(id types.Pubkey) bool {
	return id == TokenProgramID || id == Token2022ProgramID
}

// DeriveATA returns the associated token address for (owner, tokenProgram,
// mint).
func DeriveATA(owner, tokenProgram, mint types.Pubkey) (types.Pubkey, error) {
	ata, _, err := FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		AssociatedTokenProgramID,
	)
	return ata, err
}

// tokenAccountAt loads and decodes a token account owned by the executing
// token program.
func tokenAccountAt(tx *Tx, pk types.Pubkey) (*TokenAccount, error) {
	acct, err := tx.Account(pk)
	if err != nil {
		return nil, err
	}
	if acct.Owner != tx.CurrentProgram() {
		return nil, errors.Wrapf(ErrInvalidTokenAccount, "%s", pk)
	}
	return DecodeTokenAccount(acct.Data)
}

type tokenProgram struct {
	id types.Pubkey
}

func (p tokenProgram) ID() types.Pubkey { return p.id }

func (p tokenProgram) Execute(tx *Tx, ix Instruction) error {
	if len(ix.Data) == 0 {
		return errMalformedTokenIx
	}
	switch ix.Data[0] {
	case tokenIxInitializeMint:
		return p.initializeMint(tx, ix)
	case tokenIxTransfer:
		return p.transfer(tx, ix)
	case tokenIxMintTo:
		return p.mintTo(tx, ix)
	case tokenIxCloseAccount:
		return p.closeAccount(tx, ix)
	default:
		return errMalformedTokenIx
	}
}

// initializeMint: accounts [mint, payer]; data [disc, decimals, authority].
func (p tokenProgram) initializeMint(tx *Tx, ix Instruction) error {
	if len(ix.Accounts) != 2 || len(ix.Data) != 34 {
		return errMalformedTokenIx
	}
	mint := Mint{Decimals: ix.Data[1]}
	copy(mint.Authority[:], ix.Data[2:34])
	return tx.CreateAccount(ix.Accounts[0].Pubkey, p.id, mint.encode(), ix.Accounts[1].Pubkey)
}

// transfer: accounts [source, destination, authority]; data [disc, amount].
func (p tokenProgram) transfer(tx *Tx, ix Instruction) error {
	if len(ix.Accounts) != 3 || len(ix.Data) != 9 {
		return errMalformedTokenIx
	}
	amount := binary.LittleEndian.Uint64(ix.Data[1:9])
	sourcePk, destPk, authority := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, ix.Accounts[2].Pubkey

	source, err := tokenAccountAt(tx, sourcePk)
	if err != nil {
		return err
	}
	dest, err := tokenAccountAt(tx, destPk)
	if err != nil {
		return err
	}
	if source.Mint != dest.Mint {
		return ErrMintMismatch
	}
	if source.Owner != authority || !tx.IsSigner(authority) {
		return errors.Wrapf(ErrInvalidTokenAuthority, "%s", authority)
	}
	if source.Amount < amount {
		return errors.Wrapf(ErrInsufficientTokenBalance, "%s has %d, need %d", sourcePk, source.Amount, amount)
	}

	source.Amount -= amount
	dest.Amount += amount
	if err := tx.SetData(sourcePk, source.encode()); err != nil {
		return err
	}
	return tx.SetData(destPk, dest.encode())
}

// mintTo: accounts [mint, destination, authority]; data [disc, amount].
func (p tokenProgram) mintTo(tx *Tx, ix Instruction) error {
	if len(ix.Accounts) != 3 || len(ix.Data) != 9 {
		return errMalformedTokenIx
	}
	amount := binary.LittleEndian.Uint64(ix.Data[1:9])
	mintPk, destPk, authority := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, ix.Accounts[2].Pubkey

	mintAcct, err := tx.Account(mintPk)
	if err != nil {
		return err
	}
	mint, err := DecodeMint(mintAcct.Data)
	if err != nil {
		return err
	}
	if mint.Authority != authority || !tx.IsSigner(authority) {
		return errors.Wrapf(ErrInvalidTokenAuthority, "%s", authority)
	}

	dest, err := tokenAccountAt(tx, destPk)
	if err != nil {
		return err
	}
	if dest.Mint != mintPk {
		return ErrMintMismatch
	}
	dest.Amount += amount
	return tx.SetData(destPk, dest.encode())
}

// closeAccount: accounts [account, rent destination, authority].
func (p tokenProgram) closeAccount(tx *Tx, ix Instruction) error {
	if len(ix.Accounts) != 3 {
		return errMalformedTokenIx
	}
	accountPk, destPk, authority := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, ix.Accounts[2].Pubkey

	account, err := tokenAccountAt(tx, accountPk)
	if err != nil {
		return err
	}
	if account.Owner != authority || !tx.IsSigner(authority) {
		return errors.Wrapf(ErrInvalidTokenAuthority, "%s", authority)
	}
	if account.Amount != 0 {
		return ErrNonEmptyTokenAccount
	}
	return tx.CloseAccount(accountPk, destPk)
}

type ataProgram struct{}

func (ataProgram) ID() types.Pubkey { return AssociatedTokenProgramID }

// Execute handles the single create instruction: accounts [payer, ata,
// owner, mint, token program]. Creation is idempotent.
func (ataProgram) Execute(tx *Tx, ix Instruction) error {
	if len(ix.Data) != 1 || ix.Data[0] != ataIxCreate || len(ix.Accounts) != 5 {
		return errMalformedTokenIx
	}
	payer := ix.Accounts[0].Pubkey
	ataPk := ix.Accounts[1].Pubkey
	owner := ix.Accounts[2].Pubkey
	mint := ix.Accounts[3].Pubkey
	tokenProgramID := ix.Accounts[4].Pubkey

	if !IsTokenProgram(tokenProgramID) {
		return errors.Wrapf(ErrInvalidTokenAccount, "unknown token program %s", tokenProgramID)
	}
	expected, err := DeriveATA(owner, tokenProgramID, mint)
	if err != nil {
		return err
	}
	if ataPk != expected {
		return errors.Wrapf(ErrInvalidAta, "%s", ataPk)
	}

	exists, err := tx.Exists(ataPk)
	if err != nil {
		return err
	}
	if exists {
		existing, err := tx.Account(ataPk)
		if err != nil {
			return err
		}
		if existing.Owner != tokenProgramID {
			return errors.Wrapf(ErrInvalidTokenAccount, "%s", ataPk)
		}
		decoded, err := DecodeTokenAccount(existing.Data)
		if err != nil {
			return err
		}
		if decoded.Mint != mint || decoded.Owner != owner {
			return errors.Wrapf(ErrInvalidTokenAccount, "%s", ataPk)
		}
		return nil
	}

	body := TokenAccount{Mint: mint, Owner: owner}
	return tx.CreateAccount(ataPk, tokenProgramID, body.encode(), payer)
}

// NewInitializeMintInstruction builds a token initialize_mint instruction.
func NewInitializeMintInstruction(tokenProgram, mint, payer, authority types.Pubkey, decimals uint8) Instruction {
	data := make([]byte, 0, 34)
	data = append(data, tokenIxInitializeMint, decimals)
	data = append(data, authority[:]...)
	return Instruction{
		ProgramID: tokenProgram,
		Accounts:  []AccountMeta{WritableMeta(mint), SignerMeta(payer)},
		Data:      data,
	}
}

// NewTokenTransferInstruction builds a token transfer instruction.
func NewTokenTransferInstruction(tokenProgram, source, dest, authority types.Pubkey, amount uint64) Instruction {
	data := make([]byte, 0, 9)
	data = append(data, tokenIxTransfer)
	data = binary.LittleEndian.AppendUint64(data, amount)
	return Instruction{
		ProgramID: tokenProgram,
		Accounts: []AccountMeta{
			WritableMeta(source),
			WritableMeta(dest),
			{Pubkey: authority, IsSigner: true},
		},
		Data: data,
	}
}

// NewMintToInstruction builds a token mint_to instruction.
func NewMintToInstruction(tokenProgram, mint, dest, authority types.Pubkey, amount uint64) Instruction {
	data := make([]byte, 0, 9)
	data = append(data, tokenIxMintTo)
	data = binary.LittleEndian.AppendUint64(data, amount)
	return Instruction{
		ProgramID: tokenProgram,
		Accounts: []AccountMeta{
			WritableMeta(mint),
			WritableMeta(dest),
			{Pubkey: authority, IsSigner: true},
		},
		Data: data,
	}
}

// NewCloseTokenAccountInstruction builds a token close_account instruction.
func NewCloseTokenAccountInstruction(tokenProgram, account, rentDest, authority types.Pubkey) Instruction {
	return Instruction{
		ProgramID: tokenProgram,
		Accounts: []AccountMeta{
			WritableMeta(account),
			WritableMeta(rentDest),
			{Pubkey: authority, IsSigner: true},
		},
		Data: []byte{tokenIxCloseAccount},
	}
}

// NewCreateATAInstruction builds an associated-token create instruction.
func NewCreateATAInstruction(payer, ata, owner, mint, tokenProgram types.Pubkey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			SignerMeta(payer),
			WritableMeta(ata),
			Meta(owner),
			Meta(mint),
			Meta(tokenProgram),
		},
		Data: []byte{ataIxCreate},
	}
}
