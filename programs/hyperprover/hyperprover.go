// Package hyperprover implements the cross-chain prover backend. On the
// destination chain its prove dispatches an attestation through the
// interchain mailbox; on the source chain the mailbox's inbound processor
// invokes handle, which verifies the remote sender against the config
// whitelist and writes the proof account.
package hyperprover

import (
	"github.com/pkg/errors"

	"github.com/intentnet/portal/programs/mailbox"
	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/programs/prover"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// ProgramID is the hyper prover's address. It carries the reserved prover
// prefix.
var ProgramID = prover.ProgramID("hyper")

// Instruction discriminators beyond the shared prover set. Handle and the
// handle account-meta query arrive under the mailbox-defined
// discriminators.
const (
	IxInit            byte = 3
	IxIsm             byte = 6
	IxIsmAccountMetas byte = 7
)

// PDA seed literals.
const (
	ConfigSeed     = "config"
	PdaPayerSeed   = "pda_payer"
	DispatcherSeed = "dispatcher"
)

var (
	// ErrInvalidChainID indicates a chain with no configured messenger
	// domain, or an inbound domain with no configured chain.
	ErrInvalidChainID = errors.New("InvalidChainId: no domain route for chain")

	// ErrInvalidMailbox indicates a config that names a different messenger
	// than the one deployed.
	ErrInvalidMailbox = errors.New("InvalidMailbox: messenger address mismatch")

	// ErrInvalidProcessAuthority indicates a handle call not signed by the
	// mailbox's per-recipient process authority.
	ErrInvalidProcessAuthority = errors.New("InvalidProcessAuthority: handle not signed by mailbox process authority")

	// ErrInvalidSender indicates an inbound message from a sender outside
	// the config whitelist.
	ErrInvalidSender = errors.New("InvalidSender: remote sender not whitelisted")

	// ErrInvalidData indicates prove or handle payload bytes of the wrong
	// shape.
	ErrInvalidData = errors.New("InvalidData: malformed attestation payload")

	// ErrInvalidPdaPayer indicates a rent recipient other than the
	// prover's pda payer.
	ErrInvalidPdaPayer = errors.New("InvalidPdaPayer: rent recipient is not the pda payer")
)

// ConfigAddress derives the singleton config account.
func ConfigAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, ProgramID)
	return pda, err
}

// PdaPayerAddress derives the singleton rent payer.
func PdaPayerAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress([][]byte{[]byte(PdaPayerSeed)}, ProgramID)
	return pda, err
}

// DispatcherAddress derives the authority that signs outbound mailbox
// dispatches.
func DispatcherAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress([][]byte{[]byte(DispatcherSeed)}, ProgramID)
	return pda, err
}

// Program is the hyper prover state-transition module.
type Program struct{}

// New returns the hyper prover program.
func New() *Program {
	return &Program{}
}

// ID returns the prover's address.
func (p *Program) ID() types.Pubkey { return ProgramID }

// Execute dispatches one instruction.
func (p *Program) Execute(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Data) == 0 {
		return prover.ErrMalformedInstruction
	}
	switch ix.Data[0] {
	case prover.IxProve:
		return p.prove(tx, ix)
	case prover.IxCloseProof:
		return p.closeProof(tx, ix)
	case IxInit:
		return p.init(tx, ix)
	case mailbox.IxHandle:
		return p.handle(tx, ix)
	case mailbox.IxHandleAccountMetas:
		return p.handleAccountMetas(tx)
	case IxIsm:
		return p.ism(tx)
	case IxIsmAccountMetas:
		return p.ismAccountMetas(tx)
	default:
		return prover.ErrMalformedInstruction
	}
}

// init creates the config. One shot; the config is immutable thereafter.
//
// Accounts: [payer (signer, writable)]. Data: [disc, config body].
func (p *Program) init(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Accounts) < 1 {
		return prover.ErrMalformedInstruction
	}
	cfg, err := DecodeConfig(ix.Data[1:])
	if err != nil {
		return err
	}
	if cfg.Mailbox != mailbox.ProgramID {
		return errors.Wrapf(ErrInvalidMailbox, "%s", cfg.Mailbox)
	}
	configPk, err := ConfigAddress()
	if err != nil {
		return err
	}
	return tx.CreateAccount(configPk, ProgramID, cfg.Encode(), ix.Accounts[0].Pubkey)
}

func (p *Program) loadConfig(tx *runtime.Tx) (*Config, error) {
	configPk, err := ConfigAddress()
	if err != nil {
		return nil, err
	}
	acct, err := tx.Account(configPk)
	if err != nil {
		if errors.Is(err, runtime.ErrAccountNotFound) {
			return nil, errors.Wrap(ErrInvalidConfig, "not initialized")
		}
		return nil, err
	}
	return DecodeConfig(acct.Data)
}

// prove dispatches the attestation to the source chain through the
// mailbox. The opaque data is the 32-byte source-chain recipient (this
// prover's deployment there); the body is claimant ‖ intent hash.
//
// Accounts: [portal dispatcher (signer)].
func (p *Program) prove(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := prover.DecodeProveArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 1 {
		return prover.ErrMalformedInstruction
	}
	dispatcher := ix.Accounts[0].Pubkey
	portalDispatcher, err := portal.DispatcherAddress()
	if err != nil {
		return err
	}
	if dispatcher != portalDispatcher || !tx.IsSigner(dispatcher) {
		return errors.Wrapf(prover.ErrInvalidPortalDispatcher, "%s", dispatcher)
	}
	if len(args.Data) != 32 {
		return errors.Wrapf(ErrInvalidData, "recipient length %d", len(args.Data))
	}
	var recipient types.Pubkey
	copy(recipient[:], args.Data)

	cfg, err := p.loadConfig(tx)
	if err != nil {
		return err
	}
	if cfg.Mailbox != mailbox.ProgramID {
		return errors.Wrapf(ErrInvalidMailbox, "%s", cfg.Mailbox)
	}
	domain, ok := cfg.DomainForChain(args.SourceChain)
	if !ok {
		return errors.Wrapf(ErrInvalidChainID, "chain %d", args.SourceChain)
	}

	body := make([]byte, 0, 64)
	body = append(body, args.Claimant[:]...)
	body = append(body, args.IntentHash[:]...)

	ownDispatcher, err := DispatcherAddress()
	if err != nil {
		return err
	}
	outboxPk, err := mailbox.OutboxAddress()
	if err != nil {
		return err
	}
	dispatch := mailbox.NewDispatchInstruction(ownDispatcher, outboxPk, domain, recipient, body)
	return tx.Invoke(dispatch, [][]byte{[]byte(DispatcherSeed)})
}

// handle is the inbound side: invoked by the mailbox's processor with the
// per-recipient process authority signing. It verifies the remote sender
// and writes the proof, rent funded by the pda payer.
//
// Accounts: [process authority (signer), config, pda payer (writable)].
func (p *Program) handle(tx *runtime.Tx, ix runtime.Instruction) error {
	payload, err := mailbox.DecodeHandleInstruction(ix.Data)
	if err != nil {
		return errors.Wrap(ErrInvalidData, err.Error())
	}
	if len(ix.Accounts) < 1 {
		return prover.ErrMalformedInstruction
	}
	authority := ix.Accounts[0].Pubkey
	expectedAuthority, err := mailbox.ProcessAuthorityAddress(ProgramID)
	if err != nil {
		return err
	}
	if authority != expectedAuthority || !tx.IsSigner(authority) {
		return errors.Wrapf(ErrInvalidProcessAuthority, "%s", authority)
	}

	cfg, err := p.loadConfig(tx)
	if err != nil {
		return err
	}
	if !cfg.SenderWhitelisted(payload.Sender) {
		return errors.Wrapf(ErrInvalidSender, "%s", payload.Sender)
	}
	if len(payload.Body) != 64 {
		return errors.Wrapf(ErrInvalidData, "body length %d", len(payload.Body))
	}
	var claimant types.Pubkey
	var intentHash types.Hash
	copy(claimant[:], payload.Body[:32])
	copy(intentHash[:], payload.Body[32:64])

	destChain, ok := cfg.ChainForDomain(payload.OriginDomain)
	if !ok {
		return errors.Wrapf(ErrInvalidChainID, "domain %d", payload.OriginDomain)
	}

	pdaPayer, err := PdaPayerAddress()
	if err != nil {
		return err
	}
	if _, err := tx.SignPDA([][]byte{[]byte(PdaPayerSeed)}); err != nil {
		return err
	}

	proofPk, err := prover.ProofAddress(ProgramID, intentHash)
	if err != nil {
		return err
	}
	body := prover.Proof{DestinationChain: destChain, Claimant: claimant}
	if err := tx.CreateAccount(proofPk, ProgramID, body.Encode(), pdaPayer); err != nil {
		if errors.Is(err, runtime.ErrAccountExists) {
			return errors.Wrapf(prover.ErrIntentAlreadyProven, "%s", intentHash)
		}
		return err
	}

	tx.Emit(portal.IntentFulfilled{IntentHash: intentHash, Claimant: claimant})
	return nil
}

// closeProof parallels the local prover's, but rent always returns to the
// pda payer so the cross-chain case is lamport-neutral over the proof's
// lifetime.
//
// Accounts: [proof closer (signer), proof (writable), rent recipient
// (writable)].
func (p *Program) closeProof(tx *runtime.Tx, ix runtime.Instruction) error {
	args, err := prover.DecodeCloseProofArgs(ix.Data)
	if err != nil {
		return err
	}
	if len(ix.Accounts) < 3 {
		return prover.ErrMalformedInstruction
	}
	closer := ix.Accounts[0].Pubkey
	proofPk := ix.Accounts[1].Pubkey
	rentRecipient := ix.Accounts[2].Pubkey

	portalCloser, err := portal.ProofCloserAddress()
	if err != nil {
		return err
	}
	if closer != portalCloser || !tx.IsSigner(closer) {
		return errors.Wrapf(prover.ErrInvalidPortalProofCloser, "%s", closer)
	}
	expected, err := prover.ProofAddress(ProgramID, args.IntentHash)
	if err != nil {
		return err
	}
	if proofPk != expected {
		return errors.Wrapf(prover.ErrInvalidProofAccount, "%s", proofPk)
	}
	pdaPayer, err := PdaPayerAddress()
	if err != nil {
		return err
	}
	if rentRecipient != pdaPayer {
		return errors.Wrapf(ErrInvalidPdaPayer, "%s", rentRecipient)
	}
	return tx.CloseAccount(proofPk, rentRecipient)
}

// handleAccountMetas is a simulation-only endpoint: it returns the accounts
// the mailbox must append after the process authority when invoking handle.
func (p *Program) handleAccountMetas(tx *runtime.Tx) error {
	configPk, err := ConfigAddress()
	if err != nil {
		return err
	}
	pdaPayer, err := PdaPayerAddress()
	if err != nil {
		return err
	}
	tx.SetReturnData(mailbox.EncodeAccountMetas([]runtime.AccountMeta{
		runtime.Meta(configPk),
		runtime.WritableMeta(pdaPayer),
	}))
	return nil
}

// ism reports the interchain security module in force. None is configured;
// a zero id selects the messenger's default.
func (p *Program) ism(tx *runtime.Tx) error {
	var none types.Pubkey
	tx.SetReturnData(none[:])
	return nil
}

// ismAccountMetas reports the accounts an ISM verify needs: none.
func (p *Program) ismAccountMetas(tx *runtime.Tx) error {
	tx.SetReturnData(mailbox.EncodeAccountMetas(nil))
	return nil
}

// NewInitInstruction builds a hyper prover init instruction.
func NewInitInstruction(payer types.Pubkey, cfg *Config) runtime.Instruction {
	data := append([]byte{IxInit}, cfg.Encode()...)
	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts:  []runtime.AccountMeta{runtime.SignerMeta(payer)},
		Data:      data,
	}
}
