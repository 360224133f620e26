// Package mailbox implements the interchain messenger the cross-chain
// prover dispatches through. It is deliberately minimal: dispatch emits an
// outbound message with a nonce, process delivers an inbound message to its
// recipient program under a per-recipient process authority. An external
// relayer bridges the two.
package mailbox

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// ProgramID is the mailbox's address.
var ProgramID = func() types.Pubkey {
	sum := sha256.Sum256([]byte("mailbox-program/v1"))
	return types.Pubkey(sum)
}()

// Instruction discriminators. IxHandle is the discriminator the mailbox
// uses when invoking a recipient's handle entry point; recipients dispatch
// on it.
const (
	IxInit     byte = 1
	IxDispatch byte = 2
	IxProcess  byte = 3

	IxHandle             byte = 0xF0
	IxHandleAccountMetas byte = 0xF1
)

// PDA seed literals.
const (
	OutboxSeed           = "outbox"
	ProcessedSeed        = "processed"
	ProcessAuthoritySeed = "process_authority"
)

var (
	// ErrMalformedMessage indicates mailbox instruction data that does not
	// decode.
	ErrMalformedMessage = errors.New("malformed mailbox message")

	// ErrNotInitialized indicates a dispatch before init created the
	// outbox.
	ErrNotInitialized = errors.New("mailbox not initialized")

	// ErrAlreadyDelivered indicates a message processed twice.
	ErrAlreadyDelivered = errors.New("message already delivered")

	// ErrInvalidOutbox indicates an outbox account that does not match its
	// derivation.
	ErrInvalidOutbox = errors.New("invalid outbox account")

	errCorruptOutbox = errors.New("corrupt outbox account")
)

// Message is one interchain payload in flight.
type Message struct {
	Nonce             uint64
	OriginDomain      uint32
	Sender            types.Pubkey
	DestinationDomain uint32
	Recipient         types.Pubkey
	Body              []byte
}

// ID returns the message's unique digest.
func (m *Message) ID() types.Hash {
	buf := make([]byte, 0, 8+4+32+4+32+len(m.Body))
	buf = binary.LittleEndian.AppendUint64(buf, m.Nonce)
	buf = binary.LittleEndian.AppendUint32(buf, m.OriginDomain)
	buf = append(buf, m.Sender[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, m.DestinationDomain)
	buf = append(buf, m.Recipient[:]...)
	buf = append(buf, m.Body...)
	return types.Hash(crypto.Keccak256Hash(buf))
}

// DispatchEvent is emitted for every outbound message; relayers consume it.
type DispatchEvent struct {
	Message Message
}

func (DispatchEvent) EventName() string { return "MailboxDispatch" }

// OutboxAddress derives the singleton outbox account.
func OutboxAddress() (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress([][]byte{[]byte(OutboxSeed)}, ProgramID)
	return pda, err
}

// ProcessAuthorityAddress derives the per-recipient authority that signs
// inbound handle calls.
func ProcessAuthorityAddress(recipient types.Pubkey) (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(ProcessAuthoritySeed), recipient[:]}, ProgramID)
	return pda, err
}

// ProcessedAddress derives the replay marker for a delivered message.
func ProcessedAddress(id types.Hash) (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(ProcessedSeed), id[:]}, ProgramID)
	return pda, err
}

// outbox is the singleton account body: the local domain and the dispatch
// nonce.
type outbox struct {
	LocalDomain uint32
	Nonce       uint64
}

func (o *outbox) encode() []byte {
	out := make([]byte, 0, 12)
	out = binary.LittleEndian.AppendUint32(out, o.LocalDomain)
	return binary.LittleEndian.AppendUint64(out, o.Nonce)
}

func decodeOutbox(b []byte) (*outbox, error) {
	if len(b) != 12 {
		return nil, errCorruptOutbox
	}
	return &outbox{
		LocalDomain: binary.LittleEndian.Uint32(b[:4]),
		Nonce:       binary.LittleEndian.Uint64(b[4:12]),
	}, nil
}

// HandlePayload is the decoded body of a handle invocation.
type HandlePayload struct {
	OriginDomain uint32
	Sender       types.Pubkey
	Body         []byte
}

// EncodeHandleInstruction builds the instruction data a recipient's handle
// entry point receives.
func EncodeHandleInstruction(origin uint32, sender types.Pubkey, body []byte) []byte {
	out := make([]byte, 0, 1+4+32+4+len(body))
	out = append(out, IxHandle)
	out = binary.LittleEndian.AppendUint32(out, origin)
	out = append(out, sender[:]...)
	return types.AppendBytes(out, body)
}

// DecodeHandleInstruction parses handle instruction data, discriminator
// included.
func DecodeHandleInstruction(data []byte) (*HandlePayload, error) {
	if len(data) == 0 || data[0] != IxHandle {
		return nil, ErrMalformedMessage
	}
	r := types.NewWireReader(data[1:])
	out := &HandlePayload{}
	var err error
	if out.OriginDomain, err = r.ReadU32(); err != nil {
		return nil, ErrMalformedMessage
	}
	if out.Sender, err = r.ReadPubkey(); err != nil {
		return nil, ErrMalformedMessage
	}
	if out.Body, err = r.ReadBytes(); err != nil {
		return nil, ErrMalformedMessage
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedMessage
	}
	return out, nil
}

// EncodeAccountMetas serializes an account list for return data: a u32-LE
// count and fixed 34-byte entries. Recipients answer account-meta discovery
// queries with it.
func EncodeAccountMetas(metas []runtime.AccountMeta) []byte {
	out := make([]byte, 0, 4+34*len(metas))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(metas)))
	for _, m := range metas {
		out = append(out, m.Pubkey[:]...)
		out = append(out, flagByte(m.IsSigner), flagByte(m.IsWritable))
	}
	return out
}

// DecodeAccountMetas parses a serialized account list.
func DecodeAccountMetas(b []byte) ([]runtime.AccountMeta, error) {
	if len(b) < 4 {
		return nil, ErrMalformedMessage
	}
	count := binary.LittleEndian.Uint32(b[:4])
	rest := b[4:]
	if uint64(len(rest)) != uint64(count)*34 {
		return nil, ErrMalformedMessage
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]runtime.AccountMeta, count)
	for i := range out {
		entry := rest[i*34 : (i+1)*34]
		copy(out[i].Pubkey[:], entry[:32])
		out[i].IsSigner = entry[32] != 0
		out[i].IsWritable = entry[33] != 0
	}
	return out, nil
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Program is the mailbox state-transition module.
type Program struct{}

// New returns the mailbox program.
func New() *Program {
	return &Program{}
}

// ID returns the mailbox's address.
func (p *Program) ID() types.Pubkey { return ProgramID }

// Execute dispatches one instruction.
func (p *Program) Execute(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Data) == 0 {
		return ErrMalformedMessage
	}
	switch ix.Data[0] {
	case IxInit:
		return p.init(tx, ix)
	case IxDispatch:
		return p.dispatch(tx, ix)
	case IxProcess:
		return p.process(tx, ix)
	default:
		return ErrMalformedMessage
	}
}

// init creates the outbox with the local domain.
//
// Accounts: [payer (signer, writable)]. Data: [disc, local domain u32].
func (p *Program) init(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Data) != 5 || len(ix.Accounts) < 1 {
		return ErrMalformedMessage
	}
	outboxPk, err := OutboxAddress()
	if err != nil {
		return err
	}
	box := outbox{LocalDomain: binary.LittleEndian.Uint32(ix.Data[1:5])}
	return tx.CreateAccount(outboxPk, ProgramID, box.encode(), ix.Accounts[0].Pubkey)
}

// dispatch emits an outbound message. The sender account must sign; its
// address becomes the message's sender field.
//
// Accounts: [sender (signer), outbox (writable)].
// Data: [disc, destination domain u32, recipient 32B, body bytes].
func (p *Program) dispatch(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Accounts) < 2 {
		return ErrMalformedMessage
	}
	sender := ix.Accounts[0].Pubkey
	outboxPk := ix.Accounts[1].Pubkey
	if !tx.IsSigner(sender) {
		return errors.Wrapf(runtime.ErrMissingSigner, "%s", sender)
	}
	expected, err := OutboxAddress()
	if err != nil {
		return err
	}
	if outboxPk != expected {
		return errors.Wrapf(ErrInvalidOutbox, "%s", outboxPk)
	}

	r := types.NewWireReader(ix.Data[1:])
	destination, err := r.ReadU32()
	if err != nil {
		return ErrMalformedMessage
	}
	recipient, err := r.ReadPubkey()
	if err != nil {
		return ErrMalformedMessage
	}
	body, err := r.ReadBytes()
	if err != nil {
		return ErrMalformedMessage
	}
	if err := r.Done(); err != nil {
		return ErrMalformedMessage
	}

	acct, err := tx.Account(outboxPk)
	if err != nil {
		if errors.Is(err, runtime.ErrAccountNotFound) {
			return ErrNotInitialized
		}
		return err
	}
	box, err := decodeOutbox(acct.Data)
	if err != nil {
		return err
	}

	msg := Message{
		Nonce:             box.Nonce,
		OriginDomain:      box.LocalDomain,
		Sender:            sender,
		DestinationDomain: destination,
		Recipient:         recipient,
		Body:              body,
	}
	box.Nonce++
	if err := tx.SetData(outboxPk, box.encode()); err != nil {
		return err
	}
	tx.Emit(DispatchEvent{Message: msg})
	return nil
}

// process delivers an inbound message: it records a replay marker keyed by
// the message id, then invokes the recipient's handle entry point signed by
// the per-recipient process authority. Accounts past the fixed prefix are
// forwarded to the recipient.
//
// Accounts: [payer (signer, writable), processed marker (writable),
// recipient extras...].
// Data: [disc, nonce u64, origin domain u32, sender 32B, destination domain
// u32, recipient 32B, body bytes].
func (p *Program) process(tx *runtime.Tx, ix runtime.Instruction) error {
	if len(ix.Accounts) < 2 {
		return ErrMalformedMessage
	}
	payer := ix.Accounts[0].Pubkey
	markerPk := ix.Accounts[1].Pubkey
	extras := ix.Accounts[2:]

	r := types.NewWireReader(ix.Data[1:])
	var msg Message
	var err error
	if msg.Nonce, err = r.ReadU64(); err != nil {
		return ErrMalformedMessage
	}
	if msg.OriginDomain, err = r.ReadU32(); err != nil {
		return ErrMalformedMessage
	}
	if msg.Sender, err = r.ReadPubkey(); err != nil {
		return ErrMalformedMessage
	}
	if msg.DestinationDomain, err = r.ReadU32(); err != nil {
		return ErrMalformedMessage
	}
	if msg.Recipient, err = r.ReadPubkey(); err != nil {
		return ErrMalformedMessage
	}
	if msg.Body, err = r.ReadBytes(); err != nil {
		return ErrMalformedMessage
	}
	if err := r.Done(); err != nil {
		return ErrMalformedMessage
	}

	expectedMarker, err := ProcessedAddress(msg.ID())
	if err != nil {
		return err
	}
	if markerPk != expectedMarker {
		return errors.Wrapf(ErrMalformedMessage, "processed marker %s", markerPk)
	}
	if err := tx.CreateAccount(markerPk, ProgramID, nil, payer); err != nil {
		if errors.Is(err, runtime.ErrAccountExists) {
			return errors.Wrapf(ErrAlreadyDelivered, "%s", msg.ID())
		}
		return err
	}

	authority, err := ProcessAuthorityAddress(msg.Recipient)
	if err != nil {
		return err
	}
	accounts := make([]runtime.AccountMeta, 0, 1+len(extras))
	accounts = append(accounts, runtime.AccountMeta{Pubkey: authority, IsSigner: true})
	accounts = append(accounts, extras...)
	inner := runtime.Instruction{
		ProgramID: msg.Recipient,
		Accounts:  accounts,
		Data:      EncodeHandleInstruction(msg.OriginDomain, msg.Sender, msg.Body),
	}
	return tx.Invoke(inner, [][]byte{[]byte(ProcessAuthoritySeed), msg.Recipient[:]})
}

// NewInitInstruction builds a mailbox init instruction.
func NewInitInstruction(payer types.Pubkey, localDomain uint32) runtime.Instruction {
	data := make([]byte, 0, 5)
	data = append(data, IxInit)
	data = binary.LittleEndian.AppendUint32(data, localDomain)
	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts:  []runtime.AccountMeta{runtime.SignerMeta(payer)},
		Data:      data,
	}
}

// NewDispatchInstruction builds a mailbox dispatch instruction.
func NewDispatchInstruction(sender, outboxPk types.Pubkey, destination uint32, recipient types.Pubkey, body []byte) runtime.Instruction {
	data := make([]byte, 0, 1+4+32+4+len(body))
	data = append(data, IxDispatch)
	data = binary.LittleEndian.AppendUint32(data, destination)
	data = append(data, recipient[:]...)
	data = types.AppendBytes(data, body)
	return runtime.Instruction{
		ProgramID: ProgramID,
		Accounts: []runtime.AccountMeta{
			{Pubkey: sender, IsSigner: true},
			runtime.WritableMeta(outboxPk),
		},
		Data: data,
	}
}

// NewProcessInstruction builds a mailbox process instruction. extras is
// forwarded to the recipient's handle after the process authority.
func NewProcessInstruction(payer types.Pubkey, msg *Message, extras []runtime.AccountMeta) (runtime.Instruction, error) {
	markerPk, err := ProcessedAddress(msg.ID())
	if err != nil {
		return runtime.Instruction{}, err
	}
	data := make([]byte, 0, 1+8+4+32+4+32+4+len(msg.Body))
	data = append(data, IxProcess)
	data = binary.LittleEndian.AppendUint64(data, msg.Nonce)
	data = binary.LittleEndian.AppendUint32(data, msg.OriginDomain)
	data = append(data, msg.Sender[:]...)
	data = binary.LittleEndian.AppendUint32(data, msg.DestinationDomain)
	data = append(data, msg.Recipient[:]...)
	data = types.AppendBytes(data, msg.Body)

	accounts := make([]runtime.AccountMeta, 0, 2+len(extras))
	accounts = append(accounts, runtime.SignerMeta(payer), runtime.WritableMeta(markerPk))
	accounts = append(accounts, extras...)
	return runtime.Instruction{ProgramID: ProgramID, Accounts: accounts, Data: data}, nil
}
