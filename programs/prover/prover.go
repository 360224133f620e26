// Package prover defines the ABI shared by all prover programs: the
// instruction discriminators the portal dispatches against, the Proof
// account layout, and the reserved program-id prefix that lets the portal
// recognize prover programs without a registry.
package prover

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// Instruction discriminators. Every prover handles Prove and CloseProof;
// individual provers may define further instructions above these.
const (
	IxProve      byte = 1
	IxCloseProof byte = 2
)

// IDPrefix is the reserved 8-byte program-id prefix shared by all prover
// programs. Fulfillment rejects downstream call targets carrying it.
var IDPrefix = [8]byte{'p', 'r', 'o', 'v', 'e', 'r', '.', '1'}

// ErrMalformedInstruction indicates prover instruction data that does not
// decode.
var ErrMalformedInstruction = errors.New("malformed prover instruction")

// Errors shared by every prover backend.
var (
	// ErrIntentAlreadyProven indicates a proof account that already exists
	// for the intent.
	ErrIntentAlreadyProven = errors.New("IntentAlreadyProven: proof account exists")

	// ErrInvalidPortalDispatcher indicates a prove call not signed by the
	// portal's dispatcher.
	ErrInvalidPortalDispatcher = errors.New("InvalidPortalDispatcher: prove not signed by portal dispatcher")

	// ErrInvalidPortalProofCloser indicates a close_proof call not signed by
	// the portal's proof closer.
	ErrInvalidPortalProofCloser = errors.New("InvalidPortalProofCloser: close_proof not signed by portal proof closer")

	// ErrInvalidProofAccount indicates a proof account that does not match
	// its derivation for the intent.
	ErrInvalidProofAccount = errors.New("InvalidProof: proof account does not match derivation")
)

// ProgramID derives a prover program id from a name: the reserved prefix
// followed by 24 digest bytes.
func ProgramID(name string) types.Pubkey {
	sum := sha256.Sum256([]byte("prover-program/" + name))
	var id types.Pubkey
	copy(id[:8], IDPrefix[:])
	copy(id[8:], sum[8:])
	return id
}

// HasProverPrefix reports whether id carries the reserved prover prefix.
func HasProverPrefix(id types.Pubkey) bool {
	return [8]byte(id[:8]) == IDPrefix
}

// Proof is the account body a prover writes for a fulfilled intent: the
// chain the fulfillment happened on and the claimant it was recorded for.
type Proof struct {
	DestinationChain uint64
	Claimant         types.Pubkey
}

// Encode returns the proof account data body.
func (p *Proof) Encode() []byte {
	out := make([]byte, 0, 40)
	out = binary.LittleEndian.AppendUint64(out, p.DestinationChain)
	return append(out, p.Claimant[:]...)
}

// DecodeProof parses a proof account data body.
func DecodeProof(b []byte) (*Proof, error) {
	if len(b) != 40 {
		return nil, errors.Wrap(ErrMalformedInstruction, "proof body")
	}
	out := &Proof{DestinationChain: binary.LittleEndian.Uint64(b[:8])}
	copy(out.Claimant[:], b[8:40])
	return out, nil
}

// ProofSeed is the proof PDA seed literal.
const ProofSeed = "proof"

// ProofAddress derives the proof PDA for an intent under a prover program.
func ProofAddress(proverProgram types.Pubkey, intentHash types.Hash) (types.Pubkey, error) {
	pda, _, err := runtime.FindProgramAddress(
		[][]byte{[]byte(ProofSeed), intentHash[:]},
		proverProgram,
	)
	return pda, err
}

// ProveArgs is the payload the portal forwards to a prover's prove
// instruction.
type ProveArgs struct {
	SourceChain uint64
	IntentHash  types.Hash
	Claimant    types.Pubkey
	Data        []byte
}

// Encode returns the prove instruction data.
func (a *ProveArgs) Encode() []byte {
	out := make([]byte, 0, 1+8+32+32+4+len(a.Data))
	out = append(out, IxProve)
	out = binary.LittleEndian.AppendUint64(out, a.SourceChain)
	out = append(out, a.IntentHash[:]...)
	out = append(out, a.Claimant[:]...)
	return types.AppendBytes(out, a.Data)
}

// DecodeProveArgs parses prove instruction data, discriminator included.
func DecodeProveArgs(data []byte) (*ProveArgs, error) {
	if len(data) == 0 || data[0] != IxProve {
		return nil, ErrMalformedInstruction
	}
	r := types.NewWireReader(data[1:])
	out := &ProveArgs{}
	var err error
	if out.SourceChain, err = r.ReadU64(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.IntentHash, err = r.ReadHash(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Claimant, err = r.ReadPubkey(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if out.Data, err = r.ReadBytes(); err != nil {
		return nil, ErrMalformedInstruction
	}
	if err := r.Done(); err != nil {
		return nil, ErrMalformedInstruction
	}
	return out, nil
}

// CloseProofArgs is the payload of a close_proof instruction.
type CloseProofArgs struct {
	IntentHash types.Hash
}

// Encode returns the close_proof instruction data.
func (a *CloseProofArgs) Encode() []byte {
	out := make([]byte, 0, 33)
	out = append(out, IxCloseProof)
	return append(out, a.IntentHash[:]...)
}

// DecodeCloseProofArgs parses close_proof instruction data.
func DecodeCloseProofArgs(data []byte) (*CloseProofArgs, error) {
	if len(data) != 33 || data[0] != IxCloseProof {
		return nil, ErrMalformedInstruction
	}
	out := &CloseProofArgs{}
	copy(out.IntentHash[:], data[1:33])
	return out, nil
}

// NewProveInstruction builds the CPI the portal sends to a prover. The
// dispatcher signs; remaining accounts are forwarded unmodified.
func NewProveInstruction(
	proverProgram types.Pubkey,
	dispatcher types.Pubkey,
	args *ProveArgs,
	remaining []runtime.AccountMeta,
) runtime.Instruction {
	accounts := make([]runtime.AccountMeta, 0, 1+len(remaining))
	accounts = append(accounts, runtime.AccountMeta{Pubkey: dispatcher, IsSigner: true})
	accounts = append(accounts, remaining...)
	return runtime.Instruction{
		ProgramID: proverProgram,
		Accounts:  accounts,
		Data:      args.Encode(),
	}
}

// NewCloseProofInstruction builds the CPI the portal sends to a prover when
// a proof is consumed by withdraw.
func NewCloseProofInstruction(
	proverProgram types.Pubkey,
	proofCloser types.Pubkey,
	proof types.Pubkey,
	rentRecipient types.Pubkey,
	intentHash types.Hash,
) runtime.Instruction {
	args := CloseProofArgs{IntentHash: intentHash}
	return runtime.Instruction{
		ProgramID: proverProgram,
		Accounts: []runtime.AccountMeta{
			{Pubkey: proofCloser, IsSigner: true},
			runtime.WritableMeta(proof),
			runtime.WritableMeta(rentRecipient),
		},
		Data: args.Encode(),
	}
}
