package hyperprover

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/intentnet/portal/types"
)

// MaxWhitelistedSenders bounds the config's sender whitelist.
const MaxWhitelistedSenders = 20

// ErrInvalidConfig indicates a missing, oversized, or corrupt config
// account.
var ErrInvalidConfig = errors.New("InvalidConfig: bad hyper prover config")

// DomainRoute maps one messenger domain id to a chain id. The mapping is
// explicit; unknown domains are rejected rather than passed through.
type DomainRoute struct {
	Domain uint32
	Chain  uint64
}

// Config is the singleton account body: the messenger this prover trusts,
// the remote senders allowed to write proofs, and the domain table.
type Config struct {
	Mailbox            types.Pubkey
	WhitelistedSenders []types.Pubkey
	Routes             []DomainRoute
}

// Encode returns the config account data body.
func (c *Config) Encode() []byte {
	out := make([]byte, 0, 32+4+32*len(c.WhitelistedSenders)+4+12*len(c.Routes))
	out = append(out, c.Mailbox[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.WhitelistedSenders)))
	for _, s := range c.WhitelistedSenders {
		out = append(out, s[:]...)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(c.Routes)))
	for _, r := range c.Routes {
		out = binary.LittleEndian.AppendUint32(out, r.Domain)
		out = binary.LittleEndian.AppendUint64(out, r.Chain)
	}
	return out
}

// DecodeConfig parses a config account data body.
func DecodeConfig(b []byte) (*Config, error) {
	r := types.NewWireReader(b)
	out := &Config{}
	var err error
	if out.Mailbox, err = r.ReadPubkey(); err != nil {
		return nil, ErrInvalidConfig
	}
	senderCount, err := r.ReadU32()
	if err != nil || senderCount > MaxWhitelistedSenders {
		return nil, ErrInvalidConfig
	}
	if senderCount > 0 {
		out.WhitelistedSenders = make([]types.Pubkey, senderCount)
		for i := range out.WhitelistedSenders {
			if out.WhitelistedSenders[i], err = r.ReadPubkey(); err != nil {
				return nil, ErrInvalidConfig
			}
		}
	}
	routeCount, err := r.ReadU32()
	if err != nil {
		return nil, ErrInvalidConfig
	}
	if routeCount > 0 {
		out.Routes = make([]DomainRoute, routeCount)
		for i := range out.Routes {
			if out.Routes[i].Domain, err = r.ReadU32(); err != nil {
				return nil, ErrInvalidConfig
			}
			if out.Routes[i].Chain, err = r.ReadU64(); err != nil {
				return nil, ErrInvalidConfig
			}
		}
	}
	if err := r.Done(); err != nil {
		return nil, ErrInvalidConfig
	}
	return out, nil
}

// SenderWhitelisted reports whether a remote sender may write proofs here.
func (c *Config) SenderWhitelisted(sender types.Pubkey) bool {
	for _, s := range c.WhitelistedSenders {
		if s == sender {
			return true
		}
	}
	return false
}

// DomainForChain resolves a chain id to its messenger domain.
func (c *Config) DomainForChain(chain uint64) (uint32, bool) {
	for _, r := range c.Routes {
		if r.Chain == chain {
			return r.Domain, true
		}
	}
	return 0, false
}

// ChainForDomain resolves a messenger domain to its chain id.
func (c *Config) ChainForDomain(domain uint32) (uint64, bool) {
	for _, r := range c.Routes {
		if r.Domain == domain {
			return r.Chain, true
		}
	}
	return 0, false
}
