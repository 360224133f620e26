// Package relayer bridges mailbox deployments: it watches each attached
// chain for outbound dispatches and delivers them to the destination
// chain's inbound processor. It is untrusted plumbing; every message is
// re-verified on the receiving side.
package relayer

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intentnet/portal/logging"
	"github.com/intentnet/portal/programs/mailbox"
	"github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/types"
)

// ErrUnknownDomain indicates a dispatch to a domain no attached chain
// serves.
var ErrUnknownDomain = errors.New("no chain attached for domain")

// Chain is one attached deployment: its runtime, the messenger domain it
// serves, and the key that pays inbound delivery.
type Chain struct {
	Domain  uint32
	Runtime *runtime.Runtime
	Payer   types.Pubkey
}

type delivery struct {
	id  string
	msg mailbox.Message
}

// Relayer moves messages between attached chains.
type Relayer struct {
	logger zerolog.Logger
	chains map[uint32]*Chain
	queue  chan delivery
}

// New creates a relayer. queueSize bounds in-flight deliveries.
func New(logger zerolog.Logger, queueSize int) *Relayer {
	return &Relayer{
		logger: logging.WithModule(logger, "relayer"),
		chains: make(map[uint32]*Chain),
		queue:  make(chan delivery, queueSize),
	}
}

// Attach registers a chain and starts watching its dispatches. Call before
// Run; attaching is not safe once deliveries flow.
func (r *Relayer) Attach(chain *Chain) {
	r.chains[chain.Domain] = chain
	chain.Runtime.OnEvent(func(ev runtime.Event) {
		dispatch, ok := ev.(mailbox.DispatchEvent)
		if !ok {
			return
		}
		d := delivery{id: uuid.New().String(), msg: dispatch.Message}
		r.logger.Info().
			Str("delivery_id", d.id).
			Uint32("origin", d.msg.OriginDomain).
			Uint32("destination", d.msg.DestinationDomain).
			Uint64("nonce", d.msg.Nonce).
			Msg("message dispatched")
		r.queue <- d
	})
}

// Run delivers queued messages until the context ends. Delivery failures
// are logged, not fatal: a bad message must not wedge the queue.
func (r *Relayer) Run(ctx context.Context, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case d := <-r.queue:
					if err := r.Deliver(ctx, &d.msg); err != nil {
						r.logger.Error().
							Err(err).
							Str("delivery_id", d.id).
							Msg("delivery failed")
						continue
					}
					r.logger.Info().
						Str("delivery_id", d.id).
						Str("recipient", d.msg.Recipient.Base58()).
						Msg("message delivered")
				}
			}
		})
	}
	return g.Wait()
}

// Deliver processes one message on its destination chain. The recipient's
// extra accounts are discovered through its account-meta query.
func (r *Relayer) Deliver(ctx context.Context, msg *mailbox.Message) error {
	chain, ok := r.chains[msg.DestinationDomain]
	if !ok {
		return errors.Wrapf(ErrUnknownDomain, "%d", msg.DestinationDomain)
	}

	extras, err := r.handleAccounts(ctx, chain, msg.Recipient)
	if err != nil {
		return errors.Wrap(err, "handle account discovery")
	}
	process, err := mailbox.NewProcessInstruction(chain.Payer, msg, extras)
	if err != nil {
		return err
	}
	if _, err := chain.Runtime.Execute(ctx, process, chain.Payer); err != nil {
		return errors.Wrap(err, "process")
	}
	return nil
}

func (r *Relayer) handleAccounts(ctx context.Context, chain *Chain, recipient types.Pubkey) ([]runtime.AccountMeta, error) {
	query := runtime.Instruction{
		ProgramID: recipient,
		Data:      []byte{mailbox.IxHandleAccountMetas},
	}
	res, err := chain.Runtime.Simulate(ctx, query)
	if err != nil {
		return nil, err
	}
	return mailbox.DecodeAccountMetas(res.ReturnData)
}
