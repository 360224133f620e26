// Package services turns the per-chain event feed into persisted records
// the API serves.
package services

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intentnet/portal/db"
	"github.com/intentnet/portal/logging"
	"github.com/intentnet/portal/models"
	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/runtime"
)

type indexedEvent struct {
	chainID uint64
	event   runtime.Event
}

// Indexer consumes committed-transaction events from attached runtimes and
// folds them into the database. Events are queued so the sink callback,
// which runs inside the runtime's commit path, never blocks on I/O.
type Indexer struct {
	logger  zerolog.Logger
	db      db.Database
	metrics *MetricsService
	queue   chan indexedEvent
	now     func() time.Time
}

// NewIndexer creates an indexer over the given database. metrics may be nil.
func NewIndexer(logger zerolog.Logger, database db.Database, metrics *MetricsService, queueSize int) *Indexer {
	return &Indexer{
		logger:  logging.WithModule(logger, "indexer"),
		db:      database,
		metrics: metrics,
		queue:   make(chan indexedEvent, queueSize),
		now:     time.Now,
	}
}

// Attach subscribes the indexer to a runtime's event feed. A full queue
// drops the event; the ledger remains the source of truth.
func (ix *Indexer) Attach(rt *runtime.Runtime) {
	chainID := rt.ChainID()
	rt.OnEvent(func(ev runtime.Event) {
		select {
		case ix.queue <- indexedEvent{chainID: chainID, event: ev}:
			if ix.metrics != nil {
				ix.metrics.SetQueueDepth(len(ix.queue))
			}
		default:
			ix.logger.Warn().
				Uint64(logging.FieldChain, chainID).
				Str("event", ev.EventName()).
				Msg("indexer queue full, dropping event")
		}
	})
}

// Run processes queued events until the context is canceled. Persistence
// failures are logged and counted, not fatal.
func (ix *Indexer) Run(ctx context.Context, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case item := <-ix.queue:
					if ix.metrics != nil {
						ix.metrics.SetQueueDepth(len(ix.queue))
					}
					if err := ix.process(ctx, item.chainID, item.event); err != nil {
						if ix.metrics != nil {
							ix.metrics.RecordError(strconv.FormatUint(item.chainID, 10))
						}
						ix.logger.Err(err).
							Uint64(logging.FieldChain, item.chainID).
							Str("event", item.event.EventName()).
							Msg("failed to index event")
					}
				}
			}
		})
	}
	return g.Wait()
}

func (ix *Indexer) process(ctx context.Context, chainID uint64, ev runtime.Event) error {
	now := ix.now()

	var err error
	switch e := ev.(type) {
	case portal.IntentPublished:
		err = ix.upsertIntent(ctx, &models.Intent{
			Hash:             e.IntentHash.String(),
			SourceChain:      chainID,
			DestinationChain: e.DestinationChain,
			Creator:          e.Reward.Creator.String(),
			Prover:           e.Reward.Prover.String(),
			NativeReward:     strconv.FormatUint(e.Reward.NativeAmount, 10),
			Status:           models.IntentStatusPublished,
			CreatedAt:        now,
			UpdatedAt:        now,
		})

	case portal.IntentFunded:
		if !e.Complete {
			return nil
		}
		err = ix.advanceStatus(ctx, chainID, e.IntentHash.String(), models.IntentStatusFunded, now)

	case portal.IntentFulfilled:
		if err = ix.db.CreateFulfillment(ctx, &models.Fulfillment{
			IntentHash: e.IntentHash.String(),
			Claimant:   e.Claimant.String(),
			ChainID:    chainID,
			CreatedAt:  now,
		}); err == nil {
			err = ix.advanceStatus(ctx, chainID, e.IntentHash.String(), models.IntentStatusFulfilled, now)
		}

	case portal.IntentProven:
		if err = ix.db.CreateProof(ctx, &models.Proof{
			IntentHash:       e.IntentHash.String(),
			SourceChain:      e.SourceChain,
			DestinationChain: e.DestinationChain,
			CreatedAt:        now,
		}); err == nil {
			err = ix.advanceStatus(ctx, chainID, e.IntentHash.String(), models.IntentStatusProven, now)
		}

	case portal.IntentWithdrawn:
		err = ix.settle(ctx, chainID, e.IntentHash.String(), models.SettlementWithdrawal, models.IntentStatusWithdrawn, now)

	case portal.IntentRefunded:
		err = ix.settle(ctx, chainID, e.IntentHash.String(), models.SettlementRefund, models.IntentStatusRefunded, now)

	default:
		// Messenger and token events are not part of the API surface.
		return nil
	}

	if err == nil && ix.metrics != nil {
		ix.metrics.RecordEvent(strconv.FormatUint(chainID, 10), ev.EventName())
	}
	return err
}

func (ix *Indexer) upsertIntent(ctx context.Context, intent *models.Intent) error {
	if err := ix.db.UpsertIntent(ctx, intent); err != nil {
		return err
	}
	if ix.metrics != nil {
		ix.metrics.RecordStatus(string(intent.Status))
	}
	intentLogger := logging.WithIntent(ix.logger, intent.Hash)
	intentLogger.Info().
		Str("status", string(intent.Status)).
		Msg("intent indexed")
	return nil
}

// advanceStatus moves an intent forward, inserting a stub row when the
// intent was never published through an attached runtime. The database
// guards against regressions.
func (ix *Indexer) advanceStatus(
	ctx context.Context,
	chainID uint64,
	hash string,
	status models.IntentStatus,
	now time.Time,
) error {
	intent, err := ix.db.GetIntent(ctx, hash)
	if errors.Is(err, db.ErrNotFound) {
		intent = &models.Intent{Hash: hash, SourceChain: chainID, CreatedAt: now}
	} else if err != nil {
		return err
	}
	if intent.Status.Supersedes(status) {
		return nil
	}
	intent.Status = status
	intent.UpdatedAt = now
	return ix.upsertIntent(ctx, intent)
}

func (ix *Indexer) settle(
	ctx context.Context,
	chainID uint64,
	hash string,
	kind models.SettlementKind,
	status models.IntentStatus,
	now time.Time,
) error {
	if err := ix.db.CreateSettlement(ctx, &models.Settlement{
		IntentHash: hash,
		Kind:       kind,
		ChainID:    chainID,
		CreatedAt:  now,
	}); err != nil {
		return err
	}
	return ix.advanceStatus(ctx, chainID, hash, status, now)
}
