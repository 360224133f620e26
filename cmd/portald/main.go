// Command portald runs a single-chain portal node: the account ledger with
// the settlement programs registered, the event indexer, the message
// relayer, and the REST API.
package main

import (
	"context"
	"crypto/sha256"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intentnet/portal/config"
	"github.com/intentnet/portal/db"
	"github.com/intentnet/portal/handlers"
	"github.com/intentnet/portal/logging"
	"github.com/intentnet/portal/programs/hyperprover"
	"github.com/intentnet/portal/programs/localprover"
	"github.com/intentnet/portal/programs/mailbox"
	"github.com/intentnet/portal/programs/portal"
	"github.com/intentnet/portal/relayer"
	portalruntime "github.com/intentnet/portal/runtime"
	"github.com/intentnet/portal/services"
	"github.com/intentnet/portal/types"
)

const eventQueueSize = 1024

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := logging.New(os.Stderr, level, cfg.JSONLogs)

	if err := run(cfg, logger); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("portald exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := portalruntime.OpenPebble(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rt := portalruntime.New(cfg.ChainID, store, logger)
	rt.Register(portal.New())
	rt.Register(localprover.New())
	rt.Register(hyperprover.New())
	rt.Register(mailbox.New())

	if err := bootstrap(ctx, rt, cfg.Domain); err != nil {
		return err
	}

	database, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	metrics := services.NewMetricsService()
	indexer := services.NewIndexer(logger, database, metrics, eventQueueSize)
	indexer.Attach(rt)

	r := relayer.New(logger, eventQueueSize)
	r.Attach(&relayer.Chain{Domain: cfg.Domain, Runtime: rt, Payer: relayerPayer()})

	server := handlers.NewServer(logger, database, metrics)
	shutdown := server.StartAsync(":" + cfg.Port)
	defer shutdown(context.Background())

	logger.Info().
		Uint64(logging.FieldChain, cfg.ChainID).
		Uint32(logging.FieldDomain, cfg.Domain).
		Msg("portald started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return indexer.Run(ctx, cfg.IndexerWorkers) })
	g.Go(func() error { return r.Run(ctx, cfg.RelayerWorkers) })
	return g.Wait()
}

// relayerPayer is the account funding message-processing rent. Genesis
// funds it; the address is fixed so operators can top it up.
func relayerPayer() types.Pubkey {
	sum := sha256.Sum256([]byte("portal-relayer-payer/v1"))
	return types.Pubkey(sum)
}

const genesisLamports = 1_000_000_000

// bootstrap prepares a fresh ledger: funds the relayer payer and
// initializes the mailbox outbox for the local domain. Re-running against
// an initialized ledger is a no-op.
func bootstrap(ctx context.Context, rt *portalruntime.Runtime, domain uint32) error {
	outboxPk, err := mailbox.OutboxAddress()
	if err != nil {
		return err
	}
	if _, err := rt.Account(outboxPk); err == nil {
		return nil
	} else if !errors.Is(err, portalruntime.ErrAccountNotFound) {
		return err
	}

	payer := relayerPayer()
	if err := rt.Airdrop(payer, genesisLamports); err != nil {
		return err
	}
	_, err = rt.Execute(ctx, mailbox.NewInitInstruction(payer, domain), payer)
	return err
}
