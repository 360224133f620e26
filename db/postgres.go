package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/intentnet/portal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS intents (
	hash TEXT PRIMARY KEY,
	source_chain BIGINT NOT NULL,
	destination_chain BIGINT NOT NULL,
	creator TEXT NOT NULL,
	prover TEXT NOT NULL,
	native_reward TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status);
CREATE INDEX IF NOT EXISTS idx_intents_created_at ON intents(created_at DESC);

CREATE TABLE IF NOT EXISTS fulfillments (
	intent_hash TEXT PRIMARY KEY,
	claimant TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS proofs (
	intent_hash TEXT PRIMARY KEY,
	source_chain BIGINT NOT NULL,
	destination_chain BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS settlements (
	intent_hash TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// PostgresDB implements Database on PostgreSQL via lib/pq.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB opens a connection, verifies it, and ensures the schema.
func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	p := &PostgresDB{db: sqlDB}
	if err := p.InitDB(context.Background()); err != nil {
		return nil, errors.Wrap(err, "initialize schema")
	}
	return p, nil
}

// NewPostgresDBWithConn wraps an existing connection without touching the
// schema. Tests use it with sqlmock.
func NewPostgresDBWithConn(sqlDB *sql.DB) *PostgresDB {
	return &PostgresDB{db: sqlDB}
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping() error {
	return p.db.Ping()
}

// InitDB creates the tables and indexes if they do not exist.
func (p *PostgresDB) InitDB(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "create schema")
}

const upsertIntentQuery = `
	INSERT INTO intents (
		hash, source_chain, destination_chain, creator, prover, native_reward, status, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (hash) DO UPDATE SET
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at
	WHERE (CASE intents.status
		WHEN 'published' THEN 0
		WHEN 'funded' THEN 1
		WHEN 'fulfilled' THEN 2
		WHEN 'proven' THEN 3
		ELSE 4
	END) <= (CASE EXCLUDED.status
		WHEN 'published' THEN 0
		WHEN 'funded' THEN 1
		WHEN 'fulfilled' THEN 2
		WHEN 'proven' THEN 3
		ELSE 4
	END)
`

// UpsertIntent inserts or advances an intent record. An update that would
// regress the status is silently dropped.
func (p *PostgresDB) UpsertIntent(ctx context.Context, intent *models.Intent) error {
	_, err := p.db.ExecContext(ctx, upsertIntentQuery,
		intent.Hash,
		intent.SourceChain,
		intent.DestinationChain,
		intent.Creator,
		intent.Prover,
		intent.NativeReward,
		intent.Status,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	return errors.Wrapf(err, "upsert intent %s", intent.Hash)
}

const getIntentQuery = `
	SELECT hash, source_chain, destination_chain, creator, prover, native_reward, status, created_at, updated_at
	FROM intents
	WHERE hash = $1
`

func (p *PostgresDB) GetIntent(ctx context.Context, hash string) (*models.Intent, error) {
	var intent models.Intent
	err := p.db.QueryRowContext(ctx, getIntentQuery, hash).Scan(
		&intent.Hash,
		&intent.SourceChain,
		&intent.DestinationChain,
		&intent.Creator,
		&intent.Prover,
		&intent.NativeReward,
		&intent.Status,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "intent %s", hash)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get intent %s", hash)
	}
	return &intent, nil
}

const listIntentsQuery = `
	SELECT hash, source_chain, destination_chain, creator, prover, native_reward, status, created_at, updated_at
	FROM intents
	WHERE ($3 = '' OR status = $3)
	ORDER BY created_at DESC, hash
	LIMIT $1 OFFSET $2
`

func (p *PostgresDB) ListIntents(ctx context.Context, limit, offset int, status string) ([]*models.Intent, error) {
	rows, err := p.db.QueryContext(ctx, listIntentsQuery, limit, offset, status)
	if err != nil {
		return nil, errors.Wrap(err, "list intents")
	}
	defer rows.Close()

	var intents []*models.Intent
	for rows.Next() {
		var intent models.Intent
		if err := rows.Scan(
			&intent.Hash,
			&intent.SourceChain,
			&intent.DestinationChain,
			&intent.Creator,
			&intent.Prover,
			&intent.NativeReward,
			&intent.Status,
			&intent.CreatedAt,
			&intent.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan intent")
		}
		intents = append(intents, &intent)
	}
	return intents, errors.Wrap(rows.Err(), "list intents")
}

const createFulfillmentQuery = `
	INSERT INTO fulfillments (intent_hash, claimant, chain_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (intent_hash) DO NOTHING
`

func (p *PostgresDB) CreateFulfillment(ctx context.Context, fulfillment *models.Fulfillment) error {
	_, err := p.db.ExecContext(ctx, createFulfillmentQuery,
		fulfillment.IntentHash,
		fulfillment.Claimant,
		fulfillment.ChainID,
		fulfillment.CreatedAt,
	)
	return errors.Wrapf(err, "create fulfillment %s", fulfillment.IntentHash)
}

const getFulfillmentQuery = `
	SELECT intent_hash, claimant, chain_id, created_at
	FROM fulfillments
	WHERE intent_hash = $1
`

func (p *PostgresDB) GetFulfillment(ctx context.Context, intentHash string) (*models.Fulfillment, error) {
	var f models.Fulfillment
	err := p.db.QueryRowContext(ctx, getFulfillmentQuery, intentHash).Scan(
		&f.IntentHash,
		&f.Claimant,
		&f.ChainID,
		&f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "fulfillment %s", intentHash)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get fulfillment %s", intentHash)
	}
	return &f, nil
}

const createProofQuery = `
	INSERT INTO proofs (intent_hash, source_chain, destination_chain, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (intent_hash) DO NOTHING
`

func (p *PostgresDB) CreateProof(ctx context.Context, proof *models.Proof) error {
	_, err := p.db.ExecContext(ctx, createProofQuery,
		proof.IntentHash,
		proof.SourceChain,
		proof.DestinationChain,
		proof.CreatedAt,
	)
	return errors.Wrapf(err, "create proof %s", proof.IntentHash)
}

const createSettlementQuery = `
	INSERT INTO settlements (intent_hash, kind, chain_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (intent_hash) DO NOTHING
`

func (p *PostgresDB) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	_, err := p.db.ExecContext(ctx, createSettlementQuery,
		settlement.IntentHash,
		settlement.Kind,
		settlement.ChainID,
		settlement.CreatedAt,
	)
	return errors.Wrapf(err, "create settlement %s", settlement.IntentHash)
}

const listSettlementsQuery = `
	SELECT intent_hash, kind, chain_id, created_at
	FROM settlements
	ORDER BY created_at DESC, intent_hash
	LIMIT $1 OFFSET $2
`

func (p *PostgresDB) ListSettlements(ctx context.Context, limit, offset int) ([]*models.Settlement, error) {
	rows, err := p.db.QueryContext(ctx, listSettlementsQuery, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list settlements")
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		var s models.Settlement
		if err := rows.Scan(&s.IntentHash, &s.Kind, &s.ChainID, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan settlement")
		}
		settlements = append(settlements, &s)
	}
	return settlements, errors.Wrap(rows.Err(), "list settlements")
}
