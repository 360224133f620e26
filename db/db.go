// Package db persists the indexed event feed for the API layer.
package db

import (
	"context"
	"errors"

	"github.com/intentnet/portal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Database is the storage surface the indexer writes and the API reads.
type Database interface {
	Close() error
	Ping() error
	InitDB(ctx context.Context) error

	// Intent operations. UpsertIntent inserts or advances an intent record;
	// a status that would move the record backwards is ignored.
	UpsertIntent(ctx context.Context, intent *models.Intent) error
	GetIntent(ctx context.Context, hash string) (*models.Intent, error)
	ListIntents(ctx context.Context, limit, offset int, status string) ([]*models.Intent, error)

	// Fulfillment operations.
	CreateFulfillment(ctx context.Context, fulfillment *models.Fulfillment) error
	GetFulfillment(ctx context.Context, intentHash string) (*models.Fulfillment, error)

	// Proof operations.
	CreateProof(ctx context.Context, proof *models.Proof) error

	// Settlement operations.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	ListSettlements(ctx context.Context, limit, offset int) ([]*models.Settlement, error)
}
