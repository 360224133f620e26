package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentnet/portal/db"
	"github.com/intentnet/portal/handlers"
	"github.com/intentnet/portal/models"
)

const testHash = "0x57d07adfa575c04789f541fb5760155795f8b8a4ce0c80dbb4c05eb4f1747f46"

// fakeDB is an in-memory Database for handler tests.
type fakeDB struct {
	intents      map[string]*models.Intent
	fulfillments map[string]*models.Fulfillment
	settlements  []*models.Settlement
	pingErr      error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		intents:      make(map[string]*models.Intent),
		fulfillments: make(map[string]*models.Fulfillment),
	}
}

func (f *fakeDB) Close() error                     { return nil }
func (f *fakeDB) Ping() error                      { return f.pingErr }
func (f *fakeDB) InitDB(ctx context.Context) error { return nil }

func (f *fakeDB) UpsertIntent(ctx context.Context, intent *models.Intent) error {
	f.intents[intent.Hash] = intent
	return nil
}

func (f *fakeDB) GetIntent(ctx context.Context, hash string) (*models.Intent, error) {
	intent, ok := f.intents[hash]
	if !ok {
		return nil, db.ErrNotFound
	}
	return intent, nil
}

func (f *fakeDB) ListIntents(ctx context.Context, limit, offset int, status string) ([]*models.Intent, error) {
	var out []*models.Intent
	for _, intent := range f.intents {
		if status == "" || string(intent.Status) == status {
			out = append(out, intent)
		}
	}
	return out, nil
}

func (f *fakeDB) CreateFulfillment(ctx context.Context, fulfillment *models.Fulfillment) error {
	f.fulfillments[fulfillment.IntentHash] = fulfillment
	return nil
}

func (f *fakeDB) GetFulfillment(ctx context.Context, intentHash string) (*models.Fulfillment, error) {
	fulfillment, ok := f.fulfillments[intentHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	return fulfillment, nil
}

func (f *fakeDB) CreateProof(ctx context.Context, proof *models.Proof) error { return nil }

func (f *fakeDB) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	f.settlements = append(f.settlements, settlement)
	return nil
}

func (f *fakeDB) ListSettlements(ctx context.Context, limit, offset int) ([]*models.Settlement, error) {
	return f.settlements, nil
}

func newTestServer(t *testing.T, database db.Database) http.Handler {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return handlers.NewServer(logger, database, nil).Router()
}

func doGet(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	database := newFakeDB()
	router := newTestServer(t, database)

	w := doGet(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	database.pingErr = assert.AnError
	w = doGet(t, router, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetIntent(t *testing.T) {
	database := newFakeDB()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	intent := &models.Intent{
		Hash:             testHash,
		SourceChain:      1399811149,
		DestinationChain: 8453,
		NativeReward:     "1000000000",
		Status:           models.IntentStatusFunded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, database.UpsertIntent(context.Background(), intent))
	router := newTestServer(t, database)

	t.Run("found", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents/"+testHash)
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Intent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, *intent, got)
	})

	t.Run("not found", func(t *testing.T) {
		missing := "0x" + "00000000000000000000000000000000000000000000000000000000000000ff"
		w := doGet(t, router, "/api/v1/intents/"+missing)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed hash", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents/nonsense")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListIntents(t *testing.T) {
	database := newFakeDB()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, database.UpsertIntent(context.Background(), &models.Intent{
		Hash: testHash, Status: models.IntentStatusFunded, CreatedAt: now, UpdatedAt: now,
	}))
	router := newTestServer(t, database)

	t.Run("all", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents")
		require.Equal(t, http.StatusOK, w.Code)

		var got []*models.Intent
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 1)
	})

	t.Run("status filter", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents?status=refunded")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "null", w.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents?limit=many")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized limit", func(t *testing.T) {
		w := doGet(t, router, "/api/v1/intents?limit=1000")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetFulfillment(t *testing.T) {
	database := newFakeDB()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	fulfillment := &models.Fulfillment{IntentHash: testHash, Claimant: "claimant", ChainID: 8453, CreatedAt: now}
	require.NoError(t, database.CreateFulfillment(context.Background(), fulfillment))
	router := newTestServer(t, database)

	w := doGet(t, router, "/api/v1/fulfillments/"+testHash)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Fulfillment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, *fulfillment, got)
}

func TestListSettlements(t *testing.T) {
	database := newFakeDB()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, database.CreateSettlement(context.Background(), &models.Settlement{
		IntentHash: testHash,
		Kind:       models.SettlementWithdrawal,
		ChainID:    1399811149,
		CreatedAt:  now,
	}))
	router := newTestServer(t, database)

	w := doGet(t, router, "/api/v1/settlements")
	require.Equal(t, http.StatusOK, w.Code)

	var got []*models.Settlement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, models.SettlementWithdrawal, got[0].Kind)
}
