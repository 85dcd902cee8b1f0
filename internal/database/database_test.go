package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"freight-resale-api-server/internal/database"
	"freight-resale-api-server/internal/ledger"
	"freight-resale-api-server/internal/models"
	"freight-resale-api-server/internal/notify"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestDecimalCodecRoundTrip(t *testing.T) {
	reg := database.Registry()
	in := models.Offer{ID: "o1", Price: decimal.RequireFromString("1250.50"), Status: models.OfferPending}

	raw, err := bson.MarshalWithRegistry(reg, in)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "1250.5", doc["price"])

	var out models.Offer
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, in.Price.Equal(out.Price))
}

func TestDecimalCodecNull(t *testing.T) {
	reg := database.Registry()
	raw, err := bson.Marshal(bson.M{"_id": "o1", "price": nil})
	require.NoError(t, err)

	var out models.Offer
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, out.Price.IsZero())
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	users := notify.NewMemoryUsers()
	seed := database.AdminSeed{Email: "admin@example.com", PasswordHash: "hash", CompanyName: "Ops"}

	created, err := database.SeedAdmin(ctx, users, seed, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, created)

	u, err := users.FindByEmail(ctx, seed.Email)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	created, err = database.SeedAdmin(ctx, users, seed, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, created)

	created, err = database.SeedAdmin(ctx, users, database.AdminSeed{}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, created)
}

// mongoDB connects to TEST_MONGO_URI (a replica set) and returns a fresh
// database dropped at the end of the test.
func mongoDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	db, err := database.Connect(ctx, uri, "freight_test_"+models.NewID()[:8])
	require.NoError(t, err)
	require.NoError(t, database.EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})
	return db
}

func TestLedger_ConfirmFlow(t *testing.T) {
	db := mongoDB(t)
	ctx := context.Background()
	l := database.NewLedger(db)
	now := models.Stamp(time.Now())

	req := models.Request{ID: "r1", CargoID: "c1", RequesterID: "s1", Status: models.RequestOpen, Deadline: now.Add(time.Hour), CreatedAt: now}
	require.NoError(t, l.InsertRequest(ctx, req))
	for i, id := range []string{"o1", "o2"} {
		require.NoError(t, l.InsertOffer(ctx, models.Offer{
			ID: id, RequestID: "r1", ForwarderID: "f" + id, Price: decimal.NewFromInt(int64(100 + i)),
			Status: models.OfferPending, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	w, err := l.FindWinningOffer(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, w)

	err = l.WithTx(ctx, func(ctx context.Context) error {
		if err := l.CloseRequest(ctx, "r1", now); err != nil {
			return err
		}
		return l.UpdateOfferStatus(ctx, "o1", models.OfferPending, models.OfferAccepted, now)
	})
	require.NoError(t, err)

	assert.ErrorIs(t, l.CloseRequest(ctx, "r1", now), models.ErrRequestClosed)
	assert.ErrorIs(t, l.CloseRequest(ctx, "missing", now), models.ErrRequestNotFound)
	assert.ErrorIs(t, l.UpdateOfferStatus(ctx, "o1", models.OfferPending, models.OfferRejected, now), ledger.ErrStaleStatus)

	w, err = l.FindWinningOffer(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "o1", w.ID)
	assert.True(t, decimal.NewFromInt(100).Equal(w.Price))

	winners, ambiguous, err := l.FindWinningOffers(ctx, []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Empty(t, ambiguous)
	require.Len(t, winners, 1)
	assert.Equal(t, "o1", winners["r1"].ID)

	require.NoError(t, l.UpdateOfferStatus(ctx, "o2", models.OfferPending, models.OfferAccepted, now))
	winners, ambiguous, err = l.FindWinningOffers(ctx, []string{"r1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ambiguous)
	assert.Empty(t, winners)

	mine, err := l.ListOffersByForwarder(ctx, "fo2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "o2", mine[0].ID)

	counts, err := l.CountOffersByRequests(ctx, []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"r1": 2}, counts)
}

func TestLedger_RollbackAndUniqueAllocation(t *testing.T) {
	db := mongoDB(t)
	ctx := context.Background()
	l := database.NewLedger(db)
	now := models.Stamp(time.Now())

	require.NoError(t, l.InsertRequest(ctx, models.Request{ID: "r1", Status: models.RequestOpen, CreatedAt: now}))
	err := l.WithTx(ctx, func(ctx context.Context) error {
		if err := l.CloseRequest(ctx, "r1", now); err != nil {
			return err
		}
		return models.ErrInvalid
	})
	assert.ErrorIs(t, err, models.ErrInvalid)
	r, err := l.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestOpen, r.Status)

	a := models.ContainerCargo{ID: "a1", ContainerID: "k1", OfferID: "o1", CreatedAt: now}
	require.NoError(t, l.InsertAllocation(ctx, a))
	a.ID = "a2"
	assert.ErrorIs(t, l.InsertAllocation(ctx, a), ledger.ErrAllocationExists)

	deleted, err := l.DeleteAllocationByOffer(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, deleted)
	got, err := l.GetAllocationByOffer(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNotifications(t *testing.T) {
	db := mongoDB(t)
	ctx := context.Background()
	store := database.NewNotifications(db)
	now := models.Stamp(time.Now())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, models.Notification{
			ID: models.NewID(), UserID: "u1", Message: "m", CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	list, err := store.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	require.NoError(t, store.MarkRead(ctx, "u1", list[0].ID))
	assert.ErrorIs(t, store.MarkRead(ctx, "u2", list[0].ID), models.ErrNotFound)
}
