// internal/database/ledger.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-resale-api-server/internal/ledger"
	"freight-resale-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ledger is the MongoDB implementation of ledger.Ledger. Every write inside
// WithTx runs in one multi-document transaction.
type Ledger struct {
	DB *mongo.Database
}

func NewLedger(db *mongo.Database) *Ledger {
	return &Ledger{DB: db}
}

var _ ledger.Ledger = (*Ledger)(nil)

// WithTx runs fn in a transaction. A context that already carries a session
// joins it. WithTransaction retries fn on transient errors, so fn must not keep
// state across attempts.
func (l *Ledger) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := l.DB.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

func (l *Ledger) findOne(ctx context.Context, col string, filter bson.M, out any, notFound error) error {
	err := l.DB.Collection(col).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", col, err)
	}
	return nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return out, nil
}

func (l *Ledger) insert(ctx context.Context, col string, doc any) error {
	if _, err := l.DB.Collection(col).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: duplicate %s", models.ErrConflict, col)
		}
		return fmt.Errorf("insert %s: %w", col, err)
	}
	return nil
}

var (
	oldestFirst = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
)

// ---- cargo

func (l *Ledger) GetCargo(ctx context.Context, id string) (models.Cargo, error) {
	var c models.Cargo
	err := l.findOne(ctx, colCargo, bson.M{"_id": id}, &c, models.ErrCargoNotFound)
	return c, err
}

func (l *Ledger) InsertCargo(ctx context.Context, c models.Cargo) error {
	return l.insert(ctx, colCargo, c)
}

// ---- requests

func (l *Ledger) GetRequest(ctx context.Context, id string) (models.Request, error) {
	var r models.Request
	err := l.findOne(ctx, colRequests, bson.M{"_id": id}, &r, models.ErrRequestNotFound)
	return r, err
}

func (l *Ledger) InsertRequest(ctx context.Context, r models.Request) error {
	return l.insert(ctx, colRequests, r)
}

func (l *Ledger) CloseRequest(ctx context.Context, id string, at time.Time) error {
	res, err := l.DB.Collection(colRequests).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RequestOpen},
		bson.M{"$set": bson.M{"status": models.RequestClosed, "closedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("close request: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := l.GetRequest(ctx, id); err != nil {
		return err
	}
	return models.ErrRequestClosed
}

func (l *Ledger) FindRequestsBySourceOffer(ctx context.Context, offerID string) ([]models.Request, error) {
	if offerID == "" {
		return nil, nil
	}
	return findAll[models.Request](ctx, l.DB.Collection(colRequests),
		bson.M{"sourceOfferID": offerID}, options.Find().SetSort(newestFirst))
}

func (l *Ledger) FindRequestsBySourceOffers(ctx context.Context, offerIDs []string) (map[string][]models.Request, error) {
	out := make(map[string][]models.Request)
	if len(offerIDs) == 0 {
		return out, nil
	}
	rs, err := findAll[models.Request](ctx, l.DB.Collection(colRequests),
		bson.M{"sourceOfferID": bson.M{"$in": offerIDs}}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, err
	}
	for _, r := range rs {
		out[r.SourceOfferID] = append(out[r.SourceOfferID], r)
	}
	return out, nil
}

func (l *Ledger) ListRequestsByRequester(ctx context.Context, requesterID string, resale bool) ([]models.Request, error) {
	filter := bson.M{"requesterID": requesterID, "sourceOfferID": bson.M{"$exists": resale}}
	return findAll[models.Request](ctx, l.DB.Collection(colRequests), filter, options.Find().SetSort(newestFirst))
}

func (l *Ledger) ListExpiredResales(ctx context.Context, now time.Time) ([]models.Request, error) {
	filter := bson.M{
		"status":        models.RequestOpen,
		"sourceOfferID": bson.M{"$exists": true},
		"deadline":      bson.M{"$lt": now},
	}
	return findAll[models.Request](ctx, l.DB.Collection(colRequests), filter, options.Find().SetSort(oldestFirst))
}

// ---- offers

func (l *Ledger) GetOffer(ctx context.Context, id string) (models.Offer, error) {
	var o models.Offer
	err := l.findOne(ctx, colOffers, bson.M{"_id": id}, &o, models.ErrOfferNotFound)
	return o, err
}

func (l *Ledger) InsertOffer(ctx context.Context, o models.Offer) error {
	if err := l.insert(ctx, colOffers, o); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrDuplicateOffer
		}
		return err
	}
	return nil
}

func (l *Ledger) UpdateOfferStatus(ctx context.Context, id string, from, to models.OfferStatus, at time.Time) error {
	res, err := l.DB.Collection(colOffers).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	current, err := l.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: offer %s is %s, expected %s", ledger.ErrStaleStatus, id, current.Status, from)
}

func (l *Ledger) ListOffersByRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	return findAll[models.Offer](ctx, l.DB.Collection(colOffers),
		bson.M{"requestID": requestID}, options.Find().SetSort(oldestFirst))
}

func (l *Ledger) ListOffersByContainer(ctx context.Context, containerID string) ([]models.Offer, error) {
	return findAll[models.Offer](ctx, l.DB.Collection(colOffers),
		bson.M{"containerID": containerID}, options.Find().SetSort(oldestFirst))
}

func (l *Ledger) ListOffersByForwarder(ctx context.Context, forwarderID string) ([]models.Offer, error) {
	return findAll[models.Offer](ctx, l.DB.Collection(colOffers),
		bson.M{"forwarderID": forwarderID}, options.Find().SetSort(oldestFirst))
}

func (l *Ledger) HasOffer(ctx context.Context, requestID, forwarderID string) (bool, error) {
	n, err := l.DB.Collection(colOffers).CountDocuments(ctx,
		bson.M{"requestID": requestID, "forwarderID": forwarderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count offers: %w", err)
	}
	return n > 0, nil
}

func liveFilter() bson.M {
	return bson.M{"$nin": models.LiveExcluded}
}

func (l *Ledger) FindWinningOffer(ctx context.Context, requestID string) (*models.Offer, error) {
	live, err := findAll[models.Offer](ctx, l.DB.Collection(colOffers),
		bson.M{"requestID": requestID, "status": liveFilter()},
		options.Find().SetSort(oldestFirst).SetLimit(2))
	if err != nil {
		return nil, err
	}
	switch len(live) {
	case 0:
		return nil, nil
	case 1:
		return &live[0], nil
	default:
		return nil, fmt.Errorf("%w: request %s", models.ErrMultipleWinners, requestID)
	}
}

func (l *Ledger) FindWinningOffers(ctx context.Context, requestIDs []string) (map[string]models.Offer, []string, error) {
	if len(requestIDs) == 0 {
		return map[string]models.Offer{}, nil, nil
	}
	live, err := findAll[models.Offer](ctx, l.DB.Collection(colOffers),
		bson.M{"requestID": bson.M{"$in": requestIDs}, "status": liveFilter()},
		options.Find().SetSort(oldestFirst))
	if err != nil {
		return nil, nil, err
	}
	out, ambiguous := models.SplitWinners(live)
	return out, ambiguous, nil
}

func (l *Ledger) CountOffersByRequests(ctx context.Context, requestIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	if len(requestIDs) == 0 {
		return out, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"requestID": bson.M{"$in": requestIDs}}}},
		{{Key: "$group", Value: bson.M{"_id": "$requestID", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := l.DB.Collection(colOffers).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count offers: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		RequestID string `bson:"_id"`
		Count     int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode offer counts: %w", err)
	}
	for _, r := range rows {
		out[r.RequestID] = r.Count
	}
	return out, nil
}

// ---- containers

func (l *Ledger) GetContainer(ctx context.Context, id string) (models.Container, error) {
	var c models.Container
	err := l.findOne(ctx, colContainers, bson.M{"_id": id}, &c, models.ErrContainerNotFound)
	return c, err
}

func (l *Ledger) GetContainers(ctx context.Context, ids []string) (map[string]models.Container, error) {
	out := make(map[string]models.Container, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cs, err := findAll[models.Container](ctx, l.DB.Collection(colContainers), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		out[c.ID] = c
	}
	return out, nil
}

func (l *Ledger) InsertContainer(ctx context.Context, c models.Container) error {
	return l.insert(ctx, colContainers, c)
}

func (l *Ledger) UpdateContainerStatus(ctx context.Context, id string, from, to models.ContainerStatus, at time.Time) error {
	set := bson.M{"status": to}
	if to == models.ContainerCompleted {
		set["completedAt"] = at
	}
	res, err := l.DB.Collection(colContainers).UpdateOne(ctx,
		bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update container status: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	current, err := l.GetContainer(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: container %s is %s, expected %s", ledger.ErrStaleStatus, id, current.Status, from)
}

// ---- allocations

func (l *Ledger) GetAllocationByOffer(ctx context.Context, offerID string) (*models.ContainerCargo, error) {
	var a models.ContainerCargo
	err := l.DB.Collection(colContainerCargo).FindOne(ctx, bson.M{"offerID": offerID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	return &a, nil
}

func (l *Ledger) InsertAllocation(ctx context.Context, a models.ContainerCargo) error {
	if _, err := l.DB.Collection(colContainerCargo).InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAllocationExists
		}
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (l *Ledger) DeleteAllocationByOffer(ctx context.Context, offerID string) (bool, error) {
	res, err := l.DB.Collection(colContainerCargo).DeleteOne(ctx, bson.M{"offerID": offerID})
	if err != nil {
		return false, fmt.Errorf("delete allocation: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (l *Ledger) ListAllocationsByContainer(ctx context.Context, containerID string) ([]models.ContainerCargo, error) {
	return findAll[models.ContainerCargo](ctx, l.DB.Collection(colContainerCargo),
		bson.M{"containerID": containerID}, options.Find().SetSort(oldestFirst))
}
