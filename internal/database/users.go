// internal/database/users.go
package database

import (
	"context"
	"errors"
	"fmt"

	"freight-resale-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Users is the users collection.
type Users struct {
	DB *mongo.Database
}

func NewUsers(db *mongo.Database) *Users {
	return &Users{DB: db}
}

func (u *Users) find(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	err := u.DB.Collection(colUsers).FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (u *Users) FindByID(ctx context.Context, id string) (models.User, error) {
	return u.find(ctx, bson.M{"_id": id})
}

func (u *Users) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return u.find(ctx, bson.M{"email": email})
}

func (u *Users) Insert(ctx context.Context, user models.User) error {
	if _, err := u.DB.Collection(colUsers).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Notifications is the notifications collection.
type Notifications struct {
	DB *mongo.Database
}

func NewNotifications(db *mongo.Database) *Notifications {
	return &Notifications{DB: db}
}

func (n *Notifications) Save(ctx context.Context, msg models.Notification) error {
	if _, err := n.DB.Collection(colNotifications).InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (n *Notifications) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	out, err := findAll[models.Notification](ctx, n.DB.Collection(colNotifications), bson.M{"userID": userID}, opts)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Notification{}
	}
	return out, nil
}

func (n *Notifications) MarkRead(ctx context.Context, userID, id string) error {
	res, err := n.DB.Collection(colNotifications).UpdateOne(ctx,
		bson.M{"_id": id, "userID": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}
