// internal/database/mongo.go
package database

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colCargo          = "cargo"
	colRequests       = "requests"
	colOffers         = "offers"
	colContainers     = "containers"
	colContainerCargo = "container_cargo"
	colUsers          = "users"
	colNotifications  = "notifications"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Registry returns the default bson registry extended with a decimal codec.
// Decimals are stored as strings so prices keep their exact scale.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, v reflect.Value) error {
	if !v.IsValid() || v.Type() != decimalType {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{decimalType}, Received: v}
	}
	return vw.WriteString(v.Interface().(decimal.Decimal).String())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, v reflect.Value) error {
	if !v.CanSet() || v.Type() != decimalType {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{decimalType}, Received: v}
	}
	switch vr.Type() {
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("decode decimal %q: %w", s, err)
		}
		v.Set(reflect.ValueOf(d))
		return nil
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
		v.Set(reflect.ValueOf(decimal.Zero))
		return nil
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}
}

// Connect dials MongoDB and pings the primary. Transactions need a replica set.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(Registry()))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(dbName), nil
}

// EnsureIndexes creates the indexes the ledger relies on. The unique offerID
// index on container_cargo backs the one-allocation-per-offer rule.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		colRequests: {
			{Keys: bson.D{{Key: "sourceOfferID", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "requesterID", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deadline", Value: 1}}},
		},
		colOffers: {
			{Keys: bson.D{{Key: "requestID", Value: 1}, {Key: "forwarderID", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "containerID", Value: 1}}},
			{Keys: bson.D{{Key: "forwarderID", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		colContainerCargo: {
			{Keys: bson.D{{Key: "offerID", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "containerID", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "userID", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for col, models := range indexes {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}
