// Package mongo backs the Remote Collection Store with one MongoDB
// collection per domain collection. Documents keep the JSON entity under a
// "data" field so the store never needs to know entity shapes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"royalbakes/backend/internal/remote"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri string, dbName string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Store{client: client, db: client.Database(dbName)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return unavailable(err)
	}
	return nil
}

type document struct {
	ID        string    `bson:"_id"`
	Data      bson.Raw  `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d document) record() (remote.Record, error) {
	data, err := bson.MarshalExtJSON(d.Data, false, false)
	if err != nil {
		return remote.Record{}, fmt.Errorf("mongo: decode document %s: %w", d.ID, err)
	}
	return remote.Record{ID: d.ID, Data: data, UpdatedAt: d.UpdatedAt}, nil
}

func filterQuery(filter remote.Filter) bson.M {
	if filter.Empty() {
		return bson.M{}
	}
	field := "data." + filter.Field
	if filter.Null {
		// Matches both explicit null and absent fields, like the
		// original endTime-is-null query.
		return bson.M{field: nil}
	}
	return bson.M{field: bson.M{"$ne": nil}}
}

func (s *Store) QueryAll(ctx context.Context, collection string) ([]remote.Record, error) {
	return s.Query(ctx, collection, remote.Filter{})
}

func (s *Store) Query(ctx context.Context, collection string, filter remote.Filter) ([]remote.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, filterQuery(filter), opts)
	if err != nil {
		return nil, unavailable(err)
	}
	defer cursor.Close(ctx)

	records := make([]remote.Record, 0, 64)
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, unavailable(err)
		}
		rec, err := doc.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, unavailable(err)
	}

	return records, nil
}

func (s *Store) GetSingleton(ctx context.Context, collection string, filter remote.Filter) (*remote.Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	var doc document
	err := s.db.Collection(collection).FindOne(ctx, filterQuery(filter), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, remote.ErrNotFound
		}
		return nil, unavailable(err)
	}
	rec, err := doc.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Upsert(ctx context.Context, collection string, rec remote.Record) (*remote.Record, error) {
	var data bson.Raw
	if err := bson.UnmarshalExtJSON(rec.Data, false, &data); err != nil {
		return nil, fmt.Errorf("mongo: encode document %s: %w", rec.ID, err)
	}

	rec.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{"data": data, "updated_at": rec.UpdatedAt}}
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": rec.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, unavailable(err)
	}
	return &rec, nil
}

func (s *Store) DeleteByID(ctx context.Context, collection string, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
}
