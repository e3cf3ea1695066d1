// Package mongo implements a MongoDB storage.Sink with the v2 driver. The
// document ID becomes _id, so a duplicate-key error on a keyed insert means
// the row is already stored and is reported as success.
package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"tableflow/internal/records"
	"tableflow/internal/storage"
)

// DefaultDatabase is used when neither the config nor the URI names one.
const DefaultDatabase = "tableflow"

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Repository is a MongoDB-backed storage.Sink.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewRepository connects, pings and returns a Repository plus a close
// function that disconnects the client.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return nil, nil, fmt.Errorf("mongo: URI must start with mongodb:// or mongodb+srv://")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	name := cfg.Database
	if name == "" {
		name = DefaultDatabase
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
	return &Repository{client: client, db: client.Database(name)}, closeFn, nil
}

// toBSON converts the canonical JSON form of a record into a BSON document.
// Relaxed extended JSON maps integers to int32/int64 and the rest to double.
func toBSON(doc storage.Document) (bson.M, error) {
	var m bson.M
	if err := bson.UnmarshalExtJSON(doc.JSON, false, &m); err != nil {
		return nil, fmt.Errorf("mongo: convert document: %w", err)
	}
	if m == nil {
		m = bson.M{}
	}
	m["_id"] = doc.ID
	return m, nil
}

// fromBSON strips _id and converts a stored document back into a record.
func fromBSON(m bson.M) (records.Record, error) {
	delete(m, "_id")
	b, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode document: %w", err)
	}
	var rec records.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("mongo: decode document: %w", err)
	}
	return rec, nil
}

// Insert implements storage.Sink.
func (r *Repository) Insert(ctx context.Context, rec records.Record, collection string) error {
	return r.insert(ctx, "", rec, collection)
}

// InsertKeyed implements storage.KeyedSink.
func (r *Repository) InsertKeyed(ctx context.Context, key string, rec records.Record, collection string) error {
	return r.insert(ctx, key, rec, collection)
}

func (r *Repository) insert(ctx context.Context, key string, rec records.Record, collection string) error {
	if err := storage.ValidateCollection(collection); err != nil {
		return err
	}
	doc, err := storage.Encode(key, rec)
	if err != nil {
		return err
	}
	m, err := toBSON(doc)
	if err != nil {
		return err
	}
	if _, err := r.db.Collection(collection).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("mongo: insert into %s: %w", collection, err)
	}
	return nil
}

// Find implements storage.Finder.
func (r *Repository) Find(ctx context.Context, filter records.Record, collection string) ([]records.Record, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	q := bson.M{}
	for k, v := range filter {
		q[k] = v
	}
	cur, err := r.db.Collection(collection).Find(ctx, q, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: find in %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("mongo: read cursor: %w", err)
	}
	out := make([]records.Record, 0, len(raw))
	for _, m := range raw {
		rec, err := fromBSON(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
