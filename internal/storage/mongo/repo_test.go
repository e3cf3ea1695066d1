package mongo

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"tableflow/internal/records"
	"tableflow/internal/storage"
)

func TestNewRepository_RejectsNonMongoURI(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Config{URI: "postgres://x"})
	if err == nil || !strings.Contains(err.Error(), "mongodb://") {
		t.Fatalf("NewRepository(postgres uri) error = %v", err)
	}
}

// TestBSONRoundTrip checks that a record survives the JSON to BSON to JSON
// conversion and that _id carries the document ID without leaking back.
func TestBSONRoundTrip(t *testing.T) {
	rec := records.Record{"name": "alice", "age": 30, "score": 1.5, "tags": []any{"a", "b"}, "nil": nil}
	doc, err := storage.Encode(storage.RowKey("people", 2), rec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := toBSON(doc)
	if err != nil {
		t.Fatalf("toBSON: %v", err)
	}
	if m["_id"] != doc.ID {
		t.Fatalf("_id = %v; want %s", m["_id"], doc.ID)
	}
	if _, ok := m["age"].(int32); !ok {
		t.Errorf("age stored as %T; want int32", m["age"])
	}

	back, err := fromBSON(bson.M(m))
	if err != nil {
		t.Fatalf("fromBSON: %v", err)
	}
	if _, ok := back["_id"]; ok {
		t.Error("_id leaked into the decoded record")
	}
	if back["name"] != "alice" || back["age"] != float64(30) || back["score"] != 1.5 {
		t.Errorf("round trip = %v", back)
	}
}

func TestMongoStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() {}, nil
	}

	sink, err := storage.New(context.Background(), storage.Config{
		Kind:     "mongo",
		DSN:      "mongodb://localhost:27017",
		Database: "etl",
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	defer sink.Close()
	if gotCfg.URI != "mongodb://localhost:27017" || gotCfg.Database != "etl" {
		t.Fatalf("hook cfg = %+v", gotCfg)
	}
}
