package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"tableflow/internal/records"
)

// Document is a record ready to persist: its ID and its JSON encoding.
type Document struct {
	ID   string
	JSON []byte
}

// RowKey identifies a source row: the table it came from and its line. Two
// rows with equal content but different lines get different keys.
func RowKey(table string, line int) string {
	return strconv.Itoa(len(table)) + ":" + table + ":" + strconv.Itoa(line)
}

// Encode serializes rec and derives its document ID.
//
// With a non-empty key the ID is a hash of the key and the canonical JSON
// (encoding/json sorts map keys), so storing the same row again yields the
// same ID and the backend ignores it. An empty key gets a random ID: every
// unkeyed insert is a new document.
func Encode(key string, rec records.Record) (Document, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return Document{}, fmt.Errorf("storage: encode record: %w", err)
	}
	if key == "" {
		id := uuid.New()
		return Document{ID: hex.EncodeToString(id[:]), JSON: b}, nil
	}
	h := xxh3.New()
	_, _ = h.WriteString(key)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(b)
	sum := h.Sum128()
	return Document{ID: fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo), JSON: b}, nil
}

// InsertRow stores rec under key when the sink supports keyed inserts, and
// falls back to a plain Insert otherwise.
func InsertRow(ctx context.Context, s Sink, key string, rec records.Record, collection string) error {
	if ks, ok := s.(KeyedSink); ok && key != "" {
		return ks.InsertKeyed(ctx, key, rec, collection)
	}
	return s.Insert(ctx, rec, collection)
}

// Matches reports whether every key of filter is present in doc with an equal
// JSON representation. Backends without native filtering use it for Find.
func Matches(doc, filter records.Record) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		wb, err1 := json.Marshal(want)
		gb, err2 := json.Marshal(got)
		if err1 != nil || err2 != nil || string(wb) != string(gb) {
			return false
		}
	}
	return true
}
