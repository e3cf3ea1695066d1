package builtin

import (
	"fmt"
	"strings"
	"sync"

	"tableflow/internal/records"
)

// DeDup drops rows whose business key was already seen in the same table,
// keeping the first occurrence. The key is built from Keys as strings (nil
// becomes "\x00"). Rows missing a key field are kept and not tracked.
//
// Tables are told apart by their records.Header, which every loaded table has
// its own of, so one DeDup shared by a run never lets one table's rows
// suppress another's. Filtering runs in row order, so the earliest line wins.
type DeDup struct {
	Keys []string

	mu   sync.Mutex
	seen map[*records.Header]map[string]struct{}
}

// NewDeDup returns a DeDup over keys.
func NewDeDup(keys []string) (*DeDup, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("dedup: at least one key field is required")
	}
	return &DeDup{Keys: keys, seen: make(map[*records.Header]map[string]struct{})}, nil
}

// Keep implements transformer.Filter.
func (d *DeDup) Keep(row records.Row) (bool, error) {
	key, ok := d.keyOf(row)
	if !ok {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	scope, ok := d.seen[row.Header()]
	if !ok {
		scope = make(map[string]struct{})
		d.seen[row.Header()] = scope
	}
	if _, dup := scope[key]; dup {
		return false, nil
	}
	scope[key] = struct{}{}
	return true, nil
}

// Seen returns the number of distinct keys recorded, summed over tables.
func (d *DeDup) Seen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, scope := range d.seen {
		n += len(scope)
	}
	return n
}

func (d *DeDup) keyOf(row records.Row) (string, bool) {
	var b strings.Builder
	for i, k := range d.Keys {
		v, ok := row.Get(k)
		if !ok {
			return "", false
		}
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if v == nil {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(asString(v))
	}
	return b.String(), true
}
