// Package loader turns CSV and JSON sources (local files or HTTP URLs) into
// records.Table values for the pipeline.
//
// Header names are normalized to lower snake_case ASCII so transforms and
// storage see stable keys regardless of accents, BOMs or spacing in the
// source. All load failures wrap pipeline.ErrLoad.
package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"tableflow/internal/records"
)

// Format names an input encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"   // one object, an array of objects, or a stream of objects
	FormatNDJSON Format = "ndjson" // one object per line
)

// Options controls decoding. The zero value decodes comma-separated CSV with
// a header row, or JSON detected from the file extension.
type Options struct {
	// Format overrides detection from the path extension.
	Format Format

	// Comma is the CSV field delimiter. Zero means ',' (or '\t' for .tsv).
	Comma rune

	// TrimSpace trims surrounding whitespace from CSV values.
	TrimSpace bool

	// LazyQuotes relaxes CSV quote handling for messy exports.
	LazyQuotes bool

	// HeaderMap maps raw source header names to field names, bypassing
	// normalization for those columns.
	HeaderMap map[string]string

	// AllowArrays accepts a top-level JSON array of objects.
	AllowArrays bool
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// DetectFormat picks a format from the extension of p, ignoring any URL query.
func DetectFormat(p string) (Format, error) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".ndjson", ".jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("cannot detect format of %q; set format explicitly", p)
	}
}

func (o Options) resolve(name string) (Options, error) {
	if o.Format == "" {
		f, err := DetectFormat(name)
		if err != nil {
			return o, err
		}
		o.Format = f
	}
	if o.Format == FormatCSV && o.Comma == 0 && strings.EqualFold(path.Ext(name), ".tsv") {
		o.Comma = '\t'
	}
	return o, nil
}

// Decode reads a whole table from r. name is used for format detection and
// error messages; the table ID is left for the caller to set.
func Decode(name string, r io.Reader, opt Options) (records.Table, error) {
	opt, err := opt.resolve(name)
	if err != nil {
		return records.Table{}, err
	}
	switch opt.Format {
	case FormatCSV:
		return decodeCSV(r, opt)
	case FormatJSON, FormatNDJSON:
		return decodeJSON(r, opt)
	default:
		return records.Table{}, fmt.Errorf("unsupported format %q", opt.Format)
	}
}

func decodeCSV(r io.Reader, opt Options) (records.Table, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true

	raw, err := cr.Read()
	if err == io.EOF {
		return records.Table{}, errors.New("csv: empty input, no header row")
	}
	if err != nil {
		return records.Table{}, fmt.Errorf("csv: read header: %w", err)
	}
	h, err := records.NewHeader(normalizeHeaders(raw, opt.HeaderMap))
	if err != nil {
		return records.Table{}, fmt.Errorf("csv: %w", err)
	}

	var rows []records.Row
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records.Table{}, fmt.Errorf("csv: data line %d: %w", line, err)
		}
		vals := make([]any, len(rec))
		for i, v := range rec {
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			vals[i] = emptyToNil(v)
		}
		row, err := records.NewRow(h, line, vals)
		if err != nil {
			return records.Table{}, fmt.Errorf("csv: %w", err)
		}
		rows = append(rows, row)
	}
	return records.Table{Header: h, Rows: rows}, nil
}

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func decodeJSON(r io.Reader, opt Options) (records.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return records.Table{}, fmt.Errorf("json: read: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	// UseNumber so integers survive as int64 instead of float64.
	dec.UseNumber()

	var objs []map[string]any
	for n := 0; ; n++ {
		var root any
		if err := dec.Decode(&root); err == io.EOF {
			break
		} else if err != nil {
			return records.Table{}, fmt.Errorf("json: value %d: %w", n+1, err)
		}
		switch v := root.(type) {
		case map[string]any:
			objs = append(objs, v)
		case []any:
			if !opt.AllowArrays || opt.Format == FormatNDJSON {
				return records.Table{}, fmt.Errorf("json: top-level array encountered but allow_arrays=false")
			}
			for i, elem := range v {
				obj, ok := elem.(map[string]any)
				if !ok {
					return records.Table{}, fmt.Errorf("json: element %d in array is not an object", i)
				}
				objs = append(objs, obj)
			}
		default:
			return records.Table{}, fmt.Errorf("json: unsupported top-level JSON type %T", v)
		}
	}

	// Objects carry no column order; the header is the sorted union of keys.
	seen := map[string]string{}
	var names []string
	for _, o := range objs {
		for k := range o {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = ""
			names = append(names, k)
		}
	}
	sort.Strings(names)
	fields := normalizeHeaders(names, opt.HeaderMap)
	for i, k := range names {
		seen[k] = fields[i]
	}

	recs := make([]records.Record, len(objs))
	for i, o := range objs {
		rec := make(records.Record, len(o))
		for k, v := range o {
			rec[seen[k]] = fromJSON(v)
		}
		recs[i] = rec
	}
	return records.FromRecords("", fields, recs)
}

// fromJSON maps json.Number to int64 when exact, float64 otherwise, and
// recurses into containers.
func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return i
		}
		f, err := x.Float64()
		if err != nil {
			return string(x)
		}
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = fromJSON(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = fromJSON(e)
		}
		return x
	default:
		return v
	}
}

// normalizeHeaders produces unique field names: HeaderMap entries win, the
// rest go through NormalizeFieldName. Collisions get a numeric suffix.
func normalizeHeaders(h []string, headerMap map[string]string) []string {
	res := make([]string, len(h))
	used := make(map[string]int, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		name, ok := headerMap[c]
		if !ok {
			name = NormalizeFieldName(c)
		}
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		used[name]++
		res[i] = name
	}
	return res
}

// NormalizeFieldName lowercases s, strips accents and maps separators to
// single underscores, e.g. "Město Name" becomes "mesto_name". An empty
// result becomes "col".
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Decompose, remove nonspacing marks (accents), recompose.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.' || r == '/':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		default:
			// drop anything else
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}
