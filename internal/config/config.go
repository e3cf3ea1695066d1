// Package config defines the configuration model for a tableflow run. A
// pipeline file (JSON or YAML) names the input tables, the filter and
// transform steps applied to every row, the storage backend, and the
// metrics and logging settings.
//
// Example (YAML):
//
//	job: nightly-import
//	collection: processed_data
//	runtime: { concurrency_limit: 8, max_parallel_tables: 0 }
//	tables:
//	  - { id: t1, path: data/your_data1.csv }
//	filter:    [ { kind: require, options: { fields: [id] } } ]
//	transform: [ { kind: normalize }, { kind: coerce, options: { types: { age: int } } } ]
//	storage:   { kind: sqlite, dsn: "file:tableflow.db" }
package config

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// DefaultCollection is used when the pipeline names no collection.
const DefaultCollection = "processed_data"

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels metrics and log lines for this pipeline.
	Job string `json:"job" yaml:"job"`

	// Collection is the destination collection (table) for stored records.
	Collection string `json:"collection" yaml:"collection"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Tables lists the inputs. Each one becomes an independent unit of work.
	Tables []Table `json:"tables" yaml:"tables"`

	// Filter steps are ANDed into the row predicate, in order.
	Filter []Step `json:"filter" yaml:"filter"`

	// Transform steps are chained into the row transform, in order.
	Transform []Step `json:"transform" yaml:"transform"`

	Storage Storage `json:"storage" yaml:"storage"`
	HTTP    HTTP    `json:"http" yaml:"http"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	Log     Log     `json:"log" yaml:"log"`
}

// RuntimeConfig bounds concurrency.
type RuntimeConfig struct {
	// ConcurrencyLimit caps row tasks in flight per table. Zero means the
	// number of CPUs.
	ConcurrencyLimit int `json:"concurrency_limit" yaml:"concurrency_limit"`

	// MaxParallelTables caps tables processed at once. Zero means no cap.
	MaxParallelTables int `json:"max_parallel_tables" yaml:"max_parallel_tables"`
}

// Table is one input source.
type Table struct {
	ID string `json:"id" yaml:"id"`

	// Path is a local file path or an http(s) URL.
	Path string `json:"path" yaml:"path"`

	// Format is csv, json or ndjson. Empty means detect from the extension.
	Format string `json:"format" yaml:"format"`

	// Options are decoder settings: comma, trim_space, lazy_quotes,
	// header_map, allow_arrays.
	Options Options `json:"options" yaml:"options"`
}

// Step is one filter or transform step. Kind selects the implementation and
// Options is interpreted by it.
type Step struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Storage selects the sink records are written to.
type Storage struct {
	// Kind is a registered backend: memory, sqlite, postgres, mysql, mssql, mongo.
	Kind string `json:"kind" yaml:"kind"`

	DSN string `json:"dsn" yaml:"dsn"`

	// Database is used by backends whose DSN does not name one (mongo).
	Database string `json:"database" yaml:"database"`
}

// HTTP configures downloads of remote tables.
type HTTP struct {
	TimeoutSeconds     int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries         int               `json:"max_retries" yaml:"max_retries"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Headers            map[string]string `json:"headers" yaml:"headers"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is none, pushgateway or datadog.
	Backend        string   `json:"backend" yaml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" yaml:"datadog_addr"`
	Tags           []string `json:"tags" yaml:"tags"`
}

// Log configures logging.
type Log struct {
	Level string `json:"level" yaml:"level"`

	// File, when set, receives JSON log lines in addition to stderr.
	File string `json:"file" yaml:"file"`
}

// Options fetches typed values from free-form step and table option maps.
// It performs minimal coercion and returns def when a key is absent or of an
// unexpected type. JSON decodes numbers as float64 and YAML as int; both are
// accepted.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def. Useful for
// single-character settings such as a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns the string-valued entries of an object at key. It
// returns an empty map when the key is missing or not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns the strings of an array at key, or nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// UnmarshalJSON decodes a missing or null options object to an empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML is the YAML counterpart of UnmarshalJSON.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
