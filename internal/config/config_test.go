package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Pipeline decoding tests
// -----------------------------------------------------------------------------

const sampleYAML = `
job: nightly-import
collection: people
runtime: { concurrency_limit: 8, max_parallel_tables: 2 }
tables:
  - { id: t1, path: data/t1.csv, options: { comma: ";", trim_space: true, header_map: { "Full Name": name } } }
  - id: t2
    path: https://example.com/t2
    format: json
    options: { allow_arrays: true }
filter:
  - { kind: require, options: { fields: [id] } }
transform:
  - { kind: normalize }
  - { kind: coerce, options: { types: { age: int }, strict: true } }
storage: { kind: mongo, dsn: "mongodb://localhost:27017", database: tf }
http: { timeout_seconds: 5, max_retries: 2, headers: { Authorization: "Bearer x" } }
metrics: { backend: pushgateway, pushgateway_url: "http://localhost:9091" }
log: { level: debug, file: run.log }
`

const sampleJSON = `{
  "job": "nightly-import",
  "collection": "people",
  "runtime": { "concurrency_limit": 8, "max_parallel_tables": 2 },
  "tables": [
    { "id": "t1", "path": "data/t1.csv", "options": { "comma": ";", "trim_space": true, "header_map": { "Full Name": "name" } } },
    { "id": "t2", "path": "https://example.com/t2", "format": "json", "options": { "allow_arrays": true } }
  ],
  "filter": [ { "kind": "require", "options": { "fields": ["id"] } } ],
  "transform": [
    { "kind": "normalize" },
    { "kind": "coerce", "options": { "types": { "age": "int" }, "strict": true } }
  ],
  "storage": { "kind": "mongo", "dsn": "mongodb://localhost:27017", "database": "tf" },
  "http": { "timeout_seconds": 5, "max_retries": 2, "headers": { "Authorization": "Bearer x" } },
  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://localhost:9091" },
  "log": { "level": "debug", "file": "run.log" }
}`

/*
TestDecode_YAMLAndJSONAgree decodes the same pipeline from both formats and
checks that typed option access gives identical answers, even though YAML
numbers arrive as int and JSON numbers as float64.
*/
func TestDecode_YAMLAndJSONAgree(t *testing.T) {
	y, err := Decode([]byte(sampleYAML), ".yaml")
	if err != nil {
		t.Fatalf("Decode(yaml): %v", err)
	}
	j, err := Decode([]byte(sampleJSON), ".json")
	if err != nil {
		t.Fatalf("Decode(json): %v", err)
	}

	for name, p := range map[string]Pipeline{"yaml": y, "json": j} {
		t.Run(name, func(t *testing.T) {
			if p.Job != "nightly-import" || p.Collection != "people" {
				t.Fatalf("job/collection = %q/%q", p.Job, p.Collection)
			}
			if p.Runtime.ConcurrencyLimit != 8 || p.Runtime.MaxParallelTables != 2 {
				t.Fatalf("runtime = %+v", p.Runtime)
			}
			if len(p.Tables) != 2 || p.Tables[1].Format != "json" {
				t.Fatalf("tables = %+v", p.Tables)
			}
			opt := p.Tables[0].Options
			if got := opt.Rune("comma", ','); got != ';' {
				t.Errorf("comma = %q; want ';'", got)
			}
			if !opt.Bool("trim_space", false) {
				t.Error("trim_space = false; want true")
			}
			if got := opt.StringMap("header_map"); got["Full Name"] != "name" {
				t.Errorf("header_map = %v", got)
			}
			if !p.Tables[1].Options.Bool("allow_arrays", false) {
				t.Error("allow_arrays = false; want true")
			}
			if got := p.Filter[0].Options.StringSlice("fields"); !reflect.DeepEqual(got, []string{"id"}) {
				t.Errorf("filter fields = %v", got)
			}
			if got := p.Transform[0].Options.StringSlice("fields"); got != nil {
				t.Errorf("step without options: fields = %v; want nil", got)
			}
			if got := p.Transform[1].Options.StringMap("types"); got["age"] != "int" {
				t.Errorf("coerce types = %v", got)
			}
			if p.Storage.Database != "tf" || p.HTTP.MaxRetries != 2 || p.HTTP.Headers["Authorization"] != "Bearer x" {
				t.Errorf("storage/http = %+v / %+v", p.Storage, p.HTTP)
			}
			if p.Metrics.PushgatewayURL == "" || p.Log.File != "run.log" {
				t.Errorf("metrics/log = %+v / %+v", p.Metrics, p.Log)
			}
		})
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	if _, err := Decode([]byte("job: x\ncolections: y\n"), ".yml"); err == nil {
		t.Error("yaml with misspelled key: want error")
	}
	if _, err := Decode([]byte(`{"job":"x","colections":"y"}`), ".json"); err == nil {
		t.Error("json with misspelled key: want error")
	}
}

func TestOptions_Defaults(t *testing.T) {
	var o Options
	if o.String("k", "d") != "d" || o.Int("k", 7) != 7 || o.Bool("k", true) != true || o.Rune("k", ',') != ',' {
		t.Fatal("nil Options should return defaults")
	}
	if o.StringSlice("k") != nil || len(o.StringMap("k")) != 0 || o.Any("k") != nil || o.Has("k") {
		t.Fatal("nil Options should be empty")
	}
	o = Options{"n": int64(3), "s": 1}
	if o.Int("n", 0) != 3 {
		t.Errorf("Int(int64) = %d; want 3", o.Int("n", 0))
	}
	if o.String("s", "d") != "d" {
		t.Error("String on non-string should return default")
	}
}

// -----------------------------------------------------------------------------
// Load, env overrides, defaults
// -----------------------------------------------------------------------------

func writeConfig(tb testing.TB, name, body string) string {
	tb.Helper()
	p := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		tb.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_EnvOverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, "p.yaml", "job: j\ntables: [{id: a, path: a.csv}]\nstorage: {kind: sqlite, dsn: file:a.db}\n")

	t.Setenv(EnvConcurrency, "16")
	t.Setenv(EnvStorageDSN, "file:override.db")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvCollection, "")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Runtime.ConcurrencyLimit != 16 {
		t.Errorf("concurrency = %d; want 16 from env", p.Runtime.ConcurrencyLimit)
	}
	if p.Storage.DSN != "file:override.db" {
		t.Errorf("dsn = %q; want env override", p.Storage.DSN)
	}
	if p.Log.Level != "warn" {
		t.Errorf("log level = %q; want warn", p.Log.Level)
	}
	if p.Collection != DefaultCollection {
		t.Errorf("collection = %q; want default %q", p.Collection, DefaultCollection)
	}
	if p.Metrics.Backend != "none" {
		t.Errorf("metrics backend = %q; want none", p.Metrics.Backend)
	}
}

func TestLoad_InvalidEnvIntIgnored(t *testing.T) {
	path := writeConfig(t, "p.json", `{"job":"j","runtime":{"concurrency_limit":3}}`)
	t.Setenv(EnvConcurrency, "lots")
	t.Setenv(EnvCollection, "from_env")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Runtime.ConcurrencyLimit != 3 {
		t.Errorf("concurrency = %d; want file value 3", p.Runtime.ConcurrencyLimit)
	}
	if p.Collection != "from_env" {
		t.Errorf("collection = %q; want from_env", p.Collection)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: want error")
	}
	bad := writeConfig(t, "bad.json", `{"job":`)
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("malformed: err = %v; want error naming the file", err)
	}
}
