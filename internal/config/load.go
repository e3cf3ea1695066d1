package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment overrides applied by Load after decoding.
const (
	EnvConcurrency = "TABLEFLOW_CONCURRENCY"
	EnvCollection  = "TABLEFLOW_COLLECTION"
	EnvStorageDSN  = "TABLEFLOW_STORAGE_DSN"
	EnvLogLevel    = "TABLEFLOW_LOG_LEVEL"
)

// Load reads a pipeline file, picking YAML for .yaml/.yml and JSON
// otherwise, then applies environment overrides and defaults. Unknown keys
// are rejected so typos surface early.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	p, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	p.ApplyEnv()
	p.ApplyDefaults()
	return p, nil
}

// Decode parses b as YAML when ext is .yaml or .yml and as JSON otherwise.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, err
		}
	}
	return p, nil
}

// ApplyEnv overrides fields from TABLEFLOW_* variables when they are set.
func (p *Pipeline) ApplyEnv() {
	p.Runtime.ConcurrencyLimit = pickInt(getenvInt(EnvConcurrency, 0), p.Runtime.ConcurrencyLimit)
	if v := os.Getenv(EnvCollection); v != "" {
		p.Collection = v
	}
	if v := os.Getenv(EnvStorageDSN); v != "" {
		p.Storage.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		p.Log.Level = v
	}
}

// ApplyDefaults fills unset optional fields.
func (p *Pipeline) ApplyDefaults() {
	if p.Collection == "" {
		p.Collection = DefaultCollection
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
}

// getenvInt returns the integer value of k, or def when unset or invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
