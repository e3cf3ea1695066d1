package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"tableflow/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single lint finding. Path is a dotted path into the config,
// e.g. "tables[1].path" or "transform[0].options.types".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	knownFilters    = map[string]struct{}{"require": {}, "match": {}, "dedup": {}}
	knownTransforms = map[string]struct{}{"normalize": {}, "coerce": {}, "rename": {}, "select": {}}
	knownStorage    = map[string]struct{}{"memory": {}, "sqlite": {}, "postgres": {}, "mysql": {}, "mssql": {}, "mongo": {}}
	knownFormats    = map[string]struct{}{"csv": {}, "json": {}, "ndjson": {}}
	knownLevels     = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
)

// ValidatePipeline lints p without mutating it. Callers decide whether
// warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	if p.Collection != "" {
		if err := storage.ValidateCollection(p.Collection); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: "collection", Message: err.Error()})
		}
	}
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateTables(p.Tables)...)
	issues = append(issues, validateSteps("filter", p.Filter, knownFilters)...)
	issues = append(issues, validateSteps("transform", p.Transform, knownTransforms)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateHTTP(p.HTTP)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateLog(p.Log)...)
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.ConcurrencyLimit < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.concurrency_limit",
			Message:  "concurrency_limit must not be negative",
		})
	}
	if r.MaxParallelTables < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_parallel_tables",
			Message:  "max_parallel_tables must not be negative",
		})
	}
	return issues
}

func validateTables(ts []Table) []Issue {
	var issues []Issue
	if len(ts) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "tables",
			Message:  "at least one table is required",
		})
	}

	seen := make(map[string]int, len(ts))
	for i, t := range ts {
		p := fmt.Sprintf("tables[%d]", i)
		id := strings.TrimSpace(t.ID)
		switch {
		case id == "":
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".id", Message: "table id must not be empty"})
		default:
			if j, dup := seen[id]; dup {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     p + ".id",
					Message:  fmt.Sprintf("duplicate table id %q (also tables[%d])", id, j),
				})
			} else {
				seen[id] = i
			}
		}
		if strings.TrimSpace(t.Path) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p + ".path", Message: "table path must not be empty"})
			continue
		}

		if t.Format != "" {
			if _, ok := knownFormats[t.Format]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     p + ".format",
					Message:  fmt.Sprintf("unknown format %q; use csv, json or ndjson", t.Format),
				})
			}
		} else if !hasKnownExt(t.Path) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     p + ".format",
				Message:  "format is empty and cannot be detected from the path; remote sources fall back to Content-Type",
			})
		}
		if c := t.Options.String("comma", ""); len([]rune(c)) > 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p + ".options.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", c),
			})
		}
	}
	return issues
}

func hasKnownExt(p string) bool {
	if u, err := url.Parse(p); err == nil && u.Scheme != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".tsv", ".txt", ".json", ".ndjson", ".jsonl":
		return true
	}
	return false
}

func validateSteps(section string, steps []Step, known map[string]struct{}) []Issue {
	var issues []Issue
	for i, s := range steps {
		p := fmt.Sprintf("%s[%d].kind", section, i)
		if strings.TrimSpace(s.Kind) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: p, Message: section + " kind must not be empty"})
			continue
		}
		if _, ok := known[s.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p,
				Message:  fmt.Sprintf("unknown %s kind %q", section, s.Kind),
			})
		}
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}
	if _, ok := knownStorage[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if s.Kind != "memory" && strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	if s.Kind == "memory" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  "memory storage keeps records only for the life of the process",
		})
	}
	return issues
}

func validateHTTP(h HTTP) []Issue {
	var issues []Issue
	if h.TimeoutSeconds < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "http.timeout_seconds", Message: "timeout_seconds must not be negative"})
	}
	if h.InsecureSkipVerify {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "http.insecure_skip_verify", Message: "TLS certificate verification is disabled"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires pushgateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr, e.g. 127.0.0.1:8125",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; use none, pushgateway or datadog", m.Backend),
		})
	}
	return issues
}

func validateLog(l Log) []Issue {
	if l.Level == "" {
		return nil
	}
	if _, ok := knownLevels[strings.ToLower(l.Level)]; !ok {
		return []Issue{{
			Severity: SeverityWarning,
			Path:     "log.level",
			Message:  fmt.Sprintf("unknown log level %q; info is used", l.Level),
		}}
	}
	return nil
}
