package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tableflow/internal/pipeline"
	"tableflow/internal/records"
)

// Source describes where a table comes from. Location is a filesystem path
// or an http(s) URL.
type Source struct {
	Location string
	Options  Options
}

func (s Source) remote() bool {
	l := strings.ToLower(s.Location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Catalog resolves table IDs to sources and loads them. It implements
// pipeline.TableLoader. IDs not in the catalog are treated as locations
// with default options, so a bare path or URL also works.
type Catalog struct {
	sources map[string]Source
	http    *HTTPFetcher
	log     *slog.Logger
}

var _ pipeline.TableLoader = (*Catalog)(nil)

// NewCatalog returns a Catalog over sources. fetcher may be nil, in which
// case a default HTTPFetcher is used for remote sources.
func NewCatalog(sources map[string]Source, fetcher *HTTPFetcher, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(HTTPConfig{})
	}
	cp := make(map[string]Source, len(sources))
	for k, v := range sources {
		cp[k] = v
	}
	return &Catalog{sources: cp, http: fetcher, log: log}
}

// IDs returns the catalog's table IDs in no particular order.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.sources))
	for id := range c.sources {
		out = append(out, id)
	}
	return out
}

// Load implements pipeline.TableLoader.
func (c *Catalog) Load(ctx context.Context, id string) (records.Table, error) {
	src, ok := c.sources[id]
	if !ok {
		src = Source{Location: id}
	}

	var (
		t   records.Table
		err error
	)
	if src.remote() {
		t, err = c.http.Load(ctx, src.Location, src.Options)
	} else {
		t, err = LoadFile(ctx, src.Location, src.Options)
	}
	if err != nil {
		return records.Table{}, fmt.Errorf("%w: %s: %w", pipeline.ErrLoad, id, err)
	}
	t.ID = id
	c.log.Debug("table loaded", "table", id, "location", src.Location, "rows", t.Len(), "fields", t.Header.Len())
	return t, nil
}

// LoadFile reads and decodes a local file.
func LoadFile(ctx context.Context, path string, opt Options) (records.Table, error) {
	if err := ctx.Err(); err != nil {
		return records.Table{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return records.Table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(path, contextReader{ctx: ctx, r: f}, opt)
}

// contextReader stops a long decode once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
