package mongo

import (
	"context"

	"tableflow/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close disconnects the client.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

var (
	_ storage.KeyedSink = (*wrappedRepo)(nil)
	_ storage.Finder    = (*wrappedRepo)(nil)
)

func init() {
	storage.Register("mongo", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{URI: cfg.DSN, Database: cfg.Database})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}
