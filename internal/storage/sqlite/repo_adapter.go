// Package sqlite wires the SQLite backend into the storage factory;
// registration happens in init.
package sqlite

import (
	"context"

	"tableflow/internal/storage"
	"tableflow/internal/storage/sqldoc"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *sqldoc.Store to storage.Sink, routing Close through the
// cleanup function returned by NewRepository.
type wrappedRepo struct {
	*sqldoc.Store
	closeFn func()
}

// Close implements storage.Sink.
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
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Store: r, closeFn: closeFn}, nil
	})
}
