package mysql

import (
	"context"

	"tableflow/internal/storage"
	"tableflow/internal/storage/sqldoc"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

var _ storage.KeyedSink = (*wrappedRepo)(nil)

// init registers the "mysql" backend with the factory.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Store: r, closeFn: closeFn}, nil
	})
}

// wrappedRepo adapts *sqldoc.Store to storage.Sink and provides Close.
type wrappedRepo struct {
	*sqldoc.Store
	closeFn func()
}

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() error {
	w.closeFn()
	return nil
}
