package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"golang.org/x/exp/slog"
)

// DB wraps the badger key-value store
type DB struct {
	*badgerdb.DB
	logger *slog.Logger
}

// NewDB opens (or creates) a badger store in dir
func NewDB(dir string, logger *slog.Logger) (*DB, error) {
	if dir == "" {
		return nil, errors.New("badger directory is required")
	}
	return open(badgerdb.DefaultOptions(dir), logger)
}

// NewInMemoryDB opens a badger store that keeps everything in memory
func NewInMemoryDB(logger *slog.Logger) (*DB, error) {
	return open(badgerdb.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badgerdb.Options, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("store", "badger"))

	db, err := badgerdb.Open(opts.WithLogger(&badgerLogger{logger: logger}))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &DB{DB: db, logger: logger}, nil
}

// Close closes the store
func (db *DB) Close() error {
	return db.DB.Close()
}

// Ping reports whether the store still accepts reads
func (db *DB) Ping(ctx context.Context) error {
	if db.DB.IsClosed() {
		return errors.New("badger store is closed")
	}
	return db.DB.View(func(txn *badgerdb.Txn) error { return nil })
}

// StartGC runs value log garbage collection every interval until ctx is done.
// Expired entries only free disk space once their value log file is rewritten.
func (db *DB) StartGC(ctx context.Context, interval time.Duration) {
	if db.DB.Opts().InMemory {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rewritten := 0
				for db.DB.RunValueLogGC(0.5) == nil {
					rewritten++
				}
				if rewritten > 0 {
					db.logger.Info("value log gc rewrote files", slog.Int("count", rewritten))
				}
			}
		}
	}()
}

// badgerLogger forwards badger's internal logging to slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
