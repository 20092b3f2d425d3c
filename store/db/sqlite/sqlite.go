package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile

	// Secondary-index presence is probed once per index name; a missing
	// index downgrades lookups to a full scan instead of failing.
	indexMu    sync.Mutex
	indexKnown map[string]bool

	fallbackObserver func()
}

// NewDB opens the local database file. The store is the only resource shared
// between the application goroutines and the network-intercept layer, so a
// single WAL-mode connection is sufficient.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.Wrap(store.ErrUnavailable, "dsn required")
	}

	// - No shared-cache: WAL journal mode is the better solution.
	// - busy_timeout covers the rare overlap between a drain pass write and
	//   a cache refresh write.
	// - With the `modernc.org/sqlite` driver each pragma must be prefixed
	//   with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(store.ErrUnavailable, "failed to open db with dsn %s: %v", profile.DSN, err)
	}

	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile, indexKnown: make(map[string]bool)}

	return &driver, nil
}

func (d *DB) GetDB() any {
	return d.db
}

func (d *DB) SetFallbackObserver(fn func()) {
	d.fallbackObserver = fn
}

func (d *DB) observeFallback() {
	if d.fallbackObserver != nil {
		d.fallbackObserver()
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

// hasIndex reports whether a named secondary index exists in the current
// schema. The probe result is cached; a probe failure is treated as "index
// missing" so lookups degrade instead of erroring.
func (d *DB) hasIndex(ctx context.Context, name string) bool {
	d.indexMu.Lock()
	defer d.indexMu.Unlock()

	if known, ok := d.indexKnown[name]; ok {
		return known
	}

	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='index' AND name=?)", name,
	).Scan(&exists)
	if err != nil {
		slog.Warn("index probe failed, assuming missing", "index", name, "error", err)
		exists = false
	}
	if !exists {
		slog.Warn("secondary index unavailable, falling back to full scan", "index", name)
	}

	d.indexKnown[name] = exists
	return exists
}

// forgetIndexes drops the cached probe results so the next lookup re-probes
// the schema. Used after migrations and in tests.
func (d *DB) forgetIndexes() {
	d.indexMu.Lock()
	defer d.indexMu.Unlock()
	d.indexKnown = make(map[string]bool)
}
