package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile

	indexMu    sync.Mutex
	indexKnown map[string]bool

	fallbackObserver func()
}

// NewDB opens a PostgreSQL-backed store. Used for shared or self-hosted
// deployments where several clients point at the same durable store.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, fmt.Errorf("dsn required: %w", store.ErrUnavailable)
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open db with dsn %s: %v: %w", profile.DSN, err, store.ErrUnavailable)
	}

	return &DB{db: pgDB, profile: profile, indexKnown: make(map[string]bool)}, nil
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

// placeholder returns a positional parameter like $1.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns a comma-separated list of positional parameters.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}

// hasIndex reports whether a named secondary index exists; results are
// cached per index. A failed probe degrades to "missing".
func (d *DB) hasIndex(ctx context.Context, name string) bool {
	d.indexMu.Lock()
	defer d.indexMu.Unlock()

	if known, ok := d.indexKnown[name]; ok {
		return known
	}

	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_indexes WHERE indexname = $1)", name,
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
