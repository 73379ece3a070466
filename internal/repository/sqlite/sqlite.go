package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/msomdec/locomotiva-cache/internal/domain"
	"github.com/msomdec/locomotiva-cache/internal/repository/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// DB is a versioned collection store backed by a single SQLite file.
// Each collection is a table of (key, JSON document) rows; the schema
// version lives in PRAGMA user_version.
type DB struct {
	sqlDB       *sql.DB
	path        string
	version     int
	collections map[string]domain.Collection
	logger      *slog.Logger
}

var _ domain.Store = (*DB)(nil)

// Open opens (creating if needed) the database at path and brings it to the
// requested schema version. When version is greater than the stored version,
// upgrade runs exactly once inside a single transaction that may create
// collections. Opening at a lower version than stored is refused.
//
// Every failure is reported wrapped in domain.ErrStorageUnavailable.
func Open(ctx context.Context, path string, version int, upgrade domain.UpgradeFunc) (*DB, error) {
	db, err := open(ctx, path, version, upgrade)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return db, nil
}

func open(ctx context.Context, path string, version int, upgrade domain.UpgradeFunc) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", domain.ErrInvalidInput)
	}
	if version < 1 {
		return nil, fmt.Errorf("%w: version must be positive, got %d", domain.ErrInvalidInput, version)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serialises transactions and keeps :memory:
	// databases alive across calls.
	sqlDB.SetMaxOpenConns(1)

	if err := configure(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := migrations.Run(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run engine migrations: %w", err)
	}

	db := &DB{
		sqlDB:  sqlDB,
		path:   path,
		logger: slog.Default().With("component", "store", "path", path),
	}

	if err := db.reconcileVersion(ctx, version, upgrade); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func configure(ctx context.Context, sqlDB *sql.DB) error {
	// WAL gives readers a consistent snapshot while a writer commits.
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (db *DB) reconcileVersion(ctx context.Context, version int, upgrade domain.UpgradeFunc) error {
	stored, err := readUserVersion(ctx, db.sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version < stored {
		return fmt.Errorf("%w: requested %d, stored %d", domain.ErrVersionDowngrade, version, stored)
	}

	known, err := loadCatalog(ctx, db.sqlDB)
	if err != nil {
		return fmt.Errorf("load collection catalog: %w", err)
	}

	if version > stored {
		if err := db.runUpgrade(ctx, stored, version, known, upgrade); err != nil {
			return err
		}
		known, err = loadCatalog(ctx, db.sqlDB)
		if err != nil {
			return fmt.Errorf("reload collection catalog: %w", err)
		}
	}

	db.version = version
	db.collections = known
	return nil
}

func (db *DB) runUpgrade(ctx context.Context, from, to int, known map[string]domain.Collection, upgrade domain.UpgradeFunc) error {
	sqlTx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade transaction: %w", err)
	}
	defer sqlTx.Rollback()

	scope := make(map[string]domain.Collection, len(known))
	for name, c := range known {
		scope[name] = c
	}
	utx := &upgradeTx{tx: &tx{
		ctx:    ctx,
		sqlTx:  sqlTx,
		scope:  scope,
		known:  scope,
		logger: db.logger,
	}}

	if upgrade != nil {
		if err := upgrade(ctx, from, utx); err != nil {
			return fmt.Errorf("upgrade from version %d to %d: %w", from, to, err)
		}
	}

	// user_version is written to the database header inside the transaction,
	// so a failed upgrade leaves the stored version untouched.
	if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", to)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit upgrade: %w", err)
	}

	db.logger.Info("database upgraded", "from", from, "to", to, "collections", len(scope))
	return nil
}

// View runs fn in a transaction that only exposes read operations.
func (db *DB) View(ctx context.Context, collections []string, fn func(domain.ReadTx) error) error {
	scope, err := db.scope(collections)
	if err != nil {
		return err
	}

	sqlTx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin read transaction: %w", domain.ErrReadFailed, err)
	}
	defer sqlTx.Rollback()

	if err := fn(db.newTx(ctx, sqlTx, scope)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: end read transaction: %w", domain.ErrReadFailed, err)
	}
	return nil
}

// Update runs fn in a read-write transaction. Nothing fn wrote is kept
// unless it returns nil and the commit succeeds.
func (db *DB) Update(ctx context.Context, collections []string, fn func(domain.WriteTx) error) error {
	scope, err := db.scope(collections)
	if err != nil {
		return err
	}

	sqlTx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin write transaction: %w", domain.ErrWriteFailed, err)
	}
	defer sqlTx.Rollback()

	if err := fn(db.newTx(ctx, sqlTx, scope)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrWriteFailed, err)
	}
	return nil
}

func (db *DB) newTx(ctx context.Context, sqlTx *sql.Tx, scope map[string]domain.Collection) *tx {
	return &tx{
		ctx:    ctx,
		sqlTx:  sqlTx,
		scope:  scope,
		known:  db.collections,
		logger: db.logger,
	}
}

func (db *DB) scope(collections []string) (map[string]domain.Collection, error) {
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: transaction needs at least one collection", domain.ErrInvalidInput)
	}
	scope := make(map[string]domain.Collection, len(collections))
	for _, name := range collections {
		c, ok := db.collections[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, name)
		}
		scope[name] = c
	}
	return scope, nil
}

// Collections returns the collections present in the database, sorted by name.
func (db *DB) Collections() []domain.Collection {
	out := make([]domain.Collection, 0, len(db.collections))
	for _, c := range db.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasCollection reports whether the named collection exists.
func (db *DB) HasCollection(name string) bool {
	_, ok := db.collections[name]
	return ok
}

// Version returns the schema version the database was opened at.
func (db *DB) Version() int { return db.version }

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// Close releases the underlying SQLite connection.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

func readUserVersion(ctx context.Context, sqlDB *sql.DB) (int, error) {
	var v int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func loadCatalog(ctx context.Context, q querier) (map[string]domain.Collection, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, key_field, index_name, index_field, index_unique
		 FROM _collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Collection)
	for rows.Next() {
		var (
			c                     domain.Collection
			indexName, indexField sql.NullString
			indexUnique           bool
		)
		if err := rows.Scan(&c.Name, &c.KeyField, &indexName, &indexField, &indexUnique); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		if indexName.Valid && indexField.Valid {
			c.Index = &domain.Index{Name: indexName.String, Field: indexField.String, Unique: indexUnique}
		}
		out[c.Name] = c
	}
	return out, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
