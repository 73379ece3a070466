package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/msomdec/locomotiva-cache/internal/domain"
)

// tx implements domain.WriteTx (and therefore domain.ReadTx) over one
// *sql.Tx, restricted to the collections named when it was opened.
type tx struct {
	ctx    context.Context
	sqlTx  *sql.Tx
	scope  map[string]domain.Collection
	known  map[string]domain.Collection
	logger *slog.Logger
}

var _ domain.WriteTx = (*tx)(nil)

func (t *tx) collection(name string) (domain.Collection, error) {
	if c, ok := t.scope[name]; ok {
		return c, nil
	}
	if _, ok := t.known[name]; ok {
		return domain.Collection{}, fmt.Errorf("%w: %s", domain.ErrOutOfScope, name)
	}
	return domain.Collection{}, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, name)
}

func (t *tx) Get(collection, key string) ([]byte, error) {
	c, err := t.collection(collection)
	if err != nil {
		return nil, err
	}

	var document string
	err = t.sqlTx.QueryRowContext(t.ctx,
		"SELECT document FROM "+tableName(c.Name)+" WHERE key = ?", key,
	).Scan(&document)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s/%s: %w", domain.ErrReadFailed, collection, key, err)
	}
	return []byte(document), nil
}

func (t *tx) Count(collection string) (int, error) {
	c, err := t.collection(collection)
	if err != nil {
		return 0, err
	}

	var n int
	if err := t.sqlTx.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM "+tableName(c.Name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", domain.ErrReadFailed, collection, err)
	}
	return n, nil
}

func (t *tx) Keys(collection string) ([]string, error) {
	c, err := t.collection(collection)
	if err != nil {
		return nil, err
	}

	rows, err := t.sqlTx.QueryContext(t.ctx, "SELECT key FROM "+tableName(c.Name)+" ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("%w: list keys of %s: %w", domain.ErrReadFailed, collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan key: %w", domain.ErrReadFailed, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate keys of %s: %w", domain.ErrReadFailed, collection, err)
	}
	return keys, nil
}

func (t *tx) Put(collection string, document []byte) error {
	c, err := t.collection(collection)
	if err != nil {
		return err
	}

	if !gjson.ValidBytes(document) {
		return fmt.Errorf("%w: document for %s is not valid JSON", domain.ErrInvalidInput, collection)
	}
	key, err := documentKey(c, document)
	if err != nil {
		return err
	}

	_, err = t.sqlTx.ExecContext(t.ctx,
		"INSERT INTO "+tableName(c.Name)+` (key, document) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET document = excluded.document`,
		key, string(document),
	)
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %w", domain.ErrWriteFailed, collection, key, err)
	}
	return nil
}

func (t *tx) Delete(collection, key string) error {
	c, err := t.collection(collection)
	if err != nil {
		return err
	}

	if _, err := t.sqlTx.ExecContext(t.ctx, "DELETE FROM "+tableName(c.Name)+" WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %w", domain.ErrWriteFailed, collection, key, err)
	}
	return nil
}

func (t *tx) Clear(collection string) error {
	c, err := t.collection(collection)
	if err != nil {
		return err
	}

	if _, err := t.sqlTx.ExecContext(t.ctx, "DELETE FROM "+tableName(c.Name)); err != nil {
		return fmt.Errorf("%w: clear %s: %w", domain.ErrWriteFailed, collection, err)
	}
	return nil
}

// upgradeTx is handed to the upgrade callback. Collections it creates join
// its own scope immediately so the callback can also seed them.
type upgradeTx struct {
	*tx
}

var _ domain.UpgradeTx = (*upgradeTx)(nil)

func (u *upgradeTx) HasCollection(name string) (bool, error) {
	_, ok := u.scope[name]
	return ok, nil
}

func (u *upgradeTx) CreateCollection(c domain.Collection) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if existing, ok := u.scope[c.Name]; ok {
		if existing.KeyField != c.KeyField {
			u.logger.Warn("collection exists with a different key field, keeping it",
				"collection", c.Name, "stored_key", existing.KeyField, "requested_key", c.KeyField)
		}
		return nil
	}

	table := tableName(c.Name)
	if _, err := u.sqlTx.ExecContext(u.ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		key TEXT PRIMARY KEY,
		document TEXT NOT NULL CHECK (json_valid(document))
	)`); err != nil {
		return fmt.Errorf("create table for %s: %w", c.Name, err)
	}

	var indexName, indexField sql.NullString
	var indexUnique bool
	if c.Index != nil {
		unique := ""
		if c.Index.Unique {
			unique = "UNIQUE "
		}
		stmt := fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS %s ON %s (json_extract(document, '$.%s'))`,
			unique, indexTableName(c.Name, c.Index.Name), table, c.Index.Field)
		if _, err := u.sqlTx.ExecContext(u.ctx, stmt); err != nil {
			return fmt.Errorf("create index %s on %s: %w", c.Index.Name, c.Name, err)
		}
		indexName = sql.NullString{String: c.Index.Name, Valid: true}
		indexField = sql.NullString{String: c.Index.Field, Valid: true}
		indexUnique = c.Index.Unique
	}

	if _, err := u.sqlTx.ExecContext(u.ctx,
		`INSERT OR IGNORE INTO _collections (name, key_field, index_name, index_field, index_unique, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.KeyField, indexName, indexField, indexUnique, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record collection %s: %w", c.Name, err)
	}

	u.scope[c.Name] = c
	u.logger.Info("collection created", "collection", c.Name, "key", c.KeyField)
	return nil
}

// documentKey extracts the record key from the collection's key field.
// Only string and number keys are accepted.
func documentKey(c domain.Collection, document []byte) (string, error) {
	res := gjson.GetBytes(document, c.KeyField)
	switch res.Type {
	case gjson.String, gjson.Number:
		if k := res.String(); k != "" {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: document for %s has no %q key", domain.ErrInvalidInput, c.Name, c.KeyField)
}

// tableName maps a collection name onto a quoted SQLite identifier. Names are
// validated by domain.Collection.Validate before any table is created.
func tableName(collection string) string {
	return `"c_` + strings.ReplaceAll(collection, "-", "_") + `"`
}

func indexTableName(collection, index string) string {
	return `"ix_` + strings.ReplaceAll(collection, "-", "_") + "_" + index + `"`
}
