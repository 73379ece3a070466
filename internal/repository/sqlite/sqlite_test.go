package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/locomotiva-cache/internal/domain"
	"github.com/msomdec/locomotiva-cache/internal/repository/sqlite"
)

var (
	things = domain.Collection{Name: "things", KeyField: "id"}
	people = domain.Collection{
		Name:     "people",
		KeyField: "name",
		Index:    &domain.Index{Name: "email", Field: "email", Unique: true},
	}
)

// createAll is an upgrade callback that creates the given collections.
func createAll(cs ...domain.Collection) domain.UpgradeFunc {
	return func(_ context.Context, _ int, tx domain.UpgradeTx) error {
		for _, c := range cs {
			if err := tx.CreateCollection(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func newTestDB(t *testing.T) (*sqlite.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.Open(context.Background(), path, 1, createAll(things, people))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func put(t *testing.T, db *sqlite.DB, collection, doc string) {
	t.Helper()
	err := db.Update(context.Background(), []string{collection}, func(tx domain.WriteTx) error {
		return tx.Put(collection, []byte(doc))
	})
	require.NoError(t, err)
}

func get(t *testing.T, db *sqlite.DB, collection, key string) ([]byte, error) {
	t.Helper()
	var doc []byte
	err := db.View(context.Background(), []string{collection}, func(tx domain.ReadTx) error {
		var err error
		doc, err = tx.Get(collection, key)
		return err
	})
	return doc, err
}

func TestOpen(t *testing.T) {
	db, path := newTestDB(t)

	_, err := os.Stat(path)
	require.NoError(t, err, "database file was not created")

	assert.Equal(t, 1, db.Version())
	assert.Equal(t, path, db.Path())
	assert.True(t, db.HasCollection("things"))
	assert.True(t, db.HasCollection("people"))
	assert.False(t, db.HasCollection("missing"))
}

func TestOpen_RequiresPathAndVersion(t *testing.T) {
	ctx := context.Background()

	_, err := sqlite.Open(ctx, "  ", 1, nil)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = sqlite.Open(ctx, filepath.Join(t.TempDir(), "x.db"), 0, nil)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOpen_UpgradeRunsOncePerVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	var calls []int
	record := func(_ context.Context, old int, tx domain.UpgradeTx) error {
		calls = append(calls, old)
		return tx.CreateCollection(things)
	}

	db, err := sqlite.Open(ctx, path, 1, record)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Same version: no upgrade.
	db, err = sqlite.Open(ctx, path, 1, record)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = sqlite.Open(ctx, path, 3, record)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, []int{0, 1}, calls)
	assert.Equal(t, 3, db.Version())
}

func TestOpen_RefusesDowngrade(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sqlite.Open(ctx, path, 2, createAll(things))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = sqlite.Open(ctx, path, 1, createAll(things))
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.ErrorIs(t, err, domain.ErrVersionDowngrade)
}

func TestOpen_FailedUpgradeLeavesVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sqlite.Open(ctx, path, 1, createAll(things))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	boom := errors.New("boom")
	_, err = sqlite.Open(ctx, path, 2, func(_ context.Context, _ int, tx domain.UpgradeTx) error {
		if err := tx.CreateCollection(people); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	db, err = sqlite.Open(ctx, path, 1, nil)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 1, db.Version())
	assert.False(t, db.HasCollection("people"), "collection from failed upgrade must not survive")
}

func TestOpen_CreatesIndex(t *testing.T) {
	_, path := newTestDB(t)

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer raw.Close()

	var name string
	err = raw.QueryRow(`SELECT name FROM sqlite_master
		 WHERE type = 'index' AND tbl_name = 'c_people' AND name NOT LIKE 'sqlite_autoindex%'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "ix_people_email", name)
}

func TestPutGet_Upsert(t *testing.T) {
	db, _ := newTestDB(t)

	put(t, db, "things", `{"id":"a","colour":"red","size":1}`)
	put(t, db, "things", `{"id":"a","colour":"blue"}`)

	doc, err := get(t, db, "things", "a")
	require.NoError(t, err)
	// Full replacement, not a merge.
	assert.JSONEq(t, `{"id":"a","colour":"blue"}`, string(doc))
}

func TestPut_NumericKey(t *testing.T) {
	db, _ := newTestDB(t)

	put(t, db, "things", `{"id":42}`)
	doc, err := get(t, db, "things", "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(doc))
}

func TestPut_RejectsMissingKeyAndInvalidJSON(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	for _, doc := range []string{`{"colour":"red"}`, `{"id":""}`, `{"id":{"nested":1}}`, `not json`} {
		err := db.Update(ctx, []string{"things"}, func(tx domain.WriteTx) error {
			return tx.Put("things", []byte(doc))
		})
		require.ErrorIs(t, err, domain.ErrInvalidInput, doc)
	}
}

func TestPut_UniqueIndexViolation(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	put(t, db, "people", `{"name":"ana","email":"a@example.com"}`)
	err := db.Update(ctx, []string{"people"}, func(tx domain.WriteTx) error {
		return tx.Put("people", []byte(`{"name":"bia","email":"a@example.com"}`))
	})
	require.ErrorIs(t, err, domain.ErrWriteFailed)
}

func TestGet_NotFound(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := get(t, db, "things", "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	put(t, db, "things", `{"id":"a"}`)
	for i := 0; i < 2; i++ {
		err := db.Update(ctx, []string{"things"}, func(tx domain.WriteTx) error {
			return tx.Delete("things", "a")
		})
		require.NoError(t, err, "delete must be idempotent")
	}

	_, err := get(t, db, "things", "a")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClear(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	put(t, db, "things", `{"id":"a"}`)
	put(t, db, "things", `{"id":"b"}`)
	put(t, db, "people", `{"name":"ana","email":"a@example.com"}`)

	require.NoError(t, db.Update(ctx, []string{"things"}, func(tx domain.WriteTx) error {
		return tx.Clear("things")
	}))

	require.NoError(t, db.View(ctx, []string{"things", "people"}, func(tx domain.ReadTx) error {
		n, err := tx.Count("things")
		require.NoError(t, err)
		assert.Zero(t, n)

		keys, err := tx.Keys("people")
		require.NoError(t, err)
		assert.Equal(t, []string{"ana"}, keys)
		return nil
	}))
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	put(t, db, "things", `{"id":"keep"}`)

	boom := errors.New("boom")
	err := db.Update(ctx, []string{"things"}, func(tx domain.WriteTx) error {
		if err := tx.Put("things", []byte(`{"id":"new"}`)); err != nil {
			return err
		}
		if err := tx.Delete("things", "keep"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = get(t, db, "things", "new")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = get(t, db, "things", "keep")
	require.NoError(t, err)
}

func TestTransactionScope(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	err := db.View(ctx, []string{"missing"}, func(domain.ReadTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrUnknownCollection)

	err = db.View(ctx, nil, func(domain.ReadTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	err = db.Update(ctx, []string{"things"}, func(tx domain.WriteTx) error {
		return tx.Put("people", []byte(`{"name":"ana"}`))
	})
	require.ErrorIs(t, err, domain.ErrOutOfScope)

	err = db.View(ctx, []string{"things"}, func(tx domain.ReadTx) error {
		_, err := tx.Get("ghosts", "x")
		return err
	})
	require.ErrorIs(t, err, domain.ErrUnknownCollection)
}

func TestCollectionsPersistAcrossReopen(t *testing.T) {
	db, path := newTestDB(t)
	put(t, db, "people", `{"name":"ana","email":"a@example.com"}`)
	require.NoError(t, db.Close())

	reopened, err := sqlite.Open(context.Background(), path, 1, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []domain.Collection{people, things}, reopened.Collections())
	doc, err := get(t, reopened, "people", "ana")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ana","email":"a@example.com"}`, string(doc))
}

func TestClose_NilSafe(t *testing.T) {
	var db *sqlite.DB
	assert.NoError(t, db.Close())
}
