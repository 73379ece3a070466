package domain

import "context"

// Store is a durable, versioned key-value database made of named collections.
// Every read and write happens inside an explicit transaction scoped to the
// collections it touches. Each implementation (SQLite today) owns its own
// on-disk layout and upgrade bookkeeping, keeping the backend swappable.
type Store interface {
	// View runs fn in a read-only transaction over the given collections.
	View(ctx context.Context, collections []string, fn func(ReadTx) error) error
	// Update runs fn in a read-write transaction over the given collections.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Update(ctx context.Context, collections []string, fn func(WriteTx) error) error
	Version() int
	Close() error
}

// ReadTx is the read side of a transaction.
type ReadTx interface {
	// Get returns the stored document for key, or ErrNotFound.
	Get(collection, key string) ([]byte, error)
	Count(collection string) (int, error)
	Keys(collection string) ([]string, error)
}

// WriteTx is a read-write transaction.
type WriteTx interface {
	ReadTx

	// Put upserts document under the value of the collection's key field.
	// An existing record with the same key is fully replaced.
	Put(collection string, document []byte) error
	// Delete removes the record for key. Deleting a missing key is a no-op.
	Delete(collection, key string) error
	// Clear removes every record in the collection.
	Clear(collection string) error
}

// UpgradeTx is the privileged transaction handed to an UpgradeFunc. It may
// create collections in addition to the normal read-write operations.
type UpgradeTx interface {
	WriteTx

	HasCollection(name string) (bool, error)
	// CreateCollection creates the collection unless it already exists.
	CreateCollection(c Collection) error
}

// UpgradeFunc runs once when a store is opened at a version higher than the
// one on disk. oldVersion is 0 for a freshly created store.
type UpgradeFunc func(ctx context.Context, oldVersion int, tx UpgradeTx) error
