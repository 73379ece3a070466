package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/msomdec/locomotiva-cache/internal/domain"
	"github.com/msomdec/locomotiva-cache/internal/policy"
	"github.com/msomdec/locomotiva-cache/internal/schema"
)

// Opener opens the backing store. It is called lazily on first use and again
// after a failed attempt.
type Opener func(ctx context.Context) (domain.Store, error)

// Cache is the facade the route planner talks to. Loads return a value or a
// miss, saves and invalidations return a boolean; no storage error ever
// reaches the caller. On a miss the caller fetches from the backend and saves
// the result.
type Cache struct {
	open    Opener
	policy  policy.Policy
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	group  singleflight.Group
	mu     sync.RWMutex
	store  domain.Store
	closed bool

	purges sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for freshness checks and write timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics records lookups and writes on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a Cache. The store is not opened until the first call.
func NewCache(open Opener, pol policy.Policy, opts ...Option) *Cache {
	c := &Cache{
		open:   open,
		policy: pol,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// handle returns the shared store, opening it on first use. Concurrent first
// calls share a single open attempt.
func (c *Cache) handle(ctx context.Context) (domain.Store, error) {
	c.mu.RLock()
	store, closed := c.store, c.closed
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: cache is closed", domain.ErrStorageUnavailable)
	}
	if store != nil {
		return store, nil
	}

	v, err, _ := c.group.Do("open", func() (any, error) {
		c.mu.RLock()
		store := c.store
		c.mu.RUnlock()
		if store != nil {
			return store, nil
		}

		// The open is shared by every waiting caller, so one caller's
		// cancellation must not abort it.
		store, err := c.open(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			store.Close()
			return nil, fmt.Errorf("%w: cache is closed", domain.ErrStorageUnavailable)
		}
		c.store = store
		c.logger.Info("cache store opened", "version", store.Version())
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Store), nil
}

// load reads the document for key and classifies it. The boolean is true
// only for a document that may be served.
func (c *Cache) load(ctx context.Context, collection, key string) ([]byte, bool) {
	store, err := c.handle(ctx)
	if err != nil {
		c.logger.Warn("cache unavailable, treating as miss", "collection", collection, "key", key, "error", err)
		c.metrics.lookup(collection, resultError)
		return nil, false
	}

	var doc []byte
	err = store.View(ctx, []string{collection}, func(tx domain.ReadTx) error {
		var err error
		doc, err = tx.Get(collection, key)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.metrics.lookup(collection, resultMiss)
			return nil, false
		}
		c.logger.Error("cache read failed", "collection", collection, "key", key, "error", err)
		c.metrics.lookup(collection, resultError)
		return nil, false
	}

	verdict := c.policy.Classify(collection, doc, c.now())
	c.metrics.lookup(collection, verdictResult(verdict))

	if verdict == policy.Suspect {
		c.logger.Warn("discarding cached record", "collection", collection, "key", key, "error", domain.ErrSuspectData)
	}
	if c.policy.Purge(verdict) {
		c.purgeAsync(ctx, store, collection, key, doc)
	}
	if !verdict.Serve() {
		return nil, false
	}
	return doc, true
}

// loadMany reads several keys of one collection in a single transaction and
// returns the documents that may be served.
func (c *Cache) loadMany(ctx context.Context, collection string, keys []string) (map[string][]byte, error) {
	store, err := c.handle(ctx)
	if err != nil {
		c.metrics.lookup(collection, resultError)
		return nil, err
	}

	raw := make(map[string][]byte, len(keys))
	err = store.View(ctx, []string{collection}, func(tx domain.ReadTx) error {
		for _, key := range keys {
			doc, err := tx.Get(collection, key)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			raw[key] = doc
		}
		return nil
	})
	if err != nil {
		c.metrics.lookup(collection, resultError)
		return nil, err
	}

	now := c.now()
	out := make(map[string][]byte, len(raw))
	for _, key := range keys {
		doc, ok := raw[key]
		if !ok {
			c.metrics.lookup(collection, resultMiss)
			continue
		}
		verdict := c.policy.Classify(collection, doc, now)
		c.metrics.lookup(collection, verdictResult(verdict))
		if c.policy.Purge(verdict) {
			c.purgeAsync(ctx, store, collection, key, doc)
		}
		if verdict.Serve() {
			out[key] = doc
		}
	}
	return out, nil
}

// purgeAsync deletes one record in the background, but only if it still
// holds the document that was classified. A save that lands before the purge
// commits is kept. The result of the read that triggered the purge does not
// depend on it succeeding.
func (c *Cache) purgeAsync(ctx context.Context, store domain.Store, collection, key string, classified []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	ctx = context.WithoutCancel(ctx)
	c.purges.Go(func() {
		purged := false
		err := store.Update(ctx, []string{collection}, func(tx domain.WriteTx) error {
			current, err := tx.Get(collection, key)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !bytes.Equal(current, classified) {
				return nil
			}
			purged = true
			return tx.Delete(collection, key)
		})
		if err != nil {
			c.logger.Error("purge failed", "collection", collection, "key", key, "error", err)
			c.metrics.write(collection, opPurge, false)
			return
		}
		if !purged {
			c.logger.Debug("purge skipped, record was replaced", "collection", collection, "key", key)
			return
		}
		c.metrics.write(collection, opPurge, true)
		c.logger.Info("purged cached record", "collection", collection, "key", key)
	})
}

// Wait blocks until every background purge started so far has finished.
func (c *Cache) Wait() {
	c.purges.Wait()
}

func (c *Cache) save(ctx context.Context, collection string, docs ...[]byte) bool {
	store, err := c.handle(ctx)
	if err != nil {
		c.logger.Warn("cache unavailable, skipping save", "collection", collection, "error", err)
		c.metrics.write(collection, opSave, false)
		return false
	}

	err = store.Update(ctx, []string{collection}, func(tx domain.WriteTx) error {
		for _, doc := range docs {
			if err := tx.Put(collection, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("cache write failed", "collection", collection, "records", len(docs), "error", err)
		c.metrics.write(collection, opSave, false)
		return false
	}
	c.metrics.write(collection, opSave, true)
	return true
}

func (c *Cache) invalidate(ctx context.Context, collection, key string) bool {
	return c.write(ctx, collection, opInvalidate, func(tx domain.WriteTx) error {
		return tx.Delete(collection, key)
	})
}

func (c *Cache) clear(ctx context.Context, collection string) bool {
	return c.write(ctx, collection, opClear, func(tx domain.WriteTx) error {
		return tx.Clear(collection)
	})
}

func (c *Cache) write(ctx context.Context, collection, op string, fn func(domain.WriteTx) error) bool {
	store, err := c.handle(ctx)
	if err != nil {
		c.logger.Warn("cache unavailable", "collection", collection, "op", op, "error", err)
		c.metrics.write(collection, op, false)
		return false
	}
	if err := store.Update(ctx, []string{collection}, fn); err != nil {
		c.logger.Error("cache write failed", "collection", collection, "op", op, "error", err)
		c.metrics.write(collection, op, false)
		return false
	}
	c.metrics.write(collection, op, true)
	return true
}

// Invalidate removes one record. Removing a missing record succeeds.
func (c *Cache) Invalidate(ctx context.Context, collection, key string) bool {
	if !schema.Has(collection) {
		c.logger.Warn("invalidate on unknown collection", "collection", collection)
		return false
	}
	return c.invalidate(ctx, collection, key)
}

// ClearCollection removes every record in one collection.
func (c *Cache) ClearCollection(ctx context.Context, collection string) bool {
	if !schema.Has(collection) {
		c.logger.Warn("clear on unknown collection", "collection", collection)
		return false
	}
	return c.clear(ctx, collection)
}

// ClearAll clears every collection in declaration order, one transaction per
// collection. It stops at the first failure: collections already cleared
// stay cleared and later ones are left untouched.
func (c *Cache) ClearAll(ctx context.Context) bool {
	store, err := c.handle(ctx)
	if err != nil {
		c.logger.Warn("cache unavailable, cannot clear", "error", err)
		return false
	}
	for _, name := range schema.Names(store.Version()) {
		if !c.clear(ctx, name) {
			c.logger.Error("clear all stopped", "failed_collection", name)
			return false
		}
	}
	c.logger.Info("cache cleared")
	return true
}

// Close stops new background purges, waits for the running ones and
// releases the store. A closed Cache answers every call with a miss or false.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	store := c.store
	c.store = nil
	c.mu.Unlock()

	c.purges.Wait()
	if store == nil {
		return nil
	}
	return store.Close()
}
