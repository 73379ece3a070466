// Package schema declares the cache's collections and the upgrade callback
// that materialises them in a domain.Store.
//
// Definitions are additive: a collection is introduced at some version and
// never removed. Upgrades reconcile against the full definition set for the
// target version instead of replaying per-version steps, so a store jumping
// from version 1 to 2 ends up with the same collections as one created
// fresh at version 2.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/msomdec/locomotiva-cache/internal/domain"
)

// Version is the current schema version. Bump it whenever a definition is
// added.
const Version = 2

const (
	CityLists       = "city-list-by-gauge"
	CityCoordinates = "city-coordinates"
	RailwayGeometry = "railway-geometry"
)

// RailwayGeometryID is the key of the single railway-geometry record.
const RailwayGeometryID = "railway-lines"

// Definition is a collection together with the schema version that
// introduced it.
type Definition struct {
	domain.Collection
	Since int
}

var definitions = []Definition{
	{
		Collection: domain.Collection{
			Name:     CityLists,
			KeyField: "gauge",
			Index:    &domain.Index{Name: "gauge", Field: "gauge", Unique: true},
		},
		Since: 1,
	},
	{
		Collection: domain.Collection{
			Name:     CityCoordinates,
			KeyField: "city",
			Index:    &domain.Index{Name: "city", Field: "city", Unique: true},
		},
		Since: 1,
	},
	{
		Collection: domain.Collection{
			Name:     RailwayGeometry,
			KeyField: "id",
		},
		Since: 2,
	},
}

// Definitions returns every known collection definition in declaration order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// At returns the collections that must exist at the given version.
func At(version int) []domain.Collection {
	var out []domain.Collection
	for _, d := range definitions {
		if d.Since <= version {
			out = append(out, d.Collection)
		}
	}
	return out
}

// Names returns the names of the collections present at version, in
// declaration order.
func Names(version int) []string {
	cs := At(version)
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Has reports whether name is a collection of the current schema version.
func Has(name string) bool {
	return slices.Contains(Names(Version), name)
}

// Upgrade returns the callback a store runs when it is opened at version.
// Each collection is created only if missing, so the callback is safe to
// re-run.
func Upgrade(version int) domain.UpgradeFunc {
	return func(ctx context.Context, oldVersion int, tx domain.UpgradeTx) error {
		for _, c := range At(version) {
			exists, err := tx.HasCollection(c.Name)
			if err != nil {
				return fmt.Errorf("check collection %s: %w", c.Name, err)
			}
			if exists {
				continue
			}
			if err := tx.CreateCollection(c); err != nil {
				return fmt.Errorf("create collection %s: %w", c.Name, err)
			}
			slog.InfoContext(ctx, "schema collection added",
				"collection", c.Name, "from_version", oldVersion, "to_version", version)
		}
		return nil
	}
}
