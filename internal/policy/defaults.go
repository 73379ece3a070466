package policy

import (
	"time"

	"github.com/msomdec/locomotiva-cache/internal/schema"
)

const (
	Day = 24 * time.Hour

	DefaultCityListTTL = 30 * Day
	DefaultGeometryTTL = 7 * Day

	DefaultSuspectSuffix     = "_SP"
	DefaultSuspectFraction   = 0.5
	DefaultSuspectMaxEntries = 500
)

// Default returns the policy for the current schema: city lists expire after
// 30 days and are checked for regional skew, coordinates never expire and
// railway geometry expires after 7 days.
func Default() Policy {
	return New(DefaultCityListTTL, DefaultGeometryTTL, SkewHeuristic{
		Suffix:     DefaultSuspectSuffix,
		Fraction:   DefaultSuspectFraction,
		MaxEntries: DefaultSuspectMaxEntries,
	})
}

// New builds the cache policy with the given TTLs and skew heuristic.
func New(cityListTTL, geometryTTL time.Duration, skew SkewHeuristic) Policy {
	return Policy{
		Rules: map[string]Rule{
			schema.CityLists: {
				MaxAge:      cityListTTL,
				EntriesPath: "cities",
				SkewCheck:   true,
			},
			schema.CityCoordinates: {},
			schema.RailwayGeometry: {
				MaxAge:      geometryTTL,
				EntriesPath: "geometry",
			},
		},
		Skew: skew,
	}
}
