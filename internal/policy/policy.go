// Package policy decides whether a cached document may be served.
//
// A document is classified as Fresh (serve), Stale (older than its
// collection's max age), Suspect (looks like the output of a partial
// ingestion, purge it) or Empty (present but carrying no entries).
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Verdict is the outcome of classifying one cached document.
type Verdict int

const (
	Fresh Verdict = iota
	Stale
	Suspect
	Empty
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Suspect:
		return "suspect"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Serve reports whether the document can be returned to the caller.
func (v Verdict) Serve() bool { return v == Fresh }

// TimestampField is the document field holding the write time in epoch ms.
const TimestampField = "timestamp"

// Rule is the policy for one collection.
type Rule struct {
	// MaxAge is how long a document stays fresh. Zero means it never expires.
	MaxAge time.Duration
	// EntriesPath locates the payload that must be non-empty for a hit.
	// Empty disables the check.
	EntriesPath string
	// SkewCheck enables the regional-skew heuristic on EntriesPath.
	SkewCheck bool
}

// SkewHeuristic flags a city list as suspect when more than Fraction of its
// entries end with Suffix and it holds fewer than MaxEntries entries. A
// complete national list has roughly 800 to 1100 cities per gauge; a small
// list dominated by one region is the signature of an ingestion that only
// loaded that region.
type SkewHeuristic struct {
	Suffix     string
	Fraction   float64
	MaxEntries int
}

// Policy maps collection names to rules.
type Policy struct {
	Rules map[string]Rule
	Skew  SkewHeuristic
	// PurgeStale also purges expired documents instead of leaving them to be
	// overwritten by the next save.
	PurgeStale bool
}

// Classify returns the verdict for document read from collection at now.
// Precedence: empty, then suspect, then freshness. Collections without a
// rule are treated as never expiring.
func (p Policy) Classify(collection string, document []byte, now time.Time) Verdict {
	rule := p.Rules[collection]

	if rule.EntriesPath != "" {
		entries := gjson.GetBytes(document, rule.EntriesPath)
		if isEmpty(entries) {
			return Empty
		}
		if rule.SkewCheck && p.Skew.suspect(entries) {
			return Suspect
		}
	}

	if rule.MaxAge <= 0 {
		return Fresh
	}

	ts := gjson.GetBytes(document, TimestampField)
	if ts.Type != gjson.Number {
		return Stale
	}
	written := time.UnixMilli(ts.Int())
	if now.Sub(written) < rule.MaxAge {
		return Fresh
	}
	return Stale
}

// Purge reports whether a document with verdict v should be removed.
func (p Policy) Purge(v Verdict) bool {
	switch v {
	case Suspect:
		return true
	case Stale:
		return p.PurgeStale
	default:
		return false
	}
}

// MaxAge returns the max age configured for collection, zero if none.
func (p Policy) MaxAge(collection string) time.Duration {
	return p.Rules[collection].MaxAge
}

func isEmpty(v gjson.Result) bool {
	if !v.Exists() || v.Type == gjson.Null {
		return true
	}
	if v.IsArray() {
		return len(v.Array()) == 0
	}
	if v.IsObject() {
		empty := true
		v.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return empty
	}
	return v.Type == gjson.String && v.Str == ""
}

func (h SkewHeuristic) suspect(entries gjson.Result) bool {
	if h.Suffix == "" || !entries.IsArray() {
		return false
	}
	list := entries.Array()
	total := len(list)
	if total == 0 || total >= h.MaxEntries {
		return false
	}
	matching := 0
	for _, e := range list {
		if strings.HasSuffix(e.String(), h.Suffix) {
			matching++
		}
	}
	return float64(matching)/float64(total) > h.Fraction
}

// Validate checks the heuristic parameters.
func (h SkewHeuristic) Validate() error {
	if h.Fraction < 0 || h.Fraction > 1 {
		return fmt.Errorf("suspect fraction must be within [0, 1], got %v", h.Fraction)
	}
	if h.MaxEntries < 0 {
		return fmt.Errorf("suspect max entries must not be negative, got %d", h.MaxEntries)
	}
	return nil
}
