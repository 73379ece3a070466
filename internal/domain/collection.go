package domain

import (
	"fmt"
	"regexp"
)

// Collection describes a named partition of a Store whose records are keyed
// by the value of KeyField inside each document.
type Collection struct {
	Name     string
	KeyField string
	Index    *Index // optional secondary index
}

// Index is a secondary index over one document field.
type Index struct {
	Name   string
	Field  string
	Unique bool
}

var (
	collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)
	fieldPattern          = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks that the collection can be materialised by a Store.
func (c Collection) Validate() error {
	if !collectionNamePattern.MatchString(c.Name) {
		return fmt.Errorf("%w: collection name %q", ErrInvalidInput, c.Name)
	}
	if !fieldPattern.MatchString(c.KeyField) {
		return fmt.Errorf("%w: key field %q of collection %s", ErrInvalidInput, c.KeyField, c.Name)
	}
	if c.Index != nil {
		if !fieldPattern.MatchString(c.Index.Name) {
			return fmt.Errorf("%w: index name %q of collection %s", ErrInvalidInput, c.Index.Name, c.Name)
		}
		if !fieldPattern.MatchString(c.Index.Field) {
			return fmt.Errorf("%w: index field %q of collection %s", ErrInvalidInput, c.Index.Field, c.Name)
		}
	}
	return nil
}
