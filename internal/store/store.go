// Package store persists per-tag yearly counts. Records are keyed
// case-insensitively by tag text, but the casing a tag was first
// recorded with is preserved forever: a later upsert that differs only
// in case updates the counts, never the stored text.
package store

import (
	"strings"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
)

// Store is a result table backend. Implementations assume
// single-process, sequential access.
type Store interface {
	// Upsert merges one tag record, writing a count column for each of
	// the given years in order. An existing record (matched
	// case-insensitively) is replaced in place keeping its stored tag
	// text; a new record is appended with the given text.
	Upsert(rec domain.Record, years []int) error

	// Known reports whether a tag already has a record.
	Known(tag string) (bool, error)

	Close() error
}

// FilterUnknown drops queries whose tag is already recorded. Overwrite
// mode keeps everything. Concatenated multi-tag queries are never
// filtered: they describe an intersection, not a tag.
func FilterUnknown(s Store, queries []string, overwrite bool) ([]string, error) {
	if overwrite || s == nil {
		return queries, nil
	}

	kept := make([]string, 0, len(queries))
	for _, q := range queries {
		if strings.ContainsRune(q, ' ') {
			kept = append(kept, q)
			continue
		}
		known, err := s.Known(q)
		if err != nil {
			return nil, err
		}
		if !known {
			kept = append(kept, q)
		}
	}
	return kept, nil
}
