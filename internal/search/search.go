// Package search resolves tag filter expressions to post counts against
// the e621 search pages. The site paginates results 75 posts at a time
// and refuses to enumerate past 750 pages; past that point it only
// signals that the result set was truncated.
package search

import "context"

const (
	// PostsPerPage is the fixed page size of the posts search.
	PostsPerPage = 75

	// PageCeiling is the page count at which the site stops enumerating.
	// A pagination total at or above it means the exact count is unknown.
	PageCeiling = 750
)

// Result is the outcome of one count query. Truncated means the result
// set exceeded the enumeration ceiling and Count is meaningless.
type Result struct {
	Count     int
	Truncated bool
}

// Client answers count queries and reads the popularity-ranked tag
// listing. Implementations hold a single logical session and are not
// safe for concurrent use.
type Client interface {
	// Count resolves a tag filter expression to an exact post count or a
	// truncation signal.
	Count(ctx context.Context, expr string) (Result, error)

	// TagPage returns the tag names on one page of the tag listing
	// ordered by total post count.
	TagPage(ctx context.Context, page int) ([]string, error)

	Close() error
}
