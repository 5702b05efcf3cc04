// Package taglist sources tag names from the site's popularity-ranked
// tag listing, given a page range like "3" or "1..5".
package taglist

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/search"
)

var rangePattern = regexp.MustCompile(`^(\d+)(\.\.(\d+))?$`)

// ParseRange parses a page range of the form "X" or "X..Y" (inclusive).
// It rejects malformed input before any querying begins.
func ParseRange(s string) (first, last int, err error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf(`invalid page range %q: want "X" or "X..Y"`, s)
	}

	first, _ = strconv.Atoi(m[1])
	last = first
	if m[3] != "" {
		last, _ = strconv.Atoi(m[3])
	}

	if first < 1 {
		return 0, 0, fmt.Errorf("invalid page range %q: pages start at 1", s)
	}
	if last < first {
		return 0, 0, fmt.Errorf("invalid page range %q: end page before start page", s)
	}
	return first, last, nil
}

// Fetch collects tag names from the listing pages first through last,
// in order, retrying transient fetch failures per page.
func Fetch(ctx context.Context, c search.Client, rc retry.Config, first, last int) ([]string, error) {
	var names []string
	for page := first; page <= last; page++ {
		var pageNames []string
		err := retry.Do(ctx, rc, func(ctx context.Context) error {
			ns, err := c.TagPage(ctx, page)
			if err != nil {
				return err
			}
			pageNames = ns
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("tag listing page %d: %w", page, err)
		}
		names = append(names, pageNames...)
	}
	return names, nil
}
