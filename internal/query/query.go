package query

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultBaseURL is the production site root.
const DefaultBaseURL = "https://e621.net"

// ForYear scopes a tag expression to the calendar year `offset` years
// before the current one. The status filter includes every moderation
// state so deleted and pending posts are counted too.
func ForYear(tags string, offset int) string {
	return fmt.Sprintf("%s status:any date:%d_yesteryears_ago", tags, offset)
}

// And conjoins a filter clause onto an expression. Expressions are only
// ever composed, never parsed back.
func And(expr, clause string) string {
	return expr + " " + clause
}

// ScoreRange is the inclusive score window [lo, hi].
func ScoreRange(lo, hi int) string {
	return fmt.Sprintf("score:%d..%d", lo, hi)
}

// ScoreAbove matches posts scored strictly above n.
func ScoreAbove(n int) string {
	return fmt.Sprintf("score:>%d", n)
}

// ScoreNonPositive matches posts scored at or below zero, which also
// catches posts with no score at all.
func ScoreNonPositive() string {
	return "score:<=0"
}

// PostsURL builds the search URL for a tag expression.
func PostsURL(base, expr string) string {
	v := url.Values{}
	v.Set("tags", expr)
	return base + "/posts?" + v.Encode()
}

// PostsPageURL builds the search URL for one result page.
func PostsPageURL(base, expr string, page int) string {
	v := url.Values{}
	v.Set("tags", expr)
	v.Set("page", strconv.Itoa(page))
	return base + "/posts?" + v.Encode()
}

// TagListURL builds one page of the tag listing ordered by total post
// count, empty tags hidden.
func TagListURL(base string, page int) string {
	v := url.Values{}
	v.Set("commit", "Search")
	v.Set("page", strconv.Itoa(page))
	v.Set("search[hide_empty]", "1")
	v.Set("search[order]", "count")
	return base + "/tags?" + v.Encode()
}
