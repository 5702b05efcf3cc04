package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/query"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
)

// HTTPConfig configures the browserless client.
type HTTPConfig struct {
	// BaseURL is the site root. Default: the production site.
	BaseURL string

	// Timeout bounds each request. Default: 30s.
	Timeout time.Duration

	// UserAgent identifies the scraper to the site.
	UserAgent string

	Logger *slog.Logger
}

func (c *HTTPConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = query.DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "e621-tags-by-year/1.0 (yearly tag counter)"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTP reads the same search pages as the browser client but from the
// static HTML, without driving Chrome. No age gate applies to plain
// document fetches.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP creates the browserless client.
func NewHTTP(cfg HTTPConfig) *HTTP {
	cfg.defaults()
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// Count fetches the search results for expr and reads the pagination
// total, visiting the last page when an exact count needs the partial
// page tallied.
func (h *HTTP) Count(ctx context.Context, expr string) (Result, error) {
	doc, err := h.get(ctx, query.PostsURL(h.cfg.BaseURL, expr))
	if err != nil {
		return Result{}, err
	}

	pages := pageTotal(doc)
	if pages == 0 {
		return Result{}, nil
	}
	if pages >= PageCeiling {
		return Result{Truncated: true}, nil
	}

	if pages > 1 {
		doc, err = h.get(ctx, query.PostsPageURL(h.cfg.BaseURL, expr, pages))
		if err != nil {
			return Result{}, err
		}
	}

	return Result{Count: PostsPerPage*(pages-1) + visibleCount(doc)}, nil
}

// TagPage reads the tag names linked from one page of the tag listing.
func (h *HTTP) TagPage(ctx context.Context, page int) ([]string, error) {
	doc, err := h.get(ctx, query.TagListURL(h.cfg.BaseURL, page))
	if err != nil {
		return nil, fmt.Errorf("tag listing page %d: %w", page, err)
	}

	var names []string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		if !strings.HasPrefix(attr(n, "href"), "/posts?tags=") {
			return
		}
		if t := strings.TrimSpace(text(n)); t != "" {
			names = append(names, t)
		}
	})
	return names, nil
}

// get fetches a page and parses it. Non-success statuses become typed
// errors so throttling responses are retried upstream.
func (h *HTTP) get(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	// 5MB is plenty for a results page.
	limited := io.LimitReader(resp.Body, 5*1024*1024)
	doc, err := html.Parse(limited)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// pageTotal reads data-total from the pagination element.
func pageTotal(doc *html.Node) int {
	total := 0
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || attr(n, "aria-label") != "Pagination" {
			return
		}
		if v, err := strconv.Atoi(attr(n, "data-total")); err == nil {
			total = v
		}
	})
	return total
}

// visibleCount counts post previews on a results page, adding back the
// posts the site reports as hidden. Blacklist-filtered posts show up in
// the hidden-posts notice on anonymous fetches.
func visibleCount(doc *html.Node) int {
	count := 0
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if n.Data == "article" && hasClass(n, "post-preview") {
			count++
			return
		}
		if hasClass(n, "hidden-posts-notice") {
			if m := leadingDigits.FindString(strings.TrimSpace(text(n))); m != "" {
				v, _ := strconv.Atoi(m)
				count += v
			}
		}
	})
	return count
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(text(c))
	}
	return sb.String()
}
