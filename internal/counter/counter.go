// Package counter reconstructs exact yearly post counts for tag
// expressions whose result sets may exceed the site's enumeration
// ceiling. Queries that truncate are decomposed along the score axis
// into windows small enough to count exactly.
package counter

import (
	"context"
	"log/slog"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/query"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/search"
)

// Engine runs counting sweeps against a search client. It is strictly
// sequential: the client's single page session is shared across calls.
type Engine struct {
	client search.Client
	cfg    domain.Config
	retry  retry.Config
	log    *slog.Logger
}

// New creates an Engine. Zero config fields take defaults.
func New(client search.Client, cfg domain.Config, rc retry.Config, log *slog.Logger) *Engine {
	cfg.SetDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, cfg: cfg, retry: rc, log: log}
}

// Progress receives each resolved year of a sweep as it is produced.
type Progress func(year, count int)

// SweepTag counts every year of the lookback window for one tag
// expression, oldest year first. It returns counts only if every year
// resolved; a failed year yields no partial result.
func (e *Engine) SweepTag(ctx context.Context, tags string, progress Progress) (map[int]int, error) {
	counts := make(map[int]int, e.cfg.Lookback)
	for offset := e.cfg.Lookback; offset >= 1; offset-- {
		n, err := e.CountForYear(ctx, tags, offset)
		if err != nil {
			return nil, err
		}
		year := e.cfg.CurrentYear - offset
		counts[year] = n
		if progress != nil {
			progress(year, n)
		}
	}
	return counts, nil
}

// CountForYear returns the exact post count for a tag expression in the
// calendar year `offset` years before the configured current year.
func (e *Engine) CountForYear(ctx context.Context, tags string, offset int) (int, error) {
	return e.countTopLevel(ctx, query.ForYear(tags, offset))
}

// countTopLevel resolves an unpartitioned expression. Truncation here
// is not an error: it starts a partitioned count.
func (e *Engine) countTopLevel(ctx context.Context, expr string) (int, error) {
	res, err := e.count(ctx, expr)
	if err != nil {
		return 0, err
	}
	if !res.Truncated {
		return res.Count, nil
	}
	return e.countPartitioned(ctx, expr)
}

// count performs one remote call under the retry policy.
func (e *Engine) count(ctx context.Context, expr string) (search.Result, error) {
	var res search.Result
	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		r, err := e.client.Count(ctx, expr)
		if err != nil {
			e.log.Warn("search request failed", "expr", expr, "error", err)
			return err
		}
		res = r
		return nil
	})
	return res, err
}
