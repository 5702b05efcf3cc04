package counter

import (
	"context"
	"fmt"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/query"
)

// DegenerateRangeError means the score axis could not isolate a window
// small enough to count exactly: even a width-1 window (or a boundary
// query) still truncated. The tag cannot be counted; callers must
// report it rather than undercount silently.
type DegenerateRangeError struct {
	Expr   string
	Clause string
}

func (e *DegenerateRangeError) Error() string {
	return fmt.Sprintf("score window %q still exceeds the enumeration ceiling for %q", e.Clause, e.Expr)
}

// countPartitioned sums exact counts over disjoint score windows that
// together cover the whole score domain.
//
// The loop keeps an upper bound and a window width, both seeded at the
// configured score seed. A window that truncates halves its width and
// retries with the same upper edge; a window that succeeds slides the
// bound down by its own (current) width, so the next window starts
// right below the last successful one. After the bound reaches zero,
// two boundary queries pick up everything above the seeded span and
// everything at or below zero (including unscored posts).
func (e *Engine) countPartitioned(ctx context.Context, expr string) (int, error) {
	bound := e.cfg.ScoreSeed
	interval := e.cfg.ScoreSeed
	total := 0

	for bound > 0 {
		lo := bound - interval + 1
		if lo < 1 {
			lo = 1
		}
		clause := query.ScoreRange(lo, bound)

		res, err := e.count(ctx, query.And(expr, clause))
		if err != nil {
			return 0, err
		}
		if res.Truncated {
			interval /= 2
			if interval == 0 {
				return 0, &DegenerateRangeError{Expr: expr, Clause: clause}
			}
			e.log.Debug("score window truncated, shrinking", "bound", bound, "interval", interval)
			continue
		}

		total += res.Count
		bound -= interval
	}

	// The loop proved the low end of the span is countable, so the two
	// boundary slices are expected to fit under the ceiling. If one does
	// not, the score axis has failed for this expression.
	boundaries := []string{
		query.ScoreAbove(e.cfg.ScoreSeed),
		query.ScoreNonPositive(),
	}
	for _, clause := range boundaries {
		res, err := e.count(ctx, query.And(expr, clause))
		if err != nil {
			return 0, err
		}
		if res.Truncated {
			return 0, &DegenerateRangeError{Expr: expr, Clause: clause}
		}
		total += res.Count
	}

	return total, nil
}
