package counter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/domain"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/search"
)

// scoreWindow is one queried score range and whether it truncated.
type scoreWindow struct {
	lo, hi    int
	truncated bool
}

// fakeClient simulates the search endpoint from a score histogram and a
// truncation threshold: any expression whose true count reaches the
// threshold reports truncation instead of a count.
type fakeClient struct {
	hist      map[int]int
	threshold int
	calls     []string
	windows   []scoreWindow
}

func (f *fakeClient) Count(_ context.Context, expr string) (search.Result, error) {
	f.calls = append(f.calls, expr)
	lo, hi, isRange := parseScoreClause(expr)
	n := 0
	for score, c := range f.hist {
		if score >= lo && score <= hi {
			n += c
		}
	}
	truncated := n >= f.threshold
	if isRange {
		f.windows = append(f.windows, scoreWindow{lo: lo, hi: hi, truncated: truncated})
	}
	if truncated {
		return search.Result{Truncated: true}, nil
	}
	return search.Result{Count: n}, nil
}

func (f *fakeClient) TagPage(context.Context, int) ([]string, error) { return nil, nil }
func (f *fakeClient) Close() error                                   { return nil }

// parseScoreClause extracts the score filter from a composed
// expression. Absent any clause the whole domain matches.
func parseScoreClause(expr string) (lo, hi int, isRange bool) {
	lo, hi = -1<<40, 1<<40
	for _, tok := range strings.Fields(expr) {
		switch {
		case tok == "score:<=0":
			hi = 0
		case strings.HasPrefix(tok, "score:>"):
			v, _ := strconv.Atoi(strings.TrimPrefix(tok, "score:>"))
			lo = v + 1
		case strings.HasPrefix(tok, "score:"):
			parts := strings.SplitN(strings.TrimPrefix(tok, "score:"), "..", 2)
			lo, _ = strconv.Atoi(parts[0])
			hi, _ = strconv.Atoi(parts[1])
			isRange = true
		}
	}
	return lo, hi, isRange
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(c search.Client, rc retry.Config) *Engine {
	cfg := domain.Config{CurrentYear: 2025, Lookback: 18, ScoreSeed: 512}
	return New(c, cfg, rc, testLogger())
}

func TestCountForYearExactWithoutPartitioning(t *testing.T) {
	f := &fakeClient{hist: map[int]int{-5: 3, 100: 10, 600: 2}, threshold: 1000}
	e := newTestEngine(f, retry.Config{MaxAttempts: 1})

	n, err := e.CountForYear(context.Background(), "wolf", 1)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "wolf status:any date:1_yesteryears_ago", f.calls[0])
}

func TestPartitionShrinksOnceAndSlides(t *testing.T) {
	// [1,512] holds 60 posts and truncates at 50; both halves fit.
	f := &fakeClient{hist: map[int]int{100: 30, 400: 30}, threshold: 50}
	e := newTestEngine(f, retry.Config{MaxAttempts: 1})

	n, err := e.countTopLevel(context.Background(), "wolf")
	require.NoError(t, err)
	assert.Equal(t, 60, n)

	full := 0
	for _, c := range f.calls {
		if strings.Contains(c, "score:1..512") {
			full++
		}
	}
	assert.Equal(t, 1, full, "the failed full-width window must never be re-queried")

	var succeeded []scoreWindow
	for _, w := range f.windows {
		if !w.truncated {
			succeeded = append(succeeded, w)
		}
	}
	require.Len(t, succeeded, 2)
	assert.Equal(t, scoreWindow{lo: 257, hi: 512}, succeeded[0])
	assert.Equal(t, scoreWindow{lo: 1, hi: 256}, succeeded[1])
}

func TestDegenerateRangeSurfaces(t *testing.T) {
	// A single score value holds more posts than the ceiling allows, so
	// even width-1 windows truncate.
	f := &fakeClient{hist: map[int]int{5: 100}, threshold: 50}
	e := newTestEngine(f, retry.Config{MaxAttempts: 1})

	_, err := e.countTopLevel(context.Background(), "wolf")
	var dre *DegenerateRangeError
	require.ErrorAs(t, err, &dre)
	assert.Equal(t, "score:5..5", dre.Clause)
	assert.Equal(t, "wolf", dre.Expr)
}

func TestBoundaryTruncationSurfaces(t *testing.T) {
	f := &fakeClient{hist: map[int]int{100: 60, 600: 100}, threshold: 70}
	e := newTestEngine(f, retry.Config{MaxAttempts: 1})

	_, err := e.countTopLevel(context.Background(), "wolf")
	var dre *DegenerateRangeError
	require.ErrorAs(t, err, &dre)
	assert.Equal(t, "score:>512", dre.Clause)
}

// yearFake answers per-offset counts keyed on the date filter.
type yearFake struct {
	byOffset map[int]int
}

func (y *yearFake) Count(_ context.Context, expr string) (search.Result, error) {
	for _, tok := range strings.Fields(expr) {
		if strings.HasPrefix(tok, "date:") {
			offset, _ := strconv.Atoi(strings.SplitN(strings.TrimPrefix(tok, "date:"), "_", 2)[0])
			return search.Result{Count: y.byOffset[offset]}, nil
		}
	}
	return search.Result{}, nil
}

func (y *yearFake) TagPage(context.Context, int) ([]string, error) { return nil, nil }
func (y *yearFake) Close() error                                   { return nil }

func TestSweepTagBuildsFullRecord(t *testing.T) {
	e := newTestEngine(&yearFake{byOffset: map[int]int{1: 42}}, retry.Config{MaxAttempts: 1})

	var order []int
	counts, err := e.SweepTag(context.Background(), "wolf", func(year, count int) {
		order = append(order, year)
	})
	require.NoError(t, err)

	require.Len(t, counts, 18)
	assert.Equal(t, 42, counts[2024])
	for year := 2007; year <= 2023; year++ {
		assert.Equal(t, 0, counts[year], "year %d", year)
	}

	// Oldest year first, most recent last.
	require.Len(t, order, 18)
	assert.Equal(t, 2007, order[0])
	assert.Equal(t, 2024, order[17])
}

// flakyClient fails with a timeout a fixed number of times, then
// answers normally.
type flakyClient struct {
	failures int
	attempts int
	count    int
}

func (f *flakyClient) Count(context.Context, string) (search.Result, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return search.Result{}, context.DeadlineExceeded
	}
	return search.Result{Count: f.count}, nil
}

func (f *flakyClient) TagPage(context.Context, int) ([]string, error) { return nil, nil }
func (f *flakyClient) Close() error                                   { return nil }

func TestTransientTimeoutsAreRetried(t *testing.T) {
	f := &flakyClient{failures: 2, count: 7}
	rc := retry.Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	e := newTestEngine(f, rc)

	n, err := e.CountForYear(context.Background(), "wolf", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 3, f.attempts)
}

func TestRetryExhaustionSurfaces(t *testing.T) {
	f := &flakyClient{failures: 100}
	rc := retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	e := newTestEngine(f, rc)

	_, err := e.CountForYear(context.Background(), "wolf", 1)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, f.attempts)
}

func TestPartitionCoversScoreDomain(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Per-score counts stay below the threshold so a width-1 window can
	// always be counted; only the two boundary slices may be unsplittable.
	const threshold = 40

	properties.Property("partitioned total equals true total and windows tile the span", prop.ForAll(
		func(hist map[int]int) bool {
			f := &fakeClient{hist: hist, threshold: threshold}
			e := newTestEngine(f, retry.Config{MaxAttempts: 1})

			trueTotal, above, nonPos := 0, 0, 0
			for score, c := range hist {
				trueTotal += c
				if score > 512 {
					above += c
				}
				if score <= 0 {
					nonPos += c
				}
			}

			total, err := e.countTopLevel(context.Background(), "wolf")

			if above >= threshold || nonPos >= threshold {
				var dre *DegenerateRangeError
				return errors.As(err, &dre)
			}
			if err != nil || total != trueTotal {
				return false
			}
			if trueTotal < threshold {
				return true // exact path, no partitioning to verify
			}

			// Successful windows must tile [1, 512] exactly: no gap, no
			// overlap, regardless of where truncation forced shrinking.
			var wins []scoreWindow
			for _, w := range f.windows {
				if !w.truncated {
					wins = append(wins, w)
				}
			}
			sort.Slice(wins, func(i, j int) bool { return wins[i].lo < wins[j].lo })
			edge := 0
			for _, w := range wins {
				if w.lo != edge+1 {
					return false
				}
				edge = w.hi
			}
			return edge == 512
		},
		gen.MapOf(gen.IntRange(-20, 600), gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
