package domain

import "time"

const (
	// DefaultLookback is how many years back a sweep reaches by default.
	DefaultLookback = 18

	// DefaultScoreSeed seeds both the upper bound and the window width of
	// the score partitioner. Large enough to keep round trips low, small
	// enough that typical tags stay under the enumeration ceiling.
	DefaultScoreSeed = 512
)

// Config carries the run parameters for a counting sweep.
type Config struct {
	// CurrentYear anchors the year offsets. Zero means this calendar year.
	CurrentYear int
	// Lookback is how many years before CurrentYear to count.
	Lookback int
	// ScoreSeed seeds the bound and interval of the score partitioner.
	ScoreSeed int
}

// SetDefaults fills zero fields with their defaults.
func (c *Config) SetDefaults() {
	if c.CurrentYear == 0 {
		c.CurrentYear = time.Now().Year()
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.ScoreSeed <= 0 {
		c.ScoreSeed = DefaultScoreSeed
	}
}

// Years returns the year columns in run order, oldest first.
func (c Config) Years() []int {
	years := make([]int, 0, c.Lookback)
	for offset := c.Lookback; offset >= 1; offset-- {
		years = append(years, c.CurrentYear-offset)
	}
	return years
}

// Record holds one tag's per-year post counts, keyed by calendar year.
type Record struct {
	Tag    string
	Counts map[int]int
}
