package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, time.Now().Year(), cfg.CurrentYear)
	assert.Equal(t, DefaultLookback, cfg.Lookback)
	assert.Equal(t, DefaultScoreSeed, cfg.ScoreSeed)

	set := Config{CurrentYear: 2020, Lookback: 5, ScoreSeed: 64}
	set.SetDefaults()
	assert.Equal(t, Config{CurrentYear: 2020, Lookback: 5, ScoreSeed: 64}, set)
}

func TestYearsRunOrder(t *testing.T) {
	cfg := Config{CurrentYear: 2025, Lookback: 3}
	assert.Equal(t, []int{2022, 2023, 2024}, cfg.Years())
}
