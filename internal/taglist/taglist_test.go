package taglist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yoriyari/e621-Tags-by-Year/internal/retry"
	"github.com/Yoriyari/e621-Tags-by-Year/internal/search"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in          string
		first, last int
		wantErr     bool
	}{
		{"3", 3, 3, false},
		{"1..5", 1, 5, false},
		{"7..7", 7, 7, false},
		{"5..2", 0, 0, true},
		{"0", 0, 0, true},
		{"", 0, 0, true},
		{"abc", 0, 0, true},
		{"1..x", 0, 0, true},
		{"1...5", 0, 0, true},
	}
	for _, tt := range tests {
		first, last, err := ParseRange(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseRange(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseRange(%q)", tt.in)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}

// listFake serves tag names per page, optionally timing out a page once.
type listFake struct {
	pages      map[int][]string
	failPage   int
	failsLeft  int
	pagesAsked []int
}

func (l *listFake) Count(context.Context, string) (search.Result, error) {
	return search.Result{}, nil
}

func (l *listFake) TagPage(_ context.Context, page int) ([]string, error) {
	l.pagesAsked = append(l.pagesAsked, page)
	if page == l.failPage && l.failsLeft > 0 {
		l.failsLeft--
		return nil, context.DeadlineExceeded
	}
	return l.pages[page], nil
}

func (l *listFake) Close() error { return nil }

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

func TestFetchCollectsPagesInOrder(t *testing.T) {
	f := &listFake{pages: map[int][]string{
		1: {"wolf", "fox"},
		2: {"dragon"},
		3: {"cat"},
	}}

	names, err := Fetch(context.Background(), f, fastRetry(1), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"wolf", "fox", "dragon", "cat"}, names)
	assert.Equal(t, []int{1, 2, 3}, f.pagesAsked)
}

func TestFetchRetriesTimedOutPage(t *testing.T) {
	f := &listFake{
		pages:     map[int][]string{1: {"wolf"}, 2: {"fox"}},
		failPage:  2,
		failsLeft: 1,
	}

	names, err := Fetch(context.Background(), f, fastRetry(3), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"wolf", "fox"}, names)
	assert.Equal(t, []int{1, 2, 2}, f.pagesAsked)
}

func TestFetchSurfacesExhaustion(t *testing.T) {
	f := &listFake{
		pages:     map[int][]string{1: {"wolf"}},
		failPage:  1,
		failsLeft: 100,
	}

	_, err := Fetch(context.Background(), f, fastRetry(2), 1, 1)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
