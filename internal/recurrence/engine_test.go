package recurrence

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func mustCollect(t *testing.T, engine *Engine, series Series, from, to time.Time) []Occurrence {
	t.Helper()
	occurrences, err := engine.Collect(series, from, to)
	require.NoError(t, err)
	return occurrences
}

func dates(occurrences []Occurrence) []string {
	out := make([]string, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, occurrence.Date)
	}
	return out
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	monday := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	t.Run("weekly rule lands on selected weekdays", func(t *testing.T) {
		t.Parallel()

		series := Series{
			ID:    "series-1",
			Start: monday,
			End:   monday.Add(time.Hour),
			Rule: Rule{
				Frequency:  FrequencyWeekly,
				Interval:   1,
				DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
			},
		}
		windowStart := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
		occurrences := mustCollect(t, engine, series, windowStart, windowStart.AddDate(0, 0, 14))

		require.Len(t, occurrences, 6)
		assert.Equal(t, []string{
			"2024-03-04", "2024-03-06", "2024-03-08",
			"2024-03-11", "2024-03-13", "2024-03-15",
		}, dates(occurrences))
		for _, occurrence := range occurrences {
			assert.Equal(t, "series-1", occurrence.SeriesID)
			assert.Equal(t, time.Hour, occurrence.End.Sub(occurrence.Start))
			assert.Equal(t, 9, occurrence.Start.Hour())
		}
	})

	t.Run("weekly rule without day filter repeats on the anchor weekday", func(t *testing.T) {
		t.Parallel()

		series := Series{ID: "s", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyWeekly, Interval: 2}}
		occurrences := mustCollect(t, engine, series, monday, monday.AddDate(0, 0, 35))

		assert.Equal(t, []string{"2024-03-04", "2024-03-18", "2024-04-01"}, dates(occurrences))
	})

	t.Run("monthly rule clamps to the last day of short months", func(t *testing.T) {
		t.Parallel()

		for _, tc := range []struct {
			year int
			want string
		}{
			{year: 2023, want: "2023-02-28"},
			{year: 2024, want: "2024-02-29"},
		} {
			anchor := time.Date(tc.year, time.January, 31, 8, 30, 0, 0, time.UTC)
			series := Series{ID: "m", Start: anchor, End: anchor.Add(30 * time.Minute), Rule: Rule{
				Frequency:  FrequencyMonthly,
				Interval:   1,
				DayOfMonth: 31,
			}}
			occurrences := mustCollect(t, engine, series, anchor, time.Date(tc.year, time.March, 1, 0, 0, 0, 0, time.UTC))

			require.Len(t, occurrences, 2)
			assert.Equal(t, tc.want, occurrences[1].Date)
			assert.Equal(t, 8, occurrences[1].Start.Hour())
		}
	})

	t.Run("monthly rule returns to the requested day after a short month", func(t *testing.T) {
		t.Parallel()

		anchor := time.Date(2023, time.January, 31, 8, 0, 0, 0, time.UTC)
		series := Series{ID: "m", Start: anchor, End: anchor, Rule: Rule{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: 31}}
		occurrences := mustCollect(t, engine, series, anchor, time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC))

		assert.Equal(t, []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"}, dates(occurrences))
	})

	t.Run("count bounds the whole series across sub-ranges", func(t *testing.T) {
		t.Parallel()

		series := Series{ID: "c", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyDaily, Interval: 1, Count: 3}}

		all := mustCollect(t, engine, series, monday.AddDate(-1, 0, 0), monday.AddDate(5, 0, 0))
		require.Len(t, all, 3)

		first := mustCollect(t, engine, series, monday, monday.AddDate(0, 0, 2))
		second := mustCollect(t, engine, series, monday.AddDate(0, 0, 2), monday.AddDate(0, 0, 30))
		assert.Len(t, first, 2)
		require.Len(t, second, 1)
		assert.Equal(t, 2, second[0].Index)
		assert.Empty(t, mustCollect(t, engine, series, monday.AddDate(0, 0, 3), monday.AddDate(1, 0, 0)))
	})

	t.Run("whichever of count and until is reached first ends the series", func(t *testing.T) {
		t.Parallel()

		until := monday.AddDate(0, 0, 2)
		byUntil := Series{ID: "u", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyDaily, Interval: 1, Count: 10, Until: &until}}
		assert.Len(t, mustCollect(t, engine, byUntil, monday, monday.AddDate(0, 1, 0)), 3)

		longUntil := monday.AddDate(1, 0, 0)
		byCount := Series{ID: "u", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyDaily, Interval: 1, Count: 4, Until: &longUntil}}
		assert.Len(t, mustCollect(t, engine, byCount, monday, monday.AddDate(0, 1, 0)), 4)
	})

	t.Run("inverted window yields nothing", func(t *testing.T) {
		t.Parallel()

		series := Series{ID: "i", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyDaily, Interval: 1}}
		assert.Empty(t, mustCollect(t, engine, series, monday.AddDate(0, 0, 5), monday))
	})

	t.Run("non-recurring block yields only its anchor", func(t *testing.T) {
		t.Parallel()

		series := Series{ID: "n", Start: monday, End: monday.Add(time.Hour), Rule: Rule{Frequency: FrequencyNone}}
		occurrences := mustCollect(t, engine, series, monday.AddDate(0, 0, -1), monday.AddDate(0, 0, 30))
		require.Len(t, occurrences, 1)
		assert.Equal(t, "2024-03-04", occurrences[0].Date)
	})

	t.Run("exceptions skip exactly one date and keep sibling indexes", func(t *testing.T) {
		t.Parallel()

		rule := Rule{Frequency: FrequencyDaily, Interval: 1}
		base := Series{ID: "e", Start: monday, End: monday, Rule: rule}
		withException := base
		withException.Exceptions = NewDateSet("2024-03-06")

		before := mustCollect(t, engine, base, monday, monday.AddDate(0, 0, 5))
		after := mustCollect(t, engine, withException, monday, monday.AddDate(0, 0, 5))

		require.Len(t, after, len(before)-1)
		assert.NotContains(t, dates(after), "2024-03-06")
		for _, occurrence := range after {
			assert.Equal(t, int(occurrence.Start.Sub(monday)/(24*time.Hour)), occurrence.Index)
		}
	})

	t.Run("paused series stops emitting from the pause instant", func(t *testing.T) {
		t.Parallel()

		pausedAt := monday.AddDate(0, 0, 3)
		series := Series{ID: "p", Start: monday, End: monday, Paused: true, PausedAt: &pausedAt, Rule: Rule{Frequency: FrequencyDaily, Interval: 1}}

		assert.Equal(t, []string{"2024-03-04", "2024-03-05", "2024-03-06"}, dates(mustCollect(t, engine, series, monday, monday.AddDate(0, 0, 10))))
		assert.Empty(t, mustCollect(t, engine, series, pausedAt, pausedAt.AddDate(0, 1, 0)))

		series.PausedAt = nil
		assert.Empty(t, mustCollect(t, engine, series, monday, monday.AddDate(0, 0, 10)))
	})

	t.Run("sequence is restartable and stable", func(t *testing.T) {
		t.Parallel()

		series := Series{ID: "r", Start: monday, End: monday, Rule: Rule{Frequency: FrequencyWeekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Tuesday, time.Saturday}}}
		seq, err := engine.Expand(series, monday, monday.AddDate(0, 2, 0))
		require.NoError(t, err)

		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
		assert.Equal(t, first, mustCollect(t, engine, series, monday, monday.AddDate(0, 2, 0)))
	})
}

func TestEngine_Expand_OrderAndWindow(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	anchor := time.Date(2024, time.January, 15, 18, 45, 0, 0, time.UTC)
	windowStart := time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2024, time.August, 20, 0, 0, 0, 0, time.UTC)

	rules := []Rule{
		{Frequency: FrequencyDaily, Interval: 1},
		{Frequency: FrequencyDaily, Interval: 4},
		{Frequency: FrequencyWeekly, Interval: 1},
		{Frequency: FrequencyWeekly, Interval: 3, DaysOfWeek: []time.Weekday{time.Sunday, time.Thursday, time.Saturday}},
		{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: 30},
		{Frequency: FrequencyMonthly, Interval: 2},
	}

	for _, rule := range rules {
		series := Series{ID: "o", Start: anchor, End: anchor.Add(time.Hour), Rule: rule}
		occurrences := mustCollect(t, engine, series, windowStart, windowEnd)
		require.NotEmpty(t, occurrences, "rule %+v", rule)

		for i, occurrence := range occurrences {
			assert.False(t, occurrence.Start.Before(windowStart), "rule %+v starts before window", rule)
			assert.True(t, occurrence.Start.Before(windowEnd), "rule %+v starts after window", rule)
			if i > 0 {
				assert.True(t, occurrences[i-1].Start.Before(occurrence.Start), "rule %+v not strictly ascending", rule)
				assert.Greater(t, occurrence.Index, occurrences[i-1].Index)
			}
		}
	}
}

func TestEngine_Expand_InvalidRules(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	start := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)

	for name, rule := range map[string]Rule{
		"zero interval":          {Frequency: FrequencyDaily, Interval: 0},
		"negative interval":      {Frequency: FrequencyMonthly, Interval: -2},
		"empty weekday filter":   {Frequency: FrequencyWeekly, Interval: 1, DaysOfWeek: []time.Weekday{}},
		"unknown frequency":      {Frequency: "yearly", Interval: 1},
		"day of month too large": {Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: 32},
	} {
		_, err := engine.Expand(Series{ID: "x", Start: start, End: start, Rule: rule}, start, start.AddDate(0, 1, 0))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrInvalidRule), name)

		var ruleErr *RuleError
		assert.True(t, errors.As(err, &ruleErr), name)
	}
}

func TestEngine_Expand_MatchesRRule(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	anchor := time.Date(2024, time.March, 4, 7, 15, 0, 0, time.UTC)

	rules := []Rule{
		{Frequency: FrequencyDaily, Interval: 3, Count: 15},
		{Frequency: FrequencyWeekly, Interval: 2, Count: 20, DaysOfWeek: []time.Weekday{time.Monday, time.Thursday}},
		{Frequency: FrequencyWeekly, Interval: 1, Count: 12},
	}

	for _, rule := range rules {
		opt, err := rule.ROption(anchor)
		require.NoError(t, err)
		oracle, err := rrule.NewRRule(opt)
		require.NoError(t, err)

		series := Series{ID: "oracle", Start: anchor, End: anchor, Rule: rule}
		got := mustCollect(t, engine, series, anchor, anchor.AddDate(5, 0, 0))

		want := oracle.All()
		require.Len(t, got, len(want), "rule %+v", rule)
		for i := range want {
			assert.True(t, want[i].Equal(got[i].Start), "rule %+v occurrence %d: want %s got %s", rule, i, want[i], got[i].Start)
		}
	}
}

func TestEngine_Location(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*60*60)
	engine := NewEngine(loc)

	// 2024-03-04T20:00Z is already Tuesday in UTC+9.
	start := time.Date(2024, time.March, 4, 20, 0, 0, 0, time.UTC)
	series := Series{ID: "tz", Start: start, End: start.Add(time.Hour), Rule: Rule{Frequency: FrequencyDaily, Interval: 1, Count: 2}}
	occurrences := mustCollect(t, engine, series, start, start.AddDate(0, 0, 5))

	require.Len(t, occurrences, 2)
	assert.Equal(t, "2024-03-05", occurrences[0].Date)
	assert.Equal(t, "2024-03-05", engine.DateKey(start))
}
