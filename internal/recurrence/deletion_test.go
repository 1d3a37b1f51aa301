package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ResolveDeletion(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)

	tests := []struct {
		name   string
		target Target
		scope  Scope
		want   DeletionEffect
	}{
		{
			name:   "this on a generated occurrence records an exception",
			target: Target{BlockID: "root", Recurring: true, AnchorDate: "2024-03-04", OccurrenceDate: "2024-03-06"},
			scope:  ScopeThis,
			want:   DeletionEffect{Exception: &Exception{SeriesID: "root", Date: "2024-03-06"}},
		},
		{
			name:   "this on the root excludes the anchor date",
			target: Target{BlockID: "root", Recurring: true, AnchorDate: "2024-03-04"},
			scope:  ScopeThis,
			want:   DeletionEffect{Exception: &Exception{SeriesID: "root", Date: "2024-03-04"}},
		},
		{
			name:   "this on a materialized row deletes it and keeps its date excluded",
			target: Target{BlockID: "child", ParentID: "root", AnchorDate: "2024-03-08"},
			scope:  ScopeThis,
			want:   DeletionEffect{DeleteBlockID: "child", Exception: &Exception{SeriesID: "root", Date: "2024-03-08"}},
		},
		{
			name:   "this on a plain block deletes it",
			target: Target{BlockID: "plain", AnchorDate: "2024-03-04"},
			scope:  ScopeThis,
			want:   DeletionEffect{DeleteBlockID: "plain"},
		},
		{
			name:   "all on the root deletes the series",
			target: Target{BlockID: "root", Recurring: true},
			scope:  ScopeAll,
			want:   DeletionEffect{DeleteSeriesID: "root"},
		},
		{
			name:   "all on a materialized row deletes its series",
			target: Target{BlockID: "child", ParentID: "root"},
			scope:  ScopeAll,
			want:   DeletionEffect{DeleteSeriesID: "root"},
		},
		{
			name:   "all on a plain block deletes it",
			target: Target{BlockID: "plain"},
			scope:  ScopeAll,
			want:   DeletionEffect{DeleteBlockID: "plain"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := engine.ResolveDeletion(tc.target, tc.scope)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects unknown scopes", func(t *testing.T) {
		t.Parallel()

		_, err := engine.ResolveDeletion(Target{BlockID: "root"}, Scope("future"))
		assert.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestResolveDeletion_ThenExpand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(time.UTC)
	anchor := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	series := Series{ID: "root", Start: anchor, End: anchor.Add(time.Hour), Rule: Rule{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}}
	windowEnd := anchor.AddDate(0, 0, 14)

	before := mustCollect(t, engine, series, anchor, windowEnd)
	effect, err := engine.ResolveDeletion(Target{BlockID: "root", Recurring: true, AnchorDate: engine.DateKey(anchor), OccurrenceDate: "2024-03-13"}, ScopeThis)
	require.NoError(t, err)
	require.NotNil(t, effect.Exception)

	series.Exceptions = NewDateSet(effect.Exception.Date)
	after := mustCollect(t, engine, series, anchor, windowEnd)

	require.Len(t, after, len(before)-1)
	assert.NotContains(t, dates(after), "2024-03-13")
	for _, occurrence := range before {
		if occurrence.Date != "2024-03-13" {
			assert.Contains(t, dates(after), occurrence.Date)
		}
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()

	scope, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeThis, scope)

	scope, err = ParseScope(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope)

	_, err = ParseScope("following")
	assert.ErrorIs(t, err, ErrInvalidScope)
}
