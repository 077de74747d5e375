package placeholder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondsParsing(t *testing.T) {
	e := NewExpander()

	tests := []struct {
		template string
		ctx      map[string]any
		want     any
	}{
		{"{d|seconds}", map[string]any{"d": "1w 2d 3h 4m 5s"}, 788645},
		{"{d|seconds}", map[string]any{"d": "90s"}, 90},
		{"{d|seconds}", map[string]any{"d": "1h 30m"}, 5400},
		{"{d|seconds}", map[string]any{"d": "600"}, 600},
		{"{d|seconds}", map[string]any{"d": 45}, 45},
		{"{d|seconds}", map[string]any{"d": "garbage"}, "garbage"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, tt.ctx), "%v", tt.ctx["d"])
	}
}

func TestShiftPreservesTimePresence(t *testing.T) {
	e := NewExpander()

	// Date input stays a date.
	got := e.ExpandString("{d|shift:+1 day}", map[string]any{"d": "01.05.2024"})
	assert.Equal(t, "02.05.2024", got)

	// Datetime input keeps its clock.
	got = e.ExpandString("{d|shift:+2 hours}", map[string]any{"d": "01.05.2024 10:00:00"})
	assert.Equal(t, "01.05.2024 12:00:00", got)

	// PG-style input keeps PG shape.
	got = e.ExpandString("{d|shift:-1 week}", map[string]any{"d": "2024-05-08"})
	assert.Equal(t, "2024-05-01", got)
}

func TestShiftUnits(t *testing.T) {
	e := NewExpander()
	base := map[string]any{"d": "15.06.2024"}

	tests := []struct {
		arg  string
		want string
	}{
		{"+1 year", "15.06.2025"},
		{"-1 month", "15.05.2024"},
		{"+2 weeks", "29.06.2024"},
		{"-14 days", "01.06.2024"},
	}
	for _, tt := range tests {
		got := e.ExpandString("{d|shift:"+tt.arg+"}", base)
		assert.Equal(t, tt.want, got, tt.arg)
	}
}

func TestInvalidShiftLeavesValue(t *testing.T) {
	e := NewExpander()
	got := e.ExpandString("{d|shift:whenever}", map[string]any{"d": "01.05.2024"})
	assert.Equal(t, "01.05.2024", got)
}

func TestPeriodTruncation(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"d": "15.06.2024 13:45:30"}

	tests := []struct {
		template string
		want     string
	}{
		{"{d|to_minute|format:datetime_full}", "15.06.2024 13:45:00"},
		{"{d|to_hour|format:datetime_full}", "15.06.2024 13:00:00"},
		{"{d|to_date|format:datetime_full}", "15.06.2024 00:00:00"},
		{"{d|to_month|format:date}", "01.06.2024"},
		{"{d|to_year|format:date}", "01.01.2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

func TestWeekTruncationStartsMonday(t *testing.T) {
	e := NewExpander()

	// 2024-06-15 is a Saturday; its week starts Monday 2024-06-10.
	got := e.ExpandString("{d|to_week|format:pg_date}", map[string]any{"d": "2024-06-15"})
	assert.Equal(t, "2024-06-10", got)

	// Sunday rolls back six days.
	got = e.ExpandString("{d|to_week|format:pg_date}", map[string]any{"d": "2024-06-16"})
	assert.Equal(t, "2024-06-10", got)

	// Monday is already the week start.
	got = e.ExpandString("{d|to_week|format:pg_date}", map[string]any{"d": "2024-06-10"})
	assert.Equal(t, "2024-06-10", got)
}

func TestFormatShapes(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"d": "15.06.2024 13:45:30"}

	tests := []struct {
		template string
		want     any
	}{
		{"{d|format:date}", "15.06.2024"},
		{"{d|format:time}", "13:45"},
		{"{d|format:time_full}", "13:45:30"},
		{"{d|format:datetime}", "15.06.2024 13:45"},
		{"{d|format:datetime_full}", "15.06.2024 13:45:30"},
		{"{d|format:pg_date}", "2024-06-15"},
		{"{d|format:pg_datetime}", "2024-06-15 13:45:30"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

func TestUnixSecondsAcceptedByDateForms(t *testing.T) {
	e := NewExpander()
	ts := time.Date(2024, 6, 15, 13, 45, 30, 0, time.UTC).Unix()
	ctx := map[string]any{"ts": int(ts), "ts_str": "1718459130"}

	got := e.ExpandString("{ts|format:pg_datetime}", ctx)
	assert.Equal(t, "2024-06-15 13:45:30", got)

	// Digit-string input works the same.
	require.IsType(t, "", e.ExpandString("{ts_str|format:date}", ctx))
}

func TestTimestampRoundTrip(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"d": "15.06.2024 13:45:30"}

	ts := e.ExpandString("{d|format:timestamp}", ctx)
	n, ok := ts.(int)
	require.True(t, ok)

	back := e.ExpandString("{ts|format:datetime_full}", map[string]any{"ts": n})
	assert.Equal(t, "15.06.2024 13:45:30", back)
}

func TestEpochZeroDoesNotCrash(t *testing.T) {
	e := NewExpander()
	got := e.ExpandString("{d|format:date}", map[string]any{"d": 0})
	assert.Equal(t, "01.01.1970", got)
}

func TestNumberFormats(t *testing.T) {
	e := NewExpander()

	tests := []struct {
		template string
		ctx      map[string]any
		want     any
	}{
		{"{n|format:number}", map[string]any{"n": 1234567}, "1 234 567"},
		{"{n|format:number}", map[string]any{"n": 999}, "999"},
		{"{n|format:number}", map[string]any{"n": -1234}, "-1 234"},
		{"{n|format:number}", map[string]any{"n": 1234.56}, "1 234.56"},
		{"{n|format:currency}", map[string]any{"n": 900}, "900 ₽"},
		{"{n|format:currency}", map[string]any{"n": 12500}, "12 500 ₽"},
		{"{n|format:percent}", map[string]any{"n": 0.9}, "90%"},
		{"{n|format:percent}", map[string]any{"n": 0.125}, "12.5%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, tt.ctx), tt.template)
	}
}
