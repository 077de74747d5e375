package placeholder

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date/time layouts emitted by the format modifier.
const (
	layoutDate         = "02.01.2006"
	layoutTime         = "15:04"
	layoutTimeFull     = "15:04:05"
	layoutDatetime     = "02.01.2006 15:04"
	layoutDatetimeFull = "02.01.2006 15:04:05"
	layoutPGDate       = "2006-01-02"
	layoutPGDatetime   = "2006-01-02 15:04:05"
)

// temporal is a parsed date/datetime plus enough information to render it
// back in the shape it arrived in.
type temporal struct {
	t       time.Time
	hasTime bool
	// layout is the input layout for string round-tripping; empty for
	// time.Time and unix inputs.
	layout string
}

func (tp temporal) render() any {
	if tp.layout != "" {
		return tp.t.Format(tp.layout)
	}
	return tp.t
}

// parseLayouts are tried in order; hasTime marks layouts carrying a clock.
var parseLayouts = []struct {
	layout  string
	hasTime bool
}{
	{layoutDatetimeFull, true},
	{layoutDatetime, true},
	{layoutDate, false},
	{layoutPGDatetime, true},
	{time.RFC3339, true},
	{layoutPGDate, false},
}

// parseTemporal accepts time.Time, unix seconds (int, float, or digit
// string), and the supported date/datetime string layouts.
func parseTemporal(v any) (temporal, bool) {
	switch val := v.(type) {
	case time.Time:
		return temporal{t: val, hasTime: true}, true
	case int:
		return temporal{t: time.Unix(int64(val), 0).UTC(), hasTime: true}, true
	case int64:
		return temporal{t: time.Unix(val, 0).UTC(), hasTime: true}, true
	case float64:
		return temporal{t: time.Unix(int64(val), 0).UTC(), hasTime: true}, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return temporal{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return temporal{t: time.Unix(n, 0).UTC(), hasTime: true}, true
		}
		for _, pl := range parseLayouts {
			if t, err := time.Parse(pl.layout, s); err == nil {
				return temporal{t: t, hasTime: pl.hasTime, layout: pl.layout}, true
			}
		}
	}
	return temporal{}, false
}

// secondsPattern matches duration atoms like "2d" inside "1w 2d 3h 4m 5s".
var secondsPattern = regexp.MustCompile(`(\d+)\s*([wdhms])`)

// secondsPerUnit maps duration suffixes to seconds.
var secondsPerUnit = map[string]int64{
	"w": 7 * 24 * 3600,
	"d": 24 * 3600,
	"h": 3600,
	"m": 60,
	"s": 1,
}

// modSeconds parses duration expressions like "1w 2d 3h 4m 5s" into total
// seconds. Bare numbers pass through as seconds.
func modSeconds(_ *Expander, v any, _ string, _ map[string]any) any {
	switch val := v.(type) {
	case int, int64:
		return v
	case float64:
		return int(val)
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return int(n)
		}
		matches := secondsPattern.FindAllStringSubmatch(s, -1)
		if len(matches) == 0 {
			slog.Warn("seconds modifier could not parse duration", "value", val)
			return v
		}
		var total int64
		for _, m := range matches {
			n, _ := strconv.ParseInt(m[1], 10, 64)
			total += n * secondsPerUnit[m[2]]
		}
		return int(total)
	}
	slog.Warn("seconds modifier applied to unsupported type")
	return v
}

// shiftPattern matches PostgreSQL-style interval arguments: "+1 day",
// "-2 weeks", "+30 minutes".
var shiftPattern = regexp.MustCompile(`^([+-])\s*(\d+)\s*([a-z]+)$`)

// modShift adds or subtracts an interval, preserving the time-presence of
// the input: a date stays a date, a datetime stays a datetime.
func modShift(e *Expander, v any, arg string, ctx map[string]any) any {
	tp, ok := parseTemporal(v)
	if !ok {
		slog.Warn("shift modifier applied to a non-temporal value")
		return v
	}
	spec := strings.ToLower(strings.TrimSpace(stringify(e.expandArg(arg, ctx))))
	m := shiftPattern.FindStringSubmatch(spec)
	if m == nil {
		slog.Warn("Invalid shift interval", "interval", arg)
		return v
	}
	n, _ := strconv.Atoi(m[2])
	if m[1] == "-" {
		n = -n
	}
	switch strings.TrimSuffix(m[3], "s") {
	case "year":
		tp.t = tp.t.AddDate(n, 0, 0)
	case "month":
		tp.t = tp.t.AddDate(0, n, 0)
	case "week":
		tp.t = tp.t.AddDate(0, 0, 7*n)
	case "day":
		tp.t = tp.t.AddDate(0, 0, n)
	case "hour":
		tp.t = tp.t.Add(time.Duration(n) * time.Hour)
	case "minute", "min":
		tp.t = tp.t.Add(time.Duration(n) * time.Minute)
	case "second", "sec":
		tp.t = tp.t.Add(time.Duration(n) * time.Second)
	default:
		slog.Warn("Unknown shift unit", "unit", m[3])
		return v
	}
	return tp.render()
}

// truncPeriod builds the to_<period> modifier: truncate to the period
// start. Weeks start on Monday.
func truncPeriod(period string) modifierFunc {
	return func(_ *Expander, v any, _ string, _ map[string]any) any {
		tp, ok := parseTemporal(v)
		if !ok {
			slog.Warn("Period truncation applied to a non-temporal value", "period", period)
			return v
		}
		t := tp.t
		switch period {
		case "second":
			t = t.Truncate(time.Second)
		case "minute":
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
		case "hour":
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
		case "date":
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		case "week":
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
			// Monday is day 1; Sunday rolls back 6 days.
			offset := (int(t.Weekday()) + 6) % 7
			t = t.AddDate(0, 0, -offset)
		case "month":
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		case "year":
			t = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
		}
		return t
	}
}

// modFormat renders temporal and numeric values in fixed shapes. Unix
// seconds input is accepted by every date-emitting form.
func modFormat(_ *Expander, v any, arg string, _ map[string]any) any {
	switch strings.TrimSpace(arg) {
	case "date":
		return formatTemporal(v, layoutDate)
	case "time":
		return formatTemporal(v, layoutTime)
	case "time_full":
		return formatTemporal(v, layoutTimeFull)
	case "datetime":
		return formatTemporal(v, layoutDatetime)
	case "datetime_full":
		return formatTemporal(v, layoutDatetimeFull)
	case "pg_date":
		return formatTemporal(v, layoutPGDate)
	case "pg_datetime":
		return formatTemporal(v, layoutPGDatetime)
	case "timestamp":
		tp, ok := parseTemporal(v)
		if !ok {
			slog.Warn("format:timestamp applied to a non-temporal value")
			return v
		}
		return int(tp.t.Unix())
	case "number":
		return formatNumber(v)
	case "currency":
		return formatCurrency(v)
	case "percent":
		return formatPercent(v)
	}
	slog.Warn("Unknown format modifier argument", "arg", arg)
	return v
}

func formatTemporal(v any, layout string) any {
	tp, ok := parseTemporal(v)
	if !ok {
		slog.Warn("Date format applied to a non-temporal value", "layout", layout)
		return v
	}
	return tp.t.Format(layout)
}

// formatNumber renders a number with space-separated thousands groups:
// 1234567.5 → "1 234 567.5".
func formatNumber(v any) any {
	f, isInt, ok := toNumber(v)
	if !ok {
		slog.Warn("format:number applied to a non-numeric value")
		return v
	}
	var whole, frac string
	if isInt {
		whole = strconv.FormatInt(int64(f), 10)
	} else {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		whole, frac, _ = strings.Cut(s, ".")
	}
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var groups []string
	for len(whole) > 3 {
		groups = append([]string{whole[len(whole)-3:]}, groups...)
		whole = whole[:len(whole)-3]
	}
	groups = append([]string{whole}, groups...)

	out := strings.Join(groups, " ")
	if neg {
		out = "-" + out
	}
	if frac != "" {
		out += "." + frac
	}
	return out
}

// formatCurrency renders a ruble amount: 900 → "900 ₽".
func formatCurrency(v any) any {
	n := formatNumber(v)
	if s, ok := n.(string); ok {
		return s + " ₽"
	}
	return v
}

// formatPercent renders a ratio as a percentage: 0.9 → "90%".
func formatPercent(v any) any {
	f, _, ok := toNumber(v)
	if !ok {
		slog.Warn("format:percent applied to a non-numeric value")
		return v
	}
	return strconv.FormatFloat(f*100, 'f', -1, 64) + "%"
}
