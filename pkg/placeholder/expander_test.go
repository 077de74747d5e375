package placeholder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]any {
	return map[string]any{
		"event_text": "hello world",
		"price":      1000,
		"discount":   0.9,
		"user": map[string]any{
			"name":  "bob",
			"items": []any{"a", "b", "c"},
		},
		"empty_list": []any{},
		"_cache": map[string]any{
			"greeting": "hi",
		},
	}
}

func TestPlainStringPassesThrough(t *testing.T) {
	e := NewExpander()
	assert.Equal(t, "no placeholders here", e.ExpandString("no placeholders here", testContext()))
}

func TestSimplePathResolution(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	assert.Equal(t, "hello world", e.ExpandString("{event_text}", ctx))
	assert.Equal(t, "bob", e.ExpandString("{user.name}", ctx))
	assert.Equal(t, "hi", e.ExpandString("{_cache.greeting}", ctx))
}

func TestArrayIndexing(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	tests := []struct {
		template string
		want     any
	}{
		{"{user.items[0]}", "a"},
		{"{user.items[2]}", "c"},
		{"{user.items[-1]}", "c"},
		{"{user.items[-3]}", "a"},
		// Out of range renders back as the literal placeholder.
		{"{user.items[3]}", "{user.items[3]}"},
		{"{user.items[-4]}", "{user.items[-4]}"},
		{"{empty_list[0]}", "{empty_list[0]}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

func TestNegativeIndexOnSingleElementArray(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"one": []any{"only"}}
	assert.Equal(t, "only", e.ExpandString("{one[-1]}", ctx))
}

func TestQuotedLiteralsBypassLookup(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	assert.Equal(t, "plain", e.ExpandString("{'plain'}", ctx))
	assert.Equal(t, "double", e.ExpandString(`{"double"}`, ctx))
	assert.Equal(t, "it's", e.ExpandString(`{'it\'s'}`, ctx))
}

func TestMissingPathRendersOriginalText(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	assert.Equal(t, "{nope.missing}", e.ExpandString("{nope.missing}", ctx))
	assert.Equal(t, "x {nope} y", e.ExpandString("x {nope} y", ctx))
}

func TestEmbeddedPlaceholdersAreSpliced(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	got := e.ExpandString("Hello {user.name}, price is {price}", ctx)
	assert.Equal(t, "Hello bob, price is 1000", got)
}

func TestWholeStringTypeInference(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{
		"n":     "42",
		"f":     "4.5",
		"yes":   "true",
		"no":    "false",
		"mixed": "42abc",
	}

	assert.Equal(t, 42, e.ExpandString("{n}", ctx))
	assert.Equal(t, 4.5, e.ExpandString("{f}", ctx))
	assert.Equal(t, true, e.ExpandString("{yes}", ctx))
	assert.Equal(t, false, e.ExpandString("{no}", ctx))
	assert.Equal(t, "42abc", e.ExpandString("{mixed}", ctx))
	// Embedded placeholders stay strings.
	assert.Equal(t, "n=42", e.ExpandString("n={n}", ctx))
}

func TestArithmeticChainWithPlaceholderOperand(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	// The end-to-end scenario: {price|*{discount}|format:currency}.
	got := e.ExpandString("{price|*{discount}|format:currency}", ctx)
	s, ok := got.(string)
	require.True(t, ok)
	assert.Contains(t, s, "₽")
	assert.Contains(t, s, "900")
}

func TestArithmeticOperators(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"n": 10, "f": 2.5}

	tests := []struct {
		template string
		want     any
	}{
		{"{n|+5}", 15},
		{"{n|-3}", 7},
		{"{n|*4}", 40},
		{"{n|/2}", 5},
		{"{n|/4}", 2.5},
		{"{n|%3}", 1},
		{"{f|*2}", 5.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

func TestArithmeticOnNonNumberLeavesValue(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"s": "abc"}
	assert.Equal(t, "abc", e.ExpandString("{s|+5}", ctx))
}

func TestDataShapeModifiers(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{
		"s":    "Привет",
		"list": []any{1, 2, 3},
		"word": "hello",
	}

	tests := []struct {
		template string
		want     any
	}{
		{"{s|length}", 6},
		{"{list|length}", 3},
		{"{word|truncate:3}", "hel"},
		{"{word|upper}", "HELLO"},
		{"{s|lower}", "привет"},
		{"{word|capitalize}", "Hello"},
		{"{word|case:upper}", "HELLO"},
		{"{word|code}", "<code>hello</code>"},
		{"{list|comma}", "1, 2, 3"},
		{"{word|regex:l+}", "ll"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

func TestInvalidRegexLeavesValueUntouched(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"s": "abc"}
	assert.Equal(t, "abc", e.ExpandString("{s|regex:[unclosed}", ctx))
}

func TestUnknownModifierLeavesValueUntouched(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"s": "abc"}
	assert.Equal(t, "abc", e.ExpandString("{s|frobnicate}", ctx))
}

func TestConditionalChain(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{
		"status": "active",
		"empty":  "",
		"zero":   0,
	}

	tests := []struct {
		template string
		want     any
	}{
		{"{status|equals:active|value:'yes'|fallback:'no'}", "yes"},
		{"{status|equals:other|value:'yes'|fallback:'no'}", "no"},
		{"{status|in_list:active,disabled}", true},
		{"{status|in_list:a,b,c}", false},
		{"{status|exists}", true},
		{"{missing|exists}", false},
		{"{empty|is_null}", true},
		{"{missing|is_null}", true},
		{"{zero|is_null}", false},
		{"{missing|equals:x}", false},
		{"{missing|fallback:'default'}", "default"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.ExpandString(tt.template, ctx), tt.template)
	}
}

type fakeHandle struct{ ready bool }

func (f fakeHandle) Ready() bool { return f.ready }

func TestReadyModifiers(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{
		"done":    fakeHandle{ready: true},
		"pending": fakeHandle{ready: false},
	}

	assert.Equal(t, true, e.ExpandString("{done|ready}", ctx))
	assert.Equal(t, false, e.ExpandString("{pending|ready}", ctx))
	assert.Equal(t, true, e.ExpandString("{pending|not_ready}", ctx))
	assert.Equal(t, "wait", e.ExpandString("{pending|ready|value:'go'|fallback:'wait'}", ctx))
	assert.Equal(t, "go", e.ExpandString("{done|ready|value:'go'|fallback:'wait'}", ctx))
}

func TestExpandSplicesListOfLists(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{
		"kb": []any{
			[]any{map[string]any{"A": "a"}},
			[]any{map[string]any{"B": "b"}},
		},
	}
	params := map[string]any{
		"inline": []any{"{kb|expand}", map[string]any{"Back": "back"}},
	}

	result := e.Expand(params, ctx).(map[string]any)
	inline := result["inline"].([]any)
	require.Len(t, inline, 3)
	assert.Equal(t, []any{map[string]any{"A": "a"}}, inline[0])
	assert.Equal(t, []any{map[string]any{"B": "b"}}, inline[1])
	assert.Equal(t, map[string]any{"Back": "back"}, inline[2])
}

func TestExpandModifierOutsideListIsIdentity(t *testing.T) {
	e := NewExpander()
	ctx := map[string]any{"v": []any{1, 2}}
	assert.Equal(t, []any{1, 2}, e.ExpandString("{v|expand}", ctx))
}

func TestNestedStructuresExpandRecursively(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	params := map[string]any{
		"text": "Hi {user.name}",
		"nested": map[string]any{
			"price": "{price}",
			"list":  []any{"{user.name}", "static"},
		},
	}

	result := e.Expand(params, ctx).(map[string]any)
	assert.Equal(t, "Hi bob", result["text"])
	nested := result["nested"].(map[string]any)
	assert.Equal(t, 1000, nested["price"])
	assert.Equal(t, []any{"bob", "static"}, nested["list"])
}

func TestTemplateCacheReuse(t *testing.T) {
	e := NewExpander()
	ctx := testContext()

	for i := 0; i < 3; i++ {
		assert.Equal(t, "bob", e.ExpandString("{user.name}", ctx))
	}
	_, ok := e.templates.Get("{user.name}")
	assert.True(t, ok)
}

func TestStringifyTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "01.05.2024 12:30:00", stringify(ts))
}

func TestUnclosedBraceStaysLiteral(t *testing.T) {
	e := NewExpander()
	ctx := testContext()
	assert.Equal(t, "{unclosed", e.ExpandString("{unclosed", ctx))
}
