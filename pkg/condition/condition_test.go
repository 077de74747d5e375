package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalCtx() map[string]any {
	return map[string]any{
		"event_text": "hello world",
		"chat_type":  "private",
		"age":        25,
		"score":      "17",
		"price":      99.5,
		"active":     true,
		"disabled":   false,
		"empty":      "",
		"nothing":    nil,
		"tags":       []any{"vip", "beta"},
		"user": map[string]any{
			"name":  "bob",
			"items": []any{"a", "b"},
		},
	}
}

func mustEval(t *testing.T, src string) bool {
	t.Helper()
	e := NewEvaluator()
	ok, err := e.Evaluate(src, evalCtx())
	require.NoError(t, err, src)
	return ok
}

func TestEquality(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$chat_type == 'private'", true},
		{"$chat_type == 'group'", false},
		{"$chat_type != 'group'", true},
		{"$age == 25", true},
		{"$user.name == 'bob'", true},
		{"$user.items[0] == 'a'", true},
		{"$user.items[-1] == 'b'", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestNumericStringCoercion(t *testing.T) {
	// "17" compares numerically against 17.
	assert.True(t, mustEval(t, "$score == 17"))
	assert.True(t, mustEval(t, "$score > 10"))
	assert.True(t, mustEval(t, "$score <= 17"))
	assert.False(t, mustEval(t, "$score > 17"))
	assert.True(t, mustEval(t, "$age >= 25"))
	assert.True(t, mustEval(t, "$price < 100"))
}

func TestMissingFieldSemantics(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		// Absent field never equals a concrete value, and != is its inverse.
		{"$missing == 'x'", false},
		{"$missing != 'x'", true},
		// Ordering against an absent field is always false.
		{"$missing > 5", false},
		{"$missing < 5", false},
		// None matches absent and explicit-null values only.
		{"$missing == None", true},
		{"$nothing == None", true},
		{"$empty == None", false},
		{"$chat_type == None", false},
		{"$missing != None", false},
		// in/contains on absent fields are false.
		{"$missing in ['a', 'b']", false},
		{"$missing ~ 'x'", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestIsNull(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$missing is_null", true},
		{"$nothing is_null", true},
		// Empty string counts as null.
		{"$empty is_null", true},
		{"$chat_type is_null", false},
		{"$age is_null", false},
		{"$chat_type not is_null", true},
		{"$missing not is_null", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestInList(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$chat_type in ['private', 'supergroup']", true},
		{"$chat_type in ['group', 'supergroup']", false},
		{"$age in [18, 21, 25]", true},
		{"$chat_type not in ['group']", true},
		{"$chat_type not in ['private']", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestContainsOperator(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$event_text ~ 'world'", true},
		{"$event_text ~ 'mars'", false},
		{"$event_text !~ 'mars'", true},
		// On a list operand ~ means membership.
		{"$tags ~ 'vip'", true},
		{"$tags ~ 'admin'", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestRegexOperator(t *testing.T) {
	assert.True(t, mustEval(t, `$event_text regex '^hello'`))
	assert.False(t, mustEval(t, `$event_text regex '^world'`))
	assert.False(t, mustEval(t, `$missing regex '.*'`))

	// Invalid patterns fail at compile time, not evaluation time.
	e := NewEvaluator()
	_, err := e.Compile(`$event_text regex '[unclosed'`)
	require.Error(t, err)
}

func TestBooleanCombinators(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$active and $chat_type == 'private'", true},
		{"$active and $chat_type == 'group'", false},
		{"$disabled or $chat_type == 'private'", true},
		{"$disabled or $chat_type == 'group'", false},
		{"not $disabled", true},
		{"not ($active and $disabled)", true},
		// and binds tighter than or.
		{"$disabled and $active or $active", true},
		{"($disabled and $active) or $active", true},
		{"$disabled and ($active or $active)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"$active", true},
		{"$disabled", false},
		{"$event_text", true},
		{"$empty", false},
		{"$age", true},
		{"$tags", true},
		{"$missing", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustEval(t, tt.src), tt.src)
	}
}

func TestBarewordDateLiteral(t *testing.T) {
	e := NewEvaluator()
	ok, err := e.Evaluate("$birthday == 02.12.2012", map[string]any{"birthday": "02.12.2012"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	assert.True(t, mustEval(t, "$active AND $chat_type == 'private'"))
	assert.True(t, mustEval(t, "$disabled OR $active"))
	assert.True(t, mustEval(t, "NOT $disabled"))
}

func TestSearchPath(t *testing.T) {
	e := NewEvaluator()

	c, err := e.Compile("$user.name == 'bob' and $age > 10")
	require.NoError(t, err)
	assert.Equal(t, "user.name", c.SearchPath())

	c, err = e.Compile("($age > 10) or $user.name == 'bob'")
	require.NoError(t, err)
	assert.Equal(t, "age", c.SearchPath())
}

func TestParseErrors(t *testing.T) {
	e := NewEvaluator()

	bad := []string{
		"$a ==",
		"== 'x'",
		"$a in ['x'",
		"($a == 1",
		"$a not 'x'",
		"$a == 'unterminated",
		"$ == 1",
	}
	for _, src := range bad {
		_, err := e.Compile(src)
		assert.Error(t, err, src)
	}
}

func TestCompileCache(t *testing.T) {
	e := NewEvaluator()
	first, err := e.Compile("$age > 10")
	require.NoError(t, err)
	second, err := e.Compile("$age > 10")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBuildCondition(t *testing.T) {
	src := BuildCondition([]map[string]any{
		{"chat_type": "private", "condition": "$age >= 18"},
		{"chat_type": "group"},
	})
	assert.Equal(t, "($chat_type == 'private' and $age >= 18) or ($chat_type == 'group')", src)

	e := NewEvaluator()
	ok, err := e.Evaluate(src, map[string]any{"chat_type": "private", "age": 21})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(src, map[string]any{"chat_type": "private", "age": 12})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Evaluate(src, map[string]any{"chat_type": "group"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildConditionNonStringValues(t *testing.T) {
	src := BuildCondition([]map[string]any{{"count": 3, "flag": true}})
	assert.Equal(t, "($count == 3 and $flag == true)", src)

	e := NewEvaluator()
	ok, err := e.Evaluate(src, map[string]any{"count": 3, "flag": true})
	require.NoError(t, err)
	assert.True(t, ok)
}
