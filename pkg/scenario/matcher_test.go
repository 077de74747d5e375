package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbotio/flowbot/pkg/models"
)

type fakeStates struct {
	states map[int64]*models.UserState
}

func (f *fakeStates) Get(_ context.Context, _ string, userID int64) (*models.UserState, bool) {
	st, ok := f.states[userID]
	return st, ok
}

func scenarioSet(names ...string) map[string]*models.Scenario {
	out := map[string]*models.Scenario{}
	for _, name := range names {
		out[name] = &models.Scenario{Name: name, ShortName: name}
	}
	return out
}

func textEvent(text string) models.Event {
	return models.Event{
		"system":     map[string]any{"tenant_id": "t1"},
		"event_type": "text",
		"event_text": text,
		"chat_type":  "private",
	}
}

func TestExactMatchBeatsRegex(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Exact = models.OrderedPairs{{Key: "ping", Value: "p1"}}
	triggers.Private.Text.Regex = models.OrderedPairs{{Key: "^p.*", Value: "p2"}}
	idx := buildIndex("t1", scenarioSet("p1", "p2"), triggers, testLogger())

	// Comparison is case-insensitive.
	got, ok := idx.Match(context.Background(), textEvent("Ping"), nil)
	require.True(t, ok)
	assert.Equal(t, "p1", got)
}

func TestTextTierOrder(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Regex = models.OrderedPairs{{Key: "^order \\d+$", Value: "by_regex"}}
	triggers.Private.Text.StartsWith = models.OrderedPairs{{Key: "order", Value: "by_prefix"}}
	triggers.Private.Text.Contains = models.OrderedPairs{{Key: "help", Value: "by_substr"}}
	idx := buildIndex("t1", scenarioSet("by_regex", "by_prefix", "by_substr"), triggers, testLogger())

	tests := []struct {
		text string
		want string
	}{
		{"order 42", "by_regex"},
		{"order something", "by_prefix"},
		{"i need help now", "by_substr"},
	}
	for _, tt := range tests {
		got, ok := idx.Match(context.Background(), textEvent(tt.text), nil)
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}

	_, ok := idx.Match(context.Background(), textEvent("nothing matches"), nil)
	assert.False(t, ok)
}

func TestUserStateRouting(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.State = models.OrderedPairs{{Key: "awaiting_name", Value: "collect"}}
	idx := buildIndex("t1", scenarioSet("collect"), triggers, testLogger())

	future := time.Now().Add(time.Hour)
	states := &fakeStates{states: map[int64]*models.UserState{
		7: {StateType: "awaiting_name", ExpiresAt: &future},
	}}

	ev := textEvent("Bob")
	ev["user_id"] = int64(7)
	got, ok := idx.Match(context.Background(), ev, states)
	require.True(t, ok)
	assert.Equal(t, "collect", got)

	// State triggers apply even when event_text is empty.
	empty := textEvent("")
	empty["user_id"] = int64(7)
	got, ok = idx.Match(context.Background(), empty, states)
	require.True(t, ok)
	assert.Equal(t, "collect", got)
}

func TestExpiredUserStateIsIgnored(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.State = models.OrderedPairs{{Key: "awaiting_name", Value: "collect"}}
	idx := buildIndex("t1", scenarioSet("collect"), triggers, testLogger())

	past := time.Now().Add(-time.Minute)
	states := &fakeStates{states: map[int64]*models.UserState{
		7: {StateType: "awaiting_name", ExpiresAt: &past},
	}}

	ev := textEvent("Bob")
	ev["user_id"] = int64(7)
	_, ok := idx.Match(context.Background(), ev, states)
	assert.False(t, ok)
}

func TestExactBeatsState(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Exact = models.OrderedPairs{{Key: "cancel", Value: "abort"}}
	triggers.Private.Text.State = models.OrderedPairs{{Key: "awaiting_name", Value: "collect"}}
	idx := buildIndex("t1", scenarioSet("abort", "collect"), triggers, testLogger())

	future := time.Now().Add(time.Hour)
	states := &fakeStates{states: map[int64]*models.UserState{
		7: {StateType: "awaiting_name", ExpiresAt: &future},
	}}

	ev := textEvent("Cancel")
	ev["user_id"] = int64(7)
	got, ok := idx.Match(context.Background(), ev, states)
	require.True(t, ok)
	assert.Equal(t, "abort", got)
}

func TestInvalidRegexTriggerIsSkipped(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Regex = models.OrderedPairs{
		{Key: "[broken", Value: "never"},
		{Key: "^ok$", Value: "fine"},
	}
	idx := buildIndex("t1", scenarioSet("never", "fine"), triggers, testLogger())

	got, ok := idx.Match(context.Background(), textEvent("ok"), nil)
	require.True(t, ok)
	assert.Equal(t, "fine", got)
}

func TestChannelEventsNeverMatch(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Exact = models.OrderedPairs{{Key: "ping", Value: "p1"}}
	triggers.Group.Text.Exact = models.OrderedPairs{{Key: "ping", Value: "p1"}}
	idx := buildIndex("t1", scenarioSet("p1"), triggers, testLogger())

	ev := textEvent("ping")
	ev["chat_type"] = "channel"
	_, ok := idx.Match(context.Background(), ev, nil)
	assert.False(t, ok)
}

func TestGroupChatUsesGroupTable(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Text.Exact = models.OrderedPairs{{Key: "rules", Value: "private_rules"}}
	triggers.Group.Text.Exact = models.OrderedPairs{{Key: "rules", Value: "group_rules"}}
	idx := buildIndex("t1", scenarioSet("private_rules", "group_rules"), triggers, testLogger())

	ev := textEvent("rules")
	ev["chat_type"] = "group"
	got, ok := idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "group_rules", got)

	ev["chat_type"] = "supergroup"
	got, ok = idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "group_rules", got)
}

func callbackEvent(data string) models.Event {
	return models.Event{
		"system":        map[string]any{"tenant_id": "t1"},
		"event_type":    "callback",
		"callback_data": data,
		"chat_type":     "private",
	}
}

func TestCallbackExplicitJump(t *testing.T) {
	idx := buildIndex("t1", scenarioSet("settings"), &TriggerConfig{}, testLogger())

	got, ok := idx.Match(context.Background(), callbackEvent(":settings"), nil)
	require.True(t, ok)
	assert.Equal(t, "settings", got)

	_, ok = idx.Match(context.Background(), callbackEvent(":unknown"), nil)
	assert.False(t, ok)
}

func TestCallbackNormalizedMatching(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Private.Callback.Exact = models.OrderedPairs{{Key: "Оплатить заказ 💳", Value: "pay"}}
	triggers.Private.Callback.Contains = models.OrderedPairs{{Key: "назад", Value: "back"}}
	idx := buildIndex("t1", scenarioSet("pay", "back"), triggers, testLogger())

	// Emoji and case differences fold away.
	got, ok := idx.Match(context.Background(), callbackEvent("оплатить заказ"), nil)
	require.True(t, ok)
	assert.Equal(t, "pay", got)

	got, ok = idx.Match(context.Background(), callbackEvent("⬅️ Назад в меню"), nil)
	require.True(t, ok)
	assert.Equal(t, "back", got)

	_, ok = idx.Match(context.Background(), callbackEvent("что-то другое"), nil)
	assert.False(t, ok)
}

func TestNormalizeCallbackKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Оплатить заказ 💳", "oplatit_zakaz"},
		{"  Hello   World  ", "hello_world"},
		{"Café Déjà", "cafe_deja"},
		{"order #42!", "order_42"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCallbackKey(tt.in), tt.in)
	}

	long := NormalizeCallbackKey("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Len(t, long, 60)
}

func TestNewMemberTierOrder(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Group.NewMember = map[string]string{
		"link":      "via_link",
		"creator":   "owner_back",
		"initiator": "was_added",
		"default":   "welcome",
	}
	idx := buildIndex("t1", scenarioSet("via_link", "owner_back", "was_added", "welcome"), triggers, testLogger())

	base := func() models.Event {
		return models.Event{
			"system":     map[string]any{"tenant_id": "t1"},
			"event_type": "new_member",
			"chat_type":  "group",
			"user_id":    int64(10),
		}
	}

	ev := base()
	ev["invite_link"] = "https://t.me/+abc"
	got, ok := idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "via_link", got)

	ev = base()
	ev["is_creator"] = true
	got, ok = idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "owner_back", got)

	ev = base()
	ev["initiator_id"] = int64(99)
	got, ok = idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "was_added", got)

	// Self-join with no other signals falls through to default.
	ev = base()
	ev["initiator_id"] = int64(10)
	got, ok = idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "welcome", got)
}

func TestNewMemberGroupKindWinsWhenPresent(t *testing.T) {
	triggers := &TriggerConfig{}
	triggers.Group.NewMember = map[string]string{
		"group": "any_join",
		"link":  "via_link",
	}
	idx := buildIndex("t1", scenarioSet("any_join", "via_link"), triggers, testLogger())

	ev := models.Event{
		"system":      map[string]any{"tenant_id": "t1"},
		"event_type":  "new_member",
		"chat_type":   "group",
		"invite_link": "https://t.me/+abc",
	}
	got, ok := idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "any_join", got)
}

func TestIndexKeyInvariants(t *testing.T) {
	scenarios := map[string]*models.Scenario{
		"a.one": {Name: "a.one", ShortName: "one"},
		"b.two": {Name: "b.two", ShortName: "two"},
		"c.two": {Name: "c.two", ShortName: "two"},
	}
	idx := buildIndex("t1", scenarios, &TriggerConfig{}, testLogger())

	assert.ElementsMatch(t, []string{"a.one", "b.two", "c.two"}, idx.Names())

	// Unambiguous short name resolves.
	sc, ok := idx.Scenario("one")
	require.True(t, ok)
	assert.Equal(t, "a.one", sc.Name)

	// Ambiguous short name does not.
	_, ok = idx.Scenario("two")
	assert.False(t, ok)

	// Every short-name entry points at an existing key.
	for short, keys := range idx.shortNames {
		for _, key := range keys {
			_, present := idx.scenarios[key]
			assert.True(t, present, "short %s → %s", short, key)
		}
	}
}

func TestInlineScenarioTriggers(t *testing.T) {
	scenarios := map[string]*models.Scenario{
		"greet.hello": {
			Name:      "greet.hello",
			ShortName: "hello",
			Triggers: []models.TriggerRef{
				{Source: "text", Kind: "exact", Key: "hi"},
			},
		},
	}
	idx := buildIndex("t1", scenarios, &TriggerConfig{}, testLogger())

	// Inline triggers register in both chat-type tables.
	got, ok := idx.Match(context.Background(), textEvent("hi"), nil)
	require.True(t, ok)
	assert.Equal(t, "greet.hello", got)

	ev := textEvent("hi")
	ev["chat_type"] = "group"
	got, ok = idx.Match(context.Background(), ev, nil)
	require.True(t, ok)
	assert.Equal(t, "greet.hello", got)
}
