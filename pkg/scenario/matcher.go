package scenario

import (
	"context"
	"strings"
	"time"

	"github.com/flowbotio/flowbot/pkg/models"
)

// UserStateLookup resolves a user's active conversational state. The matcher
// consults it for text.state triggers.
type UserStateLookup interface {
	Get(ctx context.Context, tenantID string, userID int64) (*models.UserState, bool)
}

// Match finds the scenario for an event, walking the trigger tiers from
// highest to lowest priority. Channel events never match; private and group
// chats select their respective tables.
func (x *Index) Match(ctx context.Context, ev models.Event, states UserStateLookup) (string, bool) {
	t := x.tableFor(ev.ChatType())
	if t == nil {
		return "", false
	}

	switch ev.EventType() {
	case models.EventTypeText, models.EventTypeScheduled:
		return x.matchText(ctx, t, ev, states)
	case models.EventTypeCallback:
		return x.matchCallback(t, ev)
	case models.EventTypeNewMember:
		return matchNewMember(t, ev)
	}
	return "", false
}

func (x *Index) tableFor(chatType string) *table {
	switch chatType {
	case models.ChatTypeChannel:
		return nil
	case models.ChatTypeGroup, "supergroup":
		return x.group
	default:
		return x.private
	}
}

func (x *Index) matchText(ctx context.Context, t *table, ev models.Event, states UserStateLookup) (string, bool) {
	text := strings.ToLower(ev.EventText())

	// Tier 1: exact.
	if text != "" {
		if sc, ok := t.textExact[text]; ok {
			return sc, true
		}
	}

	// Tier 2: user state. Applies even when event_text is empty.
	if states != nil {
		if st, ok := states.Get(ctx, ev.TenantID(), ev.UserID()); ok && !st.Expired(time.Now()) {
			if sc, ok := t.textState[strings.ToLower(st.StateType)]; ok {
				return sc, true
			}
		}
	}

	if text == "" {
		return "", false
	}

	// Tier 3: regex, in declaration order.
	for _, rt := range t.textRegex {
		if rt.re.MatchString(text) {
			return rt.scenario, true
		}
	}

	// Tier 4: starts_with.
	for _, p := range t.textPrefix {
		if strings.HasPrefix(text, p.Key) {
			return p.Value, true
		}
	}

	// Tier 5: contains.
	for _, p := range t.textSubstr {
		if strings.Contains(text, p.Key) {
			return p.Value, true
		}
	}
	return "", false
}

func (x *Index) matchCallback(t *table, ev models.Event) (string, bool) {
	data := ev.CallbackData()
	if data == "" {
		return "", false
	}

	// Tier 6: explicit ":<scenario_name>" jump.
	if strings.HasPrefix(data, ":") {
		name := strings.TrimPrefix(data, ":")
		if _, ok := x.Scenario(name); ok {
			return name, true
		}
		return "", false
	}

	norm := NormalizeCallbackKey(data)

	// Tier 7: exact normalized.
	if sc, ok := t.cbExact[norm]; ok {
		return sc, true
	}

	// Tier 8: contains normalized.
	for _, p := range t.cbSubstr {
		if p.Key != "" && strings.Contains(norm, p.Key) {
			return p.Value, true
		}
	}
	return "", false
}

// matchNewMember walks the membership kinds in fixed priority order:
// group join, invite-link join, chat creator, added by another member,
// catch-all default.
func matchNewMember(t *table, ev models.Event) (string, bool) {
	chatType := ev.ChatType()
	isGroup := chatType == models.ChatTypeGroup || chatType == "supergroup"

	if sc, ok := t.newMember[models.TriggerKindGroup]; ok && isGroup {
		return sc, true
	}
	if sc, ok := t.newMember[models.TriggerKindLink]; ok {
		if link, _ := ev["invite_link"].(string); link != "" {
			return sc, true
		}
	}
	if sc, ok := t.newMember[models.TriggerKindCreator]; ok {
		if creator, _ := ev["is_creator"].(bool); creator {
			return sc, true
		}
	}
	if sc, ok := t.newMember[models.TriggerKindInitiator]; ok {
		if init, hasInit := ev["initiator_id"]; hasInit && init != nil {
			if initID, ok := toInt64(init); !ok || initID != ev.UserID() {
				return sc, true
			}
		}
	}
	if sc, ok := t.newMember[models.TriggerKindDefault]; ok {
		return sc, true
	}
	return "", false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
