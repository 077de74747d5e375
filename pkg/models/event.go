// Package models defines the shared data model of the platform: events,
// scenarios, user state, and the universal result envelope.
package models

// Event source constants.
const (
	SourceWebhook   = "webhook"
	SourceScheduled = "scheduled"
	SourceInternal  = "internal"
)

// Event type constants.
const (
	EventTypeText      = "text"
	EventTypeCallback  = "callback"
	EventTypeNewMember = "new_member"
	EventTypeScheduled = "scheduled"
)

// Chat type constants.
const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
	ChatTypeChannel = "channel"
)

// Event is a hierarchical mapping describing one inbound event. A required
// "system" sub-map carries tenant_id, bot_id, and source; the remaining
// fields are event-type specific. Events are immutable from the engine's
// perspective — the engine threads an augmented context (event + "_cache"
// overlay + step-local bindings) downstream instead of mutating the event.
type Event map[string]any

// System returns the "system" sub-map, or nil if absent.
func (e Event) System() map[string]any {
	sys, _ := e["system"].(map[string]any)
	return sys
}

// TenantID returns system.tenant_id as a string, or "" if absent.
func (e Event) TenantID() string {
	return stringField(e.System(), "tenant_id")
}

// BotID returns system.bot_id, or 0 if absent.
func (e Event) BotID() int64 {
	return intField(e.System(), "bot_id")
}

// Source returns system.source, or "" if absent.
func (e Event) Source() string {
	return stringField(e.System(), "source")
}

// EventType returns the event_type field, or "" if absent.
func (e Event) EventType() string {
	return stringField(e, "event_type")
}

// EventText returns the event_text field, or "" if absent.
func (e Event) EventText() string {
	return stringField(e, "event_text")
}

// CallbackData returns the callback_data field, or "" if absent.
func (e Event) CallbackData() string {
	return stringField(e, "callback_data")
}

// ChatType returns the chat_type field, or "" if absent.
func (e Event) ChatType() string {
	return stringField(e, "chat_type")
}

// ChatID returns the chat_id field, or 0 if absent.
func (e Event) ChatID() int64 {
	return intField(e, "chat_id")
}

// UserID returns the user_id field, or 0 if absent.
func (e Event) UserID() int64 {
	return intField(e, "user_id")
}

// Context returns a shallow copy of the event with a fresh "_cache" overlay
// attached. Step handlers write scratch data into the overlay; the original
// event map is never modified.
func (e Event) Context() map[string]any {
	ctx := make(map[string]any, len(e)+1)
	for k, v := range e {
		ctx[k] = v
	}
	if _, ok := ctx["_cache"]; !ok {
		ctx["_cache"] = map[string]any{}
	}
	return ctx
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
