package models

import "time"

// UserState is a per-user conversational state with optional expiry.
// A nil ExpiresAt means the state never expires. Expired states are cleared
// lazily on read — state_data from an expired state is never exposed.
type UserState struct {
	StateType string         `json:"state_type"`
	StateData map[string]any `json:"state_data,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Expired reports whether the state is past its expiry at the given time.
func (s *UserState) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
