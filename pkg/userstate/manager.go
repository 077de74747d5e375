// Package userstate manages per-user conversational state with TTL. State
// lives in the cache manager with an optional repository fall-through for
// persistence across restarts.
package userstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/storage"
)

// DefaultTTL applies when Set is called without an explicit TTL.
const DefaultTTL = 24 * time.Hour

// Manager is the user state store. Expired states are cleared lazily on
// read; state_data from an expired state is never exposed.
type Manager struct {
	cache *cache.Manager
	repo  storage.UserStateRepository
	log   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewManager(c *cache.Manager, repo storage.UserStateRepository, log *slog.Logger) *Manager {
	return &Manager{
		cache: c,
		repo:  repo,
		log:   log.With("component", "userstate"),
		now:   time.Now,
	}
}

func stateKey(tenantID string, userID int64) string {
	return fmt.Sprintf("user_state:%s:%d", tenantID, userID)
}

// Get returns the user's active state. An expired state is cleared and
// reported absent before any of its data is visible to the caller.
func (m *Manager) Get(ctx context.Context, tenantID string, userID int64) (*models.UserState, bool) {
	if v, hit := m.cache.Get(stateKey(tenantID, userID)); hit {
		st, isState := v.(*models.UserState)
		if !isState {
			return nil, false
		}
		if st.Expired(m.now()) {
			m.Clear(ctx, tenantID, userID)
			return nil, false
		}
		return st, true
	}

	if m.repo == nil {
		return nil, false
	}
	st, err := m.repo.UserState(ctx, tenantID, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Error("user state load failed",
				"tenant_id", tenantID, "user_id", userID, "error", err)
		}
		return nil, false
	}
	if st.Expired(m.now()) {
		m.Clear(ctx, tenantID, userID)
		return nil, false
	}
	m.cache.Set(stateKey(tenantID, userID), st, m.cacheTTL(st))
	return st, true
}

// Set stores a new state for the user. A zero ttl applies DefaultTTL.
func (m *Manager) Set(ctx context.Context, tenantID string, userID int64, stateType string, data map[string]any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expires := m.now().Add(ttl)
	st := &models.UserState{
		StateType: stateType,
		StateData: data,
		ExpiresAt: &expires,
	}

	m.cache.Set(stateKey(tenantID, userID), st, ttl)
	if m.repo != nil {
		if err := m.repo.SaveUserState(ctx, tenantID, userID, st); err != nil {
			return fmt.Errorf("persist user state: %w", err)
		}
	}
	return nil
}

// Clear removes the user's state from cache and repository.
func (m *Manager) Clear(ctx context.Context, tenantID string, userID int64) error {
	m.cache.Delete(stateKey(tenantID, userID))
	if m.repo != nil {
		if err := m.repo.ClearUserState(ctx, tenantID, userID); err != nil {
			return fmt.Errorf("clear user state: %w", err)
		}
	}
	return nil
}

func (m *Manager) cacheTTL(st *models.UserState) time.Duration {
	if st.ExpiresAt == nil {
		return DefaultTTL
	}
	return st.ExpiresAt.Sub(m.now())
}
