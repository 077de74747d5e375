// Package storage defines the persistence contracts of the platform and a
// Postgres binding built on pgx.
package storage

import (
	"context"
	"errors"

	"github.com/flowbotio/flowbot/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Bot is one chat-vendor bot record.
type Bot struct {
	ID         int64  `json:"id"`
	TenantID   string `json:"tenant_id"`
	Username   string `json:"username"`
	Token      string `json:"token"`
	WebhookURL string `json:"webhook_url"`
	Active     bool   `json:"active"`
}

// TenantRepository resolves tenants, their bots, and their configuration
// overlays.
type TenantRepository interface {
	// BotIDByTenant returns the bot id bound to a tenant.
	BotIDByTenant(ctx context.Context, tenantID string) (int64, error)

	// BotByID returns the bot record.
	BotByID(ctx context.Context, id int64) (*Bot, error)

	// TenantConfig returns the tenant's raw configuration row as a column
	// map, including system columns and nulls. Callers filter.
	TenantConfig(ctx context.Context, tenantID string) (map[string]any, error)

	// TenantIDs lists all known tenants.
	TenantIDs(ctx context.Context) ([]string, error)
}

// UserStateRepository persists per-user conversational state.
type UserStateRepository interface {
	UserState(ctx context.Context, tenantID string, userID int64) (*models.UserState, error)
	SaveUserState(ctx context.Context, tenantID string, userID int64, state *models.UserState) error
	ClearUserState(ctx context.Context, tenantID string, userID int64) error
}
