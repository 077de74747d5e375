// Package tenant resolves tenant → bot bindings with caching and keeps the
// per-tenant configuration overlay warm.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/storage"
)

// systemColumns are tenant row fields never exposed through the config
// overlay.
var systemColumns = map[string]bool{
	"id":           true,
	"processed_at": true,
}

// Directory is the tenant/bot resolution layer. Lookups go cache-first with
// a DB fall-through; DB errors yield absence plus a logged error, never a
// poisoned cache entry.
type Directory struct {
	cache *cache.Manager
	repo  storage.TenantRepository
	log   *slog.Logger
}

func NewDirectory(c *cache.Manager, repo storage.TenantRepository, log *slog.Logger) *Directory {
	return &Directory{
		cache: c,
		repo:  repo,
		log:   log.With("component", "tenant_directory"),
	}
}

func botIDKey(tenantID string) string { return fmt.Sprintf("tenant:%s:bot_id", tenantID) }
func botKey(botID int64) string       { return fmt.Sprintf("bot:%d", botID) }
func metaKey(tenantID string) string  { return fmt.Sprintf("tenant:%s:meta", tenantID) }
func configKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:config", tenantID)
}

// GetBotByTenantID resolves the tenant's bot record, caching both the
// tenant→bot mapping and the record itself. The returned map always carries
// the bot_id field.
func (d *Directory) GetBotByTenantID(ctx context.Context, tenantID string) (map[string]any, bool) {
	botID, ok := d.botID(ctx, tenantID)
	if !ok {
		return nil, false
	}

	if v, hit := d.cache.Get(botKey(botID)); hit {
		if record, isMap := v.(map[string]any); isMap {
			return record, true
		}
	}

	bot, err := d.repo.BotByID(ctx, botID)
	if err != nil {
		d.recordFailure(tenantID, err)
		d.log.Error("bot lookup failed", "tenant_id", tenantID, "bot_id", botID, "error", err)
		return nil, false
	}

	record := map[string]any{
		"bot_id":      bot.ID,
		"tenant_id":   bot.TenantID,
		"username":    bot.Username,
		"token":       bot.Token,
		"webhook_url": bot.WebhookURL,
		"active":      bot.Active,
	}
	d.cache.Set(botKey(botID), record)
	d.recordSuccess(tenantID)
	return record, true
}

func (d *Directory) botID(ctx context.Context, tenantID string) (int64, bool) {
	if v, hit := d.cache.Get(botIDKey(tenantID)); hit {
		if id, isInt := v.(int64); isInt {
			return id, true
		}
	}
	id, err := d.repo.BotIDByTenant(ctx, tenantID)
	if err != nil {
		d.recordFailure(tenantID, err)
		d.log.Error("tenant bot mapping lookup failed", "tenant_id", tenantID, "error", err)
		return 0, false
	}
	d.cache.Set(botIDKey(tenantID), id)
	return id, true
}

// InvalidateBotCache drops only the tenant→bot mapping. The bot record stays
// cached; a rebind picks up the new mapping on next resolution.
func (d *Directory) InvalidateBotCache(tenantID string) {
	d.cache.Delete(botIDKey(tenantID))
}

// UpdateTenantConfigCache forces a DB reread of the tenant config overlay.
// System columns and null-valued fields are excluded.
func (d *Directory) UpdateTenantConfigCache(ctx context.Context, tenantID string) (map[string]any, error) {
	raw, err := d.repo.TenantConfig(ctx, tenantID)
	if err != nil {
		d.recordFailure(tenantID, err)
		return nil, fmt.Errorf("read tenant config: %w", err)
	}

	overlay := make(map[string]any, len(raw))
	for col, val := range raw {
		if systemColumns[col] || val == nil {
			continue
		}
		overlay[col] = val
	}
	d.cache.Set(configKey(tenantID), overlay)
	d.recordSuccess(tenantID)
	return overlay, nil
}

// TenantConfig returns the cached config overlay, rereading on miss.
func (d *Directory) TenantConfig(ctx context.Context, tenantID string) (map[string]any, bool) {
	if v, hit := d.cache.Get(configKey(tenantID)); hit {
		if overlay, isMap := v.(map[string]any); isMap {
			return overlay, true
		}
	}
	overlay, err := d.UpdateTenantConfigCache(ctx, tenantID)
	if err != nil {
		d.log.Error("tenant config load failed", "tenant_id", tenantID, "error", err)
		return nil, false
	}
	return overlay, true
}

// Meta returns the tenant's last-success/last-failure record.
func (d *Directory) Meta(tenantID string) map[string]any {
	if v, hit := d.cache.Get(metaKey(tenantID)); hit {
		if meta, isMap := v.(map[string]any); isMap {
			return meta
		}
	}
	return nil
}

func (d *Directory) recordSuccess(tenantID string) {
	meta := d.Meta(tenantID)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["last_updated_at"] = time.Now().UTC()
	d.cache.Set(metaKey(tenantID), meta)
}

func (d *Directory) recordFailure(tenantID string, err error) {
	meta := d.Meta(tenantID)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["last_failed_at"] = time.Now().UTC()
	meta["last_error"] = err.Error()
	d.cache.Set(metaKey(tenantID), meta)
}
