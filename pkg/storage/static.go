package storage

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// staticTenant is one entry of the tenants config file.
type staticTenant struct {
	TenantID   string         `yaml:"tenant_id"`
	BotID      int64          `yaml:"bot_id"`
	Username   string         `yaml:"username"`
	Token      string         `yaml:"token"`
	WebhookURL string         `yaml:"webhook_url"`
	Active     *bool          `yaml:"active"`
	Config     map[string]any `yaml:"config"`
}

type staticTenantsFile struct {
	Tenants []staticTenant `yaml:"tenants"`
}

// StaticRepository serves tenant and bot lookups from a YAML file. It backs
// deployments that run without a database; user state is then cache-only.
type StaticRepository struct {
	byTenant map[string]staticTenant
	byBotID  map[int64]staticTenant
}

// LoadStaticRepository parses the tenants config file.
func LoadStaticRepository(path string) (*StaticRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants config %s: %w", path, err)
	}

	var file staticTenantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenants config %s: %w", path, err)
	}

	r := &StaticRepository{
		byTenant: make(map[string]staticTenant, len(file.Tenants)),
		byBotID:  make(map[int64]staticTenant, len(file.Tenants)),
	}
	for _, t := range file.Tenants {
		if t.TenantID == "" {
			return nil, fmt.Errorf("tenants config %s: entry without tenant_id", path)
		}
		if _, dup := r.byTenant[t.TenantID]; dup {
			return nil, fmt.Errorf("tenants config %s: duplicate tenant %s", path, t.TenantID)
		}
		r.byTenant[t.TenantID] = t
		r.byBotID[t.BotID] = t
	}
	return r, nil
}

func (r *StaticRepository) BotIDByTenant(_ context.Context, tenantID string) (int64, error) {
	t, ok := r.byTenant[tenantID]
	if !ok {
		return 0, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	return t.BotID, nil
}

func (r *StaticRepository) BotByID(_ context.Context, botID int64) (*Bot, error) {
	t, ok := r.byBotID[botID]
	if !ok {
		return nil, fmt.Errorf("bot %d: %w", botID, ErrNotFound)
	}
	active := t.Active == nil || *t.Active
	return &Bot{
		ID:         t.BotID,
		TenantID:   t.TenantID,
		Username:   t.Username,
		Token:      t.Token,
		WebhookURL: t.WebhookURL,
		Active:     active,
	}, nil
}

func (r *StaticRepository) TenantConfig(_ context.Context, tenantID string) (map[string]any, error) {
	t, ok := r.byTenant[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	cfg := make(map[string]any, len(t.Config))
	for k, v := range t.Config {
		cfg[k] = v
	}
	return cfg, nil
}

func (r *StaticRepository) TenantIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(r.byTenant))
	for id := range r.byTenant {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
