package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTenantsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStaticRepositoryLookups(t *testing.T) {
	path := writeTenantsFile(t, `
tenants:
  - tenant_id: t1
    bot_id: 100
    username: acme_bot
    token: tok-100
    config:
      bot_token: tok-100
      greeting: hello
  - tenant_id: t2
    bot_id: 200
    active: false
`)
	repo, err := LoadStaticRepository(path)
	require.NoError(t, err)
	ctx := context.Background()

	botID, err := repo.BotIDByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), botID)

	bot, err := repo.BotByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "t1", bot.TenantID)
	assert.Equal(t, "acme_bot", bot.Username)
	assert.True(t, bot.Active)

	bot, err = repo.BotByID(ctx, 200)
	require.NoError(t, err)
	assert.False(t, bot.Active)

	cfg, err := repo.TenantConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "hello", cfg["greeting"])

	ids, err := repo.TenantIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)
}

func TestStaticRepositoryNotFound(t *testing.T) {
	path := writeTenantsFile(t, "tenants:\n  - tenant_id: t1\n    bot_id: 1\n")
	repo, err := LoadStaticRepository(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.BotIDByTenant(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.BotByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.TenantConfig(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticRepositoryRejectsDuplicates(t *testing.T) {
	path := writeTenantsFile(t, `
tenants:
  - tenant_id: t1
    bot_id: 1
  - tenant_id: t1
    bot_id: 2
`)
	_, err := LoadStaticRepository(path)
	assert.Error(t, err)
}

func TestStaticRepositoryMissingFile(t *testing.T) {
	_, err := LoadStaticRepository(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
