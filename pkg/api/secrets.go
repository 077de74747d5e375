package api

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/flowbotio/flowbot/pkg/cache"
)

// secretTTL keeps webhook tokens valid for the life of the process and far
// beyond; tokens rotate on restart because the process start timestamp is
// part of the digest.
const secretTTL = 10 * 365 * 24 * time.Hour

// binding is the resolution target of one webhook token.
type binding struct {
	BotID    int64
	TenantID string
}

// SecretRegistry issues and resolves per-bot webhook secret tokens. A token
// is MD5(bot_id ∥ process-start-timestamp), cached under
// "webhook_secret:<token>".
type SecretRegistry struct {
	cache   *cache.Manager
	startTS int64
}

func NewSecretRegistry(c *cache.Manager) *SecretRegistry {
	return &SecretRegistry{cache: c, startTS: time.Now().Unix()}
}

func secretKey(token string) string { return "webhook_secret:" + token }

// Register issues the token for a bot and binds it in the cache.
func (r *SecretRegistry) Register(botID int64, tenantID string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d%d", botID, r.startTS)))
	token := hex.EncodeToString(sum[:])
	r.cache.Set(secretKey(token), binding{BotID: botID, TenantID: tenantID}, secretTTL)
	return token
}

// Resolve maps a presented token back to its bot binding.
func (r *SecretRegistry) Resolve(token string) (binding, bool) {
	if token == "" {
		return binding{}, false
	}
	v, ok := r.cache.Get(secretKey(token))
	if !ok {
		return binding{}, false
	}
	b, ok := v.(binding)
	return b, ok
}
