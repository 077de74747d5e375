// Package cache implements the process-local key/value store with TTL,
// lazy expiry on read, an active sampling sweep, and pattern invalidation.
package cache

import (
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Config controls TTL defaults and the active expiry sampler.
type Config struct {
	// DefaultTTL is applied when Set is called without an explicit TTL.
	// Zero means keys without an explicit TTL are permanent.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// CleanupInterval is how often the background sampler runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// CleanupSampleSize is how many keys each sampler run inspects.
	CleanupSampleSize int `yaml:"cleanup_sample_size"`

	// CleanupExpiredThreshold is the sampled expired ratio above which the
	// sampler sweeps the full expiry map instead of only the sample.
	CleanupExpiredThreshold float64 `yaml:"cleanup_expired_threshold"`
}

// DefaultConfig returns the built-in cache defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:              time.Hour,
		CleanupInterval:         60 * time.Second,
		CleanupSampleSize:       50,
		CleanupExpiredThreshold: 0.25,
	}
}

// Manager is a thread-safe in-memory cache. Expired entries are removed
// lazily on Get and proactively by a background sampler modelled on Redis's
// active expiration: sample a few keys, and only when the expired ratio is
// high scan the whole expiry map.
type Manager struct {
	cfg *Config

	mu        sync.Mutex
	store     map[string]any
	expiresAt map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	closed   bool

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a cache manager and starts its background sampler.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{
		cfg:       cfg,
		store:     make(map[string]any),
		expiresAt: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	if cfg.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.runSampler()
	}
	return m
}

// Get returns the value for key. A key whose expiry has passed is removed
// and reported absent — a stale value is never returned.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	if exp, ok := m.expiresAt[key]; ok && !m.now().Before(exp) {
		delete(m.store, key)
		delete(m.expiresAt, key)
		return nil, false
	}
	v, ok := m.store[key]
	return v, ok
}

// Set stores value under key with the given TTL. A nil ttl uses the
// configured default; an explicit zero default makes the key permanent.
func (m *Manager) Set(key string, value any, ttl ...time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.store[key] = value
	d := m.cfg.DefaultTTL
	if len(ttl) > 0 {
		d = ttl[0]
	}
	if d > 0 {
		m.expiresAt[key] = m.now().Add(d)
	} else {
		delete(m.expiresAt, key)
	}
}

// Delete removes key. It reports whether the key was present.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[key]
	delete(m.store, key)
	delete(m.expiresAt, key)
	return ok
}

// Len returns the number of stored keys, including not-yet-evicted expired
// ones.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// Keys returns a snapshot of the stored keys, including not-yet-evicted
// expired ones.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.store))
	for k := range m.store {
		keys = append(keys, k)
	}
	return keys
}

// InvalidatePattern removes every key matching the pattern and returns the
// number of removed keys. Supported patterns:
//
//	prefix:*  — keys starting with "prefix:"
//	*:suffix  — keys ending with ":suffix"
//	a*b       — single wildcard: startsWith(a) && endsWith(b)
//	literal   — exact match
func (m *Manager) InvalidatePattern(pattern string) int {
	match := compilePattern(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.store {
		if match(key) {
			delete(m.store, key)
			delete(m.expiresAt, key)
			removed++
		}
	}
	return removed
}

func compilePattern(pattern string) func(string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return func(k string) bool { return k == pattern }
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return func(k string) bool {
		return len(k) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(k, prefix) && strings.HasSuffix(k, suffix)
	}
}

// Shutdown stops the background sampler. Reads and writes remain safe
// afterwards but become no-ops.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.mu.Lock()
	m.closed = true
	m.store = make(map[string]any)
	m.expiresAt = make(map[string]time.Time)
	m.mu.Unlock()
}

// runSampler is the background expiry loop.
func (m *Manager) runSampler() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sampleAndEvict()
		}
	}
}

// sampleAndEvict inspects a random sample of keys with a TTL. If the
// sampled expired ratio reaches the threshold, all expired entries are
// swept; otherwise only the expired sampled keys are evicted. This bounds
// amortized cost even under pathological TTL distributions.
func (m *Manager) sampleAndEvict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.expiresAt) == 0 {
		return
	}
	now := m.now()

	sampleSize := m.cfg.CleanupSampleSize
	if sampleSize <= 0 {
		sampleSize = 50
	}
	// Map iteration order is randomized by the runtime; taking the first N
	// keys is a uniform-enough sample.
	sampled := make([]string, 0, sampleSize)
	for key := range m.expiresAt {
		sampled = append(sampled, key)
		if len(sampled) >= sampleSize {
			break
		}
	}
	// Shuffle so repeated runs over a small map do not favor bucket order.
	rand.Shuffle(len(sampled), func(i, j int) {
		sampled[i], sampled[j] = sampled[j], sampled[i]
	})

	expired := make([]string, 0, len(sampled))
	for _, key := range sampled {
		if exp, ok := m.expiresAt[key]; ok && !now.Before(exp) {
			expired = append(expired, key)
		}
	}

	ratio := float64(len(expired)) / float64(len(sampled))
	if ratio >= m.cfg.CleanupExpiredThreshold {
		swept := 0
		for key, exp := range m.expiresAt {
			if !now.Before(exp) {
				delete(m.store, key)
				delete(m.expiresAt, key)
				swept++
			}
		}
		slog.Debug("Cache full sweep completed",
			"sampled", len(sampled), "sample_expired", len(expired), "swept", swept)
		return
	}
	for _, key := range expired {
		delete(m.store, key)
		delete(m.expiresAt, key)
	}
}
