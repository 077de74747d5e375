package scenario

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/models"
)

// indexRetention keeps a built index cached until explicit invalidation.
const indexRetention = 365 * 24 * time.Hour

type regexTrigger struct {
	re       *regexp.Regexp
	scenario string
}

// table holds the trigger lookup structures for one chat type. Exact-match
// tiers are hash lookups; regex/prefix/substring tiers keep declaration
// order because the first declared match wins.
type table struct {
	textExact  map[string]string
	textState  map[string]string
	textRegex  []regexTrigger
	textPrefix models.OrderedPairs
	textSubstr models.OrderedPairs
	cbExact    map[string]string
	cbSubstr   models.OrderedPairs
	newMember  map[string]string
}

func newTable() *table {
	return &table{
		textExact: map[string]string{},
		textState: map[string]string{},
		cbExact:   map[string]string{},
		newMember: map[string]string{},
	}
}

// Index is one tenant's immutable scenario lookup structure. It is built
// atomically and swapped as a whole; readers never observe partial state.
type Index struct {
	tenantID   string
	private    *table
	group      *table
	scenarios  map[string]*models.Scenario
	shortNames map[string][]string
}

// Scenario resolves a fully-qualified key, falling back to an unambiguous
// short name.
func (x *Index) Scenario(name string) (*models.Scenario, bool) {
	if sc, ok := x.scenarios[name]; ok {
		return sc, true
	}
	if keys := x.shortNames[name]; len(keys) == 1 {
		return x.scenarios[keys[0]], true
	}
	return nil, false
}

// Names returns the set of fully-qualified scenario keys.
func (x *Index) Names() []string {
	out := make([]string, 0, len(x.scenarios))
	for k := range x.scenarios {
		out = append(out, k)
	}
	return out
}

// buildIndex assembles the lookup tables from trigger files and inline
// scenario triggers. Trigger-file entries take precedence over inline ones;
// inline triggers apply to both chat types.
func buildIndex(tenantID string, scenarios map[string]*models.Scenario, triggers *TriggerConfig, log *slog.Logger) *Index {
	x := &Index{
		tenantID:   tenantID,
		private:    newTable(),
		group:      newTable(),
		scenarios:  scenarios,
		shortNames: map[string][]string{},
	}
	for key, sc := range scenarios {
		x.shortNames[sc.ShortName] = append(x.shortNames[sc.ShortName], key)
	}

	for _, sc := range scenarios {
		for _, ref := range sc.Triggers {
			addTrigger(x.private, ref, sc.Name, log)
			addTrigger(x.group, ref, sc.Name, log)
		}
	}
	if triggers != nil {
		applyTriggerFile(x.private, triggers.Private, log)
		applyTriggerFile(x.group, triggers.Group, log)
	}
	return x
}

func addTrigger(t *table, ref models.TriggerRef, scenarioKey string, log *slog.Logger) {
	switch ref.Source {
	case models.TriggerSourceText:
		switch ref.Kind {
		case models.TriggerKindExact:
			t.textExact[strings.ToLower(ref.Key)] = scenarioKey
		case models.TriggerKindState:
			t.textState[strings.ToLower(ref.Key)] = scenarioKey
		case models.TriggerKindRegex:
			if rt, ok := compileTrigger(ref.Key, scenarioKey, log); ok {
				t.textRegex = append(t.textRegex, rt)
			}
		case models.TriggerKindStartsWith:
			t.textPrefix = append(t.textPrefix, models.Pair{Key: strings.ToLower(ref.Key), Value: scenarioKey})
		case models.TriggerKindContains:
			t.textSubstr = append(t.textSubstr, models.Pair{Key: strings.ToLower(ref.Key), Value: scenarioKey})
		default:
			log.Warn("unknown text trigger kind", "kind", ref.Kind, "scenario", scenarioKey)
		}
	case models.TriggerSourceCallback:
		switch ref.Kind {
		case models.TriggerKindExact:
			t.cbExact[NormalizeCallbackKey(ref.Key)] = scenarioKey
		case models.TriggerKindContains:
			t.cbSubstr = append(t.cbSubstr, models.Pair{Key: NormalizeCallbackKey(ref.Key), Value: scenarioKey})
		default:
			log.Warn("unknown callback trigger kind", "kind", ref.Kind, "scenario", scenarioKey)
		}
	case models.TriggerSourceNewMember:
		t.newMember[ref.Kind] = scenarioKey
	default:
		log.Warn("unknown trigger source", "source", ref.Source, "scenario", scenarioKey)
	}
}

// applyTriggerFile overlays a merged trigger file onto a table. File entries
// overwrite inline entries and ordered-tier file entries match first.
func applyTriggerFile(t *table, tf TriggerFile, log *slog.Logger) {
	for _, p := range tf.Text.Exact {
		t.textExact[strings.ToLower(p.Key)] = p.Value
	}
	for _, p := range tf.Text.State {
		t.textState[strings.ToLower(p.Key)] = p.Value
	}
	var fileRegex []regexTrigger
	for _, p := range tf.Text.Regex {
		if rt, ok := compileTrigger(p.Key, p.Value, log); ok {
			fileRegex = append(fileRegex, rt)
		}
	}
	t.textRegex = append(fileRegex, t.textRegex...)
	t.textPrefix = append(lowerPairs(tf.Text.StartsWith), t.textPrefix...)
	t.textSubstr = append(lowerPairs(tf.Text.Contains), t.textSubstr...)

	for _, p := range tf.Callback.Exact {
		t.cbExact[NormalizeCallbackKey(p.Key)] = p.Value
	}
	normSubstr := make(models.OrderedPairs, 0, len(tf.Callback.Contains))
	for _, p := range tf.Callback.Contains {
		normSubstr = append(normSubstr, models.Pair{Key: NormalizeCallbackKey(p.Key), Value: p.Value})
	}
	t.cbSubstr = append(normSubstr, t.cbSubstr...)

	for kind, scenarioKey := range tf.NewMember {
		t.newMember[kind] = scenarioKey
	}
}

// compileTrigger builds a case-insensitive regex trigger. Compile errors are
// logged and the trigger is skipped.
func compileTrigger(pattern, scenarioKey string, log *slog.Logger) (regexTrigger, bool) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		log.Error("invalid regex trigger, skipping",
			"pattern", pattern, "scenario", scenarioKey, "error", err)
		return regexTrigger{}, false
	}
	return regexTrigger{re: re, scenario: scenarioKey}, true
}

func lowerPairs(pairs models.OrderedPairs) models.OrderedPairs {
	out := make(models.OrderedPairs, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.Pair{Key: strings.ToLower(p.Key), Value: p.Value})
	}
	return out
}

// IndexManager builds per-tenant indexes on first use and keeps them in the
// cache manager until ReloadTenantScenarios invalidates them. Concurrent
// first loads for one tenant are deduplicated by a per-tenant build lock.
type IndexManager struct {
	log    *slog.Logger
	loader *Loader
	cache  *cache.Manager

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewIndexManager(loader *Loader, c *cache.Manager, log *slog.Logger) *IndexManager {
	return &IndexManager{
		log:    log.With("component", "scenario_index"),
		loader: loader,
		cache:  c,
		locks:  map[string]*sync.Mutex{},
	}
}

func indexKey(tenantID string) string {
	return "scenario_index:" + tenantID
}

// Index returns the tenant's index, building it if absent.
func (m *IndexManager) Index(tenantID string) (*Index, error) {
	if v, ok := m.cache.Get(indexKey(tenantID)); ok {
		return v.(*Index), nil
	}

	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have built it while we waited.
	if v, ok := m.cache.Get(indexKey(tenantID)); ok {
		return v.(*Index), nil
	}

	scenarios, err := m.loader.LoadScenarios(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load scenarios for tenant %s: %w", tenantID, err)
	}
	triggers, err := m.loader.LoadTriggers(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load triggers for tenant %s: %w", tenantID, err)
	}

	idx := buildIndex(tenantID, scenarios, triggers, m.log)
	m.cache.Set(indexKey(tenantID), idx, indexRetention)
	m.log.Info("scenario index built", "tenant_id", tenantID, "scenarios", len(scenarios))
	return idx, nil
}

// ReloadTenantScenarios drops the cached index; the next event rebuilds it.
func (m *IndexManager) ReloadTenantScenarios(tenantID string) {
	m.cache.Delete(indexKey(tenantID))
	m.log.Info("scenario index invalidated", "tenant_id", tenantID)
}

func (m *IndexManager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[tenantID] = l
	}
	return l
}
