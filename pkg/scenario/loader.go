package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowbotio/flowbot/pkg/models"
)

// ErrNoScenarios is returned when a tenant has no scenario files at all.
var ErrNoScenarios = errors.New("tenant has no scenarios")

// TriggerFile is one trigger YAML document. Inner text maps preserve
// declaration order where iteration order affects matching.
type TriggerFile struct {
	Text struct {
		Exact      models.OrderedPairs `yaml:"exact"`
		State      models.OrderedPairs `yaml:"state"`
		Regex      models.OrderedPairs `yaml:"regex"`
		StartsWith models.OrderedPairs `yaml:"starts_with"`
		Contains   models.OrderedPairs `yaml:"contains"`
	} `yaml:"text"`
	Callback struct {
		Exact    models.OrderedPairs `yaml:"exact"`
		Contains models.OrderedPairs `yaml:"contains"`
	} `yaml:"callback"`
	NewMember map[string]string `yaml:"new_member"`
}

// TriggerConfig carries the merged trigger tables for both chat types.
type TriggerConfig struct {
	Private TriggerFile
	Group   TriggerFile
}

// Loader reads scenario and trigger YAML files from per-tenant directories:
//
//	<scenariosDir>/<tenant>/**/*.yaml
//	<triggersDir>/<tenant>/{private,group}.yaml
//	<triggersDir>/<tenant>/system/{private,group}.yaml
//
// System trigger files overlay the tenant-authored ones; on key collision
// the system entry wins.
type Loader struct {
	scenariosDir string
	triggersDir  string
	log          *slog.Logger
}

func NewLoader(scenariosDir, triggersDir string, log *slog.Logger) *Loader {
	return &Loader{
		scenariosDir: scenariosDir,
		triggersDir:  triggersDir,
		log:          log.With("component", "scenario_loader"),
	}
}

// LoadScenarios reads every scenario file under the tenant's directory.
// Keys are fully qualified: "<relative-path-without-ext>.<scenario_name>".
func (l *Loader) LoadScenarios(tenantID string) (map[string]*models.Scenario, error) {
	root := filepath.Join(l.scenariosDir, tenantID)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoScenarios
		}
		return nil, fmt.Errorf("stat scenario dir: %w", err)
	}

	out := map[string]*models.Scenario{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		prefix := strings.ReplaceAll(strings.TrimSuffix(rel, filepath.Ext(rel)), string(filepath.Separator), ".")
		if err := l.loadScenarioFile(path, prefix, tenantID, out); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoScenarios
	}
	return out, nil
}

func (l *Loader) loadScenarioFile(path, prefix, tenantID string, out map[string]*models.Scenario) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario file %s: %w", path, err)
	}
	var file map[string]*models.Scenario
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	for name, sc := range file {
		if sc == nil {
			sc = &models.Scenario{}
		}
		sc.Name = prefix + "." + name
		sc.ShortName = name
		sc.TenantID = tenantID
		for i := range sc.Steps {
			sc.Steps[i].Order = i
		}
		if prev, dup := out[sc.Name]; dup {
			l.log.Warn("duplicate scenario key, keeping first",
				"key", sc.Name, "tenant_id", tenantID, "kept", prev.Name)
			continue
		}
		out[sc.Name] = sc
	}
	return nil
}

// LoadTriggers reads the per-chat-type trigger files and applies the system
// overlay. Missing files yield empty tables, not errors.
func (l *Loader) LoadTriggers(tenantID string) (*TriggerConfig, error) {
	root := filepath.Join(l.triggersDir, tenantID)
	cfg := &TriggerConfig{}

	for _, chat := range []struct {
		name string
		dst  *TriggerFile
	}{
		{"private", &cfg.Private},
		{"group", &cfg.Group},
	} {
		user, err := l.readTriggerFile(filepath.Join(root, chat.name+".yaml"))
		if err != nil {
			return nil, err
		}
		system, err := l.readTriggerFile(filepath.Join(root, "system", chat.name+".yaml"))
		if err != nil {
			return nil, err
		}
		*chat.dst = overlayTriggers(user, system)
	}
	return cfg, nil
}

func (l *Loader) readTriggerFile(path string) (TriggerFile, error) {
	var tf TriggerFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tf, nil
		}
		return tf, fmt.Errorf("read trigger file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("parse trigger file %s: %w", path, err)
	}
	return tf, nil
}

// overlayTriggers merges system triggers over user triggers. System entries
// win on collision and take matching precedence in the ordered tables.
func overlayTriggers(user, system TriggerFile) TriggerFile {
	var out TriggerFile
	out.Text.Exact = mergeOrdered(user.Text.Exact, system.Text.Exact)
	out.Text.State = mergeOrdered(user.Text.State, system.Text.State)
	out.Text.Regex = mergeOrdered(user.Text.Regex, system.Text.Regex)
	out.Text.StartsWith = mergeOrdered(user.Text.StartsWith, system.Text.StartsWith)
	out.Text.Contains = mergeOrdered(user.Text.Contains, system.Text.Contains)
	out.Callback.Exact = mergeOrdered(user.Callback.Exact, system.Callback.Exact)
	out.Callback.Contains = mergeOrdered(user.Callback.Contains, system.Callback.Contains)

	out.NewMember = map[string]string{}
	for k, v := range user.NewMember {
		out.NewMember[k] = v
	}
	for k, v := range system.NewMember {
		out.NewMember[k] = v
	}
	return out
}

// mergeOrdered places overlay entries first, then base entries whose keys
// the overlay did not claim.
func mergeOrdered(base, overlay models.OrderedPairs) models.OrderedPairs {
	if len(overlay) == 0 {
		return base
	}
	out := make(models.OrderedPairs, 0, len(base)+len(overlay))
	out = append(out, overlay...)
	for _, p := range base {
		if _, taken := overlay.Get(p.Key); !taken {
			out = append(out, p)
		}
	}
	return out
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
