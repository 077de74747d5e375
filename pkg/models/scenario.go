package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trigger source types.
const (
	TriggerSourceText      = "text"
	TriggerSourceCallback  = "callback"
	TriggerSourceNewMember = "new_member"
)

// Trigger match kinds.
const (
	TriggerKindExact      = "exact"
	TriggerKindStartsWith = "starts_with"
	TriggerKindContains   = "contains"
	TriggerKindRegex      = "regex"
	TriggerKindState      = "state"
	TriggerKindGroup      = "group"
	TriggerKindLink       = "link"
	TriggerKindCreator    = "creator"
	TriggerKindInitiator  = "initiator"
	TriggerKindDefault    = "default"
)

// Scenario is one declarative automation unit, keyed by
// (tenant_id, scenario_name).
type Scenario struct {
	// Name is the fully-qualified key: "<relative-path-without-ext>.<name>".
	Name string `yaml:"-"`
	// ShortName is the last path segment, used for unambiguous lookups.
	ShortName string `yaml:"-"`
	TenantID  string `yaml:"-"`

	Description string       `yaml:"description"`
	Schedule    string       `yaml:"schedule"`
	Triggers    []TriggerRef `yaml:"trigger"`
	Steps       []Step       `yaml:"step"`
}

// Step is one node of the scenario graph. Order is assigned from the step's
// position in the YAML list and forms a contiguous range [0, N) unless
// transitions explicitly jump.
type Step struct {
	Order      int            `yaml:"-"`
	ActionName string         `yaml:"action_name"`
	Action     string         `yaml:"action"`
	Params     map[string]any `yaml:"params"`
	Async      bool           `yaml:"async"`
	ActionID   string         `yaml:"action_id"`
	Condition  string         `yaml:"condition"`
	Transition []Transition   `yaml:"transition"`
}

// ResolvedAction returns the action to dispatch. When both action and
// action_name are set, action_name wins.
func (s Step) ResolvedAction() string {
	if s.ActionName != "" {
		return s.ActionName
	}
	return s.Action
}

// Transition routes a step result to a successor step order. Entries are
// matched in list order; the first match wins.
type Transition struct {
	Result string `yaml:"result"`
	Next   int    `yaml:"next"`
}

// UnmarshalYAML accepts both the explicit form {result: ..., next: N} and
// the shorthand single-pair form {<result>: N}.
func (t *Transition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) < 2 {
		return fmt.Errorf("transition must be a mapping")
	}
	keys := map[string]*yaml.Node{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = node.Content[i+1]
	}
	if res, ok := keys["result"]; ok {
		t.Result = res.Value
		if next, ok := keys["next"]; ok {
			return next.Decode(&t.Next)
		}
		return fmt.Errorf("transition %q missing next", t.Result)
	}
	// Shorthand: first pair is result → next order.
	t.Result = node.Content[0].Value
	return node.Content[1].Decode(&t.Next)
}

// TriggerRef is a trigger declared inline on a scenario, e.g.
//
//	trigger:
//	  - text.exact: "ping"
//	  - new_member.default
type TriggerRef struct {
	Source string
	Kind   string
	Key    string
}

// UnmarshalYAML accepts a single-pair mapping {"text.exact": "ping"} or a
// bare scalar "new_member.default".
func (r *TriggerRef) UnmarshalYAML(node *yaml.Node) error {
	var tag, key string
	switch node.Kind {
	case yaml.ScalarNode:
		tag = node.Value
	case yaml.MappingNode:
		if len(node.Content) < 2 {
			return fmt.Errorf("trigger mapping must have one entry")
		}
		tag = node.Content[0].Value
		key = node.Content[1].Value
	default:
		return fmt.Errorf("trigger must be a scalar or a single-pair mapping")
	}
	source, kind, ok := strings.Cut(tag, ".")
	if !ok {
		return fmt.Errorf("trigger %q must be of the form <source>.<kind>", tag)
	}
	r.Source = source
	r.Kind = kind
	r.Key = key
	return nil
}

// Pair is one key/value trigger entry preserving YAML declaration order.
type Pair struct {
	Key   string
	Value string
}

// OrderedPairs is a YAML mapping decoded with declaration order intact.
// Iteration order matters for regex, starts_with, and contains triggers:
// the first declared entry that matches wins.
type OrderedPairs []Pair

// UnmarshalYAML decodes a mapping node preserving entry order.
func (p *OrderedPairs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected mapping, got %v", node.Kind)
	}
	out := make(OrderedPairs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Pair{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	*p = out
	return nil
}

// Get returns the value for key and whether it was present.
func (p OrderedPairs) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}
