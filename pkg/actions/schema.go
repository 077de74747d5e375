package actions

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field type names used by schemas.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeList   = "list"
	TypeObject = "object"
)

// Property declares one input field of an action schema.
type Property struct {
	// Types is the accepted type set. More than one entry makes the field
	// union-typed; unions skip constraint enforcement.
	Types []string `yaml:"type"`

	Optional   bool     `yaml:"optional"`
	MinLength  *int     `yaml:"min_length"`
	MaxLength  *int     `yaml:"max_length"`
	Min        *float64 `yaml:"min"`
	Max        *float64 `yaml:"max"`
	Enum       []any    `yaml:"enum"`
	Pattern    string   `yaml:"pattern"`
	FromConfig bool     `yaml:"from_config"`
}

// IsUnion reports whether more than one type is accepted.
func (p *Property) IsUnion() bool { return len(p.Types) > 1 }

func (p *Property) allowsType(name string) bool {
	for _, t := range p.Types {
		if t == name {
			return true
		}
	}
	return false
}

// UnmarshalYAML accepts `type: string` and `type: [string, int]`.
func (p *Property) UnmarshalYAML(node *yaml.Node) error {
	type raw Property
	var r raw
	var single struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&single); err == nil && single.Type != "" {
		if err := node.Decode((*rawNoType)(&r)); err != nil {
			return err
		}
		r.Types = []string{single.Type}
	} else if err := node.Decode(&r); err != nil {
		return err
	}
	*p = Property(r)
	return nil
}

// rawNoType decodes every Property field except the type list.
type rawNoType struct {
	Types      []string `yaml:"-"`
	Optional   bool     `yaml:"optional"`
	MinLength  *int     `yaml:"min_length"`
	MaxLength  *int     `yaml:"max_length"`
	Min        *float64 `yaml:"min"`
	Max        *float64 `yaml:"max"`
	Enum       []any    `yaml:"enum"`
	Pattern    string   `yaml:"pattern"`
	FromConfig bool     `yaml:"from_config"`
}

// Schema is the declared input contract of one action.
type Schema struct {
	Properties map[string]*Property `yaml:"properties"`
}

// ValidationError reports a failed required-field check.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// ValidateInput normalizes and checks data against the schema, returning a
// copy with from_config fields copied down and union empty strings nulled.
// Constraint violations on optional fields are advisory: they log a warning
// and pass. Required fields fail hard.
func ValidateInput(schema *Schema, data map[string]any, log *slog.Logger) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	if schema == nil {
		return out, nil
	}
	config, _ := out["_config"].(map[string]any)

	for field, prop := range schema.Properties {
		val, present := out[field]

		// from_config copy-down.
		if !present && prop.FromConfig && config != nil {
			if cv, ok := config[field]; ok {
				out[field] = cv
				val, present = cv, true
			}
		}

		if !present || val == nil {
			if !prop.Optional {
				return nil, &ValidationError{Field: field, Reason: "required field missing"}
			}
			continue
		}

		// Optional union fields holding "" mean "unset" for non-string
		// targets; string-typed unions keep the empty string.
		if prop.Optional && prop.IsUnion() && val == "" && !prop.allowsType(TypeString) {
			out[field] = nil
			continue
		}

		// Unions skip type and constraint enforcement.
		if prop.IsUnion() {
			continue
		}

		if err := checkField(field, prop, val); err != nil {
			if prop.Optional {
				log.Warn("advisory constraint violation on optional field",
					"field", field, "reason", err.Reason)
				continue
			}
			return nil, err
		}
	}
	return out, nil
}

func checkField(field string, prop *Property, val any) *ValidationError {
	if len(prop.Types) == 1 {
		if got := typeName(val); !typeMatches(prop.Types[0], got) {
			return &ValidationError{Field: field,
				Reason: fmt.Sprintf("expected %s, got %s", prop.Types[0], got)}
		}
	}

	if s, ok := val.(string); ok {
		n := len([]rune(s))
		if prop.MinLength != nil && n < *prop.MinLength {
			return &ValidationError{Field: field,
				Reason: fmt.Sprintf("length %d below minimum %d", n, *prop.MinLength)}
		}
		if prop.MaxLength != nil && n > *prop.MaxLength {
			return &ValidationError{Field: field,
				Reason: fmt.Sprintf("length %d above maximum %d", n, *prop.MaxLength)}
		}
		if prop.Pattern != "" {
			re, err := regexp.Compile(prop.Pattern)
			if err != nil {
				return &ValidationError{Field: field, Reason: "invalid schema pattern"}
			}
			if !re.MatchString(s) {
				return &ValidationError{Field: field,
					Reason: fmt.Sprintf("value does not match pattern %s", prop.Pattern)}
			}
		}
	}

	if f, ok := numericValue(val); ok {
		if prop.Min != nil && f < *prop.Min {
			return &ValidationError{Field: field,
				Reason: fmt.Sprintf("value %v below minimum %v", f, *prop.Min)}
		}
		if prop.Max != nil && f > *prop.Max {
			return &ValidationError{Field: field,
				Reason: fmt.Sprintf("value %v above maximum %v", f, *prop.Max)}
		}
	}

	if len(prop.Enum) > 0 && !enumContains(prop.Enum, val) {
		return &ValidationError{Field: field,
			Reason: fmt.Sprintf("value %v not in enum", val)}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return TypeString
	case int, int64:
		return TypeInt
	case float64:
		return TypeFloat
	case bool:
		return TypeBool
	case []any:
		return TypeList
	case map[string]any:
		return TypeObject
	}
	return fmt.Sprintf("%T", v)
}

// typeMatches accepts ints where floats are declared.
func typeMatches(declared, got string) bool {
	if declared == got {
		return true
	}
	return declared == TypeFloat && got == TypeInt
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func enumContains(enum []any, val any) bool {
	for _, e := range enum {
		if e == val {
			return true
		}
		// Enum entries loaded from YAML compare loosely on string form.
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", val) {
			return true
		}
	}
	return false
}

// splitName resolves "service.action" into its parts.
func splitName(name string) (service, action string, ok bool) {
	service, action, ok = strings.Cut(name, ".")
	return service, action, ok && service != "" && action != ""
}
