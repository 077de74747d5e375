// Package placeholder implements the recursive placeholder expansion
// pipeline: `{path|modifier:arg|...}` placeholders inside step parameters
// are resolved over a live event-and-cache context into fully materialized
// values. This is the sole interface between declarative YAML scenarios and
// runtime data.
package placeholder

import (
	"fmt"
	"strings"
)

// node is one piece of a parsed template string: either literal text or a
// placeholder.
type node struct {
	text string // literal text when ph == nil
	ph   *placeholder
}

// placeholder is the parsed form of one `{source|mod|...}` span.
type placeholder struct {
	raw       string // original text including braces, for unresolved render
	source    source
	modifiers []modifier
}

// source is either a context path or a quoted literal.
type source struct {
	path    string
	literal string
	quoted  bool
}

// modifier is one `name:arg` (or arithmetic `+N` style) chain element.
type modifier struct {
	name string
	arg  string
}

// template is a parsed template string.
type template struct {
	nodes []node
}

// single returns the placeholder when the template consists of exactly one
// placeholder and nothing else.
func (t *template) single() *placeholder {
	if len(t.nodes) == 1 && t.nodes[0].ph != nil {
		return t.nodes[0].ph
	}
	return nil
}

// hasPlaceholder reports whether any node is a placeholder.
func (t *template) hasPlaceholder() bool {
	for _, n := range t.nodes {
		if n.ph != nil {
			return true
		}
	}
	return false
}

// parseTemplate scans s with a brace-depth scanner. Placeholders begin at
// `{` and end at the matching `}`; nesting is allowed. Braces inside quoted
// literals do not count toward depth. A `{` with no matching `}` is treated
// as literal text.
func parseTemplate(s string) *template {
	t := &template{}
	start := 0
	i := 0
	for i < len(s) {
		if s[i] != '{' {
			i++
			continue
		}
		end, ok := matchBrace(s, i)
		if !ok {
			i++
			continue
		}
		if i > start {
			t.nodes = append(t.nodes, node{text: s[start:i]})
		}
		raw := s[i : end+1]
		ph, err := parsePlaceholder(raw)
		if err != nil {
			// Unparseable span stays literal text.
			t.nodes = append(t.nodes, node{text: raw})
		} else {
			t.nodes = append(t.nodes, node{ph: ph})
		}
		i = end + 1
		start = i
	}
	if start < len(s) {
		t.nodes = append(t.nodes, node{text: s[start:]})
	}
	return t
}

// matchBrace returns the index of the `}` matching the `{` at open.
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parsePlaceholder parses `{body}` into source and modifier chain.
func parsePlaceholder(raw string) (*placeholder, error) {
	body := raw[1 : len(raw)-1]
	parts := splitTop(body, '|')
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return nil, fmt.Errorf("empty placeholder")
	}

	ph := &placeholder{raw: raw}
	src := strings.TrimSpace(parts[0])
	if lit, ok := unquote(src); ok {
		ph.source = source{literal: lit, quoted: true}
	} else {
		ph.source = source{path: src}
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ph.modifiers = append(ph.modifiers, parseModifier(part))
	}
	return ph, nil
}

// parseModifier splits one chain element. Arithmetic modifiers carry the
// operator as the name and everything after it as the operand; all others
// split on the first colon.
func parseModifier(s string) modifier {
	switch s[0] {
	case '+', '-', '*', '/', '%':
		return modifier{name: string(s[0]), arg: strings.TrimSpace(s[1:])}
	}
	name, arg, _ := strings.Cut(s, ":")
	return modifier{name: name, arg: arg}
}

// splitTop splits s on sep at brace depth zero, outside quoted spans.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// unquote strips matching single or double quotes and resolves the \' and
// \" escape sequences. It reports whether s was a quoted literal.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '\'' && q != '"') || s[len(s)-1] != q {
		return "", false
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) && (inner[i+1] == '\'' || inner[i+1] == '"') {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String(), true
}
