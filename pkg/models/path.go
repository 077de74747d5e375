package models

import (
	"strconv"
	"strings"
)

// missingValue is the sentinel for an unresolved path. It is distinct from
// nil: nil is an explicit null, Missing means the field does not exist.
type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// Missing is returned by LookupPath when a path does not resolve.
var Missing = missingValue{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

// LookupPath resolves a dotted path with optional [idx] suffixes against a
// nested structure of maps and slices. Negative indices count from the end.
// Out-of-range indices and absent keys yield Missing.
//
//	LookupPath(ctx, "system.tenant_id")
//	LookupPath(ctx, "event_attachment[0].file_id")
//	LookupPath(ctx, "items[-1]")
func LookupPath(root map[string]any, path string) any {
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		name, indices, err := splitIndices(seg)
		if err != nil {
			return Missing
		}
		if name != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return Missing
			}
			cur, ok = m[name]
			if !ok {
				return Missing
			}
		}
		for _, idx := range indices {
			list, ok := cur.([]any)
			if !ok {
				return Missing
			}
			if idx < 0 {
				idx += len(list)
			}
			if idx < 0 || idx >= len(list) {
				return Missing
			}
			cur = list[idx]
		}
	}
	return cur
}

// splitIndices separates "name[1][-2]" into "name" and [1, -2].
func splitIndices(seg string) (string, []int, error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, nil
	}
	name := seg[:open]
	var indices []int
	rest := seg[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, errBadIndex
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return "", nil, errBadIndex
		}
		n, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, errBadIndex
		}
		indices = append(indices, n)
		rest = rest[close+1:]
	}
	return name, indices, nil
}

var errBadIndex = strconv.ErrSyntax
