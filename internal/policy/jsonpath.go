package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// pathSegment is one step of a parsed path: a field name, a numeric
// index, or a wildcard that fans out over every element of an array.
type pathSegment struct {
	field    string
	index    int
	wildcard bool
	isIndex  bool
}

// ParsePath compiles a dotted/bracketed path string such as
// "emails[*].from" or "items[3].name.first" into its segments.
func ParsePath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	var field strings.Builder

	flushField := func() {
		if field.Len() > 0 {
			segments = append(segments, pathSegment{field: field.String()})
			field.Reset()
		}
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '.':
			flushField()
			i++
		case '[':
			flushField()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated '[' in path %q", path)
			}
			inner := path[i+1 : i+end]
			if inner == "*" {
				segments = append(segments, pathSegment{wildcard: true})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil {
					return nil, fmt.Errorf("invalid array index %q in path %q", inner, path)
				}
				segments = append(segments, pathSegment{index: idx, isIndex: true})
			}
			i += end + 1
		default:
			field.WriteByte(c)
			i++
		}
	}
	flushField()

	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segments, nil
}

// ExtractPath resolves path against value, returning every leaf reached.
// A wildcard segment fans out over all elements of an array, so the
// result may contain more leaves than there were path components. An
// absent field, an out-of-range index, or indexing into a non-object/
// non-array value yields no leaves for that branch (not an error).
func ExtractPath(value any, path string) ([]any, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return resolveSegments([]any{value}, segments), nil
}

func resolveSegments(values []any, segments []pathSegment) []any {
	cur := values
	for _, seg := range segments {
		var next []any
		for _, v := range cur {
			next = append(next, resolveSegment(v, seg)...)
		}
		cur = next
		if len(cur) == 0 {
			return nil
		}
	}
	return cur
}

func resolveSegment(v any, seg pathSegment) []any {
	switch {
	case seg.wildcard:
		arr, ok := v.([]any)
		if !ok {
			return nil
		}
		return arr
	case seg.isIndex:
		arr, ok := v.([]any)
		if !ok || seg.index < 0 || seg.index >= len(arr) {
			return nil
		}
		return []any{arr[seg.index]}
	default:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		child, present := obj[seg.field]
		if !present {
			return nil
		}
		return []any{child}
	}
}
