package config

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.-]+)\}`)

// interpolate resolves ${a.b.c} references in doc against doc itself. A
// string that is exactly one reference takes the referenced value with its
// type intact (so `radius: ${metric.validity.radius}` stays a list);
// references embedded in longer strings are stringified in place.
func interpolate(doc map[string]any) (map[string]any, error) {
	r := &resolver{doc: doc, resolving: map[string]bool{}}
	out, err := r.resolveValue(doc)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

type resolver struct {
	doc       map[string]any
	resolving map[string]bool
}

func (r *resolver) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			res, err := r.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			res, err := r.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	case string:
		return r.resolveString(val)
	default:
		return v, nil
	}
}

func (r *resolver) resolveString(s string) (any, error) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}

	// Whole-string reference: preserve the referenced value's type.
	if m[0] == s {
		return r.lookup(m[1])
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		path := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.lookup(path)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return fmt.Sprint(v)
	})
	return out, firstErr
}

func (r *resolver) lookup(path string) (any, error) {
	if r.resolving[path] {
		return nil, fmt.Errorf("reference cycle through ${%s}", path)
	}
	r.resolving[path] = true
	defer delete(r.resolving, path)

	var cur any = r.doc
	for _, part := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("reference ${%s}: %q is not a section", path, part)
		}
		cur, ok = node[part]
		if !ok {
			return nil, fmt.Errorf("reference ${%s}: no such key %q", path, part)
		}
	}
	// The target may itself contain references.
	return r.resolveValue(cur)
}
