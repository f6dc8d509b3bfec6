package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const reservedChars = ".#$[]"

// CleanPath trims surrounding slashes and validates every segment.
// The empty string addresses the root.
func CleanPath(path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", nil
	}
	for _, seg := range strings.Split(path, "/") {
		if err := ValidSegment(seg); err != nil {
			return "", err
		}
	}
	return path, nil
}

// ValidSegment reports whether seg can be used as one path segment.
func ValidSegment(seg string) error {
	if seg == "" || strings.TrimSpace(seg) == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(seg, reservedChars+"/") {
		return fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
	}
	return nil
}

// Join builds a path from segments, skipping empty ones.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Ancestors returns the proper, non-root ancestors of path, nearest last.
func Ancestors(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// Under reports whether leaf is path itself or lives beneath it.
func Under(leaf, path string) bool {
	return path == "" || leaf == path || strings.HasPrefix(leaf, path+"/")
}

// Overlaps reports whether a change at one path is visible from the other.
func Overlaps(a, b string) bool {
	return Under(a, b) || Under(b, a)
}

// Flatten converts value into scalar leaves keyed by their full path below base.
// Null values and empty objects produce no leaves.
func Flatten(base string, value any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	leaves := make(map[string]json.RawMessage)
	if err := flattenInto(leaves, base, tree); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flattenInto(leaves map[string]json.RawMessage, path string, node any) error {
	switch v := node.(type) {
	case nil:
		return nil
	case map[string]any:
		for key, child := range v {
			if err := ValidSegment(key); err != nil {
				return err
			}
			if err := flattenInto(leaves, Join(path, key), child); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range v {
			if err := flattenInto(leaves, Join(path, strconv.Itoa(i)), child); err != nil {
				return err
			}
		}
		return nil
	default:
		if path == "" {
			return fmt.Errorf("%w: scalar at root", ErrInvalidPath)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		leaves[path] = raw
		return nil
	}
}

// Assemble rebuilds the JSON subtree at path from the leaves that live under it.
// It returns nil when no leaf is under path.
func Assemble(path string, leaves map[string]json.RawMessage) json.RawMessage {
	if raw, ok := leaves[path]; ok && path != "" {
		return raw
	}
	root := map[string]any{}
	found := false
	for leaf, raw := range leaves {
		if !Under(leaf, path) || leaf == path {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(leaf, path), "/")
		insert(root, strings.Split(rel, "/"), raw)
		found = true
	}
	if !found {
		return nil
	}
	out, err := json.Marshal(arrayify(root))
	if err != nil {
		return nil
	}
	return out
}

func insert(node map[string]any, segs []string, raw json.RawMessage) {
	if len(segs) == 1 {
		node[segs[0]] = raw
		return
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[segs[0]] = child
	}
	insert(child, segs[1:], raw)
}

// arrayify turns objects keyed exactly 0..n-1 into arrays.
func arrayify(node any) any {
	m, ok := node.(map[string]any)
	if !ok {
		return node
	}
	for k, v := range m {
		m[k] = arrayify(v)
	}
	if len(m) == 0 {
		return m
	}
	arr := make([]any, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != k {
			return m
		}
		arr[i] = v
	}
	return arr
}

// SortedKeys returns the keys of m in ascending order. Push ids sort chronologically.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
