package app

import (
	"bytes"
	"encoding/json"
	"strconv"

	"quiz-session-service/internal/store"
)

type child[T any] struct {
	Key   string
	Value T
}

// decodeChildren returns the children of a snapshot in key order. Collections whose
// keys are 0..n-1 come back from the store as arrays and are handled the same way.
func decodeChildren[T any](snap store.Snapshot) ([]child[T], error) {
	if !snap.Exists() {
		return nil, nil
	}
	if bytes.HasPrefix(bytes.TrimSpace(snap.Value), []byte("[")) {
		var items []T
		if err := json.Unmarshal(snap.Value, &items); err != nil {
			return nil, err
		}
		out := make([]child[T], 0, len(items))
		for i, v := range items {
			out = append(out, child[T]{Key: strconv.Itoa(i), Value: v})
		}
		return out, nil
	}
	var m map[string]T
	if err := json.Unmarshal(snap.Value, &m); err != nil {
		return nil, err
	}
	out := make([]child[T], 0, len(m))
	for _, k := range store.SortedKeys(m) {
		out = append(out, child[T]{Key: k, Value: m[k]})
	}
	return out, nil
}
