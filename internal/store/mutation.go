package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Mutation is the leaf-level effect of a Write, Update or Remove.
// Backends apply Clear, then Drop, then Set, as one atomic step.
type Mutation struct {
	// Clear lists subtrees removed entirely (the path and all leaves below it).
	Clear []string
	// Drop lists exact leaves removed, used for ancestors that held scalars.
	Drop []string
	Set  map[string]json.RawMessage
	// Changed is the path announced to subscribers.
	Changed string
}

// PlanWrite computes the full overwrite of path with value.
func PlanWrite(path string, value any) (Mutation, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Mutation{}, err
	}
	leaves, err := Flatten(path, value)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{
		Clear:   []string{path},
		Drop:    Ancestors(path),
		Set:     leaves,
		Changed: path,
	}, nil
}

// PlanUpdate computes a merge-write of the named children of path.
// A nil field value removes that child.
func PlanUpdate(path string, fields map[string]any) (Mutation, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Mutation{}, err
	}
	m := Mutation{Set: make(map[string]json.RawMessage), Changed: path}
	if path != "" {
		m.Drop = append(Ancestors(path), path)
	}
	for key, value := range fields {
		if err := ValidSegment(key); err != nil {
			return Mutation{}, err
		}
		child := Join(path, key)
		leaves, err := Flatten(child, value)
		if err != nil {
			return Mutation{}, err
		}
		m.Clear = append(m.Clear, child)
		for p, raw := range leaves {
			m.Set[p] = raw
		}
	}
	return m, nil
}

// PlanRemove computes the deletion of path and everything below it.
func PlanRemove(path string) (Mutation, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Clear: []string{path}, Changed: path}, nil
}

// Apply executes the mutation against an in-process leaf map.
func (m Mutation) Apply(leaves map[string]json.RawMessage) {
	for _, prefix := range m.Clear {
		for leaf := range leaves {
			if Under(leaf, prefix) {
				delete(leaves, leaf)
			}
		}
	}
	for _, leaf := range m.Drop {
		delete(leaves, leaf)
	}
	for leaf, raw := range m.Set {
		leaves[leaf] = raw
	}
}

// NewPushID returns a server-generated child key. Keys are UUIDv7 so they sort in
// creation order.
func NewPushID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push id: %w", err)
	}
	return id.String(), nil
}
