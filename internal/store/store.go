package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrInvalidPath is returned for empty segments or reserved characters in a path.
	ErrInvalidPath = errors.New("invalid store path")
	// ErrNotCounter is returned when Increment targets a non-integer value.
	ErrNotCounter = errors.New("value at path is not an integer counter")
)

// Store is the remote key-addressed store the quiz core talks to.
// Values are JSON trees addressed by slash-separated paths.
type Store interface {
	Read(ctx context.Context, path string) (Snapshot, error)
	// Subscribe delivers the current value and then a fresh snapshot after every
	// mutation that overlaps path. The returned cancel func unsubscribes and closes
	// the channel.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error)
	Write(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	AppendChild(ctx context.Context, path string, value any) (string, error)
	Remove(ctx context.Context, path string) error
	// Increment atomically adds delta to the integer at path, creating it if absent.
	Increment(ctx context.Context, path string, delta int64) (int64, error)
}

// Snapshot is a point-in-time value of a subtree.
type Snapshot struct {
	Path  string
	Value json.RawMessage
}

// Exists reports whether anything is stored at the snapshot path.
func (s Snapshot) Exists() bool {
	return len(s.Value) > 0 && string(s.Value) != "null"
}

// Decode unmarshals the snapshot into v. Missing values leave v untouched.
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return nil
	}
	return json.Unmarshal(s.Value, v)
}
