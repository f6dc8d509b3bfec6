package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"quiz-session-service/internal/store"
)

// Store is an in-process implementation of store.Store. Values are kept as
// flattened leaves and subscribers are served from a local hub.
type Store struct {
	mu     sync.RWMutex
	leaves map[string]json.RawMessage
	hub    *store.Hub
}

func NewStore() *Store {
	s := &Store{leaves: make(map[string]json.RawMessage)}
	s.hub = store.NewHub(s.Read)
	return s
}

func (s *Store) Read(_ context.Context, path string) (store.Snapshot, error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Snapshot{Path: path, Value: store.Assemble(path, s.leaves)}, nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	m, err := store.PlanWrite(path, value)
	if err != nil {
		return err
	}
	s.apply(ctx, m)
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	m, err := store.PlanUpdate(path, fields)
	if err != nil {
		return err
	}
	s.apply(ctx, m)
	return nil
}

func (s *Store) AppendChild(ctx context.Context, path string, value any) (string, error) {
	id, err := store.NewPushID()
	if err != nil {
		return "", err
	}
	if err := s.Write(ctx, store.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	m, err := store.PlanRemove(path)
	if err != nil {
		return err
	}
	s.apply(ctx, m)
	return nil
}

func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return 0, err
	}
	if path == "" {
		return 0, fmt.Errorf("%w: counter at root", store.ErrInvalidPath)
	}

	s.mu.Lock()
	var current int64
	if raw, ok := s.leaves[path]; ok {
		if err := json.Unmarshal(raw, &current); err != nil {
			s.mu.Unlock()
			return 0, fmt.Errorf("%w: %s", store.ErrNotCounter, path)
		}
	}
	for leaf := range s.leaves {
		if leaf != path && store.Under(leaf, path) {
			delete(s.leaves, leaf)
		}
	}
	for _, ancestor := range store.Ancestors(path) {
		delete(s.leaves, ancestor)
	}
	current += delta
	s.leaves[path] = json.RawMessage(strconv.FormatInt(current, 10))
	s.mu.Unlock()

	s.hub.Notify(context.WithoutCancel(ctx), path)
	return current, nil
}

// Close ends all subscriptions.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) apply(ctx context.Context, m store.Mutation) {
	s.mu.Lock()
	m.Apply(s.leaves)
	s.mu.Unlock()
	s.hub.Notify(context.WithoutCancel(ctx), m.Changed)
}
