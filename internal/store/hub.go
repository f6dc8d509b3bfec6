package store

import (
	"context"
	"sync"
)

// ReadFunc loads the current snapshot of a path for fan-out.
type ReadFunc func(ctx context.Context, path string) (Snapshot, error)

// Hub fans change notifications out to path subscribers. Backends call Notify after
// every mutation with the changed path; the hub re-reads each overlapping subscribed
// path once and delivers the result.
type Hub struct {
	read ReadFunc

	// notifyMu serializes read+deliver so a subscriber never sees an older value
	// after a newer one.
	notifyMu sync.Mutex
	mu       sync.Mutex
	subs     map[*subscription]struct{}
}

type subscription struct {
	path string
	ch   chan Snapshot
	done chan struct{}
	once sync.Once
}

func NewHub(read ReadFunc) *Hub {
	return &Hub{read: read, subs: make(map[*subscription]struct{})}
}

// Subscribe registers path and delivers its current value. The subscription ends
// when cancel is called or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	sub := &subscription{
		path: path,
		ch:   make(chan Snapshot, 8),
		done: make(chan struct{}),
	}

	h.notifyMu.Lock()
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	snap, err := h.read(ctx, path)
	if err != nil {
		h.notifyMu.Unlock()
		h.remove(sub)
		return nil, nil, err
	}
	h.deliver(path, snap)
	h.notifyMu.Unlock()

	cancel := func() { h.remove(sub) }
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

// Notify re-reads every subscribed path that overlaps changed and delivers it.
func (h *Hub) Notify(ctx context.Context, changed string) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	for _, path := range h.interested(changed) {
		snap, err := h.read(ctx, path)
		if err != nil {
			continue
		}
		h.deliver(path, snap)
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		h.remove(sub)
	}
}

func (h *Hub) interested(changed string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	var paths []string
	for sub := range h.subs {
		if _, ok := seen[sub.path]; ok || !Overlaps(sub.path, changed) {
			continue
		}
		seen[sub.path] = struct{}{}
		paths = append(paths, sub.path)
	}
	return paths
}

func (h *Hub) deliver(path string, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.path != path {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			// Drop the oldest pending value; the newest one always gets through.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	sub.once.Do(func() { close(sub.done) })
}
