package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapReader struct {
	mu     sync.Mutex
	leaves map[string]json.RawMessage
	fail   bool
}

func (r *mapReader) read(_ context.Context, path string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return Snapshot{}, errors.New("read failed")
	}
	return Snapshot{Path: path, Value: Assemble(path, r.leaves)}, nil
}

func (r *mapReader) set(path, raw string) {
	r.mu.Lock()
	r.leaves[path] = json.RawMessage(raw)
	r.mu.Unlock()
}

func TestHubDeliversInitialAndOverlappingChanges(t *testing.T) {
	r := &mapReader{leaves: map[string]json.RawMessage{"p/u1": json.RawMessage(`1`)}}
	h := NewHub(r.read)

	ch, cancel, err := h.Subscribe(context.Background(), "p")
	require.NoError(t, err)
	defer cancel()
	assert.JSONEq(t, `{"u1":1}`, string((<-ch).Value))

	r.set("p/u1", `2`)
	h.Notify(context.Background(), "p/u1")
	assert.JSONEq(t, `{"u1":2}`, string((<-ch).Value))

	h.Notify(context.Background(), "other")
	select {
	case snap := <-ch:
		t.Fatalf("unexpected delivery %s", snap.Value)
	default:
	}
}

func TestHubKeepsNewestForSlowSubscriber(t *testing.T) {
	r := &mapReader{leaves: map[string]json.RawMessage{}}
	h := NewHub(r.read)
	ch, cancel, err := h.Subscribe(context.Background(), "n")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 50; i++ {
		r.set("n", string(rune('0'+i%10)))
		h.Notify(context.Background(), "n")
	}
	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, "9", string(last.Value))
}

func TestHubSubscribeReadFailure(t *testing.T) {
	r := &mapReader{leaves: map[string]json.RawMessage{}, fail: true}
	h := NewHub(r.read)
	_, _, err := h.Subscribe(context.Background(), "x")
	assert.Error(t, err)
	assert.Zero(t, h.Len())
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	r := &mapReader{leaves: map[string]json.RawMessage{}}
	h := NewHub(r.read)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	ch, cancel, err := h.Subscribe(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())
	<-ch

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())
	cancel()
}

func TestHubContextCancelUnsubscribes(t *testing.T) {
	r := &mapReader{leaves: map[string]json.RawMessage{}}
	h := NewHub(r.read)
	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := h.Subscribe(ctx, "x")
	require.NoError(t, err)
	cancel()
	require.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
}
