// Package storetest is the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/store"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ReadMissing", testReadMissing},
		{"WriteAndRead", testWriteAndRead},
		{"ArraysRoundTrip", testArraysRoundTrip},
		{"WriteReplacesSubtree", testWriteReplacesSubtree},
		{"WriteThroughScalar", testWriteThroughScalar},
		{"UpdateMerges", testUpdateMerges},
		{"AppendChildOrdered", testAppendChildOrdered},
		{"Remove", testRemove},
		{"Increment", testIncrement},
		{"IncrementConcurrent", testIncrementConcurrent},
		{"InvalidPaths", testInvalidPaths},
		{"SubscribeSeesOverlappingWrites", testSubscribeOverlapping},
		{"SubscribeCancel", testSubscribeCancel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func read(t *testing.T, s store.Store, path string) string {
	t.Helper()
	snap, err := s.Read(context.Background(), path)
	require.NoError(t, err)
	if !snap.Exists() {
		return ""
	}
	return string(snap.Value)
}

func testReadMissing(t *testing.T, s store.Store) {
	snap, err := s.Read(context.Background(), "nothing/here")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	assert.Equal(t, "nothing/here", snap.Path)

	var v map[string]any
	require.NoError(t, snap.Decode(&v))
	assert.Nil(t, v)
}

func testWriteAndRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "/quizzes/Science/q1/", map[string]any{
		"question": "What is H2O?",
		"options":  map[string]string{"A": "Water", "B": "Salt"},
		"points":   2,
		"live":     true,
	}))

	assert.JSONEq(t, `{"question":"What is H2O?","options":{"A":"Water","B":"Salt"},"points":2,"live":true}`,
		read(t, s, "quizzes/Science/q1"))
	assert.JSONEq(t, `"Water"`, read(t, s, "quizzes/Science/q1/options/A"))
	assert.JSONEq(t, `{"Science":{"q1":{"question":"What is H2O?","options":{"A":"Water","B":"Salt"},"points":2,"live":true}}}`,
		read(t, s, "quizzes"))
}

func testArraysRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "quizzesCategories", []map[string]any{
		{"name": "Science", "image": "s.png"},
		{"name": "History", "image": "h.png"},
	}))
	assert.JSONEq(t, `[{"name":"Science","image":"s.png"},{"name":"History","image":"h.png"}]`,
		read(t, s, "quizzesCategories"))
	assert.JSONEq(t, `"History"`, read(t, s, "quizzesCategories/1/name"))
}

func testWriteReplacesSubtree(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "profile", map[string]any{"a": 1, "b": map[string]any{"c": 2}}))
	require.NoError(t, s.Write(ctx, "profile", map[string]any{"d": 3}))
	assert.JSONEq(t, `{"d":3}`, read(t, s, "profile"))

	require.NoError(t, s.Write(ctx, "profile", nil))
	assert.Empty(t, read(t, s, "profile"))
}

func testWriteThroughScalar(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "a/b", 1))
	require.NoError(t, s.Write(ctx, "a/b/c", 2))
	assert.JSONEq(t, `{"c":2}`, read(t, s, "a/b"))

	require.NoError(t, s.Write(ctx, "a", "flat"))
	assert.JSONEq(t, `"flat"`, read(t, s, "a"))
	assert.Empty(t, read(t, s, "a/b/c"))
}

func testUpdateMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "Userdata/u1", map[string]any{"fullName": "Ada", "email": "a@x", "tags": map[string]any{"x": 1}}))
	require.NoError(t, s.Update(ctx, "Userdata/u1", map[string]any{
		"fullName": "Ada Lovelace",
		"tags":     map[string]any{"y": 2},
		"email":    nil,
	}))
	assert.JSONEq(t, `{"fullName":"Ada Lovelace","tags":{"y":2}}`, read(t, s, "Userdata/u1"))

	require.NoError(t, s.Write(ctx, "scalar", 5))
	require.NoError(t, s.Update(ctx, "scalar", map[string]any{"now": "object"}))
	assert.JSONEq(t, `{"now":"object"}`, read(t, s, "scalar"))
}

func testAppendChildOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.AppendChild(ctx, "userQuizzes/u1/Science", map[string]any{"n": i})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var got map[string]struct {
		N int `json:"n"`
	}
	snap, err := s.Read(ctx, "userQuizzes/u1/Science")
	require.NoError(t, err)
	require.NoError(t, snap.Decode(&got))
	require.Len(t, got, 5)

	keys := store.SortedKeys(got)
	assert.Equal(t, ids, keys)
	for i, key := range keys {
		assert.Equal(t, i, got[key].N)
	}
}

func testRemove(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "quizzes/Science", map[string]any{"q1": map[string]any{"x": 1}, "q2": map[string]any{"x": 2}}))
	require.NoError(t, s.Write(ctx, "quizzes/ScienceFiction", map[string]any{"q1": map[string]any{"x": 3}}))
	require.NoError(t, s.Remove(ctx, "quizzes/Science/q1"))
	assert.JSONEq(t, `{"q2":{"x":2}}`, read(t, s, "quizzes/Science"))

	require.NoError(t, s.Remove(ctx, "quizzes/Science"))
	assert.Empty(t, read(t, s, "quizzes/Science"))
	assert.JSONEq(t, `{"q1":{"x":3}}`, read(t, s, "quizzes/ScienceFiction"))

	require.NoError(t, s.Remove(ctx, "never/existed"))
}

func testIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	total, err := s.Increment(ctx, "userPoints/u1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	total, err = s.Increment(ctx, "userPoints/u1", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.JSONEq(t, `{"u1":5}`, read(t, s, "userPoints"))

	require.NoError(t, s.Write(ctx, "userPoints/u2", "lots"))
	_, err = s.Increment(ctx, "userPoints/u2", 1)
	assert.ErrorIs(t, err, store.ErrNotCounter)
	assert.JSONEq(t, `"lots"`, read(t, s, "userPoints/u2"))

	_, err = s.Increment(ctx, "", 1)
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}

func testIncrementConcurrent(t *testing.T, s store.Store) {
	const workers, each = 10, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := s.Increment(context.Background(), "userPoints/busy", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.JSONEq(t, `100`, read(t, s, "userPoints/busy"))
}

func testInvalidPaths(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, path := range []string{"a//b", "a/b.c", "a/#", "a/$x", "a/[0]"} {
		assert.ErrorIs(t, s.Write(ctx, path, 1), store.ErrInvalidPath, path)
		_, err := s.Read(ctx, path)
		assert.ErrorIs(t, err, store.ErrInvalidPath, path)
	}
	assert.ErrorIs(t, s.Write(ctx, "ok", map[string]any{"bad.key": 1}), store.ErrInvalidPath)
	assert.ErrorIs(t, s.Write(ctx, "", 1), store.ErrInvalidPath)
}

func next(t *testing.T, ch <-chan store.Snapshot, match func(string) bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			require.True(t, ok, "subscription closed")
			if match(string(snap.Value)) {
				return
			}
		case <-deadline:
			t.Fatal("no matching snapshot")
		}
	}
}

func jsonEq(want string) func(string) bool {
	return func(got string) bool {
		var a, b any
		if json.Unmarshal([]byte(want), &a) != nil || json.Unmarshal([]byte(got), &b) != nil {
			return false
		}
		return assert.ObjectsAreEqual(a, b)
	}
}

func testSubscribeOverlapping(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "userPoints/u1", 1))

	parent, cancelParent, err := s.Subscribe(ctx, "userPoints")
	require.NoError(t, err)
	defer cancelParent()
	child, cancelChild, err := s.Subscribe(ctx, "userPoints/u2")
	require.NoError(t, err)
	defer cancelChild()

	next(t, parent, jsonEq(`{"u1":1}`))
	next(t, child, func(v string) bool { return v == "" || v == "null" })

	_, err = s.Increment(ctx, "userPoints/u2", 3)
	require.NoError(t, err)
	next(t, parent, jsonEq(`{"u1":1,"u2":3}`))
	next(t, child, jsonEq(`3`))

	require.NoError(t, s.Remove(ctx, "userPoints"))
	next(t, parent, func(v string) bool { return v == "" || v == "null" })
	next(t, child, func(v string) bool { return v == "" || v == "null" })
}

func testSubscribeCancel(t *testing.T, s store.Store) {
	ch, cancel, err := s.Subscribe(context.Background(), "Userdata")
	require.NoError(t, err)
	<-ch
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	ctx, stop := context.WithCancel(context.Background())
	ch, _, err = s.Subscribe(ctx, "Userdata")
	require.NoError(t, err)
	<-ch
	stop()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription not closed by context")
	}
}
