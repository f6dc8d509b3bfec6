package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/store"
)

var errBackend = errors.New("backend unavailable")

// recordingStore counts calls and fails the ones it is told to.
type recordingStore struct {
	store.Store

	mu         sync.Mutex
	reads      int
	appends    int
	increments int

	failReadsUnder string
	failWrites     bool
}

func (s *recordingStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	s.mu.Lock()
	s.reads++
	fail := s.failReadsUnder != "" && strings.HasPrefix(path, s.failReadsUnder)
	s.mu.Unlock()
	if fail {
		return store.Snapshot{}, errBackend
	}
	return s.Store.Read(ctx, path)
}

func (s *recordingStore) AppendChild(ctx context.Context, path string, value any) (string, error) {
	s.mu.Lock()
	s.appends++
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		return "", errBackend
	}
	return s.Store.AppendChild(ctx, path, value)
}

func (s *recordingStore) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	s.mu.Lock()
	s.increments++
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		return 0, errBackend
	}
	return s.Store.Increment(ctx, path, delta)
}

func (s *recordingStore) counts() (reads, appends, increments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.appends, s.increments
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("countdown did not consume tick")
	}
}

// fakeClock hands out manually driven tickers in creation order.
type fakeClock struct {
	tickers chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{tickers: make(chan *fakeTicker, 16)}
}

func (c *fakeClock) NewTicker(time.Duration) app.Ticker {
	tk := &fakeTicker{ch: make(chan time.Time)}
	c.tickers <- tk
	return tk
}

func (c *fakeClock) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-c.tickers:
		return tk
	case <-time.After(time.Second):
		t.Fatal("no countdown started")
		return nil
	}
}

func scienceQuestions() map[string]any {
	return map[string]any{
		"q1": domain.Question{
			ID:            "q1",
			Text:          "What is H2O?",
			Options:       domain.Options{"A": "Water", "B": "Salt", "C": "Sand"},
			CorrectAnswer: "Water",
		},
		"q2": domain.Question{
			ID:            "q2",
			Text:          "Which planet is red?",
			Options:       domain.Options{"A": "Venus", "B": "Mars"},
			CorrectAnswer: "Mars",
		},
		"q3": domain.Question{
			ID:            "q3",
			Text:          "What is the speed of light in km/s, roughly?",
			Options:       domain.Options{"A": "300000", "B": "3000", "C": "30", "D": "3"},
			CorrectAnswer: "300000",
		},
	}
}

func newSeededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "quizzesCategories", []domain.Category{
		{Name: "Science", Image: "science.png", QuestionsCount: 3},
		{Name: "History", Image: "history.png"},
		{Name: "Computer Science", Image: "cs.png"},
	}))
	require.NoError(t, s.Write(ctx, "quizzes/Science", scienceQuestions()))
	return s
}
