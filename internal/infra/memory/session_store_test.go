package memory

import (
	"context"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func newSession(t *testing.T, userID string) *app.Session {
	t.Helper()
	s := NewStore()
	t.Cleanup(func() { _ = s.Close() })
	err := s.Write(context.Background(), "quizzes/Math/q1", domain.Question{
		Text:          "What is 2 + 2?",
		Options:       domain.Options{"A": "3", "B": "4"},
		CorrectAnswer: "4",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	engine := app.NewEngine(app.NewCatalog(s, time.Minute), app.NewAttempts(s), app.NewPoints(s))
	session, err := engine.Start(context.Background(), userID, "Math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return session
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	session := newSession(t, "u1")

	store.Put("s1", session)
	if got, ok := store.Get("s1"); !ok || got != session {
		t.Fatalf("expected session present")
	}
	if store.Len() != 1 || len(store.All()) != 1 {
		t.Fatalf("expected one live session, got %d", store.Len())
	}

	store.Delete("s1")
	if _, ok := store.Get("s1"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestDrainSessionsExitsEverySession(t *testing.T) {
	store := NewSessionStore()
	first, second := newSession(t, "u1"), newSession(t, "u2")
	store.Put("a", first)
	store.Put("b", second)

	if _, err := second.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := second.Answer("B"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	app.DrainSessions(store)
	for _, s := range []*app.Session{first, second} {
		if state := s.Snapshot().State; state != app.StateExited {
			t.Fatalf("expected exited, got %s", state)
		}
	}
}
