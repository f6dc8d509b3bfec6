package app

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// Attempts reads and appends attempt records under userQuizzes/{uid}/{category}.
type Attempts struct {
	store store.Store
}

func NewAttempts(s store.Store) *Attempts {
	return &Attempts{store: s}
}

// Load returns what userID has answered in category.
func (a *Attempts) Load(ctx context.Context, userID, category string) (*domain.AttemptHistory, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if err := checkNames(category); err != nil {
		return nil, err
	}
	snap, err := a.store.Read(ctx, attemptsPath(userID, category))
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w: %w", domain.ErrFetch, err)
	}
	history, err := decodeHistory(userID, category, snap)
	if err != nil {
		return nil, fmt.Errorf("decode attempts: %w: %w", domain.ErrFetch, err)
	}
	return history, nil
}

// LoadAll returns the history of every category userID has played, ordered by category.
func (a *Attempts) LoadAll(ctx context.Context, userID string) ([]domain.AttemptHistory, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	snap, err := a.store.Read(ctx, attemptsPath(userID))
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w: %w", domain.ErrFetch, err)
	}
	categories, err := decodeChildren[json.RawMessage](snap)
	if err != nil {
		return nil, fmt.Errorf("decode attempts: %w: %w", domain.ErrFetch, err)
	}
	out := make([]domain.AttemptHistory, 0, len(categories))
	for _, ch := range categories {
		history, err := decodeHistory(userID, ch.Key, store.Snapshot{Value: ch.Value})
		if err != nil {
			return nil, fmt.Errorf("decode attempts for %q: %w: %w", ch.Key, domain.ErrFetch, err)
		}
		out = append(out, *history)
	}
	return out, nil
}

// Record appends one attempt record under a generated key.
func (a *Attempts) Record(ctx context.Context, rec domain.AttemptRecord) error {
	if err := checkUser(rec.UserID); err != nil {
		return err
	}
	if err := checkNames(rec.Category); err != nil {
		return err
	}
	if _, err := a.store.AppendChild(ctx, attemptsPath(rec.UserID, rec.Category), rec); err != nil {
		return fmt.Errorf("record attempt: %w: %w", domain.ErrWrite, err)
	}
	return nil
}

func decodeHistory(userID, category string, snap store.Snapshot) (*domain.AttemptHistory, error) {
	children, err := decodeChildren[domain.AttemptRecord](snap)
	if err != nil {
		return nil, err
	}
	history := &domain.AttemptHistory{UserID: userID, Category: category}
	for _, ch := range children {
		history.Records = append(history.Records, ch.Value)
	}
	return history, nil
}

// FilterUnattempted returns the questions of all whose text was not answered in
// history, preserving order. A nil history means it has not loaded, and all is
// returned unchanged.
func FilterUnattempted(all []domain.Question, history *domain.AttemptHistory) []domain.Question {
	if history == nil {
		return all
	}
	seen := make(map[string]struct{}, len(history.Records))
	for _, rec := range history.Records {
		if rec.UserID != "" && rec.UserID != history.UserID {
			continue
		}
		if rec.Category != "" && rec.Category != history.Category {
			continue
		}
		seen[rec.Question] = struct{}{}
	}
	out := make([]domain.Question, 0, len(all))
	for _, q := range all {
		if _, ok := seen[q.Text]; ok {
			continue
		}
		out = append(out, q)
	}
	return out
}
