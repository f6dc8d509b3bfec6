package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// QuestionDraft is authored content before it is given an id.
type QuestionDraft struct {
	Question      string         `json:"question"`
	Options       domain.Options `json:"options"`
	CorrectAnswer string         `json:"correct_answer"`
}

// QuestionPatch holds the fields of an authored question to change; nil fields stay.
type QuestionPatch struct {
	Question      *string        `json:"question,omitempty"`
	Options       domain.Options `json:"options,omitempty"`
	CorrectAnswer *string        `json:"correct_answer,omitempty"`
}

// Authoring manages user-written questions. Each one is stored twice under the same
// id: in the author's collection and in the public category collection.
type Authoring struct {
	store   store.Store
	catalog *Catalog
	log     *zap.Logger
}

func NewAuthoring(s store.Store, catalog *Catalog, log *zap.Logger) *Authoring {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authoring{store: s, catalog: catalog, log: log}
}

func (a *Authoring) Create(ctx context.Context, userID, category string, draft QuestionDraft) (domain.Question, error) {
	if err := checkUser(userID); err != nil {
		return domain.Question{}, err
	}
	if err := checkNames(category); err != nil {
		return domain.Question{}, err
	}
	q := domain.Question{
		Text:          strings.TrimSpace(draft.Question),
		Options:       draft.Options,
		CorrectAnswer: draft.CorrectAnswer,
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	id, err := store.NewPushID()
	if err != nil {
		return domain.Question{}, err
	}
	q.ID = id

	if err := a.store.Write(ctx, authoredPath(userID, category, id), q); err != nil {
		return domain.Question{}, fmt.Errorf("save authored question: %w: %w", domain.ErrWrite, err)
	}
	if err := a.store.Write(ctx, store.Join(questionsPath(category), id), q); err != nil {
		return domain.Question{}, fmt.Errorf("publish authored question: %w: %w", domain.ErrWrite, err)
	}
	a.invalidate(category)
	a.log.Info("question authored", zap.String("user", userID), zap.String("category", category), zap.String("id", id))
	return q, nil
}

// List returns the questions userID wrote in category.
func (a *Authoring) List(ctx context.Context, userID, category string) ([]domain.Question, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if err := checkNames(category); err != nil {
		return nil, err
	}
	snap, err := a.store.Read(ctx, authoredPath(userID, category))
	if err != nil {
		return []domain.Question{}, fmt.Errorf("list authored questions: %w: %w", domain.ErrFetch, err)
	}
	children, err := decodeChildren[domain.Question](snap)
	if err != nil {
		return []domain.Question{}, fmt.Errorf("decode authored questions: %w: %w", domain.ErrFetch, err)
	}
	out := make([]domain.Question, 0, len(children))
	for _, ch := range children {
		q := ch.Value
		if q.ID == "" {
			q.ID = ch.Key
		}
		out = append(out, q)
	}
	return out, nil
}

// Update applies patch to both copies of the question. The result must still validate.
func (a *Authoring) Update(ctx context.Context, userID, category, id string, patch QuestionPatch) (domain.Question, error) {
	current, err := a.get(ctx, userID, category, id)
	if err != nil {
		return domain.Question{}, err
	}
	fields := map[string]any{}
	if patch.Question != nil {
		current.Text = strings.TrimSpace(*patch.Question)
		fields["question"] = current.Text
	}
	if patch.Options != nil {
		current.Options = patch.Options
		fields["options"] = patch.Options
	}
	if patch.CorrectAnswer != nil {
		current.CorrectAnswer = *patch.CorrectAnswer
		fields["correct_answer"] = current.CorrectAnswer
	}
	if err := current.Validate(); err != nil {
		return domain.Question{}, err
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := a.store.Update(ctx, authoredPath(userID, category, id), fields); err != nil {
		return domain.Question{}, fmt.Errorf("update authored question: %w: %w", domain.ErrWrite, err)
	}
	if err := a.store.Update(ctx, store.Join(questionsPath(category), id), fields); err != nil {
		return domain.Question{}, fmt.Errorf("update published question: %w: %w", domain.ErrWrite, err)
	}
	a.invalidate(category)
	return current, nil
}

// Delete removes the public copy first, then the author's.
func (a *Authoring) Delete(ctx context.Context, userID, category, id string) error {
	if _, err := a.get(ctx, userID, category, id); err != nil {
		return err
	}
	if err := a.store.Remove(ctx, store.Join(questionsPath(category), id)); err != nil {
		return fmt.Errorf("remove published question: %w: %w", domain.ErrWrite, err)
	}
	if err := a.store.Remove(ctx, authoredPath(userID, category, id)); err != nil {
		return fmt.Errorf("remove authored question: %w: %w", domain.ErrWrite, err)
	}
	a.invalidate(category)
	return nil
}

func (a *Authoring) get(ctx context.Context, userID, category, id string) (domain.Question, error) {
	if err := checkUser(userID); err != nil {
		return domain.Question{}, err
	}
	if id == "" {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	if err := checkNames(category, id); err != nil {
		return domain.Question{}, err
	}
	snap, err := a.store.Read(ctx, authoredPath(userID, category, id))
	if err != nil {
		return domain.Question{}, fmt.Errorf("load authored question: %w: %w", domain.ErrFetch, err)
	}
	if !snap.Exists() {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	var q domain.Question
	if err := snap.Decode(&q); err != nil {
		return domain.Question{}, fmt.Errorf("decode authored question: %w: %w", domain.ErrFetch, err)
	}
	if q.ID == "" {
		q.ID = id
	}
	return q, nil
}

func (a *Authoring) invalidate(category string) {
	if a.catalog != nil {
		a.catalog.Invalidate(category)
	}
}
