package app

import (
	"context"
	"fmt"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// Fixture is an importable catalog: category metadata plus the questions of each
// category keyed by category name.
type Fixture struct {
	Categories []domain.Category             `json:"categories"`
	Questions  map[string][]domain.Question `json:"questions"`
}

// ImportFixture replaces the category list and the question set of every category
// named in f. Questions without an id get q001, q002... so key order matches file
// order. Nothing is written if any question is invalid.
func ImportFixture(ctx context.Context, s store.Store, f Fixture) error {
	sets := make(map[string]map[string]domain.Question, len(f.Questions))
	for category, questions := range f.Questions {
		if err := checkNames(category); err != nil {
			return fmt.Errorf("category %q: %w", category, err)
		}
		set := make(map[string]domain.Question, len(questions))
		for i, q := range questions {
			if err := q.Validate(); err != nil {
				return fmt.Errorf("%s #%d: %w", category, i+1, err)
			}
			if q.ID == "" {
				q.ID = fmt.Sprintf("q%03d", i+1)
			}
			if err := checkNames(q.ID); err != nil {
				return fmt.Errorf("%s #%d: %w", category, i+1, err)
			}
			if _, dup := set[q.ID]; dup {
				return fmt.Errorf("%w: duplicate id %q in %s", domain.ErrInvalidQuestion, q.ID, category)
			}
			set[q.ID] = q
		}
		sets[category] = set
	}

	categories := make([]domain.Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		if err := checkNames(c.Name); err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
		if set, ok := sets[c.Name]; ok {
			c.QuestionsCount = len(set)
		}
		categories = append(categories, c)
	}
	if err := s.Write(ctx, categoriesPath, categories); err != nil {
		return fmt.Errorf("write categories: %w: %w", domain.ErrWrite, err)
	}
	for _, category := range store.SortedKeys(sets) {
		if err := s.Write(ctx, questionsPath(category), sets[category]); err != nil {
			return fmt.Errorf("write questions for %q: %w: %w", category, domain.ErrWrite, err)
		}
	}
	return nil
}
