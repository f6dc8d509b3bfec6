package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

const categoriesKey = "\x00categories"

// Catalog is a read-through cache over the category list and the per-category
// question collections.
type Catalog struct {
	store store.Store
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     any
	expiresAt time.Time
}

func NewCatalog(s store.Store, ttl time.Duration) *Catalog {
	return &Catalog{
		store: s,
		ttl:   ttl,
		clock: time.Now,
		cache: make(map[string]cachedEntry),
	}
}

// LoadCategories returns every category. On failure it returns an empty list and
// an error wrapping domain.ErrFetch.
func (c *Catalog) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	v, err := c.get(ctx, categoriesKey, func(ctx context.Context) (any, error) {
		snap, err := c.store.Read(ctx, categoriesPath)
		if err != nil {
			return nil, err
		}
		children, err := decodeChildren[domain.Category](snap)
		if err != nil {
			return nil, err
		}
		categories := make([]domain.Category, 0, len(children))
		for _, ch := range children {
			if ch.Value.Name == "" {
				continue
			}
			categories = append(categories, ch.Value)
		}
		return categories, nil
	})
	if err != nil {
		return []domain.Category{}, fmt.Errorf("load categories: %w: %w", domain.ErrFetch, err)
	}
	return v.([]domain.Category), nil
}

// SearchCategories filters categories by a case-insensitive substring of the name.
func (c *Catalog) SearchCategories(ctx context.Context, text string) ([]domain.Category, error) {
	all, err := c.LoadCategories(ctx)
	if err != nil {
		return all, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return all, nil
	}
	out := make([]domain.Category, 0, len(all))
	for _, category := range all {
		if strings.Contains(strings.ToLower(category.Name), text) {
			out = append(out, category)
		}
	}
	return out, nil
}

// LoadQuestions returns the questions of a category in key order, which is
// insertion order for generated ids.
func (c *Catalog) LoadQuestions(ctx context.Context, category string) ([]domain.Question, error) {
	if err := checkNames(category); err != nil {
		return []domain.Question{}, err
	}
	v, err := c.get(ctx, category, func(ctx context.Context) (any, error) {
		snap, err := c.store.Read(ctx, questionsPath(category))
		if err != nil {
			return nil, err
		}
		children, err := decodeChildren[domain.Question](snap)
		if err != nil {
			return nil, err
		}
		questions := make([]domain.Question, 0, len(children))
		for _, ch := range children {
			q := ch.Value
			if q.ID == "" {
				q.ID = ch.Key
			}
			// a question nobody can answer is never served
			if q.Validate() != nil {
				continue
			}
			questions = append(questions, q)
		}
		return questions, nil
	})
	if err != nil {
		return []domain.Question{}, fmt.Errorf("load questions for %q: %w: %w", category, domain.ErrFetch, err)
	}
	return v.([]domain.Question), nil
}

// Invalidate drops the cached questions of a category.
func (c *Catalog) Invalidate(category string) {
	c.mu.Lock()
	delete(c.cache, category)
	c.mu.Unlock()
}

func (c *Catalog) get(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.value, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.sf.Do(key, func() (any, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[key]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.value, nil
		}
		c.mu.RUnlock()

		// the load is shared; one caller leaving must not fail the others
		value, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedEntry{value: value, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return value, nil
	})
	return v, err
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
