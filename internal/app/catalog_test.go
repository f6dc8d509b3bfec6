package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

func TestCatalogLoadsQuestionsInKeyOrderAndCaches(t *testing.T) {
	s := &recordingStore{Store: newSeededStore(t)}
	catalog := app.NewCatalog(s, time.Minute)

	questions, err := catalog.LoadQuestions(context.Background(), "Science")
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, []string{"q1", "q2", "q3"}, []string{questions[0].ID, questions[1].ID, questions[2].ID})

	_, err = catalog.LoadQuestions(context.Background(), "Science")
	require.NoError(t, err)
	reads, _, _ := s.counts()
	assert.Equal(t, 1, reads)

	catalog.Invalidate("Science")
	_, err = catalog.LoadQuestions(context.Background(), "Science")
	require.NoError(t, err)
	reads, _, _ = s.counts()
	assert.Equal(t, 2, reads)
}

func TestCatalogConcurrentMissesShareOneRead(t *testing.T) {
	s := &recordingStore{Store: newSeededStore(t)}
	catalog := app.NewCatalog(s, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := catalog.LoadCategories(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Late arrivals may miss the in-flight call but then hit the cache.
	reads, _, _ := s.counts()
	assert.Equal(t, 1, reads)
}

func TestCatalogFillsMissingIDsFromKeys(t *testing.T) {
	s := newSeededStore(t)
	require.NoError(t, s.Write(context.Background(), "quizzes/History", []map[string]any{
		{"question": "First emperor of Rome?", "options": []string{"Augustus", "Nero"}, "correct_answer": "Augustus"},
	}))
	catalog := app.NewCatalog(s, time.Minute)

	questions, err := catalog.LoadQuestions(context.Background(), "History")
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "0", questions[0].ID)
	assert.Equal(t, "A", questions[0].CorrectLabel())
}

func TestCatalogFailureReturnsEmptyList(t *testing.T) {
	s := &recordingStore{Store: newSeededStore(t), failReadsUnder: "quizzes"}
	catalog := app.NewCatalog(s, time.Minute)

	categories, err := catalog.LoadCategories(context.Background())
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.NotNil(t, categories)
	assert.Empty(t, categories)

	questions, err := catalog.LoadQuestions(context.Background(), "Science")
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}

func TestSearchCategories(t *testing.T) {
	catalog := app.NewCatalog(newSeededStore(t), time.Minute)

	all, err := catalog.SearchCategories(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := catalog.SearchCategories(context.Background(), "SCIENCE")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Science", found[0].Name)
	assert.Equal(t, "Computer Science", found[1].Name)

	none, err := catalog.SearchCategories(context.Background(), "art")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCatalogSkipsUnanswerableQuestions(t *testing.T) {
	s := newSeededStore(t)
	require.NoError(t, s.Write(context.Background(), "quizzes/Science/Tech/q001", domain.Question{
		Text: "Bits in a byte?", Options: domain.Options{"A": "8", "B": "16"}, CorrectAnswer: "8",
	}))
	catalog := app.NewCatalog(s, time.Minute)

	questions, err := catalog.LoadQuestions(context.Background(), "Science")
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for _, q := range questions {
		assert.NotEqual(t, "Tech", q.ID)
		assert.NoError(t, q.Validate())
	}

	_, err = catalog.LoadQuestions(context.Background(), "Science/Tech")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

// gatedStore blocks question reads until release is closed or the read's own
// context ends.
type gatedStore struct {
	store.Store
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *gatedStore) Read(ctx context.Context, path string) (store.Snapshot, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return store.Snapshot{}, ctx.Err()
	}
	return g.Store.Read(ctx, path)
}

func TestCatalogSharedLoadOutlivesCancelledCaller(t *testing.T) {
	g := &gatedStore{Store: newSeededStore(t), entered: make(chan struct{}), release: make(chan struct{})}
	catalog := app.NewCatalog(g, time.Minute)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := catalog.LoadQuestions(ctxA, "Science")
		errA <- err
	}()
	<-g.entered

	type result struct {
		questions []domain.Question
		err       error
	}
	resB := make(chan result, 1)
	go func() {
		q, err := catalog.LoadQuestions(context.Background(), "Science")
		resB <- result{q, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()
	time.Sleep(20 * time.Millisecond)
	close(g.release)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Len(t, r.questions, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	<-errA
}
