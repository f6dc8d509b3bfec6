package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func TestFilterUnattemptedNilHistoryFailsOpen(t *testing.T) {
	all := []domain.Question{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}
	assert.Equal(t, all, app.FilterUnattempted(all, nil))
}

func TestFilterUnattemptedIgnoresOtherUsersAndCategories(t *testing.T) {
	all := []domain.Question{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}, {ID: "3", Text: "c"}}
	history := &domain.AttemptHistory{
		UserID:   "u1",
		Category: "Science",
		Records: []domain.AttemptRecord{
			{UserID: "u2", Category: "Science", Question: "a"},
			{UserID: "u1", Category: "History", Question: "b"},
			{UserID: "u1", Category: "Science", Question: "c"},
		},
	}
	got := app.FilterUnattempted(all, history)
	assert.Equal(t, []domain.Question{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}, got)
}

func TestFilterUnattemptedIsOrderPreservingSubsequence(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := rnd.Intn(12)
		all := make([]domain.Question, n)
		for i := range all {
			all[i] = domain.Question{ID: fmt.Sprint(i), Text: fmt.Sprintf("q%d", rnd.Intn(8))}
		}
		history := &domain.AttemptHistory{UserID: "u", Category: "c"}
		for i := rnd.Intn(6); i > 0; i-- {
			history.Records = append(history.Records, domain.AttemptRecord{UserID: "u", Category: "c", Question: fmt.Sprintf("q%d", rnd.Intn(8))})
		}

		got := app.FilterUnattempted(all, history)

		attempted := map[string]bool{}
		for _, rec := range history.Records {
			attempted[rec.Question] = true
		}
		j := 0
		for _, q := range all {
			if attempted[q.Text] {
				continue
			}
			require.Less(t, j, len(got))
			require.Equal(t, q, got[j])
			j++
		}
		require.Equal(t, j, len(got))
		for _, q := range got {
			require.False(t, attempted[q.Text])
		}
	}
}

func TestAttemptsLoadAll(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	defer s.Close()
	attempts := app.NewAttempts(s)

	for _, rec := range []domain.AttemptRecord{
		{UserID: "u1", Category: "Science", Question: "x", SelectedAnswer: "1", Answer: "1"},
		{UserID: "u1", Category: "Science", Question: "y", SelectedAnswer: "2", Answer: "3"},
		{UserID: "u1", Category: "History", Question: "z", SelectedAnswer: "4", Answer: "4"},
		{UserID: "u2", Category: "History", Question: "z", SelectedAnswer: "4", Answer: "4"},
	} {
		require.NoError(t, attempts.Record(ctx, rec))
	}

	all, err := attempts.LoadAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "History", all[0].Category)
	assert.Len(t, all[0].Records, 1)
	assert.Equal(t, "Science", all[1].Category)
	require.Len(t, all[1].Records, 2)
	assert.Equal(t, "x", all[1].Records[0].Question)
	assert.Equal(t, "y", all[1].Records[1].Question)

	empty, err := attempts.LoadAll(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = attempts.LoadAll(ctx, "")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.ErrorIs(t, attempts.Record(ctx, domain.AttemptRecord{Category: "Science"}), domain.ErrAuthRequired)
}
