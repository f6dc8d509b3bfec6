package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func newPlayServices(t *testing.T) *services {
	t.Helper()
	st := memory.NewStore()
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, app.ImportFixture(context.Background(), st, app.Fixture{
		Categories: []domain.Category{{Name: "Science"}},
		Questions: map[string][]domain.Question{
			"Science": {
				{Text: "H2O is?", Options: domain.Options{"A": "Water", "B": "Salt"}, CorrectAnswer: "Water"},
				{Text: "Closest star?", Options: domain.Options{"A": "Sun", "B": "Vega"}, CorrectAnswer: "Sun"},
			},
		},
	}))
	return newServices(config.Default(), st, zap.NewNop(), nil)
}

func TestPlayWholeCategory(t *testing.T) {
	ctx := context.Background()
	svc := newPlayServices(t)

	var out bytes.Buffer
	in := strings.NewReader("\na\nZ\nB\n")
	require.NoError(t, Play(ctx, svc.engine, "u1", "Science", in, &out))

	text := out.String()
	assert.Contains(t, text, "Q1/2")
	assert.Contains(t, text, "A. Water")
	assert.Contains(t, text, "Correct!")
	assert.Contains(t, text, "Invalid input")
	assert.Contains(t, text, "Wrong. Correct answer was Sun")
	assert.Contains(t, text, "Final score: 1/2")

	history, err := svc.attempts.Load(ctx, "u1", "Science")
	require.NoError(t, err)
	assert.Len(t, history.Records, 2)
	points, err := svc.points.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), points["u1"])

	out.Reset()
	require.NoError(t, Play(ctx, svc.engine, "u1", "Science", strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "No new questions in Science.")
}

func TestPlayExitsOnClosedInput(t *testing.T) {
	ctx := context.Background()
	svc := newPlayServices(t)

	var out bytes.Buffer
	require.NoError(t, Play(ctx, svc.engine, "u2", "Science", strings.NewReader("\nA\n"), &out))
	assert.Contains(t, out.String(), "Exiting.")
	assert.NotContains(t, out.String(), "Final score")

	history, err := svc.attempts.Load(ctx, "u2", "Science")
	require.NoError(t, err)
	assert.Len(t, history.Records, 1)
}

func TestPlayRequiresUser(t *testing.T) {
	svc := newPlayServices(t)
	err := Play(context.Background(), svc.engine, "", "Science", strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}
