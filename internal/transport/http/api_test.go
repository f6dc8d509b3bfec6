package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

func do(t *testing.T, f *fixture, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCategoriesSearch(t *testing.T) {
	f := newFixture(t)

	resp := do(t, f, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[categoriesResponse](t, resp)
	assert.Equal(t, "ok", all.State)
	assert.Len(t, all.Categories, 2)

	resp = do(t, f, http.MethodGet, "/api/categories?q=mus", nil)
	found := decode[categoriesResponse](t, resp)
	require.Len(t, found.Categories, 1)
	assert.Equal(t, "Music", found.Categories[0].Name)

	resp = do(t, f, http.MethodGet, "/api/categories?q=zzz", nil)
	none := decode[categoriesResponse](t, resp)
	assert.Equal(t, "empty", none.State)
	assert.NotNil(t, none.Categories)
}

func TestProfileRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp := do(t, f, http.MethodPut, "/api/users/u1/profile", domain.Profile{FullName: "Ada"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, f, http.MethodGet, "/api/users/u1/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ada", decode[domain.Profile](t, resp).FullName)
}

func TestNamesMustBeSingleSegments(t *testing.T) {
	f := newFixture(t)
	draft := app.QuestionDraft{Question: "1 + 1?", Options: domain.Options{"A": "2", "B": "3"}, CorrectAnswer: "2"}

	resp := do(t, f, http.MethodPost, "/api/users/u1/quizzes/Sci.ence", draft)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid", decode[errorPayload](t, resp).Code)

	resp = do(t, f, http.MethodPut, "/api/users/u.1/profile", domain.Profile{FullName: "Ada"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthoringEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := do(t, f, http.MethodPost, "/api/users/u1/quizzes/Math", app.QuestionDraft{
		Question:      "What is 3 * 3?",
		Options:       domain.Options{"A": "6", "B": "9"},
		CorrectAnswer: "9",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.Question](t, resp)
	require.NotEmpty(t, created.ID)

	resp = do(t, f, http.MethodGet, "/api/users/u1/quizzes/Math", nil)
	assert.Equal(t, []domain.Question{created}, decode[[]domain.Question](t, resp))

	text := "What is 3 x 3?"
	resp = do(t, f, http.MethodPatch, "/api/users/u1/quizzes/Math/"+created.ID, app.QuestionPatch{Question: &text})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, text, decode[domain.Question](t, resp).Text)

	resp = do(t, f, http.MethodPost, "/api/users/u1/quizzes/Math", app.QuestionDraft{Question: "?", Options: domain.Options{"A": "x"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, f, http.MethodDelete, "/api/users/u1/quizzes/Math/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, f, http.MethodDelete, "/api/users/u1/quizzes/Math/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[errorPayload](t, resp).Code)
}

func TestAttemptsAndLeaderboardEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, app.NewAttempts(f.store).Record(ctx, domain.AttemptRecord{
		UserID: "u1", Category: "Math", Question: "What is 2 + 2?", SelectedAnswer: "4", Answer: "4",
	}))
	_, err := f.points.Increment(ctx, "u1")
	require.NoError(t, err)

	resp := do(t, f, http.MethodGet, "/api/users/u1/attempts", nil)
	attempts := decode[attemptsResponse](t, resp)
	assert.Equal(t, "ok", attempts.State)
	require.Len(t, attempts.Attempts, 1)
	assert.Equal(t, "Math", attempts.Attempts[0].Category)

	resp = do(t, f, http.MethodGet, "/api/users/u2/attempts", nil)
	assert.Equal(t, "empty", decode[attemptsResponse](t, resp).State)

	require.Eventually(t, func() bool {
		resp := do(t, f, http.MethodGet, "/api/leaderboard?userId=u1", nil)
		standing := decode[domain.Standing](t, resp)
		return standing.Rank == 1 && len(standing.Rows) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionSnapshotEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := do(t, f, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := f.dial(t, "/ws/session?userId=u1&category=Math")
	readNext(conn, t, "loading")
	id := readNext(conn, t, "session").Payload["id"].(string)

	resp = do(t, f, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[map[string]any](t, resp)
	assert.Equal(t, "intro", snap["state"])
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrAuthRequired, http.StatusUnauthorized, "auth_required"},
		{fmt.Errorf("wrapped: %w", domain.ErrQuizNotFound), http.StatusNotFound, "not_found"},
		{domain.ErrOptionNotFound, http.StatusBadRequest, "invalid"},
		{fmt.Errorf("%w: %w", domain.ErrInvalidName, store.ErrInvalidPath), http.StatusBadRequest, "invalid"},
		{fmt.Errorf("save: %w: %w", domain.ErrWrite, store.ErrInvalidPath), http.StatusBadRequest, "invalid"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_action"},
		{fmt.Errorf("x: %w: %w", domain.ErrFetch, errors.New("down")), http.StatusBadGateway, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}

	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), domain.ErrAuthRequired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"state":"error","code":"auth_required"}`, rec.Body.String())
}
