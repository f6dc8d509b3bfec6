package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

var errAuth = domain.ErrAuthRequired

// API serves the JSON surface next to the websocket streams.
type API struct {
	catalog     *app.Catalog
	attempts    *app.Attempts
	profiles    *app.Profiles
	authoring   *app.Authoring
	leaderboard *app.Leaderboard
	sessions    app.SessionRepository
	log         *zap.Logger
}

type APIDeps struct {
	Catalog     *app.Catalog
	Attempts    *app.Attempts
	Profiles    *app.Profiles
	Authoring   *app.Authoring
	Leaderboard *app.Leaderboard
	Sessions    app.SessionRepository
	Log         *zap.Logger
}

func NewAPI(deps APIDeps) *API {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		catalog:     deps.Catalog,
		attempts:    deps.Attempts,
		profiles:    deps.Profiles,
		authoring:   deps.Authoring,
		leaderboard: deps.Leaderboard,
		sessions:    deps.Sessions,
		log:         log,
	}
}

// NewRouter wires the API, the websocket handlers and the operational endpoints.
func NewRouter(api *API, ws *WSHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	mux.HandleFunc("GET /api/categories", api.listCategories)
	mux.HandleFunc("GET /api/leaderboard", api.getLeaderboard)
	mux.HandleFunc("GET /api/sessions/{id}", api.getSession)
	mux.HandleFunc("GET /api/users/{uid}/attempts", api.listAttempts)
	mux.HandleFunc("GET /api/users/{uid}/profile", api.getProfile)
	mux.HandleFunc("PUT /api/users/{uid}/profile", api.putProfile)
	mux.HandleFunc("GET /api/users/{uid}/quizzes/{category}", api.listAuthored)
	mux.HandleFunc("POST /api/users/{uid}/quizzes/{category}", api.createAuthored)
	mux.HandleFunc("PATCH /api/users/{uid}/quizzes/{category}/{id}", api.updateAuthored)
	mux.HandleFunc("DELETE /api/users/{uid}/quizzes/{category}/{id}", api.deleteAuthored)

	if ws != nil {
		mux.HandleFunc("GET /ws/session", ws.ServeSession)
		mux.HandleFunc("GET /ws/leaderboard", ws.ServeLeaderboard)
	}
	return mux
}

type categoriesResponse struct {
	State      string            `json:"state"`
	Categories []domain.Category `json:"categories"`
}

// listCategories always answers with a list; failures and empty matches are states.
func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.catalog.SearchCategories(r.Context(), r.URL.Query().Get("q"))
	resp := categoriesResponse{State: "ok", Categories: categories}
	switch {
	case err != nil:
		a.log.Warn("categories unavailable", zap.Error(err))
		resp.State = "error"
	case len(categories) == 0:
		resp.State = "empty"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.leaderboard.Standing(r.URL.Query().Get("userId")))
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := a.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, a.log, domain.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

type attemptsResponse struct {
	State    string                  `json:"state"`
	Attempts []domain.AttemptHistory `json:"attempts"`
}

func (a *API) listAttempts(w http.ResponseWriter, r *http.Request) {
	histories, err := a.attempts.LoadAll(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	resp := attemptsResponse{State: "ok", Attempts: histories}
	if len(histories) == 0 {
		resp.State = "empty"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	name, err := a.profiles.FullName(r.Context(), r.PathValue("uid"))
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Profile{FullName: name})
}

func (a *API) putProfile(w http.ResponseWriter, r *http.Request) {
	var profile domain.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := a.profiles.SetFullName(r.Context(), r.PathValue("uid"), profile.FullName); err != nil {
		writeError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAuthored(w http.ResponseWriter, r *http.Request) {
	questions, err := a.authoring.List(r.Context(), r.PathValue("uid"), r.PathValue("category"))
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) createAuthored(w http.ResponseWriter, r *http.Request) {
	var draft app.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	q, err := a.authoring.Create(r.Context(), r.PathValue("uid"), r.PathValue("category"), draft)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (a *API) updateAuthored(w http.ResponseWriter, r *http.Request) {
	var patch app.QuestionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	q, err := a.authoring.Update(r.Context(), r.PathValue("uid"), r.PathValue("category"), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) deleteAuthored(w http.ResponseWriter, r *http.Request) {
	if err := a.authoring.Delete(r.Context(), r.PathValue("uid"), r.PathValue("category"), r.PathValue("id")); err != nil {
		writeError(w, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// classify maps domain errors to a status and a detail-free code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidQuestion), errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrInvalidName), errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_action"
	case errors.Is(err, domain.ErrFetch), errors.Is(err, domain.ErrWrite):
		return http.StatusBadGateway, "unavailable"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorPayload{State: "error", Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
