package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
)

// DefaultQuestionSeconds is the countdown of each question.
const DefaultQuestionSeconds = 60

// QuestionSource supplies the questions of a category.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, category string) ([]domain.Question, error)
}

// AttemptStore loads attempt history and records new attempts.
type AttemptStore interface {
	Load(ctx context.Context, userID, category string) (*domain.AttemptHistory, error)
	Record(ctx context.Context, rec domain.AttemptRecord) error
}

// PointAwarder credits one point per answered question.
type PointAwarder interface {
	Increment(ctx context.Context, userID string) (int64, error)
}

// Engine creates quiz sessions.
type Engine struct {
	questions QuestionSource
	attempts  AttemptStore
	points    PointAwarder
	seconds   int
	newTicker TickerFunc
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type Option func(*Engine)

func WithQuestionSeconds(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.seconds = seconds
		}
	}
}

// WithTicker replaces the wall-clock countdown ticker.
func WithTicker(fn TickerFunc) Option {
	return func(e *Engine) { e.newTicker = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(questions QuestionSource, attempts AttemptStore, points PointAwarder, opts ...Option) *Engine {
	e := &Engine{
		questions: questions,
		attempts:  attempts,
		points:    points,
		seconds:   DefaultQuestionSeconds,
		newTicker: NewWallTicker,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start prepares a session for userID in category. It fails with
// domain.ErrAuthRequired before fetching anything when userID is empty. The
// catalog and the attempt history load concurrently; a failed history load is
// treated as no history. A session with nothing left to answer is returned in
// StateNoContent, otherwise in StateIntro.
func (e *Engine) Start(ctx context.Context, userID, category string) (*Session, error) {
	if userID == "" {
		e.metrics.SessionStarted("auth_required")
		return nil, domain.ErrAuthRequired
	}
	if err := checkNames(userID, category); err != nil {
		e.metrics.SessionStarted("invalid")
		return nil, err
	}

	var (
		all     []domain.Question
		history *domain.AttemptHistory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		questions, err := e.questions.LoadQuestions(gctx, category)
		if err != nil {
			return err
		}
		all = questions
		return nil
	})
	g.Go(func() error {
		h, err := e.attempts.Load(gctx, userID, category)
		if err != nil {
			e.log.Warn("attempt history unavailable, serving all questions",
				zap.String("user", userID), zap.String("category", category), zap.Error(err))
			return nil
		}
		history = h
		return nil
	})
	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.metrics.SessionStarted("cancelled")
		return nil, ctxErr
	}
	if err != nil {
		e.metrics.SessionStarted("error")
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return nil, err
	}

	questions := FilterUnattempted(all, history)
	s := &Session{
		userID:    userID,
		category:  category,
		questions: questions,
		seconds:   e.seconds,
		newTicker: e.newTicker,
		attempts:  e.attempts,
		points:    e.points,
		log:       e.log,
		metrics:   e.metrics,
		writeCtx:  context.WithoutCancel(ctx),
		state:     StateIntro,
		subs:      make(map[chan SessionSnapshot]struct{}),
	}
	if len(questions) == 0 {
		s.state = StateNoContent
		e.metrics.SessionStarted("no_content")
	} else {
		e.metrics.SessionStarted("ok")
	}
	e.log.Debug("session prepared",
		zap.String("user", userID), zap.String("category", category),
		zap.Int("questions", len(all)), zap.Int("unattempted", len(questions)))
	return s, nil
}
