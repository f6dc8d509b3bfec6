package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
)

// State is the phase of one playthrough.
type State int

const (
	StateNotStarted State = iota
	StateNoContent
	StateIntro
	StateInProgress
	StateFeedback
	StateCompleted
	StateExited
)

var stateNames = [...]string{"not_started", "no_content", "intro", "in_progress", "feedback", "completed", "exited"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition except Exit is possible.
func (s State) Terminal() bool {
	return s == StateNoContent || s == StateCompleted || s == StateExited
}

// Ticker drives the per-question countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// NewWallTicker is the default TickerFunc.
func NewWallTicker(d time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

// PublicQuestion is a question without its answer.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"question"`
	Options domain.Options `json:"options"`
}

// SessionSnapshot is the client-visible view of a session. The selected and correct
// answers are only filled in Feedback.
type SessionSnapshot struct {
	State         State           `json:"state"`
	Category      string          `json:"category"`
	Index         int             `json:"index"`
	Total         int             `json:"total"`
	SecondsLeft   int             `json:"secondsLeft"`
	Answered      bool            `json:"answered"`
	Correct       *bool           `json:"correct,omitempty"`
	TimedOut      bool            `json:"timedOut,omitempty"`
	Selected      string          `json:"selected,omitempty"`
	CorrectAnswer string          `json:"correctAnswer,omitempty"`
	Question      *PublicQuestion `json:"question,omitempty"`
}

// Session is one playthrough of a filtered question list for one user and category.
// It is safe for concurrent use.
type Session struct {
	userID    string
	category  string
	questions []domain.Question
	seconds   int
	newTicker TickerFunc
	attempts  AttemptStore
	points    PointAwarder
	log       *zap.Logger
	metrics   *metrics.Metrics
	writeCtx  context.Context

	mu          sync.Mutex
	state       State
	index       int
	secondsLeft int
	answered    bool
	correct     *bool
	timedOut    bool
	selected    string
	gen         uint64
	timerStop   chan struct{}
	timerDone   chan struct{}
	subs        map[chan SessionSnapshot]struct{}

	writes sync.WaitGroup
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) Category() string { return s.category }

// Begin starts the first question.
func (s *Session) Begin() (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIntro {
		return s.snapshotLocked(), s.invalid("begin")
	}
	s.enterQuestionLocked(0)
	return s.broadcastLocked(), nil
}

// Answer evaluates the option with the given label, moves to Feedback and records
// the attempt and one point in the background.
func (s *Session) Answer(label string) (SessionSnapshot, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		defer s.mu.Unlock()
		return s.snapshotLocked(), s.invalid("answer")
	}
	q := s.questions[s.index]
	label = strings.ToUpper(strings.TrimSpace(label))
	text, ok := q.Options[label]
	if !ok {
		defer s.mu.Unlock()
		return s.snapshotLocked(), fmt.Errorf("%w: %q", domain.ErrOptionNotFound, label)
	}

	correct := text == q.CorrectAnswer
	s.state = StateFeedback
	s.answered = true
	s.correct = &correct
	s.selected = text
	stop, done := s.takeTimerLocked()

	options := make(domain.Options, len(q.Options))
	for k, v := range q.Options {
		options[k] = v
	}
	s.persistLocked(domain.AttemptRecord{
		UserID:         s.userID,
		Category:       s.category,
		Question:       q.Text,
		SelectedAnswer: text,
		Answer:         q.CorrectAnswer,
		Options:        options,
	})
	snap := s.broadcastLocked()
	s.mu.Unlock()

	waitTimer(stop, done)
	s.metrics.Answered(correct)
	return snap, nil
}

// Next advances past Feedback to the following question, or completes the session.
func (s *Session) Next() (SessionSnapshot, error) {
	s.mu.Lock()
	if s.state != StateFeedback {
		defer s.mu.Unlock()
		return s.snapshotLocked(), s.invalid("next")
	}
	stop, done := s.takeTimerLocked()
	if s.index+1 < len(s.questions) {
		s.enterQuestionLocked(s.index + 1)
	} else {
		s.state = StateCompleted
	}
	snap := s.broadcastLocked()
	if s.state.Terminal() {
		s.closeSubsLocked()
	}
	s.mu.Unlock()

	waitTimer(stop, done)
	return snap, nil
}

// Exit ends the session from any state. Persisted attempts and points stay.
func (s *Session) Exit() SessionSnapshot {
	s.mu.Lock()
	if s.state == StateExited {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	stop, done := s.takeTimerLocked()
	s.state = StateExited
	snap := s.broadcastLocked()
	s.closeSubsLocked()
	s.mu.Unlock()

	waitTimer(stop, done)
	return snap
}

// Close tears the session down. In-flight writes keep running; use Flush to wait.
func (s *Session) Close() error {
	s.Exit()
	return nil
}

// Flush waits for in-flight attempt and point writes.
func (s *Session) Flush() {
	s.writes.Wait()
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Updates streams a snapshot after every transition and countdown tick, starting
// with the current one. The channel closes when the session reaches a terminal state.
func (s *Session) Updates() (<-chan SessionSnapshot, func()) {
	ch := make(chan SessionSnapshot, 8)

	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.snapshotLocked()
	if s.state.Terminal() {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) enterQuestionLocked(index int) {
	s.state = StateInProgress
	s.index = index
	s.secondsLeft = s.seconds
	s.answered = false
	s.correct = nil
	s.timedOut = false
	s.selected = ""

	s.gen++
	gen := s.gen
	stop, done := make(chan struct{}), make(chan struct{})
	s.timerStop, s.timerDone = stop, done
	ticker := s.newTicker(time.Second)
	go s.runTimer(gen, ticker, stop, done)
}

func (s *Session) runTimer(gen uint64, ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !s.tick(gen) {
				return
			}
		}
	}
}

// tick counts down the question of generation gen and reports whether the timer
// should keep running.
func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	if gen != s.gen || s.state != StateInProgress {
		s.mu.Unlock()
		return false
	}
	s.secondsLeft--
	if s.secondsLeft > 0 {
		s.broadcastLocked()
		s.mu.Unlock()
		return true
	}

	// Time ran out: this is a non-answer, nothing is persisted.
	correct := false
	s.secondsLeft = 0
	s.state = StateFeedback
	s.correct = &correct
	s.timedOut = true
	s.broadcastLocked()
	s.mu.Unlock()

	s.metrics.TimedOut()
	return false
}

// takeTimerLocked detaches the running countdown. The caller stops it with
// waitTimer after releasing s.mu.
func (s *Session) takeTimerLocked() (chan struct{}, chan struct{}) {
	stop, done := s.timerStop, s.timerDone
	s.timerStop, s.timerDone = nil, nil
	return stop, done
}

func waitTimer(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Session) persistLocked(rec domain.AttemptRecord) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		fields := []zap.Field{
			zap.String("user", rec.UserID),
			zap.String("category", rec.Category),
			zap.String("question", rec.Question),
		}
		if err := s.attempts.Record(s.writeCtx, rec); err != nil {
			s.log.Warn("attempt not recorded", append(fields, zap.Error(err))...)
			s.metrics.WriteFailed("attempt")
		}
		if _, err := s.points.Increment(s.writeCtx, rec.UserID); err != nil {
			s.log.Warn("point not credited", append(fields, zap.Error(err))...)
			s.metrics.WriteFailed("points")
		}
	}()
}

func (s *Session) broadcastLocked() SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subs {
		offerLatest(ch, snap)
	}
	return snap
}

func (s *Session) closeSubsLocked() {
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		State:       s.state,
		Category:    s.category,
		Index:       s.index,
		Total:       len(s.questions),
		SecondsLeft: s.secondsLeft,
		Answered:    s.answered,
		TimedOut:    s.timedOut,
	}
	if s.state != StateInProgress && s.state != StateFeedback {
		return snap
	}
	q := s.questions[s.index]
	snap.Question = &PublicQuestion{ID: q.ID, Text: q.Text, Options: q.Options}
	if s.state == StateFeedback {
		if s.correct != nil {
			c := *s.correct
			snap.Correct = &c
		}
		snap.Selected = s.selected
		snap.CorrectAnswer = q.CorrectAnswer
	}
	return snap
}

func (s *Session) invalid(action string) error {
	return fmt.Errorf("%w: %s in %s", domain.ErrInvalidTransition, action, s.state)
}
