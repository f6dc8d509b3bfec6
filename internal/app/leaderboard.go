package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
)

// Leaderboard keeps the point map and the name directory subscribed between Start
// and Stop and pushes a fresh Standing to every watcher on each change.
type Leaderboard struct {
	points   *Points
	profiles *Profiles
	log      *zap.Logger
	clock    func() time.Time

	mu        sync.Mutex
	running   bool
	pointMap  map[string]int64
	names     map[string]string
	rows      []domain.LeaderboardRow
	updatedAt time.Time
	watchers  map[*watcher]struct{}
	cancels   []func()
	done      chan struct{}
}

type watcher struct {
	userID string
	ch     chan domain.Standing
}

func NewLeaderboard(points *Points, profiles *Profiles, log *zap.Logger) *Leaderboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Leaderboard{
		points:   points,
		profiles: profiles,
		log:      log,
		clock:    time.Now,
		pointMap: map[string]int64{},
		names:    map[string]string{},
		watchers: make(map[*watcher]struct{}),
	}
}

// Start subscribes to points and names and returns once both initial values are in.
func (l *Leaderboard) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("leaderboard already started")
	}
	l.running = true
	l.mu.Unlock()

	pointsCh, cancelPoints, err := l.points.Subscribe(ctx)
	if err != nil {
		l.setStopped()
		return err
	}
	namesCh, cancelNames, err := l.profiles.Subscribe(ctx)
	if err != nil {
		cancelPoints()
		l.setStopped()
		return err
	}

	var pointMap map[string]int64
	var names map[string]string
	select {
	case pointMap = <-pointsCh:
	case <-ctx.Done():
	}
	select {
	case names = <-namesCh:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		cancelPoints()
		cancelNames()
		l.setStopped()
		return err
	}

	done := make(chan struct{})
	l.mu.Lock()
	l.cancels = []func(){cancelPoints, cancelNames}
	l.done = done
	l.pointMap, l.names = pointMap, names
	l.recomputeLocked()
	l.mu.Unlock()

	go l.run(pointsCh, namesCh, done)
	return nil
}

func (l *Leaderboard) run(pointsCh <-chan map[string]int64, namesCh <-chan map[string]string, done chan struct{}) {
	defer close(done)
	for pointsCh != nil || namesCh != nil {
		select {
		case m, ok := <-pointsCh:
			if !ok {
				pointsCh = nil
				continue
			}
			l.mu.Lock()
			l.pointMap = m
			l.recomputeLocked()
			l.mu.Unlock()
		case n, ok := <-namesCh:
			if !ok {
				namesCh = nil
				continue
			}
			l.mu.Lock()
			l.names = n
			l.recomputeLocked()
			l.mu.Unlock()
		}
	}
	l.log.Debug("leaderboard feed ended")
}

// Stop unsubscribes, waits for the feed to drain and closes every watcher.
func (l *Leaderboard) Stop() {
	l.mu.Lock()
	cancels, done := l.cancels, l.done
	l.cancels, l.done = nil, nil
	l.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if done != nil {
		<-done
	}

	l.mu.Lock()
	for w := range l.watchers {
		delete(l.watchers, w)
		close(w.ch)
	}
	l.running = false
	l.mu.Unlock()
}

// Standing returns the current view for userID.
func (l *Leaderboard) Standing(userID string) domain.Standing {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.standingLocked(userID)
}

// Watch streams the view for userID, starting with the current one. Only the
// latest view is kept for slow readers. On a stopped leaderboard the channel
// holds the last view and is already closed.
func (l *Leaderboard) Watch(userID string) (<-chan domain.Standing, func()) {
	w := &watcher{userID: userID, ch: make(chan domain.Standing, 1)}

	l.mu.Lock()
	if !l.running {
		w.ch <- l.standingLocked(userID)
		close(w.ch)
		l.mu.Unlock()
		return w.ch, func() {}
	}
	l.watchers[w] = struct{}{}
	offerLatest(w.ch, l.standingLocked(userID))
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.watchers[w]; ok {
			delete(l.watchers, w)
			close(w.ch)
		}
	}
	return w.ch, cancel
}

func (l *Leaderboard) recomputeLocked() {
	l.rows = BuildLeaderboard(l.pointMap, l.names)
	l.updatedAt = l.clock()
	for w := range l.watchers {
		offerLatest(w.ch, l.standingLocked(w.userID))
	}
}

func (l *Leaderboard) standingLocked(userID string) domain.Standing {
	rows := make([]domain.LeaderboardRow, len(l.rows))
	copy(rows, l.rows)
	return domain.Standing{
		Rows:      rows,
		Rank:      ComputeRank(userID, l.pointMap),
		UpdatedAt: l.updatedAt,
	}
}

func (l *Leaderboard) setStopped() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}
