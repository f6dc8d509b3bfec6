package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/infra/memory"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in a local map; Redis only carries a liveness marker per session
// so operators can count live sessions across instances.
type SessionStore struct {
	*memory.SessionStore
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *SessionStore {
	if prefix == "" {
		prefix = "quiz"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		prefix:       prefix,
		ttl:          ttl,
		log:          log,
	}
}

func (s *SessionStore) Put(id string, session *app.Session) {
	s.SessionStore.Put(id, session)
	// best-effort liveness marker
	marker := session.UserID() + "/" + session.Category()
	if err := s.client.Set(context.Background(), s.key(id), marker, s.ttl).Err(); err != nil {
		s.log.Warn("session marker not set", zap.String("session", id), zap.Error(err))
	}
}

func (s *SessionStore) Delete(id string) {
	s.SessionStore.Delete(id)
	if err := s.client.Del(context.Background(), s.key(id)).Err(); err != nil {
		s.log.Warn("session marker not cleared", zap.String("session", id), zap.Error(err))
	}
}

// Live counts the unexpired session markers of every instance.
func (s *SessionStore) Live(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.key("*"), 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

func (s *SessionStore) key(id string) string {
	return s.prefix + ":session:" + id
}
