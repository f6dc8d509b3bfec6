package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	"quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/metrics"
	"quiz-session-service/internal/store"
)

// backend is the store selected by store.driver plus the session registry that
// goes with it.
type backend struct {
	store    store.Store
	sessions app.SessionRepository
	closers  []func()
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Store.Driver {
	case config.DriverMemory:
		st := memory.NewStore()
		b.store = st
		b.sessions = memory.NewSessionStore()
		b.closers = append(b.closers, func() { _ = st.Close() })

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st, err := redis.NewStore(ctx, client, cfg.Redis.Prefix, log)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		b.store = st
		b.sessions = redis.NewSessionStore(client, cfg.Redis.Prefix,
			config.TTLDuration(cfg.Session.TTL, 2*time.Hour), log)
		b.closers = append(b.closers,
			func() { _ = st.Close() },
			func() { _ = client.Close() })

	case config.DriverPostgres:
		if _, err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st, err := postgres.NewStore(ctx, pool, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		b.store = st
		b.sessions = memory.NewSessionStore()
		b.closers = append(b.closers, func() { _ = st.Close() }, pool.Close)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))
	return b, nil
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// services are the quiz components built on one store.
type services struct {
	catalog     *app.Catalog
	attempts    *app.Attempts
	points      *app.Points
	profiles    *app.Profiles
	authoring   *app.Authoring
	engine      *app.Engine
	leaderboard *app.Leaderboard
}

func newServices(cfg config.Config, st store.Store, log *zap.Logger, m *metrics.Metrics) *services {
	catalog := app.NewCatalog(st, config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute))
	attempts := app.NewAttempts(st)
	points := app.NewPoints(st)
	profiles := app.NewProfiles(st)
	return &services{
		catalog:   catalog,
		attempts:  attempts,
		points:    points,
		profiles:  profiles,
		authoring: app.NewAuthoring(st, catalog, log),
		engine: app.NewEngine(catalog, attempts, points,
			app.WithQuestionSeconds(cfg.Session.QuestionSeconds),
			app.WithLogger(log),
			app.WithMetrics(m),
		),
		leaderboard: app.NewLeaderboard(points, profiles, log),
	}
}
