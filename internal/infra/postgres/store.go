package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"quiz-session-service/internal/store"
)

const changesChannel = "store_changes"

// mutationLock is the advisory lock key serializing subtree rewrites, so two
// overlapping writes never interleave their delete and insert phases.
const mutationLock = 0x717569 // "qui"

// Store keeps flattened leaves in the store_leaves table and fans changes out
// through LISTEN/NOTIFY.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	hub  *store.Hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore starts the change listener on a dedicated pool connection.
func NewStore(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{pool: pool, log: log}
	s.hub = store.NewHub(s.Read)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", changesChannel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					s.log.Error("store listener stopped", zap.Error(err))
				}
				return
			}
			s.hub.Notify(listenCtx, n.Payload)
		}
	}()
	return s, nil
}

func (s *Store) Read(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT path, value::text FROM store_leaves
		 WHERE $1::text = '' OR path = $1 OR starts_with(path, $2)`,
		path, path+"/")
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	defer rows.Close()

	leaves := make(map[string]json.RawMessage)
	for rows.Next() {
		var leaf, value string
		if err := rows.Scan(&leaf, &value); err != nil {
			return store.Snapshot{}, fmt.Errorf("scan leaf: %w", err)
		}
		leaves[leaf] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	return store.Snapshot{Path: path, Value: store.Assemble(path, leaves)}, nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, func(), error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	m, err := store.PlanWrite(path, value)
	if err != nil {
		return err
	}
	return s.mutate(ctx, m)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	m, err := store.PlanUpdate(path, fields)
	if err != nil {
		return err
	}
	return s.mutate(ctx, m)
}

func (s *Store) AppendChild(ctx context.Context, path string, value any) (string, error) {
	id, err := store.NewPushID()
	if err != nil {
		return "", err
	}
	if err := s.Write(ctx, store.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	m, err := store.PlanRemove(path)
	if err != nil {
		return err
	}
	return s.mutate(ctx, m)
}

func (s *Store) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return 0, err
	}
	if path == "" {
		return 0, fmt.Errorf("%w: counter at root", store.ErrInvalidPath)
	}

	var total int64
	err = s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, mutationLock); err != nil {
			return err
		}
		var current string
		err := tx.QueryRow(ctx, `SELECT value::text FROM store_leaves WHERE path = $1`, path).Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			if _, convErr := strconv.ParseInt(current, 10, 64); convErr != nil {
				return fmt.Errorf("%w: %s", store.ErrNotCounter, path)
			}
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM store_leaves WHERE starts_with(path, $1) OR path = ANY($2)`,
			path+"/", store.Ancestors(path)); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO store_leaves (path, value) VALUES ($1, to_jsonb($2::bigint))
			 ON CONFLICT (path) DO UPDATE
			 SET value = to_jsonb((store_leaves.value #>> '{}')::bigint + $2::bigint)
			 RETURNING (value #>> '{}')::bigint`,
			path, delta).Scan(&total); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changesChannel, path)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotCounter) {
			return 0, err
		}
		return 0, fmt.Errorf("increment %q: %w", path, err)
	}
	return total, nil
}

// Close stops the listener and ends all subscriptions. The pool is owned by the caller.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
	return nil
}

func (s *Store) mutate(ctx context.Context, m store.Mutation) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, mutationLock); err != nil {
			return err
		}
		for _, prefix := range m.Clear {
			if _, err := tx.Exec(ctx,
				`DELETE FROM store_leaves WHERE $1::text = '' OR path = $1 OR starts_with(path, $2)`,
				prefix, prefix+"/"); err != nil {
				return err
			}
		}
		if len(m.Drop) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM store_leaves WHERE path = ANY($1)`, m.Drop); err != nil {
				return err
			}
		}
		for _, leaf := range store.SortedKeys(m.Set) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO store_leaves (path, value) VALUES ($1, $2::jsonb)
				 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value`,
				leaf, string(m.Set[leaf])); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, changesChannel, m.Changed)
		return err
	})
	if err != nil {
		return fmt.Errorf("mutate %q: %w", m.Changed, err)
	}
	return nil
}
