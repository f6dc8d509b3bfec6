package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-session-service/internal/store"
)

// Store is a Redis-backed implementation of store.Store.
// Layout:
//
//	HSET {prefix}:leaves {path} {json scalar}
//	ZADD {prefix}:paths  0 {path}          (lex index for subtree scans)
//	PUBLISH {prefix}:changes {path}        (after every mutation)
//
// Mutations run as Lua scripts so each one is applied atomically. Every instance
// listens on the changes channel, so subscribers see writes made by other nodes.
type Store struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
	hub    *store.Hub
	pubsub *redis.PubSub
	done   chan struct{}
}

var readScript = redis.NewScript(`
local leaves, paths = KEYS[1], KEYS[2]
local path = ARGV[1]
local members
if path == '' then
  members = redis.call('ZRANGE', paths, 0, -1)
else
  members = redis.call('ZRANGEBYLEX', paths, '[' .. path .. '/', '[' .. path .. '/\255')
  table.insert(members, 1, path)
end
local out = {}
for _, p in ipairs(members) do
  local v = redis.call('HGET', leaves, p)
  if v then
    table.insert(out, p)
    table.insert(out, v)
  end
end
return out
`)

var mutateScript = redis.NewScript(`
local leaves, paths = KEYS[1], KEYS[2]
local m = cjson.decode(ARGV[1])
local function drop(p)
  redis.call('HDEL', leaves, p)
  redis.call('ZREM', paths, p)
end
for _, prefix in ipairs(m.clear) do
  if prefix == '' then
    redis.call('DEL', leaves, paths)
  else
    drop(prefix)
    local under = redis.call('ZRANGEBYLEX', paths, '[' .. prefix .. '/', '[' .. prefix .. '/\255')
    for _, p in ipairs(under) do drop(p) end
  end
end
for _, p in ipairs(m.drop) do drop(p) end
for i = 1, #m.set, 2 do
  redis.call('HSET', leaves, m.set[i], m.set[i + 1])
  redis.call('ZADD', paths, 0, m.set[i])
end
redis.call('PUBLISH', ARGV[2], m.changed)
return 1
`)

var incrementScript = redis.NewScript(`
local leaves, paths = KEYS[1], KEYS[2]
local path = ARGV[1]
local cur = redis.call('HGET', leaves, path)
if cur and not string.match(cur, '^-?%d+$') then
  return redis.error_reply('NOTCOUNTER')
end
local under = redis.call('ZRANGEBYLEX', paths, '[' .. path .. '/', '[' .. path .. '/\255')
for _, p in ipairs(under) do
  redis.call('HDEL', leaves, p)
  redis.call('ZREM', paths, p)
end
for i = 4, #ARGV do
  redis.call('HDEL', leaves, ARGV[i])
  redis.call('ZREM', paths, ARGV[i])
end
local v = redis.call('HINCRBY', leaves, path, tonumber(ARGV[2]))
redis.call('ZADD', paths, 0, path)
redis.call('PUBLISH', ARGV[3], path)
return v
`)

// mutationPayload is the JSON handed to mutateScript. Slices are never nil so
// cjson decodes them as tables rather than null.
type mutationPayload struct {
	Clear   []string `json:"clear"`
	Drop    []string `json:"drop"`
	Set     []string `json:"set"`
	Changed string   `json:"changed"`
}

// NewStore subscribes to the change channel and returns a ready store.
func NewStore(ctx context.Context, client *redis.Client, prefix string, log *zap.Logger) (*Store, error) {
	if prefix == "" {
		prefix = "quiz"
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		client: client,
		prefix: prefix,
		log:    log,
		done:   make(chan struct{}),
	}
	s.hub = store.NewHub(s.Read)

	s.pubsub = client.Subscribe(ctx, s.changesChannel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.changesChannel(), err)
	}
	go s.listen()
	return s, nil
}

func (s *Store) listen() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		s.hub.Notify(context.Background(), msg.Payload)
	}
}

func (s *Store) Read(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.CleanPath(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	flat, err := readScript.Run(ctx, s.client, s.keys(), path).StringSlice()
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	leaves := make(map[string]json.RawMessage, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		leaves[flat[i]] = json.RawMessage(flat[i+1])
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
	args := []any{path, delta, s.changesChannel()}
	for _, ancestor := range store.Ancestors(path) {
		args = append(args, ancestor)
	}
	v, err := incrementScript.Run(ctx, s.client, s.keys(), args...).Int64()
	if err != nil {
		if strings.Contains(err.Error(), "NOTCOUNTER") {
			return 0, fmt.Errorf("%w: %s", store.ErrNotCounter, path)
		}
		return 0, fmt.Errorf("increment %q: %w", path, err)
	}
	return v, nil
}

// Close stops the change listener and ends all subscriptions.
func (s *Store) Close() error {
	err := s.pubsub.Close()
	<-s.done
	s.hub.Close()
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, m store.Mutation) error {
	payload := mutationPayload{
		Clear:   append([]string{}, m.Clear...),
		Drop:    append([]string{}, m.Drop...),
		Set:     make([]string, 0, 2*len(m.Set)),
		Changed: m.Changed,
	}
	for _, leaf := range store.SortedKeys(m.Set) {
		payload.Set = append(payload.Set, leaf, string(m.Set[leaf]))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := mutateScript.Run(ctx, s.client, s.keys(), string(raw), s.changesChannel()).Err(); err != nil {
		return fmt.Errorf("mutate %q: %w", m.Changed, err)
	}
	s.log.Debug("store mutation applied", zap.String("path", m.Changed), zap.Int("leaves", len(m.Set)))
	return nil
}

func (s *Store) keys() []string {
	return []string{s.prefix + ":leaves", s.prefix + ":paths"}
}

func (s *Store) changesChannel() string {
	return s.prefix + ":changes"
}
