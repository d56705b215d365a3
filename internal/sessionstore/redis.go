package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/telemq/telemq/internal/codec"
)

// RedisStore is a Redis-backed Session Store, for deployments that want
// durable state shared across multiple broker processes (spec.md's
// Non-goals exclude clustering the Router itself, but nothing prevents an
// operator from pointing several independent brokers at one Redis
// instance for failover). Grounded on the teacher's generic
// store.Store[T] Redis implementation; rekeyed for client ids and
// switched to a plain hash of JSON values rather than per-field TTL.
type RedisStore struct {
	client *redis.Client
	key    string

	mu   sync.RWMutex
	live map[string]*State
}

// NewRedisStore creates a store backed by client, storing the committed
// snapshot under a single Redis hash named hashKey.
func NewRedisStore(client *redis.Client, hashKey string) *RedisStore {
	return &RedisStore{client: client, key: hashKey, live: make(map[string]*State)}
}

func (r *RedisStore) SaveState(state *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[state.ClientID] = state
	return nil
}

func (r *RedisStore) TakeState(clientID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[clientID]
	if ok {
		delete(r.live, clientID)
	}
	return s, ok
}

func (r *RedisStore) NewPublish(clientID string, pkt *codec.Publish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[clientID]
	if !ok {
		return nil
	}
	s.Pending = append(s.Pending, PublishToPending(pkt))
	return nil
}

func (r *RedisStore) Commit() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fields := make(map[string]any, len(r.live))
	for clientID, s := range r.live {
		data, err := json.Marshal(s)
		if err != nil {
			return errors.Wrap(err, "marshal session state")
		}
		fields[clientID] = data
	}

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.Wrap(err, "clear session store hash")
	}
	if len(fields) == 0 {
		return nil
	}
	return errors.Wrap(r.client.HSet(ctx, r.key, fields).Err(), "commit session store hash")
}

func (r *RedisStore) Load() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return errors.Wrap(err, "load session store hash")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, raw := range values {
		var s State
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		r.live[clientID] = &s
	}
	return nil
}
