package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoredResponse is a completed write replayed for a repeated X-Request-ID.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// ResponseStore backs idempotent writes. Reserve marks a key as in flight;
// Load returns nil until Save has run.
type ResponseStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

type RedisResponseStore struct {
	rdb *redis.Client
}

func NewRedisResponseStore(rdb *redis.Client) *RedisResponseStore {
	return &RedisResponseStore{rdb: rdb}
}

func idemKey(k string) string { return fmt.Sprintf("app:idem:%s", k) }

func (s *RedisResponseStore) Reserve(ctx context.Context, k string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, idemKey(k), pendingMarker, ttl).Result()
}

func (s *RedisResponseStore) Load(ctx context.Context, k string) (*StoredResponse, error) {
	b, err := s.rdb.Get(ctx, idemKey(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if string(b) == pendingMarker {
		return nil, nil
	}
	var resp StoredResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *RedisResponseStore) Save(ctx context.Context, k string, resp StoredResponse, ttl time.Duration) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idemKey(k), b, ttl).Err()
}

func (s *RedisResponseStore) Release(ctx context.Context, k string) error {
	return s.rdb.Del(ctx, idemKey(k)).Err()
}

// MemoryResponseStore is used when redis is not configured.
type MemoryResponseStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	resp      *StoredResponse
	expiresAt time.Time
}

func NewMemoryResponseStore() *MemoryResponseStore {
	return &MemoryResponseStore{entries: make(map[string]memEntry), now: time.Now}
}

// live returns the unexpired entry for k. Caller holds mu.
func (s *MemoryResponseStore) live(k string) (memEntry, bool) {
	e, ok := s.entries[k]
	if ok && s.now().After(e.expiresAt) {
		delete(s.entries, k)
		return memEntry{}, false
	}
	return e, ok
}

func (s *MemoryResponseStore) Reserve(_ context.Context, k string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(k); ok {
		return false, nil
	}
	s.entries[k] = memEntry{expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryResponseStore) Load(_ context.Context, k string) (*StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(k)
	if !ok {
		return nil, nil
	}
	return e.resp, nil
}

func (s *MemoryResponseStore) Save(_ context.Context, k string, resp StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = memEntry{resp: &resp, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryResponseStore) Release(_ context.Context, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
	return nil
}
