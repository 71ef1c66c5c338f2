package tracestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/antigravity-dev/capgate/core"
)

// Store is the storage-agnostic contract underneath TraceStore, shaped
// after the execution-debug store's StorageProvider: storage-neutral
// method names (sorted-index add/range/remove) so a Redis sorted set or
// an in-memory priority-ordered slice can both implement it.
type Store interface {
	Put(ctx context.Context, trace *Trace) error
	Get(ctx context.Context, id string) (*Trace, error)
	// SetPriority updates a trace's stored priority and its position in
	// the priority index.
	SetPriority(ctx context.Context, id string, priority float64) error
	// TopByPriority returns up to n trace ids ordered by priority
	// descending, the candidate pool SampleByPriority draws from.
	TopByPriority(ctx context.Context, n int) ([]string, error)
}

// RedisStore persists traces as JSON blobs plus a sorted-set priority
// index (ZADD/ZREVRANGE), mirroring the execution-debug store's
// AddToIndex/ListByScoreDesc shape.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) traceKey(id string) string {
	return fmt.Sprintf("%strace:%s", core.DefaultTraceStoreRedisPrefix, id)
}

func (s *RedisStore) priorityIndexKey() string {
	return core.DefaultTraceStoreRedisPrefix + "priority_index"
}

func (s *RedisStore) Put(ctx context.Context, trace *Trace) error {
	data, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshaling trace: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.traceKey(trace.ID), data, core.DefaultTraceRetention)
	pipe.ZAdd(ctx, s.priorityIndexKey(), &redis.Z{Score: trace.Priority, Member: trace.ID})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return core.NewFrameworkError("tracestore.Store.Put", core.KindToolUnavailable, err).WithID(trace.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Trace, error) {
	data, err := s.client.Get(ctx, s.traceKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkError("tracestore.Store.Get", core.KindToolUnavailable, err)
	}
	var trace Trace
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("unmarshaling trace: %w", err)
	}
	return &trace, nil
}

func (s *RedisStore) SetPriority(ctx context.Context, id string, priority float64) error {
	trace, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if trace == nil {
		return nil
	}
	trace.Priority = priority
	return s.Put(ctx, trace)
}

func (s *RedisStore) TopByPriority(ctx context.Context, n int) ([]string, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, s.priorityIndexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, core.NewFrameworkError("tracestore.Store.TopByPriority", core.KindToolUnavailable, err)
	}
	return ids, nil
}

// InMemoryStore is a process-local Store for development mode and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	traces map[string]*Trace
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{traces: make(map[string]*Trace)}
}

func (s *InMemoryStore) Put(_ context.Context, trace *Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *trace
	s.traces[trace.ID] = &clone
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (s *InMemoryStore) SetPriority(_ context.Context, id string, priority float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.traces[id]; ok {
		t.Priority = priority
	}
	return nil
}

func (s *InMemoryStore) TopByPriority(_ context.Context, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.traces))
	for id := range s.traces {
		ids = append(ids, id)
	}
	// insertion sort descending by priority; trace counts are small enough
	// per-process that this beats pulling in a sort dependency for it.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && s.traces[ids[j]].Priority > s.traces[ids[j-1]].Priority; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids, nil
}
