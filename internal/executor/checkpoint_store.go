package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/antigravity-dev/capgate/core"
)

// CheckpointStore persists execution checkpoints for interrupt/resume,
// mirroring the registry and trace store's dual Redis/in-memory shape.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, id string) (*Checkpoint, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]*Checkpoint, error)
}

// RedisCheckpointStore is the production CheckpointStore, keyed under
// core.DefaultCheckpointRedisPrefix with a side index of pending
// checkpoint ids for ListPending.
type RedisCheckpointStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCheckpointStore(client *redis.Client, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client, ttl: ttl}
}

func (s *RedisCheckpointStore) key(id string) string {
	return core.DefaultCheckpointRedisPrefix + id
}

func (s *RedisCheckpointStore) pendingIndexKey() string {
	return core.DefaultCheckpointRedisPrefix + "pending"
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return core.NewFrameworkError("executor.CheckpointStore.Save", core.KindInvalidArgument, err).WithID(cp.ID)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(cp.ID), data, s.ttl)
	if cp.Status == StatusPaused {
		pipe.SAdd(ctx, s.pendingIndexKey(), cp.ID)
	} else {
		pipe.SRem(ctx, s.pendingIndexKey(), cp.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return core.NewFrameworkError("executor.CheckpointStore.Save", core.KindStateViolation, err).WithID(cp.ID)
	}
	return nil
}

func (s *RedisCheckpointStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, core.NewFrameworkError("executor.CheckpointStore.Load", core.KindNotFound, core.ErrNotFound).WithID(id)
	}
	if err != nil {
		return nil, core.NewFrameworkError("executor.CheckpointStore.Load", core.KindStateViolation, err).WithID(id)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, core.NewFrameworkError("executor.CheckpointStore.Load", core.KindStateViolation, err).WithID(id)
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	cp, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	cp.Status = status
	return s.Save(ctx, cp)
}

func (s *RedisCheckpointStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.pendingIndexKey(), id)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return core.NewFrameworkError("executor.CheckpointStore.Delete", core.KindStateViolation, err).WithID(id)
	}
	return nil
}

func (s *RedisCheckpointStore) ListPending(ctx context.Context) ([]*Checkpoint, error) {
	ids, err := s.client.SMembers(ctx, s.pendingIndexKey()).Result()
	if err != nil {
		return nil, core.NewFrameworkError("executor.CheckpointStore.ListPending", core.KindStateViolation, err)
	}
	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// InMemoryCheckpointStore is the dev/test CheckpointStore.
type InMemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{checkpoints: make(map[string]*Checkpoint)}
}

func (s *InMemoryCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpCopy := *cp
	s.checkpoints[cp.ID] = &cpCopy
	return nil
}

func (s *InMemoryCheckpointStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, core.NewFrameworkError("executor.CheckpointStore.Load", core.KindNotFound, core.ErrNotFound).WithID(id)
	}
	cpCopy := *cp
	return &cpCopy, nil
}

func (s *InMemoryCheckpointStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return core.NewFrameworkError("executor.CheckpointStore.UpdateStatus", core.KindNotFound, core.ErrNotFound).WithID(id)
	}
	cp.Status = status
	return nil
}

func (s *InMemoryCheckpointStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, id)
	return nil
}

func (s *InMemoryCheckpointStore) ListPending(ctx context.Context) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Checkpoint
	for _, cp := range s.checkpoints {
		if cp.Status == StatusPaused {
			cpCopy := *cp
			out = append(out, &cpCopy)
		}
	}
	return out, nil
}
