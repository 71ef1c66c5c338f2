package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/antigravity-dev/capgate/core"
)

// Store is the persistence contract for capability records, following the
// dual Redis/in-memory shape used throughout this repository's durable
// state (see tracestore.Store, executor.CheckpointStore): one interface,
// a Redis-backed implementation for production, an in-memory one for
// development and tests.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	GetByFQDN(ctx context.Context, scope Scope, fqdn string) (*Record, error)
	GetByCodeHash(ctx context.Context, scope Scope, codeHash string) (*Record, error)
	GetByDisplayName(ctx context.Context, scope Scope, displayName string) (*Record, error)
	ListByScope(ctx context.Context, scope Scope, visibility Visibility) ([]*Record, error)
}

// RedisStore persists records in Redis, keyed by scope so a single Redis
// instance can host every org/project's capabilities without collision.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed Store. ttl of zero means
// records never expire, matching the "capabilities are persistent" note
// in the data model.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) recordKey(scope Scope, fqdn string) string {
	return fmt.Sprintf("%s%s:fqdn:%s", core.DefaultRegistryRedisPrefix, scope.Key(), fqdn)
}

func (s *RedisStore) codeHashKey(scope Scope, codeHash string) string {
	return fmt.Sprintf("%s%s:codehash:%s", core.DefaultRegistryRedisPrefix, scope.Key(), codeHash)
}

func (s *RedisStore) displayNameKey(scope Scope, displayName string) string {
	return fmt.Sprintf("%s%s:name:%s", core.DefaultRegistryRedisPrefix, scope.Key(), displayName)
}

func (s *RedisStore) scopeIndexKey(scope Scope) string {
	return fmt.Sprintf("%s%s:index", core.DefaultRegistryRedisPrefix, scope.Key())
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	scope := Scope{Org: rec.Org, Project: rec.Project}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(scope, rec.FQDN), data, s.ttl)
	pipe.Set(ctx, s.codeHashKey(scope, rec.CodeHash), rec.FQDN, s.ttl)
	pipe.Set(ctx, s.displayNameKey(scope, rec.DisplayName()), rec.FQDN, s.ttl)
	pipe.SAdd(ctx, s.scopeIndexKey(scope), rec.FQDN)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return core.NewFrameworkError("registry.Store.Put", core.KindToolUnavailable, err).WithID(rec.FQDN)
	}
	return nil
}

func (s *RedisStore) GetByFQDN(ctx context.Context, scope Scope, fqdn string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(scope, fqdn)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkError("registry.Store.GetByFQDN", core.KindToolUnavailable, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) GetByCodeHash(ctx context.Context, scope Scope, codeHash string) (*Record, error) {
	fqdn, err := s.client.Get(ctx, s.codeHashKey(scope, codeHash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkError("registry.Store.GetByCodeHash", core.KindToolUnavailable, err)
	}
	return s.GetByFQDN(ctx, scope, fqdn)
}

func (s *RedisStore) GetByDisplayName(ctx context.Context, scope Scope, displayName string) (*Record, error) {
	fqdn, err := s.client.Get(ctx, s.displayNameKey(scope, displayName)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkError("registry.Store.GetByDisplayName", core.KindToolUnavailable, err)
	}
	return s.GetByFQDN(ctx, scope, fqdn)
}

func (s *RedisStore) ListByScope(ctx context.Context, scope Scope, visibility Visibility) ([]*Record, error) {
	fqdns, err := s.client.SMembers(ctx, s.scopeIndexKey(scope)).Result()
	if err != nil {
		return nil, core.NewFrameworkError("registry.Store.ListByScope", core.KindToolUnavailable, err)
	}
	out := make([]*Record, 0, len(fqdns))
	for _, fqdn := range fqdns {
		rec, err := s.GetByFQDN(ctx, scope, fqdn)
		if err != nil || rec == nil {
			continue
		}
		if visibility != "" && rec.Visibility != visibility {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// InMemoryStore is a process-local Store used in development mode and
// tests. It is safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	byFQDN      map[string]*Record // scope.Key()+"/"+fqdn -> record
	byCodeHash  map[string]string  // scope.Key()+"/"+codeHash -> fqdn
	byDisplay   map[string]string  // scope.Key()+"/"+displayName -> fqdn
	scopeIndex  map[string]map[string]bool
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byFQDN:     make(map[string]*Record),
		byCodeHash: make(map[string]string),
		byDisplay:  make(map[string]string),
		scopeIndex: make(map[string]map[string]bool),
	}
}

func scopedKey(scope Scope, suffix string) string {
	return scope.Key() + "/" + suffix
}

func (s *InMemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := Scope{Org: rec.Org, Project: rec.Project}
	clone := *rec
	s.byFQDN[scopedKey(scope, rec.FQDN)] = &clone
	s.byCodeHash[scopedKey(scope, rec.CodeHash)] = rec.FQDN
	s.byDisplay[scopedKey(scope, rec.DisplayName())] = rec.FQDN

	if s.scopeIndex[scope.Key()] == nil {
		s.scopeIndex[scope.Key()] = make(map[string]bool)
	}
	s.scopeIndex[scope.Key()][rec.FQDN] = true
	return nil
}

func (s *InMemoryStore) GetByFQDN(_ context.Context, scope Scope, fqdn string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byFQDN[scopedKey(scope, fqdn)]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (s *InMemoryStore) GetByCodeHash(ctx context.Context, scope Scope, codeHash string) (*Record, error) {
	s.mu.RLock()
	fqdn, ok := s.byCodeHash[scopedKey(scope, codeHash)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetByFQDN(ctx, scope, fqdn)
}

func (s *InMemoryStore) GetByDisplayName(ctx context.Context, scope Scope, displayName string) (*Record, error) {
	s.mu.RLock()
	fqdn, ok := s.byDisplay[scopedKey(scope, displayName)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetByFQDN(ctx, scope, fqdn)
}

func (s *InMemoryStore) ListByScope(_ context.Context, scope Scope, visibility Visibility) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fqdns := s.scopeIndex[scope.Key()]
	out := make([]*Record, 0, len(fqdns))
	for fqdn := range fqdns {
		rec, ok := s.byFQDN[scopedKey(scope, fqdn)]
		if !ok {
			continue
		}
		if visibility != "" && rec.Visibility != visibility {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}
