package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL expires templates; zero keeps them forever.
	TTL time.Duration
	// Prefix namespaces every key.
	Prefix string
}

// RedisStore keeps templates as JSON documents in Redis. A set holds the
// ids so List does not need SCAN.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStore connects a RedisStore. The connection is lazy; use Ping to
// check it.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg, logger)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "brochure:"
	}
	return &RedisStore{client: client, ttl: cfg.TTL, prefix: prefix, logger: logger, now: time.Now}
}

func (s *RedisStore) key(id string) string { return s.prefix + "template:" + id }
func (s *RedisStore) index() string        { return s.prefix + "templates" }

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Template, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}
	t, err := decode(data)
	if err != nil {
		s.logger.Error("failed to unmarshal template", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (s *RedisStore) Save(ctx context.Context, t *Template) error {
	if t == nil {
		return errors.New("nil template")
	}
	stamp(t, s.now())
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(t.ID), data, s.ttl)
		p.SAdd(ctx, s.index(), t.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.key(id))
		p.SRem(ctx, s.index(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Template, error) {
	ids, err := s.client.SMembers(ctx, s.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	if len(ids) == 0 {
		return []*Template{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	out := make([]*Template, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Expired through TTL; drop it from the index.
			stale = append(stale, ids[i])
			continue
		}
		t, err := decode([]byte(str))
		if err != nil {
			s.logger.Warn("skipping unreadable template", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.index(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune template index", zap.Error(err))
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
