package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/lensshop/pkg/config"
	"github.com/go-redis/redis/v8"
)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}))
}

func NewRedisRepositoryFromClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisRepository) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Scoped returns a Store whose keys live under prefix. A zero ttl keeps
// values until they are removed, which is how the cart's durable storage
// behaves; session storage passes the session lifetime.
func (r *RedisRepository) Scoped(prefix string, ttl time.Duration) Store {
	return &scopedStore{repo: r, prefix: prefix, ttl: ttl}
}

type scopedStore struct {
	repo   *RedisRepository
	prefix string
	ttl    time.Duration
}

func (s *scopedStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

func (s *scopedStore) Get(ctx context.Context, key string) (string, error) {
	return s.repo.Get(ctx, s.key(key))
}

func (s *scopedStore) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, s.key(key), value, s.ttl)
}

func (s *scopedStore) Remove(ctx context.Context, key string) error {
	return s.repo.Del(ctx, s.key(key))
}

// Profile cache used by the development backend.
type ProfileCache struct {
	Principal     string `json:"principal"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PhoneVerified bool   `json:"phone_verified"`
}

func (r *RedisRepository) CacheProfile(ctx context.Context, p *ProfileCache) error {
	key := fmt.Sprintf("profile:%s", p.Principal)
	return r.SetJSON(ctx, key, p, 30*time.Minute)
}

func (r *RedisRepository) GetProfileCache(ctx context.Context, principal string) (*ProfileCache, error) {
	key := fmt.Sprintf("profile:%s", principal)
	var p ProfileCache
	if err := r.GetJSON(ctx, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisRepository) InvalidateProfile(ctx context.Context, principal string) error {
	return r.Del(ctx, fmt.Sprintf("profile:%s", principal))
}

// Phone verification codes, keyed by principal and phone.
func phoneCodeKey(principal, phone string) string {
	return fmt.Sprintf("phone-code:%s:%s", principal, phone)
}

func (r *RedisRepository) StorePhoneCode(ctx context.Context, principal, phone, code string, ttl time.Duration) error {
	return r.Set(ctx, phoneCodeKey(principal, phone), code, ttl)
}

func (r *RedisRepository) PhoneCode(ctx context.Context, principal, phone string) (string, error) {
	return r.Get(ctx, phoneCodeKey(principal, phone))
}

func (r *RedisRepository) DeletePhoneCode(ctx context.Context, principal, phone string) error {
	return r.Del(ctx, phoneCodeKey(principal, phone))
}
