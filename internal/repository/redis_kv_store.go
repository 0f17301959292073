package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix は他アプリケーションとキーが衝突しないように付与する接頭辞。
const redisKeyPrefix = "staybook:"

// RedisKVStore はRedisを使用したKeyValueStore。
// 値には有効期限を設定しない。トークンの期限判定はセッションマネージャーが行う。
type RedisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore はRedisKVStoreを生成する。
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// NewRedisClient はREDIS_URL形式のURLからRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Get は指定キーの値を取得する。
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get redis key: %w", err)
	}
	return value, true, nil
}

// Set は指定キーに値を保存する。
func (r *RedisKVStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set redis key: %w", err)
	}
	return nil
}

// Remove は指定キーを削除する。
func (r *RedisKVStore) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove redis key: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KeyValueStore = (*RedisKVStore)(nil)
