package redis

import (
	"context"
	"time"
)

// Cache 基于全局客户端的字符串缓存
type Cache struct{}

func NewCache() *Cache {
	return &Cache{}
}

func (Cache) MGet(ctx context.Context, keys ...string) ([]string, error) {
	return MGetValues(ctx, keys...)
}

func (Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return SetWithExpiration(ctx, key, value, ttl)
}

func (Cache) Delete(ctx context.Context, key string) error {
	return DeleteKey(ctx, key)
}
