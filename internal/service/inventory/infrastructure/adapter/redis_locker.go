// internal/service/inventory/infrastructure/adapter/redis_locker.go
package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/domain/port"
)

const (
	unlockScriptName = "sku_unlock"
	// 锁的持有上限。正常流程远短于此；持有方崩溃时靠它兜底释放。
	lockLeaseTTL = 30 * time.Second
	// 抢锁失败后的重试间隔。
	acquireRetryInterval = 20 * time.Millisecond
)

// 只允许持有者本人删除锁，防止误删他人续期后的锁。
var unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end
`

// RedisLocker 是 port.Locker 的 Redis 实现（SET NX PX + Lua 校验释放），
// 适用于多实例部署时跨进程串行化同一 SKU 的库存操作。
type RedisLocker struct {
	client *redis.Client
}

var _ port.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, err
	}
	return &RedisLocker{client: client}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, resource string, timeout time.Duration) (port.Unlocker, error) {
	key := "lock:{" + resource + "}"
	token := uuid.New().String()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.client.GetClient().SetNX(ctx, key, token, lockLeaseTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrLockTimeout
		}
		select {
		case <-time.After(acquireRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// 释放用独立的 context：调用方的 ctx 可能已经取消。
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := l.client.RunScript(ctx, unlockScriptName, []string{key}, token); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to release sku lock")
	}
}
