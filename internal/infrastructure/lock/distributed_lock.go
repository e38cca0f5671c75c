package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么结算通知需要分布式锁？】
//
// 支付渠道对结算通知只承诺"至少一次"投递，同一笔支付的成功通知
// 可能同时打到多个实例上：
//
//   实例1: 收到 succeeded 通知 -> 查支付单 PENDING -> 准备入账
//   实例2: 收到同一条通知     -> 查支付单 PENDING -> 也准备入账
//
// 最终正确性由数据库的状态机 test-and-set 和流水唯一索引兜底，
// 锁的作用是把重复通知串行化，让后到的一方直接命中"已处理"
// 快速返回，而不是都走到数据库冲突再回滚
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// 先校验 value 再删除，避免删掉其他持有者在锁过期后新获得的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewSettleLock 创建结算锁（按支付单维度）
//
// 按 intent_ref 加锁而不是按账户加锁：
// 不同支付单的结算互不相干，同一笔支付的重复通知才需要排队
func NewSettleLock(client *redis.Client, intentRef, holder string) *DistributedLock {
	key := fmt.Sprintf("settle:lock:intent:%s", intentRef)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
