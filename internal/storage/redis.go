package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/constants"
	"apply-agent-go/internal/session"
	"apply-agent-go/internal/types"
)

// ErrNotFound 键不存在，包装redis.Nil便于调用方判断
var ErrNotFound = redis.Nil

// Redis 缓存与会话快照存储
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 建立连接并挂OpenTelemetry钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	// 记录所有Redis操作到追踪链路
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close 关闭连接
func (r *Redis) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// Ping 健康检查
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// --- 职位描述缓存 ---

// CacheJobDescription 缓存职位描述全文，供提示词组装时复用
func (r *Redis) CacheJobDescription(ctx context.Context, jobID string, text string) error {
	key := constants.JobDescriptionCachePrefix + jobID
	return r.Client.Set(ctx, key, text, constants.JobDescriptionCacheTTL).Err()
}

// GetJobDescription 读职位描述缓存，未命中返回("", ErrNotFound)
func (r *Redis) GetJobDescription(ctx context.Context, jobID string) (string, error) {
	return r.Client.Get(ctx, constants.JobDescriptionCachePrefix+jobID).Result()
}

// --- 表单映射缓存 ---

// mappingCacheKey 缓存键绑定档案与表单结构指纹：任一变化都会错开缓存
func mappingCacheKey(profileID, descriptorHash string) string {
	return fmt.Sprintf("%s%s:%s", constants.MappingCachePrefix, profileID, descriptorHash)
}

// CacheMappingSet 缓存analyze产出的映射集
func (r *Redis) CacheMappingSet(ctx context.Context, profileID, descriptorHash string, set *types.MappingSet, ttl time.Duration) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("序列化映射集失败: %w", err)
	}
	return r.Client.Set(ctx, mappingCacheKey(profileID, descriptorHash), data, ttl).Err()
}

// GetCachedMappingSet 读映射缓存，未命中返回(nil, nil)
func (r *Redis) GetCachedMappingSet(ctx context.Context, profileID, descriptorHash string) (*types.MappingSet, error) {
	data, err := r.Client.Get(ctx, mappingCacheKey(profileID, descriptorHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读映射缓存失败: %w", err)
	}
	var set types.MappingSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("反序列化映射缓存失败: %w", err)
	}
	return &set, nil
}

// --- 分析去重锁 ---

// AcquireAnalyzeLock 同一会话的表单分析同一时刻只允许一个在跑。
// 返回锁持有者标识，拿不到锁时返回空串
func (r *Redis) AcquireAnalyzeLock(ctx context.Context, sessionID string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, constants.AnalyzeLockPrefix+sessionID, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseAnalyzeLock 释放分析锁，Lua脚本保证只有持有者能释放
func (r *Redis) ReleaseAnalyzeLock(ctx context.Context, sessionID string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{constants.AnalyzeLockPrefix + sessionID}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}

// --- 会话快照（实现 session.SnapshotStore）---

const sessionSnapshotPrefix = "apply_session:"

// SaveSession 写会话快照。TTL与编排器的GC周期一致，Redis侧兜底过期
func (r *Redis) SaveSession(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("序列化会话快照失败: %w", err)
	}
	return r.Client.Set(ctx, sessionSnapshotPrefix+s.ID, data, 24*time.Hour).Err()
}

// LoadSession 读会话快照，不存在返回(nil, nil)
func (r *Redis) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	data, err := r.Client.Get(ctx, sessionSnapshotPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读会话快照失败: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("反序列化会话快照失败: %w", err)
	}
	return &s, nil
}

// DeleteSession 删除会话快照
func (r *Redis) DeleteSession(ctx context.Context, id string) error {
	return r.Client.Del(ctx, sessionSnapshotPrefix+id).Err()
}

var _ session.SnapshotStore = (*Redis)(nil)
