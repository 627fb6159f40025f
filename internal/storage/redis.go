package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hiring-go/internal/config"
	"hiring-go/internal/constants"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// unassignedJobKey 未指定岗位时去重集合使用的占位岗位ID
const unassignedJobKey = "unassigned"

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
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

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// hashSetKey 构造某岗位的简历指纹集合键
func hashSetKey(jobID *string) string {
	id := unassignedJobKey
	if jobID != nil && *jobID != "" {
		id = *jobID
	}
	return fmt.Sprintf(constants.KeyCVHashSet, id)
}

// GetHashExpireDuration 返回配置的指纹记录过期时间
func (r *Redis) GetHashExpireDuration() time.Duration {
	days := r.config.HashRecordExpireDays
	if days <= 0 {
		days = 365 // 默认1年
	}
	return time.Duration(days) * 24 * time.Hour
}

// AddCVHash 将文件指纹加入该岗位的去重集合并确保集合有过期时间
func (r *Redis) AddCVHash(ctx context.Context, jobID *string, hashHex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	key := hashSetKey(jobID)
	pipe := r.Client.Pipeline()
	pipe.SAdd(ctx, key, hashHex)
	pipe.ExpireNX(ctx, key, r.GetHashExpireDuration()) // 不覆盖已有过期时间
	_, err := pipe.Exec(ctx)
	return err
}

// CheckCVHashExists 检查文件指纹是否已在该岗位的去重集合中
func (r *Redis) CheckCVHashExists(ctx context.Context, jobID *string, hashHex string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SIsMember(ctx, hashSetKey(jobID), hashHex).Result()
}

// SetDefaultStageID 缓存默认阶段ID
func (r *Redis) SetDefaultStageID(ctx context.Context, stageID string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	ttl := config.GetDuration(r.config.DefaultStageCacheTTL, 10*time.Minute)
	return r.Client.Set(ctx, constants.KeyDefaultStage, stageID, ttl).Err()
}

// GetDefaultStageID 读取缓存的默认阶段ID，未命中返回 ("", nil)
func (r *Redis) GetDefaultStageID(ctx context.Context) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	val, err := r.Client.Get(ctx, constants.KeyDefaultStage).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取默认阶段缓存失败: %w", err)
	}
	return val, nil
}

// InvalidateDefaultStageID 删除默认阶段缓存，阶段变更后调用
func (r *Redis) InvalidateDefaultStageID(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Del(ctx, constants.KeyDefaultStage).Err()
}
