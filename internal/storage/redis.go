package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/constants"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound key不存在时返回，封装底层的redis.Nil
var ErrNotFound = redis.Nil

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis客户端连接
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
		PoolSize:     cfg.PoolSize,     // 默认10
		MinIdleConns: cfg.MinIdleConns, // 默认2

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,  // 默认5秒
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,  // 默认3秒
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second, // 默认3秒

		// 重试设置
		MaxRetries:      cfg.MaxRetries,                                          // 默认3次
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond, // 默认8毫秒
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond, // 默认512毫秒

		// 连接生命周期
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute, // 默认60分钟
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute, // 默认30分钟
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

// UnresolvedMention 进入维护缓冲的一条未归一化提法
type UnresolvedMention struct {
	Mention    string    `json:"mention"`
	Context    string    `json:"context,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordUnresolved 把归一化失败的原始提法推入维护缓冲(LIST)，
// 供外部的taxonomy维护流程消费。队列封顶并带过期时间，
// 无人消费时只保留最新的若干条，绝不无限堆积。
func (r *Redis) RecordUnresolved(ctx context.Context, mention, contextText string) error {
	entry := UnresolvedMention{
		Mention:    mention,
		Context:    contextText,
		RecordedAt: time.Now(),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化未归一化提法失败: %w", err)
	}

	key := constants.KeyUnresolvedMentions
	pipe := r.Client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, constants.UnresolvedMentionCap-1)
	pipe.Expire(ctx, key, constants.UnresolvedMentionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入未归一化提法缓冲失败: %w", err)
	}
	return nil
}

// DrainUnresolved 弹出最多limit条待维护的提法，和维护流程约定按后进先出消费
func (r *Redis) DrainUnresolved(ctx context.Context, limit int) ([]UnresolvedMention, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := r.Client.LPopCount(ctx, constants.KeyUnresolvedMentions, limit).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取未归一化提法缓冲失败: %w", err)
	}

	mentions := make([]UnresolvedMention, 0, len(raw))
	for _, item := range raw {
		var entry UnresolvedMention
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// 格式损坏的条目丢弃，不中断整批
			continue
		}
		mentions = append(mentions, entry)
	}
	return mentions, nil
}

// UnresolvedCount 返回缓冲中待维护提法的条数
func (r *Redis) UnresolvedCount(ctx context.Context) (int64, error) {
	return r.Client.LLen(ctx, constants.KeyUnresolvedMentions).Result()
}
