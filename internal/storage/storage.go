package storage

import (
	"context"
	"fmt"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/embedding"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/matching"
	"skillmatch-go/internal/weights"
)

// 编译期确认存储层满足各消费方的接口
var (
	_ matching.CandidateReader = (*MySQL)(nil)
	_ weights.WeightSource     = (*MySQL)(nil)
	_ embedding.CacheStore     = (*EmbeddingCacheStore)(nil)
	_ matching.MentionRecorder = (*Redis)(nil)
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 关系型数据库: taxonomy主数据、候选人技能、权重、向量缓存
	MySQL *MySQL

	// 键值存储: 未归一化提法的维护缓冲，可选
	Redis *Redis
}

// NewStorage 创建存储管理器。
// MySQL是硬依赖，连不上直接失败；Redis只承载维护缓冲，
// 未配置或连接失败时降级运行，缓冲功能静默关闭。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	log := logger.Component("storage")
	storage := &Storage{}

	mysql, err := NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	storage.MySQL = mysql
	log.Info().Str("host", cfg.MySQL.Host).Str("database", cfg.MySQL.Database).Msg("MySQL初始化成功")

	if cfg.Redis.Address != "" {
		redis, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("初始化Redis失败，维护缓冲关闭")
		} else {
			storage.Redis = redis
			log.Info().Str("address", cfg.Redis.Address).Msg("Redis初始化成功")
		}
	} else {
		log.Debug().Msg("Redis未配置, 跳过初始化")
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Component("storage")

	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
