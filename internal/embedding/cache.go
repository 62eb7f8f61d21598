package embedding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"skillmatch-go/internal/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CacheStore 向量缓存的持久层(embedding_cache表)。
// Lookup未命中返回(nil, false, nil)，不作为错误。
type CacheStore interface {
	// Lookup 按精确输入文本查缓存
	Lookup(ctx context.Context, text string) ([]float64, bool, error)

	// Insert 写入新的缓存条目
	Insert(ctx context.Context, text string, vector []float64) error

	// Touch 更新访问统计(AccessedAt时间戳与AccessCount增量)
	Touch(ctx context.Context, text string, accessedAt time.Time, delta int64) error
}

// ComputeFunc 缓存未命中时调用的向量生成函数(外部向量服务)
type ComputeFunc func(ctx context.Context, text string) ([]float64, error)

// Cache 文本→向量的记忆化层。
// 键是调用方传入的精确字符串(上下文限定串由调用方拼好)。
// 命中时的访问统计只是运营侧副作用: 计数用原子累加，落库尽力而为，
// 绝不阻塞并发读。未命中经singleflight合并，同键只打一次向量服务；
// 生成失败的结果不入缓存，错误原样上抛。
type Cache struct {
	store CacheStore
	group singleflight.Group
	log   zerolog.Logger

	mu   sync.RWMutex
	mem  map[string][]float64 // 运行期热缓存，避免同一次匹配重复查库
	hits atomic.Int64
	miss atomic.Int64
}

// NewCache 创建向量缓存
func NewCache(store CacheStore) *Cache {
	return &Cache{
		store: store,
		mem:   make(map[string][]float64),
		log:   logger.Component("embedding_cache"),
	}
}

// GetOrCompute 取缓存向量，未命中时调用computeFn生成并写入缓存
func (c *Cache) GetOrCompute(ctx context.Context, text string, computeFn ComputeFunc) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("缓存键不能为空")
	}

	// 1. 运行期热缓存
	c.mu.RLock()
	vec, ok := c.mem[text]
	c.mu.RUnlock()
	if ok {
		c.recordHit(ctx, text)
		return vec, nil
	}

	// 2. 持久缓存
	if c.store != nil {
		stored, found, err := c.store.Lookup(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("查询向量缓存失败: %w", err)
		}
		if found {
			c.remember(text, stored)
			c.recordHit(ctx, text)
			return stored, nil
		}
	}

	// 3. 未命中: singleflight合并同键并发请求，只打一次向量服务
	result, err, _ := c.group.Do(text, func() (interface{}, error) {
		computed, err := computeFn(ctx, text)
		if err != nil {
			// 失败不入缓存，避免污染条目
			return nil, err
		}

		if c.store != nil {
			if insErr := c.store.Insert(ctx, text, computed); insErr != nil {
				// 写缓存失败不影响本次结果
				c.log.Warn().Err(insErr).Msg("写入向量缓存失败")
			}
		}
		c.remember(text, computed)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}

	c.miss.Add(1)
	return result.([]float64), nil
}

// Stats 返回本进程内的命中/未命中计数
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.miss.Load()
}

func (c *Cache) remember(text string, vec []float64) {
	c.mu.Lock()
	c.mem[text] = vec
	c.mu.Unlock()
}

// recordHit 记录一次命中。持久层的访问统计异步尽力更新，
// 失败只记日志，不影响调用方。
func (c *Cache) recordHit(ctx context.Context, text string) {
	c.hits.Add(1)
	if c.store == nil {
		return
	}
	now := time.Now()
	go func() {
		// 与请求上下文解耦，请求取消不应丢掉统计
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := c.store.Touch(touchCtx, text, now, 1); err != nil {
			c.log.Debug().Err(err).Msg("更新缓存访问统计失败")
		}
	}()
}
