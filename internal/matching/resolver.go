package matching

import (
	"context"
	"fmt"
	"sync"

	"skillmatch-go/internal/constants"
	"skillmatch-go/internal/embedding"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/normalize"
	"skillmatch-go/internal/taxonomy"
	"skillmatch-go/internal/types"

	"github.com/rs/zerolog"
)

// MentionRecorder 未能归一化的原始提法的记录通道，供taxonomy维护流程消费。
// 记录失败不影响匹配运行。
type MentionRecorder interface {
	RecordUnresolved(ctx context.Context, mention, contextText string) error
}

// resolveStage 归一化级联中的一个阶段。
// 各阶段只负责找出自己的候选技能，消歧检查由Resolver统一执行。
// 返回(nil, 0, nil)表示本阶段无候选；error只用于致命失败(向量服务故障)。
type resolveStage interface {
	// method 阶段对应的归一化方法标识
	method() string

	// tryMatch 在本阶段内寻找候选技能及其置信度
	tryMatch(ctx context.Context, normalized string, tokens map[string]struct{}) (*taxonomy.Skill, float64, error)
}

// Resolver 多阶段技能归一化器: exact → alias → token/rule → vector。
// 严格按顺序尝试，首个通过消歧检查的候选即为结果；
// 被消歧规则拒绝的候选使整个阶段作废，落入下一阶段(而不是同阶段换技能)。
type Resolver struct {
	tax      *taxonomy.Store
	stages   []resolveStage
	recorder MentionRecorder
	log      zerolog.Logger

	seen sync.Map // 已上报过的未归一化提法，避免同一次运行重复入队
}

// ResolverOption Resolver的配置选项
type ResolverOption func(*Resolver)

// WithMentionRecorder 设置未归一化提法的记录通道
func WithMentionRecorder(recorder MentionRecorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = recorder
	}
}

// NewResolver 创建技能归一化器。
// cache与embedder同时提供时启用向量阶段，否则级联在token阶段结束。
func NewResolver(tax *taxonomy.Store, cache *embedding.Cache, embedder embedding.TextEmbedder, vectorThreshold float64, options ...ResolverOption) *Resolver {
	r := &Resolver{
		tax: tax,
		log: logger.Component("resolver"),
	}

	r.stages = []resolveStage{
		&exactStage{tax: tax},
		&aliasStage{tax: tax},
		&tokenStage{tax: tax},
	}
	if cache != nil && embedder != nil {
		if vectorThreshold <= 0 {
			vectorThreshold = constants.DefaultVectorThreshold
		}
		r.stages = append(r.stages, &vectorStage{
			tax:       tax,
			cache:     cache,
			embedder:  embedder,
			threshold: vectorThreshold,
		})
	}

	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve 把原始技能提法归一化为规范技能。
// 返回(nil, nil)表示NoMatch——这是合法的终态而不是错误；
// error只在向量服务等致命故障时非空。
func (r *Resolver) Resolve(ctx context.Context, rawMention, contextText string) (*types.ResolvedSkill, error) {
	normalized := normalize.Normalize(rawMention)
	if normalized == "" {
		return nil, nil
	}

	normalizedContext := normalize.Normalize(contextText)
	tokens := normalize.Tokenize(normalized)

	for _, stage := range r.stages {
		skill, confidence, err := stage.tryMatch(ctx, normalized, tokens)
		if err != nil {
			return nil, fmt.Errorf("%s阶段失败: %w", stage.method(), err)
		}
		if skill == nil {
			continue
		}
		if !skill.Passes(normalized, normalizedContext) {
			// 消歧拒绝: 本阶段整体作废，落入下一阶段
			r.log.Debug().
				Str("mention", rawMention).
				Str("stage", stage.method()).
				Str("skill_code", skill.Code).
				Msg("候选被消歧规则拒绝")
			continue
		}

		return &types.ResolvedSkill{
			SkillCode:  skill.Code,
			SkillType:  skill.SkillType,
			Confidence: confidence,
			Method:     stage.method(),
		}, nil
	}

	r.bufferUnresolved(ctx, rawMention, contextText)
	return nil, nil
}

// bufferUnresolved 把未归一化的提法送入维护缓冲，尽力而为
func (r *Resolver) bufferUnresolved(ctx context.Context, mention, contextText string) {
	if r.recorder == nil || mention == "" {
		return
	}
	if _, dup := r.seen.LoadOrStore(mention, struct{}{}); dup {
		return
	}
	if err := r.recorder.RecordUnresolved(ctx, mention, contextText); err != nil {
		r.log.Warn().Err(err).Str("mention", mention).Msg("记录未归一化提法失败")
	}
}

// exactStage 按归一化显示名精确匹配，置信度1.00
type exactStage struct {
	tax *taxonomy.Store
}

func (s *exactStage) method() string { return constants.MethodExact }

func (s *exactStage) tryMatch(_ context.Context, normalized string, _ map[string]struct{}) (*taxonomy.Skill, float64, error) {
	skill, ok := s.tax.FindByExactName(normalized)
	if !ok {
		return nil, 0, nil
	}
	return skill, constants.ConfidenceExact, nil
}

// aliasStage 按归一化别名匹配，置信度0.95
type aliasStage struct {
	tax *taxonomy.Store
}

func (s *aliasStage) method() string { return constants.MethodAlias }

func (s *aliasStage) tryMatch(_ context.Context, normalized string, _ map[string]struct{}) (*taxonomy.Skill, float64, error) {
	skill, ok := s.tax.FindByAlias(normalized)
	if !ok {
		return nil, 0, nil
	}
	return skill, constants.ConfidenceAlias, nil
}

// tokenStage 词元包含匹配，置信度0.90。
// 技能的必需词元全部出现在提法词元集中即命中，
// 允许"ASP.NET MVC"这类多词提法命中更小的词元要求集。
type tokenStage struct {
	tax *taxonomy.Store
}

func (s *tokenStage) method() string { return constants.MethodRule }

func (s *tokenStage) tryMatch(_ context.Context, _ string, tokens map[string]struct{}) (*taxonomy.Skill, float64, error) {
	if len(tokens) == 0 {
		return nil, 0, nil
	}
	skill, ok := s.tax.FindByTokens(tokens)
	if !ok {
		return nil, 0, nil
	}
	return skill, constants.ConfidenceRule, nil
}

// vectorStage 向量余弦相似度匹配，阈值严格，置信度取相似度本身。
// 向量服务故障作为错误上抛，不降级、不缓存。
type vectorStage struct {
	tax       *taxonomy.Store
	cache     *embedding.Cache
	embedder  embedding.TextEmbedder
	threshold float64
}

func (s *vectorStage) method() string { return constants.MethodVector }

func (s *vectorStage) tryMatch(ctx context.Context, normalized string, _ map[string]struct{}) (*taxonomy.Skill, float64, error) {
	queryVec, err := s.cache.GetOrCompute(ctx, normalized, func(ctx context.Context, text string) ([]float64, error) {
		vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("向量服务返回空结果")
		}
		return vecs[0], nil
	})
	if err != nil {
		return nil, 0, err
	}

	// 技能按插入序扫描，严格大于才更新，保证并列时取最小Ordinal
	var best *taxonomy.Skill
	var bestScore float64
	for _, skill := range s.tax.Skills() {
		if len(skill.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, skill.Embedding)
		if score > bestScore {
			bestScore = score
			best = skill
		}
	}

	if best == nil || bestScore < s.threshold {
		return nil, 0, nil
	}
	return best, bestScore, nil
}
