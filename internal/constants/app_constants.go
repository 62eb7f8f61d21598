package constants

import "time"

// 归一化方法标识，写入 CandidateSkill.NormalizationMethod 和 ResolvedSkill.Method
const (
	MethodExact  = "exact"
	MethodAlias  = "alias"
	MethodRule   = "rule"
	MethodVector = "vector"
)

// 各匹配阶段的固定置信度 (vector阶段使用相似度本身)
const (
	ConfidenceExact = 1.00
	ConfidenceAlias = 0.95
	ConfidenceRule  = 0.90
)

// DefaultVectorThreshold 向量匹配的余弦相似度阈值，经验值，可在配置中覆盖
const DefaultVectorThreshold = 0.92

// 要求级别
const (
	RequirementHard = "hard"
	RequirementSoft = "soft"
)

// 要求来源
const (
	SourceExplicit = "explicit"
	SourceInferred = "inferred"
)

// 证据强度下限: 硬性要求需要role_title及以上级别的证据
const (
	EvidenceStrengthHard = 2
	EvidenceStrengthSoft = 1
)

// DefaultRecencyWindowMonths 资格过滤的技能新鲜度窗口(月)，可在配置中覆盖
const DefaultRecencyWindowMonths = 36

// 竞争力评分中recency分段的边界(月)与对应得分
const (
	RecencyFreshMonths = 12
	RecencyStaleMonths = 48
	RecencyFreshScore  = 1.0
	RecencyStaleScore  = 0.6
	RecencyLegacyScore = 0.25
)

// DepthCapMonths 经验深度封顶月数: depth = min(1, months/36)
const DepthCapMonths = 36.0

// 软性要求在综合权重中的折扣系数
const SoftRequirementWeight = 0.4

// 匹配结果置信度标签及分数门槛
const (
	LabelStrongMatch  = "Strong Match"
	LabelGoodMatch    = "Good Match"
	LabelPartialMatch = "Partial Match"
	LabelWeakMatch    = "Weak Match"

	ScoreStrongThreshold  = 80.0
	ScoreGoodThreshold    = 60.0
	ScorePartialThreshold = 40.0
)

// CategoryFallbackSkillType 分类要求在权重表中没有自己的技能类型，
// 按framework类型取基础权重
const CategoryFallbackSkillType = "framework"

// Redis Key 常量
// 命名规范: app:{module}:{entity}[:{id}]
const (
	// KeyUnresolvedMentions 未能归一化的原始技能提法缓冲队列 (LIST)，
	// 供外部的taxonomy人工维护流程消费
	KeyUnresolvedMentions = "app:match:unresolved_mentions"

	// UnresolvedMentionTTL 缓冲队列的过期时间，防止无人消费时无限堆积
	UnresolvedMentionTTL = 30 * 24 * time.Hour

	// UnresolvedMentionCap 缓冲队列的长度上限
	UnresolvedMentionCap = 10000
)
