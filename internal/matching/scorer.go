package matching

import (
	"context"
	"fmt"
	"math"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/constants"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/taxonomy"
	"skillmatch-go/internal/types"
	"skillmatch-go/internal/weights"

	"github.com/rs/zerolog"
)

// plannedRequirement 评分计划中的一条要求。
// 岗位要求的归一化与权重计算在整次运行中只做一次，
// 所有候选人共享同一份计划，保证评分的确定性。
type plannedRequirement struct {
	name        string  // 展示名: 原始技能提法或分类名
	kind        types.RequirementKind
	skillCode   string  // kind=skill时的规范技能代码
	category    string  // kind=category时的分类标签
	minRequired int     // 分类要求的最少技能数，至少为1
	finalWeight float64 // base_w * role_w * req_w
}

// ScorePlan 一次匹配运行的评分计划: 已归一化的要求列表与满分基数
type ScorePlan struct {
	requirements []plannedRequirement
	maxPossible  float64
}

// MaxPossible 返回满分基数(全部要求最优命中时的加权和)
func (p *ScorePlan) MaxPossible() float64 {
	return p.maxPossible
}

// Scorer 候选人评分器: hard与soft要求一起参与评分，
// 按深度×新近度×权重累计，再归一化到0-100
type Scorer struct {
	resolver *Resolver
	tax      *taxonomy.Store
	reader   CandidateReader
	cfg      config.MatchingConfig
	log      zerolog.Logger
}

// NewScorer 创建评分器
func NewScorer(resolver *Resolver, tax *taxonomy.Store, reader CandidateReader, cfg config.MatchingConfig) *Scorer {
	return &Scorer{
		resolver: resolver,
		tax:      tax,
		reader:   reader,
		cfg:      cfg,
		log:      logger.Component("scorer"),
	}
}

// BuildPlan 归一化全部岗位要求并计算每条的最终权重。
// 无法归一化的技能要求记警告后从计划中剔除，不计入满分基数。
func (s *Scorer) BuildPlan(ctx context.Context, profile *types.JobProfile, snapshot *weights.Snapshot) (*ScorePlan, error) {
	plan := &ScorePlan{}

	for i := range profile.Requirements {
		req := &profile.Requirements[i]

		reqWeight := 1.0
		if req.Level() == constants.RequirementSoft {
			reqWeight = constants.SoftRequirementWeight
		}

		switch req.Kind {
		case types.KindSkill:
			resolved, err := s.resolver.Resolve(ctx, req.Skill.RawSkill, profile.RoleContext)
			if err != nil {
				return nil, fmt.Errorf("归一化岗位要求 %q 失败: %w", req.Skill.RawSkill, err)
			}
			if resolved == nil {
				s.log.Warn().Str("mention", req.Skill.RawSkill).Msg("岗位要求无法归一化，不参与评分")
				continue
			}

			finalW := snapshot.BaseWeight(resolved.SkillType) * snapshot.RoleMultiplier(resolved.SkillType) * reqWeight
			plan.requirements = append(plan.requirements, plannedRequirement{
				name:        req.Skill.RawSkill,
				kind:        types.KindSkill,
				skillCode:   resolved.SkillCode,
				finalWeight: finalW,
			})
			plan.maxPossible += finalW

		case types.KindCategory:
			minRequired := req.Category.MinRequired
			if minRequired < 1 {
				minRequired = 1
			}

			// 分类要求没有具体技能类型，权重按分类缺省类型取
			fallback := constants.CategoryFallbackSkillType
			finalW := snapshot.BaseWeight(fallback) * snapshot.RoleMultiplier(fallback) * reqWeight
			plan.requirements = append(plan.requirements, plannedRequirement{
				name:        req.Category.Category,
				kind:        types.KindCategory,
				category:    req.Category.Category,
				minRequired: minRequired,
				finalWeight: finalW,
			})
			plan.maxPossible += finalW
		}
	}

	return plan, nil
}

// ScoreCandidate 按评分计划给单个候选人打分，生成逐条明细。
// now是显式参数，新近度判断不取系统时钟，保证同一次运行结果可复现。
func (s *Scorer) ScoreCandidate(ctx context.Context, plan *ScorePlan, candidateID, candidateName string, now time.Time) (*types.MatchResult, error) {
	rows, err := s.reader.CandidateSkills(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("查询候选人 %s 的技能记录失败: %w", candidateID, err)
	}

	held := make(map[string]*models.CandidateSkill, len(rows))
	for i := range rows {
		held[rows[i].SkillCode] = &rows[i]
	}

	result := &types.MatchResult{
		CandidateID:       candidateID,
		CandidateName:     candidateName,
		TotalRequirements: len(plan.requirements),
		Breakdown:         make([]types.RequirementBreakdown, 0, len(plan.requirements)),
	}

	var total float64

	for _, req := range plan.requirements {
		entry := types.RequirementBreakdown{
			SkillName: req.name,
			Weight:    round2(req.finalWeight),
		}

		var hit *models.CandidateSkill
		switch req.kind {
		case types.KindSkill:
			entry.RequirementKind = "Skill"
			hit = held[req.skillCode]
			if hit != nil {
				entry.MatchedVia = req.skillCode
			}
		case types.KindCategory:
			entry.RequirementKind = "Category"
			hit = s.bestInCategory(req, held, now)
		}

		if hit == nil {
			result.UnmatchedCount++
			result.Breakdown = append(result.Breakdown, entry)
			continue
		}

		recency := s.recencyScore(hit.LastUsedDate, now)
		competency := depthScore(hit.TotalMonths) * recency * req.finalWeight

		entry.Matched = true
		entry.ExperienceMonths = hit.TotalMonths
		entry.LastUsedDate = hit.LastUsedDate
		entry.RecencyScore = recency
		entry.CompetencyScore = round2(competency)
		if plan.maxPossible > 0 {
			entry.ContributionToTotal = round2(100 * competency / plan.maxPossible)
		}

		total += competency
		result.MatchedCount++
		result.Breakdown = append(result.Breakdown, entry)
	}

	if plan.maxPossible > 0 {
		result.Score = round2(100 * total / plan.maxPossible)
	}
	result.Confidence = scoreLabel(result.Score)

	return result, nil
}

// bestInCategory 在候选人持有的技能里找分类要求的最佳取证:
// 先确认分类下的不同技能数达到minRequired，再取能力分最高的一个计分。
// 并列时取taxonomy序号最小者，保证确定性。
func (s *Scorer) bestInCategory(req plannedRequirement, held map[string]*models.CandidateSkill, now time.Time) *models.CandidateSkill {
	var (
		best      *models.CandidateSkill
		bestValue float64
		count     int
	)

	for _, skill := range s.tax.InCategory(req.category) {
		cs, ok := held[skill.Code]
		if !ok {
			continue
		}
		count++

		value := depthScore(cs.TotalMonths) * s.recencyScore(cs.LastUsedDate, now)
		if best == nil || value > bestValue {
			best = cs
			bestValue = value
		}
	}

	if count < req.minRequired {
		return nil
	}
	return best
}

// depthScore 经验深度: 月数/36封顶到1.0
func depthScore(totalMonths int) float64 {
	return math.Min(1.0, float64(totalMonths)/constants.DepthCapMonths)
}

// recencyScore 新近度: 不满12个月1.0，不满48个月0.6，更早或无记录0.25。
// 边界是开区间: 正好12个月前落在0.6档，正好48个月前落在0.25档。
// 月数边界可配置，未配置时用缺省值。
func (s *Scorer) recencyScore(lastUsed *time.Time, now time.Time) float64 {
	if lastUsed == nil {
		return constants.RecencyLegacyScore
	}

	freshMonths := s.cfg.RecencyFreshMonths
	if freshMonths <= 0 {
		freshMonths = constants.RecencyFreshMonths
	}
	staleMonths := s.cfg.RecencyStaleMonths
	if staleMonths <= 0 {
		staleMonths = constants.RecencyStaleMonths
	}

	if lastUsed.After(now.AddDate(0, -freshMonths, 0)) {
		return constants.RecencyFreshScore
	}
	if lastUsed.After(now.AddDate(0, -staleMonths, 0)) {
		return constants.RecencyStaleScore
	}
	return constants.RecencyLegacyScore
}

// scoreLabel 把0-100分映射为匹配强度标签
func scoreLabel(score float64) string {
	switch {
	case score >= constants.ScoreStrongThreshold:
		return constants.LabelStrongMatch
	case score >= constants.ScoreGoodThreshold:
		return constants.LabelGoodMatch
	case score >= constants.ScorePartialThreshold:
		return constants.LabelPartialMatch
	default:
		return constants.LabelWeakMatch
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
