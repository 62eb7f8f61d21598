package matching

import (
	"context"
	"testing"
	"time"

	"skillmatch-go/internal/constants"
	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/types"
	"skillmatch-go/internal/weights"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scorerSnapshot programming_language基础权重1.5，其余1.0；无角色系数
func scorerSnapshot() *weights.Snapshot {
	return weights.Static(map[string]float64{
		"programming_language": 1.5,
		"framework":            1.0,
	}, nil)
}

func categoryReq(category string, minRequired int, level string) types.JobRequirement {
	return types.JobRequirement{
		Kind: types.KindCategory,
		Category: &types.CategoryRequirement{
			Category:         category,
			MinRequired:      minRequired,
			RequirementLevel: level,
			Source:           "explicit",
		},
	}
}

// TestBuildPlanWeights hard要求全权重，soft要求打0.4折，
// 分类要求按缺省类型取权重，满分基数为三者之和
func TestBuildPlanWeights(t *testing.T) {
	tax := gateTaxonomy(t)
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, gateReader(), testMatchingConfig())

	profile := &types.JobProfile{
		JobMetadata: types.JobMetadata{SeniorityLevel: types.SeniorityMid},
		Requirements: []types.JobRequirement{
			hardSkillReq("JavaScript"),                     // 1.5
			softSkillReq("React"),                          // 1.0 * 0.4
			categoryReq("Programming Language", 2, "hard"), // 缺省framework类型 → 1.0
		},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)

	require.Len(t, plan.requirements, 3)
	assert.InDelta(t, 1.5, plan.requirements[0].finalWeight, 1e-9)
	assert.InDelta(t, 0.4, plan.requirements[1].finalWeight, 1e-9)
	assert.InDelta(t, 1.0, plan.requirements[2].finalWeight, 1e-9)
	assert.InDelta(t, 2.9, plan.MaxPossible(), 1e-9)
}

// TestBuildPlanSkipsUnresolvable 无法归一化的要求不进计划也不进满分基数
func TestBuildPlanSkipsUnresolvable(t *testing.T) {
	tax := gateTaxonomy(t)
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, gateReader(), testMatchingConfig())

	profile := &types.JobProfile{
		JobMetadata: types.JobMetadata{SeniorityLevel: types.SeniorityMid},
		Requirements: []types.JobRequirement{
			hardSkillReq("JavaScript"),
			hardSkillReq("闻所未闻的框架"),
		},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)
	require.Len(t, plan.requirements, 1)
	assert.InDelta(t, 1.5, plan.MaxPossible(), 1e-9)
}

// TestBuildPlanCategoryMinRequiredFloor 分类要求minRequired非法时按1处理
func TestBuildPlanCategoryMinRequiredFloor(t *testing.T) {
	tax := gateTaxonomy(t)
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, gateReader(), testMatchingConfig())

	profile := &types.JobProfile{
		Requirements: []types.JobRequirement{categoryReq("Programming Language", 0, "hard")},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)
	require.Len(t, plan.requirements, 1)
	assert.Equal(t, 1, plan.requirements[0].minRequired)
}

// TestScoreCandidateBreakdown 验证逐条明细与总分:
// JavaScript按精确代码命中，分类要求取分类下最佳技能，未命中的要求计入未匹配数
func TestScoreCandidateBreakdown(t *testing.T) {
	tax := gateTaxonomy(t)
	reader := &mockReader{
		names: map[string]string{"c1": "Ada"},
		skills: map[string][]models.CandidateSkill{
			"c1": {
				{CandidateID: "c1", SkillCode: "SKILL_JAVASCRIPT", TotalMonths: 36, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
				{CandidateID: "c1", SkillCode: "SKILL_TYPESCRIPT", TotalMonths: 18, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
			},
		},
	}
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, reader, testMatchingConfig())

	profile := &types.JobProfile{
		JobMetadata: types.JobMetadata{SeniorityLevel: types.SeniorityMid},
		Requirements: []types.JobRequirement{
			hardSkillReq("JavaScript"),
			softSkillReq("React"),
			categoryReq("Programming Language", 2, "hard"),
		},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)

	result, err := scorer.ScoreCandidate(context.Background(), plan, "c1", "Ada", gateNow)
	require.NoError(t, err)

	require.Len(t, result.Breakdown, 3)
	assert.Equal(t, 2, result.MatchedCount)
	assert.Equal(t, 1, result.UnmatchedCount)
	assert.Equal(t, 3, result.TotalRequirements)

	js := result.Breakdown[0]
	assert.True(t, js.Matched)
	assert.Equal(t, "SKILL_JAVASCRIPT", js.MatchedVia)
	// depth=36/36=1.0, recency=1.0, weight=1.5
	assert.InDelta(t, 1.5, js.CompetencyScore, 1e-9)

	react := result.Breakdown[1]
	assert.False(t, react.Matched, "React子树不反向命中父技能JavaScript")
	assert.Zero(t, react.CompetencyScore)

	// 分类下持有2个技能达标，取能力分最高的JavaScript计分: 1.0*1.0*1.0
	category := result.Breakdown[2]
	assert.True(t, category.Matched)
	assert.Equal(t, 36, category.ExperienceMonths)
	assert.InDelta(t, 1.0, category.CompetencyScore, 1e-9)

	// total=2.5, max=2.9 → 86.21
	assert.InDelta(t, 86.21, result.Score, 1e-9)
	assert.Equal(t, constants.LabelStrongMatch, result.Confidence)
}

// TestScoreCandidateCategoryBelowMinRequired 分类下合格技能数不足时整条不计分
func TestScoreCandidateCategoryBelowMinRequired(t *testing.T) {
	tax := gateTaxonomy(t)
	reader := &mockReader{
		names: map[string]string{"c1": "Ada"},
		skills: map[string][]models.CandidateSkill{
			"c1": {
				{CandidateID: "c1", SkillCode: "SKILL_PYTHON", TotalMonths: 48, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
			},
		},
	}
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, reader, testMatchingConfig())

	profile := &types.JobProfile{
		Requirements: []types.JobRequirement{categoryReq("Programming Language", 2, "hard")},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)

	result, err := scorer.ScoreCandidate(context.Background(), plan, "c1", "Ada", gateNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.MatchedCount)
	assert.Zero(t, result.Score)
	assert.Equal(t, constants.LabelWeakMatch, result.Confidence)
}

// TestRecencyScoreTiers 新近度三档: 不满12个月1.0，不满48个月0.6，更早0.25，无记录0.25。
// 边界本身落在低档: 正好12个月前是0.6，正好48个月前是0.25
func TestRecencyScoreTiers(t *testing.T) {
	tax := gateTaxonomy(t)
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, gateReader(), testMatchingConfig())

	tests := []struct {
		name     string
		lastUsed *time.Time
		want     float64
	}{
		{"上个月用过", datePtr(2025, time.May), 1.0},
		{"差一天满12个月", timePtr(time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)), 1.0},
		{"正好12个月前", datePtr(2024, time.June), 0.6},
		{"两年前用过", datePtr(2023, time.June), 0.6},
		{"差一天满48个月", timePtr(time.Date(2021, time.June, 2, 0, 0, 0, 0, time.UTC)), 0.6},
		{"正好48个月前", datePtr(2021, time.June), 0.25},
		{"五年前用过", datePtr(2020, time.June), 0.25},
		{"没有使用记录", nil, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorer.recencyScore(tt.lastUsed, gateNow), 1e-9)
		})
	}
}

// TestDepthScoreCap 经验深度按36个月封顶
func TestDepthScoreCap(t *testing.T) {
	assert.InDelta(t, 0.0, depthScore(0), 1e-9)
	assert.InDelta(t, 0.5, depthScore(18), 1e-9)
	assert.InDelta(t, 1.0, depthScore(36), 1e-9)
	assert.InDelta(t, 1.0, depthScore(120), 1e-9, "超过36个月不再加分")
}

// TestScoreLabelBoundaries 分数标签的边界值
func TestScoreLabelBoundaries(t *testing.T) {
	assert.Equal(t, constants.LabelStrongMatch, scoreLabel(80))
	assert.Equal(t, constants.LabelGoodMatch, scoreLabel(79.99))
	assert.Equal(t, constants.LabelGoodMatch, scoreLabel(60))
	assert.Equal(t, constants.LabelPartialMatch, scoreLabel(59.99))
	assert.Equal(t, constants.LabelPartialMatch, scoreLabel(40))
	assert.Equal(t, constants.LabelWeakMatch, scoreLabel(39.99))
}

// TestScoreCandidateRoleWeight 角色乘数参与最终权重:
// 48个月且2个月前用过的技能，base=1.0、role=1.15时能力分正好是1.15
func TestScoreCandidateRoleWeight(t *testing.T) {
	tax := gateTaxonomy(t)
	reader := &mockReader{
		names: map[string]string{"c1": "Ada"},
		skills: map[string][]models.CandidateSkill{
			"c1": {
				{CandidateID: "c1", SkillCode: "SKILL_JAVASCRIPT", TotalMonths: 48, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
			},
		},
	}
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, reader, testMatchingConfig())

	snapshot := weights.Static(
		map[string]float64{"programming_language": 1.0},
		map[string]float64{"programming_language": 1.15},
	)
	profile := &types.JobProfile{
		Requirements: []types.JobRequirement{hardSkillReq("JavaScript")},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, snapshot)
	require.NoError(t, err)
	require.InDelta(t, 1.15, plan.MaxPossible(), 1e-9)

	result, err := scorer.ScoreCandidate(context.Background(), plan, "c1", "Ada", gateNow)
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 1)
	assert.InDelta(t, 1.0, result.Breakdown[0].RecencyScore, 1e-9)
	assert.InDelta(t, 1.15, result.Breakdown[0].CompetencyScore, 1e-9)
	assert.InDelta(t, 100.0, result.Score, 1e-9)
}

// TestScoreCandidateStaleRecency 同样的技能60个月没用过时新近度掉到0.25，
// 能力分0.2875，归一化后正好是满分的四分之一
func TestScoreCandidateStaleRecency(t *testing.T) {
	tax := gateTaxonomy(t)
	reader := &mockReader{
		names: map[string]string{"c1": "Ada"},
		skills: map[string][]models.CandidateSkill{
			"c1": {
				{CandidateID: "c1", SkillCode: "SKILL_JAVASCRIPT", TotalMonths: 48, LastUsedDate: datePtr(2020, time.June), MaxEvidenceStrength: 2},
			},
		},
	}
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, reader, testMatchingConfig())

	snapshot := weights.Static(
		map[string]float64{"programming_language": 1.0},
		map[string]float64{"programming_language": 1.15},
	)
	profile := &types.JobProfile{
		Requirements: []types.JobRequirement{hardSkillReq("JavaScript")},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, snapshot)
	require.NoError(t, err)

	result, err := scorer.ScoreCandidate(context.Background(), plan, "c1", "Ada", gateNow)
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 1)
	assert.InDelta(t, 0.25, result.Breakdown[0].RecencyScore, 1e-9)
	// 0.2875四舍五入到两位
	assert.InDelta(t, 0.29, result.Breakdown[0].CompetencyScore, 1e-9)
	assert.InDelta(t, 25.0, result.Score, 1e-9)
}

// TestScoreCandidateCategoryMaxNotSum 分类下多个合格技能只取最佳的一个计分，不求和
func TestScoreCandidateCategoryMaxNotSum(t *testing.T) {
	tax := gateTaxonomy(t)
	reader := &mockReader{
		names: map[string]string{"c1": "Ada"},
		skills: map[string][]models.CandidateSkill{
			"c1": {
				{CandidateID: "c1", SkillCode: "SKILL_REACT", TotalMonths: 36, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
				{CandidateID: "c1", SkillCode: "SKILL_VUE", TotalMonths: 18, LastUsedDate: datePtr(2025, time.April), MaxEvidenceStrength: 2},
			},
		},
	}
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, reader, testMatchingConfig())

	profile := &types.JobProfile{
		Requirements: []types.JobRequirement{categoryReq("Frontend Framework", 1, "hard")},
	}

	plan, err := scorer.BuildPlan(context.Background(), profile, scorerSnapshot())
	require.NoError(t, err)

	result, err := scorer.ScoreCandidate(context.Background(), plan, "c1", "Ada", gateNow)
	require.NoError(t, err)
	require.Len(t, result.Breakdown, 1)
	// React深度1.0胜出，Vue的0.5不叠加
	assert.Equal(t, 36, result.Breakdown[0].ExperienceMonths)
	assert.InDelta(t, 1.0, result.Breakdown[0].CompetencyScore, 1e-9)
	assert.InDelta(t, 100.0, result.Score, 1e-9)
}

// TestScoreCandidateEmptyPlan 计划为空(满分基数为0)时得分恒为0
func TestScoreCandidateEmptyPlan(t *testing.T) {
	tax := gateTaxonomy(t)
	scorer := NewScorer(NewResolver(tax, nil, nil, 0), tax, gateReader(), testMatchingConfig())

	result, err := scorer.ScoreCandidate(context.Background(), &ScorePlan{}, "c1", "Ada", gateNow)
	require.NoError(t, err)
	assert.Zero(t, result.Score)
	assert.Equal(t, constants.LabelWeakMatch, result.Confidence)
}
