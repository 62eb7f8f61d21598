package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/constants"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/storage/models"
	"skillmatch-go/internal/taxonomy"
	"skillmatch-go/internal/types"

	"github.com/rs/zerolog"
)

// CandidateReader 候选人技能记录的读取接口，由storage.MySQL实现
type CandidateReader interface {
	// ListCandidateIDs 返回全部候选人ID(升序)
	ListCandidateIDs(ctx context.Context) ([]string, error)

	// CandidateNames 批量查询候选人显示名
	CandidateNames(ctx context.Context, ids []string) (map[string]string, error)

	// CandidatesBySkillSet 返回持有skillCodes中任一技能且满足过滤条件的候选人ID
	CandidatesBySkillSet(ctx context.Context, skillCodes []string, filter types.SkillFilter) ([]string, error)

	// CandidatesByCategory 返回在指定分类下持有至少minRequired个不同合格技能的候选人ID
	CandidatesByCategory(ctx context.Context, category string, minRequired int, filter types.SkillFilter) ([]string, error)

	// CandidateSkills 返回单个候选人的全部技能记录
	CandidateSkills(ctx context.Context, candidateID string) ([]models.CandidateSkill, error)
}

// Gate 资格过滤器: 只看hard要求，对候选人群做硬性筛除。
// 所有hard要求的合格集取交集，某一步交集为空即提前结束。
type Gate struct {
	resolver *Resolver
	tax      *taxonomy.Store
	reader   CandidateReader
	cfg      config.MatchingConfig
	log      zerolog.Logger
}

// NewGate 创建资格过滤器
func NewGate(resolver *Resolver, tax *taxonomy.Store, reader CandidateReader, cfg config.MatchingConfig) *Gate {
	return &Gate{
		resolver: resolver,
		tax:      tax,
		reader:   reader,
		cfg:      cfg,
		log:      logger.Component("gate"),
	}
}

// EligibleCandidates 对候选人群执行资格过滤。
// population为空表示全量人群。没有hard要求时不过滤，原样返回全量人群——
// 调用方必须通过GateResult.HardRequirementCount区分"未过滤"与"无人合格"，
// 不能只看Eligible是否为空。
func (g *Gate) EligibleCandidates(ctx context.Context, profile *types.JobProfile, population []string, now time.Time) (*types.GateResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("岗位画像不能为空")
	}

	var hardReqs []*types.JobRequirement
	for i := range profile.Requirements {
		if profile.Requirements[i].Level() == constants.RequirementHard {
			hardReqs = append(hardReqs, &profile.Requirements[i])
		}
	}

	if len(hardReqs) == 0 {
		full, err := g.fullPopulation(ctx, population)
		if err != nil {
			return nil, err
		}
		return &types.GateResult{HardRequirementCount: 0, Eligible: full}, nil
	}

	threshold := g.cfg.ThresholdFor(string(profile.JobMetadata.SeniorityLevel))
	recencyWindow := g.cfg.RecencyWindowMonths
	if recencyWindow <= 0 {
		recencyWindow = constants.DefaultRecencyWindowMonths
	}
	recencyCutoff := now.AddDate(0, -recencyWindow, 0)

	var eligible map[string]struct{}

	for _, req := range hardReqs {
		filter := types.SkillFilter{
			MinEvidenceStrength: constants.EvidenceStrengthHard,
			MinTotalMonths:      threshold.MinTotalMonths,
			MinMidMonths:        threshold.MinMidMonths,
			MinSeniorMonths:     threshold.MinSeniorMonths,
			RecencyCutoff:       recencyCutoff,
			Population:          population,
		}

		var (
			ids []string
			err error
		)

		switch req.Kind {
		case types.KindSkill:
			resolved, resolveErr := g.resolver.Resolve(ctx, req.Skill.RawSkill, profile.RoleContext)
			if resolveErr != nil {
				return nil, fmt.Errorf("归一化硬性要求 %q 失败: %w", req.Skill.RawSkill, resolveErr)
			}
			if resolved == nil {
				// taxonomy没有这个技能，该要求无法参与过滤，跳过而不是清空人群
				g.log.Warn().Str("mention", req.Skill.RawSkill).Msg("硬性要求无法归一化，跳过该条过滤")
				continue
			}

			filter.MinMonths = req.Skill.MinMonths
			codes := g.acceptableSkillCodes(resolved.SkillCode)
			ids, err = g.reader.CandidatesBySkillSet(ctx, codes, filter)
			if err != nil {
				return nil, fmt.Errorf("查询技能要求 %q 的合格候选人失败: %w", req.Skill.RawSkill, err)
			}

		case types.KindCategory:
			ids, err = g.reader.CandidatesByCategory(ctx, req.Category.Category, req.Category.MinRequired, filter)
			if err != nil {
				return nil, fmt.Errorf("查询分类要求 %q 的合格候选人失败: %w", req.Category.Category, err)
			}
		}

		if eligible == nil {
			eligible = make(map[string]struct{}, len(ids))
			for _, id := range ids {
				eligible[id] = struct{}{}
			}
		} else {
			next := make(map[string]struct{})
			for _, id := range ids {
				if _, ok := eligible[id]; ok {
					next[id] = struct{}{}
				}
			}
			eligible = next
		}

		// 交集已空，后续要求不可能再挽回
		if len(eligible) == 0 {
			return &types.GateResult{HardRequirementCount: len(hardReqs), Eligible: []string{}}, nil
		}
	}

	if eligible == nil {
		// 所有hard要求都因无法归一化被跳过，等同于未过滤
		full, err := g.fullPopulation(ctx, population)
		if err != nil {
			return nil, err
		}
		return &types.GateResult{HardRequirementCount: len(hardReqs), Eligible: full}, nil
	}

	ids := make([]string, 0, len(eligible))
	for id := range eligible {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &types.GateResult{HardRequirementCount: len(hardReqs), Eligible: ids}, nil
}

// acceptableSkillCodes 技能要求的可接受技能集:
// taxonomy子树(含自身) ∪ 单跳蕴含技能，升序排列保证查询确定性
func (g *Gate) acceptableSkillCodes(rootCode string) []string {
	set := g.tax.ResolveSubtree(rootCode)
	for code := range g.tax.ResolveImplied(rootCode) {
		set[code] = struct{}{}
	}

	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// fullPopulation 给定范围非空时原样返回(排序副本)，否则查全量候选人
func (g *Gate) fullPopulation(ctx context.Context, population []string) ([]string, error) {
	if len(population) > 0 {
		out := make([]string, len(population))
		copy(out, population)
		sort.Strings(out)
		return out, nil
	}
	ids, err := g.reader.ListCandidateIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询全量候选人失败: %w", err)
	}
	return ids, nil
}
