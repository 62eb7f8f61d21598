package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/taxonomy"
	"skillmatch-go/internal/types"
	"skillmatch-go/internal/weights"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// defaultScoreWorkers 未配置时的评分并发度
const defaultScoreWorkers = 8

// Engine 匹配引擎: 权重快照 → 资格过滤 → 并行评分 → 确定性排序。
// 引擎本身无状态，taxonomy与权重都是每次运行加载的不可变快照，可安全并发调用。
type Engine struct {
	resolver *Resolver
	tax      *taxonomy.Store
	reader   CandidateReader
	weights  weights.WeightSource
	gate     *Gate
	scorer   *Scorer
	cfg      config.MatchingConfig
	log      zerolog.Logger
}

// NewEngine 创建匹配引擎
func NewEngine(resolver *Resolver, tax *taxonomy.Store, reader CandidateReader, weightSource weights.WeightSource, cfg config.MatchingConfig) *Engine {
	return &Engine{
		resolver: resolver,
		tax:      tax,
		reader:   reader,
		weights:  weightSource,
		gate:     NewGate(resolver, tax, reader, cfg),
		scorer:   NewScorer(resolver, tax, reader, cfg),
		cfg:      cfg,
		log:      logger.Component("engine"),
	}
}

// RankCandidates 对候选人群执行完整匹配: 先资格过滤再评分排序。
// population为空表示全量人群。任何一步失败都返回错误，绝不返回截断的排名;
// ctx取消时中止运行并丢弃已算出的部分结果。
func (e *Engine) RankCandidates(ctx context.Context, profile *types.JobProfile, population []string, now time.Time) ([]types.MatchResult, *types.GateResult, error) {
	if profile == nil {
		return nil, nil, fmt.Errorf("岗位画像不能为空")
	}

	start := time.Now()

	snapshot, err := weights.Load(ctx, e.weights, profile.JobMetadata.PrimaryDomain, profile.JobMetadata.SeniorityLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("加载权重快照失败: %w", err)
	}

	gateResult, err := e.gate.EligibleCandidates(ctx, profile, population, now)
	if err != nil {
		return nil, nil, fmt.Errorf("资格过滤失败: %w", err)
	}
	if len(gateResult.Eligible) == 0 {
		e.log.Info().
			Int("hard_requirements", gateResult.HardRequirementCount).
			Msg("资格过滤后无合格候选人")
		return []types.MatchResult{}, gateResult, nil
	}

	plan, err := e.scorer.BuildPlan(ctx, profile, snapshot)
	if err != nil {
		return nil, nil, err
	}

	names, err := e.reader.CandidateNames(ctx, gateResult.Eligible)
	if err != nil {
		return nil, nil, fmt.Errorf("查询候选人名称失败: %w", err)
	}

	workers := e.cfg.ScoreWorkers
	if workers <= 0 {
		workers = defaultScoreWorkers
	}

	var (
		mu      sync.Mutex
		results = make([]types.MatchResult, 0, len(gateResult.Eligible))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, candidateID := range gateResult.Eligible {
		group.Go(func() error {
			result, scoreErr := e.scorer.ScoreCandidate(groupCtx, plan, candidateID, names[candidateID], now)
			if scoreErr != nil {
				return scoreErr
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	sortResults(results)

	if e.cfg.ResultLimit > 0 && len(results) > e.cfg.ResultLimit {
		results = results[:e.cfg.ResultLimit]
	}

	e.log.Info().
		Int("eligible", len(gateResult.Eligible)).
		Int("ranked", len(results)).
		Float64("max_possible", plan.MaxPossible()).
		Dur("elapsed", time.Since(start)).
		Msg("匹配运行完成")

	return results, gateResult, nil
}

// sortResults 排名的确定性排序: 分数降序，命中数降序，候选人ID升序兜底
func sortResults(results []types.MatchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].MatchedCount != results[j].MatchedCount {
			return results[i].MatchedCount > results[j].MatchedCount
		}
		return results[i].CandidateID < results[j].CandidateID
	})
}
