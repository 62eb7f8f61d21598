package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/embedding"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/matching"
	"skillmatch-go/internal/storage"
	"skillmatch-go/internal/taxonomy"
	"skillmatch-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/pflag"
)

// rankOutput 匹配运行的完整输出
type rankOutput struct {
	RunID        string              `json:"run_id"`
	GeneratedAt  time.Time           `json:"generated_at"`
	GateApplied  bool                `json:"gate_applied"`
	EligibleSize int                 `json:"eligible_size"`
	Results      []types.MatchResult `json:"results"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "skillmatch: %v\n", err)
		os.Exit(1)
	}
}

// run 承载全部流程。出错时返回error而不是直接Fatal，
// 保证存储连接等defer清理在退出前执行
func run() error {
	var (
		configPath     string
		profilePath    string
		populationFlag string
		nowFlag        string
		resultLimit    int
		disableVector  bool
	)

	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径(默认在常见位置查找)")
	pflag.StringVarP(&profilePath, "profile", "p", "-", "岗位画像JSON文件路径，-表示stdin")
	pflag.StringVar(&populationFlag, "population", "", "限定候选人范围，逗号分隔的ID列表(默认全量)")
	pflag.StringVar(&nowFlag, "now", "", "评估时间点(RFC3339)，默认当前时间，用于结果复现")
	pflag.IntVarP(&resultLimit, "limit", "n", 0, "排名结果条数上限，0表示按配置")
	pflag.BoolVar(&disableVector, "no-vector", false, "关闭向量匹配阶段(离线环境)")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	initLogger(cfg)

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("生成运行ID失败: %w", err)
	}
	log := logger.Logger.With().Str("run_id", runID.String()).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	now := time.Now()
	if nowFlag != "" {
		now, err = time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return fmt.Errorf("解析评估时间点 %q 失败: %w", nowFlag, err)
		}
	}

	if resultLimit > 0 {
		cfg.Matching.ResultLimit = resultLimit
	}

	profile, err := loadProfile(profilePath)
	if err != nil {
		return fmt.Errorf("加载岗位画像失败: %w", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("初始化存储管理器失败: %w", err)
	}
	defer storageManager.Close()

	engine, err := buildEngine(ctx, cfg, storageManager, disableVector)
	if err != nil {
		return fmt.Errorf("初始化匹配引擎失败: %w", err)
	}

	var population []string
	if populationFlag != "" {
		for _, id := range strings.Split(populationFlag, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				population = append(population, trimmed)
			}
		}
	}

	results, gateResult, err := engine.RankCandidates(ctx, profile, population, now)
	if err != nil {
		return fmt.Errorf("匹配运行失败: %w", err)
	}

	output := rankOutput{
		RunID:        runID.String(),
		GeneratedAt:  now,
		GateApplied:  gateResult.Filtered(),
		EligibleSize: len(gateResult.Eligible),
		Results:      results,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("输出结果失败: %w", err)
	}

	log.Info().Int("ranked", len(results)).Msg("匹配完成")
	return nil
}

// initLogger 初始化日志系统
func initLogger(cfg *config.Config) {
	logConfig := logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	}
	if logConfig.Level == "" {
		logConfig.Level = "info"
	}
	if logConfig.Format == "" {
		logConfig.Format = "json"
	}
	logger.Init(logConfig)

	logger.Logger = logger.Logger.With().
		Str("app", "skillmatch").
		Logger()
}

// loadProfile 从文件或stdin读取岗位画像JSON
func loadProfile(path string) (*types.JobProfile, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("读取岗位画像失败: %w", err)
	}

	var profile types.JobProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("解析岗位画像失败: %w", err)
	}
	return &profile, nil
}

// buildEngine 组装匹配引擎: taxonomy快照、向量缓存、归一化器
func buildEngine(ctx context.Context, cfg *config.Config, storageManager *storage.Storage, disableVector bool) (*matching.Engine, error) {
	skills, err := storageManager.MySQL.ListMasterSkills(ctx)
	if err != nil {
		return nil, err
	}
	implications, err := storageManager.MySQL.ListSkillImplications(ctx)
	if err != nil {
		return nil, err
	}

	tax, err := taxonomy.NewStore(skills, implications)
	if err != nil {
		return nil, fmt.Errorf("构建taxonomy快照失败: %w", err)
	}

	// 向量阶段是可选的: 没有API密钥或显式关闭时退化为前三个阶段
	var cache *embedding.Cache
	var embedder embedding.TextEmbedder
	if !disableVector && cfg.Embedding.APIKey != "" {
		httpEmbedder, err := embedding.NewHTTPEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		embedder = httpEmbedder
		cache = embedding.NewCache(storage.NewEmbeddingCacheStore(storageManager.MySQL))
	}

	var resolverOptions []matching.ResolverOption
	if storageManager.Redis != nil {
		resolverOptions = append(resolverOptions, matching.WithMentionRecorder(storageManager.Redis))
	}

	resolver := matching.NewResolver(tax, cache, embedder, cfg.Matching.VectorThreshold, resolverOptions...)
	return matching.NewEngine(resolver, tax, storageManager.MySQL, storageManager.MySQL, cfg.Matching), nil
}
