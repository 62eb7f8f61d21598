package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 匹配引擎的应用配置
type Config struct {
	// MySQL 关系库配置(taxonomy、候选人技能、权重、向量缓存)
	MySQL MySQLConfig `yaml:"mysql"`

	// Redis 配置(未归一化提法的维护缓冲)
	Redis RedisConfig `yaml:"redis"`

	// Embedding 向量服务配置
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Matching 匹配引擎的算法参数
	Matching MatchingConfig `yaml:"matching"`

	// Logger 日志配置
	Logger LoggerConfig `yaml:"logger"`
}

// MySQLConfig MySQL配置结构
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// 连接池设置
	MaxIdleConns int `yaml:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int `yaml:"max_open_conns"` // 最大打开连接数
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`  // 连接最大生命周期(分钟)
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"` // 空闲连接最大生命周期(分钟)
	// 超时设置
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"` // 连接超时(秒)
	ReadTimeoutSeconds    int `yaml:"read_timeout_seconds"`    // 读取超时(秒)
	WriteTimeoutSeconds   int `yaml:"write_timeout_seconds"`   // 写入超时(秒)
	// 日志设置
	LogLevel int `yaml:"log_level"` // GORM日志级别(1-4)
}

// RedisConfig Redis配置结构
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	// 重试设置
	MaxRetries        int `yaml:"max_retries"`
	MinRetryBackoffMS int `yaml:"min_retry_backoff_ms"`
	MaxRetryBackoffMS int `yaml:"max_retry_backoff_ms"`
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"`
}

// EmbeddingConfig 向量服务配置(OpenAI兼容端点)
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_seconds"`
	// 限流设置，QPM为0时不限流
	QPM           int `yaml:"qpm"`
	BurstCapacity int `yaml:"burst_capacity"`
}

// SeniorityThreshold 某一资历级别的最低月数门槛
type SeniorityThreshold struct {
	MinTotalMonths  int `yaml:"min_total_months"`
	MinMidMonths    int `yaml:"min_mid_months"`
	MinSeniorMonths int `yaml:"min_senior_months"`
}

// MatchingConfig 匹配算法参数。
// 向量阈值与recency窗口是经验常数，没有推导依据，所以放在配置里而不是写死。
type MatchingConfig struct {
	VectorThreshold     float64                       `yaml:"vector_threshold"`      // 向量匹配的余弦相似度下限
	RecencyWindowMonths int                           `yaml:"recency_window_months"` // 资格过滤的技能新鲜度窗口(月)
	RecencyFreshMonths  int                           `yaml:"recency_fresh_months"`  // 评分中recency=1.0的上界(月)
	RecencyStaleMonths  int                           `yaml:"recency_stale_months"`  // 评分中recency=0.6的上界(月)
	ScoreWorkers        int                           `yaml:"score_workers"`         // 候选人并行评分的并发上限
	ResultLimit         int                           `yaml:"result_limit"`          // 排名结果截断条数，0为不截断
	SeniorityThresholds map[string]SeniorityThreshold `yaml:"seniority_thresholds"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// LoadConfig 从文件加载配置；路径为空时在常见位置查找，
// 测试环境下找不到文件则回退到默认配置
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			"../../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".skillmatch", "config.yaml"),
		}

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths,
				filepath.Join(execDir, "config.yaml"),
				filepath.Join(execDir, "..", "config.yaml"))
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		if configPath == "" {
			if inTestRun() {
				return createDefaultConfig(), nil
			}
			configPath = "config.yaml"
		}
	}

	if _, err := os.Stat(configPath); err != nil {
		if inTestRun() {
			return createDefaultConfig(), nil
		}
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := createDefaultConfig() // 先铺默认值，YAML按字段覆盖
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 敏感项允许从环境变量覆盖
	if envKey := os.Getenv("EMBEDDING_API_KEY"); envKey != "" {
		config.Embedding.APIKey = envKey
	}
	if envURL := os.Getenv("EMBEDDING_BASE_URL"); envURL != "" {
		config.Embedding.BaseURL = envURL
	}
	if envPwd := os.Getenv("MYSQL_PASSWORD"); envPwd != "" {
		config.MySQL.Password = envPwd
	}

	return config, nil
}

// inTestRun 粗略判断当前是否运行在go test下
func inTestRun() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") {
			return true
		}
	}
	return false
}

// createDefaultConfig 默认配置，也是测试环境的兜底
func createDefaultConfig() *Config {
	config := &Config{}

	// MySQL默认配置
	config.MySQL.Host = "localhost"
	config.MySQL.Port = 3306
	config.MySQL.Username = "root"
	config.MySQL.Password = "password"
	config.MySQL.Database = "skillmatch"
	config.MySQL.MaxIdleConns = 10
	config.MySQL.MaxOpenConns = 100
	config.MySQL.ConnMaxLifetimeMinutes = 60
	config.MySQL.ConnMaxIdleTimeMinutes = 30
	config.MySQL.ConnectTimeoutSeconds = 10
	config.MySQL.ReadTimeoutSeconds = 30
	config.MySQL.WriteTimeoutSeconds = 30
	config.MySQL.LogLevel = 2 // Error级别

	// Redis默认配置
	config.Redis.Address = "localhost:6379"
	config.Redis.DB = 0
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeoutSeconds = 5
	config.Redis.ReadTimeoutSeconds = 3
	config.Redis.WriteTimeoutSeconds = 3
	config.Redis.MaxRetries = 3
	config.Redis.MinRetryBackoffMS = 8
	config.Redis.MaxRetryBackoffMS = 512
	config.Redis.ConnMaxLifetimeMinutes = 60
	config.Redis.ConnMaxIdleTimeMinutes = 30

	// Embedding默认配置
	config.Embedding.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	config.Embedding.Model = "text-embedding-v3"
	config.Embedding.Dimensions = 768
	config.Embedding.QPM = 300
	config.Embedding.TimeoutSec = 30
	if envKey := os.Getenv("EMBEDDING_API_KEY"); envKey != "" {
		config.Embedding.APIKey = envKey
	} else {
		config.Embedding.APIKey = "test_api_key"
	}

	// 匹配算法默认参数
	config.Matching.VectorThreshold = 0.92
	config.Matching.RecencyWindowMonths = 36
	config.Matching.RecencyFreshMonths = 12
	config.Matching.RecencyStaleMonths = 48
	config.Matching.ScoreWorkers = 8
	config.Matching.ResultLimit = 50
	config.Matching.SeniorityThresholds = map[string]SeniorityThreshold{
		"Junior": {MinTotalMonths: 6, MinMidMonths: 0, MinSeniorMonths: 0},
		"Mid":    {MinTotalMonths: 18, MinMidMonths: 12, MinSeniorMonths: 0},
		"Senior": {MinTotalMonths: 36, MinMidMonths: 24, MinSeniorMonths: 12},
		"Lead":   {MinTotalMonths: 60, MinMidMonths: 36, MinSeniorMonths: 24},
	}

	// 日志默认配置
	config.Logger.Level = "info"
	config.Logger.Format = "pretty"
	config.Logger.TimeFormat = "2006-01-02 15:04:05"
	config.Logger.ReportCaller = false

	return config
}

// ThresholdFor 返回指定资历级别的月数门槛，未配置的级别退回Junior档
func (m *MatchingConfig) ThresholdFor(level string) SeniorityThreshold {
	if th, ok := m.SeniorityThresholds[level]; ok {
		return th
	}
	return m.SeniorityThresholds["Junior"]
}

// GetDuration 把配置中的时长字符串解析成time.Duration，失败时使用默认值
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
