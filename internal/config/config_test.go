package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadConfigFromFile YAML按字段覆盖默认值，未写的字段保持默认
func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
mysql:
  host: db.internal
  port: 3307
  database: skillmatch_prod
matching:
  vector_threshold: 0.88
  result_limit: 20
  seniority_thresholds:
    Mid:
      min_total_months: 24
      min_mid_months: 18
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 3307, cfg.MySQL.Port)
	assert.Equal(t, "skillmatch_prod", cfg.MySQL.Database)
	// 未写的字段保持默认
	assert.Equal(t, "root", cfg.MySQL.Username)
	assert.Equal(t, 100, cfg.MySQL.MaxOpenConns)

	assert.InDelta(t, 0.88, cfg.Matching.VectorThreshold, 1e-9)
	assert.Equal(t, 20, cfg.Matching.ResultLimit)
	assert.Equal(t, 24, cfg.Matching.SeniorityThresholds["Mid"].MinTotalMonths)
}

// TestLoadConfigDefaultsInTest 测试环境下找不到配置文件时回退默认配置
func TestLoadConfigDefaultsInTest(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "不存在的配置.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.MySQL.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.InDelta(t, 0.92, cfg.Matching.VectorThreshold, 1e-9)
	assert.Equal(t, 36, cfg.Matching.RecencyWindowMonths)
	assert.Equal(t, 8, cfg.Matching.ScoreWorkers)
	assert.Equal(t, 300, cfg.Embedding.QPM)
}

// TestLoadConfigEnvOverrides 敏感项允许环境变量覆盖文件配置
func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
embedding:
  api_key: file_key
mysql:
  password: file_password
`)

	t.Setenv("EMBEDDING_API_KEY", "env_key")
	t.Setenv("MYSQL_PASSWORD", "env_password")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env_key", cfg.Embedding.APIKey)
	assert.Equal(t, "env_password", cfg.MySQL.Password)
}

// TestLoadConfigInvalidYAML 非法YAML报错而不是静默回退
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "mysql: [这不是合法的结构")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "解析配置文件失败")
}

// TestThresholdFor 未配置的资历级别退回Junior档
func TestThresholdFor(t *testing.T) {
	m := MatchingConfig{
		SeniorityThresholds: map[string]SeniorityThreshold{
			"Junior": {MinTotalMonths: 6},
			"Senior": {MinTotalMonths: 36, MinMidMonths: 24, MinSeniorMonths: 12},
		},
	}

	assert.Equal(t, 36, m.ThresholdFor("Senior").MinTotalMonths)
	assert.Equal(t, 6, m.ThresholdFor("没配置的级别").MinTotalMonths)
}

// TestGetDuration 时长解析失败时用默认值
func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("不是时长", time.Minute))
}
