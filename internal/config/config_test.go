package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFallsBackInTests(t *testing.T) {
	// 测试运行中找不到配置文件时使用内置默认配置
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.Server.Address)
	assert.NotEmpty(t, cfg.RabbitMQ.EventsExchange)
	assert.NotEmpty(t, cfg.RabbitMQ.StageRoutingKey)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9090"
mysql:
  host: "db.internal"
  port: 3306
upload:
  max_file_size_bytes: 5242880
auth:
  enabled: true
  api_key: "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.True(t, cfg.Auth.Enabled)
	assert.EqualValues(t, 5242880, cfg.Upload.MaxFileSizeBytes)

	// 未显式给出的字段获得默认值
	assert.Equal(t, "hiring.events", cfg.RabbitMQ.EventsExchange)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ALIYUN_API_KEY", "env-key")
	t.Setenv("HIRING_API_KEY", "env-auth-key")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Aliyun.APIKey)
	assert.Equal(t, "env-auth-key", cfg.Auth.APIKey)
}

func TestMaxFileSize(t *testing.T) {
	cfg := &Config{}
	assert.EqualValues(t, 10<<20, cfg.MaxFileSize(10<<20), "未配置时使用默认值")

	cfg.Upload.MaxFileSizeBytes = 1 << 20
	assert.EqualValues(t, 1<<20, cfg.MaxFileSize(10<<20))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration("30s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute), "空字符串用默认值")
	assert.Equal(t, time.Minute, GetDuration("不是时长", time.Minute), "非法值用默认值")
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Server.Address)
}
