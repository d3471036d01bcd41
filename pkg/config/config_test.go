package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults 测试配置默认值
func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Fleet.MaxAccounts != 50 {
		t.Errorf("MaxAccounts 默认值应该为 50，实际为 %d", cfg.Fleet.MaxAccounts)
	}
	if cfg.Fleet.ExtractionMultiplier != 2.0 {
		t.Errorf("ExtractionMultiplier 默认值应该为 2.0，实际为 %.2f", cfg.Fleet.ExtractionMultiplier)
	}
	if cfg.Fleet.ScalingMultiplier != 1.5 {
		t.Errorf("ScalingMultiplier 默认值应该为 1.5，实际为 %.2f", cfg.Fleet.ScalingMultiplier)
	}
	if cfg.Ticks.PerformanceInterval.Duration != 5*time.Second {
		t.Errorf("PerformanceInterval 默认值应该为 5s，实际为 %s", cfg.Ticks.PerformanceInterval)
	}
	if cfg.Persistence.Backend != "json" {
		t.Errorf("持久化后端默认应该为 json，实际为 %s", cfg.Persistence.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置验证失败: %v", err)
	}
}

// TestValidate 测试配置验证
func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"maxAccounts为0", func(c *Config) { c.Fleet.MaxAccounts = 0 }},
		{"提取倍数不大于1", func(c *Config) { c.Fleet.ExtractionMultiplier = 1.0 }},
		{"扩容倍数不大于1", func(c *Config) { c.Fleet.ScalingMultiplier = 0.9 }},
		{"分裂比例越界", func(c *Config) { c.Fleet.ScalingSeedFraction = 1.5 }},
		{"再投资比例越界", func(c *Config) { c.Fleet.ReinvestFraction = -0.1 }},
		{"检查间隔为0", func(c *Config) { c.Ticks.ScalingInterval = Duration{} }},
		{"未知持久化后端", func(c *Config) { c.Persistence.Backend = "redis" }},
		{"http收益源缺endpoint", func(c *Config) { c.OutcomeSource.Mode = "http"; c.OutcomeSource.Endpoint = "" }},
		{"未知收益源模式", func(c *Config) { c.OutcomeSource.Mode = "quantum" }},
	}
	for _, c := range cases {
		cfg := Default()
		c.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s 应该验证失败", c.name)
		}
	}
}

// TestLoadFromFile 测试 YAML 配置加载
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	yamlContent := `
fleet:
  maxAccounts: 20
  extractionMultiplier: 3.0
ticks:
  performanceInterval: 2s
controlplane:
  listen: ":9999"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Fleet.MaxAccounts != 20 {
		t.Errorf("MaxAccounts 应该为 20，实际为 %d", cfg.Fleet.MaxAccounts)
	}
	if cfg.Fleet.ExtractionMultiplier != 3.0 {
		t.Errorf("ExtractionMultiplier 应该为 3.0，实际为 %.2f", cfg.Fleet.ExtractionMultiplier)
	}
	if cfg.Ticks.PerformanceInterval.Duration != 2*time.Second {
		t.Errorf("PerformanceInterval 应该为 2s，实际为 %s", cfg.Ticks.PerformanceInterval)
	}
	if cfg.ControlPlane.Listen != ":9999" {
		t.Errorf("Listen 应该为 :9999，实际为 %s", cfg.ControlPlane.Listen)
	}
	// 未覆盖的字段保留默认值
	if cfg.Fleet.ScalingMultiplier != 1.5 {
		t.Errorf("未覆盖的 ScalingMultiplier 应该保留默认 1.5，实际为 %.2f", cfg.Fleet.ScalingMultiplier)
	}
}

// TestLoadFromFileMissing 文件缺失应该报错
func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("不存在的配置文件应该报错")
	}
}

// TestEnvOverride 环境变量覆盖文件配置
func TestEnvOverride(t *testing.T) {
	t.Setenv("FLEET_MAX_ACCOUNTS", "7")
	t.Setenv("FLEET_SCALING_MULTIPLIER", "1.8")

	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Fleet.MaxAccounts != 7 {
		t.Errorf("环境变量应该覆盖 MaxAccounts 为 7，实际为 %d", cfg.Fleet.MaxAccounts)
	}
	if cfg.Fleet.ScalingMultiplier != 1.8 {
		t.Errorf("环境变量应该覆盖 ScalingMultiplier 为 1.8，实际为 %.2f", cfg.Fleet.ScalingMultiplier)
	}
}
