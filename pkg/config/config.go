package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FleetConfig 船队编排配置
type FleetConfig struct {
	MaxAccounts          int     `yaml:"maxAccounts"`          // 账户数量上限
	AutoScaling          bool    `yaml:"autoScaling"`          // 是否自动分裂扩容
	AutoExtraction       bool    `yaml:"autoExtraction"`       // 是否自动利润提取
	ExtractionMultiplier float64 `yaml:"extractionMultiplier"` // 提取阈值倍数（相对初始资金，默认2.0）
	ScalingMultiplier    float64 `yaml:"scalingMultiplier"`    // 扩容目标倍数（相对当前资金，默认1.5）
	ScalingSeedFraction  float64 `yaml:"scalingSeedFraction"`  // 分裂时注入新账户的比例（默认0.30）
	ReinvestFraction     float64 `yaml:"reinvestFraction"`     // 提取后再投资比例（默认0.80）
	MinSeedBalance       float64 `yaml:"minSeedBalance"`       // 新账户最小可行资金
	RiskPerAccount       float64 `yaml:"riskPerAccount"`       // 单账户风险比例（模拟收益源使用）
	CoordinationBonus    float64 `yaml:"coordinationBonus"`    // 集团协同收益加成（默认1.2）
	MilestoneSteps       int     `yaml:"milestoneSteps"`       // 扩容计划里程碑数量（默认5）
	EmergencyStopEnabled bool    `yaml:"emergencyStopEnabled"` // 停机时是否执行紧急暂停扫描
}

// TickConfig 周期检查配置
type TickConfig struct {
	PerformanceInterval Duration `yaml:"performanceInterval"` // 绩效检查间隔（最短）
	ScalingInterval     Duration `yaml:"scalingInterval"`     // 扩容检查间隔
	ExtractionInterval  Duration `yaml:"extractionInterval"`  // 提取检查间隔
}

// PersistenceConfig 持久化配置
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // 后端类型：json 或 badger
	Dir     string `yaml:"dir"`     // 数据目录
}

// ControlPlaneConfig 控制面配置
type ControlPlaneConfig struct {
	Listen string `yaml:"listen"` // HTTP 监听地址
	DBPath string `yaml:"db"`     // SQLite 审计库路径
}

// OutcomeSourceConfig 收益源配置
type OutcomeSourceConfig struct {
	Mode     string   `yaml:"mode"`     // simulated 或 http
	Endpoint string   `yaml:"endpoint"` // http 模式下外部策略服务地址
	Timeout  Duration `yaml:"timeout"`  // http 拉取超时
}

// Config 应用配置
type Config struct {
	Fleet         FleetConfig         `yaml:"fleet"`
	Ticks         TickConfig          `yaml:"ticks"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	ControlPlane  ControlPlaneConfig  `yaml:"controlplane"`
	OutcomeSource OutcomeSourceConfig `yaml:"outcomeSource"`
	LogLevel      string              `yaml:"logLevel"`
	LogFile       string              `yaml:"logFile"`
	MetricsListen string              `yaml:"metricsListen"` // expvar/pprof 监听地址（空则不启动）
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Fleet: FleetConfig{
			MaxAccounts:          50,
			AutoScaling:          true,
			AutoExtraction:       true,
			ExtractionMultiplier: 2.0,
			ScalingMultiplier:    1.5,
			ScalingSeedFraction:  0.30,
			ReinvestFraction:     0.80,
			MinSeedBalance:       50,
			RiskPerAccount:       0.02,
			CoordinationBonus:    1.2,
			MilestoneSteps:       5,
			EmergencyStopEnabled: true,
		},
		Ticks: TickConfig{
			PerformanceInterval: Duration{5 * time.Second},
			ScalingInterval:     Duration{30 * time.Second},
			ExtractionInterval:  Duration{60 * time.Second},
		},
		Persistence: PersistenceConfig{
			Backend: "json",
			Dir:     "data/state",
		},
		ControlPlane: ControlPlaneConfig{
			Listen: ":8080",
			DBPath: "data/fleet.db",
		},
		OutcomeSource: OutcomeSourceConfig{
			Mode:    "simulated",
			Timeout: Duration{3 * time.Second},
		},
		LogLevel: "info",
	}
}

// LoadFromFile 从文件加载配置（文件缺失时使用默认值），随后应用环境变量覆盖
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// applyEnv 应用 FLEET_* 环境变量覆盖
func (c *Config) applyEnv() {
	c.Fleet.MaxAccounts = parseIntEnv("FLEET_MAX_ACCOUNTS", c.Fleet.MaxAccounts)
	c.Fleet.AutoScaling = parseBoolEnv("FLEET_AUTO_SCALING", c.Fleet.AutoScaling)
	c.Fleet.AutoExtraction = parseBoolEnv("FLEET_AUTO_EXTRACTION", c.Fleet.AutoExtraction)
	c.Fleet.ExtractionMultiplier = parseFloatEnv("FLEET_EXTRACTION_MULTIPLIER", c.Fleet.ExtractionMultiplier)
	c.Fleet.ScalingMultiplier = parseFloatEnv("FLEET_SCALING_MULTIPLIER", c.Fleet.ScalingMultiplier)
	c.Fleet.RiskPerAccount = parseFloatEnv("FLEET_RISK_PER_ACCOUNT", c.Fleet.RiskPerAccount)
	c.Fleet.EmergencyStopEnabled = parseBoolEnv("FLEET_EMERGENCY_STOP", c.Fleet.EmergencyStopEnabled)
	c.Ticks.PerformanceInterval = parseDurationEnv("FLEET_PERFORMANCE_INTERVAL", c.Ticks.PerformanceInterval)
	c.Ticks.ScalingInterval = parseDurationEnv("FLEET_SCALING_INTERVAL", c.Ticks.ScalingInterval)
	c.Ticks.ExtractionInterval = parseDurationEnv("FLEET_EXTRACTION_INTERVAL", c.Ticks.ExtractionInterval)
	c.LogLevel = getEnv("FLEET_LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("FLEET_LOG_FILE", c.LogFile)
	c.ControlPlane.Listen = getEnv("FLEET_LISTEN", c.ControlPlane.Listen)
	c.ControlPlane.DBPath = getEnv("FLEET_DB", c.ControlPlane.DBPath)
	c.MetricsListen = getEnv("FLEET_METRICS_LISTEN", c.MetricsListen)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Fleet.MaxAccounts <= 0 {
		return fmt.Errorf("maxAccounts 必须大于 0")
	}
	if c.Fleet.ExtractionMultiplier <= 1.0 {
		return fmt.Errorf("extractionMultiplier 必须大于 1.0")
	}
	if c.Fleet.ScalingMultiplier <= 1.0 {
		return fmt.Errorf("scalingMultiplier 必须大于 1.0")
	}
	if c.Fleet.ScalingSeedFraction <= 0 || c.Fleet.ScalingSeedFraction >= 1 {
		return fmt.Errorf("scalingSeedFraction 必须在 0 到 1 之间")
	}
	if c.Fleet.ReinvestFraction < 0 || c.Fleet.ReinvestFraction > 1 {
		return fmt.Errorf("reinvestFraction 必须在 0 到 1 之间")
	}
	if c.Fleet.CoordinationBonus <= 0 {
		return fmt.Errorf("coordinationBonus 必须大于 0")
	}
	if c.Fleet.MilestoneSteps <= 0 {
		return fmt.Errorf("milestoneSteps 必须大于 0")
	}
	if c.Ticks.PerformanceInterval.Duration <= 0 || c.Ticks.ScalingInterval.Duration <= 0 || c.Ticks.ExtractionInterval.Duration <= 0 {
		return fmt.Errorf("周期检查间隔必须大于 0")
	}
	switch c.Persistence.Backend {
	case "json", "badger":
	default:
		return fmt.Errorf("未知的持久化后端: %s", c.Persistence.Backend)
	}
	switch c.OutcomeSource.Mode {
	case "simulated":
	case "http":
		if c.OutcomeSource.Endpoint == "" {
			return fmt.Errorf("http 收益源需要配置 endpoint")
		}
	default:
		return fmt.Errorf("未知的收益源模式: %s", c.OutcomeSource.Mode)
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 解析时间间隔环境变量
func parseDurationEnv(key string, defaultValue Duration) Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return Duration{parsed}
}
