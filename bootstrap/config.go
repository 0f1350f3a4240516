package bootstrap

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bpcoder16/Chestnut/v2/core/utils"
)

// Settings exex.yaml 守护进程设置
type Settings struct {
	// PolicyFile 相对路径相对于配置目录
	PolicyFile string `yaml:"policyFile"`
	// WriteDefault 策略文件不存在时写出平台默认策略
	WriteDefault bool `yaml:"writeDefault"`

	Watch           bool `yaml:"watch"`
	WatchDebounceMs int  `yaml:"watchDebounceMs"`

	// AuditFile 为空时取策略文件 logging.auditFile，仍为空则不写审计文件
	AuditFile        string `yaml:"auditFile"`
	AuditMaxAgeDays  int    `yaml:"auditMaxAgeDays"`
	AuditRotateHours int    `yaml:"auditRotateHours"`
	AuditQueueSize   int    `yaml:"auditQueueSize"`

	ExposeMatchedPattern bool `yaml:"exposeMatchedPattern"`

	// SpawnRate 每秒允许创建的进程数，<= 0 表示不限速
	SpawnRate  float64 `yaml:"spawnRate"`
	SpawnBurst int     `yaml:"spawnBurst"`

	ShutdownDelayMs int `yaml:"shutdownDelayMs"`
}

// Flags 命令行覆盖项，空值表示不覆盖
type Flags struct {
	Policy    string
	AuditFile string
}

// DefaultSettings 未提供 exex.yaml 时的设置
func DefaultSettings() Settings {
	return Settings{
		PolicyFile:       "policy.yaml",
		WriteDefault:     true,
		Watch:            true,
		WatchDebounceMs:  200,
		AuditMaxAgeDays:  7,
		AuditRotateHours: 24,
		SpawnRate:        20,
		SpawnBurst:       40,
		ShutdownDelayMs:  2000,
	}
}

// LoadSettings 读取 exex.yaml，文件不存在时使用默认设置
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err := utils.ParseFile(path, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Apply 应用命令行覆盖，并把相对的策略路径解析到 confDir 下
func (s Settings) Apply(flags Flags, confDir string) Settings {
	if flags.Policy != "" {
		s.PolicyFile = flags.Policy
	}
	if flags.AuditFile != "" {
		s.AuditFile = flags.AuditFile
	}
	if s.PolicyFile == "" {
		s.PolicyFile = DefaultSettings().PolicyFile
	}
	if !filepath.IsAbs(s.PolicyFile) {
		s.PolicyFile = filepath.Join(confDir, s.PolicyFile)
	}
	return s
}

func (s Settings) debounce() time.Duration {
	return time.Duration(s.WatchDebounceMs) * time.Millisecond
}

func (s Settings) shutdownDelay() time.Duration {
	return time.Duration(s.ShutdownDelayMs) * time.Millisecond
}
