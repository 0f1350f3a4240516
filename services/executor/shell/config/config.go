package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"slices"

	"github.com/bpcoder16/Chestnut/v2/core/utils"
)

// ShellExecutorConfig Shell执行器配置
type ShellExecutorConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Argv 解释命令行时的参数前缀
func (c ShellExecutorConfig) Argv() []string {
	return append([]string{c.Command}, c.Args...)
}

// Config shell.yaml 结构
type Config struct {
	Shell ShellExecutorConfig `yaml:"shell"`
}

// Default 平台默认 shell：/bin/sh -c 或 cmd /C
func Default() ShellExecutorConfig {
	if runtime.GOOS == "windows" {
		return ShellExecutorConfig{Command: "cmd", Args: []string{"/C"}}
	}
	return ShellExecutorConfig{Command: "/bin/sh", Args: []string{"-c"}}
}

// Load 读取 shell.yaml，文件不存在或未配置命令时使用平台默认值
func Load(path string) (ShellExecutorConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	var cfg Config
	if err := utils.ParseFile(path, &cfg); err != nil {
		return ShellExecutorConfig{}, err
	}

	// 设置默认值
	if cfg.Shell.Command == "" {
		return Default(), nil
	}
	cfg.Shell.Args = slices.Clone(cfg.Shell.Args)
	return cfg.Shell, nil
}
