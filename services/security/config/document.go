package config

import (
	"fmt"
	"strings"

	"exexd/services/security"

	"github.com/dustin/go-humanize"
)

// DefaultMaxPayloadBytes 文档未给出负载上限时使用
const DefaultMaxPayloadBytes int64 = 100 << 20

// File 策略文件。YAML 使用 camelCase 键，JSON 沿用 snake_case 键。
type File struct {
	Version     string   `yaml:"version" json:"version"`
	ExexProject string   `yaml:"exexProject,omitempty" json:"exex_project,omitempty"`
	Created     string   `yaml:"created,omitempty" json:"created,omitempty"`
	Security    Document `yaml:"security" json:"security"`

	// 旧版文件把路径列表放在顶层
	LegacyDisallowedPaths []string `yaml:"disallowedPaths,omitempty" json:"disallowed_paths,omitempty"`
	LegacyAllowedPaths    []string `yaml:"allowedPaths,omitempty" json:"allowed_paths,omitempty"`
}

// Document security 段
type Document struct {
	AllowedPaths     []string `yaml:"allowedPaths" json:"allowed_paths"`
	DisallowedPaths  []string `yaml:"disallowedPaths" json:"disallowed_paths"`
	CommandWhitelist []string `yaml:"commandWhitelist" json:"command_whitelist"`
	CommandBlacklist []string `yaml:"commandBlacklist" json:"command_blacklist"`

	// 负载上限，依次取 MaxPayloadBytes、MaxPayload（如 "100MB"）、MaxFileSizeMB
	MaxPayloadBytes int64  `yaml:"maxPayloadBytes,omitempty" json:"max_payload_bytes,omitempty"`
	MaxPayload      string `yaml:"maxPayload,omitempty" json:"max_payload,omitempty"`
	MaxFileSizeMB   int64  `yaml:"maxFileSizeMb,omitempty" json:"max_file_size_mb,omitempty"`

	Strict  bool    `yaml:"strict,omitempty" json:"strict,omitempty"`
	Logging Logging `yaml:"logging" json:"logging"`
}

// Logging 审计日志开关
type Logging struct {
	LogDeniedCommands  bool   `yaml:"logDeniedCommands" json:"log_denied_commands"`
	LogAllowedCommands bool   `yaml:"logAllowedCommands" json:"log_allowed_commands"`
	AuditFile          string `yaml:"auditFile,omitempty" json:"audit_file,omitempty"`
}

// Policy 合并旧版顶层字段后的 security 段
func (f *File) Policy() Document {
	d := f.Security
	if len(d.DisallowedPaths) == 0 {
		d.DisallowedPaths = f.LegacyDisallowedPaths
	}
	if len(d.AllowedPaths) == 0 {
		d.AllowedPaths = f.LegacyAllowedPaths
	}
	return d
}

// Rules 转换成快照构建器的输入
func (d Document) Rules() (security.Rules, error) {
	limit, err := d.payloadLimit()
	if err != nil {
		return security.Rules{}, err
	}
	return security.Rules{
		AllowedPaths:     d.AllowedPaths,
		DisallowedPaths:  d.DisallowedPaths,
		CommandWhitelist: d.CommandWhitelist,
		CommandBlacklist: d.CommandBlacklist,
		MaxPayloadBytes:  limit,
		Strict:           d.Strict,
	}, nil
}

func (d Document) payloadLimit() (int64, error) {
	switch {
	case d.MaxPayloadBytes != 0:
		return d.MaxPayloadBytes, nil
	case strings.TrimSpace(d.MaxPayload) != "":
		n, err := humanize.ParseBytes(d.MaxPayload)
		if err != nil {
			return 0, fmt.Errorf("%w: maxPayload %q: %v", security.ErrConfig, d.MaxPayload, err)
		}
		if n > 1<<62 {
			return 0, fmt.Errorf("%w: maxPayload %q too large", security.ErrConfig, d.MaxPayload)
		}
		return int64(n), nil
	case d.MaxFileSizeMB != 0:
		return d.MaxFileSizeMB << 20, nil
	}
	return DefaultMaxPayloadBytes, nil
}
