package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultFile 平台默认策略：禁止系统目录，允许列表为空
func DefaultFile() *File {
	return &File{
		Version:     "1.0.0",
		ExexProject: "exexd local execution daemon",
		Created:     time.Now().Format(time.DateOnly),
		Security: Document{
			DisallowedPaths: defaultDisallowed(runtime.GOOS),
			CommandBlacklist: []string{
				"format", "mkfs", "fdisk", "diskpart", "shutdown", "reboot",
			},
			MaxPayloadBytes: DefaultMaxPayloadBytes,
			Logging:         Logging{LogDeniedCommands: true},
		},
	}
}

func defaultDisallowed(goos string) []string {
	switch goos {
	case "windows":
		return []string{
			"C:/Windows/",
			"C:/Program Files/",
			"C:/Program Files (x86)/",
			"C:/Users/*/AppData/Roaming/",
			"C:/ProgramData/",
			"C:/System Volume Information/",
			"C:/$Recycle.Bin/",
		}
	case "darwin":
		return []string{
			"/System/", "/Library/", "/Applications/", "/usr/", "/private/etc/",
			"/etc/", "/bin/", "/sbin/", "/dev/", "/var/log/",
		}
	}
	return []string{
		"/etc/", "/boot/", "/sys/", "/proc/", "/dev/", "/root/",
		"/usr/bin/", "/usr/sbin/", "/sbin/", "/bin/", "/var/log/", "/lib/", "/lib64/",
	}
}

// WriteDefault 把默认策略写到 path，格式按扩展名决定；文件已存在时不覆盖
func WriteDefault(path string) error {
	data, err := Marshal(DefaultFile(), formatOf(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create policy file: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write policy file: %w", err)
	}
	return f.Close()
}
