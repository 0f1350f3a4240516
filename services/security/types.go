package security

import (
	"fmt"
	"strings"
)

// Operation 路径授权时的操作类型
type Operation int

const (
	OpRead Operation = iota + 1
	OpWrite
	OpCreate
	OpDelete
	OpRename
	OpScan
	OpExecuteCwd
	// OpLaunch 启动应用时对应用本身路径的检查
	OpLaunch
	// OpExecute 命令授权（非路径）
	OpExecute
)

var operationNames = map[Operation]string{
	OpRead:       "read",
	OpWrite:      "write",
	OpCreate:     "create",
	OpDelete:     "delete",
	OpRename:     "rename",
	OpScan:       "scan",
	OpExecuteCwd: "execute-cwd",
	OpLaunch:     "launch",
	OpExecute:    "execute",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// CommandSpec 命令描述：Direct 或 ShellLine
type CommandSpec interface {
	isCommandSpec()
	String() string
}

// Direct 调用方给出明确参数列表，不经过 shell
type Direct struct {
	Executable string
	Args       []string
}

func (Direct) isCommandSpec() {}

func (d Direct) String() string {
	if len(d.Args) == 0 {
		return d.Executable
	}
	return d.Executable + " " + strings.Join(d.Args, " ")
}

// ShellLine 交由平台 shell 解释的整行命令
type ShellLine string

func (ShellLine) isCommandSpec() {}

func (s ShellLine) String() string {
	return string(s)
}
