// Package pb 定义 exex.Exex 服务的消息和 gRPC 描述。
//
// 消息是普通的 Go 结构体，通过注册为 "json" 的编解码器传输，
// 参数为空的调用使用 emptypb.Empty。
package pb

import "fmt"

// Method 执行方法
type Method int32

const (
	// Method_EXEC 执行命令并收集输出
	Method_EXEC Method = 0
	// Method_OPEN 分离启动应用
	Method_OPEN Method = 1
)

var methodNames = map[Method]string{
	Method_EXEC: "EXEC",
	Method_OPEN: "OPEN",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int32(m))
}

// ExecRequest Args 为 nil 时 Command 交给平台 shell 解释，
// 非 nil（包括空列表）时 Command 是可执行文件，不经过 shell
type ExecRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd,omitempty"`
	// Timeout 秒，<= 0 使用默认值
	Timeout int32 `json:"timeout,omitempty"`
}

type ExecResponse struct {
	Success   bool   `json:"success"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int32 `json:"exit_code,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

type OpenRequest struct {
	Application string   `json:"application"`
	Args        []string `json:"args,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
}

type OpenResponse struct {
	Success bool   `json:"success"`
	Pid     int32  `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ReadRequest struct {
	Path string `json:"path"`
}

type ReadResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type WriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type WriteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ScanRequest struct {
	Path          string `json:"path"`
	Recursive     bool   `json:"recursive,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
}

// FileInfo 时间为 Unix 秒
type FileInfo struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	IsDirectory bool    `json:"is_directory"`
	Size        *uint64 `json:"size,omitempty"`
	Modified    int64   `json:"modified,omitempty"`
	Created     int64   `json:"created,omitempty"`
	Permissions string  `json:"permissions,omitempty"`
}

type ScanResponse struct {
	Success    bool       `json:"success"`
	Items      []FileInfo `json:"items,omitempty"`
	TotalCount int        `json:"total_count"`
	// Skipped 递归扫描时因授权被跳过的目录数
	Skipped int    `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type DeleteRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

type DeleteResponse struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deleted_count"`
	Error        string `json:"error,omitempty"`
}

type CreateRequest struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
	Content     string `json:"content,omitempty"`
}

type CreateResponse struct {
	Success     bool   `json:"success"`
	CreatedPath string `json:"created_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

type RenameRequest struct {
	FromPath string `json:"from_path"`
	ToPath   string `json:"to_path"`
}

type RenameResponse struct {
	Success bool   `json:"success"`
	OldPath string `json:"old_path,omitempty"`
	NewPath string `json:"new_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ReloadPolicyResponse struct {
	Version     uint64   `json:"version"`
	Fingerprint string   `json:"fingerprint"`
	Warnings    []string `json:"warnings,omitempty"`
}

type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Version           string `json:"version"`
	PolicyVersion     uint64 `json:"policy_version"`
	PolicyFingerprint string `json:"policy_fingerprint"`
	PolicyLoadedAt    int64  `json:"policy_loaded_at"`
	AuditDropped      uint64 `json:"audit_dropped"`
}

type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
