//go:build !windows

package executor

import (
	"fmt"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetProcessGroup 独立进程组，便于杀掉整个子进程组
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SetDetached 新会话，脱离守护进程的控制终端和进程组
func SetDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// KillProcessGroup 杀死进程组
func KillProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return fmt.Errorf("failed to kill process group %d: %w", cmd.Process.Pid, err)
	}
	return nil
}
