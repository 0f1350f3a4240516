// Package security 是守护进程的授权核心。
//
// 每个文件、目录、进程启动或命令执行请求在真正触碰文件系统或创建进程之前，
// 都要由 PathAuthorizer / CommandAuthorizer 针对一份不可变的策略快照
// （Snapshot）给出 Decision。判定规则：
//
//   - 允许列表非空时，只有命中允许列表的路径放行，并且完全覆盖禁止列表；
//   - 否则命中禁止列表的路径拒绝，其余放行；
//   - 两个列表都为空时全部放行。
//
// 路径先规范化再匹配，匹配以路径分量为边界。命令先查黑名单（shell 命令行的
// 每个子命令都查），再用白名单约束主命令，最后检查工作目录。
//
// 任何不确定的情况（无法解析的路径、权限错误、非法输入）一律拒绝。
package security
