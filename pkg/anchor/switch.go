package anchor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
)

// Switch 已武装的 Dead Man's Switch
type Switch struct {
	PID     int
	Timeout time.Duration
	ArmedAt time.Time
}

// SwitchStatus 远端开关的当前状态
type SwitchStatus struct {
	// Armed PID 文件存在且内容合法
	Armed bool
	PID   int
	Alive bool
}

// pollBackoff 读取 PID 文件前的等待序列
var pollBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

var sleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SwitchScript 生成开关脚本
// 先写 PID 再 sleep；到期后重新启用所有被禁用的服务再重启。
// launchctl disable 会跨重启保留，只重启无法撤销剥离
func SwitchScript(timeout time.Duration) string {
	seconds := int64(timeout / time.Second)
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo $$ > %s\n", PIDPath)
	fmt.Fprintf(&b, "sleep %d\n", seconds)
	b.WriteString("echo \"switch fired at $(date -u +%Y-%m-%dT%H:%M:%SZ)\"\n")
	b.WriteString("launchctl print-disabled system | awk -F'\"' '/=> (disabled|true)/ {print $2}' | while read -r label; do\n")
	b.WriteString("  launchctl enable \"system/$label\" && echo \"re-enabled $label\"\n")
	b.WriteString("done\n")
	fmt.Fprintf(&b, "rm -f %s\n", PIDPath)
	b.WriteString("shutdown -r now\n")
	return b.String()
}

// ArmSwitch 上传并以脱离会话的方式启动开关，确认进程存活后返回
// 任何一步失败都是 DeterministicError：不能在没有安全网的情况下继续
func ArmSwitch(ctx context.Context, e executor.Executor, timeout time.Duration) (*Switch, error) {
	if err := e.WriteFile(ctx, ScriptPath, []byte(SwitchScript(timeout)), 0700, executor.Elevated()); err != nil {
		return nil, failure.Deterministic("arm", "upload switch script: %v", err)
	}

	launch := fmt.Sprintf("rm -f %s && nohup /bin/sh %s > %s 2>&1 < /dev/null &", PIDPath, ScriptPath, LogPath)
	res, err := e.Execute(ctx, launch, executor.Elevated())
	if err != nil {
		return nil, failure.Deterministic("arm", "launch switch: %v", err)
	}
	if !res.OK() {
		return nil, failure.Deterministic("arm", "launch switch exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	pid, err := pollPID(ctx, e)
	if err != nil {
		return nil, err
	}

	alive, err := isAlive(ctx, e, pid)
	if err != nil {
		return nil, failure.Deterministic("arm", "liveness probe: %v", err)
	}
	if !alive {
		return nil, failure.Deterministic("arm", "switch process %d is not alive", pid)
	}

	sw := &Switch{PID: pid, Timeout: timeout, ArmedAt: time.Now().UTC()}
	logger.Logger.Info("dead man's switch armed", "pid", pid, "timeout", timeout)
	return sw, nil
}

func pollPID(ctx context.Context, e executor.Executor) (int, error) {
	for i, delay := range pollBackoff {
		if err := sleepFunc(ctx, delay); err != nil {
			return 0, failure.Deterministic("arm", "waiting for switch pid: %v", err)
		}
		pid, ok, err := readPID(ctx, e)
		if err != nil {
			return 0, failure.Deterministic("arm", "read switch pid: %v", err)
		}
		if ok {
			return pid, nil
		}
		logger.Logger.Debug("switch pid not written yet", "poll", i+1)
	}
	return 0, failure.Deterministic("arm", "switch did not record its pid in %s", PIDPath)
}

func readPID(ctx context.Context, e executor.Executor) (int, bool, error) {
	res, err := e.Execute(ctx, "cat "+PIDPath, executor.Elevated())
	if err != nil {
		return 0, false, err
	}
	if !res.OK() {
		return 0, false, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

func isAlive(ctx context.Context, e executor.Executor, pid int) (bool, error) {
	res, err := e.Execute(ctx, fmt.Sprintf("kill -0 %d", pid), executor.Elevated())
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// DisarmSwitch 杀掉开关进程并清理文件
// 进程已经不存在时返回 false，不视为错误
func DisarmSwitch(ctx context.Context, e executor.Executor, pid int) (bool, error) {
	res, err := e.Execute(ctx, fmt.Sprintf("kill -9 %d", pid), executor.Elevated())
	if err != nil {
		return false, err
	}
	if _, err := e.Execute(ctx, fmt.Sprintf("rm -f %s %s", ScriptPath, PIDPath), executor.Elevated()); err != nil {
		logger.Logger.Warn("failed to remove switch files", "err", err)
	}
	if !res.OK() {
		logger.Logger.Warn("switch process already gone", "pid", pid, "stderr", strings.TrimSpace(res.Stderr))
		return false, nil
	}
	logger.Logger.Info("dead man's switch disarmed", "pid", pid)
	return true, nil
}

// InspectSwitch 读取 PID 文件并探测进程是否存活
func InspectSwitch(ctx context.Context, e executor.Executor) (SwitchStatus, error) {
	pid, ok, err := readPID(ctx, e)
	if err != nil || !ok {
		return SwitchStatus{}, err
	}
	alive, err := isAlive(ctx, e, pid)
	if err != nil {
		return SwitchStatus{}, err
	}
	return SwitchStatus{Armed: true, PID: pid, Alive: alive}, nil
}

// FileReader 远程文件读取，由 sftp.Client 实现
type FileReader interface {
	ReadFile(ctx context.Context, remotePath string) ([]byte, error)
}

// FetchSwitchLog 读取开关的输出日志
func FetchSwitchLog(ctx context.Context, r FileReader) ([]byte, error) {
	data, err := r.ReadFile(ctx, LogPath)
	if err != nil {
		return nil, fmt.Errorf("fetch switch log: %w", err)
	}
	return data, nil
}
