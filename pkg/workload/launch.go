package workload

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
)

// LogPath 负载输出在目标机上的位置
const LogPath = "/var/tmp/nirvana/workload.log"

// Command 以指定优先级脱离会话启动负载并打印其 PID
func Command(binary string, priority int) string {
	return fmt.Sprintf("mkdir -p /var/tmp/nirvana && nohup nice -n %d %s > %s 2>&1 < /dev/null & echo $!",
		priority, executor.ShellQuote(binary), LogPath)
}

// Launch 提权启动负载，返回远端 PID
func Launch(ctx context.Context, e executor.Executor, cfg *config.RunConfig) (int, error) {
	if !cfg.HasWorkload() {
		return 0, failure.Deterministic("launch", "no workload binary configured")
	}
	res, err := e.Execute(ctx, Command(cfg.WorkloadBinary, cfg.Priority), executor.Elevated())
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, failure.Deterministic("launch", "launch %s exited %d: %s", cfg.WorkloadBinary, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil || pid <= 0 {
		return 0, failure.Deterministic("launch", "unexpected pid output %q", strings.TrimSpace(res.Stdout))
	}
	logger.Logger.Info("workload launched", "binary", cfg.WorkloadBinary, "pid", pid, "priority", cfg.Priority)
	return pid, nil
}
