package sanitizer

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
	"github.com/wentf9/nirvana/pkg/models"
)

// 一次禁用上百个服务，给批量命令更长的超时
const batchTimeout = 5 * time.Minute

// Strip 禁用所有不在 allow 中的运行中服务
//
// 只要待禁用集合里出现核心服务就立即失败，不发出任何修改命令。
// 禁用后重新查询，仍在运行的服务记为 warning，不重试
func Strip(ctx context.Context, e executor.Executor, allow *config.Allowlist) ([]models.DaemonAction, error) {
	active, err := ActiveServices(ctx, e)
	if err != nil {
		return nil, err
	}
	bloat := ComputeBloat(active, allow)

	var endangered []string
	for _, label := range bloat {
		if config.IsCore(label) {
			endangered = append(endangered, label)
		}
	}
	if len(endangered) > 0 {
		return nil, failure.Deterministic("strip", "refusing to disable immutable core services: %s", strings.Join(endangered, ", "))
	}

	actions := []models.DaemonAction{}
	if len(bloat) == 0 {
		logger.Logger.Info("nothing to strip", "active", len(active))
		return actions, nil
	}

	logger.Logger.Info("stripping services", "count", len(bloat))
	res, err := e.Execute(ctx, batch(bloat, "disable", "bootout"), executor.Elevated(), executor.WithTimeout(batchTimeout))
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		// 批量命令的退出码只反映最后一条，后面的复查才是准确结果
		logger.Logger.Warn("batched disable reported failures", "exit", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
	}
	for _, label := range bloat {
		actions = append(actions, models.NewDaemonAction(label, models.ActionDisable, ""))
	}

	after, err := ActiveServices(ctx, e)
	if err != nil {
		return actions, err
	}
	survivors := ComputeBloat(after, allow)
	for _, label := range survivors {
		logger.Logger.Warn("service still running after disable", "label", label)
		actions = append(actions, models.NewDaemonAction(label, models.ActionWarning, "still running after disable"))
	}
	return actions, nil
}

// RestoreNamed 重新启用指定服务
func RestoreNamed(ctx context.Context, e executor.Executor, names []string) ([]models.DaemonAction, error) {
	labels := slices.Compact(slices.Sorted(slices.Values(names)))
	actions := []models.DaemonAction{}
	if len(labels) == 0 {
		return actions, nil
	}
	res, err := e.Execute(ctx, batch(labels, "enable"), executor.Elevated(), executor.WithTimeout(batchTimeout))
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		logger.Logger.Warn("batched enable reported failures", "exit", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
	}
	for _, label := range labels {
		actions = append(actions, models.NewDaemonAction(label, models.ActionRestore, ""))
	}
	return actions, nil
}
