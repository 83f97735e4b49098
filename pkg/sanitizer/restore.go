package sanitizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/logger"
	"github.com/wentf9/nirvana/pkg/models"
)

// RestorePath 全量恢复脚本在目标机上的路径
const RestorePath = "/var/tmp/nirvana/restore.sh"

const restoredMarker = "restored "

// RestoreScript 为每个服务生成一行 enable，成功时输出标记行
func RestoreScript(labels []string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	for _, l := range labels {
		fmt.Fprintf(&b, "launchctl enable %s && echo %s\n", target(l), executor.ShellQuote(restoredMarker+l))
	}
	return b.String()
}

// RestoreAll 重新启用目标机上所有被禁用的服务，与是否由本工具禁用无关
// 没有被禁用的服务时不发出任何修改命令
func RestoreAll(ctx context.Context, e executor.Executor) ([]models.DaemonAction, error) {
	labels, err := DisabledServices(ctx, e)
	if err != nil {
		return nil, err
	}
	actions := []models.DaemonAction{}
	if len(labels) == 0 {
		logger.Logger.Info("no disabled services found")
		return actions, nil
	}

	res, err := executor.RunScript(ctx, e, RestorePath, RestoreScript(labels), executor.Elevated(), executor.WithTimeout(batchTimeout))
	if err != nil {
		return nil, err
	}

	restored := make(map[string]bool, len(labels))
	for _, line := range strings.Split(res.Stdout, "\n") {
		if label, ok := strings.CutPrefix(strings.TrimSpace(line), restoredMarker); ok {
			restored[label] = true
		}
	}
	for _, label := range labels {
		if restored[label] {
			actions = append(actions, models.NewDaemonAction(label, models.ActionRestore, ""))
			continue
		}
		logger.Logger.Warn("failed to re-enable service", "label", label)
		actions = append(actions, models.NewDaemonAction(label, models.ActionWarning, "enable failed"))
	}
	return actions, nil
}
