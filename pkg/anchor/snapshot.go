package anchor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
)

// tmutil localsnapshot 输出形如 "Created local snapshot with date: 2024-05-01-120000"
var snapshotIDPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}-\d{6}`)

const snapshotTimeout = 2 * time.Minute

// CreateSnapshot 创建本地 APFS 快照并返回其标识，快照只用于取证，不会自动回滚
func CreateSnapshot(ctx context.Context, e executor.Executor) (string, error) {
	res, err := e.Execute(ctx, "tmutil localsnapshot", executor.Elevated(), executor.WithTimeout(snapshotTimeout))
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", failure.Deterministic("snapshot", "tmutil exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseSnapshotID(res.Stdout)
}

// ParseSnapshotID 从 tmutil 输出中提取时间戳形式的快照标识
func ParseSnapshotID(output string) (string, error) {
	id := snapshotIDPattern.FindString(output)
	if id == "" {
		return "", failure.Deterministic("snapshot", "no snapshot id in tmutil output %q", strings.TrimSpace(output))
	}
	logger.Logger.Info("snapshot created", "id", id)
	return id, nil
}
