package sanitizer

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
)

// "com.apple.foo" => disabled (旧版本为 => true)
var disabledLine = regexp.MustCompile(`^\s*"([^"]+)"\s*=>\s*(disabled|true)\s*$`)

// ActiveServices 解析 launchctl list，跳过表头和 PID 为 "-" 的行 (已加载但未运行)
func ActiveServices(ctx context.Context, e executor.Executor) (map[string]struct{}, error) {
	res, err := e.Execute(ctx, "launchctl list", executor.Elevated())
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, failure.Deterministic("list", "launchctl list exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseActive(res.Stdout), nil
}

// ParseActive 解析 launchctl list 的输出
func ParseActive(output string) map[string]struct{} {
	active := make(map[string]struct{})
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if fields[0] == "PID" || fields[0] == "-" {
			continue
		}
		active[fields[2]] = struct{}{}
	}
	return active
}

// DisabledServices 列出 system 域中所有被禁用的服务，不限于本工具禁用的
func DisabledServices(ctx context.Context, e executor.Executor) ([]string, error) {
	res, err := e.Execute(ctx, "launchctl print-disabled system", executor.Elevated())
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, failure.Deterministic("list-disabled", "launchctl print-disabled exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseDisabled(res.Stdout), nil
}

// ParseDisabled 解析 launchctl print-disabled 的输出，结果已排序
func ParseDisabled(output string) []string {
	var labels []string
	for _, line := range strings.Split(output, "\n") {
		if m := disabledLine.FindStringSubmatch(line); m != nil {
			labels = append(labels, m[1])
		}
	}
	slices.Sort(labels)
	return slices.Compact(labels)
}

// ComputeBloat active − allowlist，按名称排序
func ComputeBloat(active map[string]struct{}, allow *config.Allowlist) []string {
	var bloat []string
	for label := range active {
		if !allow.Permits(label) {
			bloat = append(bloat, label)
		}
	}
	slices.Sort(bloat)
	return bloat
}

func target(label string) string {
	return executor.ShellQuote("system/" + label)
}

// batch 用 " ; " 连接，单条失败不影响后续
func batch(labels []string, verbs ...string) string {
	parts := make([]string, 0, len(labels)*len(verbs))
	for _, l := range labels {
		for _, v := range verbs {
			parts = append(parts, fmt.Sprintf("launchctl %s %s", v, target(l)))
		}
	}
	return strings.Join(parts, " ; ")
}
