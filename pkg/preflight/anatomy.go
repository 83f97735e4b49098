package preflight

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

// Anatomy 目标机的实际情况
type Anatomy struct {
	OS      string
	Version string
	Arch    string
	// SIP "enabled" 或 "disabled"，无法识别时为原始输出
	SIP string
}

func (a Anatomy) String() string {
	return fmt.Sprintf("%s %s (%s, SIP %s)", a.OS, a.Version, a.Arch, a.SIP)
}

// Probe 采集目标机信息，不做任何比对
func Probe(ctx context.Context, e executor.Executor) (Anatomy, error) {
	var a Anatomy
	probes := []struct {
		cmd string
		dst *string
	}{
		{"sw_vers -productName", &a.OS},
		{"sw_vers -productVersion", &a.Version},
		{"uname -m", &a.Arch},
		{"csrutil status", &a.SIP},
	}
	for _, p := range probes {
		res, err := e.Execute(ctx, p.cmd)
		if err != nil {
			return a, err
		}
		if !res.OK() {
			return a, failure.Deterministic("preflight", "%s exited %d: %s", p.cmd, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		*p.dst = strings.TrimSpace(res.Stdout)
	}
	a.SIP = parseSIP(a.SIP)
	return a, nil
}

// System Integrity Protection status: enabled.
func parseSIP(out string) string {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "status: enabled"):
		return "enabled"
	case strings.Contains(lower, "status: disabled"):
		return "disabled"
	}
	return out
}

// VerifyAnatomy 采集并比对，任一项不符都是 DeterministicError
func VerifyAnatomy(ctx context.Context, e executor.Executor, cfg *config.RunConfig) error {
	a, err := Probe(ctx, e)
	if err != nil {
		return err
	}
	logger.Logger.Info("target anatomy", "os", a.OS, "version", a.Version, "arch", a.Arch, "sip", a.SIP)
	return Check(a, cfg)
}

// Check 按配置比对，未配置的项跳过
func Check(a Anatomy, cfg *config.RunConfig) error {
	var mismatches []string
	if cfg.ExpectedOS != "" && !strings.EqualFold(cfg.ExpectedOS, a.OS) {
		mismatches = append(mismatches, fmt.Sprintf("os %q, expected %q", a.OS, cfg.ExpectedOS))
	}
	if cfg.ExpectedArch != "" && cfg.ExpectedArch != a.Arch {
		mismatches = append(mismatches, fmt.Sprintf("arch %q, expected %q", a.Arch, cfg.ExpectedArch))
	}
	if cfg.MinVersion != "" {
		cmp, err := compareVersions(a.Version, cfg.MinVersion)
		if err != nil {
			mismatches = append(mismatches, err.Error())
		} else if cmp < 0 {
			mismatches = append(mismatches, fmt.Sprintf("version %s is older than %s", a.Version, cfg.MinVersion))
		}
	}
	if cfg.RequireSIP != "" && !strings.EqualFold(cfg.RequireSIP, a.SIP) {
		mismatches = append(mismatches, fmt.Sprintf("SIP %q, expected %q", a.SIP, cfg.RequireSIP))
	}
	if len(mismatches) > 0 {
		return failure.Deterministic("preflight", "anatomy mismatch: %s", strings.Join(mismatches, "; "))
	}
	return nil
}

// compareVersions 按数字逐段比较点分版本号，缺失的段视为 0
func compareVersions(a, b string) (int, error) {
	pa, err := versionParts(a)
	if err != nil {
		return 0, err
	}
	pb, err := versionParts(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func versionParts(v string) ([]int, error) {
	fields := strings.Split(strings.TrimSpace(v), ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("unparseable version %q", v)
		}
		parts = append(parts, n)
	}
	return parts, nil
}
