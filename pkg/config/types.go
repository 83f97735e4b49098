package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
	"github.com/wentf9/nirvana/pkg/models"
)

const (
	DefaultPort           = 22
	DefaultConnectTimeout = 15 * time.Second

	MinSwitchTimeout     = 60 * time.Second
	MaxSwitchTimeout     = 3600 * time.Second
	DefaultSwitchTimeout = 300 * time.Second

	MinPriority     = -20
	MaxPriority     = 19
	DefaultPriority = -20
)

// RunConfig 一次运行的只读描述，由 New 构造后不再修改
type RunConfig struct {
	// 连接
	Host           string
	Port           uint16
	User           string
	Password       string
	KeyPath        string
	Passphrase     string
	SudoPassword   string
	KnownHosts     string
	StrictHostKey  bool
	ConnectTimeout time.Duration

	// 预检期望
	ExpectedOS   string
	ExpectedArch string
	MinVersion   string
	RequireSIP   string

	// 安全网
	SwitchTimeout time.Duration
	SkipSnapshot  bool

	ExtraAllowed []string
	WifiSurvival bool

	WorkloadBinary string
	Priority       int

	// Allowlist 由 MergedAllowlist 计算，运行期间只读
	Allowlist *Allowlist
}

// New 校验原始配置并生成 RunConfig
// 两种凭据都为空、或优先级越界时返回 *failure.ValidationError；DMS 超时只做钳制
func New(f *models.File) (*RunConfig, error) {
	if f == nil {
		return nil, &failure.ValidationError{Field: "target", Reason: "config is empty"}
	}
	t := f.Target
	if t.Password == "" && strings.TrimSpace(t.KeyPath) == "" {
		return nil, &failure.ValidationError{Field: "target.password/target.key_path", Reason: "one credential is required"}
	}

	priority := DefaultPriority
	if f.Workload.Priority != nil {
		priority = *f.Workload.Priority
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, &failure.ValidationError{
			Field:  "workload.priority",
			Reason: fmt.Sprintf("%d out of range [%d, %d]", priority, MinPriority, MaxPriority),
		}
	}

	extra := normalizeLabels(f.Allow)
	cfg := &RunConfig{
		Host:           strings.TrimSpace(t.Host),
		Port:           t.Port,
		User:           strings.TrimSpace(t.User),
		Password:       t.Password,
		KeyPath:        expandHomeDir(strings.TrimSpace(t.KeyPath)),
		Passphrase:     t.Passphrase,
		SudoPassword:   t.SudoPassword,
		KnownHosts:     expandHomeDir(strings.TrimSpace(t.KnownHosts)),
		StrictHostKey:  t.StrictHostKey,
		ConnectTimeout: time.Duration(t.ConnectTimeout) * time.Second,
		ExpectedOS:     strings.TrimSpace(f.Anatomy.OS),
		ExpectedArch:   strings.TrimSpace(f.Anatomy.Arch),
		MinVersion:     strings.TrimSpace(f.Anatomy.MinVersion),
		RequireSIP:     strings.ToLower(strings.TrimSpace(f.Anatomy.SIP)),
		SwitchTimeout:  clampSwitchTimeout(f.Safety.DMSTimeout),
		SkipSnapshot:   f.Safety.SkipSnapshot,
		ExtraAllowed:   extra,
		WifiSurvival:   f.WifiSurvival,
		WorkloadBinary: strings.TrimSpace(f.Workload.Binary),
		Priority:       priority,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	cfg.Allowlist = MergedAllowlist(cfg.ExtraAllowed, cfg.WifiSurvival)
	return cfg, nil
}

// Addr 返回 host:port
func (c *RunConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// HasWorkload 是否配置了负载
func (c *RunConfig) HasWorkload() bool {
	return c.WorkloadBinary != ""
}

// ElevationPassword sudo 使用的密码，显式配置优先，其次是登录密码
func (c *RunConfig) ElevationPassword() string {
	if c.SudoPassword != "" {
		return c.SudoPassword
	}
	return c.Password
}

// Lint 返回不阻止运行、但大概率是配置失误的问题
func Lint(c *RunConfig) []string {
	var findings []string
	if c.Host == "" {
		findings = append(findings, "target.host is empty")
	}
	if c.User == "" {
		findings = append(findings, "target.user is empty")
	}
	if c.KeyPath != "" && c.ElevationPassword() == "" {
		findings = append(findings, "key auth without sudo_password: elevation requires passwordless sudo on the target")
	}
	if c.StrictHostKey && c.KnownHosts == "" {
		findings = append(findings, "strict_host_key is set but known_hosts is empty")
	}
	for _, label := range c.ExtraAllowed {
		if IsCore(label) {
			findings = append(findings, fmt.Sprintf("allow entry '%s' is already in the immutable core set", label))
		}
	}
	return findings
}

func clampSwitchTimeout(seconds int) time.Duration {
	if seconds == 0 {
		return DefaultSwitchTimeout
	}
	d := time.Duration(seconds) * time.Second
	switch {
	case d < MinSwitchTimeout:
		logger.Logger.Warn("dms_timeout below minimum, clamped", "configured", d, "used", MinSwitchTimeout)
		return MinSwitchTimeout
	case d > MaxSwitchTimeout:
		logger.Logger.Warn("dms_timeout above maximum, clamped", "configured", d, "used", MaxSwitchTimeout)
		return MaxSwitchTimeout
	}
	return d
}

// normalizeLabels 去空白、去重并保持顺序，nil 归一为空切片
func normalizeLabels(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// expandHomeDir 展开开头的 ~
func expandHomeDir(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
