package config

import (
	"slices"
	"strings"
)

// CoreServices 无论如何都不允许被禁用的 launchd 服务
var CoreServices = []string{
	// 远程访问
	"com.openssh.sshd",
	// 网络
	"com.apple.configd",
	"com.apple.mDNSResponder",
	"com.apple.mDNSResponderHelper",
	"com.apple.networkd",
	"com.apple.symptomsd",
	// 文件系统完整性
	"com.apple.fseventsd",
	"com.apple.diskarbitrationd",
	"com.apple.kextd",
	"com.apple.apfsd",
	// init 与日志
	"com.apple.launchd",
	"com.apple.logd",
	"com.apple.syslogd",
	"com.apple.notifyd",
	"com.apple.opendirectoryd",
	// 认证与加密
	"com.apple.securityd",
	"com.apple.trustd",
	"com.apple.authd",
	"com.apple.coreservicesd",
	"com.apple.sandboxd",
	"com.apple.powerd",
}

// CorePrefixes launchd 会为每个会话派生带唯一后缀的实例 (如 com.openssh.sshd.<UUID>)
var CorePrefixes = []string{
	"com.openssh.sshd.",
	"com.apple.xpc.launchd.",
}

// WifiSurvivalServices 开启 wifi_survival 时额外保留
var WifiSurvivalServices = []string{
	"com.apple.airportd",
	"com.apple.wifid",
	"com.apple.wifip2pd",
	"com.apple.wifianalyticsd",
	"com.apple.eapolcfg_auth",
	"com.apple.corewlan",
}

// IsCore 精确或前缀匹配不可变核心集合
func IsCore(label string) bool {
	if slices.Contains(CoreServices, label) {
		return true
	}
	return hasAnyPrefix(label, CorePrefixes)
}

// Allowlist 允许在剥离后继续运行的服务集合
type Allowlist struct {
	names    map[string]struct{}
	prefixes []string
}

// NewAllowlist 只包含给定名称，不会自动并入核心集合
func NewAllowlist(names ...string) *Allowlist {
	a := &Allowlist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		a.names[n] = struct{}{}
	}
	return a
}

// MergedAllowlist = 核心集合 ∪ extra ∪ (wifi ? Wi-Fi 集合 : ∅)，核心前缀一并带入
func MergedAllowlist(extra []string, wifi bool) *Allowlist {
	a := NewAllowlist(CoreServices...)
	a.prefixes = slices.Clone(CorePrefixes)
	for _, n := range extra {
		a.names[n] = struct{}{}
	}
	if wifi {
		for _, n := range WifiSurvivalServices {
			a.names[n] = struct{}{}
		}
	}
	return a
}

// Permits 判断服务是否允许继续运行：精确匹配或前缀匹配
func (a *Allowlist) Permits(label string) bool {
	if _, ok := a.names[label]; ok {
		return true
	}
	return hasAnyPrefix(label, a.prefixes)
}

// Names 返回排序后的精确名称
func (a *Allowlist) Names() []string {
	out := make([]string, 0, len(a.names))
	for n := range a.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Prefixes 返回前缀规则的副本
func (a *Allowlist) Prefixes() []string {
	return slices.Clone(a.prefixes)
}

func (a *Allowlist) Len() int {
	return len(a.names)
}

func hasAnyPrefix(label string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	return false
}
