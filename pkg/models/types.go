package models

import "time"

// Target 定义目标主机的连接与认证信息
type Target struct {
	Host           string `yaml:"host"`
	Port           uint16 `yaml:"port,omitempty"`
	User           string `yaml:"user"`
	Password       string `yaml:"password,omitempty"`   // 登录密码，可为 ENC: 加密值
	KeyPath        string `yaml:"key_path,omitempty"`   // 私钥路径
	Passphrase     string `yaml:"passphrase,omitempty"` // 私钥密码
	SudoPassword   string `yaml:"sudo_password,omitempty"`
	KnownHosts     string `yaml:"known_hosts,omitempty"`
	StrictHostKey  bool   `yaml:"strict_host_key,omitempty"`
	ConnectTimeout int    `yaml:"connect_timeout,omitempty"` // 秒
}

// Anatomy 定义预检期望，空字段表示不检查
type Anatomy struct {
	OS         string `yaml:"os,omitempty"`          // sw_vers -productName
	Arch       string `yaml:"arch,omitempty"`        // uname -m
	MinVersion string `yaml:"min_version,omitempty"` // sw_vers -productVersion 的下限
	SIP        string `yaml:"sip,omitempty"`         // "enabled" / "disabled"
}

// Safety 定义安全网参数
type Safety struct {
	DMSTimeout   int  `yaml:"dms_timeout,omitempty"` // 秒, 60-3600
	SkipSnapshot bool `yaml:"skip_snapshot,omitempty"`
}

// Workload 定义可选的特权负载
type Workload struct {
	Binary   string `yaml:"binary,omitempty"`
	Priority *int   `yaml:"priority,omitempty"` // -20..19, 缺省 -20
}

// File 对应 yaml 配置文件的顶层结构
type File struct {
	Target       Target   `yaml:"target"`
	Anatomy      Anatomy  `yaml:"anatomy,omitempty"`
	Safety       Safety   `yaml:"safety,omitempty"`
	Allow        []string `yaml:"allow,omitempty"`
	WifiSurvival bool     `yaml:"wifi_survival,omitempty"`
	Workload     Workload `yaml:"workload,omitempty"`
}

// ActionType 服务操作的类型
type ActionType string

const (
	ActionDisable ActionType = "disable"
	ActionRestore ActionType = "restore"
	ActionWarning ActionType = "warning"
)

// DaemonAction 审计记录中的单条服务操作
type DaemonAction struct {
	Label     string     `yaml:"label"`
	Action    ActionType `yaml:"action"`
	Timestamp time.Time  `yaml:"timestamp"`
	Detail    string     `yaml:"detail,omitempty"`
}

// NewDaemonAction 以当前时间创建一条记录
func NewDaemonAction(label string, action ActionType, detail string) DaemonAction {
	return DaemonAction{
		Label:     label,
		Action:    action,
		Timestamp: time.Now().UTC(),
		Detail:    detail,
	}
}
