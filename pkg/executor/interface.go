package executor

import (
	"context"
	"io/fs"
	"time"
)

// DefaultTimeout 单条远程命令的默认超时
const DefaultTimeout = 30 * time.Second

// Result 远程命令的执行结果
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK 退出码为 0
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Executor 所有远程操作都经由它完成
//
// Execute 只在传输层出问题时返回 error，命令本身的非零退出码通过 Result 返回
type Executor interface {
	Execute(ctx context.Context, cmd string, opts ...Option) (Result, error)
	// WriteFile 将 content 编码后通过单条远程命令写入 path 并设置权限
	WriteFile(ctx context.Context, path string, content []byte, mode fs.FileMode, opts ...Option) error
}

// Options 单次调用的选项
type Options struct {
	Elevate bool
	Timeout time.Duration
}

type Option func(*Options)

// Elevated 以 root 权限执行
func Elevated() Option {
	return func(o *Options) {
		o.Elevate = true
	}
}

// WithTimeout 覆盖默认超时
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// NewOptions 应用选项并填充默认值
func NewOptions(opts ...Option) Options {
	o := Options{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
