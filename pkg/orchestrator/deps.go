package orchestrator

import (
	"context"
	"time"

	"github.com/wentf9/nirvana/pkg/anchor"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/models"
	"github.com/wentf9/nirvana/pkg/preflight"
	"github.com/wentf9/nirvana/pkg/sanitizer"
	"github.com/wentf9/nirvana/pkg/ssh"
	"github.com/wentf9/nirvana/pkg/workload"
)

// Session 运行期间持有的远程会话
type Session interface {
	executor.Executor
	Close() error
}

// Deps 编排器依赖的各个步骤，测试中替换为假实现
type Deps struct {
	Connect  func(ctx context.Context, cfg *config.RunConfig) (Session, error)
	Verify   func(ctx context.Context, e executor.Executor, cfg *config.RunConfig) error
	Snapshot func(ctx context.Context, e executor.Executor) (string, error)
	Arm      func(ctx context.Context, e executor.Executor, timeout time.Duration) (*anchor.Switch, error)
	Disarm   func(ctx context.Context, e executor.Executor, pid int) (bool, error)
	Strip    func(ctx context.Context, e executor.Executor, allow *config.Allowlist) ([]models.DaemonAction, error)
	Launch   func(ctx context.Context, e executor.Executor, cfg *config.RunConfig) (int, error)
}

// DefaultDeps 连接真实的 SSH 传输层和各功能包
func DefaultDeps() Deps {
	return Deps{
		Connect: func(ctx context.Context, cfg *config.RunConfig) (Session, error) {
			client, err := ssh.NewConnector().Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Verify:   preflight.VerifyAnatomy,
		Snapshot: anchor.CreateSnapshot,
		Arm:      anchor.ArmSwitch,
		Disarm:   anchor.DisarmSwitch,
		Strip:    sanitizer.Strip,
		Launch:   workload.Launch,
	}
}
