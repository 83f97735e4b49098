package orchestrator

import (
	"context"
	"fmt"

	"github.com/wentf9/nirvana/pkg/anchor"
	"github.com/wentf9/nirvana/pkg/audit"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
)

// Outcome 一次运行的结果
type Outcome struct {
	Final     State
	AuditPath string
	// Err 导致 ABORTED 的错误，NIRVANA 时为 nil
	Err error
}

// Orchestrator 按固定顺序驱动一次剥离：
//
//	DRESSED -connect-> PEEPING -verify,snapshot,arm-> PINNED -strip-> STRIPPING
//	-launch-> BARE_METAL -disarm-> NIRVANA
//
// 任一步失败进入 ABORTED。ABORTED 从不解除开关，恢复交给开关自己的计时器
type Orchestrator struct {
	cfg  *config.RunConfig
	deps Deps
	rec  audit.Recorder

	// OnTransition 每次状态迁移后调用，可为 nil
	OnTransition func(from, to State)

	state   State
	session Session
	sw      *anchor.Switch
}

func New(cfg *config.RunConfig, rec audit.Recorder, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps, rec: rec, state: StateDressed}
}

// State 当前状态
func (o *Orchestrator) State() State {
	return o.state
}

// Run 执行整个流程；会话在所有路径上关闭，审计恰好 finalize 一次
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	defer o.closeSession()

	err := o.loop(ctx)
	if err != nil {
		o.abort(err)
	}

	path, ferr := o.rec.Finalize(o.state.String())
	if ferr != nil {
		logger.Logger.Error("failed to write audit", "err", ferr)
	}
	return Outcome{Final: o.state, AuditPath: path, Err: err}
}

func (o *Orchestrator) loop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected fault in state %s: %v", o.state, r)
		}
	}()
	for !o.state.Terminal() {
		next, err := o.advance(ctx, o.state)
		if err != nil {
			return err
		}
		o.transition(next)
	}
	return nil
}

// advance 执行离开 s 所需的工作，返回下一个状态或带类型的失败
func (o *Orchestrator) advance(ctx context.Context, s State) (State, error) {
	switch s {
	case StateDressed:
		session, err := o.deps.Connect(ctx, o.cfg)
		if err != nil {
			return s, err
		}
		o.session = session
		return StatePeeping, nil

	case StatePeeping:
		if err := o.deps.Verify(ctx, o.session, o.cfg); err != nil {
			return s, err
		}
		if o.cfg.SkipSnapshot {
			logger.Logger.Info("snapshot skipped")
		} else {
			id, err := o.deps.Snapshot(ctx, o.session)
			if err != nil {
				return s, err
			}
			o.rec.SnapshotCreated(id)
		}
		sw, err := o.deps.Arm(ctx, o.session, o.cfg.SwitchTimeout)
		if err != nil {
			return s, err
		}
		o.sw = sw
		o.rec.SwitchArmed(sw.PID, sw.Timeout)
		return StatePinned, nil

	case StatePinned:
		actions, err := o.deps.Strip(ctx, o.session, o.cfg.Allowlist)
		for _, a := range actions {
			o.rec.DaemonAction(a)
		}
		if err != nil {
			return s, err
		}
		return StateStripping, nil

	case StateStripping:
		if !o.cfg.HasWorkload() {
			return StateBareMetal, nil
		}
		pid, err := o.deps.Launch(ctx, o.session, o.cfg)
		if err != nil {
			return s, err
		}
		o.rec.WorkloadLaunched(o.cfg.WorkloadBinary, pid)
		return StateBareMetal, nil

	case StateBareMetal:
		killed, err := o.deps.Disarm(ctx, o.session, o.sw.PID)
		if err != nil {
			return s, err
		}
		o.rec.SwitchDisarmed(o.sw.PID, killed)
		return StateNirvana, nil
	}
	return s, fmt.Errorf("no transition out of state %s", s)
}

func (o *Orchestrator) transition(next State) {
	logger.Logger.Info("state transition", "host", o.cfg.Host, "from", o.state, "to", next)
	o.rec.Transition(o.state.String(), next.String())
	prev := o.state
	o.state = next
	if o.OnTransition != nil {
		o.OnTransition(prev, next)
	}
}

func (o *Orchestrator) abort(err error) {
	kind := failure.Classify(err)
	logger.Logger.Error("run aborted", "host", o.cfg.Host, "state", o.state, "kind", kind, "err", err)
	o.rec.Failure(kind, err)
	o.transition(StateAborted)
	if o.sw != nil {
		logger.Logger.Warn("dead man's switch left armed, target will self-heal", "pid", o.sw.PID, "timeout", o.sw.Timeout)
	}
}

func (o *Orchestrator) closeSession() {
	if o.session == nil {
		return
	}
	if err := o.session.Close(); err != nil {
		logger.Logger.Debug("close session", "err", err)
	}
}
