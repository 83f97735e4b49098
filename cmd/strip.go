package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/audit"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/logger"
	"github.com/wentf9/nirvana/pkg/orchestrator"
	"golang.org/x/term"
)

type StripOptions struct {
	*utils.GlobalOptions
	ConfigPath string
}

func NewStripOptions() *StripOptions {
	return &StripOptions{GlobalOptions: globalOpts}
}

func NewCmdStrip() *cobra.Command {
	o := NewStripOptions()
	cmd := &cobra.Command{
		Use:   "strip <config>",
		Short: "执行完整流程: 预检、快照、武装开关、剥离服务、启动负载、解除开关",
		Long: `按配置文件对目标主机执行完整的剥离流程。
状态依次为 DRESSED -> PEEPING -> PINNED -> STRIPPING -> BARE_METAL -> NIRVANA。
任何一步失败进入 ABORTED, 已武装的开关不会被解除, 到时后它会恢复所有服务并重启主机。
用法示例:
nirvana strip target.yaml
nirvana strip --ask-pass target.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(args)
			return o.Run(cmd)
		},
	}
	return cmd
}

func (o *StripOptions) Complete(args []string) {
	o.ConfigPath = args[0]
}

func (o *StripOptions) Run(cmd *cobra.Command) error {
	cfg, err := utils.LoadRunConfig(o.ConfigPath, o.GlobalOptions)
	if err != nil {
		return err
	}
	for _, finding := range config.Lint(cfg) {
		logger.Logger.Warn("config lint", "finding", finding)
	}

	rec := audit.NewFileRecorder(o.AuditDir, cfg.Host)
	orch := orchestrator.New(cfg, rec, orchestrator.DefaultDeps())
	bar := newStateBar()
	if bar != nil {
		orch.OnTransition = func(_, to orchestrator.State) {
			bar.Describe(to.String())
			if to != orchestrator.StateAborted {
				_ = bar.Add(1)
			}
		}
	}
	out := orch.Run(cmd.Context())
	if bar != nil {
		_ = bar.Exit()
		fmt.Fprintln(os.Stderr)
	}

	fmt.Printf("最终状态: %s\n", out.Final)
	if out.Err != nil {
		printFailure(out.Err)
		if out.AuditPath != "" {
			fmt.Fprintf(os.Stderr, "审计文件: %s\n", out.AuditPath)
		}
		return reportedError{out.Err}
	}
	if out.AuditPath != "" {
		fmt.Printf("审计文件: %s\n", out.AuditPath)
	}
	return nil
}

// newStateBar 在终端上显示状态机进度，非终端时返回 nil
func newStateBar() *progressbar.ProgressBar {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	// DRESSED 到 NIRVANA 共 5 次迁移
	return progressbar.NewOptions(5,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(orchestrator.StateDressed.String()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(20),
	)
}

func init() {
	rootCmd.AddCommand(NewCmdStrip())
}

