package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/audit"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/models"
	"github.com/wentf9/nirvana/pkg/sanitizer"
	"github.com/wentf9/nirvana/pkg/ssh"
)

type RestoreOptions struct {
	*utils.GlobalOptions
	ConfigPath string
	Only       []string
}

func NewCmdRestore() *cobra.Command {
	o := &RestoreOptions{GlobalOptions: globalOpts}
	cmd := &cobra.Command{
		Use:   "restore <config> [--only label,...]",
		Short: "重新启用目标主机上所有被禁用的服务",
		Long: `手动恢复: 重新启用目标主机上所有被禁用的 launchd 服务,
不限于本工具禁用的服务。使用 --only 时只恢复指定服务。
用法示例:
nirvana restore target.yaml
nirvana restore target.yaml --only com.apple.Spotlight,com.apple.bird`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.ConfigPath = args[0]
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringSliceVar(&o.Only, "only", nil, "只恢复这些服务, 逗号分隔")
	return cmd
}

func (o *RestoreOptions) Run(cmd *cobra.Command) error {
	cfg, err := utils.LoadRunConfig(o.ConfigPath, o.GlobalOptions)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, err := ssh.NewConnector().Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	var actions []models.DaemonAction
	if only := nonEmpty(o.Only); len(only) > 0 {
		actions, err = sanitizer.RestoreNamed(ctx, client, only)
	} else {
		actions, err = sanitizer.RestoreAll(ctx, client)
	}

	rec := audit.NewFileRecorder(o.AuditDir, cfg.Host)
	for _, a := range actions {
		rec.DaemonAction(a)
		fmt.Printf("%-8s %s\n", a.Action, a.Label)
	}
	final := "RESTORED"
	if err != nil {
		rec.Failure(failure.Classify(err), err)
		final = "FAILED"
	}
	path, ferr := rec.Finalize(final)
	if err != nil {
		printFailure(err)
		if ferr == nil {
			fmt.Fprintf(os.Stderr, "审计文件: %s\n", path)
		}
		return reportedError{err}
	}
	if len(actions) == 0 {
		fmt.Println("没有需要恢复的服务")
	}
	if ferr == nil {
		fmt.Printf("审计文件: %s\n", path)
	}
	return nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(NewCmdRestore())
}
