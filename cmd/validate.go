package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/config"
)

type ValidateOptions struct {
	*utils.GlobalOptions
	ConfigPath string
	ShowAllow  bool
}

func NewCmdValidate() *cobra.Command {
	o := &ValidateOptions{GlobalOptions: globalOpts}
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "校验配置文件, 不连接网络",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.ConfigPath = args[0]
			return o.Run()
		},
	}
	cmd.Flags().BoolVar(&o.ShowAllow, "show-allow", false, "打印合并后的白名单")
	return cmd
}

func (o *ValidateOptions) Run() error {
	cfg, err := utils.LoadRunConfig(o.ConfigPath, o.GlobalOptions)
	if err != nil {
		return err
	}

	auth := "password"
	switch {
	case cfg.KeyPath != "" && cfg.Password != "":
		auth = "key, password"
	case cfg.KeyPath != "":
		auth = "key"
	}
	fmt.Printf("目标:       %s@%s\n", cfg.User, cfg.Addr())
	fmt.Printf("认证:       %s\n", auth)
	fmt.Printf("开关超时:   %s\n", cfg.SwitchTimeout)
	fmt.Printf("快照:       %v\n", !cfg.SkipSnapshot)
	fmt.Printf("白名单:     %d 个服务, %d 条前缀规则 (wifi_survival=%v)\n", cfg.Allowlist.Len(), len(cfg.Allowlist.Prefixes()), cfg.WifiSurvival)
	if cfg.HasWorkload() {
		fmt.Printf("负载:       %s (nice %d)\n", cfg.WorkloadBinary, cfg.Priority)
	}
	if o.ShowAllow {
		for _, name := range cfg.Allowlist.Names() {
			marker := " "
			if config.IsCore(name) {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, name)
		}
		for _, p := range cfg.Allowlist.Prefixes() {
			fmt.Printf("  * %s*\n", p)
		}
	}

	if findings := config.Lint(cfg); len(findings) > 0 {
		fmt.Printf("警告:\n  - %s\n", strings.Join(findings, "\n  - "))
	}
	fmt.Println("配置有效")
	return nil
}

func init() {
	rootCmd.AddCommand(NewCmdValidate())
}
