package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/cmd/version"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
)

var globalOpts = &utils.GlobalOptions{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nirvana [command] [flags]",
	Short: "nirvana 通过 SSH 把一台 macOS 主机剥离到最小服务集合",
	Long: `nirvana 通过 SSH 驯化一台远程 macOS 主机:
先核对主机信息, 再创建快照并武装远端的 Dead Man's Switch,
然后禁用所有不在白名单中的 launchd 服务, 可选地以指定优先级启动一个负载,
最后解除开关。任何一步失败都会保留开关, 由它在超时后恢复所有服务并重启主机。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion()
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if globalOpts.Debug {
			logger.Logger.SetLogLevel("debug")
		}
		logger.Logger.Debug("starting", "version", version.Short(), "command", cmd.CommandPath())
		globalOpts.Complete()
	},
}

// reportedError 已经打印过的错误，Execute 只负责退出码
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		printFailure(err)
	}
	os.Exit(1)
}

// printFailure 打印失败类型和信息
func printFailure(err error) {
	kind := failure.Classify(err)
	if kind == failure.KindUnknown {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s 错误: %v\n", kind, err)
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Debug, "debug", false, "开启调试模式")
	rootCmd.PersistentFlags().StringVar(&globalOpts.AuditDir, "audit-dir", "", "审计文件目录 (默认 ~/.nirvana/audit)")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.AskPass, "ask-pass", false, "配置中没有密码时从终端读取 SSH 密码")
	rootCmd.PersistentFlags().StringVar(&globalOpts.KeyFile, "key-file", "", "解密 ENC: 字段的密钥文件 (默认 ~/.nirvana/key)")
}
