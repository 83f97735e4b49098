package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/anchor"
	"github.com/wentf9/nirvana/pkg/logger"
	"github.com/wentf9/nirvana/pkg/sanitizer"
	"github.com/wentf9/nirvana/pkg/sftp"
	"github.com/wentf9/nirvana/pkg/ssh"
)

type InspectOptions struct {
	*utils.GlobalOptions
	ConfigPath string
	ShowLog    bool
}

func NewCmdInspect() *cobra.Command {
	o := &InspectOptions{GlobalOptions: globalOpts}
	cmd := &cobra.Command{
		Use:   "inspect <config>",
		Short: "查看目标主机上开关的状态、日志和被禁用的服务",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.ConfigPath = args[0]
			return o.Run(cmd)
		},
	}
	cmd.Flags().BoolVar(&o.ShowLog, "log", true, "打印开关日志")
	return cmd
}

func (o *InspectOptions) Run(cmd *cobra.Command) error {
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

	st, err := anchor.InspectSwitch(ctx, client)
	if err != nil {
		return err
	}
	switch {
	case !st.Armed:
		fmt.Println("开关:   未武装")
	case st.Alive:
		fmt.Printf("开关:   已武装, pid %d 运行中\n", st.PID)
	default:
		fmt.Printf("开关:   pid 文件指向 %d, 进程已不存在\n", st.PID)
	}

	disabled, err := sanitizer.DisabledServices(ctx, client)
	if err != nil {
		return err
	}
	fmt.Printf("被禁用的服务: %d\n", len(disabled))
	for _, label := range disabled {
		fmt.Printf("  %s\n", label)
	}

	if !o.ShowLog {
		return nil
	}
	sc, err := sftp.NewClient(client.SSHClient())
	if err != nil {
		return err
	}
	defer sc.Close()
	data, err := anchor.FetchSwitchLog(ctx, sc)
	if err != nil {
		// 开关从未触发时日志可能为空或不存在
		logger.Logger.Debug("switch log unavailable", "err", err)
		fmt.Println("开关日志: 无")
		return nil
	}
	fmt.Printf("开关日志 (%s):\n%s", anchor.LogPath, data)
	return nil
}

func init() {
	rootCmd.AddCommand(NewCmdInspect())
}
