package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
	"github.com/wentf9/nirvana/cmd/utils"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/crypto"
	"golang.org/x/sync/errgroup"
)

type HealthOptions struct {
	*utils.GlobalOptions
	ConfigPath string
	Ping       bool
	Privileged bool
}

type healthCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type healthResult struct {
	detail string
	err    error
}

func NewCmdHealth() *cobra.Command {
	o := &HealthOptions{GlobalOptions: globalOpts}
	cmd := &cobra.Command{
		Use:   "health [config] [--ping]",
		Short: "检查本地运行条件, 提供配置时同时检查配置和目标可达性",
		Long: `检查本地运行条件: 审计目录可写, 密钥文件有效。
提供配置文件时还会校验配置、检查私钥和 known_hosts 文件、测试 SSH 端口的 TCP 连通性,
使用 --ping 时额外发送 ICMP 请求。
用法示例:
nirvana health
nirvana health target.yaml --ping`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				o.ConfigPath = args[0]
			}
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&o.Ping, "ping", false, "通过 ICMP Ping 目标主机")
	cmd.Flags().BoolVar(&o.Privileged, "privileged", false, "使用 raw socket 发送 ICMP (需要 root 权限)")
	return cmd
}

func (o *HealthOptions) Run(ctx context.Context) error {
	checks := []healthCheck{
		{"审计目录", o.checkAuditDir},
		{"密钥文件", o.checkKeyFile},
	}
	if o.ConfigPath != "" {
		cfg, err := utils.LoadRunConfig(o.ConfigPath, o.GlobalOptions)
		if err != nil {
			fmt.Printf("[FAIL] %-12s %v\n", "配置", err)
			return reportedError{err}
		}
		fmt.Printf("[ OK ] %-12s %s\n", "配置", o.ConfigPath)
		checks = append(checks, o.targetChecks(cfg)...)
	}

	results := make([]healthResult, len(checks))
	var g errgroup.Group
	g.SetLimit(4)
	for i, c := range checks {
		g.Go(func() error {
			detail, err := c.run(ctx)
			results[i] = healthResult{detail: detail, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, c := range checks {
		r := results[i]
		if r.err != nil {
			failed++
			fmt.Printf("[FAIL] %-12s %v\n", c.name, r.err)
			continue
		}
		fmt.Printf("[ OK ] %-12s %s\n", c.name, r.detail)
	}
	if failed > 0 {
		return reportedError{fmt.Errorf("%d health checks failed", failed)}
	}
	return nil
}

func (o *HealthOptions) checkAuditDir(context.Context) (string, error) {
	if err := os.MkdirAll(o.AuditDir, 0700); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(o.AuditDir, ".probe-*")
	if err != nil {
		return "", fmt.Errorf("not writable: %w", err)
	}
	f.Close()
	os.Remove(f.Name())
	return o.AuditDir, nil
}

func (o *HealthOptions) checkKeyFile(context.Context) (string, error) {
	if _, err := os.Stat(o.KeyFile); errors.Is(err, os.ErrNotExist) {
		return "未创建 (首次 seal 时生成)", nil
	}
	if _, err := crypto.LoadKey(o.KeyFile); err != nil {
		return "", err
	}
	return o.KeyFile, nil
}

func (o *HealthOptions) targetChecks(cfg *config.RunConfig) []healthCheck {
	var checks []healthCheck
	if cfg.KeyPath != "" {
		checks = append(checks, healthCheck{"SSH 私钥", func(context.Context) (string, error) {
			return cfg.KeyPath, readable(cfg.KeyPath)
		}})
	}
	if cfg.StrictHostKey {
		checks = append(checks, healthCheck{"known_hosts", func(context.Context) (string, error) {
			if cfg.KnownHosts == "" {
				return "", errors.New("strict_host_key is set but known_hosts is empty")
			}
			return cfg.KnownHosts, readable(cfg.KnownHosts)
		}})
	}
	checks = append(checks, healthCheck{"SSH 端口", func(ctx context.Context) (string, error) {
		d := net.Dialer{Timeout: cfg.ConnectTimeout}
		start := time.Now()
		conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
		if err != nil {
			return "", err
		}
		conn.Close()
		return fmt.Sprintf("%s 可达 (%v)", cfg.Addr(), time.Since(start).Round(time.Millisecond)), nil
	}})
	if o.Ping {
		checks = append(checks, healthCheck{"ICMP", func(ctx context.Context) (string, error) {
			return o.ping(ctx, cfg.Host)
		}})
	}
	return checks
}

func (o *HealthOptions) ping(ctx context.Context, host string) (string, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return "", fmt.Errorf("创建pinger失败: %w", err)
	}
	// Linux 上 raw socket 需要 root 权限
	pinger.SetPrivileged(o.Privileged)
	pinger.Count = 3
	pinger.Interval = 500 * time.Millisecond
	pinger.Timeout = 5 * time.Second
	if err := pinger.RunWithContext(ctx); err != nil {
		return "", err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return "", fmt.Errorf("%d 个包全部丢失", stats.PacketsSent)
	}
	return fmt.Sprintf("%d/%d 回复, 平均 %v", stats.PacketsRecv, stats.PacketsSent, stats.AvgRtt), nil
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(NewCmdHealth())
}
