package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	DefaultAttempts  = 3
	DefaultKeepAlive = 15 * time.Second
)

// Connector 负责建立到目标主机的 SSH 连接
type Connector struct {
	// Attempts 最大尝试次数
	Attempts int
	// KeepAlive 心跳间隔，<= 0 关闭心跳
	KeepAlive time.Duration

	dialer Dialer
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewConnector 创建默认 Connector: 3 次尝试, 线性退避 5s/10s
func NewConnector() *Connector {
	return &Connector{
		Attempts:  DefaultAttempts,
		KeepAlive: DefaultKeepAlive,
		dialer:    &net.Dialer{},
		sleep:     sleepContext,
	}
}

// backoff 第 n 次失败后的等待时间
func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * 5 * time.Second
}

// Connect 建立连接
// 认证失败不重试；超时和网络错误按线性退避重试，用尽后返回 *failure.TransientError
func (c *Connector) Connect(ctx context.Context, cfg *config.RunConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, failure.Deterministic("connect", "target host is empty")
	}
	sshConfig, err := buildSSHConfig(cfg)
	if err != nil {
		return nil, err
	}

	var lastErr error
	lastClass := failure.ClassNetwork
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		raw, err := c.dialOnce(ctx, cfg, sshConfig)
		if err == nil {
			logger.Logger.Info("ssh session established", "host", cfg.Host, "attempt", attempt)
			return c.newClient(raw, cfg), nil
		}
		if isHostKeyError(err) {
			logger.Logger.Error("host key verification failed", "host", cfg.Host, "known_hosts", cfg.KnownHosts, "err", err)
			return nil, &failure.DeterministicError{Op: "connect", Err: fmt.Errorf("host key verification failed for %s: %w", cfg.Addr(), err)}
		}
		lastErr, lastClass = err, classifyConnectError(err)
		logger.Logger.Warn("ssh connect failed", "host", cfg.Host, "attempt", attempt, "class", lastClass, "err", err)
		if lastClass == failure.ClassAuth {
			return nil, failure.Transient("connect", failure.ClassAuth, err)
		}
		if attempt < c.Attempts {
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return nil, failure.Transient("connect", failure.ClassTimeout, err)
			}
		}
	}
	return nil, failure.Transient("connect", lastClass,
		fmt.Errorf("%s unreachable after %d attempts: %w", cfg.Addr(), c.Attempts, lastErr))
}

func (c *Connector) dialOnce(ctx context.Context, cfg *config.RunConfig, sshConfig *ssh.ClientConfig) (*ssh.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	addr := cfg.Addr()
	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	// NewClientConn 不使用 ClientConfig.Timeout，握手超时靠连接的 deadline 控制
	_ = conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(ncc, chans, reqs), nil
}

func (c *Connector) newClient(raw *ssh.Client, cfg *config.RunConfig) *Client {
	client := NewClient(raw, cfg.ElevationPassword())
	if c.KeepAlive > 0 {
		host := cfg.Host
		client.stopKeepAlive = StartKeepAlive(raw, c.KeepAlive, func(err error) {
			logger.Logger.Error("ssh keepalive failed, connection closed", "host", host, "err", err)
		})
	}
	return client
}

// isHostKeyError 服务端主机密钥与 known_hosts 不符、未知或已吊销
func isHostKeyError(err error) bool {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	return errors.As(err, &keyErr) || errors.As(err, &revoked)
}

// classifyConnectError 区分认证失败、超时与一般网络错误
func classifyConnectError(err error) failure.Class {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return failure.ClassAuth
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.ClassTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failure.ClassTimeout
	}
	return failure.ClassNetwork
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
