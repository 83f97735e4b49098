package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	"github.com/wentf9/nirvana/pkg/logger"
	"golang.org/x/crypto/ssh"
)

// Client 一次运行期间持有的 SSH 会话，实现 executor.Executor
type Client struct {
	sshClient     *ssh.Client
	sudoPassword  string
	stopKeepAlive func()
	closeOnce     sync.Once
	closeErr      error
}

// NewClient sudoPassword 为空时提权使用 sudo -n
func NewClient(raw *ssh.Client, sudoPassword string) *Client {
	return &Client{
		sshClient:    raw,
		sudoPassword: sudoPassword,
	}
}

// Close 无条件关闭底层连接，可重复调用
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.stopKeepAlive != nil {
			c.stopKeepAlive()
		}
		c.closeErr = c.sshClient.Close()
	})
	return c.closeErr
}

// SSHClient 暴露底层的 ssh.Client (供 sftp 使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// Execute 执行一条命令，返回退出码、stdout 和去掉提权提示行的 stderr
func (c *Client) Execute(ctx context.Context, command string, opts ...executor.Option) (executor.Result, error) {
	o := executor.NewOptions(opts...)
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	session, err := c.sshClient.NewSession()
	if err != nil {
		return executor.Result{ExitCode: -1}, failure.Transient("execute", failure.ClassNetwork, fmt.Errorf("open session: %w", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	fullCmd := command
	if o.Elevate {
		var stdin io.Reader
		fullCmd, stdin = c.elevate(command)
		session.Stdin = stdin
	}
	logger.Logger.Debug("ssh execute", "cmd", command, "elevate", o.Elevate)

	code, err := waitWithContext(ctx, session, fullCmd)
	if err != nil {
		return executor.Result{ExitCode: -1}, err
	}
	res := executor.Result{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   filterPrompt(stderr.String()),
	}
	if o.Elevate && code != 0 {
		if err := elevationError(res.Stderr); err != nil {
			return res, err
		}
	}
	return res, nil
}

// WriteFile 通过单条远程命令写入 base64 编码的内容
func (c *Client) WriteFile(ctx context.Context, path string, content []byte, mode fs.FileMode, opts ...executor.Option) error {
	res, err := c.Execute(ctx, executor.WriteFileCommand(path, content, mode), opts...)
	if err != nil {
		return err
	}
	if !res.OK() {
		return failure.Deterministic("write-file", "write %s exited %d: %s", path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// elevate 构造提权命令
// 有密码时使用 sudo -S -p ''，密码只经由 stdin 传入，不出现在命令文本中；
// -k 忽略缓存凭据，保证 sudo 一定会读走这一行；
// 没有密码时使用 sudo -n，需要密码会立即失败而不是卡在提示符上
func (c *Client) elevate(command string) (string, io.Reader) {
	inner := "sh -c " + executor.ShellQuote(command)
	if c.sudoPassword == "" {
		return "sudo -n " + inner, nil
	}
	return "sudo -k -S -p '' " + inner, strings.NewReader(c.sudoPassword + "\n")
}

func elevationError(stderr string) error {
	switch {
	case strings.Contains(stderr, "a password is required"):
		return failure.Deterministic("elevate", "sudo requires a password but none is configured (set target.sudo_password)")
	case strings.Contains(stderr, "incorrect password"), strings.Contains(stderr, "Sorry, try again"):
		return failure.Deterministic("elevate", "sudo rejected the configured password")
	}
	return nil
}

// filterPrompt 移除混入 stderr 的提权提示行
func filterPrompt(raw string) string {
	if raw == "" {
		return raw
	}
	lines := strings.Split(raw, "\n")
	result := lines[:0]
	for _, line := range lines {
		trimLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimLine, "[sudo] password for") || strings.HasPrefix(trimLine, "Password:") {
			continue
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

func waitWithContext(ctx context.Context, session *ssh.Session, command string) (int, error) {
	if err := session.Start(command); err != nil {
		return -1, failure.Transient("execute", failure.ClassNetwork, fmt.Errorf("start command: %w", err))
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return exitStatus(err)
	case <-ctx.Done():
		// 超时：尽力终止远端命令
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, failure.Transient("execute", failure.ClassTimeout, fmt.Errorf("command timed out: %w", ctx.Err()))
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return ee.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, failure.Transient("execute", failure.ClassNetwork, fmt.Errorf("connection lost before exit status: %w", err))
	}
	return -1, failure.Transient("execute", failure.ClassNetwork, err)
}
