package ssh

import (
	"errors"
	"fmt"
	"os"

	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/failure"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod 定义获取 SSH 认证方法的接口
type AuthMethod interface {
	GetMethod() (ssh.AuthMethod, error)
}

// PasswordAuth 实现密码认证
type PasswordAuth struct {
	Password string
}

func (p *PasswordAuth) GetMethod() (ssh.AuthMethod, error) {
	return ssh.Password(p.Password), nil
}

// KeyboardInteractiveAuth macOS 的 sshd 默认只开 keyboard-interactive，每个问题都回答密码
type KeyboardInteractiveAuth struct {
	Password string
}

func (k *KeyboardInteractiveAuth) GetMethod() (ssh.AuthMethod, error) {
	return ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = k.Password
		}
		return answers, nil
	}), nil
}

// KeyAuth 实现私钥认证
type KeyAuth struct {
	Path       string
	Passphrase string
}

func (k *KeyAuth) GetMethod() (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var signer ssh.Signer
	if k.Passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(k.Passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key %s is encrypted; set target.passphrase", k.Path)
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// authChain 私钥优先，其次密码
func authChain(cfg *config.RunConfig) []AuthMethod {
	var chain []AuthMethod
	if cfg.KeyPath != "" {
		chain = append(chain, &KeyAuth{Path: cfg.KeyPath, Passphrase: cfg.Passphrase})
	}
	if cfg.Password != "" {
		chain = append(chain,
			&PasswordAuth{Password: cfg.Password},
			&KeyboardInteractiveAuth{Password: cfg.Password})
	}
	return chain
}

// buildSSHConfig 本地凭据或 known_hosts 有问题属于确定性错误，不会重试
func buildSSHConfig(cfg *config.RunConfig) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	for _, a := range authChain(cfg) {
		m, err := a.GetMethod()
		if err != nil {
			return nil, &failure.DeterministicError{Op: "connect", Err: err}
		}
		methods = append(methods, m)
	}
	if len(methods) == 0 {
		return nil, failure.Deterministic("connect", "no credential configured for %s@%s", cfg.User, cfg.Host)
	}

	hostKeyCB := ssh.InsecureIgnoreHostKey()
	if cfg.StrictHostKey {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, failure.Deterministic("connect", "known_hosts: %w", err)
		}
		hostKeyCB = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCB,
		Timeout:         cfg.ConnectTimeout,
	}, nil
}
