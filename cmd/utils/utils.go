package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wentf9/nirvana/pkg/config"
	"golang.org/x/term"
)

const (
	DirName      = ".nirvana"
	KeyFileName  = "key"
	AuditDirName = "audit"
)

// GlobalOptions 所有子命令共用的参数
type GlobalOptions struct {
	Debug    bool
	AuditDir string
	AskPass  bool
	KeyFile  string
}

// Complete 填充默认路径
func (g *GlobalOptions) Complete() {
	if g.KeyFile == "" {
		g.KeyFile = DefaultKeyPath()
	}
	if g.AuditDir == "" {
		g.AuditDir = DefaultAuditDir()
	}
	g.KeyFile = ExpandHome(g.KeyFile)
	g.AuditDir = ExpandHome(g.AuditDir)
}

func homeDir() string {
	u, err := user.Current()
	if err != nil {
		return "."
	}
	return u.HomeDir
}

func DefaultKeyPath() string {
	return filepath.Join(homeDir(), DirName, KeyFileName)
}

func DefaultAuditDir() string {
	return filepath.Join(homeDir(), DirName, AuditDirName)
}

// ExpandHome 展开开头的 ~/
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// LoadRunConfig 读取配置文件；开启 --ask-pass 且文件中没有密码时从终端读取
func LoadRunConfig(path string, g *GlobalOptions) (*config.RunConfig, error) {
	f, err := config.NewDefaultStore(path, g.KeyFile).Load()
	if err != nil {
		return nil, err
	}
	if g.AskPass && f.Target.Password == "" {
		pwd, err := ReadPasswordFromTerminal(fmt.Sprintf("%s@%s 的密码: ", f.Target.User, f.Target.Host))
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		f.Target.Password = pwd
	}
	return config.New(f)
}

// ReadPasswordFromTerminal 从终端安全地读取密码
func ReadPasswordFromTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // ReadPassword 不会打印换行符
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// IsTerminal 标准输入是否为终端
func IsTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}
