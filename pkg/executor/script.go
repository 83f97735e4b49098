package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// RunScript 上传脚本、执行、再删除
// 用于多行脚本：避免在提权的 shell 调用里内联脚本带来的引号和长度问题
func RunScript(ctx context.Context, e Executor, remotePath, script string, opts ...Option) (Result, error) {
	if err := e.WriteFile(ctx, remotePath, []byte(script), 0700, opts...); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("upload script %s: %w", remotePath, err)
	}
	res, err := e.Execute(ctx, "/bin/sh "+ShellQuote(remotePath), opts...)
	// 清理失败不影响脚本结果
	_, _ = e.Execute(ctx, "rm -f "+ShellQuote(remotePath), opts...)
	if err != nil {
		return res, fmt.Errorf("run script %s: %w", remotePath, err)
	}
	return res, nil
}

// WriteFileCommand 生成写文件的单条命令：base64 负载只含 [A-Za-z0-9+/=]，无需额外转义
func WriteFileCommand(remotePath string, content []byte, mode fs.FileMode) string {
	encoded := base64.StdEncoding.EncodeToString(content)
	p := ShellQuote(remotePath)
	return fmt.Sprintf("mkdir -p %s && echo %s | base64 --decode > %s && chmod %o %s",
		ShellQuote(path.Dir(remotePath)), encoded, p, mode.Perm(), p)
}

// ShellQuote 对 POSIX shell 参数做最小化引用
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		}
		return true
	}) == -1 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
