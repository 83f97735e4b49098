package sftp

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// MaxReadSize ReadFile 最多读取的字节数，超出部分只保留末尾
const MaxReadSize = 1 << 20

// Client 包装了 sftp.Client，复用已有的 SSH 连接
type Client struct {
	sftpClient *sftp.Client
}

// NewClient 在现有 ssh 连接上打开 sftp 子系统
func NewClient(conn *ssh.Client) (*Client, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return &Client{sftpClient: client}, nil
}

// Close 关闭 sftp 会话，不关闭底层 ssh 连接
func (c *Client) Close() error {
	return c.sftpClient.Close()
}

// ReadFile 读取远程文件，大文件只返回最后 MaxReadSize 字节
func (c *Client) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	f, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat remote %s: %w", remotePath, err)
	}
	if size := info.Size(); size > MaxReadSize {
		if _, err := f.Seek(size-MaxReadSize, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek remote %s: %w", remotePath, err)
		}
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(f, MaxReadSize))
		ch <- result{data, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("read remote %s: %w", remotePath, r.err)
		}
		return r.data, nil
	}
}
