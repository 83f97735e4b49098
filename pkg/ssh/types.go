package ssh

import (
	"context"
	"net"
)

// Dialer 建立底层 TCP 连接，测试中可替换
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}
