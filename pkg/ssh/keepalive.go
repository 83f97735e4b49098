package ssh

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// StartKeepAlive 开启一个协程，定期向 SSH Server 发送心跳
// 心跳失败时关闭连接并调用 fallback；返回的 stop 用于在正常关闭前结束协程
func StartKeepAlive(client *ssh.Client, interval time.Duration, fallback func(err error)) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			// wantReply = true: 服务器挂了或网络断了，SendRequest 会报错
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				// 关闭 Client，正在使用的 Session 会随之收到错误
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}
