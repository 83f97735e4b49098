package ssh

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/nirvana/pkg/config"
	"github.com/wentf9/nirvana/pkg/executor"
	"github.com/wentf9/nirvana/pkg/failure"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const testPassword = "s3cret-pw"

func testConfig(port uint16, password string) *config.RunConfig {
	return &config.RunConfig{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "tester",
		Password:       password,
		ConnectTimeout: 2 * time.Second,
	}
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func testConnector(sleeps *recordedSleeps) *Connector {
	c := NewConnector()
	c.KeepAlive = 0
	c.sleep = sleeps.sleep
	return c
}

func connect(t *testing.T, s *testServer) *Client {
	t.Helper()
	client, err := testConnector(&recordedSleeps{}).Connect(context.Background(), testConfig(s.port(), testPassword))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestExecuteReturnsExitCodeAndStreams(t *testing.T) {
	s := startServer(t, testPassword, func(cmd, _ string) (string, string, int) {
		switch cmd {
		case "uname -m":
			return "arm64\n", "", 0
		default:
			return "", "no such command\n", 3
		}
	})
	client := connect(t, s)

	res, err := client.Execute(context.Background(), "uname -m")
	require.NoError(t, err)
	require.Equal(t, executor.Result{ExitCode: 0, Stdout: "arm64\n", Stderr: ""}, res)

	res, err = client.Execute(context.Background(), "bogus")
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, "no such command\n", res.Stderr)
}

func TestExecuteElevatedDeliversPasswordOnStdin(t *testing.T) {
	got := make(chan [2]string, 1)
	s := startServer(t, testPassword, func(cmd, stdin string) (string, string, int) {
		got <- [2]string{cmd, stdin}
		return "ok\n", "[sudo] password for tester:\nreal warning\n", 0
	})
	client := connect(t, s)

	res, err := client.Execute(context.Background(), "launchctl list | head -1", executor.Elevated())
	require.NoError(t, err)
	seen := <-got
	gotCmd, gotStdin := seen[0], seen[1]
	require.Equal(t, "sudo -k -S -p '' sh -c 'launchctl list | head -1'", gotCmd)
	require.Equal(t, testPassword+"\n", gotStdin)
	require.NotContains(t, gotCmd, testPassword)
	require.Equal(t, "real warning\n", res.Stderr)
}

func TestExecuteElevatedWithoutPasswordFailsFast(t *testing.T) {
	s := startServer(t, testPassword, func(cmd, _ string) (string, string, int) {
		if strings.HasPrefix(cmd, "sudo -n ") {
			return "", "sudo: a password is required\n", 1
		}
		return "", "", 0
	})
	client := connect(t, s)
	client.sudoPassword = ""

	_, err := client.Execute(context.Background(), "tmutil localsnapshot", executor.Elevated())
	var de *failure.DeterministicError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "elevate", de.Op)
}

func TestExecuteTimeoutIsTransient(t *testing.T) {
	var s *testServer
	s = startServer(t, testPassword, func(cmd, _ string) (string, string, int) {
		s.hang()
		return "", "", 0
	})
	client := connect(t, s)

	_, err := client.Execute(context.Background(), "sleep 600", executor.WithTimeout(100*time.Millisecond))
	var te *failure.TransientError
	require.ErrorAs(t, err, &te)
	require.Equal(t, failure.ClassTimeout, te.Class)
}

func TestWriteFile(t *testing.T) {
	content := []byte("#!/bin/sh\necho $$ > /tmp/pid\n")
	got := make(chan string, 2)
	s := startServer(t, testPassword, func(cmd, _ string) (string, string, int) {
		got <- cmd
		if strings.Contains(cmd, "/readonly/") {
			return "", "Read-only file system\n", 1
		}
		return "", "", 0
	})
	client := connect(t, s)

	require.NoError(t, client.WriteFile(context.Background(), "/var/tmp/nirvana/x.sh", content, 0700, executor.Elevated()))
	gotCmd := <-got
	require.Contains(t, gotCmd, base64.StdEncoding.EncodeToString(content))
	require.True(t, strings.HasPrefix(gotCmd, "sudo -k -S -p '' sh -c "))

	err := client.WriteFile(context.Background(), "/readonly/x.sh", content, 0700)
	var de *failure.DeterministicError
	require.ErrorAs(t, err, &de)
}

func TestConnectAuthFailureIsNotRetried(t *testing.T) {
	s := startServer(t, testPassword, func(string, string) (string, string, int) { return "", "", 0 })
	sleeps := &recordedSleeps{}

	_, err := testConnector(sleeps).Connect(context.Background(), testConfig(s.port(), "wrong"))
	var te *failure.TransientError
	require.ErrorAs(t, err, &te)
	require.Equal(t, failure.ClassAuth, te.Class)
	require.Equal(t, int32(1), s.conns.Load())
	require.Empty(t, sleeps.delays)
}

func TestConnectRetriesNetworkFailuresWithLinearBackoff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	sleeps := &recordedSleeps{}
	_, err = testConnector(sleeps).Connect(context.Background(), testConfig(port, testPassword))
	var te *failure.TransientError
	require.ErrorAs(t, err, &te)
	require.Equal(t, failure.ClassNetwork, te.Class)
	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, sleeps.delays)
}

func TestConnectHostKeyMismatchIsNotRetried(t *testing.T) {
	s := startServer(t, testPassword, func(string, string) (string, string, int) { return "", "", 0 })

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	otherPub, err := gossh.NewPublicKey(&other.PublicKey)
	require.NoError(t, err)

	cfg := testConfig(s.port(), testPassword)
	cfg.StrictHostKey = true
	cfg.KnownHosts = filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{cfg.Addr()}, otherPub)
	require.NoError(t, os.WriteFile(cfg.KnownHosts, []byte(line+"\n"), 0600))

	sleeps := &recordedSleeps{}
	_, err = testConnector(sleeps).Connect(context.Background(), cfg)
	var de *failure.DeterministicError
	require.ErrorAs(t, err, &de)
	var keyErr *knownhosts.KeyError
	require.ErrorAs(t, err, &keyErr)
	require.NotEmpty(t, keyErr.Want)
	require.Equal(t, int32(1), s.conns.Load())
	require.Empty(t, sleeps.delays)
}

func TestConnectRejectsEmptyHost(t *testing.T) {
	cfg := testConfig(22, testPassword)
	cfg.Host = ""
	_, err := testConnector(&recordedSleeps{}).Connect(context.Background(), cfg)
	require.Equal(t, failure.KindDeterministic, failure.Classify(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	s := startServer(t, testPassword, func(string, string) (string, string, int) { return "", "", 0 })
	client := connect(t, s)
	require.NoError(t, client.Close())
	_ = client.Close()

	_, err := client.Execute(context.Background(), "true")
	require.True(t, failure.IsTransient(err))
}

func TestFilterPrompt(t *testing.T) {
	require.Equal(t, "", filterPrompt(""))
	require.Equal(t, "a\nb\n", filterPrompt("[sudo] password for bob:\na\nPassword:\nb\n"))
}

func TestClassifyConnectError(t *testing.T) {
	require.Equal(t, failure.ClassAuth, classifyConnectError(errString("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")))
	require.Equal(t, failure.ClassTimeout, classifyConnectError(context.DeadlineExceeded))
	require.Equal(t, failure.ClassNetwork, classifyConnectError(errString("connection refused")))
}

type errString string

func (e errString) Error() string { return string(e) }
